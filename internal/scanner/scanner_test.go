package scanner

import (
	"testing"

	"github.com/dyluth/xray/pkg/projectstore"
	"github.com/stretchr/testify/assert"
)

const (
	cloudA = "11111111-1111-1111-1111-111111111111"
	siteA  = "22222222-2222-2222-2222-222222222222"
)

func TestExtractReference(t *testing.T) {
	tests := []struct {
		name    string
		href    string
		want    projectstore.ProjectReference
		matches bool
	}{
		{
			name:    "full project link",
			href:    "https://host/o/" + cloudA + "/s/" + siteA + "/project/ABC-123",
			want:    projectstore.ProjectReference{CloudID: cloudA, ProjectID: "ABC-123"},
			matches: true,
		},
		{
			name:    "relative link with trailing path and query",
			href:    "/o/" + cloudA + "/s/" + siteA + "/project/XY-7/updates?tab=1",
			want:    projectstore.ProjectReference{CloudID: cloudA, ProjectID: "XY-7"},
			matches: true,
		},
		{
			name: "no tenant prefix",
			href: "https://host/project/ABC-123",
		},
		{
			name: "lowercase project key",
			href: "https://host/o/" + cloudA + "/s/" + siteA + "/project/abc-123",
		},
		{
			name: "uppercase hex in cloud id",
			href: "https://host/o/ABCDEF/s/" + siteA + "/project/ABC-123",
		},
		{
			name: "project key without digits",
			href: "https://host/o/" + cloudA + "/s/" + siteA + "/project/ABC-",
		},
		{
			name: "empty href",
			href: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractReference(tt.href)
			assert.Equal(t, tt.matches, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScan(t *testing.T) {
	doc := []byte(`<!doctype html>
<html><body>
  <a href="https://host/o/` + cloudA + `/s/` + siteA + `/project/ABC-123">Apollo</a>
  <a href="https://host/project/NOPE-1">no tenant</a>
  <a>no href</a>
  <div data-href="https://host/o/` + cloudA + `/s/` + siteA + `/project/DIV-1">not an anchor</div>
  <p><A class="x" HREF="/o/` + cloudA + `/s/` + siteA + `/project/ZED-9">upper-case tag</A></p>
  <a href="https://host/o/` + cloudA + `/s/` + siteA + `/project/ABC-123">Apollo again</a>
</body></html>`)

	refs := Scan(doc)

	assert.Equal(t, []projectstore.ProjectReference{
		{CloudID: cloudA, ProjectID: "ABC-123"},
		{CloudID: cloudA, ProjectID: "ZED-9"},
		{CloudID: cloudA, ProjectID: "ABC-123"},
	}, refs)
}

func TestScan_IsDeterministic(t *testing.T) {
	doc := []byte(`<a href="/o/` + cloudA + `/s/` + siteA + `/project/B-2"></a><a href="/o/` + cloudA + `/s/` + siteA + `/project/A-1"></a>`)

	first := Scan(doc)
	second := Scan(doc)

	assert.Equal(t, first, second)
	assert.Equal(t, "B-2", first[0].ProjectID, "document order is preserved")
}

func TestScan_ToleratesMalformedMarkup(t *testing.T) {
	assert.Empty(t, Scan(nil))
	assert.Empty(t, Scan([]byte("<<<a href=")))

	refs := Scan([]byte(`<div><a href="/o/` + cloudA + `/s/` + siteA + `/project/OK-1">unterminated`))
	assert.Equal(t, []projectstore.ProjectReference{{CloudID: cloudA, ProjectID: "OK-1"}}, refs)
}
