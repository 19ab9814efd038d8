// Package scanner extracts project references from HTML documents.
//
// Scanning is pure: it performs no I/O beyond reading the supplied bytes,
// never mutates its input, and returns the same references in the same
// (document) order for the same document.
package scanner

import (
	"bytes"
	"regexp"

	"github.com/dyluth/xray/pkg/projectstore"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// projectLinkPattern matches /o/{cloudId}/s/{siteId}/project/{KEY} anywhere in an href.
// Group 1 is the cloud ID, group 2 the site ID (unused), group 3 the project key.
var projectLinkPattern = regexp.MustCompile(`/o/([a-f0-9\-]+)/s/([a-f0-9\-]+)/project/([A-Z]+-\d+)`)

// ExtractReference parses a single href. The second return value is false when
// the href does not reference a project.
func ExtractReference(href string) (projectstore.ProjectReference, bool) {
	m := projectLinkPattern.FindStringSubmatch(href)
	if m == nil {
		return projectstore.ProjectReference{}, false
	}
	return projectstore.ProjectReference{CloudID: m[1], ProjectID: m[3]}, true
}

// Scan returns a reference for every <a href> in doc that points at a project,
// in document order. Repeated links yield repeated references.
// Malformed markup is tolerated; links the tokenizer cannot recover are skipped.
func Scan(doc []byte) []projectstore.ProjectReference {
	var refs []projectstore.ProjectReference

	z := html.NewTokenizer(bytes.NewReader(doc))
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a read error on an in-memory reader: either way we're done
			return refs

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if atom.Lookup(name) != atom.A || !hasAttr {
				continue
			}
			if href, ok := hrefAttr(z); ok {
				if ref, ok := ExtractReference(href); ok {
					refs = append(refs, ref)
				}
			}
		}
	}
}

// hrefAttr returns the first href attribute of the current tag.
func hrefAttr(z *html.Tokenizer) (string, bool) {
	for {
		key, val, more := z.TagAttr()
		if string(key) == "href" {
			return string(val), true
		}
		if !more {
			return "", false
		}
	}
}
