package graphql

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts.Endpoint = srv.URL
	client, err := NewClient(opts)
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresEndpoint(t *testing.T) {
	_, err := NewClient(Options{})
	assert.Error(t, err)
}

func TestQuery_SendsRequestAndHeaders(t *testing.T) {
	var gotBody Request
	var gotHeaders http.Header

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotHeaders = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"project":{"key":"ABC-123"}}}`))
	}, Options{
		Origin:        "https://home.example.com",
		ClientName:    "atlas-xray",
		ClientVersion: "1.2.3",
		Cookies:       StaticCookie("tenant.session.token=abc"),
	})

	resp, err := client.Query(context.Background(), Request{
		Query:     ProjectStatusHistoryQuery,
		Variables: map[string]any{"projectKey": "ABC-123"},
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{"key":"ABC-123"}`, string(resp.Data["project"]))
	assert.Equal(t, ProjectStatusHistoryQuery, gotBody.Query)
	assert.Equal(t, "ABC-123", gotBody.Variables["projectKey"])

	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "tenant.session.token=abc", gotHeaders.Get("Cookie"))
	assert.Equal(t, "https://home.example.com", gotHeaders.Get("Origin"))
	assert.Equal(t, "atlas-xray", gotHeaders.Get("atl-client-name"))
	assert.Equal(t, "1.2.3", gotHeaders.Get("atl-client-version"))
}

func TestQuery_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "graphql errors",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"data":null,"errors":[{"message":"not authorised"},{"message":"try again"}]}`))
			},
			check: func(t *testing.T, err error) {
				var gqlErr *Error
				require.ErrorAs(t, err, &gqlErr)
				assert.Equal(t, []string{"not authorised", "try again"}, gqlErr.Messages)
			},
		},
		{
			name: "non-2xx status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte("login required"))
			},
			check: func(t *testing.T, err error) {
				var statusErr *StatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
				assert.Equal(t, "login required", statusErr.Body)
			},
		},
		{
			name: "undecodable body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("<html>gateway error</html>"))
			},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "failed to decode response")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler, Options{})
			resp, err := client.Query(context.Background(), Request{Query: "{ x }"})
			require.Error(t, err)
			assert.Nil(t, resp)
			tt.check(t, err)
		})
	}
}

func TestQuery_RespectsTimeout(t *testing.T) {
	done := make(chan struct{})
	defer close(done)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-done:
		case <-r.Context().Done():
		}
	}, Options{Timeout: 50 * time.Millisecond})

	_, err := client.Query(context.Background(), Request{Query: "{ x }"})
	assert.Error(t, err)
}

func TestQuery_CookieProviderFailure(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, Options{Cookies: FileCookie{Path: filepath.Join(t.TempDir(), "missing")}})

	_, err := client.Query(context.Background(), Request{Query: "{ x }"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read cookies")
	assert.False(t, called, "no request is sent without credentials")
}

func TestFileCookie(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookie.txt")
	require.NoError(t, os.WriteFile(path, []byte("a=1; b=2\n"), 0600))

	header, err := FileCookie{Path: path}.CookieHeader(context.Background(), "https://x")
	require.NoError(t, err)
	assert.Equal(t, "a=1; b=2", header)
}
