package graphql

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// CookieProvider returns the Cookie header value to send to origin.
type CookieProvider interface {
	CookieHeader(ctx context.Context, origin string) (string, error)
}

// StaticCookie always returns the same header value.
type StaticCookie string

// CookieHeader implements CookieProvider.
func (s StaticCookie) CookieHeader(context.Context, string) (string, error) {
	return string(s), nil
}

// FileCookie reads the header value from a file on every call, so an external
// process can refresh the session without restarting xray.
type FileCookie struct {
	Path string
}

// CookieHeader implements CookieProvider.
func (f FileCookie) CookieHeader(context.Context, string) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read cookie file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
