// Package resolver turns user-typed project keys into cached project keys.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dyluth/xray/pkg/projectstore"
)

// Catalogue is the read side of the store the resolver needs.
type Catalogue interface {
	GetProjectRecord(ctx context.Context, projectKey string) (*projectstore.ProjectRecord, error)
	ListProjectRecords(ctx context.Context) ([]*projectstore.ProjectRecord, error)
}

// ResolveProjectKey resolves input to the key of exactly one cached record.
//
// The function handles two cases:
//  1. Input is a well-formed key with a record - returned as-is
//  2. Otherwise input is matched case-insensitively as a key prefix, so
//     "abc-12" finds ABC-123 when no other cached key starts with ABC-12
func ResolveProjectKey(ctx context.Context, store Catalogue, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("project key cannot be empty")
	}

	if projectstore.ValidateProjectKey(input) == nil {
		_, err := store.GetProjectRecord(ctx, input)
		if err == nil {
			return input, nil
		}
		if !projectstore.IsNotFound(err) {
			return "", fmt.Errorf("failed to verify project existence: %w", err)
		}
	}

	records, err := store.ListProjectRecords(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to search for project: %w", err)
	}

	prefix := strings.ToUpper(input)
	var matches []string
	for _, rec := range records {
		if rec.ProjectKey == prefix {
			return rec.ProjectKey, nil
		}
		if strings.HasPrefix(rec.ProjectKey, prefix) {
			matches = append(matches, rec.ProjectKey)
		}
	}
	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return "", &NotFoundError{Input: input}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{Input: input, Matches: matches}
	}
}

// NotFoundError indicates no cached project matched the input.
type NotFoundError struct {
	Input string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no projects found matching '%s'", e.Input)
}

// AmbiguousError indicates multiple cached projects matched the input.
type AmbiguousError struct {
	Input   string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous project key '%s' matches %d projects", e.Input, len(e.Matches))
}

// FormatMatches lists the matching keys (up to 10, then "...and N more").
func FormatMatches(err *AmbiguousError) string {
	var b strings.Builder

	displayCount := len(err.Matches)
	if displayCount > 10 {
		displayCount = 10
	}

	for i := 0; i < displayCount; i++ {
		fmt.Fprintf(&b, "  %s\n", err.Matches[i])
	}

	if len(err.Matches) > 10 {
		fmt.Fprintf(&b, "  ...and %d more\n", len(err.Matches)-10)
	}

	return b.String()
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
