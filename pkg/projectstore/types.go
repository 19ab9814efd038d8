package projectstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ProjectReference is a (tenant, project key) pair extracted from a page link.
// It is passed by value through the pipeline and never mutated.
type ProjectReference struct {
	CloudID   string `json:"cloud_id"`   // Tenant identifier from the /o/{cloudId} path segment
	ProjectID string `json:"project_id"` // Project key such as "ABC-123"
}

func (r ProjectReference) String() string {
	return fmt.Sprintf("%s (cloud %s)", r.ProjectID, r.CloudID)
}

// Validate checks that CloudID is UUID-shaped and ProjectID looks like a
// project key. The scanner's pattern is looser, so extracted references can
// fail this; the pipeline still processes them.
func (r ProjectReference) Validate() error {
	if _, err := uuid.Parse(r.CloudID); err != nil {
		return fmt.Errorf("invalid cloud ID %q: %w", r.CloudID, err)
	}
	return ValidateProjectKey(r.ProjectID)
}

// ProjectRecord is the cached GraphQL data for a single project.
// Fields maps each top-level GraphQL field name to its raw JSON value.
type ProjectRecord struct {
	ProjectKey  string                     `json:"project_key"`
	Fields      map[string]json.RawMessage `json:"fields"`
	CreatedAtMs int64                      `json:"created_at_ms"` // First save, Unix milliseconds
	UpdatedAtMs int64                      `json:"updated_at_ms"` // Latest save, Unix milliseconds
}

// FieldNames returns the record's field names in sorted order.
func (r *ProjectRecord) FieldNames() []string {
	return sortedKeys(r.Fields)
}

// ProjectEvent is published after every successful SaveProjectRecord on the Redis backend.
type ProjectEvent struct {
	ProjectKey string   `json:"project_key"`
	Fields     []string `json:"fields"`      // Field names written by this save
	SavedAtMs  int64    `json:"saved_at_ms"` // Unix milliseconds
}

// Store is the persistence contract shared by the Redis and SQLite backends.
type Store interface {
	// Get returns the value stored under key, or a not-found error (see IsNotFound).
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// SaveProjectRecord upserts data onto the project's record, merging by field name.
	SaveProjectRecord(ctx context.Context, projectKey string, data map[string]json.RawMessage) error

	GetProjectRecord(ctx context.Context, projectKey string) (*ProjectRecord, error)
	ListProjectRecords(ctx context.Context) ([]*ProjectRecord, error)
	// ListSeen returns the project keys carrying a seen marker, sorted.
	ListSeen(ctx context.Context) ([]string, error)
	// ForgetSeen removes a seen marker. Reports whether a marker existed.
	ForgetSeen(ctx context.Context, projectID string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

// ErrNotFound is returned by backends that have no native "missing key" error.
var ErrNotFound = errors.New("not found")

var projectKeyPattern = regexp.MustCompile(`^[A-Z]+-[0-9]+$`)

// ValidateProjectKey checks that key has the UPPERCASE-DIGITS shape of a project key.
func ValidateProjectKey(key string) error {
	if !projectKeyPattern.MatchString(key) {
		return fmt.Errorf("invalid project key %q: expected a key like ABC-123", key)
	}
	return nil
}

// IsNotFound reports whether err means the requested key or record does not exist.
// Matches redis.Nil as well as ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil) || errors.Is(err, ErrNotFound)
}
