package projects

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/dyluth/xray/pkg/projectstore"
)

// OutputFormat specifies how to format the project list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table format with one row per project
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete records as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// Catalogue is the read side of the store used by the projects commands.
type Catalogue interface {
	GetProjectRecord(ctx context.Context, projectKey string) (*projectstore.ProjectRecord, error)
	ListProjectRecords(ctx context.Context) ([]*projectstore.ProjectRecord, error)
}

// FilterCriteria defines filtering options for projects list.
// All filters are ANDed together.
type FilterCriteria struct {
	SinceTimestampMs int64  // Unix timestamp in milliseconds, 0 = no filter
	UntilTimestampMs int64  // Unix timestamp in milliseconds, 0 = no filter
	KeyGlob          string // Glob pattern for the project key, e.g. "ABC-*"
	Field            string // Only records that carry this top-level field
}

// matchesFilter returns true if the record matches all filter criteria.
func (fc *FilterCriteria) matchesFilter(rec *projectstore.ProjectRecord) bool {
	if fc.SinceTimestampMs > 0 && rec.CreatedAtMs < fc.SinceTimestampMs {
		return false
	}
	if fc.UntilTimestampMs > 0 && rec.CreatedAtMs > fc.UntilTimestampMs {
		return false
	}

	if fc.KeyGlob != "" {
		matched, err := filepath.Match(fc.KeyGlob, rec.ProjectKey)
		if err != nil || !matched {
			return false
		}
	}

	if fc.Field != "" {
		if _, ok := rec.Fields[fc.Field]; !ok {
			return false
		}
	}

	return true
}

// ListProjects writes every stored project record matching filters to w,
// oldest first.
func ListProjects(ctx context.Context, store Catalogue, instanceName string, format OutputFormat, filters *FilterCriteria, w io.Writer) error {
	records, err := store.ListProjectRecords(ctx)
	if err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}

	var matched []*projectstore.ProjectRecord
	for _, rec := range records {
		if filters != nil && !filters.matchesFilter(rec) {
			continue
		}
		matched = append(matched, rec)
	}

	switch format {
	case OutputFormatDefault, "":
		FormatTable(w, matched, instanceName)
	case OutputFormatJSONL:
		if err := FormatJSONL(w, matched); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
