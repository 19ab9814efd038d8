package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/xray/pkg/projectstore"
)

// RecordGetter reads a single project record.
type RecordGetter interface {
	GetProjectRecord(ctx context.Context, projectKey string) (*projectstore.ProjectRecord, error)
}

// PollForRecord polls until a record for projectKey exists and carries every
// field in fields. Polls every 200ms for the specified timeout duration.
func PollForRecord(ctx context.Context, store RecordGetter, projectKey string, fields []string, timeout time.Duration) (*projectstore.ProjectRecord, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for project %s after %v", projectKey, timeout)

		case <-ticker.C:
			record, err := store.GetProjectRecord(ctx, projectKey)
			if err != nil {
				if projectstore.IsNotFound(err) {
					continue
				}
				return nil, fmt.Errorf("failed to query for project: %w", err)
			}

			if hasFields(record, fields) {
				return record, nil
			}
		}
	}
}

func hasFields(record *projectstore.ProjectRecord, fields []string) bool {
	for _, field := range fields {
		if _, ok := record.Fields[field]; !ok {
			return false
		}
	}
	return true
}
