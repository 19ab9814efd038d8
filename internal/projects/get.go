package projects

import (
	"context"
	"fmt"
	"io"

	"github.com/dyluth/xray/pkg/projectstore"
)

// GetProject retrieves a single project record and writes it as pretty-printed
// JSON to w. Use IsNotFound to distinguish a missing record from other errors.
func GetProject(ctx context.Context, store Catalogue, projectKey string, w io.Writer) error {
	if err := projectstore.ValidateProjectKey(projectKey); err != nil {
		return err
	}

	record, err := store.GetProjectRecord(ctx, projectKey)
	if err != nil {
		if projectstore.IsNotFound(err) {
			return &ProjectNotFoundError{ProjectKey: projectKey}
		}
		return fmt.Errorf("failed to fetch project: %w", err)
	}

	if err := FormatSingleJSON(w, record); err != nil {
		return fmt.Errorf("failed to format project: %w", err)
	}

	return nil
}

// ProjectNotFoundError means no record exists for the key.
type ProjectNotFoundError struct {
	ProjectKey string
}

func (e *ProjectNotFoundError) Error() string {
	return fmt.Sprintf("project '%s' not found", e.ProjectKey)
}

// IsNotFound returns true if the error is a ProjectNotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*ProjectNotFoundError)
	return ok
}
