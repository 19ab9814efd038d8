package projects

import (
	"context"
	"fmt"
	"io"
)

// SeenRegistry is the part of the store holding seen markers.
type SeenRegistry interface {
	ListSeen(ctx context.Context) ([]string, error)
	ForgetSeen(ctx context.Context, projectID string) (bool, error)
}

// ListSeen writes every project key with a seen marker, one per line.
func ListSeen(ctx context.Context, store SeenRegistry, instanceName string, w io.Writer) error {
	keys, err := store.ListSeen(ctx)
	if err != nil {
		return fmt.Errorf("failed to list seen projects: %w", err)
	}

	if len(keys) == 0 {
		fmt.Fprintf(w, "No seen projects for instance '%s'\n", instanceName)
		return nil
	}

	for _, key := range keys {
		fmt.Fprintln(w, key)
	}
	return nil
}

// ForgetSeen removes the seen markers for keys so the next scan that finds
// them fetches them again. Returns the keys that had no marker.
func ForgetSeen(ctx context.Context, store SeenRegistry, keys []string) ([]string, error) {
	var missing []string
	for _, key := range keys {
		removed, err := store.ForgetSeen(ctx, key)
		if err != nil {
			return missing, fmt.Errorf("failed to forget %s: %w", key, err)
		}
		if !removed {
			missing = append(missing, key)
		}
	}
	return missing, nil
}
