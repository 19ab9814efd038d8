package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/dyluth/xray/pkg/projectstore"
)

// KeyValueStore is the part of the store the deduper needs.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Deduper decides whether a discovered project is new.
//
// The persisted seen marker is the durable signal. An in-memory in-flight set,
// checked under a mutex before any store access, stops two overlapping scans in
// this process from both claiming the same project between Get and Set.
type Deduper struct {
	store KeyValueStore

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewDeduper creates a deduper backed by store.
func NewDeduper(store KeyValueStore) *Deduper {
	return &Deduper{
		store:    store,
		inFlight: make(map[string]struct{}),
	}
}

// Claim reports whether ref is seen for the first time. When it returns true the
// seen marker has already been written, so the caller owns the follow-up fetch.
//
// The marker key ignores ref.CloudID. Store errors are returned wrapped; the
// project is then released so a later scan can try again.
func (d *Deduper) Claim(ctx context.Context, ref projectstore.ProjectReference) (bool, error) {
	if !d.acquire(ref.ProjectID) {
		return false, nil
	}
	defer d.release(ref.ProjectID)

	key := projectstore.SeenKey(ref.ProjectID)

	existing, err := d.store.Get(ctx, key)
	switch {
	case err == nil && existing != "":
		return false, nil
	case err != nil && !projectstore.IsNotFound(err):
		return false, fmt.Errorf("failed to check seen marker for %s: %w", ref.ProjectID, err)
	}

	if err := d.store.Set(ctx, key, ref.ProjectID); err != nil {
		return false, fmt.Errorf("failed to write seen marker for %s: %w", ref.ProjectID, err)
	}

	return true, nil
}

// InFlight returns the number of projects currently between check and mark.
func (d *Deduper) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inFlight)
}

func (d *Deduper) acquire(projectID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inFlight[projectID]; busy {
		return false
	}
	d.inFlight[projectID] = struct{}{}
	return true
}

func (d *Deduper) release(projectID string) {
	d.mu.Lock()
	delete(d.inFlight, projectID)
	d.mu.Unlock()
}
