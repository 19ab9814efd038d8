package source

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// FileSource is an HTML document on the local filesystem.
type FileSource struct {
	path string
}

// NewFileSource creates a source for the file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: filepath.Clean(path)}
}

func (f *FileSource) String() string {
	return f.path
}

// Load reads the whole file.
func (f *FileSource) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", f.path, err)
	}
	return data, nil
}

// Watch observes the file's directory so that editors which replace the file
// (write to temp, then rename) are still seen.
func (f *FileSource) Watch(ctx context.Context) (*Subscription, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	sub, subCtx := newSubscription(ctx)

	go func() {
		defer sub.finish()
		defer watcher.Close()

		for {
			select {
			case <-subCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != f.path {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					sub.notify(event.Op.String())
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[Source] Watch error on %s: %v", f.path, err)
				sub.report(fmt.Errorf("watch error on %s: %w", f.path, err))
			}
		}
	}()

	return sub, nil
}
