package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/dyluth/xray/pkg/projectstore"
)

// OutputFormat specifies how streamed events are rendered.
type OutputFormat string

const (
	// OutputFormatDefault prints one human-readable line per event
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON prints one JSON object per line
	OutputFormatJSON OutputFormat = "json"
)

// EventSubscriber opens a project event subscription.
type EventSubscriber interface {
	SubscribeProjectEvents(ctx context.Context) (*projectstore.Subscription, error)
}

// StreamProjectEvents writes project events to w until ctx is cancelled or
// the subscription ends.
func StreamProjectEvents(ctx context.Context, store EventSubscriber, instanceName string, format OutputFormat, w io.Writer) error {
	sub, err := store.SubscribeProjectEvents(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	if format == OutputFormatDefault {
		fmt.Fprintf(w, "Watching project events for instance '%s' (Ctrl+C to stop)\n", instanceName)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-sub.Errors():
			if !ok {
				return nil
			}
			log.Printf("[Watch] Skipping bad event: %v", err)

		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := writeEvent(w, event, format); err != nil {
				return err
			}
		}
	}
}

func writeEvent(w io.Writer, event *projectstore.ProjectEvent, format OutputFormat) error {
	switch format {
	case OutputFormatJSON:
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	default:
		ts := time.UnixMilli(event.SavedAtMs).Format("15:04:05")
		_, err := fmt.Fprintf(w, "[%s] 📦 %s saved: %s\n", ts, event.ProjectKey, strings.Join(event.Fields, ", "))
		return err
	}
}
