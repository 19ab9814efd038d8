// Package session runs the observation loop: scan the document, claim new
// projects, and hand them to the fetch queue whenever the document changes.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dyluth/xray/internal/fetch"
	"github.com/dyluth/xray/internal/scanner"
	"github.com/dyluth/xray/internal/source"
	"github.com/dyluth/xray/pkg/projectstore"
	"github.com/google/uuid"
)

// Claimer decides whether a reference is newly discovered.
type Claimer interface {
	Claim(ctx context.Context, ref projectstore.ProjectReference) (bool, error)
}

// State is the session's current activity.
type State int32

const (
	StateIdle State = iota
	StateScanning
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	default:
		return "idle"
	}
}

// ScanReport summarises one scan pass.
type ScanReport struct {
	ScanID   uuid.UUID     `json:"scan_id"`
	Found    int           `json:"found"`
	New      int           `json:"new"`
	Known    int           `json:"known"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration_ns"`
}

// Stats are cumulative counters since the session was created.
type Stats struct {
	State  string           `json:"state"`
	Passes int64            `json:"passes"`
	Found  int64            `json:"found"`
	New    int64            `json:"new"`
	Known  int64            `json:"known"`
	Failed int64            `json:"failed"`
	Queue  fetch.QueueStats `json:"queue"`
}

// Config holds a session's collaborators.
type Config struct {
	InstanceName string
	Source       source.Source
	Claimer      Claimer
	Queue        *fetch.Queue
}

// Session is a long-lived scanner bound to one document source.
// Start and Stop bracket its lifetime; ScanOnce may also be used on its own.
type Session struct {
	config *Config

	scanMu sync.Mutex
	state  atomic.Int32

	passes atomic.Int64
	found  atomic.Int64
	fresh  atomic.Int64
	known  atomic.Int64
	failed atomic.Int64

	lifecycleMu sync.Mutex
	running     bool
	stopped     bool
	cancel      context.CancelFunc
	sub         *source.Subscription
	wg          sync.WaitGroup
}

// New creates a session. It does nothing until Start or ScanOnce is called.
func New(config *Config) (*Session, error) {
	if config.Source == nil {
		return nil, fmt.Errorf("session requires a source")
	}
	if config.Claimer == nil {
		return nil, fmt.Errorf("session requires a claimer")
	}
	if config.Queue == nil {
		return nil, fmt.Errorf("session requires a fetch queue")
	}

	return &Session{config: config}, nil
}

// Start attaches the document watcher, runs one scan immediately, then scans
// again on every delivered mutation until Stop is called or ctx ends.
//
// The watcher is attached before the initial scan so a change made during
// that scan still triggers another pass.
func (s *Session) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.running {
		return fmt.Errorf("session already started")
	}
	if s.stopped {
		return fmt.Errorf("session has been stopped")
	}

	loopCtx, cancel := context.WithCancel(ctx)

	sub, err := s.config.Source.Watch(loopCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to watch %s: %w", s.config.Source, err)
	}

	// Accepted fetches outlive the loop so Stop can drain them
	s.config.Queue.Start(context.WithoutCancel(ctx))

	s.cancel = cancel
	s.sub = sub
	s.running = true

	log.Printf("[Session] Started watching %s (instance='%s')", s.config.Source, s.config.InstanceName)
	s.logEvent("session_started", map[string]interface{}{
		"source": s.config.Source.String(),
	})

	if _, err := s.ScanOnce(loopCtx); err != nil {
		log.Printf("[Session] Initial scan failed: %v", err)
	}

	s.wg.Add(1)
	go s.loop(loopCtx, sub)

	return nil
}

func (s *Session) loop(ctx context.Context, sub *source.Subscription) {
	defer s.wg.Done()

	events := sub.Events()
	errors := sub.Errors()

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errors:
			if !ok {
				errors = nil
				continue
			}
			log.Printf("[Session] Source error: %v", err)
		case mutation, ok := <-events:
			if !ok {
				log.Printf("[Session] Source subscription ended")
				return
			}
			log.Printf("[Session] Mutation observed (%s), scanning", mutation.Reason)
			if _, err := s.ScanOnce(ctx); err != nil {
				log.Printf("[Session] Scan failed: %v", err)
			}
		}
	}
}

// Stop detaches the watcher, waits for the loop to exit, and drains the
// fetch queue. A stopped session cannot be restarted. Safe to call multiple
// times.
func (s *Session) Stop() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	s.stopped = true

	s.cancel()
	s.sub.Close()
	s.wg.Wait()
	s.config.Queue.Stop()

	stats := s.Stats()
	log.Printf("[Session] Stopped after %d passes (%d new, %d known, %d failed)",
		stats.Passes, stats.New, stats.Known, stats.Failed)
	s.logEvent("session_stopped", map[string]interface{}{
		"passes": stats.Passes,
		"new":    stats.New,
	})

	return nil
}

// ScanOnce runs a single scan pass over the current document. New projects
// are submitted to the queue; the pass does not wait for their fetches.
//
// Each reference is handled on its own: a store failure for one is logged and
// counted in Failed while the rest of the pass continues. Only a failure to
// load the document is returned as an error.
func (s *Session) ScanOnce(ctx context.Context) (*ScanReport, error) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	s.state.Store(int32(StateScanning))
	defer s.state.Store(int32(StateIdle))

	start := time.Now()
	report := &ScanReport{ScanID: uuid.New()}

	doc, err := s.config.Source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}

	refs := scanner.Scan(doc)
	report.Found = len(refs)

	for _, ref := range refs {
		isNew, err := s.config.Claimer.Claim(ctx, ref)
		if err != nil {
			report.Failed++
			log.Printf("[Session] Error claiming %s: %v", ref.ProjectID, err)
			s.logEvent("claim_failed", map[string]interface{}{
				"scan_id":     report.ScanID.String(),
				"project_key": ref.ProjectID,
				"error":       err.Error(),
			})
			continue
		}

		if !isNew {
			report.Known++
			continue
		}

		// The marker is already written: a cancelled scan must not drop the fetch
		if err := s.config.Queue.Submit(context.WithoutCancel(ctx), ref); err != nil {
			report.Failed++
			log.Printf("[Session] Failed to queue fetch for %s: %v", ref.ProjectID, err)
			continue
		}

		report.New++
		log.Printf("[Session] New project discovered: %s", ref)
		s.logEvent("project_discovered", map[string]interface{}{
			"scan_id":     report.ScanID.String(),
			"project_key": ref.ProjectID,
			"cloud_id":    ref.CloudID,
		})
	}

	report.Duration = time.Since(start)

	s.passes.Add(1)
	s.found.Add(int64(report.Found))
	s.fresh.Add(int64(report.New))
	s.known.Add(int64(report.Known))
	s.failed.Add(int64(report.Failed))

	s.logEvent("scan_completed", map[string]interface{}{
		"scan_id":     report.ScanID.String(),
		"found":       report.Found,
		"new":         report.New,
		"known":       report.Known,
		"failed":      report.Failed,
		"duration_ms": report.Duration.Milliseconds(),
	})

	return report, nil
}

// State returns whether a scan is in progress.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Stats returns cumulative counters.
func (s *Session) Stats() Stats {
	return Stats{
		State:  s.State().String(),
		Passes: s.passes.Load(),
		Found:  s.found.Load(),
		New:    s.fresh.Load(),
		Known:  s.known.Load(),
		Failed: s.failed.Load(),
		Queue:  s.config.Queue.Stats(),
	}
}

// logEvent logs a structured event in JSON format.
func (s *Session) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	if eventType == "claim_failed" {
		data["level"] = "error"
	}
	data["component"] = "session"
	data["event_type"] = eventType
	data["instance"] = s.config.InstanceName

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Session] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
