// Package source provides the HTML documents that xray scans and the change
// notifications that trigger re-scans.
package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dyluth/xray/internal/graphql"
)

// Mutation signals that the document changed since the last delivery.
// Bursts of changes are coalesced into a single Mutation.
type Mutation struct {
	At     time.Time
	Reason string
}

// Source is an observable HTML document.
type Source interface {
	// Load returns the current document snapshot.
	Load(ctx context.Context) ([]byte, error)
	// Watch starts observing the document. Cancelling ctx or closing the
	// subscription stops observation.
	Watch(ctx context.Context) (*Subscription, error)
	String() string
}

// Options configures sources built by New.
type Options struct {
	PollInterval time.Duration         // HTTP sources only (default 5s)
	Cookies      graphql.CookieProvider // Optional, HTTP sources only
	Timeout      time.Duration         // Per-request timeout for HTTP sources (default 30s)
}

// New returns an HTTPSource for http(s) URLs and a FileSource otherwise.
func New(target string, opts Options) (Source, error) {
	if strings.TrimSpace(target) == "" {
		return nil, fmt.Errorf("source target cannot be empty")
	}

	if u, err := url.Parse(target); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return NewHTTPSource(target, opts), nil
	}

	return NewFileSource(target), nil
}

// Subscription delivers Mutations for one Watch call.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events chan Mutation
	errors chan error
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newSubscription(ctx context.Context) (*Subscription, context.Context) {
	subCtx, cancel := context.WithCancel(ctx)
	return &Subscription{
		events: make(chan Mutation, 1),
		errors: make(chan error, 10),
		cancel: cancel,
		done:   make(chan struct{}),
	}, subCtx
}

// Events returns the mutation channel. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan Mutation {
	return s.events
}

// Errors returns the channel of non-fatal watch errors.
// The subscription continues after errors.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and waits for its goroutine to exit.
// Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}

// notify queues a Mutation unless one is already pending.
func (s *Subscription) notify(reason string) {
	select {
	case s.events <- Mutation{At: time.Now(), Reason: reason}:
	default:
	}
}

// report forwards err without blocking the watcher; errors are dropped when
// nobody is reading.
func (s *Subscription) report(err error) {
	select {
	case s.errors <- err:
	default:
	}
}

// finish closes the channels. Called once by the watcher goroutine on exit.
func (s *Subscription) finish() {
	close(s.events)
	close(s.errors)
	close(s.done)
}
