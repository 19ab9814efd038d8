package source

import (
	"context"
	"sync"
)

// MemorySource holds a document in memory. Set replaces it and notifies
// every active subscription.
type MemorySource struct {
	name string

	mu   sync.Mutex
	doc  []byte
	subs map[*Subscription]struct{}
}

// NewMemorySource creates a source named name holding doc.
func NewMemorySource(name string, doc []byte) *MemorySource {
	return &MemorySource{
		name: name,
		doc:  doc,
		subs: make(map[*Subscription]struct{}),
	}
}

func (m *MemorySource) String() string {
	return m.name
}

// Load returns a copy of the current document.
func (m *MemorySource) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.doc...), nil
}

// Set replaces the document.
func (m *MemorySource) Set(doc []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.doc = append([]byte(nil), doc...)
	for sub := range m.subs {
		sub.notify("document replaced")
	}
}

// Watch subscribes to Set calls.
func (m *MemorySource) Watch(ctx context.Context) (*Subscription, error) {
	sub, subCtx := newSubscription(ctx)

	m.mu.Lock()
	m.subs[sub] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-subCtx.Done()

		m.mu.Lock()
		delete(m.subs, sub)
		m.mu.Unlock()

		sub.finish()
	}()

	return sub, nil
}
