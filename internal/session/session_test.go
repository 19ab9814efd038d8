package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/xray/internal/discovery"
	"github.com/dyluth/xray/internal/fetch"
	"github.com/dyluth/xray/internal/graphql"
	"github.com/dyluth/xray/internal/source"
	"github.com/dyluth/xray/pkg/projectstore"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	cloudID = "1b2c3d4e-0000-4000-8000-00000000abcd"
	siteID  = "5f6e7d8c-1111-4111-8111-00000000dcba"
)

func projectLink(key string) string {
	return `<a href="https://home.atlassian.com/o/` + cloudID + `/s/` + siteID + `/project/` + key + `">` + key + `</a>`
}

func page(links ...string) []byte {
	doc := "<html><body><ul>"
	for _, l := range links {
		doc += "<li>" + l + "</li>"
	}
	return []byte(doc + "</ul></body></html>")
}

// gateway is an httptest GraphQL endpoint that records requests.
type gateway struct {
	mu       sync.Mutex
	requests []graphql.Request
	failView bool
}

func (g *gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req graphql.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	g.requests = append(g.requests, req)
	failView := g.failView
	g.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch req.Query {
	case graphql.ProjectViewQuery:
		if failView {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"project":{"key":"` + req.Variables["key"].(string) + `"}}}`))
	case graphql.ProjectStatusHistoryQuery:
		_, _ = w.Write([]byte(`{"data":{"projectStatusHistory":{"edges":[]}}}`))
	default:
		_, _ = w.Write([]byte(`{"errors":[{"message":"unknown document"}]}`))
	}
}

func (g *gateway) Requests() []graphql.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]graphql.Request(nil), g.requests...)
}

type harness struct {
	store   *projectstore.Client
	gateway *gateway
	source  *source.MemorySource
	queue   *fetch.Queue
	session *Session
}

func newHarness(t *testing.T, doc []byte) *harness {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := projectstore.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	gw := &gateway{}
	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)

	client, err := graphql.NewClient(graphql.Options{
		Endpoint: srv.URL,
		Cookies:  graphql.StaticCookie("tenant.session.token=abc"),
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)

	orch := fetch.NewOrchestrator(client, store, fetch.Options{InstanceName: "test-instance"})
	queue := fetch.NewQueue(orch, fetch.QueueOptions{Workers: 2, Capacity: 8})

	src := source.NewMemorySource("test-page", doc)
	sess, err := New(&Config{
		InstanceName: "test-instance",
		Source:       src,
		Claimer:      discovery.NewDeduper(store),
		Queue:        queue,
	})
	require.NoError(t, err)

	return &harness{store: store, gateway: gw, source: src, queue: queue, session: sess}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(&Config{})
	assert.Error(t, err)

	_, err = New(&Config{Source: source.NewMemorySource("x", nil)})
	assert.Error(t, err)

	_, err = New(&Config{Source: source.NewMemorySource("x", nil), Claimer: discovery.NewDeduper(nil)})
	assert.Error(t, err)
}

func TestScanOnce_EndToEndOnEmptyStore(t *testing.T) {
	h := newHarness(t, page(projectLink("ABC-123")))
	ctx := context.Background()
	h.queue.Start(ctx)
	defer h.queue.Stop()

	report, err := h.session.ScanOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Found)
	assert.Equal(t, 1, report.New)
	assert.NotEqual(t, uuid.Nil, report.ScanID)

	h.queue.Wait()

	marker, err := h.store.Get(ctx, "projectId:ABC-123")
	require.NoError(t, err)
	assert.Equal(t, "ABC-123", marker)

	requests := h.gateway.Requests()
	require.Len(t, requests, 2)
	assert.Equal(t, graphql.ProjectViewQuery, requests[0].Query)
	assert.Equal(t, "ABC-123", requests[0].Variables["key"])
	assert.Equal(t, cloudID, requests[0].Variables["cloudId"])
	assert.Equal(t, graphql.ProjectStatusHistoryQuery, requests[1].Query)
	assert.Equal(t, "ABC-123", requests[1].Variables["projectKey"])

	record, err := h.store.GetProjectRecord(ctx, "ABC-123")
	require.NoError(t, err)
	assert.Equal(t, []string{"project", "projectStatusHistory"}, record.FieldNames())
}

func TestScanOnce_IsIdempotent(t *testing.T) {
	h := newHarness(t, page(projectLink("ABC-123"), projectLink("ABC-123")))
	ctx := context.Background()
	h.queue.Start(ctx)
	defer h.queue.Stop()

	first, err := h.session.ScanOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Found)
	assert.Equal(t, 1, first.New)
	assert.Equal(t, 1, first.Known)

	second, err := h.session.ScanOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.New)
	assert.Equal(t, 2, second.Known)

	h.queue.Wait()
	assert.Len(t, h.gateway.Requests(), 2)
}

func TestScanOnce_PreSeenProjectIsNotFetched(t *testing.T) {
	h := newHarness(t, page(projectLink("ABC-123")))
	ctx := context.Background()
	require.NoError(t, h.store.Set(ctx, "projectId:ABC-123", "ABC-123"))
	h.queue.Start(ctx)
	defer h.queue.Stop()

	report, err := h.session.ScanOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.New)
	assert.Equal(t, 1, report.Known)

	h.queue.Wait()
	assert.Empty(t, h.gateway.Requests())
}

func TestScanOnce_ViewFailureStillPersistsHistory(t *testing.T) {
	h := newHarness(t, page(projectLink("ABC-123")))
	h.gateway.mu.Lock()
	h.gateway.failView = true
	h.gateway.mu.Unlock()
	ctx := context.Background()
	h.queue.Start(ctx)
	defer h.queue.Stop()

	_, err := h.session.ScanOnce(ctx)
	require.NoError(t, err)
	h.queue.Wait()

	assert.Len(t, h.gateway.Requests(), 2)

	record, err := h.store.GetProjectRecord(ctx, "ABC-123")
	require.NoError(t, err)
	assert.Equal(t, []string{"projectStatusHistory"}, record.FieldNames())
	assert.Equal(t, int64(1), h.queue.Stats().Failed)
}

// flakyStore fails Get for one key and defers to the real store otherwise.
type flakyStore struct {
	*projectstore.Client
	failKey string
}

func (f *flakyStore) Get(ctx context.Context, key string) (string, error) {
	if key == f.failKey {
		return "", errors.New("connection reset")
	}
	return f.Client.Get(ctx, key)
}

func TestScanOnce_StoreFailureIsIsolatedPerReference(t *testing.T) {
	h := newHarness(t, page(projectLink("AAA-1"), projectLink("BBB-2"), projectLink("CCC-3")))
	h.session.config.Claimer = discovery.NewDeduper(&flakyStore{Client: h.store, failKey: "projectId:BBB-2"})
	ctx := context.Background()
	h.queue.Start(ctx)
	defer h.queue.Stop()

	report, err := h.session.ScanOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Found)
	assert.Equal(t, 2, report.New)
	assert.Equal(t, 1, report.Failed)

	h.queue.Wait()

	records, err := h.store.ListProjectRecords(ctx)
	require.NoError(t, err)
	keys := make([]string, 0, len(records))
	for _, r := range records {
		keys = append(keys, r.ProjectKey)
	}
	assert.ElementsMatch(t, []string{"AAA-1", "CCC-3"}, keys)

	// The failed project was not marked, so a later pass can still claim it
	_, err = h.store.Get(ctx, "projectId:BBB-2")
	assert.True(t, projectstore.IsNotFound(err))
}

// cancellingClaimer claims every reference and cancels the scan's context
// before returning, as Session.Stop can while a pass is running.
type cancellingClaimer struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

func (c *cancellingClaimer) Claim(context.Context, projectstore.ProjectReference) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel()
	return true, nil
}

func TestScanOnce_ClaimedProjectIsQueuedEvenIfScanIsCancelled(t *testing.T) {
	h := newHarness(t, page(projectLink("ABC-123")))
	claimer := &cancellingClaimer{}
	h.session.config.Claimer = claimer
	h.queue.Start(context.Background())

	const passes = 50
	for i := 0; i < passes; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		claimer.mu.Lock()
		claimer.cancel = cancel
		claimer.mu.Unlock()

		report, err := h.session.ScanOnce(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, report.New, "pass %d", i)
		require.Zero(t, report.Failed, "pass %d", i)
	}

	h.queue.Stop()
	assert.Equal(t, int64(passes), h.queue.Stats().Submitted)
	assert.Len(t, h.gateway.Requests(), 2*passes)
}

func TestScanOnce_ConcurrentCallsFetchOnce(t *testing.T) {
	h := newHarness(t, page(projectLink("ABC-123")))
	ctx := context.Background()
	h.queue.Start(ctx)
	defer h.queue.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.session.ScanOnce(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	h.queue.Wait()

	assert.Len(t, h.gateway.Requests(), 2)
	stats := h.session.Stats()
	assert.Equal(t, int64(5), stats.Passes)
	assert.Equal(t, int64(1), stats.New)
	assert.Equal(t, "idle", stats.State)
}

func TestScanOnce_LoadFailure(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.session.ScanOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.session.Stats().Passes)
}

func TestSession_StartScansAndFollowsMutations(t *testing.T) {
	h := newHarness(t, page(projectLink("ABC-123")))
	ctx := context.Background()

	require.NoError(t, h.session.Start(ctx))
	assert.Error(t, h.session.Start(ctx))

	// Initial pass ran synchronously
	assert.Equal(t, int64(1), h.session.Stats().Passes)

	h.source.Set(page(projectLink("ABC-123"), projectLink("XYZ-9")))

	require.Eventually(t, func() bool {
		_, err := h.store.GetProjectRecord(ctx, "XYZ-9")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.session.Stop())
	require.NoError(t, h.session.Stop())

	stats := h.session.Stats()
	assert.GreaterOrEqual(t, stats.Passes, int64(2))
	assert.Equal(t, int64(2), stats.New)
	assert.Equal(t, int64(2), stats.Queue.Completed)

	// Stop drained every accepted fetch
	assert.Len(t, h.gateway.Requests(), 4)

	assert.Error(t, h.session.Start(ctx))
}
