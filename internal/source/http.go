package source

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/dyluth/xray/internal/graphql"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultTimeout      = 30 * time.Second
)

// HTTPSource is a remote HTML page, re-fetched on a fixed interval.
// A Mutation is emitted whenever the body's digest changes.
type HTTPSource struct {
	url          string
	pollInterval time.Duration
	cookies      graphql.CookieProvider
	httpClient   *http.Client
}

// NewHTTPSource creates a polling source for url.
func NewHTTPSource(url string, opts Options) *HTTPSource {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	return &HTTPSource{
		url:          url,
		pollInterval: opts.PollInterval,
		cookies:      opts.Cookies,
		httpClient:   &http.Client{Timeout: opts.Timeout},
	}
}

func (h *HTTPSource) String() string {
	return h.url
}

// Load performs a GET and returns the body. Non-2xx responses are errors.
func (h *HTTPSource) Load(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", h.url, err)
	}
	req.Header.Set("Accept", "text/html")

	if h.cookies != nil {
		cookie, err := h.cookies.CookieHeader(ctx, h.url)
		if err != nil {
			return nil, fmt.Errorf("failed to get cookie header: %w", err)
		}
		if cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", h.url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", h.url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetching %s returned status %d", h.url, resp.StatusCode)
	}

	return body, nil
}

// Watch polls the page until the subscription is closed. The baseline digest
// is taken before Watch returns, so any change after that produces a Mutation.
// If the baseline cannot be loaded, the first successful poll counts as a change.
func (h *HTTPSource) Watch(ctx context.Context) (*Subscription, error) {
	sub, subCtx := newSubscription(ctx)

	last := []byte{}
	if body, err := h.Load(subCtx); err == nil {
		last = digest(body)
	} else {
		log.Printf("[Source] Baseline load of %s failed: %v", h.url, err)
	}

	go func() {
		defer sub.finish()

		ticker := time.NewTicker(h.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-subCtx.Done():
				return
			case <-ticker.C:
				body, err := h.Load(subCtx)
				if err != nil {
					if subCtx.Err() != nil {
						return
					}
					log.Printf("[Source] Poll of %s failed: %v", h.url, err)
					sub.report(err)
					continue
				}

				sum := digest(body)
				if !bytes.Equal(sum, last) {
					sub.notify("content changed")
				}
				last = sum
			}
		}
	}()

	return sub, nil
}

func digest(body []byte) []byte {
	sum := sha256.Sum256(body)
	return sum[:]
}
