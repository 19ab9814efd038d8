package projectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client provides instance-scoped Redis operations for the xray store.
// All keys and channels are automatically namespaced with the instance name.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

var _ Store = (*Client)(nil)

// NewClient creates a new store client for the specified instance.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: xray instance identifier (must not be empty)
//
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Used by the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// InstanceName returns the namespace this client writes under.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// Get reads a key-value registry entry.
// Returns ("", redis.Nil) if the key doesn't exist. Use IsNotFound() to check.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	value, err := c.rdb.Get(ctx, KVKey(c.instanceName, key)).Result()
	if err == redis.Nil {
		return "", redis.Nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read key %q from Redis: %w", key, err)
	}
	return value, nil
}

// Set writes a key-value registry entry with no expiry.
func (c *Client) Set(ctx context.Context, key, value string) error {
	if err := c.rdb.Set(ctx, KVKey(c.instanceName, key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write key %q to Redis: %w", key, err)
	}
	return nil
}

// SaveProjectRecord upserts GraphQL data onto a project's record hash and publishes
// a ProjectEvent to xray:{instance}:project_events.
//
// Each top-level field of data replaces the same field on the record; other
// fields are left untouched. created_at_ms is only written on the first save.
func (c *Client) SaveProjectRecord(ctx context.Context, projectKey string, data map[string]json.RawMessage) error {
	if projectKey == "" {
		return fmt.Errorf("project key cannot be empty")
	}

	now := time.Now().UnixMilli()
	hash, err := RecordToHash(projectKey, data, now)
	if err != nil {
		return fmt.Errorf("failed to serialize project record: %w", err)
	}

	key := ProjectKey(c.instanceName, projectKey)
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, hash)
		pipe.HSetNX(ctx, key, "created_at_ms", now)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write project record to Redis: %w", err)
	}

	event := ProjectEvent{
		ProjectKey: projectKey,
		Fields:     sortedKeys(data),
		SavedAtMs:  now,
	}
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal project event: %w", err)
	}

	if err := c.rdb.Publish(ctx, ProjectEventsChannel(c.instanceName), eventJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish project event: %w", err)
	}

	return nil
}

// GetProjectRecord retrieves a project record by key.
// Returns (nil, redis.Nil) if the record doesn't exist.
func (c *Client) GetProjectRecord(ctx context.Context, projectKey string) (*ProjectRecord, error) {
	hashData, err := c.rdb.HGetAll(ctx, ProjectKey(c.instanceName, projectKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read project record from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	record, err := HashToRecord(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize project record: %w", err)
	}

	return record, nil
}

// ListProjectRecords returns every project record for the instance, oldest first.
// Uses SCAN so large instances don't block the server. Records that fail to
// deserialize are skipped.
func (c *Client) ListProjectRecords(ctx context.Context) ([]*ProjectRecord, error) {
	prefix := ProjectKey(c.instanceName, "")
	iter := c.rdb.Scan(ctx, 0, prefix+"*", 0).Iterator()

	var records []*ProjectRecord
	for iter.Next(ctx) {
		projectKey := strings.TrimPrefix(iter.Val(), prefix)

		record, err := c.GetProjectRecord(ctx, projectKey)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		records = append(records, record)
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan project records: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAtMs == records[j].CreatedAtMs {
			return records[i].ProjectKey < records[j].ProjectKey
		}
		return records[i].CreatedAtMs < records[j].CreatedAtMs
	})

	return records, nil
}

// ListSeen returns every project key with a seen marker, sorted.
func (c *Client) ListSeen(ctx context.Context) ([]string, error) {
	prefix := KVKey(c.instanceName, SeenKeyPrefix)
	iter := c.rdb.Scan(ctx, 0, prefix+"*", 0).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan seen markers: %w", err)
	}

	sort.Strings(keys)
	return keys, nil
}

// ForgetSeen deletes the seen marker for projectID so the next scan that
// encounters it will fetch it again. Reports whether a marker was removed.
func (c *Client) ForgetSeen(ctx context.Context, projectID string) (bool, error) {
	n, err := c.rdb.Del(ctx, KVKey(c.instanceName, SeenKey(projectID))).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete seen marker: %w", err)
	}
	return n > 0, nil
}

// RedisClient exposes the underlying client for tooling that needs raw access.
func (c *Client) RedisClient() *redis.Client {
	return c.rdb
}

// Subscription represents an active Pub/Sub subscription to project events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *ProjectEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of project events.
// The channel is closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *ProjectEvent {
	return s.events
}

// Errors returns the channel of non-fatal subscription errors.
// The subscription continues after errors - bad messages are skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeProjectEvents subscribes to project record events for this instance.
// Context cancellation also stops the subscription.
//
// Events are delivered on a buffered channel (size 10). Redis Pub/Sub is
// at-most-once: a slow subscriber may miss events.
func (c *Client) SubscribeProjectEvents(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, ProjectEventsChannel(c.instanceName))

	// Wait for the subscription to be confirmed so no early publish is lost
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to project events: %w", err)
	}

	eventsChan := make(chan *ProjectEvent, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event ProjectEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal project event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
