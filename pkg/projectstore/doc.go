// Package projectstore provides the persisted state used by the xray discovery
// pipeline: a small key-value registry (used for "seen" markers) and a per-project
// record cache holding the GraphQL results fetched for each discovered project.
//
// # Overview
//
// Two backends satisfy the Store interface:
//
//   - Client, backed by Redis (this package). Supports project event streaming.
//   - sqlite.Store, backed by a local SQLite file (internal/sqlite).
//
// # Seen markers
//
// A project is marked as seen by writing the key "projectId:<KEY>" with the
// project key as its value. The marker is derived from the project key alone;
// the tenant (cloud) identifier is intentionally not part of it.
//
// # Project records
//
// SaveProjectRecord is an upsert that merges by top-level GraphQL field name.
// Saving {"project": ...} and later {"projectStatusHistory": ...} for the same
// key leaves both fields on the record; saving the same field twice keeps the
// latest value.
//
// # Redis Schema
//
// All Redis keys follow the pattern: xray:{instance_name}:{entity}:{id}
//
// Key-value entries: xray:{instance_name}:kv:{key}
// Project records:   xray:{instance_name}:project:{project_key} (hash)
//
// Pub/Sub channels:
//
// Project events: xray:{instance_name}:project_events
//
// # Usage Example
//
//	client, err := projectstore.NewClient(&redis.Options{Addr: "localhost:6379"}, "default")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.Set(ctx, projectstore.SeenKey("ABC-123"), "ABC-123"); err != nil {
//		log.Fatal(err)
//	}
package projectstore
