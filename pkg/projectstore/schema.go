package projectstore

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name so that
// several xray instances can share one Redis server.
//
// Key pattern: xray:{instance_name}:{entity}:{id}
// Channel pattern: xray:{instance_name}:{event_type}_events

// SeenKeyPrefix prefixes every seen marker in the key-value registry.
const SeenKeyPrefix = "projectId:"

// SeenKey returns the registry key marking a project key as already discovered.
// The cloud ID is not part of the key: two tenants sharing a project key share a marker.
func SeenKey(projectID string) string {
	return SeenKeyPrefix + projectID
}

// KVKey returns the Redis key for a key-value registry entry.
// Pattern: xray:{instance_name}:kv:{key}
func KVKey(instanceName, key string) string {
	return fmt.Sprintf("xray:%s:kv:%s", instanceName, key)
}

// ProjectKey returns the Redis key for a project record hash.
// Pattern: xray:{instance_name}:project:{project_key}
func ProjectKey(instanceName, projectKey string) string {
	return fmt.Sprintf("xray:%s:project:%s", instanceName, projectKey)
}

// ProjectEventsChannel returns the Pub/Sub channel name for project record events.
// Pattern: xray:{instance_name}:project_events
func ProjectEventsChannel(instanceName string) string {
	return fmt.Sprintf("xray:%s:project_events", instanceName)
}
