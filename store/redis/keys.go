package redis

import "github.com/xraph/aegis/client"

// Redis key naming conventions for aegis data.
// All keys are prefixed with "aegis:" to avoid collisions.

const keyPrefix = "aegis:"

// recordKey returns the key for a client record: aegis:client:{id}
func recordKey(id string) string { return keyPrefix + "client:" + id }

// indexKey is the Sorted Set of every client ID scored by creation time.
const indexKey = keyPrefix + "clients"

// statusKey returns the Sorted Set of client IDs in one status:
// aegis:clients:{status}
func statusKey(s client.Status) string { return indexKey + ":" + string(s) }

// statuses lists every status that owns an index set.
var statuses = []client.Status{
	client.StatusPending,
	client.StatusInProgress,
	client.StatusCompleted,
	client.StatusFailed,
}
