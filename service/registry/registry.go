// Package registry maps an ephemeral transport session to its durable
// identity, keyed by (sessionId, serverInstanceId). Backed by a store shared
// across the fleet so any instance can resolve a session it did not
// originate.
//
// All operations are best-effort: failures are logged and swallowed. A lost
// mapping degrades later lookups but must never crash a handshake, and a
// failed Resolve is indistinguishable from true absence.
package registry

import "context"

// Registry is the connection registry capability.
type Registry interface {
	// Persist upserts the session -> identity mapping.
	Persist(ctx context.Context, sessionID, identity, serverID string)

	// Remove deletes the mapping on disconnect.
	Remove(ctx context.Context, sessionID, serverID string)

	// Resolve returns the identity for a session, or "" when absent
	// (including after a lookup failure).
	Resolve(ctx context.Context, sessionID, serverID string) string
}

const connKeyPrefix = "socket_conn_"

func connKey(sessionID, serverID string) string {
	return connKeyPrefix + sessionID + "_" + serverID
}
