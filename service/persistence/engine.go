// Package persistence owns message durability for chat rooms.
//
// The Engine capability interface has four interchangeable backends (local,
// redis, cassandra, mongo) selected by configuration. Storage errors never
// escape the engine boundary: they are logged and converted into a typed
// failure result, and callers must check Success (or a nil persist result)
// on every call.
package persistence

import (
	"context"

	"QChat/module/chat/model"
)

// TsOptions bounds a timestamp-window read. Zero values mean "unbounded"
// (StartTs 0, EndTs infinite) and a default limit.
type TsOptions struct {
	StartTs int64
	EndTs   int64
	Limit   int
}

// IDOptions selects messages by id within one room.
type IDOptions struct {
	MessageIDs []string
	Limit      int
}

// StreamOutput is the typed result of any stream read.
type StreamOutput struct {
	Success       bool
	FailureReason string
	Messages      []*model.Message
}

// Engine is the message persistence capability.
type Engine interface {
	// InitializeStorageForRoom performs idempotent per-room setup (for
	// example creating a search index). Safe to call on every connect;
	// backends with no per-room setup return true unconditionally.
	InitializeStorageForRoom(ctx context.Context, roomID string) bool

	// PersistMessage assigns the message id, computes the late flag against
	// the room's maximum previously persisted Ts (late if strictly less)
	// and stores the message. Returns nil on storage failure; callers must
	// treat a nil result as a hard failure of the send.
	PersistMessage(ctx context.Context, identity, roomID string, draft *model.Draft) *model.Message

	// StreamByTimestamp returns the most recent Limit messages whose Ts
	// falls inside [StartTs, EndTs] ordered newest-first, unioned with all
	// messages in the room that are late, unread and not addressed by the
	// caller. The union is NOT deduplicated or re-sorted: a message that
	// satisfies both filters may appear twice, and result order across the
	// two segments is unspecified.
	StreamByTimestamp(ctx context.Context, identity, roomID string, opts TsOptions) StreamOutput

	// StreamByIDs is a point lookup by message id set, used by the
	// distribution relay to refetch a just-published message's canonical
	// stored form.
	StreamByIDs(ctx context.Context, roomID string, opts IDOptions) StreamOutput

	// UpdateReadStatus marks each id read=true, but only where the message
	// is addressed to identity (only the recipient may acknowledge). Ids
	// not found or addressed to the other party are silently skipped.
	// Returns false only when the room has no history at all or on a
	// storage failure.
	UpdateReadStatus(ctx context.Context, identity, roomID string, messageIDs []string) bool
}

const defaultStreamLimit = 10
