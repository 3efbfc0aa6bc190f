package persistence

import (
	"context"
	"math"
	"sort"
	"sync"

	"QChat/module/chat/model"
	"QChat/tools/ids"
)

// LocalEngine keeps room histories in process memory. Single process only;
// nothing survives a restart. Useful for development and tests.
type LocalEngine struct {
	mu       sync.RWMutex
	messages map[string][]*model.Message // roomID -> arrival-ordered history
}

func NewLocalEngine() *LocalEngine {
	return &LocalEngine{messages: make(map[string][]*model.Message)}
}

// InitializeStorageForRoom has no per-room setup locally.
func (e *LocalEngine) InitializeStorageForRoom(ctx context.Context, roomID string) bool {
	return true
}

func (e *LocalEngine) PersistMessage(ctx context.Context, identity, roomID string, draft *model.Draft) *model.Message {
	e.mu.Lock()
	defer e.mu.Unlock()

	history := e.messages[roomID]
	maxTs := int64(math.MinInt64)
	for _, m := range history {
		if m.Ts > maxTs {
			maxTs = m.Ts
		}
	}

	msg := &model.Message{
		ID:      ids.Generate(),
		Ts:      draft.Ts,
		Read:    false,
		Late:    len(history) > 0 && draft.Ts < maxTs,
		Channel: draft.Channel,
		From:    identity,
		Content: draft.Content,
		Type:    draft.Type,
	}
	e.messages[roomID] = append(history, msg)
	return clone(msg)
}

// Every result leaving the engine is a copy: UpdateReadStatus mutates the
// stored structs in place and must not race with messages already handed to
// callers.
func clone(m *model.Message) *model.Message {
	c := *m
	return &c
}

func (e *LocalEngine) StreamByTimestamp(ctx context.Context, identity, roomID string, opts TsOptions) StreamOutput {
	e.mu.RLock()
	defer e.mu.RUnlock()

	history := e.messages[roomID]

	start := opts.StartTs
	end := opts.EndTs
	if end == 0 {
		end = math.MaxInt64
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultStreamLimit
	}

	windowed := make([]*model.Message, 0, len(history))
	for _, m := range history {
		if m.Ts >= start && m.Ts <= end {
			windowed = append(windowed, clone(m))
		}
	}
	sort.SliceStable(windowed, func(i, j int) bool { return windowed[i].Ts > windowed[j].Ts })
	if len(windowed) > limit {
		windowed = windowed[:limit]
	}

	// Late, unread messages not authored by the caller always surface, even
	// outside the requested window. The union is neither deduplicated nor
	// re-sorted.
	for _, m := range history {
		if m.Late && !m.Read && m.From != identity {
			windowed = append(windowed, clone(m))
		}
	}

	return StreamOutput{Success: true, Messages: windowed}
}

func (e *LocalEngine) StreamByIDs(ctx context.Context, roomID string, opts IDOptions) StreamOutput {
	e.mu.RLock()
	defer e.mu.RUnlock()

	wanted := make(map[string]bool, len(opts.MessageIDs))
	for _, id := range opts.MessageIDs {
		wanted[id] = true
	}

	out := make([]*model.Message, 0, len(opts.MessageIDs))
	for _, m := range e.messages[roomID] {
		if wanted[m.ID] {
			out = append(out, clone(m))
			if opts.Limit > 0 && len(out) >= opts.Limit {
				break
			}
		}
	}
	return StreamOutput{Success: true, Messages: out}
}

func (e *LocalEngine) UpdateReadStatus(ctx context.Context, identity, roomID string, messageIDs []string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	history := e.messages[roomID]
	if len(history) == 0 {
		return false
	}

	for _, id := range messageIDs {
		for _, m := range history {
			if m.ID == id && m.Channel == identity {
				m.Read = true
			}
		}
	}
	return true
}
