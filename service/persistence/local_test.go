package persistence

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QChat/module/chat/model"
)

func draft(channel string, ts int64, content string) *model.Draft {
	return &model.Draft{Channel: channel, Ts: ts, Content: content, Type: model.ContentTypeText}
}

func TestLocalPersistAssignsIDAndLateFlag(t *testing.T) {
	ctx := context.Background()
	e := NewLocalEngine()

	first := e.PersistMessage(ctx, "u1", "room", draft("u2", 100, "hi"))
	require.NotNil(t, first)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.Late)

	// Increasing timestamps never mark late.
	second := e.PersistMessage(ctx, "u1", "room", draft("u2", 200, "again"))
	require.NotNil(t, second)
	assert.False(t, second.Late)

	// Behind the room max at persist time, so late forever.
	straggler := e.PersistMessage(ctx, "u2", "room", draft("u1", 150, "delayed"))
	require.NotNil(t, straggler)
	assert.True(t, straggler.Late)
}

func TestLocalPersistEqualTsNotLate(t *testing.T) {
	ctx := context.Background()
	e := NewLocalEngine()

	e.PersistMessage(ctx, "u1", "room", draft("u2", 100, "a"))
	tie := e.PersistMessage(ctx, "u1", "room", draft("u2", 100, "b"))
	require.NotNil(t, tie)
	assert.False(t, tie.Late)
}

func TestLocalStreamByTimestampNewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	e := NewLocalEngine()

	e.PersistMessage(ctx, "u1", "room", draft("u2", 100, "one"))
	e.PersistMessage(ctx, "u1", "room", draft("u2", 300, "three"))
	e.PersistMessage(ctx, "u1", "room", draft("u2", 200, "two"))

	out := e.StreamByTimestamp(ctx, "u1", "room", TsOptions{Limit: 2})
	require.True(t, out.Success)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, int64(300), out.Messages[0].Ts)
	assert.Equal(t, int64(200), out.Messages[1].Ts)
}

func TestLocalStreamSurfacesLateMessagesOutsideWindow(t *testing.T) {
	ctx := context.Background()
	e := NewLocalEngine()

	e.PersistMessage(ctx, "u1", "room", draft("u2", 1000, "first"))
	e.PersistMessage(ctx, "u1", "room", draft("u2", 2000, "second"))
	// Arrives after ts 2000 was persisted, so it carries the late flag.
	late := e.PersistMessage(ctx, "u1", "room", draft("u2", 500, "straggler"))
	require.True(t, late.Late)

	// u2 asks for only the newest message; the late straggler from u1 still
	// rides along because it is late, unread and not u2's own.
	out := e.StreamByTimestamp(ctx, "u2", "room", TsOptions{Limit: 1})
	require.True(t, out.Success)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, int64(2000), out.Messages[0].Ts)
	assert.Equal(t, late.ID, out.Messages[1].ID)

	// The author never gets their own late message appended.
	own := e.StreamByTimestamp(ctx, "u1", "room", TsOptions{Limit: 1})
	require.Len(t, own.Messages, 1)
}

func TestLocalStreamUnionNotDeduplicated(t *testing.T) {
	ctx := context.Background()
	e := NewLocalEngine()

	e.PersistMessage(ctx, "u1", "room", draft("u2", 1000, "first"))
	late := e.PersistMessage(ctx, "u1", "room", draft("u2", 500, "straggler"))
	require.True(t, late.Late)

	// A window wide enough to contain the late message yields it twice: once
	// in the window segment, once in the late segment.
	out := e.StreamByTimestamp(ctx, "u2", "room", TsOptions{Limit: 10})
	require.True(t, out.Success)
	seen := 0
	for _, m := range out.Messages {
		if m.ID == late.ID {
			seen++
		}
	}
	assert.Equal(t, 2, seen)
}

func TestLocalStreamByIDs(t *testing.T) {
	ctx := context.Background()
	e := NewLocalEngine()

	a := e.PersistMessage(ctx, "u1", "room", draft("u2", 100, "a"))
	b := e.PersistMessage(ctx, "u1", "room", draft("u2", 200, "b"))
	e.PersistMessage(ctx, "u1", "room", draft("u2", 300, "c"))

	out := e.StreamByIDs(ctx, "room", IDOptions{MessageIDs: []string{a.ID, b.ID}, Limit: 10})
	require.True(t, out.Success)
	require.Len(t, out.Messages, 2)

	empty := e.StreamByIDs(ctx, "room", IDOptions{MessageIDs: []string{"missing"}})
	require.True(t, empty.Success)
	assert.Empty(t, empty.Messages)
}

func TestLocalUpdateReadStatusOnlyRecipientFlips(t *testing.T) {
	ctx := context.Background()
	e := NewLocalEngine()

	// u1 -> u2: only u2 may acknowledge it.
	msg := e.PersistMessage(ctx, "u1", "room", draft("u2", 100, "hi"))
	require.NotNil(t, msg)

	ok := e.UpdateReadStatus(ctx, "u1", "room", []string{msg.ID})
	assert.True(t, ok)
	refetched := e.StreamByIDs(ctx, "room", IDOptions{MessageIDs: []string{msg.ID}})
	require.Len(t, refetched.Messages, 1)
	assert.False(t, refetched.Messages[0].Read)

	ok = e.UpdateReadStatus(ctx, "u2", "room", []string{msg.ID})
	assert.True(t, ok)
	refetched = e.StreamByIDs(ctx, "room", IDOptions{MessageIDs: []string{msg.ID}})
	require.Len(t, refetched.Messages, 1)
	assert.True(t, refetched.Messages[0].Read)
}

func TestLocalUpdateReadStatusEmptyRoom(t *testing.T) {
	e := NewLocalEngine()
	assert.False(t, e.UpdateReadStatus(context.Background(), "u1", "empty", []string{"x"}))
}

func TestLocalResultsAreSnapshots(t *testing.T) {
	ctx := context.Background()
	e := NewLocalEngine()

	msg := e.PersistMessage(ctx, "u1", "room", draft("u2", 100, "hi"))
	require.NotNil(t, msg)

	before := e.StreamByIDs(ctx, "room", IDOptions{MessageIDs: []string{msg.ID}})
	require.Len(t, before.Messages, 1)

	require.True(t, e.UpdateReadStatus(ctx, "u2", "room", []string{msg.ID}))

	// A result handed out earlier keeps the state it was read with; only a
	// fresh read observes the flip. Mutating a result must not reach storage
	// either.
	assert.False(t, before.Messages[0].Read)
	before.Messages[0].Content = "scribbled"

	after := e.StreamByIDs(ctx, "room", IDOptions{MessageIDs: []string{msg.ID}})
	require.Len(t, after.Messages, 1)
	assert.True(t, after.Messages[0].Read)
	assert.Equal(t, "hi", after.Messages[0].Content)
}

func TestLocalConcurrentReadsAndAcknowledges(t *testing.T) {
	ctx := context.Background()
	e := NewLocalEngine()

	msg := e.PersistMessage(ctx, "u1", "room", draft("u2", 100, "hi"))
	require.NotNil(t, msg)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			out := e.StreamByIDs(ctx, "room", IDOptions{MessageIDs: []string{msg.ID}})
			for _, m := range out.Messages {
				_ = m.Read
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			e.UpdateReadStatus(ctx, "u2", "room", []string{msg.ID})
		}
	}()
	wg.Wait()
}
