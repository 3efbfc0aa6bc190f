package dispatcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicForRoom(t *testing.T) {
	assert.Equal(t, "new-messages-room-abc", TopicForRoom("abc"))
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := Envelope{ID: "m1", RoomID: "r1", Ts: 42}
	raw, err := env.Marshal()
	require.NoError(t, err)

	parsed, err := ParseEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, env, parsed)
}

func TestParseEnvelopeRejectsIncompleteRecords(t *testing.T) {
	_, err := ParseEnvelope([]byte("not json"))
	assert.Error(t, err)

	_, err = ParseEnvelope([]byte(`{"roomId":"r1","ts":1}`))
	assert.Error(t, err)

	_, err = ParseEnvelope([]byte(`{"id":"m1","ts":1}`))
	assert.Error(t, err)
}

func TestNoopLifecycleContract(t *testing.T) {
	ctx := context.Background()
	n := NewNoop()

	// Unsubscribe before any subscribe errors loudly.
	assert.Error(t, n.Unsubscribe(ctx, "u1", "r1"))

	require.NoError(t, n.Subscribe(ctx, "u1", "r1"))
	require.NoError(t, n.Subscribe(ctx, "u1", "r1")) // idempotent

	require.NoError(t, n.Unsubscribe(ctx, "u1", "r1"))
	assert.Error(t, n.Unsubscribe(ctx, "u1", "r1"))
}
