package kafka

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shopify/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QChat/service/dispatcher"
)

// stubGroup blocks in Consume until the session context is cancelled, like a
// healthy consumer group with no traffic.
type stubGroup struct {
	closed atomic.Bool
}

func (g *stubGroup) Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (g *stubGroup) Errors() <-chan error { return nil }

func (g *stubGroup) Close() error {
	g.closed.Store(true)
	return nil
}

func newStubbedDistributor(created *atomic.Int32) *Distributor {
	d := &Distributor{
		cfg:   Config{InstanceID: "inst-1"},
		relay: dispatcher.RelayFunc(func(ctx context.Context, roomID, messageID string) {}),
		rooms: make(map[string]*roomConsumer),
	}
	d.newGroup = func(groupID string) (sarama.ConsumerGroup, error) {
		created.Add(1)
		return &stubGroup{}, nil
	}
	return d
}

func TestSubscribeIsIdempotentUnderConcurrency(t *testing.T) {
	var created atomic.Int32
	d := newStubbedDistributor(&created)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, d.Subscribe(ctx, "u1", "room-a"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	require.NoError(t, d.Unsubscribe(ctx, "u1", "room-a"))
}

func TestUnsubscribeUnknownRoomErrors(t *testing.T) {
	var created atomic.Int32
	d := newStubbedDistributor(&created)

	err := d.Unsubscribe(context.Background(), "u1", "never-subscribed")
	assert.Error(t, err)
}

func TestUnsubscribeStopsTheConsumeLoop(t *testing.T) {
	var created atomic.Int32
	d := newStubbedDistributor(&created)
	ctx := context.Background()

	require.NoError(t, d.Subscribe(ctx, "u1", "room-a"))

	done := make(chan struct{})
	go func() {
		assert.NoError(t, d.Unsubscribe(ctx, "u1", "room-a"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("unsubscribe did not drain the consumer")
	}

	// A fresh subscribe after teardown builds a new group.
	require.NoError(t, d.Subscribe(ctx, "u1", "room-a"))
	assert.Equal(t, int32(2), created.Load())
}

func TestGroupIDScopedToInstanceAndRoom(t *testing.T) {
	var created atomic.Int32
	d := newStubbedDistributor(&created)
	assert.Equal(t, "inst-1-room-a", d.groupID("room-a"))
}
