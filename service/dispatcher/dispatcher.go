// Package dispatcher fans newly persisted messages out to the other server
// instances of the fleet.
//
// Each instance keeps one publisher and a dynamic, per-room set of broker
// subscribers. The broker record is a minimal {id, roomId, ts} envelope: the
// relay on the receiving side refetches the canonical stored message from
// the persistence engine before pushing it to locally grouped sockets, so
// payload size and schema versioning never ride on the broker.
package dispatcher

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
)

// TopicPrefix is shared by every distribution backend; the room id is the
// suffix.
const TopicPrefix = "new-messages-room-"

// TopicForRoom derives the broker topic (or subject) for a room.
func TopicForRoom(roomID string) string {
	return TopicPrefix + roomID
}

// Envelope is the broker record value. Content deliberately excluded.
type Envelope struct {
	ID     string `json:"id"`
	RoomID string `json:"roomId"`
	Ts     int64  `json:"ts"`
}

func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, errors.Wrap(err, "parse envelope")
	}
	if env.ID == "" || env.RoomID == "" {
		return Envelope{}, errors.New("envelope missing id or roomId")
	}
	return env, nil
}

// Relay receives inbound envelopes from a broker subscriber and pushes the
// refetched message to the sockets grouped under the room on this instance.
type Relay interface {
	RelayNewMessage(ctx context.Context, roomID, messageID string)
}

// RelayFunc adapts a function to the Relay interface.
type RelayFunc func(ctx context.Context, roomID, messageID string)

func (f RelayFunc) RelayNewMessage(ctx context.Context, roomID, messageID string) {
	f(ctx, roomID, messageID)
}

// Distributor is the distribution capability.
type Distributor interface {
	// Subscribe ensures a live subscriber exists for the room on this
	// instance. Idempotent: concurrent or repeated calls for one room
	// result in exactly one subscriber. New subscribers start at the
	// current offset only; history is never redelivered over the broker.
	Subscribe(ctx context.Context, identity, roomID string) error

	// Unsubscribe tears down this instance's subscriber for the room and
	// errors loudly when none is registered.
	Unsubscribe(ctx context.Context, identity, roomID string) error

	// Publish writes the message envelope, keyed by message id, to the
	// room's topic. Distribution is best-effort: the caller logs a failure
	// and moves on, the send was already acknowledged once storage
	// succeeded.
	Publish(ctx context.Context, roomID string, env Envelope) error

	Close() error
}

// Noop is the "none" distribution backend for single-instance deployments.
// It tracks room registrations so the subscribe/unsubscribe lifecycle keeps
// its contract, but nothing leaves the process.
type Noop struct {
	mu    sync.Mutex
	rooms map[string]bool
}

func NewNoop() *Noop {
	return &Noop{rooms: make(map[string]bool)}
}

func (n *Noop) Subscribe(ctx context.Context, identity, roomID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rooms[roomID] = true
	return nil
}

func (n *Noop) Unsubscribe(ctx context.Context, identity, roomID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.rooms[roomID] {
		return errors.Errorf("no subscriber registered for room %s", roomID)
	}
	delete(n.rooms, roomID)
	return nil
}

func (n *Noop) Publish(ctx context.Context, roomID string, env Envelope) error {
	return nil
}

func (n *Noop) Close() error { return nil }
