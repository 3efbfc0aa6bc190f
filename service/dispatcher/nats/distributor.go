// Package nats is the NATS distribution backend: one core subscription per
// subscribed room. Core subjects only deliver from subscription time
// onwards, which matches the contract that history never rides the broker.
package nats

import (
	"context"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"QChat/logger"
	"QChat/service/dispatcher"
)

type Config struct {
	URL  string
	Name string
}

type Distributor struct {
	nc    *nats.Conn
	relay dispatcher.Relay

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

func NewDistributor(cfg Config, relay dispatcher.Relay) (*Distributor, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500 * time.Millisecond),
		nats.Timeout(3 * time.Second),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "nats connect")
	}
	return &Distributor{
		nc:    nc,
		relay: relay,
		subs:  make(map[string]*nats.Subscription),
	}, nil
}

func (d *Distributor) Subscribe(ctx context.Context, identity, roomID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.subs[roomID]; ok {
		logger.Infof("[nats] subscription for room %s already registered", roomID)
		return nil
	}

	subject := dispatcher.TopicForRoom(roomID)
	sub, err := d.nc.Subscribe(subject, func(m *nats.Msg) {
		env, err := dispatcher.ParseEnvelope(m.Data)
		if err != nil {
			logger.Errorf("[nats] dropping malformed record on %s: %v", subject, err)
			return
		}
		d.relay.RelayNewMessage(context.Background(), env.RoomID, env.ID)
	})
	if err != nil {
		return errors.Wrapf(err, "subscribe room %s", roomID)
	}

	d.subs[roomID] = sub
	logger.Infof("[nats] subscribed room %s for %s", roomID, identity)
	return nil
}

func (d *Distributor) Unsubscribe(ctx context.Context, identity, roomID string) error {
	d.mu.Lock()
	sub, ok := d.subs[roomID]
	if ok {
		delete(d.subs, roomID)
	}
	d.mu.Unlock()

	if !ok {
		return errors.Errorf("no subscription registered for room %s", roomID)
	}
	if err := sub.Unsubscribe(); err != nil {
		return errors.Wrapf(err, "unsubscribe room %s", roomID)
	}
	logger.Infof("[nats] unsubscribed room %s", roomID)
	return nil
}

func (d *Distributor) Publish(ctx context.Context, roomID string, env dispatcher.Envelope) error {
	value, err := env.Marshal()
	if err != nil {
		return errors.Wrap(err, "marshal envelope")
	}
	if err := d.nc.Publish(dispatcher.TopicForRoom(roomID), value); err != nil {
		return errors.Wrapf(err, "publish message %s to room %s", env.ID, roomID)
	}
	return nil
}

func (d *Distributor) Close() error {
	d.mu.Lock()
	for roomID, sub := range d.subs {
		_ = sub.Drain()
		delete(d.subs, roomID)
	}
	d.mu.Unlock()
	return d.nc.Drain()
}
