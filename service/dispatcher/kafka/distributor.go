package kafka

import (
	"context"
	"sync"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"

	"QChat/logger"
	"QChat/service/dispatcher"
	"QChat/tools/safe"
)

// Distributor is the kafka-backed distribution engine: one sync producer
// shared by the process and one consumer group per subscribed room.
//
// The per-room subscriber set is the one piece of synchronized shared state;
// insertion, removal and lookup by room id are atomic with respect to
// concurrent connects for the same room.
type Distributor struct {
	cfg      Config
	client   sarama.Client
	producer sarama.SyncProducer
	relay    dispatcher.Relay

	// newGroup is swappable so the subscriber lifecycle is testable
	// without a broker.
	newGroup func(groupID string) (sarama.ConsumerGroup, error)

	mu    sync.Mutex
	rooms map[string]*roomConsumer
}

type roomConsumer struct {
	group  sarama.ConsumerGroup
	cancel context.CancelFunc
	done   chan struct{}
}

func NewDistributor(cfg Config, relay dispatcher.Relay) (*Distributor, error) {
	cfg.norm()
	base := BuildBaseConfig(cfg)

	client, err := sarama.NewClient(cfg.Brokers, base)
	if err != nil {
		return nil, errors.Wrap(err, "kafka client")
	}
	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "kafka producer")
	}

	d := &Distributor{
		cfg:      cfg,
		client:   client,
		producer: producer,
		relay:    relay,
		rooms:    make(map[string]*roomConsumer),
	}
	d.newGroup = func(groupID string) (sarama.ConsumerGroup, error) {
		// One group per room per instance; groups cannot share a client.
		return sarama.NewConsumerGroup(cfg.Brokers, groupID, BuildBaseConfig(cfg))
	}
	return d, nil
}

func (d *Distributor) groupID(roomID string) string {
	return d.cfg.InstanceID + "-" + roomID
}

func (d *Distributor) Subscribe(ctx context.Context, identity, roomID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.rooms[roomID]; ok {
		logger.Infof("[kafka] consumer for room %s already registered", roomID)
		return nil
	}

	group, err := d.newGroup(d.groupID(roomID))
	if err != nil {
		return errors.Wrapf(err, "create consumer group for room %s", roomID)
	}

	consumeCtx, cancel := context.WithCancel(context.Background())
	rc := &roomConsumer{group: group, cancel: cancel, done: make(chan struct{})}
	d.rooms[roomID] = rc

	topics := []string{dispatcher.TopicForRoom(roomID)}
	handler := &relayHandler{roomID: roomID, relay: d.relay}

	safe.Go(func() {
		defer close(rc.done)
		defer func() {
			if err := group.Close(); err != nil {
				logger.Errorf("[kafka] close consumer group for room %s: %v", roomID, err)
			}
		}()
		for {
			// Consume returns on rebalance; loop until torn down.
			if err := group.Consume(consumeCtx, topics, handler); err != nil {
				logger.Errorf("[kafka] consume error for room %s: %v", roomID, err)
			}
			if consumeCtx.Err() != nil {
				return
			}
		}
	})

	logger.Infof("[kafka] subscribed room %s for %s", roomID, identity)
	return nil
}

func (d *Distributor) Unsubscribe(ctx context.Context, identity, roomID string) error {
	d.mu.Lock()
	rc, ok := d.rooms[roomID]
	if ok {
		delete(d.rooms, roomID)
	}
	d.mu.Unlock()

	if !ok {
		return errors.Errorf("no room consumer registered for room %s", roomID)
	}

	rc.cancel()
	<-rc.done
	logger.Infof("[kafka] unsubscribed room %s", roomID)
	return nil
}

func (d *Distributor) Publish(ctx context.Context, roomID string, env dispatcher.Envelope) error {
	value, err := env.Marshal()
	if err != nil {
		return errors.Wrap(err, "marshal envelope")
	}

	_, _, err = d.producer.SendMessage(&sarama.ProducerMessage{
		Topic: dispatcher.TopicForRoom(roomID),
		Key:   sarama.StringEncoder(env.ID),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return errors.Wrapf(err, "publish message %s to room %s", env.ID, roomID)
	}
	return nil
}

func (d *Distributor) Close() error {
	d.mu.Lock()
	rooms := d.rooms
	d.rooms = make(map[string]*roomConsumer)
	d.mu.Unlock()

	for roomID, rc := range rooms {
		rc.cancel()
		<-rc.done
		logger.Infof("[kafka] unsubscribed room %s on close", roomID)
	}

	if err := d.producer.Close(); err != nil {
		return err
	}
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}
