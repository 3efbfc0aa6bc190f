package kafka

import (
	"github.com/Shopify/sarama"

	"QChat/logger"
	"QChat/service/dispatcher"
)

// relayHandler consumes one room topic and hands parsed envelopes to the
// relay. Malformed records are logged and dropped, never retried.
type relayHandler struct {
	roomID string
	relay  dispatcher.Relay
}

func (h *relayHandler) Setup(sarama.ConsumerGroupSession) error {
	logger.Infof("[kafka] consumer group setup for room %s", h.roomID)
	return nil
}

func (h *relayHandler) Cleanup(sarama.ConsumerGroupSession) error {
	logger.Infof("[kafka] consumer group cleanup for room %s", h.roomID)
	return nil
}

func (h *relayHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		env, err := dispatcher.ParseEnvelope(msg.Value)
		if err != nil {
			logger.Errorf("[kafka] dropping malformed record on %s: %v", msg.Topic, err)
			session.MarkMessage(msg, "")
			continue
		}

		h.relay.RelayNewMessage(session.Context(), env.RoomID, env.ID)
		session.MarkMessage(msg, "")
	}
	return nil
}
