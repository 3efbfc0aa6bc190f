package chat

import "QChat/module/chat/model"

// Wire events. Every request event is answered by its "-ack" counterpart;
// messages-stream is pushed server-to-client only.
const (
	EventChatConnect            = "chat-connect"
	EventChatConnectAck         = "chat-connect-ack"
	EventNewMessage             = "new-message"
	EventNewMessageAck          = "new-message-ack"
	EventReadMessages           = "read-messages"
	EventReadMessagesAck        = "read-messages-ack"
	EventAcknowledgeMessages    = "acknowledge-messages"
	EventAcknowledgeMessagesAck = "acknowledge-messages-ack"
	EventMessagesStream         = "messages-stream"
)

// Connect handshake failure reasons. Distribution failures mean subscription
// setup failed; an unknown session never reached the broker at all.
const (
	FailureReasonDistribution   = "distribution failure"
	FailureReasonUnknownSession = "unknown session"
)

type ConnectRequest struct {
	UserID  string `json:"userId"`
	Channel string `json:"channel"` // peer identity
	Limit   int    `json:"limit"`
}

type ConnectAck struct {
	Success         bool             `json:"success"`
	FailureReason   string           `json:"failureReason,omitempty"`
	Messages        []*model.Message `json:"messages"`
	ChannelSocketID string           `json:"channelSocketId"`
	Channel         string           `json:"channel"`
}

type SendRequest struct {
	Channel string            `json:"channel"`
	Ts      int64             `json:"ts"`
	Content string            `json:"content"`
	Type    model.ContentType `json:"type"`
}

type SendAck struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
}

type ReadRequest struct {
	Channel string `json:"channel"`
	Limit   int    `json:"limit"`
	StartTs int64  `json:"startTs,omitempty"`
	EndTs   int64  `json:"endTs,omitempty"`
}

type StreamAck struct {
	Success       bool             `json:"success"`
	FailureReason string           `json:"failureReason,omitempty"`
	Messages      []*model.Message `json:"messages"`
}

type AcknowledgeRequest struct {
	Channel    string   `json:"channel"`
	MessageIDs []string `json:"messageIds"`
}

type AcknowledgeAck struct {
	Success bool `json:"success"`
}
