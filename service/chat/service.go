package chat

import (
	"context"

	"QChat/logger"
	"QChat/module/chat/model"
	"QChat/service/dispatcher"
	"QChat/service/persistence"
	"QChat/service/registry"
	"QChat/service/room"
)

// ChatService implements the conversation protocol on top of the three
// capability interfaces. Each operation resolves the caller's identity from
// the connection registry, derives the room from the (identity, channel)
// pair and answers with a typed ack.
type ChatService struct {
	engine   persistence.Engine
	registry registry.Registry
	conns    *ConnManager
	dist     dispatcher.Distributor
	serverID string
}

func NewChatService(engine persistence.Engine, reg registry.Registry, conns *ConnManager, serverID string) *ChatService {
	return &ChatService{
		engine:   engine,
		registry: reg,
		conns:    conns,
		serverID: serverID,
	}
}

// AttachDistributor wires the distribution engine after construction. The
// distributor's relay needs the service, so the two are tied together in two
// steps at startup.
func (s *ChatService) AttachDistributor(d dispatcher.Distributor) {
	s.dist = d
}

func (s *ChatService) Conns() *ConnManager { return s.conns }

// Connect runs the session handshake: group the socket under the pair's
// room, record the session identity, make sure room storage and the room
// subscriber exist, and answer with the initial message stream.
func (s *ChatService) Connect(ctx context.Context, sessionID string, req *ConnectRequest) *ConnectAck {
	roomID := room.GenerateRoomID(req.UserID, req.Channel)

	prevRoom, prevRemaining, err := s.conns.JoinRoom(roomID, sessionID)
	if err != nil {
		logger.Errorf("[chat] join room %s failed for session %s: %v", roomID, sessionID, err)
		return &ConnectAck{
			Success:         false,
			FailureReason:   FailureReasonUnknownSession,
			Messages:        []*model.Message{},
			ChannelSocketID: roomID,
			Channel:         req.Channel,
		}
	}
	// Re-connecting to a different peer can leave the old room's local group
	// empty; its subscriber is torn down here, not at disconnect.
	if prevRoom != "" && prevRemaining == 0 {
		if err := s.dist.Unsubscribe(ctx, req.UserID, prevRoom); err != nil {
			logger.Errorf("[chat] unsubscribe room %s on re-connect: %v", prevRoom, err)
		}
	}

	s.registry.Persist(ctx, sessionID, req.UserID, s.serverID)

	if ok := s.engine.InitializeStorageForRoom(ctx, roomID); !ok {
		logger.Errorf("[chat] storage init failed for room %s", roomID)
	}

	if err := s.dist.Subscribe(ctx, req.UserID, roomID); err != nil {
		logger.Errorf("[chat] subscribe failed for room %s: %v", roomID, err)
		s.conns.LeaveRoom(roomID, sessionID)
		return &ConnectAck{
			Success:         false,
			FailureReason:   FailureReasonDistribution,
			Messages:        []*model.Message{},
			ChannelSocketID: roomID,
			Channel:         req.Channel,
		}
	}

	out := s.engine.StreamByTimestamp(ctx, req.UserID, roomID, persistence.TsOptions{Limit: req.Limit})
	return &ConnectAck{
		Success:         out.Success,
		FailureReason:   out.FailureReason,
		Messages:        out.Messages,
		ChannelSocketID: roomID,
		Channel:         req.Channel,
	}
}

// NewMessage persists the draft and, once storage succeeded, publishes the
// envelope to the room topic. Distribution is best-effort and never turns a
// stored message into a failed send.
func (s *ChatService) NewMessage(ctx context.Context, sessionID string, req *SendRequest) *SendAck {
	identity := s.registry.Resolve(ctx, sessionID, s.serverID)
	if identity == "" {
		logger.Warnf("[chat] no identity for session %s, rejecting send", sessionID)
		return &SendAck{Success: false}
	}

	roomID := room.GenerateRoomID(identity, req.Channel)
	draft := &model.Draft{
		Channel: req.Channel,
		Ts:      req.Ts,
		Content: req.Content,
		Type:    req.Type,
	}

	msg := s.engine.PersistMessage(ctx, identity, roomID, draft)
	if msg == nil {
		return &SendAck{Success: false}
	}

	env := dispatcher.Envelope{ID: msg.ID, RoomID: roomID, Ts: msg.Ts}
	if err := s.dist.Publish(ctx, roomID, env); err != nil {
		logger.Errorf("[chat] publish message %s to room %s failed: %v", msg.ID, roomID, err)
	}

	return &SendAck{Success: true, ID: msg.ID}
}

// ReadMessages answers a windowed history read for the caller's room.
func (s *ChatService) ReadMessages(ctx context.Context, sessionID string, req *ReadRequest) *StreamAck {
	identity := s.registry.Resolve(ctx, sessionID, s.serverID)
	if identity == "" {
		logger.Warnf("[chat] no identity for session %s, rejecting read", sessionID)
		return &StreamAck{Success: false, Messages: []*model.Message{}}
	}

	roomID := room.GenerateRoomID(identity, req.Channel)
	out := s.engine.StreamByTimestamp(ctx, identity, roomID, persistence.TsOptions{
		StartTs: req.StartTs,
		EndTs:   req.EndTs,
		Limit:   req.Limit,
	})
	return &StreamAck{
		Success:       out.Success,
		FailureReason: out.FailureReason,
		Messages:      out.Messages,
	}
}

// AcknowledgeMessages marks the listed messages read where they are
// addressed to the caller.
func (s *ChatService) AcknowledgeMessages(ctx context.Context, sessionID string, req *AcknowledgeRequest) *AcknowledgeAck {
	identity := s.registry.Resolve(ctx, sessionID, s.serverID)
	if identity == "" {
		logger.Warnf("[chat] no identity for session %s, rejecting acknowledge", sessionID)
		return &AcknowledgeAck{Success: false}
	}

	roomID := room.GenerateRoomID(identity, req.Channel)
	ok := s.engine.UpdateReadStatus(ctx, identity, roomID, req.MessageIDs)
	return &AcknowledgeAck{Success: ok}
}

// Disconnect tears the session down. The last local session of a room also
// tears down the instance's broker subscriber for it.
func (s *ChatService) Disconnect(ctx context.Context, sessionID, reason string) {
	identity := s.registry.Resolve(ctx, sessionID, s.serverID)
	s.registry.Remove(ctx, sessionID, s.serverID)

	roomID, remaining := s.conns.Remove(sessionID)
	logger.Infof("[chat] session %s disconnected (%s), room %q, %d local sessions remain", sessionID, reason, roomID, remaining)

	if roomID != "" && remaining == 0 {
		if err := s.dist.Unsubscribe(ctx, identity, roomID); err != nil {
			logger.Errorf("[chat] unsubscribe room %s on disconnect: %v", roomID, err)
		}
	}
}

// RelayNewMessage implements the distribution relay: refetch the stored
// message by id and push it to every socket grouped under the room on this
// instance.
func (s *ChatService) RelayNewMessage(ctx context.Context, roomID, messageID string) {
	out := s.engine.StreamByIDs(ctx, roomID, persistence.IDOptions{
		MessageIDs: []string{messageID},
		Limit:      10,
	})
	if !out.Success {
		logger.Errorf("[chat] relay refetch of %s in room %s failed: %s", messageID, roomID, out.FailureReason)
		return
	}

	frame, err := EncodeFrame(EventMessagesStream, &StreamAck{Success: true, Messages: out.Messages})
	if err != nil {
		logger.Errorf("[chat] encode stream frame for %s: %v", messageID, err)
		return
	}
	s.conns.BroadcastRoom(roomID, frame)
}
