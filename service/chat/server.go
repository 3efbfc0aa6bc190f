package chat

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"QChat/logger"
	"QChat/tools/decode"
	"QChat/tools/ids"
	"QChat/tools/safe"
)

const (
	sendQueueSize    = 64
	writeDeadlineSec = 5
	opTimeout        = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server exposes the websocket endpoint plus a liveness probe.
type Server struct {
	svc    *ChatService
	engine *gin.Engine
}

func NewServer(svc *ChatService) *Server {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery())

	s := &Server{svc: svc, engine: e}
	e.GET("/ws", s.handleWS)
	e.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return s
}

func (s *Server) Run(addr string) error {
	logger.Infof("[server] listening on %s", addr)
	return s.engine.Run(addr)
}

func (s *Server) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Errorf("[server] upgrade failed: %v", err)
		return
	}

	sessionID := ids.Generate()
	ws := NewWsConn(sessionID, conn, sendQueueSize)
	s.svc.Conns().Add(ws)
	logger.Infof("[server] session %s connected from %s", sessionID, conn.RemoteAddr())

	safe.Go(func() { s.writeLoop(ws) })
	s.readLoop(ws)
}

// writeLoop is the single writer for a session; it drains the send queue
// until CloseSend.
func (s *Server) writeLoop(ws *WsConn) {
	for data := range ws.Send {
		if err := writeText(ws.Conn, data, writeDeadlineSec); err != nil {
			logger.Errorf("[server] write to session %s failed: %v", ws.SessionID, err)
			return
		}
	}
}

func (s *Server) readLoop(ws *WsConn) {
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		s.svc.Disconnect(ctx, ws.SessionID, "socket closed")
		ws.CloseSend()
		closeQuiet(ws.Conn)
	}()

	for {
		msgType, raw, err := ws.Conn.ReadMessage()
		if err != nil {
			logger.Infof("[server] session %s read loop ended: %v", ws.SessionID, err)
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		frame, err := ParseFrame(raw)
		if err != nil {
			logger.Errorf("[server] session %s sent a bad frame: %v", ws.SessionID, err)
			continue
		}
		s.dispatch(ws, frame)
	}
}

func (s *Server) dispatch(ws *WsConn, frame *Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch frame.Event {
	case EventChatConnect:
		req, err := decode.DecodeMap[ConnectRequest](frame.Data)
		if err != nil {
			logger.Errorf("[server] decode %s: %v", frame.Event, err)
			return
		}
		s.reply(ws, EventChatConnectAck, s.svc.Connect(ctx, ws.SessionID, req))

	case EventNewMessage:
		req, err := decode.DecodeMap[SendRequest](frame.Data)
		if err != nil {
			logger.Errorf("[server] decode %s: %v", frame.Event, err)
			return
		}
		s.reply(ws, EventNewMessageAck, s.svc.NewMessage(ctx, ws.SessionID, req))

	case EventReadMessages:
		req, err := decode.DecodeMap[ReadRequest](frame.Data)
		if err != nil {
			logger.Errorf("[server] decode %s: %v", frame.Event, err)
			return
		}
		s.reply(ws, EventReadMessagesAck, s.svc.ReadMessages(ctx, ws.SessionID, req))

	case EventAcknowledgeMessages:
		req, err := decode.DecodeMap[AcknowledgeRequest](frame.Data)
		if err != nil {
			logger.Errorf("[server] decode %s: %v", frame.Event, err)
			return
		}
		s.reply(ws, EventAcknowledgeMessagesAck, s.svc.AcknowledgeMessages(ctx, ws.SessionID, req))

	default:
		logger.Warnf("[server] session %s sent unknown event %q", ws.SessionID, frame.Event)
	}
}

func (s *Server) reply(ws *WsConn, event string, payload any) {
	data, err := EncodeFrame(event, payload)
	if err != nil {
		logger.Errorf("[server] encode %s: %v", event, err)
		return
	}
	if !ws.Enqueue(data) {
		logger.Warnf("[server] send queue full for session %s, dropping %s", ws.SessionID, event)
	}
}
