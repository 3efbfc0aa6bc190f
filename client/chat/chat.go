// Package chat is the Go client for the conversation gateway. It keeps one
// websocket per client, answers each request with its server ack and hands
// pushed message streams to a caller-provided handler.
package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"QChat/logger"
	"QChat/service/chat"
	"QChat/tools/decode"
	"QChat/tools/safe"
)

const (
	connectAttempts = 3
	connectBackoff  = 2500 * time.Millisecond
	attemptTimeout  = 20 * time.Second
)

// StreamHandler receives server-pushed message batches.
type StreamHandler func(ack *chat.StreamAck)

// Client is a single-session gateway client. Safe for one request at a time;
// the stream handler runs on the reader goroutine.
type Client struct {
	url      string
	identity string
	onStream StreamHandler

	conn *websocket.Conn

	mu      sync.Mutex
	pending map[string]chan *chat.Frame // ack event -> waiter

	closeOnce sync.Once
	done      chan struct{}
}

func NewClient(url, identity string, onStream StreamHandler) *Client {
	return &Client{
		url:      url,
		identity: identity,
		onStream: onStream,
		pending:  make(map[string]chan *chat.Frame),
		done:     make(chan struct{}),
	}
}

// Connect dials the gateway and runs the chat-connect handshake against the
// given peer. The handshake is retried up to three times with a fixed
// backoff; each attempt gets its own deadline. An ack that arrives with
// success=false is a protocol answer, not a transport fault, and is returned
// immediately without further attempts.
func (c *Client) Connect(channel string, limit int) (*chat.ConnectAck, error) {
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		ack, err := c.connectOnce(channel, limit)
		if err == nil {
			return ack, nil
		}
		lastErr = err
		logger.Warnf("[client] connect attempt %d/%d failed: %v", attempt, connectAttempts, err)
		if attempt < connectAttempts {
			time.Sleep(connectBackoff)
		}
	}
	return nil, errors.Wrap(lastErr, "connect")
}

func (c *Client) connectOnce(channel string, limit int) (*chat.ConnectAck, error) {
	ctx, cancel := context.WithTimeout(context.Background(), attemptTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: attemptTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, http.Header{})
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", c.url)
	}
	c.conn = conn
	safe.Go(func() { c.readLoop(conn) })

	frame, err := c.request(ctx, chat.EventChatConnect, chat.EventChatConnectAck, &chat.ConnectRequest{
		UserID:  c.identity,
		Channel: channel,
		Limit:   limit,
	})
	if err != nil {
		// Drop only the socket; the client survives for the next attempt.
		_ = conn.Close()
		return nil, err
	}

	ack, err := decode.DecodeMap[chat.ConnectAck](frame.Data)
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "decode connect ack")
	}
	return ack, nil
}

// Send delivers one message draft to the connected peer.
func (c *Client) Send(ctx context.Context, req *chat.SendRequest) (*chat.SendAck, error) {
	frame, err := c.request(ctx, chat.EventNewMessage, chat.EventNewMessageAck, req)
	if err != nil {
		return nil, err
	}
	return decode.DecodeMap[chat.SendAck](frame.Data)
}

// Read fetches a timestamp window of room history.
func (c *Client) Read(ctx context.Context, req *chat.ReadRequest) (*chat.StreamAck, error) {
	frame, err := c.request(ctx, chat.EventReadMessages, chat.EventReadMessagesAck, req)
	if err != nil {
		return nil, err
	}
	return decode.DecodeMap[chat.StreamAck](frame.Data)
}

// Acknowledge marks the listed messages as read.
func (c *Client) Acknowledge(ctx context.Context, req *chat.AcknowledgeRequest) (*chat.AcknowledgeAck, error) {
	frame, err := c.request(ctx, chat.EventAcknowledgeMessages, chat.EventAcknowledgeMessagesAck, req)
	if err != nil {
		return nil, err
	}
	return decode.DecodeMap[chat.AcknowledgeAck](frame.Data)
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *Client) request(ctx context.Context, event, ackEvent string, payload any) (*chat.Frame, error) {
	if c.conn == nil {
		return nil, errors.New("not connected")
	}

	waiter := make(chan *chat.Frame, 1)
	c.mu.Lock()
	c.pending[ackEvent] = waiter
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, ackEvent)
		c.mu.Unlock()
	}()

	data, err := chat.EncodeFrame(event, payload)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", event)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return nil, errors.Wrapf(err, "write %s", event)
	}

	select {
	case frame := <-waiter:
		return frame, nil
	case <-c.done:
		return nil, errors.New("client closed")
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "await %s", ackEvent)
	}
}

// readLoop is bound to one socket; a retried handshake starts a fresh loop
// and the stale one exits on its own socket's close.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				logger.Infof("[client] read loop ended: %v", err)
			}
			return
		}

		var frame chat.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			logger.Errorf("[client] bad frame: %v", err)
			continue
		}

		if frame.Event == chat.EventMessagesStream {
			if c.onStream == nil {
				continue
			}
			ack, err := decode.DecodeMap[chat.StreamAck](frame.Data)
			if err != nil {
				logger.Errorf("[client] decode stream push: %v", err)
				continue
			}
			c.onStream(ack)
			continue
		}

		c.mu.Lock()
		waiter, ok := c.pending[frame.Event]
		c.mu.Unlock()
		if !ok {
			logger.Warnf("[client] unexpected event %q", frame.Event)
			continue
		}
		select {
		case waiter <- &frame:
		default:
		}
	}
}
