package signalling

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/frostbyte73/core"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/l4slab/slicecall/pkg/logger"
	"github.com/l4slab/slicecall/pkg/rtc/types"
	"github.com/l4slab/slicecall/pkg/telemetry/prometheus"
)

const (
	defaultPingInterval = 10 * time.Second
	pingTimeout         = 2 * time.Second
	writeTimeout        = 5 * time.Second
)

type WebsocketClient interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// WSSignalConnection exchanges signalling messages with the rendezvous server.
// Writes are serialised, reads must come from a single goroutine.
type WSSignalConnection struct {
	conn   WebsocketClient
	logger logger.Logger
	mu     sync.Mutex
	closed core.Fuse
}

func NewWSSignalConnection(conn WebsocketClient, pingInterval time.Duration, l logger.Logger) *WSSignalConnection {
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	if l == nil {
		l = logger.GetLogger()
	}
	wsc := &WSSignalConnection{
		conn:   conn,
		logger: l.WithName("signalling"),
		closed: core.NewFuse(),
	}
	go wsc.pingWorker(pingInterval)
	return wsc
}

// BuildURL appends the client identity to the signalling server URL.
func BuildURL(base string, clientID string, name string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", errors.Wrap(err, "invalid signalling URL")
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("clientId", clientID)
	q.Set("name", name)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func Dial(ctx context.Context, base string, clientID string, name string, pingInterval time.Duration, l logger.Logger) (*WSSignalConnection, error) {
	u, err := BuildURL(base, clientID, name)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "could not connect to %s", base)
	}
	return NewWSSignalConnection(conn, pingInterval, l), nil
}

// ReadMessage blocks until the next valid message arrives. Malformed frames
// are logged and skipped.
func (c *WSSignalConnection) ReadMessage() (*Message, error) {
	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType != websocket.TextMessage {
			c.logger.Debugw("unsupported message", "messageType", messageType)
			continue
		}

		msg := &Message{}
		if err := json.Unmarshal(payload, msg); err != nil {
			c.logger.Warnw("could not decode signalling message", err)
			prometheus.RecordSignalMessage("unknown", "in", err)
			continue
		}
		msg.Type = strings.ToLower(msg.Type)
		if err := msg.validate(); err != nil {
			c.logger.Warnw("dropping signalling message", err)
			prometheus.RecordSignalMessage(msg.Type, "in", err)
			continue
		}
		prometheus.RecordSignalMessage(msg.Type, "in", nil)
		return msg, nil
	}
}

func (c *WSSignalConnection) SendOffer(_ context.Context, peerID string, sdp string) error {
	return c.write(&Message{To: peerID, Type: MessageTypeOffer, Payload: sdp})
}

func (c *WSSignalConnection) SendAnswer(_ context.Context, peerID string, sdp string) error {
	return c.write(&Message{To: peerID, Type: MessageTypeAnswer, Payload: sdp})
}

func (c *WSSignalConnection) SendIceCandidate(_ context.Context, peerID string, candidate types.IceCandidate) error {
	payload, err := encodeIcePayload(candidate)
	if err != nil {
		return err
	}
	return c.write(&Message{To: peerID, Type: MessageTypeICE, Payload: payload})
}

func (c *WSSignalConnection) SendHangup(_ context.Context, peerID string) error {
	return c.write(&Message{To: peerID, Type: MessageTypeHangup})
}

func (c *WSSignalConnection) write(msg *Message) error {
	if msg.To == "" {
		return ErrMissingPeer
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.IsBroken() {
		return websocket.ErrCloseSent
	}
	if d, ok := c.conn.(interface{ SetWriteDeadline(time.Time) error }); ok {
		_ = d.SetWriteDeadline(time.Now().Add(writeTimeout))
	}
	err = c.conn.WriteMessage(websocket.TextMessage, payload)
	prometheus.RecordSignalMessage(msg.Type, "out", err)
	return err
}

func (c *WSSignalConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.IsBroken() {
		return nil
	}
	c.closed.Break()
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(pingTimeout),
	)
	return c.conn.Close()
}

func (c *WSSignalConnection) pingWorker(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed.Watch():
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.closed.IsBroken() {
				c.mu.Unlock()
				return
			}
			err := c.conn.WriteControl(websocket.PingMessage, []byte(""), time.Now().Add(pingTimeout))
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
