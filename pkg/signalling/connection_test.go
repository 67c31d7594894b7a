package signalling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/l4slab/slicecall/pkg/rtc/types"
	"github.com/l4slab/slicecall/pkg/telemetry/prometheus"
	"github.com/l4slab/slicecall/pkg/testutils"
)

type fakeWebsocket struct {
	lock     sync.Mutex
	messages [][]byte
	pings    int
	closes   int
	closed   int
}

func (f *fakeWebsocket) ReadMessage() (int, []byte, error) {
	return 0, nil, websocket.ErrCloseSent
}

func (f *fakeWebsocket) WriteMessage(_ int, data []byte) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.messages = append(f.messages, data)
	return nil
}

func (f *fakeWebsocket) WriteControl(messageType int, _ []byte, _ time.Time) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	switch messageType {
	case websocket.PingMessage:
		f.pings++
	case websocket.CloseMessage:
		f.closes++
	}
	return nil
}

func (f *fakeWebsocket) Close() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.closed++
	return nil
}

func (f *fakeWebsocket) counts() (pings, closes, closed int) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.pings, f.closes, f.closed
}

type testServer struct {
	*httptest.Server
	query    chan url.Values
	conns    chan *websocket.Conn
	upgrader websocket.Upgrader
}

func newTestServer(t *testing.T) *testServer {
	ts := &testServer{
		query: make(chan url.Values, 1),
		conns: make(chan *websocket.Conn, 1),
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := ts.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.query <- r.URL.Query()
		ts.conns <- conn
	}))
	t.Cleanup(ts.Close)
	return ts
}

func dialTestServer(t *testing.T, ts *testServer) (*WSSignalConnection, *websocket.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, ts.URL, "alice-1", "Alice Smith", time.Minute, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	select {
	case server := <-ts.conns:
		t.Cleanup(func() { _ = server.Close() })
		return c, server
	case <-ctx.Done():
		t.Fatal("server did not accept connection")
	}
	return nil, nil
}

func readServerMessage(t *testing.T, server *websocket.Conn) Message {
	_ = server.SetReadDeadline(time.Now().Add(5 * time.Second))
	mt, payload, err := server.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, mt)
	var msg Message
	require.NoError(t, json.Unmarshal(payload, &msg))
	return msg
}

func TestBuildURL(t *testing.T) {
	u, err := BuildURL("http://signal.example.com/ws/", "c1", "A B&C")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(u, "ws://signal.example.com/ws?"))
	parsed, err := url.Parse(u)
	require.NoError(t, err)
	require.Equal(t, "c1", parsed.Query().Get("clientId"))
	require.Equal(t, "A B&C", parsed.Query().Get("name"))

	u, err = BuildURL("wss://signal.example.com/ws?room=lab", "c2", "x")
	require.NoError(t, err)
	parsed, err = url.Parse(u)
	require.NoError(t, err)
	require.Equal(t, "wss", parsed.Scheme)
	require.Equal(t, "lab", parsed.Query().Get("room"))
	require.Equal(t, "c2", parsed.Query().Get("clientId"))
}

func TestDialSendsIdentity(t *testing.T) {
	ts := newTestServer(t)
	dialTestServer(t, ts)

	q := <-ts.query
	require.Equal(t, "alice-1", q.Get("clientId"))
	require.Equal(t, "Alice Smith", q.Get("name"))
}

func TestOutboundMessages(t *testing.T) {
	ts := newTestServer(t)
	c, server := dialTestServer(t, ts)
	ctx := context.Background()

	require.NoError(t, c.SendOffer(ctx, "bob", "v=0\r\n"))
	msg := readServerMessage(t, server)
	require.Equal(t, Message{To: "bob", Type: MessageTypeOffer, Payload: "v=0\r\n"}, msg)

	candidate, err := types.ParseIceCandidate("candidate:1 1 udp 2122260223 10.0.0.5 50000 typ host", "0", 0)
	require.NoError(t, err)
	require.NoError(t, c.SendIceCandidate(ctx, "bob", candidate))
	msg = readServerMessage(t, server)
	require.Equal(t, MessageTypeICE, msg.Type)
	var ice IcePayload
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ice))
	require.Equal(t, "0", ice.SDPMid)
	require.Equal(t, candidate.Candidate, ice.Candidate)

	require.NoError(t, c.SendHangup(ctx, "bob"))
	msg = readServerMessage(t, server)
	require.Equal(t, MessageTypeHangup, msg.Type)
	require.Empty(t, msg.Payload)

	require.ErrorIs(t, c.SendAnswer(ctx, "", "v=0"), ErrMissingPeer)
}

func TestReadMessageSkipsInvalidFrames(t *testing.T) {
	ts := newTestServer(t)
	c, server := dialTestServer(t, ts)

	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, server.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus","from":"bob"}`)))
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`{"type":"offer"}`)))
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`{"type":"OFFER","from":"bob","payload":"v=0"}`)))

	msg, err := c.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, MessageTypeOffer, msg.Type)
	require.Equal(t, "bob", msg.From)
	require.Equal(t, "v=0", msg.Payload)
}

func TestReadCandidateAndClients(t *testing.T) {
	ts := newTestServer(t)
	c, server := dialTestServer(t, ts)

	payload, err := json.Marshal(IcePayload{
		SDPMid:        "1",
		SDPMLineIndex: 1,
		Candidate:     "candidate:2 1 udp 1686052607 203.0.113.9 40000 typ srflx raddr 10.0.0.5 rport 50000",
	})
	require.NoError(t, err)
	frame, err := json.Marshal(Message{From: "bob", Type: MessageTypeICE, Payload: string(payload)})
	require.NoError(t, err)
	require.NoError(t, server.WriteMessage(websocket.TextMessage, frame))
	require.NoError(t, server.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"clients","clients":[{"clientId":"bob","name":"Bob","isOnline":true}]}`)))

	msg, err := c.ReadMessage()
	require.NoError(t, err)
	candidate, err := msg.Candidate()
	require.NoError(t, err)
	require.Equal(t, "1", candidate.SDPMid)
	require.Equal(t, uint16(1), candidate.SDPMLineIndex)
	require.Equal(t, "203.0.113.9", candidate.PrimaryAddress)
	require.Equal(t, "10.0.0.5", candidate.RelatedAddress)

	msg, err = c.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, []ClientInfo{{ClientID: "bob", Name: "Bob", IsOnline: true}}, msg.Clients)

	_, err = msg.Candidate()
	require.ErrorIs(t, err, ErrUnknownMessageType)
}

func TestCloseStopsWrites(t *testing.T) {
	ts := newTestServer(t)
	c, _ := dialTestServer(t, ts)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.Error(t, c.SendHangup(context.Background(), "bob"))
}

func TestPingAndCloseOverClient(t *testing.T) {
	ws := &fakeWebsocket{}
	c := NewWSSignalConnection(ws, 5*time.Millisecond, nil)

	testutils.WithTimeout(t, func() string {
		if pings, _, _ := ws.counts(); pings < 2 {
			return "waiting for keepalive pings"
		}
		return ""
	})

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	pings, closes, closed := ws.counts()
	require.Equal(t, 1, closes)
	require.Equal(t, 1, closed)

	time.Sleep(20 * time.Millisecond)
	after, _, _ := ws.counts()
	require.Equal(t, pings, after)
	require.ErrorIs(t, c.SendOffer(context.Background(), "bob", "v=0"), websocket.ErrCloseSent)
}

func TestOutboundMessagesCountedOnce(t *testing.T) {
	prometheus.Init("signalling-test")

	ws := &fakeWebsocket{}
	c := NewWSSignalConnection(ws, time.Minute, nil)
	t.Cleanup(func() { _ = c.Close() })

	offers := prometheus.MessageCounter.WithLabelValues(MessageTypeOffer, "out", "success")
	hangups := prometheus.MessageCounter.WithLabelValues(MessageTypeHangup, "out", "success")
	offersBefore := testutil.ToFloat64(offers)
	hangupsBefore := testutil.ToFloat64(hangups)

	require.NoError(t, c.SendOffer(context.Background(), "bob", "v=0"))
	require.NoError(t, c.SendHangup(context.Background(), "bob"))

	require.Equal(t, offersBefore+1, testutil.ToFloat64(offers))
	require.Equal(t, hangupsBefore+1, testutil.ToFloat64(hangups))
	ws.lock.Lock()
	require.Len(t, ws.messages, 2)
	ws.lock.Unlock()
}
