// Package wsadapter implements the WebSocket protocol adapter (§4.5): a real
// RFC-6455 Upgrade handshake and text/binary framing via gorilla/websocket,
// grounded on the same "one registry entry per live transport, reserved
// under lock then dialed unlocked" shape as registry.Registry itself (see
// registry/registry.go), applied here to the teacher's per-endpoint
// connection-context idea.
package wsadapter

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/firasghr/loadspiker-engine/metrics"
	"github.com/firasghr/loadspiker-engine/model"
	"github.com/firasghr/loadspiker-engine/registry"
	"github.com/firasghr/loadspiker-engine/timing"
)

// MaxEntries bounds the WebSocket connection registry, per §4.5.
const MaxEntries = 1000

// conn is one live WebSocket connection context, keyed by URL.
type conn struct {
	ws           *websocket.Conn
	subprotocol  string
	messagesSent int
	messagesRcvd int
	bytesSent    int64
	bytesRcvd    int64
}

func (c *conn) Close() error {
	return c.ws.Close()
}

// Adapter executes WebSocket connect/send/close operations.
type Adapter struct {
	registry *registry.Registry[string, *conn]
	metrics  *metrics.Aggregator
	dialer   *websocket.Dialer
}

// New creates a WebSocket adapter with its own bounded registry.
func New(m *metrics.Aggregator) *Adapter {
	return &Adapter{
		registry: registry.New[string, *conn](MaxEntries),
		metrics:  m,
		dialer:   websocket.DefaultDialer,
	}
}

// Connect establishes (or no-ops on an already-connected) context keyed by
// url. Returns status 101 on a fresh successful handshake.
func (a *Adapter) Connect(url, subprotocol string, timeoutMS int) model.ResponseRecord {
	start := timing.Start()

	if _, ok := a.registry.Find(url); ok {
		elapsed := timing.ElapsedMicros(start)
		a.metrics.Record(elapsed, true)
		return model.ResponseRecord{Protocol: model.ProtocolWebSocket, StatusCode: 101, Success: true, ResponseTimeUS: elapsed}
	}

	if err := a.registry.Reserve(url); err != nil {
		elapsed := timing.ElapsedMicros(start)
		a.metrics.Record(elapsed, false)
		return model.ResponseRecord{Protocol: model.ProtocolWebSocket, Success: false, ErrorMessage: "wsadapter: " + err.Error(), ResponseTimeUS: elapsed}
	}

	dialer := *a.dialer
	if timeoutMS > 0 {
		dialer.HandshakeTimeout = time.Duration(timeoutMS) * time.Millisecond
	}
	header := map[string][]string{}
	if subprotocol != "" {
		dialer.Subprotocols = []string{subprotocol}
	}

	ws, resp, err := dialer.Dial(url, header)
	if err != nil {
		a.registry.Cancel(url)
		elapsed := timing.ElapsedMicros(start)
		a.metrics.Record(elapsed, false)
		return model.ResponseRecord{Protocol: model.ProtocolWebSocket, Success: false, ErrorMessage: "wsadapter: dial: " + err.Error(), ResponseTimeUS: elapsed}
	}
	if resp != nil {
		resp.Body.Close()
	}

	a.registry.Commit(url, &conn{ws: ws, subprotocol: subprotocol})
	elapsed := timing.ElapsedMicros(start)
	a.metrics.Record(elapsed, true)
	return model.ResponseRecord{
		Protocol:       model.ProtocolWebSocket,
		StatusCode:     101,
		Success:        true,
		ResponseTimeUS: elapsed,
		WS:             &model.WSTrailer{Subprotocol: subprotocol},
	}
}

// Send writes one text or binary message to the connection at url. Fails
// with NotConnected semantics if url has no live connection.
func (a *Adapter) Send(url, message string, isBinary bool) model.ResponseRecord {
	start := timing.Start()

	c, ok := a.registry.Find(url)
	if !ok {
		elapsed := timing.ElapsedMicros(start)
		a.metrics.Record(elapsed, false)
		return model.ResponseRecord{Protocol: model.ProtocolWebSocket, Success: false, ErrorMessage: "wsadapter: not connected", ResponseTimeUS: elapsed}
	}

	msgType := websocket.TextMessage
	if isBinary {
		msgType = websocket.BinaryMessage
	}
	err := c.ws.WriteMessage(msgType, []byte(message))
	elapsed := timing.ElapsedMicros(start)
	if err != nil {
		a.registry.Close(url)
		a.metrics.Record(elapsed, false)
		return model.ResponseRecord{Protocol: model.ProtocolWebSocket, Success: false, ErrorMessage: "wsadapter: send: " + err.Error(), ResponseTimeUS: elapsed}
	}

	c.messagesSent++
	c.bytesSent += int64(len(message))
	a.metrics.Record(elapsed, true)
	return model.ResponseRecord{
		Protocol:       model.ProtocolWebSocket,
		StatusCode:     200,
		Success:        true,
		ResponseTimeUS: elapsed,
		WS: &model.WSTrailer{
			Subprotocol:      c.subprotocol,
			MessagesSent:     c.messagesSent,
			MessagesReceived: c.messagesRcvd,
			BytesSent:        c.bytesSent,
			BytesReceived:    c.bytesRcvd,
		},
	}
}

// Close closes the connection at url. Fails if not connected.
func (a *Adapter) Close(url string) model.ResponseRecord {
	start := timing.Start()

	if _, ok := a.registry.Find(url); !ok {
		elapsed := timing.ElapsedMicros(start)
		a.metrics.Record(elapsed, false)
		return model.ResponseRecord{Protocol: model.ProtocolWebSocket, Success: false, ErrorMessage: "wsadapter: not connected", ResponseTimeUS: elapsed}
	}

	_ = a.registry.Close(url)
	elapsed := timing.ElapsedMicros(start)
	a.metrics.Record(elapsed, true)
	return model.ResponseRecord{Protocol: model.ProtocolWebSocket, StatusCode: 200, Success: true, ResponseTimeUS: elapsed}
}
