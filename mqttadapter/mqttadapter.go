package mqttadapter

import (
	"fmt"
	"net"
	"time"

	"github.com/firasghr/loadspiker-engine/metrics"
	"github.com/firasghr/loadspiker-engine/model"
	"github.com/firasghr/loadspiker-engine/registry"
	"github.com/firasghr/loadspiker-engine/timing"
)

// MaxEntries bounds the MQTT connection registry, per §3's invariant (b).
const MaxEntries = 50

// state is the per-connection lifecycle state described in §4.8:
// disconnected -> connecting -> connected -> disconnecting -> disconnected.
type state int

const (
	stateDisconnected state = iota
	stateConnecting
	stateConnected
	stateDisconnecting
)

type conn struct {
	tcp       net.Conn
	state     state
	packetID  uint16
	lastError string
}

func (c *conn) Close() error {
	if c.tcp == nil {
		return nil
	}
	return c.tcp.Close()
}

func (c *conn) nextPacketID() uint16 {
	c.packetID++
	if c.packetID == 0 {
		c.packetID = 1
	}
	return c.packetID
}

// Adapter drives MQTT connections keyed by (host, port, client_id).
type Adapter struct {
	registry *registry.Registry[string, *conn]
	metrics  *metrics.Aggregator
}

// New creates an MQTT adapter with its own bounded registry.
func New(m *metrics.Aggregator) *Adapter {
	return &Adapter{registry: registry.New[string, *conn](MaxEntries), metrics: m}
}

func key(host string, port int, clientID string) string {
	return fmt.Sprintf("%s:%d/%s", host, port, clientID)
}

// Connect dials host:port over TCP, sends a CONNECT packet, and waits for
// any bytes from the broker, treated as CONNACK per §4.8's minimal
// acknowledgement handling.
func (a *Adapter) Connect(host string, port int, clientID, username, password string, keepAliveSec uint16, timeoutMS int) model.ResponseRecord {
	start := timing.Start()
	k := key(host, port, clientID)

	if err := a.registry.Reserve(k); err != nil {
		return a.fail(start, "reserve: "+err.Error())
	}

	timeout := time.Duration(timeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	tcpConn, err := net.DialTimeout("tcp", net.JoinHostPort(host, fmt.Sprint(port)), timeout)
	if err != nil {
		a.registry.Cancel(k)
		return a.fail(start, "dial: "+err.Error())
	}

	packet, err := buildConnect(clientID, username, password, keepAliveSec)
	if err != nil {
		tcpConn.Close()
		a.registry.Cancel(k)
		return a.fail(start, "build CONNECT: "+err.Error())
	}
	if _, err := tcpConn.Write(packet); err != nil {
		tcpConn.Close()
		a.registry.Cancel(k)
		return a.fail(start, "write CONNECT: "+err.Error())
	}

	tcpConn.SetReadDeadline(time.Now().Add(timeout))
	ack := make([]byte, 4)
	if _, err := tcpConn.Read(ack); err != nil {
		tcpConn.Close()
		a.registry.Cancel(k)
		return a.fail(start, "await CONNACK: "+err.Error())
	}

	elapsed := timing.ElapsedMicros(start)
	a.registry.Commit(k, &conn{tcp: tcpConn, state: stateConnected})
	a.metrics.Record(elapsed, true)
	return model.ResponseRecord{Protocol: model.ProtocolMQTT, StatusCode: 200, Success: true, ResponseTimeUS: elapsed}
}

// Publish sends a PUBLISH packet for topic/payload at the given qos. QoS>0
// increments this connection's packet-id counter. Per §4.8 and
// SPEC_FULL.md's Open Question (b), Publish is optimistic: it does not wait
// for PUBACK even at qos>0, so success here means "bytes written to the
// socket", not "broker acknowledged".
func (a *Adapter) Publish(host string, port int, clientID, topic string, payload []byte, qos byte, retain bool) model.ResponseRecord {
	start := timing.Start()
	k := key(host, port, clientID)

	c, ok := a.registry.Find(k)
	if !ok || c.state != stateConnected {
		return a.fail(start, "not connected")
	}

	var packetID uint16
	if qos > 0 {
		packetID = c.nextPacketID()
	}

	packet, err := buildPublish(topic, payload, qos, retain, packetID)
	if err != nil {
		return a.fail(start, "build PUBLISH: "+err.Error())
	}

	_, err = c.tcp.Write(packet)
	elapsed := timing.ElapsedMicros(start)
	if err != nil {
		a.metrics.Record(elapsed, false)
		return model.ResponseRecord{Protocol: model.ProtocolMQTT, Success: false, ErrorMessage: "mqttadapter: write PUBLISH: " + err.Error(), ResponseTimeUS: elapsed}
	}

	a.metrics.Record(elapsed, true)
	return model.ResponseRecord{
		Protocol:       model.ProtocolMQTT,
		StatusCode:     200,
		Success:        true,
		ResponseTimeUS: elapsed,
		MQTT: &model.MQTTTrailer{
			MessagePublished: true,
			PublishedCount:   1,
			Topic:            topic,
			LastMessage:      payload,
			QoSLevel:         qos,
			Retained:         retain,
			PublishTimeUS:    elapsed,
		},
	}
}

// Subscribe writes a SUBSCRIBE packet and reports success without waiting
// for SUBACK, the best-effort mode §4.8 permits.
func (a *Adapter) Subscribe(host string, port int, clientID, topic string, qos byte) model.ResponseRecord {
	start := timing.Start()
	k := key(host, port, clientID)

	c, ok := a.registry.Find(k)
	if !ok || c.state != stateConnected {
		return a.fail(start, "not connected")
	}
	packet, err := buildSubscribe(topic, qos, c.nextPacketID())
	if err != nil {
		return a.fail(start, "build SUBSCRIBE: "+err.Error())
	}
	if _, err := c.tcp.Write(packet); err != nil {
		elapsed := timing.ElapsedMicros(start)
		a.metrics.Record(elapsed, false)
		return model.ResponseRecord{Protocol: model.ProtocolMQTT, Success: false, ErrorMessage: "mqttadapter: write SUBSCRIBE: " + err.Error(), ResponseTimeUS: elapsed}
	}
	elapsed := timing.ElapsedMicros(start)
	a.metrics.Record(elapsed, true)
	return model.ResponseRecord{Protocol: model.ProtocolMQTT, StatusCode: 200, Success: true, ResponseTimeUS: elapsed, MQTT: &model.MQTTTrailer{Topic: topic, QoSLevel: qos}}
}

// Unsubscribe writes an UNSUBSCRIBE packet and reports success without
// waiting for UNSUBACK, mirroring Subscribe's best-effort mode.
func (a *Adapter) Unsubscribe(host string, port int, clientID, topic string) model.ResponseRecord {
	start := timing.Start()
	k := key(host, port, clientID)

	c, ok := a.registry.Find(k)
	if !ok || c.state != stateConnected {
		return a.fail(start, "not connected")
	}
	packet, err := buildUnsubscribe(topic, c.nextPacketID())
	if err != nil {
		return a.fail(start, "build UNSUBSCRIBE: "+err.Error())
	}
	if _, err := c.tcp.Write(packet); err != nil {
		elapsed := timing.ElapsedMicros(start)
		a.metrics.Record(elapsed, false)
		return model.ResponseRecord{Protocol: model.ProtocolMQTT, Success: false, ErrorMessage: "mqttadapter: write UNSUBSCRIBE: " + err.Error(), ResponseTimeUS: elapsed}
	}
	elapsed := timing.ElapsedMicros(start)
	a.metrics.Record(elapsed, true)
	return model.ResponseRecord{Protocol: model.ProtocolMQTT, StatusCode: 200, Success: true, ResponseTimeUS: elapsed, MQTT: &model.MQTTTrailer{Topic: topic}}
}

// Disconnect sends the fixed DISCONNECT packet and closes the socket,
// per §4.8. Idempotent.
func (a *Adapter) Disconnect(host string, port int, clientID string) model.ResponseRecord {
	start := timing.Start()
	k := key(host, port, clientID)

	if c, ok := a.registry.Find(k); ok && c.state == stateConnected {
		c.state = stateDisconnecting
		_, _ = c.tcp.Write(disconnectPacket)
	}
	_ = a.registry.Close(k)

	elapsed := timing.ElapsedMicros(start)
	a.metrics.Record(elapsed, true)
	return model.ResponseRecord{Protocol: model.ProtocolMQTT, StatusCode: 200, Success: true, ResponseTimeUS: elapsed}
}

func (a *Adapter) fail(start time.Time, msg string) model.ResponseRecord {
	elapsed := timing.ElapsedMicros(start)
	a.metrics.Record(elapsed, false)
	return model.ResponseRecord{Protocol: model.ProtocolMQTT, Success: false, ErrorMessage: "mqttadapter: " + msg, ResponseTimeUS: elapsed}
}
