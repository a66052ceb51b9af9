// Package udpadapter implements the UDP protocol adapter (§4.7): endpoint
// management plus datagram send/receive, using net.ListenConfig.Control to
// set SO_REUSEADDR the same way a net-heavy example in the retrieval pack
// enables address reuse for ephemeral listeners — here applied to UDP
// receive sockets that may contend with an in-flight send socket on the
// same port.
package udpadapter

import (
	"context"
	"net"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/firasghr/loadspiker-engine/logger"
	"github.com/firasghr/loadspiker-engine/metrics"
	"github.com/firasghr/loadspiker-engine/model"
	"github.com/firasghr/loadspiker-engine/registry"
	"github.com/firasghr/loadspiker-engine/timing"
)

// MaxEntries bounds the UDP endpoint registry, per §3's invariant (b).
const MaxEntries = 100

// receiveCeiling is the 1s readiness wait used by Receive, per §4.7.
const receiveCeiling = 1 * time.Second

type endpoint struct {
	conn *net.UDPConn
}

func (e *endpoint) Close() error {
	if e.conn == nil {
		return nil
	}
	return e.conn.Close()
}

// Adapter manages UDP endpoints keyed by "host:port".
type Adapter struct {
	registry *registry.Registry[string, *endpoint]
	metrics  *metrics.Aggregator
	log      *logger.Logger
}

// New creates a UDP adapter with its own bounded registry. log is optional;
// pass nil to disable the adapter's bind-failure logging.
func New(m *metrics.Aggregator, log *logger.Logger) *Adapter {
	return &Adapter{registry: registry.New[string, *endpoint](MaxEntries), metrics: m, log: log}
}

func key(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

var reuseAddrControl = func(network, address string, c syscall.RawConn) error {
	var setErr error
	err := c.Control(func(fd uintptr) {
		setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return setErr
}

// CreateEndpoint allocates a send-capable socket for host:port with
// SO_REUSEADDR set. The socket is bound to an ephemeral local port (":0")
// when it is created; it is not bound to host:port.
func (a *Adapter) CreateEndpoint(host string, port int) model.ResponseRecord {
	start := timing.Start()
	k := key(host, port)

	if _, ok := a.registry.Find(k); ok {
		elapsed := timing.ElapsedMicros(start)
		a.metrics.Record(elapsed, true)
		return model.ResponseRecord{Protocol: model.ProtocolUDP, StatusCode: 200, Success: true, ResponseTimeUS: elapsed}
	}
	if err := a.registry.Reserve(k); err != nil {
		return a.fail(start, "reserve: "+err.Error())
	}

	lc := net.ListenConfig{Control: reuseAddrControl}
	pc, err := lc.ListenPacket(context.Background(), "udp", ":0")
	if err != nil {
		a.registry.Cancel(k)
		if a.log != nil {
			a.log.Errorf("udpadapter: bind failed for %s (non-fatal): %v", k, err)
		}
		return a.fail(start, "create socket: "+err.Error())
	}

	elapsed := timing.ElapsedMicros(start)
	a.registry.Commit(k, &endpoint{conn: pc.(*net.UDPConn)})
	a.metrics.Record(elapsed, true)
	return model.ResponseRecord{Protocol: model.ProtocolUDP, StatusCode: 200, Success: true, ResponseTimeUS: elapsed}
}

// Send resolves host:port and sendto's data in one call, auto-creating the
// endpoint if absent.
func (a *Adapter) Send(host string, port int, data []byte) model.ResponseRecord {
	start := timing.Start()
	k := key(host, port)

	e, ok := a.registry.Find(k)
	if !ok {
		a.CreateEndpoint(host, port)
		e, ok = a.registry.Find(k)
		if !ok {
			return a.fail(start, "could not auto-create endpoint")
		}
	}

	dst, err := net.ResolveUDPAddr("udp", k)
	if err != nil {
		return a.fail(start, "resolve: "+err.Error())
	}

	n, err := e.conn.WriteTo(data, dst)
	elapsed := timing.ElapsedMicros(start)
	if err != nil {
		a.metrics.Record(elapsed, false)
		return model.ResponseRecord{Protocol: model.ProtocolUDP, Success: false, ErrorMessage: "udpadapter: sendto: " + err.Error(), ResponseTimeUS: elapsed}
	}
	a.metrics.Record(elapsed, true)
	return model.ResponseRecord{
		Protocol:       model.ProtocolUDP,
		StatusCode:     200,
		Success:        true,
		ResponseTimeUS: elapsed,
		UDP:            &model.UDPTrailer{SocketID: k, BytesSent: n, RemoteHost: host, RemotePort: port},
	}
}

// Receive waits up to 1s for a datagram on host:port's endpoint. A timeout
// is a normal outcome (status 204). Receive reads on the endpoint's own
// ephemeral socket and auto-creates the endpoint when absent; if that
// creation fails (the failure is logged), Receive returns a failure record.
func (a *Adapter) Receive(host string, port int) model.ResponseRecord {
	start := timing.Start()
	k := key(host, port)

	e, ok := a.registry.Find(k)
	if !ok {
		a.CreateEndpoint(host, port)
		e, ok = a.registry.Find(k)
		if !ok {
			return a.fail(start, "could not auto-create endpoint")
		}
	}

	e.conn.SetReadDeadline(time.Now().Add(receiveCeiling))
	buf := make([]byte, model.MaxBodyBytes)
	n, remote, err := e.conn.ReadFromUDP(buf)
	elapsed := timing.ElapsedMicros(start)

	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			a.metrics.Record(elapsed, true)
			return model.ResponseRecord{Protocol: model.ProtocolUDP, StatusCode: 204, Success: true, ResponseTimeUS: elapsed, UDP: &model.UDPTrailer{SocketID: k}}
		}
		a.metrics.Record(elapsed, false)
		return model.ResponseRecord{Protocol: model.ProtocolUDP, Success: false, ErrorMessage: "udpadapter: read: " + err.Error(), ResponseTimeUS: elapsed}
	}

	a.metrics.Record(elapsed, true)
	rh, rp := host, port
	if remote != nil {
		rh, rp = remote.IP.String(), remote.Port
	}
	return model.ResponseRecord{
		Protocol:       model.ProtocolUDP,
		StatusCode:     200,
		Success:        true,
		Body:           buf[:n],
		ResponseTimeUS: elapsed,
		UDP:            &model.UDPTrailer{SocketID: k, BytesReceived: n, RemoteHost: rh, RemotePort: rp},
	}
}

// Close releases the endpoint for host:port. Idempotent.
func (a *Adapter) Close(host string, port int) model.ResponseRecord {
	start := timing.Start()
	k := key(host, port)
	_ = a.registry.Close(k)
	elapsed := timing.ElapsedMicros(start)
	a.metrics.Record(elapsed, true)
	return model.ResponseRecord{Protocol: model.ProtocolUDP, StatusCode: 200, Success: true, ResponseTimeUS: elapsed}
}

func (a *Adapter) fail(start time.Time, msg string) model.ResponseRecord {
	elapsed := timing.ElapsedMicros(start)
	a.metrics.Record(elapsed, false)
	return model.ResponseRecord{Protocol: model.ProtocolUDP, Success: false, ErrorMessage: "udpadapter: " + msg, ResponseTimeUS: elapsed}
}
