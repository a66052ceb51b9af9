// Package tcpadapter implements the raw TCP protocol adapter (§4.6):
// non-blocking connect with a readiness deadline verified via SO_ERROR, then
// deadlined send/receive on the resulting net.Conn. The non-blocking
// connect dance is built directly on golang.org/x/sys/unix (the teacher's
// dependency set already pulls in golang.org/x/sys transitively via
// golang.org/x/net/http2's h2_bundle); net.Dial alone cannot expose the
// SO_ERROR-after-readiness step this adapter's contract requires.
package tcpadapter

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/firasghr/loadspiker-engine/metrics"
	"github.com/firasghr/loadspiker-engine/model"
	"github.com/firasghr/loadspiker-engine/registry"
	"github.com/firasghr/loadspiker-engine/timing"
)

// MaxEntries bounds the TCP connection registry, per §3's invariant (b).
const MaxEntries = 100

// connectCeiling is the 5 s readiness-wait ceiling from §4.6.
const connectCeiling = 5 * time.Second

// receiveCeiling is the 1 s readiness wait used by Receive, per §4.6.
const receiveCeiling = 1 * time.Second

type entry struct {
	conn         net.Conn
	disconnected bool
}

func (e *entry) Close() error {
	if e.conn == nil {
		return nil
	}
	return e.conn.Close()
}

// Adapter manages raw TCP connections keyed by "host:port".
type Adapter struct {
	registry *registry.Registry[string, *entry]
	metrics  *metrics.Aggregator
}

// New creates a TCP adapter with its own bounded registry.
func New(m *metrics.Aggregator) *Adapter {
	return &Adapter{registry: registry.New[string, *entry](MaxEntries), metrics: m}
}

func key(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Connect dials host:port non-blocking, waits for writability with a 5s
// ceiling, verifies success via SO_ERROR, then switches the socket back to
// blocking mode before wrapping it as a net.Conn. Populates connect_time_us.
func (a *Adapter) Connect(host string, port int) model.ResponseRecord {
	start := timing.Start()
	k := key(host, port)

	if err := a.registry.Reserve(k); err != nil {
		return a.fail(start, "reserve: "+err.Error())
	}

	conn, err := dialNonBlocking(host, port, connectCeiling)
	if err != nil {
		a.registry.Cancel(k)
		return a.fail(start, "connect: "+err.Error())
	}

	elapsed := timing.ElapsedMicros(start)
	a.registry.Commit(k, &entry{conn: conn})
	a.metrics.Record(elapsed, true)
	return model.ResponseRecord{
		Protocol:       model.ProtocolTCP,
		StatusCode:     200,
		Success:        true,
		ResponseTimeUS: elapsed,
		TCP:            &model.TCPTrailer{SocketID: k, ConnectTimeUS: elapsed},
	}
}

// dialNonBlocking performs the connect(2)/select-for-writability/SO_ERROR
// sequence described in §4.6, returning a blocking-mode net.Conn on success.
func dialNonBlocking(host string, port int, ceiling time.Duration) (net.Conn, error) {
	ips, err := net.LookupHost(host)
	if err != nil || len(ips) == 0 {
		return nil, fmt.Errorf("resolve %q: %w", host, err)
	}
	ip := net.ParseIP(ips[0])

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set nonblocking: %w", err)
	}

	var addr unix.SockaddrInet4
	addr.Port = port
	copy(addr.Addr[:], ip.To4())

	err = unix.Connect(fd, &addr)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err == unix.EINPROGRESS {
		if !waitWritable(fd, ceiling) {
			unix.Close(fd)
			return nil, fmt.Errorf("connect: timed out after %s", ceiling)
		}
		soErr, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if gerr != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("getsockopt SO_ERROR: %w", gerr)
		}
		if soErr != 0 {
			unix.Close(fd)
			return nil, fmt.Errorf("connect: %s", unix.Errno(soErr))
		}
	}

	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("restore blocking mode: %w", err)
	}

	f := os.NewFile(uintptr(fd), key(host, port))
	conn, err := net.FileConn(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("wrap fd as net.Conn: %w", err)
	}
	return conn, nil
}

func waitWritable(fd int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	fdSet := &unix.FdSet{}
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		fdSet.Bits[fd/64] |= 1 << (uint(fd) % 64)
		tv := unix.NsecToTimeval(remaining.Nanoseconds())
		n, err := unix.Select(fd+1, nil, fdSet, nil, &tv)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return false
		}
		if n > 0 {
			return true
		}
		return false
	}
}

// Send writes data to the established connection for host:port.
func (a *Adapter) Send(host string, port int, data []byte) model.ResponseRecord {
	start := timing.Start()
	k := key(host, port)

	e, ok := a.registry.Find(k)
	if !ok || e.disconnected {
		return a.fail(start, "not connected")
	}

	n, err := e.conn.Write(data)
	elapsed := timing.ElapsedMicros(start)
	if err != nil {
		a.metrics.Record(elapsed, false)
		return model.ResponseRecord{Protocol: model.ProtocolTCP, Success: false, ErrorMessage: "tcpadapter: write: " + err.Error(), ResponseTimeUS: elapsed}
	}
	a.metrics.Record(elapsed, true)
	return model.ResponseRecord{
		Protocol:       model.ProtocolTCP,
		StatusCode:     200,
		Success:        true,
		ResponseTimeUS: elapsed,
		TCP:            &model.TCPTrailer{SocketID: k, BytesSent: n},
	}
}

// Receive reads from host:port's connection with a 1s readiness wait. A
// timeout with no data is a normal outcome: status 204, success=true, empty
// body. A peer-closed connection returns status 410 and marks the entry
// disconnected.
func (a *Adapter) Receive(host string, port int) model.ResponseRecord {
	start := timing.Start()
	k := key(host, port)

	e, ok := a.registry.Find(k)
	if !ok || e.disconnected {
		return a.fail(start, "not connected")
	}

	e.conn.SetReadDeadline(time.Now().Add(receiveCeiling))
	buf := make([]byte, model.MaxBodyBytes)
	n, err := e.conn.Read(buf)
	elapsed := timing.ElapsedMicros(start)

	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			a.metrics.Record(elapsed, true)
			return model.ResponseRecord{Protocol: model.ProtocolTCP, StatusCode: 204, Success: true, ResponseTimeUS: elapsed, TCP: &model.TCPTrailer{SocketID: k}}
		}
		// Treat any other read error (EOF, reset) as a peer-closed condition.
		e.disconnected = true
		a.metrics.Record(elapsed, false)
		return model.ResponseRecord{Protocol: model.ProtocolTCP, StatusCode: 410, Success: false, ErrorMessage: "tcpadapter: peer closed", ResponseTimeUS: elapsed, TCP: &model.TCPTrailer{SocketID: k}}
	}

	a.metrics.Record(elapsed, true)
	return model.ResponseRecord{
		Protocol:       model.ProtocolTCP,
		StatusCode:     200,
		Success:        true,
		Body:           buf[:n],
		ResponseTimeUS: elapsed,
		TCP:            &model.TCPTrailer{SocketID: k, BytesReceived: n},
	}
}

// Disconnect closes the connection for host:port. Idempotent.
func (a *Adapter) Disconnect(host string, port int) model.ResponseRecord {
	start := timing.Start()
	k := key(host, port)
	_ = a.registry.Close(k)
	elapsed := timing.ElapsedMicros(start)
	a.metrics.Record(elapsed, true)
	return model.ResponseRecord{Protocol: model.ProtocolTCP, StatusCode: 200, Success: true, ResponseTimeUS: elapsed}
}

func (a *Adapter) fail(start time.Time, msg string) model.ResponseRecord {
	elapsed := timing.ElapsedMicros(start)
	a.metrics.Record(elapsed, false)
	return model.ResponseRecord{Protocol: model.ProtocolTCP, Success: false, ErrorMessage: "tcpadapter: " + msg, ResponseTimeUS: elapsed}
}
