// Package dispatch implements the engine's protocol-detection and routing
// layer (§4.10): inspect a request descriptor's URL scheme (or, for MQTT,
// its method), pick the matching adapter, and return its response record.
// This plays the role the teacher's Scheduler played in bridging
// SessionManager and WorkerPool (see driver/scheduler.go) — here
// generalised from "one session, one HTTP job" to "one descriptor, any of
// six wire protocols".
package dispatch

import (
	"net"
	"strconv"
	"strings"

	"github.com/firasghr/loadspiker-engine/browser"
	"github.com/firasghr/loadspiker-engine/client"
	"github.com/firasghr/loadspiker-engine/config"
	"github.com/firasghr/loadspiker-engine/dbadapter"
	"github.com/firasghr/loadspiker-engine/engineerr"
	"github.com/firasghr/loadspiker-engine/httpadapter"
	"github.com/firasghr/loadspiker-engine/logger"
	"github.com/firasghr/loadspiker-engine/metrics"
	"github.com/firasghr/loadspiker-engine/model"
	"github.com/firasghr/loadspiker-engine/mqttadapter"
	"github.com/firasghr/loadspiker-engine/proxy"
	"github.com/firasghr/loadspiker-engine/tcpadapter"
	"github.com/firasghr/loadspiker-engine/udpadapter"
	"github.com/firasghr/loadspiker-engine/wsadapter"
)

// schemePrefixes maps a case-insensitive URL scheme prefix to the protocol
// it routes to, per §6 and §4.10. Database schemes and their aliases route
// to ProtocolDatabase; grpc/grpcs are detected but never dispatched.
var schemePrefixes = []struct {
	prefix   string
	protocol model.Protocol
}{
	{"ws://", model.ProtocolWebSocket},
	{"wss://", model.ProtocolWebSocket},
	{"mysql://", model.ProtocolDatabase},
	{"postgresql://", model.ProtocolDatabase},
	{"postgres://", model.ProtocolDatabase},
	{"mongodb://", model.ProtocolDatabase},
	{"mongo://", model.ProtocolDatabase},
	{"grpc://", model.ProtocolGRPC},
	{"grpcs://", model.ProtocolGRPC},
	{"tcp://", model.ProtocolTCP},
	{"udp://", model.ProtocolUDP},
}

// DetectProtocol inspects rawURL's scheme prefix and returns the protocol it
// routes to, per §4.10. Any scheme not matched by a known prefix (including
// bare http://, https://, or no scheme at all) is treated as HTTP.
func DetectProtocol(rawURL string) model.Protocol {
	lower := strings.ToLower(rawURL)
	for _, sp := range schemePrefixes {
		if strings.HasPrefix(lower, sp.prefix) {
			return sp.protocol
		}
	}
	return model.ProtocolHTTP
}

// MQTT operation method tags, used for dispatch-by-method since MQTT is not
// routed by URL scheme (§4.10).
const (
	MethodMQTTConnect     = "MQTT_CONNECT"
	MethodMQTTPublish     = "MQTT_PUBLISH"
	MethodMQTTSubscribe   = "MQTT_SUBSCRIBE"
	MethodMQTTUnsubscribe = "MQTT_UNSUBSCRIBE"
	MethodMQTTDisconnect  = "MQTT_DISCONNECT"

	MethodWSConnect = "WS_CONNECT"
	MethodWSSend    = "WS_SEND"
	MethodWSClose   = "WS_CLOSE"

	MethodTCPConnect    = "TCP_CONNECT"
	MethodTCPSend       = "TCP_SEND"
	MethodTCPReceive    = "TCP_RECEIVE"
	MethodTCPDisconnect = "TCP_DISCONNECT"

	MethodUDPSend    = "UDP_SEND"
	MethodUDPReceive = "UDP_RECEIVE"
	MethodUDPClose   = "UDP_CLOSE"

	MethodDBConnect    = "DB_CONNECT"
	MethodDBQuery      = "DB_QUERY"
	MethodDBDisconnect = "DB_DISCONNECT"
)

// Engine routes request descriptors to the right protocol adapter and
// returns a stamped response record. Every adapter credits the shared
// metrics aggregator itself exactly once per call, so Engine does not
// credit a second time.
type Engine struct {
	HTTP *httpadapter.Adapter
	WS   *wsadapter.Adapter
	TCP  *tcpadapter.Adapter
	UDP  *udpadapter.Adapter
	MQTT *mqttadapter.Adapter
	DB   *dbadapter.Adapter
}

// NewHTTPEngine is the engine's composition root: it builds every protocol
// adapter against a shared metrics.Aggregator, routing the HTTP adapter's
// *http.Client through client.NewHTTPClientFromRotator so cfg's proxy file
// and browser fingerprint profile actually shape outgoing HTTP traffic
// instead of sitting unused behind a fixed http.Client. pm may be nil (or
// have no proxies loaded) to run direct; log may be nil to disable the
// HTTP/UDP adapters' failure logging.
func NewHTTPEngine(cfg *config.Config, pm *proxy.ProxyManager, m *metrics.Aggregator, log *logger.Logger) (*Engine, error) {
	profile, err := browser.ProfileByName(cfg.BrowserProfile)
	if err != nil {
		return nil, engineerr.New("dispatch.NewHTTPEngine", engineerr.InvalidArgument, err)
	}

	httpClient, err := client.NewHTTPClientFromRotator(pm, cfg.HTTPTimeout, profile)
	if err != nil {
		return nil, engineerr.New("dispatch.NewHTTPEngine", engineerr.TransportFailed, err)
	}

	return &Engine{
		HTTP: httpadapter.New(httpClient, m, log),
		WS:   wsadapter.New(m),
		TCP:  tcpadapter.New(m),
		UDP:  udpadapter.New(m, log),
		MQTT: mqttadapter.New(m),
		DB:   dbadapter.New(m),
	}, nil
}

// Execute routes req to the adapter matching its detected protocol (or its
// explicit MQTT method) and returns the resulting response record.
func (e *Engine) Execute(req model.RequestDescriptor) model.ResponseRecord {
	if isMQTTMethod(req.Method) {
		return e.executeMQTT(req)
	}

	protocol := req.Protocol
	if protocol == "" {
		protocol = DetectProtocol(req.URL)
	}

	switch protocol {
	case model.ProtocolHTTP:
		return e.HTTP.Execute(req)
	case model.ProtocolWebSocket:
		return e.executeWS(req)
	case model.ProtocolTCP:
		return e.executeTCP(req)
	case model.ProtocolUDP:
		return e.executeUDP(req)
	case model.ProtocolDatabase:
		return e.executeDB(req)
	case model.ProtocolGRPC:
		return reservedRecord(protocol)
	default:
		return reservedRecord(protocol)
	}
}

func isMQTTMethod(method string) bool {
	switch method {
	case MethodMQTTConnect, MethodMQTTPublish, MethodMQTTSubscribe, MethodMQTTUnsubscribe, MethodMQTTDisconnect:
		return true
	}
	return false
}

func (e *Engine) executeMQTT(req model.RequestDescriptor) model.ResponseRecord {
	if req.MQTT == nil {
		return errorRecord(model.ProtocolMQTT, "dispatch: MQTT request missing MQTT payload")
	}
	host, port, err := splitHostPort(req.URL, 1883)
	if err != nil {
		return errorRecord(model.ProtocolMQTT, "dispatch: "+err.Error())
	}
	p := req.MQTT

	switch req.Method {
	case MethodMQTTConnect:
		return e.MQTT.Connect(host, port, p.ClientID, p.Username, p.Password, p.KeepAliveSec, req.TimeoutMS)
	case MethodMQTTPublish:
		return e.MQTT.Publish(host, port, p.ClientID, p.Topic, p.Payload, p.QoS, p.Retain)
	case MethodMQTTSubscribe:
		return e.MQTT.Subscribe(host, port, p.ClientID, p.Topic, p.QoS)
	case MethodMQTTUnsubscribe:
		return e.MQTT.Unsubscribe(host, port, p.ClientID, p.Topic)
	case MethodMQTTDisconnect:
		return e.MQTT.Disconnect(host, port, p.ClientID)
	default:
		return errorRecord(model.ProtocolMQTT, "dispatch: unknown MQTT method "+req.Method)
	}
}

func (e *Engine) executeWS(req model.RequestDescriptor) model.ResponseRecord {
	switch req.Method {
	case MethodWSClose:
		return e.WS.Close(req.URL)
	case MethodWSSend:
		msg, isBinary := "", false
		if req.WS != nil {
			msg, isBinary = req.WS.Message, req.WS.IsBinary
		}
		return e.WS.Send(req.URL, msg, isBinary)
	default: // MethodWSConnect and bare descriptors default to connect
		subprotocol := ""
		if req.WS != nil {
			subprotocol = req.WS.Subprotocol
		}
		return e.WS.Connect(req.URL, subprotocol, req.TimeoutMS)
	}
}

func (e *Engine) executeTCP(req model.RequestDescriptor) model.ResponseRecord {
	host, port, err := splitHostPort(req.URL, 80)
	if err != nil {
		return errorRecord(model.ProtocolTCP, "dispatch: "+err.Error())
	}
	switch req.Method {
	case MethodTCPSend:
		return e.TCP.Send(host, port, req.Body)
	case MethodTCPReceive:
		return e.TCP.Receive(host, port)
	case MethodTCPDisconnect:
		return e.TCP.Disconnect(host, port)
	default:
		return e.TCP.Connect(host, port)
	}
}

func (e *Engine) executeUDP(req model.RequestDescriptor) model.ResponseRecord {
	host, port, err := splitHostPort(req.URL, 53)
	if err != nil {
		return errorRecord(model.ProtocolUDP, "dispatch: "+err.Error())
	}
	switch req.Method {
	case MethodUDPReceive:
		return e.UDP.Receive(host, port)
	case MethodUDPClose:
		return e.UDP.Close(host, port)
	default:
		return e.UDP.Send(host, port, req.Body)
	}
}

func (e *Engine) executeDB(req model.RequestDescriptor) model.ResponseRecord {
	connStr := req.URL
	driver := "simulated"
	if req.DB != nil {
		if req.DB.ConnectionString != "" {
			connStr = req.DB.ConnectionString
		}
		if req.DB.Driver != "" {
			driver = req.DB.Driver
		}
	}

	switch req.Method {
	case MethodDBQuery:
		query := ""
		if req.DB != nil {
			query = req.DB.Query
		}
		return e.DB.Query(connStr, query)
	case MethodDBDisconnect:
		return e.DB.Disconnect(connStr)
	default:
		return e.DB.Connect(connStr, driver)
	}
}

// splitHostPort strips a scheme prefix from rawURL and splits host:port,
// applying defaultPort when no port is present.
func splitHostPort(rawURL string, defaultPort int) (string, int, error) {
	trimmed := rawURL
	if idx := strings.Index(rawURL, "://"); idx >= 0 {
		trimmed = rawURL[idx+3:]
	}
	trimmed = strings.TrimSuffix(trimmed, "/")

	host, portStr, err := net.SplitHostPort(trimmed)
	if err != nil {
		return trimmed, defaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, engineerr.New("dispatch: splitHostPort", engineerr.InvalidArgument, err)
	}
	return host, port, nil
}

func reservedRecord(protocol model.Protocol) model.ResponseRecord {
	return model.ResponseRecord{
		Protocol:     protocol,
		Success:      false,
		ErrorMessage: "dispatch: " + string(protocol) + " is reserved and not yet dispatched",
	}
}

func errorRecord(protocol model.Protocol, msg string) model.ResponseRecord {
	return model.ResponseRecord{Protocol: protocol, Success: false, ErrorMessage: msg}
}
