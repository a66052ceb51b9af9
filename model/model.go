// Package model defines the tagged request/response types shared by every
// adapter. A generic request/response pair uses a Protocol discriminator plus
// a protocol-specific payload/trailer pointer — a sum type expressed as a
// struct with optional fields rather than an untyped overlapping union,
// following §9's design note.
package model

import "github.com/firasghr/loadspiker-engine/timing"

// Protocol tags which wire protocol a descriptor/record belongs to.
type Protocol string

const (
	ProtocolHTTP      Protocol = "http"
	ProtocolWebSocket Protocol = "websocket"
	ProtocolTCP       Protocol = "tcp"
	ProtocolUDP       Protocol = "udp"
	ProtocolMQTT      Protocol = "mqtt"
	ProtocolDatabase  Protocol = "database"
	// ProtocolGRPC is detected but never dispatched; gRPC support is
	// reserved per spec.
	ProtocolGRPC Protocol = "grpc"
)

// Size bounds re-exported from package timing for callers that only import
// model.
const (
	MaxURLBytes          = timing.MaxURLBytes
	MaxHeaderBlockBytes  = timing.MaxHeaderBlockBytes
	MaxBodyBytes         = timing.MaxBodyBytes
	MaxProtocolBlobBytes = timing.MaxProtocolBlobBytes
)

// WSPayload carries the WebSocket-specific fields of a request descriptor.
type WSPayload struct {
	Subprotocol    string
	PingIntervalMS int
	// Message is the text/binary payload for a send operation; unused for
	// connect/close.
	Message  string
	IsBinary bool
}

// DBPayload carries the database-specific fields of a request descriptor.
type DBPayload struct {
	ConnectionString string
	Query            string
	// Driver selects the backend: "simulated" (default), "mysql", "postgres",
	// or "mongo".
	Driver string
}

// MQTTPayload carries the MQTT-specific fields of a request descriptor.
type MQTTPayload struct {
	ClientID     string
	Topic        string
	Payload      []byte
	QoS          byte
	Retain       bool
	KeepAliveSec uint16
	// Username/Password are optional CONNECT credentials.
	Username string
	Password string
}

// RequestDescriptor is a value type — it owns no references outside the
// enclosing scenario step.
type RequestDescriptor struct {
	Protocol  Protocol
	Method    string
	URL       string
	Headers   string // newline-separated "Name: value" pairs
	Body      []byte
	TimeoutMS int

	WS   *WSPayload
	DB   *DBPayload
	MQTT *MQTTPayload
}

// WSTrailer is the WebSocket-specific portion of a response record.
type WSTrailer struct {
	Subprotocol       string
	MessagesSent      int
	MessagesReceived  int
	BytesSent         int64
	BytesReceived     int64
}

// DBTrailer is the database-specific portion of a response record.
type DBTrailer struct {
	RowsAffected int64
	RowsReturned int64
	ResultSet    []map[string]interface{}
}

// TCPTrailer is the TCP-specific portion of a response record.
type TCPTrailer struct {
	SocketID      string
	BytesSent     int
	BytesReceived int
	ConnectTimeUS uint64
}

// UDPTrailer is the UDP-specific portion of a response record.
type UDPTrailer struct {
	SocketID      string
	BytesSent     int
	BytesReceived int
	RemoteHost    string
	RemotePort    int
}

// MQTTTrailer is the MQTT-specific portion of a response record.
type MQTTTrailer struct {
	MessagePublished bool
	MessageReceived  bool
	PublishedCount   int
	ReceivedCount    int
	Topic            string
	LastMessage      []byte
	QoSLevel         byte
	Retained         bool
	PublishTimeUS    uint64
}

// ResponseRecord is the tagged response type returned by every adapter.
type ResponseRecord struct {
	Protocol       Protocol
	StatusCode     int
	Headers        string
	Body           []byte
	ResponseTimeUS uint64
	Success        bool
	ErrorMessage   string

	WS   *WSTrailer
	DB   *DBTrailer
	TCP  *TCPTrailer
	UDP  *UDPTrailer
	MQTT *MQTTTrailer
}
