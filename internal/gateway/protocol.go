package gateway

import (
	"encoding/json"
	"fmt"
)

// Protocol version supported by this server.
const ProtocolVersion = 1

// Frame types for the WebSocket protocol.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Events pushed to connected displays.
const (
	EventConnectChallenge = "connect.challenge"
	EventChatReply        = "chat.reply" // payload is a ChatResponse
)

// Error codes carried in ErrorShape.Code.
const (
	CodeProtocolError       = "protocol_error"
	CodeUnsupportedProtocol = "unsupported_protocol"
	CodeUnauthorized        = "unauthorized"
	CodeInvalidParams       = "invalid_params"
	CodeMethodNotFound      = "method_not_found"
	CodeUnavailable         = "unavailable"
	CodeUpstreamError       = "upstream_error"
)

// Client modes. Displays receive every chat.reply; cli clients only get
// responses to their own requests.
const (
	ModeDisplay = "display"
	ModeCLI     = "cli"
)

// Frame is the envelope for every WebSocket message. Type discriminates
// between request, response, and event frames.
type Frame struct {
	Type string `json:"type"`

	// Request fields
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	// Response fields
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// Event fields
	Event string `json:"event,omitempty"`
	Seq   int64  `json:"seq,omitempty"`

	// Error (response only)
	Error *ErrorShape `json:"error,omitempty"`
}

// ErrorShape is the error format in response frames. Retryable is set when
// the failure came from an upstream service and the same request may succeed
// later.
type ErrorShape struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// ConnectParams are sent by the client in the initial "connect" request.
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol"`
	MaxProtocol int          `json:"maxProtocol"`
	Client      ClientInfo   `json:"client"`
	Auth        *ConnectAuth `json:"auth,omitempty"`
}

// negotiate checks that the client's protocol range covers ProtocolVersion.
// A zero range is accepted for clients that predate versioning.
func (p ConnectParams) negotiate() error {
	if p.MinProtocol == 0 && p.MaxProtocol == 0 {
		return nil
	}
	if p.MinProtocol > ProtocolVersion || (p.MaxProtocol != 0 && p.MaxProtocol < ProtocolVersion) {
		return fmt.Errorf("server speaks protocol %d, client wants %d-%d", ProtocolVersion, p.MinProtocol, p.MaxProtocol)
	}
	return nil
}

// ClientInfo identifies the connecting client.
type ClientInfo struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
	Mode     string `json:"mode"` // ModeDisplay (default) | ModeCLI
}

// ReceivesReplies reports whether the client wants chat.reply broadcasts.
func (i ClientInfo) ReceivesReplies() bool {
	return i.Mode != ModeCLI
}

// ConnectAuth carries credentials in the connect request.
type ConnectAuth struct {
	Token string `json:"token,omitempty"`
}

// HelloOK is the server's response payload after successful authentication.
type HelloOK struct {
	Protocol int          `json:"protocol"`
	Server   ServerInfo   `json:"server"`
	Features Features     `json:"features"`
	Policy   ServerPolicy `json:"policy"`
}

// ServerInfo identifies the mirror backend.
type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	ConnID  string `json:"connId"`
}

// Features advertises available RPC methods and events.
type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// ServerPolicy communicates protocol limits to the client. The server pings
// every PingIntervalMs and drops a client that misses two pongs.
type ServerPolicy struct {
	MaxPayload     int `json:"maxPayload"`
	PingIntervalMs int `json:"pingIntervalMs"`
}

// NewRequest creates a request frame.
func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:   FrameTypeRequest,
		ID:     id,
		Method: method,
		Params: raw,
	}, nil
}

// NewResponse creates a success response frame.
func NewResponse(id string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	ok := true
	return Frame{
		Type:    FrameTypeResponse,
		ID:      id,
		OK:      &ok,
		Payload: raw,
	}, nil
}

// NewErrorResponse creates an error response frame.
func NewErrorResponse(id string, errShape ErrorShape) Frame {
	ok := false
	return Frame{
		Type:  FrameTypeResponse,
		ID:    id,
		OK:    &ok,
		Error: &errShape,
	}
}

// NewEvent creates an event frame.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:    FrameTypeEvent,
		Event:   event,
		Payload: raw,
		Seq:     seq,
	}, nil
}
