package gateway

import (
	"encoding/json"
	"testing"

	"github.com/soyeahso/mirror/internal/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	frame, err := NewRequest("req-1", "weather.get", weatherParams{Location: "Seattle"})
	require.NoError(t, err)

	assert.Equal(t, FrameTypeRequest, frame.Type)
	assert.Equal(t, "req-1", frame.ID)
	assert.Equal(t, "weather.get", frame.Method)
	assert.JSONEq(t, `{"location":"Seattle"}`, string(frame.Params))
}

func TestNewRequest_NilParams(t *testing.T) {
	frame, err := NewRequest("req-1", "health", nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(frame.Params))
}

func TestNewResponse(t *testing.T) {
	frame, err := NewResponse("req-1", HealthResponse{Status: "ok"})
	require.NoError(t, err)

	assert.Equal(t, FrameTypeResponse, frame.Type)
	assert.Equal(t, "req-1", frame.ID)
	require.NotNil(t, frame.OK)
	assert.True(t, *frame.OK)
	assert.Nil(t, frame.Error)
	assert.JSONEq(t, `{"status":"ok"}`, string(frame.Payload))
}

func TestNewErrorResponse(t *testing.T) {
	frame := NewErrorResponse("req-1", ErrorShape{Code: CodeUpstreamError, Message: "weather: 502", Retryable: true})

	data, err := json.Marshal(frame)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "res",
		"id": "req-1",
		"ok": false,
		"error": {"code": "upstream_error", "message": "weather: 502", "retryable": true}
	}`, string(data))
}

func TestErrorShape_OmitsRetryable(t *testing.T) {
	data, err := json.Marshal(ErrorShape{Code: CodeInvalidParams, Message: "message is required"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "retryable")
}

func TestChatReplyEvent(t *testing.T) {
	action := agent.Decision{Command: agent.CommandPlaySong, Args: agent.PlaySongArgs{Song: "Yesterday"}, Text: "Queued."}
	reply := NewChatResponse(&agent.TurnResult{
		ID:     "turn-1",
		Reply:  agent.DefaultDecision("Here's Yesterday."),
		Action: &action,
	})

	frame, err := NewEvent(EventChatReply, reply, 7)
	require.NoError(t, err)
	assert.Equal(t, FrameTypeEvent, frame.Type)
	assert.Equal(t, int64(7), frame.Seq)
	assert.JSONEq(t, `{
		"turnId": "turn-1",
		"command": "none",
		"parameters": {},
		"text": "Here's Yesterday.",
		"action": {"command": "play_song", "parameters": {"song": "Yesterday"}, "text": "Queued."}
	}`, string(frame.Payload))

	var decoded ChatResponse
	require.NoError(t, json.Unmarshal(frame.Payload, &decoded))
	require.NotNil(t, decoded.Action)
	assert.Equal(t, action, *decoded.Action)
}

func TestConnectParamsNegotiate(t *testing.T) {
	tests := []struct {
		name     string
		min, max int
		wantErr  bool
	}{
		{"unversioned", 0, 0, false},
		{"exact", 1, 1, false},
		{"range", 1, 3, false},
		{"open max", 1, 0, false},
		{"too new", 2, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ConnectParams{MinProtocol: tt.min, MaxProtocol: tt.max}.negotiate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConnectParams_OmitsNilAuth(t *testing.T) {
	data, err := json.Marshal(ConnectParams{MinProtocol: 1, MaxProtocol: 1, Client: ClientInfo{ID: "display", Mode: ModeDisplay}})
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"auth"`)
}

func TestClientInfoReceivesReplies(t *testing.T) {
	assert.True(t, ClientInfo{Mode: ModeDisplay}.ReceivesReplies())
	assert.True(t, ClientInfo{}.ReceivesReplies())
	assert.False(t, ClientInfo{Mode: ModeCLI}.ReceivesReplies())
}

func TestHelloOK_Marshal(t *testing.T) {
	hello := HelloOK{
		Protocol: ProtocolVersion,
		Server:   ServerInfo{Version: "1.0.0", Commit: "abc1234", ConnID: "conn-1"},
		Features: Features{
			Methods: []string{"chat.send", "health"},
			Events:  []string{EventConnectChallenge, EventChatReply},
		},
		Policy: ServerPolicy{MaxPayload: maxPayload, PingIntervalMs: 30000},
	}

	data, err := json.Marshal(hello)
	require.NoError(t, err)

	var decoded HelloOK
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, hello, decoded)
}
