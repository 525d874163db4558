package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/soyeahso/mirror/internal/agent"
)

// HealthResponse is returned by health endpoints. The public HTTP endpoint
// only populates Status; the authenticated RPC handler populates all fields.
type HealthResponse struct {
	Status   string          `json:"status"`
	Version  string          `json:"version,omitempty"`
	Clients  int             `json:"clients,omitempty"`
	UptimeMs int64           `json:"uptimeMs,omitempty"`
	Services map[string]bool `json:"services,omitempty"`
}

// ChatResponse is the JSON shape of a turn as the display consumes it: the
// final reply's command, parameters and text, plus the executed action when
// the display has to act on it (play_song).
type ChatResponse struct {
	TurnID     string          `json:"turnId"`
	Command    agent.Command   `json:"command"`
	Parameters map[string]any  `json:"parameters"`
	Text       string          `json:"text"`
	Action     *agent.Decision `json:"action,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// NewChatResponse builds the display payload for a turn.
func NewChatResponse(res *agent.TurnResult) ChatResponse {
	return ChatResponse{
		TurnID:     res.ID,
		Command:    res.Reply.Command,
		Parameters: res.Reply.Parameters(),
		Text:       res.Reply.Text,
		Action:     res.Action,
	}
}

type chatRequest struct {
	Message string `json:"message"`
}

// handleHealth returns the server health status. Only status is exposed
// publicly; detailed info is available via the authenticated RPC health method.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// RequestHandler processes an incoming RPC request frame from a client.
type RequestHandler func(ctx *RequestContext)

// RequestContext carries everything a handler needs.
type RequestContext struct {
	Ctx    context.Context
	Client *Client
	Frame  Frame
	Server *Server
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	rc.Client.RespondError(rc.Frame.ID, ErrorShape{
		Code:      code,
		Message:   message,
		Retryable: code == CodeUpstreamError,
	})
}

// Params unmarshals the request params into the given target.
func (rc *RequestContext) Params(target any) error {
	if rc.Frame.Params == nil {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, target)
}
