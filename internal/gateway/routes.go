package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/soyeahso/mirror/internal/agent"
	"github.com/soyeahso/mirror/internal/calendar"
	"github.com/soyeahso/mirror/internal/hooks"
	"github.com/soyeahso/mirror/internal/weather"
)

// maxChatBody caps the JSON body of chat requests.
const maxChatBody = 64 << 10

var errEmptyMessage = errors.New("message is required")

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /weather", s.handleWeather)
	mux.HandleFunc("GET /calendar", s.handleCalendar)
	mux.HandleFunc("POST /chat", s.handleChatAudio)
	mux.HandleFunc("POST /chat/text", s.handleChatText)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up all WebSocket method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("chat.send", s.rpcChatSend)
	s.Handle("weather.get", s.rpcWeatherGet)
	s.Handle("calendar.list", s.rpcCalendarList)
}

// --- HTTP handlers ---

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	res, status, err := s.lookupWeather(r.Context(), r.URL.Query().Get("location"))
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	events, status, err := s.upcomingEvents(r.Context())
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// handleChatText runs a turn and answers with the reply as JSON.
func (s *Server) handleChatText(w http.ResponseWriter, r *http.Request) {
	res, ok := s.runHTTPTurn(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, NewChatResponse(res))
}

// handleChatAudio runs a turn and answers with the spoken reply. When speech
// fails the display still gets the reply text, with a 502.
func (s *Server) handleChatAudio(w http.ResponseWriter, r *http.Request) {
	res, ok := s.runHTTPTurn(w, r)
	if !ok {
		return
	}
	resp := NewChatResponse(res)

	if s.speech == nil {
		resp.Error = "speech synthesis not configured"
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}

	ctx := r.Context()
	audio, err := s.speech.Synthesize(ctx, res.Reply.Text)
	if err != nil {
		s.log.Warn().Err(err).Str("turnId", res.ID).Msg("speech synthesis failed")
		resp.Error = err.Error()
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}

	if s.hooks != nil {
		s.hooks.Emit(ctx, hooks.EventSpeechReady, map[string]any{
			"turnId": res.ID,
			"bytes":  len(audio.Data),
			"clip":   audio.Duration.String(),
		})
	}

	w.Header().Set("Content-Type", audio.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(audio.Data)))
	w.Header().Set("X-Turn-ID", res.ID)
	w.WriteHeader(http.StatusOK)
	w.Write(audio.Data)
}

// runHTTPTurn decodes the chat body and runs a turn, writing the error
// response itself when it returns false.
func (s *Server) runHTTPTurn(w http.ResponseWriter, r *http.Request) (*agent.TurnResult, bool) {
	msg, err := readChatMessage(http.MaxBytesReader(w, r.Body, maxChatBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "assistant not configured")
		return nil, false
	}

	return s.runner.Run(r.Context(), msg), true
}

func readChatMessage(body io.Reader) (string, error) {
	var req chatRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return "", errors.New("invalid JSON body")
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return "", errEmptyMessage
	}
	return msg, nil
}

// lookupWeather resolves the location (falling back to the configured
// default) and returns the result or an HTTP status for the failure.
func (s *Server) lookupWeather(ctx context.Context, location string) (*weather.Result, int, error) {
	if s.weather == nil {
		return nil, http.StatusServiceUnavailable, errors.New("weather not configured")
	}
	location = strings.TrimSpace(location)
	if location == "" {
		location = s.cfg.Weather.DefaultLocation
	}
	if location == "" {
		return nil, http.StatusBadRequest, errors.New("location is required")
	}
	res, err := s.weather.Current(ctx, location)
	if err != nil {
		s.log.Warn().Err(err).Str("location", location).Msg("weather lookup failed")
		return nil, http.StatusBadGateway, err
	}
	return res, http.StatusOK, nil
}

// upcomingEvents lists the configured lookahead window. The result is never
// nil so it encodes as a JSON array.
func (s *Server) upcomingEvents(ctx context.Context) ([]calendar.Event, int, error) {
	if s.calendar == nil {
		return nil, http.StatusServiceUnavailable, errors.New("calendar not configured")
	}
	days := s.cfg.Calendar.LookaheadDays
	if days <= 0 {
		days = 7
	}
	from := s.now()
	events, err := s.calendar.Upcoming(ctx, from, from.AddDate(0, 0, days))
	if err != nil {
		s.log.Warn().Err(err).Msg("calendar listing failed")
		return nil, http.StatusBadGateway, err
	}
	if events == nil {
		events = []calendar.Event{}
	}
	return events, http.StatusOK, nil
}

// --- RPC handlers ---

func (s *Server) rpcHealth(rc *RequestContext) {
	rc.Respond(HealthResponse{
		Status:   "ok",
		Version:  s.version,
		Clients:  s.clients.Count(),
		UptimeMs: s.now().Sub(s.startedAt).Milliseconds(),
		Services: map[string]bool{
			"assistant": s.runner != nil,
			"weather":   s.weather != nil,
			"calendar":  s.calendar != nil,
			"speech":    s.speech != nil,
		},
	})
}

func (s *Server) rpcChatSend(rc *RequestContext) {
	if s.runner == nil {
		rc.RespondError(CodeUnavailable, "assistant not configured")
		return
	}

	var p chatRequest
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	msg := strings.TrimSpace(p.Message)
	if msg == "" {
		rc.RespondError(CodeInvalidParams, errEmptyMessage.Error())
		return
	}

	rc.Respond(NewChatResponse(s.runner.Run(rc.Ctx, msg)))
}

type weatherParams struct {
	Location string `json:"location"`
}

func (s *Server) rpcWeatherGet(rc *RequestContext) {
	var p weatherParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	res, status, err := s.lookupWeather(rc.Ctx, p.Location)
	if err != nil {
		rc.RespondError(rpcCode(status), err.Error())
		return
	}
	rc.Respond(res)
}

func (s *Server) rpcCalendarList(rc *RequestContext) {
	events, status, err := s.upcomingEvents(rc.Ctx)
	if err != nil {
		rc.RespondError(rpcCode(status), err.Error())
		return
	}
	rc.Respond(map[string]any{"events": events})
}

// rpcCode maps an HTTP status onto an RPC error code.
func rpcCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeInvalidParams
	case http.StatusServiceUnavailable:
		return CodeUnavailable
	default:
		return CodeUpstreamError
	}
}
