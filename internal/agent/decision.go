package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/mirror/internal/calendar"
)

// Command names the action the model chose.
type Command string

const (
	CommandGetWeather Command = "get_weather"
	CommandGetEvents  Command = "get_events"
	CommandAddEvent   Command = "add_event"
	CommandPlaySong   Command = "play_song"
	CommandNone       Command = "none"
)

// Fallback reply texts used when a turn cannot reach or understand the model.
const (
	FallbackNoClient    = "No API key configured."
	FallbackUnreachable = "Error contacting AI."
	FallbackMalformed   = "Could not parse AI response."
	FallbackUndecodable = "I didn't understand that."
)

// Args is the typed parameter set of a Decision. Each command has exactly
// one variant.
type Args interface {
	command() Command
}

// WeatherArgs are the parameters of get_weather.
type WeatherArgs struct {
	Location string `json:"location"`
}

// EventsArgs are the parameters of get_events.
type EventsArgs struct{}

// AddEventArgs are the parameters of add_event. Date is yyyy-mm-dd.
type AddEventArgs struct {
	EventName string `json:"event_name"`
	Date      string `json:"date"`
}

// PlaySongArgs are the parameters of play_song.
type PlaySongArgs struct {
	Song string `json:"song"`
}

// NoneArgs are the parameters of none.
type NoneArgs struct{}

func (WeatherArgs) command() Command  { return CommandGetWeather }
func (EventsArgs) command() Command   { return CommandGetEvents }
func (AddEventArgs) command() Command { return CommandAddEvent }
func (PlaySongArgs) command() Command { return CommandPlaySong }
func (NoneArgs) command() Command     { return CommandNone }

// Decision is the structured reply the model produces each phase.
type Decision struct {
	Command Command
	Args    Args
	Text    string
}

// DefaultDecision is a none decision speaking text.
func DefaultDecision(text string) Decision {
	return Decision{Command: CommandNone, Args: NoneArgs{}, Text: text}
}

// Parameters returns Args as a JSON-style object.
func (d Decision) Parameters() map[string]any {
	switch a := d.Args.(type) {
	case WeatherArgs:
		return map[string]any{"location": a.Location}
	case AddEventArgs:
		return map[string]any{"event_name": a.EventName, "date": a.Date}
	case PlaySongArgs:
		return map[string]any{"song": a.Song}
	default:
		return map[string]any{}
	}
}

// MarshalJSON renders the decision in the wire shape the model is asked for.
func (d Decision) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Command    Command        `json:"command"`
		Parameters map[string]any `json:"parameters"`
		Text       string         `json:"text"`
	}{d.Command, d.Parameters(), d.Text})
}

// UnmarshalJSON accepts the same shape Decode does.
func (d *Decision) UnmarshalJSON(data []byte) error {
	dec, err := Decode(string(data))
	if err != nil {
		return err
	}
	*d = dec
	return nil
}

// ErrDecode is wrapped by every Decode failure.
var ErrDecode = errors.New("invalid decision")

type rawDecision struct {
	Command    *string         `json:"command"`
	Parameters json.RawMessage `json:"parameters"`
	Text       *string         `json:"text"`
}

// Decode parses model output into a Decision. One surrounding markdown code
// fence is tolerated. Callers fall back to DefaultDecision on error.
func Decode(raw string) (Decision, error) {
	body := stripFence(raw)

	var rd rawDecision
	if err := json.Unmarshal([]byte(body), &rd); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if rd.Command == nil {
		return Decision{}, fmt.Errorf("%w: missing command", ErrDecode)
	}
	if rd.Text == nil {
		return Decision{}, fmt.Errorf("%w: missing text", ErrDecode)
	}
	if err := required("text", *rd.Text); err != nil {
		return Decision{}, err
	}

	params := bytes.TrimSpace(rd.Parameters)
	if len(params) == 0 || bytes.Equal(params, []byte("null")) {
		params = []byte("{}")
	}
	if params[0] != '{' {
		return Decision{}, fmt.Errorf("%w: parameters must be an object", ErrDecode)
	}

	cmd := Command(strings.TrimSpace(*rd.Command))
	var args Args
	switch cmd {
	case CommandGetWeather:
		var a WeatherArgs
		if err := json.Unmarshal(params, &a); err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if err := required("location", a.Location); err != nil {
			return Decision{}, err
		}
		args = a
	case CommandAddEvent:
		var a AddEventArgs
		if err := json.Unmarshal(params, &a); err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if err := required("event_name", a.EventName); err != nil {
			return Decision{}, err
		}
		if err := required("date", a.Date); err != nil {
			return Decision{}, err
		}
		if _, err := time.Parse(calendar.DateLayout, a.Date); err != nil {
			return Decision{}, fmt.Errorf("%w: date %q is not yyyy-mm-dd", ErrDecode, a.Date)
		}
		args = a
	case CommandPlaySong:
		var a PlaySongArgs
		if err := json.Unmarshal(params, &a); err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if err := required("song", a.Song); err != nil {
			return Decision{}, err
		}
		args = a
	case CommandGetEvents:
		args = EventsArgs{}
	case CommandNone:
		args = NoneArgs{}
	default:
		return Decision{}, fmt.Errorf("%w: unknown command %q", ErrDecode, cmd)
	}

	return Decision{Command: cmd, Args: args, Text: *rd.Text}, nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", ErrDecode, field)
	}
	return nil
}

// stripFence removes a single ```json ... ``` wrapper.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		if lang := strings.TrimSpace(s[:nl]); lang == "" || !strings.ContainsAny(lang, "{[") {
			s = s[nl+1:]
		}
	}
	return strings.TrimSpace(s)
}
