package agent

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/soyeahso/mirror/internal/calendar"
	"github.com/soyeahso/mirror/internal/logging"
	"github.com/soyeahso/mirror/internal/weather"
)

// WeatherLookup fetches current conditions for a free-form location.
type WeatherLookup interface {
	Current(ctx context.Context, location string) (*weather.Result, error)
}

// CalendarReader lists events in a time window.
type CalendarReader interface {
	Upcoming(ctx context.Context, from, to time.Time) ([]calendar.Event, error)
}

// CalendarWriter inserts one event.
type CalendarWriter interface {
	Insert(ctx context.Context, d calendar.Draft) (*calendar.Event, error)
}

// RouterDeps are the collaborators a Router dispatches to. Any may be nil;
// a command needing a nil collaborator reports a tool failure.
type RouterDeps struct {
	Weather        WeatherLookup
	CalendarReader CalendarReader
	CalendarWriter CalendarWriter
	Lookahead      time.Duration
	Now            func() time.Time
}

// Router executes a decision's command and renders the outcome as text for
// the model.
type Router struct {
	deps RouterDeps
	log  *logging.Logger
}

var errNotConfigured = errors.New("not configured")

// NewRouter creates a command router.
func NewRouter(deps RouterDeps, log *logging.Logger) *Router {
	if deps.Lookahead <= 0 {
		deps.Lookahead = 7 * 24 * time.Hour
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Router{deps: deps, log: log.Sub("agent.router")}
}

// Execute runs d and returns the text fed back into the conversation. It
// never fails: collaborator errors become a "Tool failed" result.
func (r *Router) Execute(ctx context.Context, d Decision) string {
	start := time.Now()

	var (
		result string
		err    error
	)
	switch a := d.Args.(type) {
	case WeatherArgs:
		result, err = r.weather(ctx, a)
	case EventsArgs:
		result, err = r.events(ctx)
	case AddEventArgs:
		result, err = r.addEvent(ctx, a)
	case PlaySongArgs:
		result = "Song request passed to the display: " + a.Song
	default:
		result = "None"
	}

	if err != nil {
		r.log.Warn().Err(err).Str("command", string(d.Command)).Msg("command failed")
		return fmt.Sprintf("Tool failed: %s: %v", d.Command, err)
	}

	r.log.Debug().
		Str("command", string(d.Command)).
		Dur("duration", time.Since(start)).
		Msg("command executed")
	return result
}

func (r *Router) weather(ctx context.Context, a WeatherArgs) (string, error) {
	if r.deps.Weather == nil {
		return "", fmt.Errorf("weather lookup %w", errNotConfigured)
	}
	res, err := r.deps.Weather.Current(ctx, a.Location)
	if err != nil {
		return "", err
	}
	return FormatWeather(res), nil
}

func (r *Router) events(ctx context.Context) (string, error) {
	if r.deps.CalendarReader == nil {
		return "", fmt.Errorf("calendar %w", errNotConfigured)
	}
	now := r.deps.Now()
	events, err := r.deps.CalendarReader.Upcoming(ctx, now, now.Add(r.deps.Lookahead))
	if err != nil {
		return "", err
	}
	return FormatEvents(events), nil
}

func (r *Router) addEvent(ctx context.Context, a AddEventArgs) (string, error) {
	if r.deps.CalendarWriter == nil {
		return "", fmt.Errorf("calendar %w", errNotConfigured)
	}
	draft, err := calendar.NewDraft(a.EventName, a.Date, a.Date)
	if err != nil {
		return "", err
	}
	if _, err := r.deps.CalendarWriter.Insert(ctx, draft); err != nil {
		return "", err
	}
	return "Added Event", nil
}

// FormatWeather renders a weather result as the model sees it.
func FormatWeather(res *weather.Result) string {
	return fmt.Sprintf("Location:%s\nWeather:%s Degrees Farenheit\n",
		res.Location.Name, strconv.FormatFloat(res.Current.TempF, 'f', -1, 64))
}

// FormatEvents renders events sorted by start. Missing fields get
// placeholders.
func FormatEvents(events []calendar.Event) string {
	if len(events) == 0 {
		return "No upcoming events."
	}
	sorted := make([]calendar.Event, len(events))
	copy(sorted, events)
	calendar.SortByStart(sorted)

	var b strings.Builder
	for _, e := range sorted {
		summary := e.Summary
		if summary == "" {
			summary = "(no title)"
		}
		date := "NO_START"
		if v := e.Start.Value(); v != "" {
			date = v
		}
		fmt.Fprintf(&b, "Summary:%s\nDate:%s\n\n", summary, date)
	}
	return b.String()
}
