package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/soyeahso/mirror/internal/calendar"
	"github.com/soyeahso/mirror/internal/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterWeather(t *testing.T) {
	w := &fakeWeather{result: seattle55()}
	r := NewRouter(RouterDeps{Weather: w}, silentLog())

	got := r.Execute(context.Background(), Decision{Command: CommandGetWeather, Args: WeatherArgs{Location: "Seattle"}})

	assert.Equal(t, "Location:Seattle\nWeather:55 Degrees Farenheit\n", got)
	assert.Equal(t, []string{"Seattle"}, w.locations)
}

func TestFormatWeatherFraction(t *testing.T) {
	res := &weather.Result{Location: weather.Location{Name: "Oslo"}, Current: weather.Current{TempF: 28.4}}
	assert.Equal(t, "Location:Oslo\nWeather:28.4 Degrees Farenheit\n", FormatWeather(res))
}

func TestRouterWeatherFailure(t *testing.T) {
	w := &fakeWeather{err: &weather.APIError{StatusCode: 400, Code: 1006, Message: "No matching location found."}}
	r := NewRouter(RouterDeps{Weather: w}, silentLog())

	got := r.Execute(context.Background(), Decision{Command: CommandGetWeather, Args: WeatherArgs{Location: "Nowhere"}})

	assert.Contains(t, got, "Tool failed: get_weather: ")
	assert.Contains(t, got, "No matching location found.")
}

func TestRouterEvents(t *testing.T) {
	now := time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC)
	cal := &fakeCalendar{events: []calendar.Event{
		{Summary: "Standup", Start: &calendar.EventDateTime{DateTime: "2024-03-10T09:00:00Z"}},
		{Summary: "Birthday", Start: &calendar.EventDateTime{Date: "2024-03-09"}},
	}}
	r := NewRouter(RouterDeps{CalendarReader: cal, Now: func() time.Time { return now }}, silentLog())

	got := r.Execute(context.Background(), Decision{Command: CommandGetEvents, Args: EventsArgs{}})

	assert.Equal(t, "Summary:Birthday\nDate:2024-03-09\n\nSummary:Standup\nDate:2024-03-10T09:00:00Z\n\n", got)
	assert.Equal(t, now, cal.from)
	assert.Equal(t, now.Add(7*24*time.Hour), cal.to)
}

func TestRouterEventsLookahead(t *testing.T) {
	now := time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC)
	cal := &fakeCalendar{}
	r := NewRouter(RouterDeps{CalendarReader: cal, Lookahead: 48 * time.Hour, Now: func() time.Time { return now }}, silentLog())

	got := r.Execute(context.Background(), Decision{Command: CommandGetEvents, Args: EventsArgs{}})

	assert.Equal(t, "No upcoming events.", got)
	assert.Equal(t, now.Add(48*time.Hour), cal.to)
}

func TestFormatEventsPlaceholders(t *testing.T) {
	got := FormatEvents([]calendar.Event{
		{Summary: "Floating"},
		{Start: &calendar.EventDateTime{Date: "2024-03-09"}},
	})
	assert.Equal(t, "Summary:(no title)\nDate:2024-03-09\n\nSummary:Floating\nDate:NO_START\n\n", got)
}

func TestFormatEventsDoesNotReorderInput(t *testing.T) {
	events := []calendar.Event{
		{Summary: "Later", Start: &calendar.EventDateTime{Date: "2024-03-10"}},
		{Summary: "Sooner", Start: &calendar.EventDateTime{Date: "2024-03-09"}},
	}
	FormatEvents(events)
	assert.Equal(t, "Later", events[0].Summary)
}

func TestRouterEventsFailure(t *testing.T) {
	cal := &fakeCalendar{listErr: calendar.ErrNotAuthenticated}
	r := NewRouter(RouterDeps{CalendarReader: cal}, silentLog())

	got := r.Execute(context.Background(), Decision{Command: CommandGetEvents, Args: EventsArgs{}})
	assert.Equal(t, "Tool failed: get_events: "+calendar.ErrNotAuthenticated.Error(), got)
}

func TestRouterAddEvent(t *testing.T) {
	cal := &fakeCalendar{}
	r := NewRouter(RouterDeps{CalendarWriter: cal}, silentLog())

	got := r.Execute(context.Background(), Decision{
		Command: CommandAddEvent,
		Args:    AddEventArgs{EventName: "Dentist", Date: "2024-06-01"},
	})

	assert.Equal(t, "Added Event", got)
	require.Len(t, cal.drafts, 1)
	d := cal.drafts[0]
	assert.Equal(t, "Dentist", d.Summary)
	assert.Equal(t, calendar.DraftDescription, d.Description)
	assert.Equal(t, "public", d.Visibility)
	assert.Equal(t, "2024-06-01", d.StartDate)
	assert.Equal(t, "2024-06-01", d.EndDate)
}

func TestRouterAddEventFailureIsRecovered(t *testing.T) {
	cal := &fakeCalendar{insertErr: errors.New("googleapi: Error 403: forbidden")}
	r := NewRouter(RouterDeps{CalendarWriter: cal}, silentLog())

	got := r.Execute(context.Background(), Decision{
		Command: CommandAddEvent,
		Args:    AddEventArgs{EventName: "Dentist", Date: "2024-06-01"},
	})
	assert.Equal(t, "Tool failed: add_event: googleapi: Error 403: forbidden", got)
}

func TestRouterPlaySong(t *testing.T) {
	r := NewRouter(RouterDeps{}, silentLog())
	got := r.Execute(context.Background(), Decision{Command: CommandPlaySong, Args: PlaySongArgs{Song: "Yesterday"}})
	assert.Equal(t, "Song request passed to the display: Yesterday", got)
}

func TestRouterNone(t *testing.T) {
	r := NewRouter(RouterDeps{}, silentLog())
	assert.Equal(t, "None", r.Execute(context.Background(), DefaultDecision("hi")))
	assert.Equal(t, "None", r.Execute(context.Background(), Decision{Command: "mystery"}))
}

func TestRouterMissingCollaborators(t *testing.T) {
	r := NewRouter(RouterDeps{}, silentLog())
	ctx := context.Background()

	assert.Equal(t, "Tool failed: get_weather: weather lookup not configured",
		r.Execute(ctx, Decision{Command: CommandGetWeather, Args: WeatherArgs{Location: "Seattle"}}))
	assert.Equal(t, "Tool failed: get_events: calendar not configured",
		r.Execute(ctx, Decision{Command: CommandGetEvents, Args: EventsArgs{}}))
	assert.Equal(t, "Tool failed: add_event: calendar not configured",
		r.Execute(ctx, Decision{Command: CommandAddEvent, Args: AddEventArgs{EventName: "A", Date: "2024-01-01"}}))
}
