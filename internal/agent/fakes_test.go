package agent

import (
	"context"
	"sync"
	"time"

	"github.com/soyeahso/mirror/internal/calendar"
	"github.com/soyeahso/mirror/internal/logging"
	"github.com/soyeahso/mirror/internal/weather"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

type fakeWeather struct {
	result *weather.Result
	err    error

	mu        sync.Mutex
	locations []string
}

func (f *fakeWeather) Current(ctx context.Context, location string) (*weather.Result, error) {
	f.mu.Lock()
	f.locations = append(f.locations, location)
	f.mu.Unlock()
	return f.result, f.err
}

type fakeCalendar struct {
	events    []calendar.Event
	listErr   error
	insertErr error

	mu       sync.Mutex
	from, to time.Time
	drafts   []calendar.Draft
}

func (f *fakeCalendar) Upcoming(ctx context.Context, from, to time.Time) ([]calendar.Event, error) {
	f.mu.Lock()
	f.from, f.to = from, to
	f.mu.Unlock()
	return f.events, f.listErr
}

func (f *fakeCalendar) Insert(ctx context.Context, d calendar.Draft) (*calendar.Event, error) {
	f.mu.Lock()
	f.drafts = append(f.drafts, d)
	f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	return &calendar.Event{ID: "evt-1", Summary: d.Summary}, nil
}

func seattle55() *weather.Result {
	return &weather.Result{
		Location: weather.Location{Name: "Seattle", Region: "Washington", Country: "USA"},
		Current:  weather.Current{TempF: 55, Condition: weather.Condition{Text: "Light rain"}},
	}
}
