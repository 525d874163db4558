// Package calendar reads and writes Google Calendar events for the mirror.
package calendar

import (
	"context"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/soyeahso/mirror/internal/logging"
)

// Options configures a Client.
type Options struct {
	TargetCalendar string        // calendar that receives inserted events
	Lookahead      time.Duration // window used by Window
	MaxResults     int64         // per calendar
}

// Client wraps the Calendar v3 service.
type Client struct {
	svc  *gcal.Service
	opts Options
	log  *logging.Logger
	now  func() time.Time
}

// New creates a calendar client. Production callers pass
// option.WithHTTPClient with an authorized client from NewHTTPClient.
func New(ctx context.Context, opts Options, log *logging.Logger, clientOpts ...option.ClientOption) (*Client, error) {
	svc, err := gcal.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar service: %w", err)
	}
	if opts.TargetCalendar == "" {
		opts.TargetCalendar = "primary"
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = 7 * 24 * time.Hour
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 100
	}
	return &Client{svc: svc, opts: opts, log: log.Sub("calendar"), now: time.Now}, nil
}

// Window returns now and now plus the configured lookahead.
func (c *Client) Window() (time.Time, time.Time) {
	now := c.now()
	return now, now.Add(c.opts.Lookahead)
}

// Upcoming lists events between from and to across every calendar the
// credential can see, sorted by start. A calendar whose events cannot be
// listed is logged and skipped. Failing to list calendars, or every
// calendar failing, is an error.
func (c *Client) Upcoming(ctx context.Context, from, to time.Time) ([]Event, error) {
	var ids []string
	err := c.svc.CalendarList.List().Pages(ctx, func(page *gcal.CalendarList) error {
		for _, item := range page.Items {
			if item.Id != "" {
				ids = append(ids, item.Id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing calendars: %w", err)
	}

	var (
		events  []Event
		failed  int
		lastErr error
	)
	for _, id := range ids {
		resp, err := c.svc.Events.List(id).
			TimeMin(from.Format(time.RFC3339)).
			TimeMax(to.Format(time.RFC3339)).
			MaxResults(c.opts.MaxResults).
			OrderBy("startTime").
			SingleEvents(true).
			Context(ctx).
			Do()
		if err != nil {
			c.log.Warn().Err(err).Str("calendar", id).Msg("failed to list events, skipping calendar")
			failed++
			lastErr = err
			continue
		}
		for _, e := range resp.Items {
			events = append(events, fromAPI(e))
		}
	}

	if failed > 0 && failed == len(ids) {
		return nil, fmt.Errorf("listing events: all %d calendars failed: %w", failed, lastErr)
	}

	SortByStart(events)
	c.log.Debug().Int("calendars", len(ids)).Int("events", len(events)).Msg("fetched upcoming events")
	return events, nil
}

// Insert creates the draft on the target calendar.
func (c *Client) Insert(ctx context.Context, d Draft) (*Event, error) {
	created, err := c.svc.Events.Insert(c.opts.TargetCalendar, d.toAPI()).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("inserting event: %w", err)
	}
	e := fromAPI(created)
	c.log.Info().Str("id", e.ID).Str("summary", e.Summary).Str("link", e.HTMLLink).Msg("event created")
	return &e, nil
}
