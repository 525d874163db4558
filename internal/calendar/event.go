package calendar

import (
	"fmt"
	"sort"
	"time"

	gcal "google.golang.org/api/calendar/v3"
)

// DateLayout is the all-day date format used by the calendar API.
const DateLayout = "2006-01-02"

// Event is the read-path view of a calendar event, serialized with the
// snake_case field names the mirror display expects.
type Event struct {
	ID          string         `json:"id,omitempty"`
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	HTMLLink    string         `json:"html_link,omitempty"`
	Status      string         `json:"status,omitempty"`
	Start       *EventDateTime `json:"start"`
	End         *EventDateTime `json:"end"`
	Creator     *Person        `json:"creator,omitempty"`
	Organizer   *Person        `json:"organizer,omitempty"`
}

// EventDateTime holds either an all-day date or a date-time.
type EventDateTime struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"date_time,omitempty"`
	TimeZone string `json:"time_zone,omitempty"`
}

// Person is an event creator or organizer.
type Person struct {
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Value returns the date-time when set, otherwise the all-day date.
func (d *EventDateTime) Value() string {
	if d == nil {
		return ""
	}
	if d.DateTime != "" {
		return d.DateTime
	}
	return d.Date
}

// Time parses Value. The second result is false when nothing parses.
func (d *EventDateTime) Time() (time.Time, bool) {
	if d == nil {
		return time.Time{}, false
	}
	if d.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, d.DateTime); err == nil {
			return t, true
		}
	}
	if d.Date != "" {
		loc := time.Local
		if d.TimeZone != "" {
			if l, err := time.LoadLocation(d.TimeZone); err == nil {
				loc = l
			}
		}
		if t, err := time.ParseInLocation(DateLayout, d.Date, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// SortByStart orders events by start ascending. Events without a parseable
// start keep their relative order and go last.
func SortByStart(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		ti, oki := events[i].Start.Time()
		tj, okj := events[j].Start.Time()
		switch {
		case oki && okj:
			return ti.Before(tj)
		case oki != okj:
			return oki
		default:
			return false
		}
	})
}

// Draft is the write-path event: an all-day event on the target calendar.
type Draft struct {
	Summary     string
	Description string
	Visibility  string
	StartDate   string
	EndDate     string
}

// DraftDescription tags every event the mirror creates.
const DraftDescription = "Made by MirrorAI"

// NewDraft builds an all-day public event. Dates must be yyyy-mm-dd.
func NewDraft(name, startDate, endDate string) (Draft, error) {
	if name == "" {
		return Draft{}, fmt.Errorf("calendar: event name is required")
	}
	for _, d := range []string{startDate, endDate} {
		if _, err := time.Parse(DateLayout, d); err != nil {
			return Draft{}, fmt.Errorf("calendar: invalid date %q, want yyyy-mm-dd", d)
		}
	}
	return Draft{
		Summary:     name,
		Description: DraftDescription,
		Visibility:  "public",
		StartDate:   startDate,
		EndDate:     endDate,
	}, nil
}

func (d Draft) toAPI() *gcal.Event {
	return &gcal.Event{
		Summary:     d.Summary,
		Description: d.Description,
		Visibility:  d.Visibility,
		Start:       &gcal.EventDateTime{Date: d.StartDate},
		End:         &gcal.EventDateTime{Date: d.EndDate},
	}
}

func fromAPI(e *gcal.Event) Event {
	out := Event{
		ID:          e.Id,
		Summary:     e.Summary,
		Description: e.Description,
		HTMLLink:    e.HtmlLink,
		Status:      e.Status,
		Start:       dateTimeFromAPI(e.Start),
		End:         dateTimeFromAPI(e.End),
	}
	if e.Creator != nil {
		out.Creator = &Person{Email: e.Creator.Email, DisplayName: e.Creator.DisplayName}
	}
	if e.Organizer != nil {
		out.Organizer = &Person{Email: e.Organizer.Email, DisplayName: e.Organizer.DisplayName}
	}
	return out
}

func dateTimeFromAPI(d *gcal.EventDateTime) *EventDateTime {
	if d == nil || (d.Date == "" && d.DateTime == "") {
		return nil
	}
	return &EventDateTime{Date: d.Date, DateTime: d.DateTime, TimeZone: d.TimeZone}
}
