package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/mirror/internal/calendar"
	"github.com/soyeahso/mirror/internal/hooks"
	"github.com/soyeahso/mirror/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRig struct {
	runner  *Runner
	conv    *Conversation
	mock    *llm.MockClient
	weather *fakeWeather
	cal     *fakeCalendar
	hooks   *hooks.Manager
}

func newRig(complete func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)) *testRig {
	rig := &testRig{
		conv:    NewConversation(SeedEntries(time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC))...),
		mock:    &llm.MockClient{ProviderName: "mock", CompleteFunc: complete},
		weather: &fakeWeather{result: seattle55()},
		cal:     &fakeCalendar{},
		hooks:   hooks.NewManager(silentLog()),
	}
	router := NewRouter(RouterDeps{Weather: rig.weather, CalendarReader: rig.cal, CalendarWriter: rig.cal}, silentLog())
	rig.runner = NewRunner(RunnerConfig{}, rig.mock, rig.conv, router, rig.hooks, silentLog())
	return rig
}

// --- Runner tests ---

func TestRunnerNoneTurn(t *testing.T) {
	rig := newRig(llm.Replies(`{"command":"none","parameters":{},"text":"Hello there!"}`))

	res := rig.runner.Run(context.Background(), "hi mirror")

	assert.Equal(t, "Hello there!", res.Reply.Text)
	assert.Equal(t, CommandNone, res.Reply.Command)
	assert.Nil(t, res.Action)
	assert.Empty(t, res.ToolResult)
	assert.Equal(t, 2, res.Entries)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, 1, rig.mock.Calls())

	entries := rig.conv.Snapshot()
	require.Len(t, entries, 4)
	assert.Equal(t, Entry{Role: llm.RoleUser, Content: "hi mirror \nREMEMBER RESPOND IN JSON ONLY"}, entries[2])
	assert.Equal(t, Entry{Role: llm.RoleAssistant, Content: "Hello there!"}, entries[3])
}

func TestRunnerRequestShape(t *testing.T) {
	rig := newRig(nil)

	rig.runner.Run(context.Background(), "hi")

	req := rig.mock.Requests()[0]
	assert.Equal(t, DefaultModel, req.Model)
	require.NotNil(t, req.Temperature)
	assert.Equal(t, DefaultTemperature, *req.Temperature)
	assert.True(t, req.JSON)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, SystemPrompt, req.Messages[0].Content)
	assert.Equal(t, llm.RoleUser, req.Messages[2].Role)
}

func TestRunnerWeatherTurn(t *testing.T) {
	rig := newRig(llm.Replies(
		`{"command":"get_weather","parameters":{"location":"Seattle"},"text":"Let me check."}`,
		`{"command":"none","parameters":{},"text":"It is 55 degrees in Seattle."}`,
	))

	res := rig.runner.Run(context.Background(), "what's the weather in Seattle")

	assert.Equal(t, "It is 55 degrees in Seattle.", res.Reply.Text)
	require.NotNil(t, res.Action)
	assert.Equal(t, CommandGetWeather, res.Action.Command)
	assert.Equal(t, "Location:Seattle\nWeather:55 Degrees Farenheit\n", res.ToolResult)
	assert.Equal(t, 4, res.Entries)
	assert.Equal(t, 2, rig.mock.Calls())

	entries := rig.conv.Snapshot()
	require.Len(t, entries, 6)
	assert.Equal(t, "Let me check.", entries[3].Content)
	assert.Equal(t, Entry{
		Role:    llm.RoleSystem,
		Content: "Returned_Value:Location:Seattle\nWeather:55 Degrees Farenheit\n\nREMEMBER RESPOND IN JSON ONLY\n",
	}, entries[4])
	assert.Equal(t, Entry{Role: llm.RoleAssistant, Content: "It is 55 degrees in Seattle."}, entries[5])

	// The finalize phase sees the tool result as its last message.
	second := rig.mock.Requests()[1]
	assert.Equal(t, entries[4].Content, second.Messages[len(second.Messages)-1].Content)
}

func TestRunnerEventsTurn(t *testing.T) {
	rig := newRig(llm.Replies(
		`{"command":"get_events","parameters":{},"text":"Looking."}`,
		`{"command":"none","parameters":{},"text":"You have a birthday tomorrow."}`,
	))
	rig.cal.events = []calendar.Event{
		{Summary: "Standup", Start: &calendar.EventDateTime{DateTime: "2024-03-10T09:00:00Z"}},
		{Summary: "Birthday", Start: &calendar.EventDateTime{Date: "2024-03-09"}},
	}

	res := rig.runner.Run(context.Background(), "what's on my calendar")

	assert.Equal(t, "Summary:Birthday\nDate:2024-03-09\n\nSummary:Standup\nDate:2024-03-10T09:00:00Z\n\n", res.ToolResult)
	assert.Equal(t, "You have a birthday tomorrow.", res.Reply.Text)
}

func TestRunnerAddEventTurn(t *testing.T) {
	rig := newRig(llm.Replies(
		`{"command":"add_event","parameters":{"event_name":"Dentist","date":"2024-06-01"},"text":"Adding it."}`,
		`{"command":"none","parameters":{},"text":"Your dentist appointment is on the calendar."}`,
	))

	res := rig.runner.Run(context.Background(), "add dentist on June first")

	assert.Equal(t, "Added Event", res.ToolResult)
	require.Len(t, rig.cal.drafts, 1)
	assert.Equal(t, "Dentist", rig.cal.drafts[0].Summary)
	assert.Equal(t, "2024-06-01", rig.cal.drafts[0].StartDate)
}

func TestRunnerToolFailureContinues(t *testing.T) {
	rig := newRig(llm.Replies(
		`{"command":"add_event","parameters":{"event_name":"Dentist","date":"2024-06-01"},"text":"Adding it."}`,
		`{"command":"none","parameters":{},"text":"Sorry, I couldn't add that."}`,
	))
	rig.cal.insertErr = fmt.Errorf("calendar unavailable")

	res := rig.runner.Run(context.Background(), "add dentist on June first")

	assert.Equal(t, "Tool failed: add_event: calendar unavailable", res.ToolResult)
	assert.Equal(t, "Sorry, I couldn't add that.", res.Reply.Text)
	assert.Equal(t, 4, res.Entries)
}

func TestRunnerPlaySongAction(t *testing.T) {
	rig := newRig(llm.Replies(
		`{"command":"play_song","parameters":{"song":"Yesterday"},"text":"Playing."}`,
		`{"command":"none","parameters":{},"text":"Enjoy the song."}`,
	))

	res := rig.runner.Run(context.Background(), "play yesterday")

	require.NotNil(t, res.Action)
	assert.Equal(t, PlaySongArgs{Song: "Yesterday"}, res.Action.Args)
	assert.Equal(t, "Song request passed to the display: Yesterday", res.ToolResult)
}

func TestRunnerUndecodableReply(t *testing.T) {
	rig := newRig(llm.Replies("Sure! It's sunny."))

	res := rig.runner.Run(context.Background(), "hi")

	assert.Equal(t, DefaultDecision(FallbackUndecodable), res.Reply)
	assert.Equal(t, 2, res.Entries)
	assert.Equal(t, FallbackUndecodable, rig.conv.Snapshot()[3].Content)
}

func TestRunnerFinalizeUndecodable(t *testing.T) {
	rig := newRig(llm.Replies(
		`{"command":"get_weather","parameters":{"location":"Seattle"},"text":"Checking."}`,
		"not json",
	))

	res := rig.runner.Run(context.Background(), "weather")

	assert.Equal(t, FallbackUndecodable, res.Reply.Text)
	assert.Equal(t, 4, res.Entries)
}

func TestRunnerBlankTextFallsBack(t *testing.T) {
	rig := newRig(llm.Replies(`{"command":"none","parameters":{},"text":"  "}`))

	res := rig.runner.Run(context.Background(), "hi")

	assert.Equal(t, DefaultDecision(FallbackUndecodable), res.Reply)
	assert.Equal(t, FallbackUndecodable, rig.conv.Snapshot()[3].Content)
}

func TestRunnerCompletionErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"transport", &llm.ProviderError{Provider: "openai", Message: "connection refused"}, FallbackUnreachable},
		{"http status", &llm.ProviderError{Provider: "openai", Message: "bad gateway", Code: 502}, FallbackUnreachable},
		{"plain error", fmt.Errorf("boom"), FallbackUnreachable},
		{"empty envelope", fmt.Errorf("openai: no choices returned: %w", llm.ErrEmptyResponse), FallbackMalformed},
		{"non-json body", fmt.Errorf("openai: undecodable response: invalid character '<': %w", llm.ErrEmptyResponse), FallbackMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newRig(func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
				return nil, tt.err
			})

			res := rig.runner.Run(context.Background(), "hi")

			assert.Equal(t, DefaultDecision(tt.want), res.Reply)
			assert.Equal(t, 2, res.Entries)
		})
	}
}

func TestRunnerNoClient(t *testing.T) {
	conv := NewConversation(SeedEntries(time.Now())...)
	runner := NewRunner(RunnerConfig{}, nil, conv, NewRouter(RouterDeps{}, silentLog()), nil, silentLog())

	res := runner.Run(context.Background(), "hi")

	assert.Equal(t, FallbackNoClient, res.Reply.Text)
	assert.Equal(t, 4, conv.Len())
}

func TestRunnerPhaseTimeout(t *testing.T) {
	var deadlines []bool
	var mu sync.Mutex
	complete := func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		_, ok := ctx.Deadline()
		mu.Lock()
		deadlines = append(deadlines, ok)
		mu.Unlock()
		if len(req.Messages) == 3 {
			return &llm.CompletionResponse{Content: `{"command":"get_weather","parameters":{"location":"Seattle"},"text":"Checking."}`}, nil
		}
		<-ctx.Done()
		return nil, &llm.ProviderError{Provider: "mock", Message: ctx.Err().Error()}
	}
	rig := newRig(complete)
	rig.runner.cfg.PhaseTimeout = 20 * time.Millisecond

	res := rig.runner.Run(context.Background(), "weather")

	assert.Equal(t, []bool{true, true}, deadlines)
	assert.Equal(t, FallbackUnreachable, res.Reply.Text)
	assert.Equal(t, 4, res.Entries)
}

func TestRunnerUsageAccumulates(t *testing.T) {
	calls := 0
	rig := newRig(func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		calls++
		content := `{"command":"none","parameters":{},"text":"Done."}`
		if calls == 1 {
			content = `{"command":"get_events","parameters":{},"text":"Looking."}`
		}
		return &llm.CompletionResponse{Content: content, Usage: llm.Usage{InputTokens: 100, OutputTokens: 10}}, nil
	})

	res := rig.runner.Run(context.Background(), "events")

	assert.Equal(t, llm.Usage{InputTokens: 200, OutputTokens: 20}, res.Usage)
}

func TestRunnerHooks(t *testing.T) {
	rig := newRig(llm.Replies(
		`{"command":"get_weather","parameters":{"location":"Seattle"},"text":"Checking."}`,
		`{"command":"none","parameters":{},"text":"55 and rainy."}`,
	))

	var mu sync.Mutex
	var events []string
	var complete hooks.Payload
	record := func(ctx context.Context, p hooks.Payload) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, p.Event)
		if p.Event == hooks.EventTurnComplete {
			complete = p
		}
		return nil
	}
	for _, ev := range []string{hooks.EventTurnStart, hooks.EventCommandExecuted, hooks.EventTurnComplete} {
		rig.hooks.On(ev, "test", record)
	}

	res := rig.runner.Run(context.Background(), "weather")

	assert.Equal(t, []string{hooks.EventTurnStart, hooks.EventCommandExecuted, hooks.EventTurnComplete}, events)
	assert.Equal(t, res.ID, complete.String("turnId"))
	assert.Equal(t, "get_weather", complete.String("command"))
	assert.Equal(t, "55 and rainy.", complete.String("text"))
}

func TestRunnerRecorderSeesEveryEntry(t *testing.T) {
	rig := newRig(llm.Replies(
		`{"command":"get_weather","parameters":{"location":"Seattle"},"text":"Checking."}`,
		`{"command":"none","parameters":{},"text":"55."}`,
	))
	var roles []string
	rig.conv.WithRecorder(func(index int, e Entry) { roles = append(roles, e.Role) })

	rig.runner.Run(context.Background(), "weather")

	assert.Equal(t, []string{llm.RoleUser, llm.RoleAssistant, llm.RoleSystem, llm.RoleAssistant}, roles)
}

func TestRunnerConcurrentTurns(t *testing.T) {
	rig := newRig(nil)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := rig.runner.Run(context.Background(), fmt.Sprintf("hi %d", i))
			assert.Equal(t, "mock response", res.Reply.Text)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 2+10*2, rig.conv.Len())
	assert.Equal(t, 10, rig.mock.Calls())
}

func TestRunnerCustomConfig(t *testing.T) {
	temp := 0.2
	rig := newRig(nil)
	rig.runner = NewRunner(RunnerConfig{Model: "llama3", Temperature: &temp, MaxTokens: 256}, rig.mock, rig.conv, rig.runner.router, nil, silentLog())

	rig.runner.Run(context.Background(), "hi")

	req := rig.mock.Requests()[0]
	assert.Equal(t, "llama3", req.Model)
	assert.Equal(t, 0.2, *req.Temperature)
	assert.Equal(t, 256, req.MaxTokens)
}

func TestTurnFromPayload(t *testing.T) {
	res := &TurnResult{ID: "t1"}
	got, ok := TurnFromPayload(hooks.Payload{Data: map[string]any{"turn": res}})
	assert.True(t, ok)
	assert.Same(t, res, got)

	_, ok = TurnFromPayload(hooks.Payload{})
	assert.False(t, ok)
}
