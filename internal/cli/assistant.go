package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/option"

	"github.com/soyeahso/mirror/internal/agent"
	"github.com/soyeahso/mirror/internal/calendar"
	"github.com/soyeahso/mirror/internal/config"
	"github.com/soyeahso/mirror/internal/hooks"
	"github.com/soyeahso/mirror/internal/llm"
	"github.com/soyeahso/mirror/internal/logging"
	"github.com/soyeahso/mirror/internal/store"
	"github.com/soyeahso/mirror/internal/weather"
)

// assistant is everything a turn needs, assembled from config.
type assistant struct {
	runner   *agent.Runner
	weather  *weather.Client
	calendar *calendar.Client // nil when not authorized
	hooks    *hooks.Manager
	db       *store.DB // nil when the journal is disabled
	journal  *store.Journal
}

// validate logs every issue and fails when there are any.
func validate(issues []config.ValidationIssue) error {
	if len(issues) == 0 {
		return nil
	}
	for _, issue := range issues {
		log.Error().Str("path", issue.Path).Msg(issue.Message)
	}
	return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
}

// buildAssistant wires the LLM client, the weather and calendar
// collaborators, and the journal into a runner.
func buildAssistant(ctx context.Context, cfg config.Config, log *logging.Logger) (*assistant, error) {
	a := &assistant{hooks: hooks.NewManager(log)}

	registry := llm.NewRegistryFromConfig(cfg.LLM, log)
	client, err := registry.Resolve(cfg.LLM.Model)
	if err != nil {
		log.Warn().Err(err).Msg("no LLM provider; every reply will say so")
	}

	a.weather = weather.NewClient(cfg.Weather.APIKey, cfg.Weather.BaseURL, log)
	deps := agent.RouterDeps{
		Weather:   a.weather,
		Lookahead: time.Duration(cfg.Calendar.LookaheadDays) * 24 * time.Hour,
	}

	a.calendar, err = openCalendar(ctx, cfg.Calendar, log)
	switch {
	case errors.Is(err, calendar.ErrNotAuthenticated):
		log.Warn().Msg("calendar not authorized; run 'mirror auth calendar'")
	case err != nil:
		log.Warn().Err(err).Msg("calendar unavailable")
	default:
		deps.CalendarReader = a.calendar
		deps.CalendarWriter = a.calendar
	}

	conv := agent.NewConversation(agent.SeedEntries(time.Now())...)
	if cfg.Journal.Enabled {
		if err := a.openJournal(ctx, cfg.Journal.Path, conv, log); err != nil {
			return nil, err
		}
	}

	var phaseTimeout time.Duration
	if cfg.LLM.PhaseTimeoutSeconds > 0 {
		phaseTimeout = time.Duration(cfg.LLM.PhaseTimeoutSeconds) * time.Second
	}
	a.runner = agent.NewRunner(
		agent.RunnerConfig{
			Model:        cfg.LLM.Model,
			Temperature:  cfg.LLM.Temperature,
			PhaseTimeout: phaseTimeout,
		},
		client,
		conv,
		agent.NewRouter(deps, log),
		a.hooks,
		log,
	)
	return a, nil
}

func openCalendar(ctx context.Context, cfg config.CalendarConfig, log *logging.Logger) (*calendar.Client, error) {
	httpClient, err := calendar.NewHTTPClient(ctx, cfg.CredentialsPath, cfg.TokenPath, log)
	if err != nil {
		return nil, err
	}
	return calendar.New(ctx, calendar.Options{
		TargetCalendar: cfg.TargetCalendar,
		Lookahead:      time.Duration(cfg.LookaheadDays) * 24 * time.Hour,
		MaxResults:     int64(cfg.MaxResults),
	}, log, option.WithHTTPClient(httpClient))
}

// openJournal starts a journaled conversation: the seed entries are written
// now, later entries through the conversation's recorder and each finished
// turn through the turn_complete hook.
func (a *assistant) openJournal(ctx context.Context, path string, conv *agent.Conversation, log *logging.Logger) error {
	db, err := store.Open(path, log)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	j, err := store.StartConversation(ctx, db)
	if err != nil {
		db.Close()
		return err
	}
	a.db, a.journal = db, j

	jlog := log.Sub("journal").With("conversationId", j.ID())
	for i, e := range conv.Snapshot() {
		if err := j.RecordEntry(ctx, i, e.Role, e.Content); err != nil {
			jlog.Warn().Err(err).Msg("journal write failed")
		}
	}
	conv.WithRecorder(func(index int, e agent.Entry) {
		if err := j.RecordEntry(context.Background(), index, e.Role, e.Content); err != nil {
			jlog.Warn().Err(err).Int("position", index).Msg("journal write failed")
		}
	})

	a.hooks.On(hooks.EventTurnComplete, "journal", func(ctx context.Context, p hooks.Payload) error {
		res, ok := agent.TurnFromPayload(p)
		if !ok {
			return errors.New("turn_complete payload without turn")
		}
		command := agent.CommandNone
		if res.Action != nil {
			command = res.Action.Command
		}
		return j.RecordTurn(context.Background(), store.Turn{
			ID:         res.ID,
			Utterance:  res.Utterance,
			Command:    string(command),
			Reply:      res.Reply.Text,
			ToolResult: res.ToolResult,
			Duration:   res.Duration,
		})
	})

	jlog.Info().Str("path", path).Msg("journal started")
	return nil
}

// Close releases the journal.
func (a *assistant) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
