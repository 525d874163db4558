package agent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/mirror/internal/hooks"
	"github.com/soyeahso/mirror/internal/llm"
	"github.com/soyeahso/mirror/internal/logging"
)

// Defaults for RunnerConfig.
const (
	DefaultModel       = "gpt-4o"
	DefaultTemperature = 0.5
)

// RunnerConfig configures the orchestration loop.
type RunnerConfig struct {
	Model        string
	Temperature  *float64
	MaxTokens    int
	PhaseTimeout time.Duration // per completion phase; 0 means none
}

// TurnResult is the outcome of one utterance.
type TurnResult struct {
	ID         string        `json:"id"`
	Utterance  string        `json:"utterance"`
	Reply      Decision      `json:"reply"`
	Action     *Decision     `json:"action,omitempty"`
	ToolResult string        `json:"toolResult,omitempty"`
	Entries    int           `json:"entries"`
	Usage      llm.Usage     `json:"usage"`
	Duration   time.Duration `json:"duration"`
}

// Runner is the two-phase orchestration loop: classify the utterance, then
// execute the chosen command and let the model phrase the final reply.
type Runner struct {
	cfg    RunnerConfig
	client llm.Client
	conv   *Conversation
	router *Router
	hooks  *hooks.Manager
	log    *logging.Logger
}

// NewRunner creates a runner. client may be nil, in which case every turn
// answers FallbackNoClient. hooks may be nil.
func NewRunner(cfg RunnerConfig, client llm.Client, conv *Conversation, router *Router, hm *hooks.Manager, log *logging.Logger) *Runner {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature == nil {
		t := DefaultTemperature
		cfg.Temperature = &t
	}
	return &Runner{
		cfg:    cfg,
		client: client,
		conv:   conv,
		router: router,
		hooks:  hm,
		log:    log.Sub("agent"),
	}
}

// Conversation returns the store the runner appends to.
func (r *Runner) Conversation() *Conversation {
	return r.conv
}

// Run processes one utterance. It never returns an error; failures surface
// as fallback reply text.
func (r *Runner) Run(ctx context.Context, utterance string) *TurnResult {
	start := time.Now()
	res := &TurnResult{ID: uuid.NewString(), Utterance: utterance}

	r.log.Info().
		Str("turnId", res.ID).
		Int("historyLen", r.conv.Len()).
		Msg("processing utterance")
	r.emit(ctx, hooks.EventTurnStart, map[string]any{"turnId": res.ID, "utterance": utterance})

	decision := r.classify(ctx, res, utterance)
	if decision.Command != CommandNone {
		decision = r.executeAndFinalize(ctx, res, decision)
	}

	res.Reply = decision
	res.Duration = time.Since(start)

	r.log.Info().
		Str("turnId", res.ID).
		Str("command", string(commandOf(res.Action))).
		Int("entries", res.Entries).
		Int("inputTokens", res.Usage.InputTokens).
		Int("outputTokens", res.Usage.OutputTokens).
		Dur("duration", res.Duration).
		Msg("turn complete")
	r.emit(ctx, hooks.EventTurnComplete, map[string]any{
		"turnId":  res.ID,
		"command": string(commandOf(res.Action)),
		"text":    decision.Text,
		"result":  res.ToolResult,
		"turn":    res,
	})
	return res
}

// classify appends the user entry and the model's first decision.
func (r *Runner) classify(ctx context.Context, res *TurnResult, utterance string) Decision {
	r.append(res, Entry{Role: llm.RoleUser, Content: userContent(utterance)})
	d := r.decide(ctx, res, "classify")
	r.append(res, Entry{Role: llm.RoleAssistant, Content: d.Text})
	return d
}

// executeAndFinalize runs the command, feeds its result back and appends the
// model's final reply.
func (r *Runner) executeAndFinalize(ctx context.Context, res *TurnResult, action Decision) Decision {
	res.Action = &action
	res.ToolResult = r.router.Execute(ctx, action)
	r.emit(ctx, hooks.EventCommandExecuted, map[string]any{
		"turnId":  res.ID,
		"command": string(action.Command),
		"result":  res.ToolResult,
	})

	r.append(res, Entry{Role: llm.RoleSystem, Content: toolResultContent(res.ToolResult)})
	d := r.decide(ctx, res, "finalize")
	r.append(res, Entry{Role: llm.RoleAssistant, Content: d.Text})
	return d
}

// decide snapshots the conversation and asks the model for a decision,
// mapping every failure onto a fallback.
func (r *Runner) decide(ctx context.Context, res *TurnResult, phase string) Decision {
	if r.client == nil {
		return DefaultDecision(FallbackNoClient)
	}

	if r.cfg.PhaseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.PhaseTimeout)
		defer cancel()
	}

	resp, err := r.client.Complete(ctx, llm.CompletionRequest{
		Model:       r.cfg.Model,
		Messages:    Messages(r.conv.Snapshot()),
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
		JSON:        true,
	})
	if err != nil {
		r.log.Warn().Err(err).Str("turnId", res.ID).Str("phase", phase).Msg("completion failed")
		if errors.Is(err, llm.ErrEmptyResponse) {
			return DefaultDecision(FallbackMalformed)
		}
		return DefaultDecision(FallbackUnreachable)
	}
	res.Usage.InputTokens += resp.Usage.InputTokens
	res.Usage.OutputTokens += resp.Usage.OutputTokens

	d, err := Decode(resp.Content)
	if err != nil {
		r.log.Warn().Err(err).Str("turnId", res.ID).Str("phase", phase).Msg("undecodable reply")
		return DefaultDecision(FallbackUndecodable)
	}
	r.log.Debug().
		Str("turnId", res.ID).
		Str("phase", phase).
		Str("command", string(d.Command)).
		Dur("duration", resp.Duration).
		Msg("decision")
	return d
}

func (r *Runner) append(res *TurnResult, e Entry) {
	r.conv.Append(e)
	res.Entries++
}

func (r *Runner) emit(ctx context.Context, event string, data map[string]any) {
	if r.hooks != nil {
		r.hooks.Emit(ctx, event, data)
	}
}

// TurnFromPayload extracts the TurnResult carried by a turn_complete event.
func TurnFromPayload(p hooks.Payload) (*TurnResult, bool) {
	res, ok := p.Data["turn"].(*TurnResult)
	return res, ok && res != nil
}

func commandOf(d *Decision) Command {
	if d == nil {
		return CommandNone
	}
	return d.Command
}
