package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voicecampaign/internal/agent"
	"voicecampaign/internal/calls"
	"voicecampaign/internal/pricing"
	"voicecampaign/internal/telephony"
	"voicecampaign/internal/usage"
	"voicecampaign/pkg/utils"
)

// Hooks builds the webhook URLs baked into outbound calls. The run id in the
// path is the only session key; everything else is reconstructed from storage
// on each callback.
type Hooks struct {
	Base string
}

func (h Hooks) AnswerURL(runID string) string    { return h.Base + "/hook/answer/" + runID }
func (h Hooks) GatherURL(runID string) string    { return h.Base + "/hook/gather/" + runID }
func (h Hooks) StatusURL(runID string) string    { return h.Base + "/hook/status/" + runID }
func (h Hooks) RecordingURL(runID string) string { return h.Base + "/hook/recording/" + runID }

// turnTokenEstimate is the per-turn budget the quota gate checks against
// before generating. Deliberately rough; settlement happens with the real
// count afterwards.
const turnTokenEstimate = 600

const (
	fallbackLine = "I'm sorry, I'm having a little technical trouble. Could you say that again?"
	repromptLine = "Sorry, I didn't catch that. Could you say it again?"
	quotaLine    = "I'm sorry, I have to end our call here. Thank you for your time. Goodbye."
)

// DispositionLogger records terminal call outcomes for the audit trail.
// Best-effort: failures are logged, never propagated.
type DispositionLogger interface {
	LogCallDisposition(ctx context.Context, tenantID, campaignID, runID, disposition string) error
}

// Engine drives one conversation turn per provider webhook. It is stateless
// between callbacks: the run's stored turns are the session.
type Engine struct {
	runs     calls.Repository
	agents   agent.Repository
	usage    *usage.Service
	recorder *usage.Recorder
	gen      Generator
	audit    DispositionLogger
	hooks    Hooks
	log      *slog.Logger
	clock    func() time.Time
}

func NewEngine(runs calls.Repository, agents agent.Repository, usageSvc *usage.Service, recorder *usage.Recorder, gen Generator, audit DispositionLogger, hooks Hooks, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		runs:     runs,
		agents:   agents,
		usage:    usageSvc,
		recorder: recorder,
		gen:      gen,
		audit:    audit,
		hooks:    hooks,
		log:      log,
		clock:    time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (e *Engine) SetClock(clock func() time.Time) { e.clock = clock }

// Answer handles the first webhook after the callee picks up: speak a
// generated opening line and start listening. The agent's configured
// greeting is the fallback when generation fails.
func (e *Engine) Answer(ctx context.Context, runID string) (string, error) {
	run, err := e.runs.GetRun(ctx, runID)
	if err != nil {
		return "", err
	}
	if run.Status != calls.RunStatusInProgress {
		return telephony.NewResponse().Hangup().Render()
	}

	ag, err := e.agents.Get(ctx, run.TenantID, run.AgentID)
	if err != nil {
		return "", fmt.Errorf("load agent: %w", err)
	}

	decision, err := e.usage.CheckCallLimit(ctx, run.TenantID, "", usage.Usage{Tokens: turnTokenEstimate})
	if err != nil {
		e.log.Error("quota check failed", "run_id", runID, "error", err)
		// Fail open rather than dropping an answered call on a ledger outage.
	} else if !decision.Allowed {
		utils.QuotaDenialsTotal.Inc()
		return e.sayGoodbye(ctx, run, ag.Voice, quotaLine, calls.DispositionQuotaExceeded)
	}

	line := ag.Greeting
	if reply, gerr := e.gen.Reply(ctx, ag.SystemPrompt, nil); gerr != nil {
		e.log.Warn("opening line generation failed", "run_id", runID, "error", gerr)
	} else {
		line = reply.Text
		e.accrueTokens(ctx, run, reply.TokensUsed)
	}

	turn, err := e.runs.AppendTurn(ctx, runID, calls.RoleAssistant, line)
	if err != nil {
		if errors.Is(err, calls.ErrRunClosed) {
			return telephony.NewResponse().Hangup().Render()
		}
		return "", err
	}

	// The provider retries the answer webhook; only the first turn of a run
	// counts the call as active so finalize's single decrement balances.
	if turn.Seq == 1 {
		utils.ActiveCalls.Inc()
	}
	return telephony.NewResponse().
		GatherSpeech(e.hooks.GatherURL(runID), ag.Voice, line).
		Render()
}

// Gather handles one callee utterance: persist it, generate the reply,
// persist that, and either keep listening or say goodbye.
func (e *Engine) Gather(ctx context.Context, runID string, form telephony.GatherForm) (string, error) {
	run, err := e.runs.GetRun(ctx, runID)
	if err != nil {
		return "", err
	}
	if run.Status != calls.RunStatusInProgress {
		return telephony.NewResponse().Hangup().Render()
	}

	ag, err := e.agents.Get(ctx, run.TenantID, run.AgentID)
	if err != nil {
		return "", fmt.Errorf("load agent: %w", err)
	}

	if form.SpeechResult == "" {
		return telephony.NewResponse().
			GatherSpeech(e.hooks.GatherURL(runID), ag.Voice, repromptLine).
			Render()
	}

	decision, err := e.usage.CheckCallLimit(ctx, run.TenantID, "", usage.Usage{Tokens: turnTokenEstimate})
	if err != nil {
		e.log.Error("quota check failed", "run_id", runID, "error", err)
		// Fail open for this turn rather than cutting a live call on a
		// ledger outage.
	} else if !decision.Allowed {
		utils.QuotaDenialsTotal.Inc()
		return e.sayGoodbye(ctx, run, ag.Voice, quotaLine, calls.DispositionQuotaExceeded)
	}

	if _, err := e.runs.AppendTurn(ctx, runID, calls.RoleUser, form.SpeechResult); err != nil {
		if errors.Is(err, calls.ErrRunClosed) {
			return telephony.NewResponse().Hangup().Render()
		}
		return "", err
	}

	history, err := e.runs.ListTurns(ctx, runID)
	if err != nil {
		return "", err
	}
	messages := make([]Message, 0, len(history))
	for _, turn := range history {
		messages = append(messages, Message{Role: string(turn.Role), Content: turn.Content})
	}

	reply, err := e.gen.Reply(ctx, ag.SystemPrompt, messages)
	if err != nil {
		e.log.Error("generation failed", "run_id", runID, "error", err)
		// Keep the call alive: apologize and listen again. If the callee
		// gives up, the status callback closes the run.
		return telephony.NewResponse().
			GatherSpeech(e.hooks.GatherURL(runID), ag.Voice, fallbackLine).
			Render()
	}

	if _, err := e.runs.AppendTurn(ctx, runID, calls.RoleAssistant, reply.Text); err != nil && !errors.Is(err, calls.ErrRunClosed) {
		return "", err
	}
	e.accrueTokens(ctx, run, reply.TokensUsed)

	if reply.EndCall {
		e.finalize(ctx, run, calls.RunStatusCompleted, calls.DispositionCompleted, e.elapsedSeconds(run))
		return telephony.NewResponse().Say(ag.Voice, reply.Text).Hangup().Render()
	}

	return telephony.NewResponse().
		GatherSpeech(e.hooks.GatherURL(runID), ag.Voice, reply.Text).
		Render()
}

// Status handles call lifecycle callbacks. Only terminal statuses matter;
// a duplicate terminal callback finds the run already closed and changes
// nothing.
func (e *Engine) Status(ctx context.Context, runID string, form telephony.StatusForm) error {
	if !form.IsTerminal() {
		return nil
	}

	run, err := e.runs.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	status, disposition := classifyStatus(form.CallStatus)
	e.finalize(ctx, run, status, disposition, form.CallDuration)
	return nil
}

// Recording attaches the recording artifact. The provider may deliver it
// after the terminal status, so closed runs accept it.
func (e *Engine) Recording(ctx context.Context, runID string, form telephony.RecordingForm) error {
	return e.runs.AttachRecording(ctx, runID, form.RecordingURL, form.RecordingDuration)
}

func classifyStatus(callStatus string) (calls.RunStatus, calls.Disposition) {
	switch callStatus {
	case telephony.StatusCompleted:
		// The engine closes runs it ends itself; reaching here with an open
		// run means the callee hung up.
		return calls.RunStatusCompleted, calls.DispositionUserHangup
	case telephony.StatusNoAnswer:
		return calls.RunStatusFailed, calls.DispositionNoAnswer
	case telephony.StatusBusy:
		return calls.RunStatusFailed, calls.DispositionBusy
	default:
		return calls.RunStatusFailed, calls.DispositionProviderFailure
	}
}

// accrueTokens adds a turn's generation cost to the run and hands it to the
// usage recorder. Both sides are best-effort from the webhook's perspective.
func (e *Engine) accrueTokens(ctx context.Context, run calls.CallRun, tokens int64) {
	if tokens <= 0 {
		return
	}
	if err := e.runs.AddTokens(ctx, run.ID, tokens); err != nil {
		e.log.Error("token accrual failed", "run_id", run.ID, "error", err)
	}
	e.recorder.Record(run.TenantID, usage.Usage{
		Provider: pricing.ProviderOpenAI,
		Tokens:   tokens,
	})
}

// sayGoodbye ends the call from the engine's side: close the run, then hand
// the farewell line to the provider.
func (e *Engine) sayGoodbye(ctx context.Context, run calls.CallRun, voice, line string, disposition calls.Disposition) (string, error) {
	status := calls.RunStatusCompleted
	if disposition != calls.DispositionCompleted {
		status = calls.RunStatusFailed
	}
	e.finalize(ctx, run, status, disposition, e.elapsedSeconds(run))
	return telephony.NewResponse().Say(voice, line).Hangup().Render()
}

// finalize performs the terminal transition and, when it actually closed the
// run, settles telephony usage and releases the active-call gauge. ErrRunClosed
// means someone else already finalized; both the usage record and the gauge
// decrement belong to that earlier transition.
func (e *Engine) finalize(ctx context.Context, run calls.CallRun, status calls.RunStatus, disposition calls.Disposition, durationSeconds int) {
	err := e.runs.CompleteRun(ctx, run.ID, status, disposition, durationSeconds, e.clock().UTC())
	if errors.Is(err, calls.ErrRunClosed) {
		return
	}
	if err != nil {
		e.log.Error("complete run failed", "run_id", run.ID, "error", err)
		return
	}

	// The gauge was incremented when the greeting turn was appended; a run
	// with no turns was never answered.
	if turns, terr := e.runs.ListTurns(ctx, run.ID); terr == nil && len(turns) > 0 {
		utils.ActiveCalls.Dec()
	}
	e.recorder.Record(run.TenantID, usage.Usage{
		Provider:        pricing.ProviderTwilio,
		DurationSeconds: durationSeconds,
		Calls:           1,
	})

	if e.audit != nil {
		if aerr := e.audit.LogCallDisposition(ctx, run.TenantID, run.CampaignID, run.ID, string(disposition)); aerr != nil {
			e.log.Warn("audit append failed", "run_id", run.ID, "error", aerr)
		}
	}

	e.log.Info("call run closed",
		"run_id", run.ID,
		"tenant_id", run.TenantID,
		"status", string(status),
		"disposition", string(disposition),
		"duration_seconds", durationSeconds)
}

func (e *Engine) elapsedSeconds(run calls.CallRun) int {
	d := e.clock().UTC().Sub(run.CreatedAt)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}
