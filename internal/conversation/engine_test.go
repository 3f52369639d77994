package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"voicecampaign/internal/agent"
	"voicecampaign/internal/calls"
	"voicecampaign/internal/pricing"
	"voicecampaign/internal/telephony"
	"voicecampaign/internal/usage"
	"voicecampaign/pkg/utils"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type scriptedGenerator struct {
	replies []Reply
	err     error
	calls   int
}

func (g *scriptedGenerator) Reply(ctx context.Context, systemPrompt string, history []Message) (Reply, error) {
	if g.err != nil {
		return Reply{}, g.err
	}
	if g.calls >= len(g.replies) {
		return Reply{}, errors.New("no scripted reply")
	}
	i := g.calls
	g.calls++
	return g.replies[i], nil
}

type engineFixture struct {
	engine   *Engine
	runs     *calls.MemoryRepo
	usageSvc *usage.Service
	recorder *usage.Recorder
	run      calls.CallRun
}

func newEngineFixture(t *testing.T, gen Generator) *engineFixture {
	t.Helper()

	runs := calls.NewMemoryRepo()
	agents := agent.NewMemoryRepo()
	agents.Seed(agent.Agent{
		ID:           "agent-1",
		TenantID:     "t-1",
		Name:         "Scheduler",
		SystemPrompt: "You schedule appointments.",
		Greeting:     "Hi, this is the clinic calling about your appointment.",
		Voice:        "alice",
	})

	rateRepo := pricing.NewMemoryRepo()
	rateRepo.SeedDefaults()
	pricingSvc := pricing.NewService(rateRepo)

	usageRepo := usage.NewMemoryRepo()
	usageSvc := usage.NewService(usageRepo, pricingSvc, usage.StaticTiers{Default: usage.TierPro})
	recorder := usage.NewRecorder(usageSvc, 16, slog.Default())
	t.Cleanup(recorder.Close)

	engine := NewEngine(runs, agents, usageSvc, recorder, gen, nil,
		Hooks{Base: "https://engine.example.com"}, slog.Default())

	run := calls.CallRun{
		ID:        "run-1",
		TenantID:  "t-1",
		RunNumber: calls.NewRunNumber(time.Now()),
		AgentID:   "agent-1",
		Type:      calls.CallTypePhone,
		Status:    calls.RunStatusInProgress,
		CreatedAt: time.Now().UTC(),
	}
	if err := runs.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	return &engineFixture{engine: engine, runs: runs, usageSvc: usageSvc, recorder: recorder, run: run}
}

func TestAnswerSpeaksGeneratedOpeningAndListens(t *testing.T) {
	gen := &scriptedGenerator{replies: []Reply{
		{Text: "Good morning! I'm calling from the clinic about your visit.", TokensUsed: 25},
	}}
	f := newEngineFixture(t, gen)

	twiml, err := f.engine.Answer(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(twiml, "calling from the clinic") {
		t.Fatalf("opening line missing:\n%s", twiml)
	}
	if !strings.Contains(twiml, "https://engine.example.com/hook/gather/run-1") {
		t.Fatalf("gather action missing:\n%s", twiml)
	}

	turns, err := f.runs.ListTurns(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(turns) != 1 || turns[0].Role != calls.RoleAssistant {
		t.Fatalf("turns = %+v", turns)
	}

	run, err := f.runs.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.TokensUsed != 25 {
		t.Fatalf("tokens used = %d, want 25", run.TokensUsed)
	}
}

func TestAnswerRetryCountsOneActiveCall(t *testing.T) {
	gen := &scriptedGenerator{replies: []Reply{
		{Text: "Hello!", TokensUsed: 5},
		{Text: "Hello again!", TokensUsed: 5},
	}}
	f := newEngineFixture(t, gen)

	before := testutil.ToFloat64(utils.ActiveCalls)

	// The provider redelivers the answer webhook on a slow response; the
	// gauge must count the call once regardless.
	if _, err := f.engine.Answer(context.Background(), "run-1"); err != nil {
		t.Fatalf("first Answer: %v", err)
	}
	if _, err := f.engine.Answer(context.Background(), "run-1"); err != nil {
		t.Fatalf("second Answer: %v", err)
	}
	if got := testutil.ToFloat64(utils.ActiveCalls) - before; got != 1 {
		t.Fatalf("active calls delta after redelivered answer = %v, want 1", got)
	}

	if err := f.engine.Status(context.Background(), "run-1", telephony.StatusForm{
		CallStatus:   telephony.StatusCompleted,
		CallDuration: 40,
	}); err != nil {
		t.Fatalf("Status: %v", err)
	}
	if got := testutil.ToFloat64(utils.ActiveCalls) - before; got != 0 {
		t.Fatalf("active calls delta after close = %v, want 0", got)
	}
}

func TestAnswerFallsBackToConfiguredGreeting(t *testing.T) {
	f := newEngineFixture(t, &scriptedGenerator{err: context.DeadlineExceeded})

	twiml, err := f.engine.Answer(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(twiml, "clinic calling about your appointment") {
		t.Fatalf("fallback greeting missing:\n%s", twiml)
	}
	if strings.Contains(twiml, "<Hangup>") {
		t.Fatalf("fallback greeting hung up:\n%s", twiml)
	}
}

func TestGatherRunsOneTurn(t *testing.T) {
	gen := &scriptedGenerator{replies: []Reply{
		{Text: "Hello! I'm calling about your appointment."},
		{Text: "Tuesday at 3pm works. Does that suit you?", TokensUsed: 120},
	}}
	f := newEngineFixture(t, gen)

	if _, err := f.engine.Answer(context.Background(), "run-1"); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	twiml, err := f.engine.Gather(context.Background(), "run-1", telephony.GatherForm{
		CallSID:      "CA1",
		SpeechResult: "I need to reschedule",
	})
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if !strings.Contains(twiml, "Tuesday at 3pm") {
		t.Fatalf("reply missing:\n%s", twiml)
	}
	if strings.Contains(twiml, "<Hangup>") {
		t.Fatalf("mid-conversation turn hung up:\n%s", twiml)
	}

	turns, err := f.runs.ListTurns(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	// greeting, user utterance, assistant reply
	if len(turns) != 3 {
		t.Fatalf("turn count = %d, want 3", len(turns))
	}
	if turns[1].Role != calls.RoleUser || turns[1].Content != "I need to reschedule" {
		t.Fatalf("user turn = %+v", turns[1])
	}

	run, err := f.runs.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.TokensUsed != 120 {
		t.Fatalf("tokens used = %d, want 120", run.TokensUsed)
	}
}

func TestGatherGoodbyeEndsCall(t *testing.T) {
	gen := &scriptedGenerator{replies: []Reply{
		{Text: "Hello! I'm calling about your appointment."},
		{Text: "You're all set. Goodbye!", TokensUsed: 80, EndCall: true},
	}}
	f := newEngineFixture(t, gen)

	if _, err := f.engine.Answer(context.Background(), "run-1"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	twiml, err := f.engine.Gather(context.Background(), "run-1", telephony.GatherForm{
		SpeechResult: "that works, thanks",
	})
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if !strings.Contains(twiml, "You're all set") || !strings.Contains(twiml, "<Hangup>") {
		t.Fatalf("goodbye twiml:\n%s", twiml)
	}

	run, err := f.runs.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != calls.RunStatusCompleted || run.Disposition != calls.DispositionCompleted {
		t.Fatalf("run = %s/%s, want completed/completed", run.Status, run.Disposition)
	}
	if run.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
}

func TestGatherGenerationFailureKeepsCallAlive(t *testing.T) {
	gen := &scriptedGenerator{err: context.DeadlineExceeded}
	f := newEngineFixture(t, gen)

	if _, err := f.engine.Answer(context.Background(), "run-1"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	twiml, err := f.engine.Gather(context.Background(), "run-1", telephony.GatherForm{
		SpeechResult: "hello?",
	})
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if !strings.Contains(twiml, "technical trouble") {
		t.Fatalf("apology missing:\n%s", twiml)
	}
	if strings.Contains(twiml, "<Hangup>") {
		t.Fatalf("generation failure hung up the call:\n%s", twiml)
	}
	if !strings.Contains(twiml, "/hook/gather/run-1") {
		t.Fatalf("retry gather missing:\n%s", twiml)
	}

	run, err := f.runs.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != calls.RunStatusInProgress {
		t.Fatalf("run status = %s, want in_progress", run.Status)
	}
}

func TestGatherEmptySpeechReprompts(t *testing.T) {
	f := newEngineFixture(t, &scriptedGenerator{})

	if _, err := f.engine.Answer(context.Background(), "run-1"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	twiml, err := f.engine.Gather(context.Background(), "run-1", telephony.GatherForm{SpeechResult: ""})
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if !strings.Contains(twiml, "didn't catch that") {
		t.Fatalf("reprompt missing:\n%s", twiml)
	}

	turns, err := f.runs.ListTurns(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("empty speech appended a turn: %+v", turns)
	}
}

func TestStatusNoAnswerFailsRun(t *testing.T) {
	f := newEngineFixture(t, &scriptedGenerator{})

	err := f.engine.Status(context.Background(), "run-1", telephony.StatusForm{
		CallSID:    "CA1",
		CallStatus: telephony.StatusNoAnswer,
	})
	if err != nil {
		t.Fatalf("Status: %v", err)
	}

	run, err := f.runs.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != calls.RunStatusFailed || run.Disposition != calls.DispositionNoAnswer {
		t.Fatalf("run = %s/%s", run.Status, run.Disposition)
	}
	if run.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
}

func TestStatusHangupAfterConversation(t *testing.T) {
	f := newEngineFixture(t, &scriptedGenerator{replies: []Reply{
		{Text: "Hello!"},
		{Text: "Sure.", TokensUsed: 10},
	}})

	if _, err := f.engine.Answer(context.Background(), "run-1"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if _, err := f.engine.Gather(context.Background(), "run-1", telephony.GatherForm{SpeechResult: "hi"}); err != nil {
		t.Fatalf("Gather: %v", err)
	}

	err := f.engine.Status(context.Background(), "run-1", telephony.StatusForm{
		CallStatus:   telephony.StatusCompleted,
		CallDuration: 95,
	})
	if err != nil {
		t.Fatalf("Status: %v", err)
	}

	run, err := f.runs.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Disposition != calls.DispositionUserHangup {
		t.Fatalf("disposition = %s, want user_hangup", run.Disposition)
	}
	if run.DurationSeconds != 95 {
		t.Fatalf("duration = %d, want 95", run.DurationSeconds)
	}
}

func TestDuplicateTerminalStatusIsHarmless(t *testing.T) {
	f := newEngineFixture(t, &scriptedGenerator{})

	form := telephony.StatusForm{CallStatus: telephony.StatusCompleted, CallDuration: 30}
	if err := f.engine.Status(context.Background(), "run-1", form); err != nil {
		t.Fatalf("first Status: %v", err)
	}
	if err := f.engine.Status(context.Background(), "run-1", form); err != nil {
		t.Fatalf("second Status: %v", err)
	}

	f.recorder.Close()
	totals, _, err := f.usageSvc.MonthSummary(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("MonthSummary: %v", err)
	}
	if totals.Calls != 1 {
		t.Fatalf("calls recorded = %d, want 1", totals.Calls)
	}
	if totals.DurationSeconds != 30 {
		t.Fatalf("duration recorded = %d, want 30", totals.DurationSeconds)
	}
}

func TestQuotaExhaustionEndsCallPolitely(t *testing.T) {
	gen := &scriptedGenerator{replies: []Reply{{Text: "Hello.", TokensUsed: 10}}}
	f := newEngineFixture(t, gen)

	// Burn the entire pro token budget.
	if err := f.usageSvc.RecordUsage(context.Background(), "t-1", usage.Usage{
		Provider: pricing.ProviderOpenAI,
		Tokens:   usage.TierPro.MonthlyTokenLimit,
	}); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	twiml, err := f.engine.Answer(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(twiml, "end our call here") || !strings.Contains(twiml, "<Hangup>") {
		t.Fatalf("quota goodbye twiml:\n%s", twiml)
	}

	run, err := f.runs.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Disposition != calls.DispositionQuotaExceeded {
		t.Fatalf("disposition = %s, want quota_exceeded", run.Disposition)
	}
	if gen.calls != 0 {
		t.Fatal("generator invoked after quota denial")
	}
}

func TestRecordingAttachesAfterClose(t *testing.T) {
	f := newEngineFixture(t, &scriptedGenerator{})

	if err := f.engine.Status(context.Background(), "run-1", telephony.StatusForm{
		CallStatus:   telephony.StatusCompleted,
		CallDuration: 20,
	}); err != nil {
		t.Fatalf("Status: %v", err)
	}

	err := f.engine.Recording(context.Background(), "run-1", telephony.RecordingForm{
		RecordingURL:      "https://api.example.com/recordings/RE1",
		RecordingDuration: 19,
	})
	if err != nil {
		t.Fatalf("Recording: %v", err)
	}

	run, err := f.runs.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.RecordingURL != "https://api.example.com/recordings/RE1" || run.RecordingDurationSeconds != 19 {
		t.Fatalf("recording = %s/%d", run.RecordingURL, run.RecordingDurationSeconds)
	}
}

func TestAnswerOnClosedRunHangsUp(t *testing.T) {
	f := newEngineFixture(t, &scriptedGenerator{})

	if err := f.engine.Status(context.Background(), "run-1", telephony.StatusForm{
		CallStatus: telephony.StatusFailed,
	}); err != nil {
		t.Fatalf("Status: %v", err)
	}

	twiml, err := f.engine.Answer(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(twiml, "<Hangup>") {
		t.Fatalf("closed run answer twiml:\n%s", twiml)
	}
}
