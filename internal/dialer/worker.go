package dialer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"voicecampaign/internal/calls"
	"voicecampaign/internal/campaign"
	"voicecampaign/internal/conversation"
	"voicecampaign/internal/creds"
	"voicecampaign/internal/queue"
	"voicecampaign/internal/telephony"
	"voicecampaign/internal/usage"
	"voicecampaign/pkg/utils"
)

// Worker drains the dial queue: one job is one outbound call attempt for one
// contact. Delivery is at-least-once; the contact's status transition is the
// idempotency anchor, so a redelivered job for an already-called contact is
// acknowledged without dialing again.
type Worker struct {
	jobs      queue.Queue
	campaigns *campaign.Service
	contacts  campaign.Repository
	runs      calls.Repository
	creds     creds.Resolver
	dialer    telephony.Dialer
	usage     *usage.Service
	limiter   Limiter
	hooks     conversation.Hooks
	log       *slog.Logger
	clock     func() time.Time

	// dequeueWait bounds each blocking poll so shutdown stays responsive.
	dequeueWait time.Duration
	// deferDelay spaces out put-backs for capacity and pause deferrals.
	deferDelay time.Duration
}

func NewWorker(
	jobs queue.Queue,
	campaigns *campaign.Service,
	contacts campaign.Repository,
	runs calls.Repository,
	credResolver creds.Resolver,
	dial telephony.Dialer,
	usageSvc *usage.Service,
	limiter Limiter,
	hooks conversation.Hooks,
	log *slog.Logger,
) *Worker {
	if limiter == nil {
		limiter = NopLimiter{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		jobs:        jobs,
		campaigns:   campaigns,
		contacts:    contacts,
		runs:        runs,
		creds:       credResolver,
		dialer:      dial,
		usage:       usageSvc,
		limiter:     limiter,
		hooks:       hooks,
		log:         log,
		clock:       time.Now,
		dequeueWait: 5 * time.Second,
		deferDelay:  5 * time.Second,
	}
}

// Run processes jobs until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("dial worker started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info("dial worker stopping")
			return
		default:
		}

		d, ok, err := w.jobs.Dequeue(ctx, w.dequeueWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error("dequeue failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if !ok {
			continue
		}
		w.Process(ctx, d)
	}
}

// Process handles one delivery end to end.
func (w *Worker) Process(ctx context.Context, d queue.Delivery) {
	job := d.Job
	log := w.log.With(
		"job_id", job.ID,
		"tenant_id", job.TenantID,
		"campaign_id", job.CampaignID,
		"contact_id", job.ContactID,
		"attempt", d.Attempt,
	)

	contact, err := w.contacts.GetContact(ctx, job.ContactID)
	if errors.Is(err, campaign.ErrNotFound) {
		log.Warn("contact vanished, dropping job")
		w.ack(ctx, d, "dropped")
		return
	}
	if err != nil {
		log.Error("load contact failed", "error", err)
		w.nack(ctx, d, err, log)
		return
	}
	if contact.Status != campaign.ContactPending {
		log.Info("contact already resolved, dropping redelivery", "status", string(contact.Status))
		w.ack(ctx, d, "duplicate")
		return
	}

	camp, err := w.campaigns.Get(ctx, job.TenantID, job.CampaignID)
	if errors.Is(err, campaign.ErrNotFound) {
		log.Warn("campaign vanished, dropping job")
		w.ack(ctx, d, "dropped")
		return
	}
	if err != nil {
		log.Error("load campaign failed", "error", err)
		w.nack(ctx, d, err, log)
		return
	}
	switch camp.State {
	case campaign.StateRunning:
	case campaign.StatePaused:
		// Normally parked at the queue; a job already leased when the pause
		// landed slips through. Put it back.
		log.Info("campaign paused mid-flight, requeueing")
		w.requeue(ctx, d, log)
		return
	default:
		log.Info("campaign no longer active, dropping job", "state", string(camp.State))
		w.ack(ctx, d, "dropped")
		return
	}

	decision, err := w.usage.CheckCallLimit(ctx, job.TenantID, "", usage.Usage{Calls: 1})
	if err != nil {
		log.Error("quota check failed", "error", err)
		w.nack(ctx, d, err, log)
		return
	}
	if !decision.Allowed {
		utils.QuotaDenialsTotal.Inc()
		log.Warn("quota exhausted, failing contact", "reason", decision.Reason)
		if _, err := w.campaigns.MarkFailed(ctx, job.TenantID, job.CampaignID, job.ContactID); err != nil {
			log.Error("mark contact failed errored", "error", err)
		}
		w.ack(ctx, d, "quota_denied")
		return
	}

	acquired, err := w.limiter.Acquire(ctx, job.TenantID)
	if err != nil {
		log.Error("limiter acquire failed", "error", err)
		w.nack(ctx, d, err, log)
		return
	}
	if !acquired {
		log.Info("tenant at concurrent call cap, requeueing")
		w.requeue(ctx, d, log)
		return
	}

	bundle, err := w.creds.Resolve(ctx, job.TenantID)
	if errors.Is(err, creds.ErrNoCredentials) {
		w.release(ctx, job.TenantID, log)
		log.Warn("no telephony credentials, failing contact")
		if _, err := w.campaigns.MarkFailed(ctx, job.TenantID, job.CampaignID, job.ContactID); err != nil {
			log.Error("mark contact failed errored", "error", err)
		}
		w.ack(ctx, d, "no_credentials")
		return
	}
	if err != nil {
		w.release(ctx, job.TenantID, log)
		log.Error("credential resolution failed", "error", err)
		w.nack(ctx, d, err, log)
		return
	}

	now := w.clock().UTC()
	run := calls.CallRun{
		ID:         uuid.NewString(),
		TenantID:   job.TenantID,
		RunNumber:  calls.NewRunNumber(now),
		AgentID:    camp.AgentID,
		CampaignID: job.CampaignID,
		ContactID:  job.ContactID,
		Type:       calls.CallTypePhone,
		Status:     calls.RunStatusInProgress,
		CreatedAt:  now,
	}
	if err := w.runs.CreateRun(ctx, run); err != nil {
		w.release(ctx, job.TenantID, log)
		log.Error("create run failed", "error", err)
		w.nack(ctx, d, err, log)
		return
	}

	res, err := w.dialer.PlaceCall(ctx, telephony.PlaceCallRequest{
		AccountSID:           bundle.AccountSID,
		AuthToken:            bundle.AuthToken,
		From:                 bundle.FromNumber,
		To:                   contact.Phone,
		AnswerURL:            w.hooks.AnswerURL(run.ID),
		StatusCallbackURL:    w.hooks.StatusURL(run.ID),
		RecordingCallbackURL: w.hooks.RecordingURL(run.ID),
	})
	if err != nil {
		w.release(ctx, job.TenantID, log)
		w.closeOrphanRun(ctx, run.ID, log)

		if telephony.IsPermanent(err) {
			log.Warn("provider rejected call, failing contact", "error", err)
			if _, merr := w.campaigns.MarkFailed(ctx, job.TenantID, job.CampaignID, job.ContactID); merr != nil {
				log.Error("mark contact failed errored", "error", merr)
			}
			w.ack(ctx, d, "rejected")
			return
		}

		log.Error("place call failed", "error", err)
		w.nack(ctx, d, err, log)
		return
	}

	// The slot stays held for the duration of the call and is reclaimed by
	// the limiter TTL; only failed placements release it early.
	log.Info("call placed",
		"run_id", run.ID,
		"provider_call_id", res.ProviderCallID,
		"credential_source", bundle.Source)

	if _, err := w.campaigns.MarkCalled(ctx, job.TenantID, job.CampaignID, job.ContactID, run.ID); err != nil {
		log.Error("mark contact called errored", "error", err)
	}
	w.ack(ctx, d, "placed")
}

// closeOrphanRun finalizes a run whose call never left the building. Without
// this a retry would leave an in_progress run dangling forever.
func (w *Worker) closeOrphanRun(ctx context.Context, runID string, log *slog.Logger) {
	err := w.runs.CompleteRun(ctx, runID, calls.RunStatusFailed, calls.DispositionProviderFailure, 0, w.clock().UTC())
	if err != nil && !errors.Is(err, calls.ErrRunClosed) {
		log.Error("close orphan run failed", "run_id", runID, "error", err)
	}
}

func (w *Worker) ack(ctx context.Context, d queue.Delivery, result string) {
	utils.JobsProcessedTotal.WithLabelValues(result).Inc()
	if err := w.jobs.Ack(ctx, d); err != nil {
		w.log.Error("ack failed", "job_id", d.Job.ID, "error", err)
	}
}

func (w *Worker) nack(ctx context.Context, d queue.Delivery, cause error, log *slog.Logger) {
	retrying, err := w.jobs.Nack(ctx, d, cause)
	if err != nil {
		log.Error("nack failed", "error", err)
		return
	}
	if retrying {
		utils.JobsProcessedTotal.WithLabelValues("retry").Inc()
		return
	}

	utils.JobsProcessedTotal.WithLabelValues("failed").Inc()
	log.Warn("attempts exhausted, failing contact")
	if _, err := w.campaigns.MarkFailed(ctx, d.Job.TenantID, d.Job.CampaignID, d.Job.ContactID); err != nil {
		log.Error("mark contact failed errored", "error", err)
	}
}

// requeue gives the job a fresh delivery without burning an attempt: the
// contact was not dialed, so a capacity or pause deferral should not count
// against the retry budget.
func (w *Worker) requeue(ctx context.Context, d queue.Delivery, log *slog.Logger) {
	utils.JobsProcessedTotal.WithLabelValues("deferred").Inc()
	if err := w.jobs.Ack(ctx, d); err != nil {
		log.Error("ack before requeue failed", "error", err)
		return
	}
	job := d.Job
	job.ID = uuid.NewString()
	job.EnqueuedAt = w.clock().UTC()
	if err := w.jobs.EnqueueDelayed(ctx, job, w.deferDelay); err != nil {
		log.Error("requeue failed", "error", err)
	}
}

func (w *Worker) release(ctx context.Context, tenantID string, log *slog.Logger) {
	if err := w.limiter.Release(ctx, tenantID); err != nil {
		log.Error("limiter release failed", "error", err)
	}
}
