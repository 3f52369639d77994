package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"voicecampaign/internal/queue"
)

// Enqueuer is the slice of the job queue the campaign lifecycle needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job queue.Job) error
	PauseCampaign(ctx context.Context, campaignID string) error
	ResumeCampaign(ctx context.Context, campaignID string) error
	PurgeCampaign(ctx context.Context, campaignID string) (int, error)
}

// CredentialsChecker reports whether a tenant is able to place outbound
// calls. Start refuses to dispatch a campaign for a tenant with no telephony
// credentials anywhere in the fallback chain.
type CredentialsChecker interface {
	HasCredentials(ctx context.Context, tenantID string) (bool, error)
}

// Auditor records lifecycle transitions. Best-effort: failures are logged,
// never propagated.
type Auditor interface {
	LogCampaignTransition(ctx context.Context, tenantID, actorID, campaignID, from, to string) error
}

// Service drives the campaign state machine.
//
// Allowed transitions:
//
//	created -> running   (start: enqueue every pending contact)
//	running -> paused    (pause: scoped to this campaign's jobs only)
//	paused  -> running   (resume, or start: unpark, no re-enqueue)
//	created|running|paused -> stopped (stop: purge undelivered jobs)
//	running -> completed (internal, when the last contact leaves pending)
//
// stopped and completed are terminal.
type Service struct {
	repo  Repository
	jobs  Enqueuer
	creds CredentialsChecker
	audit Auditor
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, jobs Enqueuer, creds CredentialsChecker, audit Auditor, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:  repo,
		jobs:  jobs,
		creds: creds,
		audit: audit,
		log:   log,
		clock: time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

func (s *Service) Create(ctx context.Context, tenantID, agentID, source string) (Campaign, error) {
	if tenantID == "" || agentID == "" {
		return Campaign{}, fmt.Errorf("%w: tenant and agent are required", ErrInvalidArgument)
	}
	now := s.clock().UTC()
	c := Campaign{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		AgentID:   agentID,
		Source:    source,
		State:     StateCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateCampaign(ctx, c); err != nil {
		return Campaign{}, fmt.Errorf("create campaign: %w", err)
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, tenantID, campaignID string) (Campaign, error) {
	return s.repo.GetCampaign(ctx, tenantID, campaignID)
}

func (s *Service) List(ctx context.Context, tenantID string) ([]Campaign, error) {
	return s.repo.ListCampaigns(ctx, tenantID)
}

// Progress is the contact ledger for one campaign.
type Progress struct {
	State   State `json:"state"`
	Total   int   `json:"total"`
	Pending int   `json:"pending"`
	Called  int   `json:"called"`
	Failed  int   `json:"failed"`
}

func (s *Service) GetProgress(ctx context.Context, tenantID, campaignID string) (Progress, error) {
	c, err := s.repo.GetCampaign(ctx, tenantID, campaignID)
	if err != nil {
		return Progress{}, err
	}
	counts, err := s.repo.CountContactsByStatus(ctx, campaignID)
	if err != nil {
		return Progress{}, err
	}
	p := Progress{
		State:   c.State,
		Pending: counts[ContactPending],
		Called:  counts[ContactCalled],
		Failed:  counts[ContactFailed],
	}
	p.Total = p.Pending + p.Called + p.Failed
	return p, nil
}

// LoadContacts attaches a parsed contact list to a campaign that has not
// started yet. Rows with an empty phone are skipped. Returns how many
// contacts were stored.
func (s *Service) LoadContacts(ctx context.Context, tenantID, campaignID string, rows []SourceRow) (int, error) {
	c, err := s.repo.GetCampaign(ctx, tenantID, campaignID)
	if err != nil {
		return 0, err
	}
	if c.State != StateCreated {
		return 0, fmt.Errorf("%w: contacts can only be loaded before start (state %s)", ErrPreconditionFailed, c.State)
	}

	now := s.clock().UTC()
	contacts := make([]Contact, 0, len(rows))
	for _, row := range rows {
		phone := strings.TrimSpace(row.Phone)
		if phone == "" {
			continue
		}
		contacts = append(contacts, Contact{
			ID:         uuid.NewString(),
			CampaignID: campaignID,
			TenantID:   tenantID,
			Phone:      phone,
			FirstName:  strings.TrimSpace(row.FirstName),
			LastName:   strings.TrimSpace(row.LastName),
			Status:     ContactPending,
			CreatedAt:  now,
		})
	}
	if len(contacts) == 0 {
		return 0, fmt.Errorf("%w: no usable rows", ErrInvalidArgument)
	}
	if err := s.repo.InsertContacts(ctx, contacts); err != nil {
		return 0, fmt.Errorf("insert contacts: %w", err)
	}
	return len(contacts), nil
}

// Start moves a created or paused campaign to running. From created it
// enqueues one dial job per pending contact; from paused the parked jobs
// already cover the remaining pending contacts, so it unparks them instead
// of enqueueing duplicates. Returns the number of contacts put in flight.
func (s *Service) Start(ctx context.Context, tenantID, actorID, campaignID string) (int, error) {
	c, err := s.repo.GetCampaign(ctx, tenantID, campaignID)
	if err != nil {
		return 0, err
	}
	if c.State != StateCreated && c.State != StatePaused {
		return 0, fmt.Errorf("%w: start requires state created or paused, campaign is %s", ErrPreconditionFailed, c.State)
	}

	ok, err := s.creds.HasCredentials(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("check credentials: %w", err)
	}
	if !ok {
		return 0, ErrConfigMissing
	}

	pending, err := s.repo.ListPendingContacts(ctx, campaignID)
	if err != nil {
		return 0, fmt.Errorf("list pending contacts: %w", err)
	}
	if len(pending) == 0 {
		return 0, fmt.Errorf("%w: campaign has no contacts", ErrPreconditionFailed)
	}

	if c.State == StatePaused {
		if err := s.jobs.ResumeCampaign(ctx, campaignID); err != nil {
			return 0, fmt.Errorf("resume queue: %w", err)
		}
		if err := s.transition(ctx, c, StateRunning, actorID); err != nil {
			return 0, err
		}
		s.log.Info("campaign restarted",
			"tenant_id", tenantID, "campaign_id", campaignID, "pending", len(pending))
		return len(pending), nil
	}

	if err := s.transition(ctx, c, StateRunning, actorID); err != nil {
		return 0, err
	}

	now := s.clock().UTC()
	enqueued := 0
	for _, contact := range pending {
		job := queue.Job{
			ID:         uuid.NewString(),
			TenantID:   tenantID,
			CampaignID: campaignID,
			ContactID:  contact.ID,
			EnqueuedAt: now,
		}
		if err := s.jobs.Enqueue(ctx, job); err != nil {
			// Already-enqueued jobs stay; the campaign keeps running with a
			// partial batch rather than losing what was dispatched.
			s.log.Error("enqueue dial job failed",
				"campaign_id", campaignID, "contact_id", contact.ID, "error", err)
			return enqueued, fmt.Errorf("enqueue: %w", err)
		}
		enqueued++
	}

	s.log.Info("campaign started",
		"tenant_id", tenantID, "campaign_id", campaignID, "enqueued", enqueued)
	return enqueued, nil
}

// Pause parks this campaign's undelivered jobs. In-flight calls finish.
func (s *Service) Pause(ctx context.Context, tenantID, actorID, campaignID string) error {
	c, err := s.repo.GetCampaign(ctx, tenantID, campaignID)
	if err != nil {
		return err
	}
	if c.State != StateRunning {
		return fmt.Errorf("%w: pause requires state running, campaign is %s", ErrPreconditionFailed, c.State)
	}
	if err := s.jobs.PauseCampaign(ctx, campaignID); err != nil {
		return fmt.Errorf("pause queue: %w", err)
	}
	return s.transition(ctx, c, StatePaused, actorID)
}

func (s *Service) Resume(ctx context.Context, tenantID, actorID, campaignID string) error {
	c, err := s.repo.GetCampaign(ctx, tenantID, campaignID)
	if err != nil {
		return err
	}
	if c.State != StatePaused {
		return fmt.Errorf("%w: resume requires state paused, campaign is %s", ErrPreconditionFailed, c.State)
	}
	if err := s.jobs.ResumeCampaign(ctx, campaignID); err != nil {
		return fmt.Errorf("resume queue: %w", err)
	}
	return s.transition(ctx, c, StateRunning, actorID)
}

// Stop ends a campaign for good and drops its undelivered jobs. Purge
// failures do not block the transition: remaining jobs are rejected by the
// worker's state check instead.
func (s *Service) Stop(ctx context.Context, tenantID, actorID, campaignID string) error {
	c, err := s.repo.GetCampaign(ctx, tenantID, campaignID)
	if err != nil {
		return err
	}
	if c.State.IsTerminal() {
		return fmt.Errorf("%w: campaign is already %s", ErrPreconditionFailed, c.State)
	}

	if err := s.transition(ctx, c, StateStopped, actorID); err != nil {
		return err
	}

	if dropped, err := s.jobs.PurgeCampaign(ctx, campaignID); err != nil {
		s.log.Error("purge after stop failed", "campaign_id", campaignID, "error", err)
	} else if dropped > 0 {
		s.log.Info("purged undelivered jobs", "campaign_id", campaignID, "dropped", dropped)
	}
	return nil
}

// MarkCalled records a successful call for a contact and completes the
// campaign when it was the last pending one. Returns false when the contact
// had already left pending (redelivered job).
func (s *Service) MarkCalled(ctx context.Context, tenantID, campaignID, contactID, runID string) (bool, error) {
	changed, err := s.repo.MarkContactCalled(ctx, contactID, runID)
	if err != nil {
		return false, err
	}
	if changed {
		s.completeIfDrained(ctx, tenantID, campaignID)
	}
	return changed, nil
}

// MarkFailed records a permanently failed contact. Same guard semantics as
// MarkCalled.
func (s *Service) MarkFailed(ctx context.Context, tenantID, campaignID, contactID string) (bool, error) {
	changed, err := s.repo.MarkContactFailed(ctx, contactID)
	if err != nil {
		return false, err
	}
	if changed {
		s.completeIfDrained(ctx, tenantID, campaignID)
	}
	return changed, nil
}

func (s *Service) completeIfDrained(ctx context.Context, tenantID, campaignID string) {
	c, err := s.repo.GetCampaign(ctx, tenantID, campaignID)
	if err != nil {
		s.log.Error("completion check: get campaign", "campaign_id", campaignID, "error", err)
		return
	}
	if c.State != StateRunning {
		return
	}
	counts, err := s.repo.CountContactsByStatus(ctx, campaignID)
	if err != nil {
		s.log.Error("completion check: count contacts", "campaign_id", campaignID, "error", err)
		return
	}
	if counts[ContactPending] > 0 {
		return
	}
	if err := s.transition(ctx, c, StateCompleted, ""); err != nil {
		s.log.Error("completion check: transition", "campaign_id", campaignID, "error", err)
	}
}

func (s *Service) transition(ctx context.Context, c Campaign, to State, actorID string) error {
	if err := s.repo.SetState(ctx, c.ID, to, s.clock().UTC()); err != nil {
		return fmt.Errorf("set state %s: %w", to, err)
	}
	if s.audit != nil {
		if err := s.audit.LogCampaignTransition(ctx, c.TenantID, actorID, c.ID, string(c.State), string(to)); err != nil {
			s.log.Warn("audit append failed", "campaign_id", c.ID, "error", err)
		}
	}
	return nil
}
