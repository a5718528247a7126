// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appErrors "github.com/unclebandit/attestation-service/internal/errors"
	"github.com/unclebandit/attestation-service/internal/kvstore"
	"github.com/unclebandit/attestation-service/internal/metrics"
	"github.com/unclebandit/attestation-service/internal/model"
	"github.com/unclebandit/attestation-service/internal/notification"
	"github.com/unclebandit/attestation-service/internal/repository"
)

// CampaignService owns the campaign state machine and the activation fan-out.
type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	RecordRepo   repository.RecordRepositoryInterface
	InviteRepo   repository.InviteRepositoryInterface
	Resolver     *Resolver
	Notifier     notification.Dispatcher
	Audit        repository.AuditSink
	StartLocks   kvstore.Store
	Metrics      *metrics.Metrics
	Log          *zap.Logger
	Now          func() time.Time

	Concurrency           int
	StartLockTTL          time.Duration
	AppBaseURL            string
	DefaultReminderDays   int
	DefaultEscalationDays int
}

type CreateCampaignInput struct {
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	StartDate        *time.Time `json:"start_date"`
	EndDate          *time.Time `json:"end_date,omitempty"`
	ReminderDays     *int       `json:"reminder_days,omitempty"`
	EscalationDays   *int       `json:"escalation_days,omitempty"`
	TargetType       string     `json:"target_type"`
	TargetUserIDs    []int64    `json:"target_user_ids,omitempty"`
	TargetCompanyIDs []int64    `json:"target_company_ids,omitempty"`
}

// StartResult reports each fan-out step separately; every step is attempted for every recipient.
type StartResult struct {
	CampaignID       int64 `json:"campaign_id"`
	RecordsCreated   int   `json:"records_created"`
	EmailsSent       int   `json:"emails_sent"`
	InvitesCreated   int   `json:"invites_created"`
	InviteEmailsSent int   `json:"invite_emails_sent"`

	Records      *BatchResult[int64]  `json:"records"`
	LaunchEmails *BatchResult[int64]  `json:"launch_emails"`
	Invites      *BatchResult[string] `json:"invites"`
	InviteEmails *BatchResult[string] `json:"invite_emails"`
}

type CampaignDetails struct {
	*model.Campaign
	Stats       map[string]int `json:"stats"`
	InviteStats map[string]int `json:"invite_stats"`
}

// ====================== Create / Update ======================

func (s *CampaignService) CreateCampaign(ctx context.Context, actor Actor, in CreateCampaignInput) (*model.Campaign, error) {
	c := &model.Campaign{
		Name:             strings.TrimSpace(in.Name),
		Description:      strings.TrimSpace(in.Description),
		EndDate:          in.EndDate,
		Status:           model.CampaignStatusDraft,
		ReminderDays:     s.DefaultReminderDays,
		EscalationDays:   s.DefaultEscalationDays,
		TargetType:       strings.TrimSpace(in.TargetType),
		TargetUserIDs:    pq.Int64Array(in.TargetUserIDs),
		TargetCompanyIDs: pq.Int64Array(in.TargetCompanyIDs),
		CreatedBy:        actor.Email,
		CreatedAt:        clock(s.Now),
	}
	if in.StartDate != nil {
		c.StartDate = *in.StartDate
	}
	if in.ReminderDays != nil {
		c.ReminderDays = *in.ReminderDays
	}
	if in.EscalationDays != nil {
		c.EscalationDays = *in.EscalationDays
	}
	if c.TargetType == "" {
		c.TargetType = model.TargetAll
	}
	if err := validateCampaign(c); err != nil {
		return nil, err
	}

	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}
	writeAudit(ctx, s.Audit, s.Log, model.AuditEntry{
		Action: "create", EntityType: "attestation_campaign", EntityID: c.ID, EntityLabel: c.Name,
		Details: fmt.Sprintf("target_type=%s", c.TargetType), ActorEmail: actor.Email,
	})
	return c, nil
}

func validateCampaign(c *model.Campaign) error {
	if c.Name == "" {
		return appErrors.NewValidation("name", "name is required")
	}
	if c.StartDate.IsZero() {
		return appErrors.NewValidation("start_date", "start date is required")
	}
	if c.EndDate != nil && c.EndDate.Before(c.StartDate) {
		return appErrors.NewValidation("end_date", "end date must not be before start date")
	}
	if c.ReminderDays < 0 {
		return appErrors.NewValidation("reminder_days", "must not be negative")
	}
	if c.EscalationDays < 0 {
		return appErrors.NewValidation("escalation_days", "must not be negative")
	}

	switch c.TargetType {
	case model.TargetAll:
		if len(c.TargetUserIDs) > 0 || len(c.TargetCompanyIDs) > 0 {
			return appErrors.NewValidation("target_type", "target lists must be empty when targeting all users")
		}
	case model.TargetSelected:
		if len(c.TargetUserIDs) == 0 {
			return appErrors.NewValidation("target_user_ids", "at least one user is required")
		}
		if len(c.TargetCompanyIDs) > 0 {
			return appErrors.NewValidation("target_company_ids", "must be empty when targeting selected users")
		}
	case model.TargetCompanies:
		if len(c.TargetCompanyIDs) == 0 {
			return appErrors.NewValidation("target_company_ids", "at least one company is required")
		}
		if len(c.TargetUserIDs) > 0 {
			return appErrors.NewValidation("target_user_ids", "must be empty when targeting companies")
		}
	default:
		return appErrors.NewValidation("target_type", fmt.Sprintf("must be one of all, selected, companies; got %q", c.TargetType))
	}
	return nil
}

// UpdateCampaign patches a draft or active campaign. Targeting changes after
// activation do not touch records or invites already created.
func (s *CampaignService) UpdateCampaign(ctx context.Context, actor Actor, id int64, p model.CampaignPatch) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignStatusDraft && c.Status != model.CampaignStatusActive {
		return nil, appErrors.NewInvalidState("campaign", id, c.Status, "update")
	}

	if p.Name != nil {
		c.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		c.Description = strings.TrimSpace(*p.Description)
	}
	if p.StartDate != nil {
		c.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		c.EndDate = p.EndDate
	}
	if p.ReminderDays != nil {
		c.ReminderDays = *p.ReminderDays
	}
	if p.EscalationDays != nil {
		c.EscalationDays = *p.EscalationDays
	}
	if p.TargetType != nil {
		c.TargetType = strings.TrimSpace(*p.TargetType)
		c.TargetUserIDs = pq.Int64Array{}
		c.TargetCompanyIDs = pq.Int64Array{}
	}
	if p.TargetUserIDs != nil {
		c.TargetUserIDs = pq.Int64Array(p.TargetUserIDs)
	}
	if p.TargetCompanyIDs != nil {
		c.TargetCompanyIDs = pq.Int64Array(p.TargetCompanyIDs)
	}
	if err := validateCampaign(c); err != nil {
		return nil, err
	}

	if err := s.CampaignRepo.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("update campaign: %w", err)
	}
	writeAudit(ctx, s.Audit, s.Log, model.AuditEntry{
		Action: "update", EntityType: "attestation_campaign", EntityID: c.ID, EntityLabel: c.Name, ActorEmail: actor.Email,
	})
	return c, nil
}

// ====================== Lifecycle ======================

func startLockKey(id int64) string {
	return fmt.Sprintf("attestation:campaign:%d:start", id)
}

// StartCampaign activates a draft campaign and fans out records, invites and
// launch emails. Only the caller whose draft->active write succeeds runs the fan-out.
func (s *CampaignService) StartCampaign(ctx context.Context, actor Actor, id int64) (*StartResult, error) {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignStatusDraft {
		return nil, appErrors.NewInvalidState("campaign", id, c.Status, "start")
	}

	if s.StartLocks != nil {
		key := startLockKey(id)
		owner := uuid.NewString()
		acquired, err := s.StartLocks.SetNX(ctx, key, owner, s.StartLockTTL)
		switch {
		case err != nil:
			// The conditional status write below still guards the transition.
			s.Log.Warn("start lock unavailable", zap.Int64("campaign_id", id), zap.Error(err))
		case !acquired:
			return nil, appErrors.NewInvalidState("campaign", id, c.Status, "start while another start is in progress")
		default:
			defer func() {
				released, err := s.StartLocks.DeleteIfValue(context.WithoutCancel(ctx), key, owner)
				if err != nil {
					s.Log.Warn("release start lock", zap.Int64("campaign_id", id), zap.Error(err))
				} else if !released {
					s.Log.Info("start lock expired before release", zap.Int64("campaign_id", id))
				}
			}()
		}
	}

	resolution, err := s.Resolver.Resolve(ctx, c)
	if err != nil {
		return nil, err
	}

	now := clock(s.Now)
	activated, err := s.CampaignRepo.Activate(ctx, id, now)
	if err != nil {
		return nil, fmt.Errorf("activate campaign: %w", err)
	}
	if !activated {
		current, err := s.CampaignRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, appErrors.NewInvalidState("campaign", id, current.Status, "start")
	}
	c.Status = model.CampaignStatusActive
	c.StartDate = now
	s.Metrics.CampaignsStarted.Inc()

	result := s.fanOut(ctx, c, resolution)

	writeAudit(ctx, s.Audit, s.Log, model.AuditEntry{
		Action: "start", EntityType: "attestation_campaign", EntityID: c.ID, EntityLabel: c.Name,
		Details: fmt.Sprintf("records=%d emails=%d invites=%d invite_emails=%d failures=%d",
			result.RecordsCreated, result.EmailsSent, result.InvitesCreated, result.InviteEmailsSent,
			result.Records.FailedCount()+result.Invites.FailedCount()),
		ActorEmail: actor.Email,
	})
	s.Log.Info("campaign started", zap.Int64("campaign_id", c.ID), zap.Int("records", result.RecordsCreated),
		zap.Int("invites", result.InvitesCreated))
	return result, nil
}

func (s *CampaignService) fanOut(ctx context.Context, c *model.Campaign, res *Resolution) *StartResult {
	result := &StartResult{
		CampaignID:   c.ID,
		Records:      NewBatchResult[int64](),
		LaunchEmails: NewBatchResult[int64](),
		Invites:      NewBatchResult[string](),
		InviteEmails: NewBatchResult[string](),
	}

	var g errgroup.Group
	g.SetLimit(max(s.Concurrency, 1))

	for _, u := range res.Recipients {
		g.Go(func() error {
			s.startRecipient(ctx, c, u, result)
			return nil
		})
	}
	for _, o := range res.UnregisteredOwners {
		g.Go(func() error {
			s.startInvite(ctx, c, o, result)
			return nil
		})
	}
	_ = g.Wait()

	result.RecordsCreated = result.Records.SucceededCount()
	result.EmailsSent = result.LaunchEmails.SucceededCount()
	result.InvitesCreated = result.Invites.SucceededCount()
	result.InviteEmailsSent = result.InviteEmails.SucceededCount()
	return result
}

func (s *CampaignService) startRecipient(ctx context.Context, c *model.Campaign, u model.User, result *StartResult) {
	rec, created, err := s.RecordRepo.Create(ctx, c.ID, u.ID)
	if err != nil {
		s.Log.Error("failed to create attestation record", zap.Int64("campaign_id", c.ID),
			zap.Int64("user_id", u.ID), zap.Error(err))
		result.Records.Fail(u.ID, err)
		return
	}
	if !created {
		return
	}
	result.Records.Succeed(u.ID)
	s.Metrics.RecordsCreated.Inc()

	err = s.Notifier.Send(ctx, notification.Notification{
		Kind:          notification.KindCampaignLaunch,
		To:            u.Email,
		RecipientName: u.FirstName,
		CampaignID:    c.ID,
		CampaignName:  c.Name,
		Description:   c.Description,
		RecordID:      rec.ID,
		Link:          s.AppBaseURL + "/attestations/" + fmt.Sprint(rec.ID),
	})
	if err != nil {
		s.Log.Warn("launch email not sent", zap.Int64("campaign_id", c.ID), zap.Int64("user_id", u.ID), zap.Error(err))
		result.LaunchEmails.Fail(u.ID, err)
		return
	}
	result.LaunchEmails.Succeed(u.ID)
}

func (s *CampaignService) startInvite(ctx context.Context, c *model.Campaign, o model.AssetOwner, result *StartResult) {
	inv := &model.PendingInvite{
		CampaignID:        c.ID,
		EmployeeEmail:     o.Email,
		EmployeeFirstName: o.FirstName,
		EmployeeLastName:  o.LastName,
		InviteToken:       uuid.NewString(),
		CreatedAt:         clock(s.Now),
	}
	if err := s.InviteRepo.Create(ctx, inv); err != nil {
		s.Log.Error("failed to create pending invite", zap.Int64("campaign_id", c.ID), zap.Error(err))
		result.Invites.Fail(o.Email, err)
		return
	}
	result.Invites.Succeed(o.Email)
	s.Metrics.InvitesCreated.Inc()

	if err := sendInvite(ctx, s.Notifier, c, inv, s.AppBaseURL); err != nil {
		s.Log.Warn("invite email not sent", zap.Int64("campaign_id", c.ID), zap.Int64("invite_id", inv.ID), zap.Error(err))
		result.InviteEmails.Fail(o.Email, err)
		return
	}
	if err := s.InviteRepo.MarkSent(ctx, inv.ID, clock(s.Now)); err != nil {
		s.Log.Warn("failed to stamp invite_sent_at", zap.Int64("invite_id", inv.ID), zap.Error(err))
	}
	result.InviteEmails.Succeed(o.Email)
}

func sendInvite(ctx context.Context, d notification.Dispatcher, c *model.Campaign, inv *model.PendingInvite, baseURL string) error {
	return d.Send(ctx, notification.Notification{
		Kind:          notification.KindInvite,
		To:            inv.EmployeeEmail,
		RecipientName: inv.EmployeeFirstName,
		CampaignID:    c.ID,
		CampaignName:  c.Name,
		Description:   c.Description,
		Link:          baseURL + "/register?invite=" + inv.InviteToken,
	})
}

// CancelCampaign freezes an active campaign. Its records keep their status.
func (s *CampaignService) CancelCampaign(ctx context.Context, actor Actor, id int64) (*model.Campaign, error) {
	return s.transition(ctx, actor, id, model.CampaignStatusActive, model.CampaignStatusCancelled, "cancel")
}

func (s *CampaignService) CompleteCampaign(ctx context.Context, actor Actor, id int64) (*model.Campaign, error) {
	return s.transition(ctx, actor, id, model.CampaignStatusActive, model.CampaignStatusCompleted, "complete")
}

func (s *CampaignService) transition(ctx context.Context, actor Actor, id int64, from, to, action string) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != from {
		return nil, appErrors.NewInvalidState("campaign", id, c.Status, action)
	}
	ok, err := s.CampaignRepo.TransitionStatus(ctx, id, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s campaign: %w", action, err)
	}
	if !ok {
		// Lost a race with another transition
		current, err := s.CampaignRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, appErrors.NewInvalidState("campaign", id, current.Status, action)
	}
	c.Status = to

	writeAudit(ctx, s.Audit, s.Log, model.AuditEntry{
		Action: action, EntityType: "attestation_campaign", EntityID: c.ID, EntityLabel: c.Name, ActorEmail: actor.Email,
	})
	return c, nil
}

// DeleteCampaign is allowed in any status and removes records, invites and ledger rows.
func (s *CampaignService) DeleteCampaign(ctx context.Context, actor Actor, id int64) error {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.CampaignRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	writeAudit(ctx, s.Audit, s.Log, model.AuditEntry{
		Action: "delete", EntityType: "attestation_campaign", EntityID: id, EntityLabel: c.Name,
		Details: "status=" + c.Status, ActorEmail: actor.Email,
	})
	return nil
}

// ====================== Reads ======================

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(ctx, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return campaigns, pagination, nil
}

// GetCampaignDetailsWithStats returns the campaign with record counts by status,
// the overdue count as of now, and invite counts.
func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, id int64) (*CampaignDetails, error) {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	records, err := s.RecordRepo.ListByCampaign(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	invites, err := s.InviteRepo.ListByCampaign(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}

	stats := map[string]int{
		"total":                      len(records),
		model.RecordStatusPending:    0,
		model.RecordStatusInProgress: 0,
		model.RecordStatusCompleted:  0,
		"overdue":                    0,
	}
	now := clock(s.Now)
	for _, rec := range records {
		stats[rec.Status]++
		if ComputeOverdue(rec, c, now).IsOverdue {
			stats["overdue"]++
		}
	}

	inviteStats := map[string]int{"total": len(invites), "pending": 0, "registered": 0}
	for _, inv := range invites {
		if inv.Pending() {
			inviteStats["pending"]++
		} else {
			inviteStats["registered"]++
		}
	}
	return &CampaignDetails{Campaign: c, Stats: stats, InviteStats: inviteStats}, nil
}
