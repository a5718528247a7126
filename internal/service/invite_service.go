package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/attestation-service/internal/errors"
	"github.com/unclebandit/attestation-service/internal/metrics"
	"github.com/unclebandit/attestation-service/internal/model"
	"github.com/unclebandit/attestation-service/internal/notification"
	"github.com/unclebandit/attestation-service/internal/repository"
)

// InviteService manages invites for unregistered asset owners and converts them at first login.
type InviteService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	RecordRepo   repository.RecordRepositoryInterface
	InviteRepo   repository.InviteRepositoryInterface
	Users        repository.UserRegistryInterface
	Notifier     notification.Dispatcher
	Audit        repository.AuditSink
	Metrics      *metrics.Metrics
	Log          *zap.Logger
	Now          func() time.Time

	AppBaseURL string
}

// ConvertInvites turns every pending invite for email into a record for the new user.
// The user must exist in the registry under that email. Invites on campaigns that are no longer active stay pending. Each invite converts at
// most once, so a repeated login is a no-op.
func (s *InviteService) ConvertInvites(ctx context.Context, userID int64, email string) (*BatchResult[int64], error) {
	email = normalizeEmail(email)
	if userID <= 0 {
		return nil, appErrors.NewValidation("user_id", "is required")
	}
	if email == "" {
		return nil, appErrors.NewValidation("email", "is required")
	}
	u, err := s.Users.GetByID(ctx, userID)
	if appErrors.IsNotFound(err) {
		return nil, appErrors.NewPermission("user is not registered")
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", userID, err)
	}
	if normalizeEmail(u.Email) != email {
		s.Log.Warn("first-login email does not match registered user", zap.Int64("user_id", userID))
		return nil, appErrors.NewPermission("email does not belong to user")
	}

	invites, err := s.InviteRepo.ListPendingByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("list pending invites: %w", err)
	}

	result := NewBatchResult[int64]()
	for _, inv := range invites {
		c, err := s.CampaignRepo.GetByID(ctx, inv.CampaignID)
		if err != nil {
			s.Log.Error("failed to load campaign for invite", zap.Int64("invite_id", inv.ID), zap.Error(err))
			result.Fail(inv.ID, err)
			continue
		}
		if c.Status != model.CampaignStatusActive {
			continue
		}

		rec, created, err := s.RecordRepo.Create(ctx, c.ID, userID)
		if err != nil {
			s.Log.Error("failed to create record from invite", zap.Int64("invite_id", inv.ID),
				zap.Int64("user_id", userID), zap.Error(err))
			result.Fail(inv.ID, err)
			continue
		}
		if created {
			s.Metrics.RecordsCreated.Inc()
		}

		converted, err := s.InviteRepo.MarkRegistered(ctx, inv.ID, rec.ID, clock(s.Now))
		if err != nil {
			s.Log.Error("failed to mark invite registered", zap.Int64("invite_id", inv.ID), zap.Error(err))
			result.Fail(inv.ID, err)
			continue
		}
		if !converted {
			continue
		}
		s.Metrics.InviteConversions.Inc()
		result.Succeed(inv.ID)

		writeAudit(ctx, s.Audit, s.Log, model.AuditEntry{
			Action: "convert_invite", EntityType: "attestation_record", EntityID: rec.ID, EntityLabel: c.Name,
			Details: fmt.Sprintf("invite=%d", inv.ID), ActorEmail: email,
		})
	}

	if n := result.SucceededCount(); n > 0 {
		s.Log.Info("converted pending invites", zap.Int64("user_id", userID), zap.Int("count", n))
	}
	return result, nil
}

// ListInvites returns the campaign's invites, converted ones included.
func (s *InviteService) ListInvites(ctx context.Context, campaignID int64) ([]*model.PendingInvite, error) {
	if _, err := s.CampaignRepo.GetByID(ctx, campaignID); err != nil {
		return nil, err
	}
	invites, err := s.InviteRepo.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	return invites, nil
}

// ResendInvite emails the registration link again for a still-pending invite.
func (s *InviteService) ResendInvite(ctx context.Context, actor Actor, campaignID, inviteID int64) (*model.PendingInvite, error) {
	inv, err := s.InviteRepo.GetByID(ctx, inviteID)
	if err != nil {
		return nil, err
	}
	if inv.CampaignID != campaignID {
		return nil, appErrors.NewNotFound("pending invite", inviteID)
	}
	if !inv.Pending() {
		return nil, appErrors.NewInvalidState("pending invite", inv.ID, "registered", "resend")
	}
	c, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignStatusActive {
		return nil, appErrors.NewInvalidState("campaign", c.ID, c.Status, "resend invites for")
	}

	if err := sendInvite(ctx, s.Notifier, c, inv, s.AppBaseURL); err != nil {
		return nil, appErrors.NewDependency("invite email", err)
	}
	now := clock(s.Now)
	if err := s.InviteRepo.MarkSent(ctx, inv.ID, now); err != nil {
		return nil, fmt.Errorf("stamp invite: %w", err)
	}
	inv.InviteSentAt = &now

	writeAudit(ctx, s.Audit, s.Log, model.AuditEntry{
		Action: "resend_invite", EntityType: "attestation_pending_invite", EntityID: inv.ID,
		EntityLabel: inv.EmployeeEmail, ActorEmail: actor.Email,
	})
	return inv, nil
}

// LookupToken resolves an unused registration token. Used and unknown tokens look the same.
func (s *InviteService) LookupToken(ctx context.Context, token string) (*model.PendingInvite, *model.Campaign, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil, appErrors.NewValidation("token", "is required")
	}
	inv, err := s.InviteRepo.GetByToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if !inv.Pending() {
		return nil, nil, appErrors.NewNotFound("pending invite", "token")
	}
	c, err := s.CampaignRepo.GetByID(ctx, inv.CampaignID)
	if err != nil {
		return nil, nil, err
	}
	return inv, c, nil
}
