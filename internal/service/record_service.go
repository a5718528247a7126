package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appErrors "github.com/unclebandit/attestation-service/internal/errors"
	"github.com/unclebandit/attestation-service/internal/metrics"
	"github.com/unclebandit/attestation-service/internal/model"
	"github.com/unclebandit/attestation-service/internal/notification"
	"github.com/unclebandit/attestation-service/internal/repository"
)

// RecordService drives one user's attestation work item and the administrative nudges on it.
type RecordService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	RecordRepo   repository.RecordRepositoryInterface
	LedgerRepo   repository.LedgerRepositoryInterface
	Users        repository.UserRegistryInterface
	Assets       repository.AssetRegistryInterface
	Notifier     notification.Dispatcher
	Audit        repository.AuditSink
	Metrics      *metrics.Metrics
	Log          *zap.Logger
	Now          func() time.Time

	Concurrency int
	AppBaseURL  string
}

type AttestInput struct {
	Status       string     `json:"status"`
	Notes        string     `json:"notes"`
	ReturnedDate *time.Time `json:"returned_date,omitempty"`
}

type NewAssetInput struct {
	AssetType         string `json:"asset_type"`
	Make              string `json:"make"`
	Model             string `json:"model"`
	SerialNumber      string `json:"serial_number"`
	AssetTag          string `json:"asset_tag"`
	EmployeeFirstName string `json:"employee_first_name"`
	EmployeeLastName  string `json:"employee_last_name"`
	EmployeeEmail     string `json:"employee_email"`
	ManagerFirstName  string `json:"manager_first_name"`
	ManagerLastName   string `json:"manager_last_name"`
	ManagerEmail      string `json:"manager_email"`
	CompanyID         int64  `json:"company_id"`
	Notes             string `json:"notes"`
}

type CompleteResult struct {
	Record           *model.AttestationRecord `json:"record"`
	AlreadyCompleted bool                     `json:"already_completed"`
	// Promotions lists staged new asset ids promoted (or failed) by this call.
	Promotions *BatchResult[int64] `json:"promotions"`
}

type RecordView struct {
	*model.AttestationRecord
	User    *model.User   `json:"user,omitempty"`
	Overdue OverdueStatus `json:"overdue"`
}

type MyAttestation struct {
	Record   *model.AttestationRecord `json:"record"`
	Campaign *model.Campaign          `json:"campaign"`
	Overdue  OverdueStatus            `json:"overdue"`
}

type RecordDetails struct {
	Record   *model.AttestationRecord `json:"record"`
	Campaign *model.Campaign          `json:"campaign"`
	Overdue  OverdueStatus            `json:"overdue"`
	Assets   []model.Asset            `json:"assets"`
	// Attested is the full ledger; Latest holds the authoritative entry per asset.
	Attested  []*model.AttestedAsset         `json:"attested"`
	Latest    map[int64]*model.AttestedAsset `json:"latest"`
	NewAssets []*model.NewAsset              `json:"new_assets"`
}

// ====================== Ownership ======================

func (s *RecordService) ownedRecord(ctx context.Context, actor Actor, recordID int64) (*model.AttestationRecord, error) {
	rec, err := s.RecordRepo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.UserID != actor.UserID {
		return nil, appErrors.NewPermission("attestation record belongs to another user")
	}
	return rec, nil
}

// activeRecord loads a record the caller owns and whose campaign accepts attestations.
func (s *RecordService) activeRecord(ctx context.Context, actor Actor, recordID int64, action string) (*model.AttestationRecord, *model.Campaign, error) {
	rec, err := s.ownedRecord(ctx, actor, recordID)
	if err != nil {
		return nil, nil, err
	}
	c, err := s.CampaignRepo.GetByID(ctx, rec.CampaignID)
	if err != nil {
		return nil, nil, err
	}
	if c.Status != model.CampaignStatusActive {
		return nil, nil, appErrors.NewInvalidState("campaign", c.ID, c.Status, action)
	}
	if rec.Status == model.RecordStatusCompleted {
		return nil, nil, appErrors.NewInvalidState("attestation record", rec.ID, rec.Status, action)
	}
	return rec, c, nil
}

func (s *RecordService) markStarted(ctx context.Context, rec *model.AttestationRecord) error {
	if rec.Status != model.RecordStatusPending {
		return nil
	}
	now := clock(s.Now)
	ok, err := s.RecordRepo.MarkInProgress(ctx, rec.ID, now)
	if err != nil {
		return fmt.Errorf("mark record in progress: %w", err)
	}
	if ok {
		rec.Status = model.RecordStatusInProgress
		rec.StartedAt = &now
	}
	return nil
}

// ====================== End-user operations ======================

// AttestAsset appends a ledger entry for one asset, then pushes a changed status into the registry.
func (s *RecordService) AttestAsset(ctx context.Context, actor Actor, recordID, assetID int64, in AttestInput) (*model.AttestedAsset, error) {
	rec, _, err := s.activeRecord(ctx, actor, recordID, "attest")
	if err != nil {
		return nil, err
	}

	status := strings.ToLower(strings.TrimSpace(in.Status))
	if !model.AttestedStatuses[status] {
		return nil, appErrors.NewValidation("status", fmt.Sprintf("invalid attested status %q", in.Status))
	}
	if status == model.AssetStatusReturned && in.ReturnedDate == nil {
		return nil, appErrors.NewValidation("returned_date", "returned date required")
	}

	asset, err := s.Assets.GetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if normalizeEmail(asset.EmployeeEmail) != normalizeEmail(actor.Email) {
		return nil, appErrors.NewPermission("asset is not assigned to you")
	}

	entry := &model.AttestedAsset{
		AttestationRecordID: rec.ID,
		AssetID:             asset.ID,
		AttestedStatus:      status,
		PreviousStatus:      asset.Status,
		Notes:               strings.TrimSpace(in.Notes),
		AttestedAt:          clock(s.Now),
	}
	if status == model.AssetStatusReturned {
		entry.ReturnedDate = in.ReturnedDate
	}
	// The ledger entry goes first; the registry only changes once it is recorded.
	if err := s.LedgerRepo.AddAttestedAsset(ctx, entry); err != nil {
		return nil, fmt.Errorf("record attestation: %w", err)
	}
	if err := s.markStarted(ctx, rec); err != nil {
		return nil, err
	}

	if status != asset.Status {
		if err := s.Assets.UpdateStatus(ctx, asset.ID, status, entry.ReturnedDate); err != nil {
			// Retrying appends a newer ledger entry and pushes again.
			return nil, fmt.Errorf("update asset status: %w", err)
		}
		writeAudit(ctx, s.Audit, s.Log, model.AuditEntry{
			Action: "update", EntityType: "asset", EntityID: asset.ID, EntityLabel: asset.AssetTag,
			Details:    fmt.Sprintf("status %s -> %s via attestation record %d", asset.Status, status, rec.ID),
			ActorEmail: actor.Email,
		})
	}

	writeAudit(ctx, s.Audit, s.Log, model.AuditEntry{
		Action: "attest_asset", EntityType: "attestation_record", EntityID: rec.ID, EntityLabel: asset.AssetTag,
		Details: "status=" + status, ActorEmail: actor.Email,
	})
	return entry, nil
}

// AddNewAsset stages an asset the user holds that the registry does not know about.
func (s *RecordService) AddNewAsset(ctx context.Context, actor Actor, recordID int64, in NewAssetInput) (*model.NewAsset, error) {
	rec, _, err := s.activeRecord(ctx, actor, recordID, "add new asset to")
	if err != nil {
		return nil, err
	}

	entry := &model.NewAsset{
		AttestationRecordID: rec.ID,
		AssetType:           strings.TrimSpace(in.AssetType),
		Make:                strings.TrimSpace(in.Make),
		Model:               strings.TrimSpace(in.Model),
		SerialNumber:        strings.TrimSpace(in.SerialNumber),
		AssetTag:            strings.TrimSpace(in.AssetTag),
		EmployeeFirstName:   strings.TrimSpace(in.EmployeeFirstName),
		EmployeeLastName:    strings.TrimSpace(in.EmployeeLastName),
		EmployeeEmail:       strings.TrimSpace(in.EmployeeEmail),
		ManagerFirstName:    strings.TrimSpace(in.ManagerFirstName),
		ManagerLastName:     strings.TrimSpace(in.ManagerLastName),
		ManagerEmail:        strings.TrimSpace(in.ManagerEmail),
		CompanyID:           in.CompanyID,
		Notes:               strings.TrimSpace(in.Notes),
		CreatedAt:           clock(s.Now),
	}
	if err := validateNewAsset(entry); err != nil {
		return nil, err
	}

	if err := s.LedgerRepo.AddNewAsset(ctx, entry); err != nil {
		return nil, fmt.Errorf("stage new asset: %w", err)
	}
	if err := s.markStarted(ctx, rec); err != nil {
		return nil, err
	}

	writeAudit(ctx, s.Audit, s.Log, model.AuditEntry{
		Action: "add_new_asset", EntityType: "attestation_record", EntityID: rec.ID, EntityLabel: entry.AssetTag,
		Details: fmt.Sprintf("type=%s serial=%s", entry.AssetType, entry.SerialNumber), ActorEmail: actor.Email,
	})
	return entry, nil
}

func validateNewAsset(n *model.NewAsset) error {
	required := []struct{ field, value string }{
		{"asset_type", n.AssetType},
		{"serial_number", n.SerialNumber},
		{"asset_tag", n.AssetTag},
		{"employee_first_name", n.EmployeeFirstName},
		{"employee_last_name", n.EmployeeLastName},
		{"employee_email", n.EmployeeEmail},
	}
	for _, r := range required {
		if r.value == "" {
			return appErrors.NewValidation(r.field, "is required")
		}
	}
	if n.CompanyID <= 0 {
		return appErrors.NewValidation("company_id", "is required")
	}
	return nil
}

// CompleteAttestation promotes staged new assets and completes the record.
// Each promotion commits on its own; a failed one is reported and retried by
// the next call, which promotes only what is still staged.
func (s *RecordService) CompleteAttestation(ctx context.Context, actor Actor, recordID int64) (*CompleteResult, error) {
	rec, err := s.ownedRecord(ctx, actor, recordID)
	if err != nil {
		return nil, err
	}
	c, err := s.CampaignRepo.GetByID(ctx, rec.CampaignID)
	if err != nil {
		return nil, err
	}
	already := rec.Status == model.RecordStatusCompleted
	if !already && c.Status != model.CampaignStatusActive {
		return nil, appErrors.NewInvalidState("campaign", c.ID, c.Status, "complete attestation for")
	}

	staged, err := s.LedgerRepo.ListNewAssets(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("list new assets: %w", err)
	}
	promotions := NewBatchResult[int64]()
	for _, n := range staged {
		if n.Promoted() {
			continue
		}
		s.promote(ctx, actor, rec, n, promotions)
	}

	result := &CompleteResult{Record: rec, AlreadyCompleted: already, Promotions: promotions}
	if already {
		return result, nil
	}

	now := clock(s.Now)
	completed, err := s.RecordRepo.MarkCompleted(ctx, rec.ID, now)
	if err != nil {
		return nil, fmt.Errorf("complete record: %w", err)
	}
	rec.Status = model.RecordStatusCompleted
	if !completed {
		// A concurrent call finished first
		result.AlreadyCompleted = true
		return result, nil
	}
	rec.CompletedAt = &now

	writeAudit(ctx, s.Audit, s.Log, model.AuditEntry{
		Action: "complete", EntityType: "attestation_record", EntityID: rec.ID, EntityLabel: c.Name,
		Details:    fmt.Sprintf("promoted=%d failed=%d", promotions.SucceededCount(), promotions.FailedCount()),
		ActorEmail: actor.Email,
	})
	s.notifyAdmins(ctx, actor, c, rec)
	return result, nil
}

func (s *RecordService) promote(ctx context.Context, actor Actor, rec *model.AttestationRecord, n *model.NewAsset, out *BatchResult[int64]) {
	assetID, promoted, err := s.LedgerRepo.PromoteNewAsset(ctx, n.ID, clock(s.Now))
	if err != nil {
		s.Log.Error("failed to promote new asset", zap.Int64("record_id", rec.ID), zap.Int64("new_asset_id", n.ID),
			zap.String("asset_tag", n.AssetTag), zap.Error(err))
		s.Metrics.Promotions.WithLabelValues("failed").Inc()
		out.Fail(n.ID, err)
		return
	}
	if !promoted {
		return
	}
	s.Metrics.Promotions.WithLabelValues("promoted").Inc()
	out.Succeed(n.ID)
	writeAudit(ctx, s.Audit, s.Log, model.AuditEntry{
		Action: "create", EntityType: "asset", EntityID: assetID, EntityLabel: n.AssetTag,
		Details:    fmt.Sprintf("promoted from new asset %d on attestation record %d", n.ID, rec.ID),
		ActorEmail: actor.Email,
	})
}

func (s *RecordService) notifyAdmins(ctx context.Context, actor Actor, c *model.Campaign, rec *model.AttestationRecord) {
	admins, err := s.Users.ListByRole(ctx, model.RoleAdmin)
	if err != nil {
		s.Log.Warn("cannot list admins for completion notice", zap.Int64("record_id", rec.ID), zap.Error(err))
		return
	}
	employee := actor.Email
	if u, err := s.Users.GetByID(ctx, rec.UserID); err == nil {
		employee = u.FullName()
	}
	for _, a := range admins {
		err := s.Notifier.Send(ctx, notification.Notification{
			Kind:          notification.KindCompletion,
			To:            a.Email,
			RecipientName: a.FirstName,
			CampaignID:    c.ID,
			CampaignName:  c.Name,
			RecordID:      rec.ID,
			EmployeeName:  employee,
			EmployeeEmail: actor.Email,
		})
		if err != nil {
			s.Log.Warn("completion notice not sent", zap.Int64("record_id", rec.ID), zap.String("admin", a.Email), zap.Error(err))
		}
	}
}

// ====================== Reminders & escalations ======================

// RemindRecord emails the record's user. The send is the point of the call, so its failure is returned.
func (s *RecordService) RemindRecord(ctx context.Context, actor Actor, recordID int64) error {
	rec, err := s.RecordRepo.GetByID(ctx, recordID)
	if err != nil {
		return err
	}
	c, err := s.CampaignRepo.GetByID(ctx, rec.CampaignID)
	if err != nil {
		return err
	}
	return s.remind(ctx, actor, c, rec)
}

func (s *RecordService) remind(ctx context.Context, actor Actor, c *model.Campaign, rec *model.AttestationRecord) error {
	u, err := s.Users.GetByID(ctx, rec.UserID)
	if err != nil {
		return err
	}
	now := clock(s.Now)
	err = s.Notifier.Send(ctx, notification.Notification{
		Kind:          notification.KindReminder,
		To:            u.Email,
		RecipientName: u.FirstName,
		CampaignID:    c.ID,
		CampaignName:  c.Name,
		RecordID:      rec.ID,
		DaysElapsed:   DaysElapsed(c, now),
		Link:          s.AppBaseURL + "/attestations/" + fmt.Sprint(rec.ID),
	})
	if err != nil {
		return appErrors.NewDependency("reminder email", err)
	}
	if err := s.RecordRepo.SetReminderSent(ctx, rec.ID, now); err != nil {
		return fmt.Errorf("stamp reminder: %w", err)
	}
	rec.ReminderSentAt = &now

	writeAudit(ctx, s.Audit, s.Log, model.AuditEntry{
		Action: "remind", EntityType: "attestation_record", EntityID: rec.ID, EntityLabel: u.Email, ActorEmail: actor.Email,
	})
	return nil
}

// EscalateRecord emails the user's manager. A user without a manager cannot be escalated.
func (s *RecordService) EscalateRecord(ctx context.Context, actor Actor, recordID int64) error {
	rec, err := s.RecordRepo.GetByID(ctx, recordID)
	if err != nil {
		return err
	}
	c, err := s.CampaignRepo.GetByID(ctx, rec.CampaignID)
	if err != nil {
		return err
	}
	return s.escalate(ctx, actor, c, rec)
}

func (s *RecordService) escalate(ctx context.Context, actor Actor, c *model.Campaign, rec *model.AttestationRecord) error {
	u, err := s.Users.GetByID(ctx, rec.UserID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(u.ManagerEmail) == "" {
		return appErrors.NewValidation("manager_email", fmt.Sprintf("user %s has no manager to escalate to", u.Email))
	}
	now := clock(s.Now)
	err = s.Notifier.Send(ctx, notification.Notification{
		Kind:          notification.KindEscalation,
		To:            u.ManagerEmail,
		CampaignID:    c.ID,
		CampaignName:  c.Name,
		RecordID:      rec.ID,
		EmployeeName:  u.FullName(),
		EmployeeEmail: u.Email,
		DaysElapsed:   DaysElapsed(c, now),
	})
	if err != nil {
		return appErrors.NewDependency("escalation email", err)
	}
	if err := s.RecordRepo.SetEscalationSent(ctx, rec.ID, now); err != nil {
		return fmt.Errorf("stamp escalation: %w", err)
	}
	rec.EscalationSentAt = &now

	writeAudit(ctx, s.Audit, s.Log, model.AuditEntry{
		Action: "escalate", EntityType: "attestation_record", EntityID: rec.ID, EntityLabel: u.Email,
		Details: "manager=" + u.ManagerEmail, ActorEmail: actor.Email,
	})
	return nil
}

// BulkRemind reminds every record of an active campaign that is not completed.
func (s *RecordService) BulkRemind(ctx context.Context, actor Actor, campaignID int64) (*BatchResult[int64], error) {
	return s.bulk(ctx, actor, campaignID, "remind", func(rec *model.AttestationRecord, c *model.Campaign, now time.Time) bool {
		return rec.Status != model.RecordStatusCompleted
	}, s.remind)
}

// BulkEscalate escalates every overdue record of an active campaign.
func (s *RecordService) BulkEscalate(ctx context.Context, actor Actor, campaignID int64) (*BatchResult[int64], error) {
	return s.bulk(ctx, actor, campaignID, "escalate", func(rec *model.AttestationRecord, c *model.Campaign, now time.Time) bool {
		return ComputeOverdue(rec, c, now).IsOverdue
	}, s.escalate)
}

func (s *RecordService) bulk(
	ctx context.Context, actor Actor, campaignID int64, action string,
	eligible func(*model.AttestationRecord, *model.Campaign, time.Time) bool,
	apply func(context.Context, Actor, *model.Campaign, *model.AttestationRecord) error,
) (*BatchResult[int64], error) {
	c, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignStatusActive {
		return nil, appErrors.NewInvalidState("campaign", c.ID, c.Status, action)
	}
	records, err := s.RecordRepo.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	result := NewBatchResult[int64]()
	now := clock(s.Now)
	var g errgroup.Group
	g.SetLimit(max(s.Concurrency, 1))
	for _, rec := range records {
		if !eligible(rec, c, now) {
			continue
		}
		g.Go(func() error {
			if err := apply(ctx, actor, c, rec); err != nil {
				s.Log.Warn("bulk "+action+" failed for record", zap.Int64("record_id", rec.ID), zap.Error(err))
				result.Fail(rec.ID, err)
				return nil
			}
			result.Succeed(rec.ID)
			return nil
		})
	}
	_ = g.Wait()
	return result, nil
}

// ====================== Reads ======================

// ListCampaignRecords returns the campaign's records with overdue derived as of now.
func (s *RecordService) ListCampaignRecords(ctx context.Context, campaignID int64) ([]RecordView, error) {
	c, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	records, err := s.RecordRepo.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	now := clock(s.Now)
	views := make([]RecordView, 0, len(records))
	for _, rec := range records {
		v := RecordView{AttestationRecord: rec, Overdue: ComputeOverdue(rec, c, now)}
		if u, err := s.Users.GetByID(ctx, rec.UserID); err == nil {
			v.User = u
		}
		views = append(views, v)
	}
	return views, nil
}

// ListMyAttestations returns the caller's records, newest first.
func (s *RecordService) ListMyAttestations(ctx context.Context, actor Actor) ([]MyAttestation, error) {
	records, err := s.RecordRepo.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	now := clock(s.Now)
	out := make([]MyAttestation, 0, len(records))
	for _, rec := range records {
		c, err := s.CampaignRepo.GetByID(ctx, rec.CampaignID)
		if err != nil {
			return nil, err
		}
		out = append(out, MyAttestation{Record: rec, Campaign: c, Overdue: ComputeOverdue(rec, c, now)})
	}
	return out, nil
}

// GetRecordDetails is readable by the record owner and by administrators.
func (s *RecordService) GetRecordDetails(ctx context.Context, actor Actor, recordID int64) (*RecordDetails, error) {
	rec, err := s.RecordRepo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, appErrors.NewPermission("attestation record belongs to another user")
	}
	c, err := s.CampaignRepo.GetByID(ctx, rec.CampaignID)
	if err != nil {
		return nil, err
	}
	u, err := s.Users.GetByID(ctx, rec.UserID)
	if err != nil {
		return nil, err
	}
	assets, err := s.Assets.ListByOwnerEmail(ctx, u.Email)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	attested, err := s.LedgerRepo.ListAttestedAssets(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("list attested assets: %w", err)
	}
	staged, err := s.LedgerRepo.ListNewAssets(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("list new assets: %w", err)
	}

	// Ledger is ordered by attested_at, so the last entry per asset wins
	latest := map[int64]*model.AttestedAsset{}
	for _, a := range attested {
		latest[a.AssetID] = a
	}
	return &RecordDetails{
		Record:    rec,
		Campaign:  c,
		Overdue:   ComputeOverdue(rec, c, clock(s.Now)),
		Assets:    assets,
		Attested:  attested,
		Latest:    latest,
		NewAssets: staged,
	}, nil
}
