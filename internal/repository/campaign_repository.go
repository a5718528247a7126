package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/attestation-service/internal/errors"
	"github.com/unclebandit/attestation-service/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error)
	Update(ctx context.Context, c *model.Campaign) error
	// Activate moves a draft campaign to active and resets its start date.
	// It reports false when the campaign was no longer a draft.
	Activate(ctx context.Context, id int64, startDate time.Time) (bool, error)
	TransitionStatus(ctx context.Context, id int64, from, to string) (bool, error)
	Delete(ctx context.Context, id int64) error
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, name, description, start_date, end_date, status, reminder_days, escalation_days,
		target_type, target_user_ids, target_company_ids, created_by, created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.StartDate, &c.EndDate, &c.Status, &c.ReminderDays,
		&c.EscalationDays, &c.TargetType, &c.TargetUserIDs, &c.TargetCompanyIDs, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func int64Array(a pq.Int64Array) pq.Int64Array {
	if a == nil {
		return pq.Int64Array{}
	}
	return a
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	query := `
		INSERT INTO attestation_campaigns
			(name, description, start_date, end_date, status, reminder_days, escalation_days,
			 target_type, target_user_ids, target_company_ids, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	return r.DB.QueryRowContext(ctx, query, c.Name, c.Description, c.StartDate, c.EndDate, c.Status,
		c.ReminderDays, c.EscalationDays, c.TargetType, int64Array(c.TargetUserIDs),
		int64Array(c.TargetCompanyIDs), c.CreatedBy, c.CreatedAt).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM attestation_campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	where := ` WHERE 1=1`
	args := []interface{}{}
	if status != "" {
		where += ` AND status=$1`
		args = append(args, status)
	}

	query := `SELECT ` + campaignColumns + ` FROM attestation_campaigns` + where +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := r.DB.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM attestation_campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

// Update writes the mutable fields. Status only changes through Activate and TransitionStatus.
func (r *CampaignRepository) Update(ctx context.Context, c *model.Campaign) error {
	query := `
		UPDATE attestation_campaigns
		SET name=$1, description=$2, start_date=$3, end_date=$4, reminder_days=$5, escalation_days=$6,
			target_type=$7, target_user_ids=$8, target_company_ids=$9, updated_at=NOW()
		WHERE id=$10
	`
	res, err := r.DB.ExecContext(ctx, query, c.Name, c.Description, c.StartDate, c.EndDate, c.ReminderDays,
		c.EscalationDays, c.TargetType, int64Array(c.TargetUserIDs), int64Array(c.TargetCompanyIDs), c.ID)
	if err != nil {
		return err
	}
	return requireAffected(res, appErrors.NewCampaignNotFound(c.ID))
}

func (r *CampaignRepository) Activate(ctx context.Context, id int64, startDate time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE attestation_campaigns SET status=$1, start_date=$2, updated_at=NOW()
		WHERE id=$3 AND status=$4
	`, model.CampaignStatusActive, startDate, id, model.CampaignStatusDraft)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *CampaignRepository) TransitionStatus(ctx context.Context, id int64, from, to string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE attestation_campaigns SET status=$1, updated_at=NOW() WHERE id=$2 AND status=$3`, to, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// Delete removes the campaign; records, invites and ledger rows go with it through ON DELETE CASCADE.
func (r *CampaignRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM attestation_campaigns WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, appErrors.NewCampaignNotFound(id))
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
