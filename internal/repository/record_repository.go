package repository

import (
	"context"
	"database/sql"
	"time"

	appErrors "github.com/unclebandit/attestation-service/internal/errors"
	"github.com/unclebandit/attestation-service/internal/model"
)

type RecordRepositoryInterface interface {
	// Create is idempotent per (campaign, user): an existing record is returned with created=false.
	Create(ctx context.Context, campaignID, userID int64) (rec *model.AttestationRecord, created bool, err error)
	GetByID(ctx context.Context, id int64) (*model.AttestationRecord, error)
	ListByCampaign(ctx context.Context, campaignID int64) ([]*model.AttestationRecord, error)
	ListByUser(ctx context.Context, userID int64) ([]*model.AttestationRecord, error)
	MarkInProgress(ctx context.Context, id int64, at time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id int64, at time.Time) (bool, error)
	SetReminderSent(ctx context.Context, id int64, at time.Time) error
	SetEscalationSent(ctx context.Context, id int64, at time.Time) error
}

type RecordRepository struct {
	DB *sql.DB
}

const recordColumns = `id, campaign_id, user_id, status, started_at, completed_at, reminder_sent_at, escalation_sent_at, created_at`

func scanRecord(row interface{ Scan(...any) error }) (*model.AttestationRecord, error) {
	var rec model.AttestationRecord
	err := row.Scan(&rec.ID, &rec.CampaignID, &rec.UserID, &rec.Status, &rec.StartedAt, &rec.CompletedAt,
		&rec.ReminderSentAt, &rec.EscalationSentAt, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *RecordRepository) Create(ctx context.Context, campaignID, userID int64) (*model.AttestationRecord, bool, error) {
	query := `
		INSERT INTO attestation_records (campaign_id, user_id, status, created_at)
		VALUES ($1, $2, 'pending', NOW())
		ON CONFLICT (campaign_id, user_id) DO NOTHING
		RETURNING ` + recordColumns
	rec, err := scanRecord(r.DB.QueryRowContext(ctx, query, campaignID, userID))
	if err == nil {
		return rec, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, err
	}

	// Conflict: return the existing one
	rec, err = scanRecord(r.DB.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM attestation_records WHERE campaign_id=$1 AND user_id=$2`, campaignID, userID))
	if err != nil {
		return nil, false, err
	}
	return rec, false, nil
}

func (r *RecordRepository) GetByID(ctx context.Context, id int64) (*model.AttestationRecord, error) {
	rec, err := scanRecord(r.DB.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM attestation_records WHERE id=$1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewRecordNotFound(id)
		}
		return nil, err
	}
	return rec, nil
}

func (r *RecordRepository) list(ctx context.Context, query string, arg int64) ([]*model.AttestationRecord, error) {
	rows, err := r.DB.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*model.AttestationRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *RecordRepository) ListByCampaign(ctx context.Context, campaignID int64) ([]*model.AttestationRecord, error) {
	return r.list(ctx, `SELECT `+recordColumns+` FROM attestation_records WHERE campaign_id=$1 ORDER BY id`, campaignID)
}

func (r *RecordRepository) ListByUser(ctx context.Context, userID int64) ([]*model.AttestationRecord, error) {
	return r.list(ctx, `SELECT `+recordColumns+` FROM attestation_records WHERE user_id=$1 ORDER BY id DESC`, userID)
}

func (r *RecordRepository) MarkInProgress(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE attestation_records SET status='in_progress', started_at=$1 WHERE id=$2 AND status='pending'`, at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *RecordRepository) MarkCompleted(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE attestation_records SET status='completed', completed_at=$1 WHERE id=$2 AND status<>'completed'`, at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *RecordRepository) SetReminderSent(ctx context.Context, id int64, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE attestation_records SET reminder_sent_at=$1 WHERE id=$2`, at, id)
	if err != nil {
		return err
	}
	return requireAffected(res, appErrors.NewRecordNotFound(id))
}

func (r *RecordRepository) SetEscalationSent(ctx context.Context, id int64, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE attestation_records SET escalation_sent_at=$1 WHERE id=$2`, at, id)
	if err != nil {
		return err
	}
	return requireAffected(res, appErrors.NewRecordNotFound(id))
}

var _ RecordRepositoryInterface = (*RecordRepository)(nil)
