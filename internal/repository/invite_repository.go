package repository

import (
	"context"
	"database/sql"
	"time"

	appErrors "github.com/unclebandit/attestation-service/internal/errors"
	"github.com/unclebandit/attestation-service/internal/model"
)

type InviteRepositoryInterface interface {
	Create(ctx context.Context, inv *model.PendingInvite) error
	GetByID(ctx context.Context, id int64) (*model.PendingInvite, error)
	GetByToken(ctx context.Context, token string) (*model.PendingInvite, error)
	ListByCampaign(ctx context.Context, campaignID int64) ([]*model.PendingInvite, error)
	ListPendingByEmail(ctx context.Context, email string) ([]*model.PendingInvite, error)
	MarkSent(ctx context.Context, id int64, at time.Time) error
	// MarkRegistered sets registered_at and converted_record_id together, once.
	MarkRegistered(ctx context.Context, id, recordID int64, at time.Time) (bool, error)
}

type InviteRepository struct {
	DB *sql.DB
}

const inviteColumns = `id, campaign_id, employee_email, employee_first_name, employee_last_name, invite_token,
		invite_sent_at, registered_at, converted_record_id, created_at`

func scanInvite(row interface{ Scan(...any) error }) (*model.PendingInvite, error) {
	var inv model.PendingInvite
	err := row.Scan(&inv.ID, &inv.CampaignID, &inv.EmployeeEmail, &inv.EmployeeFirstName, &inv.EmployeeLastName,
		&inv.InviteToken, &inv.InviteSentAt, &inv.RegisteredAt, &inv.ConvertedRecordID, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *InviteRepository) Create(ctx context.Context, inv *model.PendingInvite) error {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO attestation_pending_invites
			(campaign_id, employee_email, employee_first_name, employee_last_name, invite_token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	return r.DB.QueryRowContext(ctx, query, inv.CampaignID, inv.EmployeeEmail, inv.EmployeeFirstName,
		inv.EmployeeLastName, inv.InviteToken, inv.CreatedAt).Scan(&inv.ID)
}

func (r *InviteRepository) get(ctx context.Context, where string, arg any) (*model.PendingInvite, error) {
	inv, err := scanInvite(r.DB.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM attestation_pending_invites WHERE `+where, arg))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewNotFound("pending invite", arg)
		}
		return nil, err
	}
	return inv, nil
}

func (r *InviteRepository) GetByID(ctx context.Context, id int64) (*model.PendingInvite, error) {
	return r.get(ctx, `id=$1`, id)
}

func (r *InviteRepository) GetByToken(ctx context.Context, token string) (*model.PendingInvite, error) {
	inv, err := r.get(ctx, `invite_token=$1`, token)
	if appErrors.IsNotFound(err) {
		// Never echo the token back.
		return nil, appErrors.NewNotFound("pending invite", "token")
	}
	return inv, err
}

func (r *InviteRepository) list(ctx context.Context, query string, arg any) ([]*model.PendingInvite, error) {
	rows, err := r.DB.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invites := []*model.PendingInvite{}
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}

func (r *InviteRepository) ListByCampaign(ctx context.Context, campaignID int64) ([]*model.PendingInvite, error) {
	return r.list(ctx, `SELECT `+inviteColumns+` FROM attestation_pending_invites WHERE campaign_id=$1 ORDER BY id`, campaignID)
}

func (r *InviteRepository) ListPendingByEmail(ctx context.Context, email string) ([]*model.PendingInvite, error) {
	return r.list(ctx, `SELECT `+inviteColumns+` FROM attestation_pending_invites
		WHERE lower(employee_email)=lower($1) AND registered_at IS NULL ORDER BY id`, email)
}

func (r *InviteRepository) MarkSent(ctx context.Context, id int64, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE attestation_pending_invites SET invite_sent_at=$1 WHERE id=$2`, at, id)
	if err != nil {
		return err
	}
	return requireAffected(res, appErrors.NewNotFound("pending invite", id))
}

func (r *InviteRepository) MarkRegistered(ctx context.Context, id, recordID int64, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE attestation_pending_invites SET registered_at=$1, converted_record_id=$2
		WHERE id=$3 AND registered_at IS NULL
	`, at, recordID, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

var _ InviteRepositoryInterface = (*InviteRepository)(nil)
