package repository

import (
	"context"
	"database/sql"
	"time"

	appErrors "github.com/unclebandit/attestation-service/internal/errors"
	"github.com/unclebandit/attestation-service/internal/model"
)

type LedgerRepositoryInterface interface {
	AddAttestedAsset(ctx context.Context, a *model.AttestedAsset) error
	ListAttestedAssets(ctx context.Context, recordID int64) ([]*model.AttestedAsset, error)
	AddNewAsset(ctx context.Context, n *model.NewAsset) error
	ListNewAssets(ctx context.Context, recordID int64) ([]*model.NewAsset, error)
	// PromoteNewAsset copies a staged entry into the asset registry with status active
	// and marks the entry promoted, in one transaction. An entry that is already
	// promoted returns its asset id with promoted=false.
	PromoteNewAsset(ctx context.Context, newAssetID int64, at time.Time) (assetID int64, promoted bool, err error)
}

type LedgerRepository struct {
	DB *sql.DB
}

func (r *LedgerRepository) AddAttestedAsset(ctx context.Context, a *model.AttestedAsset) error {
	query := `
		INSERT INTO attestation_assets
			(attestation_record_id, asset_id, attested_status, previous_status, notes, returned_date, attested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	return r.DB.QueryRowContext(ctx, query, a.AttestationRecordID, a.AssetID, a.AttestedStatus, a.PreviousStatus,
		a.Notes, a.ReturnedDate, a.AttestedAt).Scan(&a.ID)
}

func (r *LedgerRepository) ListAttestedAssets(ctx context.Context, recordID int64) ([]*model.AttestedAsset, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, attestation_record_id, asset_id, attested_status, previous_status, notes, returned_date, attested_at
		FROM attestation_assets WHERE attestation_record_id=$1 ORDER BY attested_at, id
	`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*model.AttestedAsset{}
	for rows.Next() {
		var a model.AttestedAsset
		if err := rows.Scan(&a.ID, &a.AttestationRecordID, &a.AssetID, &a.AttestedStatus, &a.PreviousStatus,
			&a.Notes, &a.ReturnedDate, &a.AttestedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &a)
	}
	return entries, rows.Err()
}

func (r *LedgerRepository) AddNewAsset(ctx context.Context, n *model.NewAsset) error {
	query := `
		INSERT INTO attestation_new_assets
			(attestation_record_id, asset_type, make, model, serial_number, asset_tag,
			 employee_first_name, employee_last_name, employee_email,
			 manager_first_name, manager_last_name, manager_email, company_id, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`
	return r.DB.QueryRowContext(ctx, query, n.AttestationRecordID, n.AssetType, n.Make, n.Model, n.SerialNumber,
		n.AssetTag, n.EmployeeFirstName, n.EmployeeLastName, n.EmployeeEmail, n.ManagerFirstName,
		n.ManagerLastName, n.ManagerEmail, n.CompanyID, n.Notes, n.CreatedAt).Scan(&n.ID)
}

const newAssetColumns = `id, attestation_record_id, asset_type, make, model, serial_number, asset_tag,
		employee_first_name, employee_last_name, employee_email, manager_first_name, manager_last_name,
		manager_email, company_id, notes, created_at, promoted_at, promoted_asset_id`

func scanNewAsset(row interface{ Scan(...any) error }) (*model.NewAsset, error) {
	var n model.NewAsset
	err := row.Scan(&n.ID, &n.AttestationRecordID, &n.AssetType, &n.Make, &n.Model, &n.SerialNumber, &n.AssetTag,
		&n.EmployeeFirstName, &n.EmployeeLastName, &n.EmployeeEmail, &n.ManagerFirstName, &n.ManagerLastName,
		&n.ManagerEmail, &n.CompanyID, &n.Notes, &n.CreatedAt, &n.PromotedAt, &n.PromotedAssetID)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *LedgerRepository) ListNewAssets(ctx context.Context, recordID int64) ([]*model.NewAsset, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+newAssetColumns+` FROM attestation_new_assets WHERE attestation_record_id=$1 ORDER BY id`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*model.NewAsset{}
	for rows.Next() {
		n, err := scanNewAsset(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, n)
	}
	return entries, rows.Err()
}

func (r *LedgerRepository) PromoteNewAsset(ctx context.Context, newAssetID int64, at time.Time) (assetID int64, promoted bool, err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	// Lock the staged row so concurrent completions cannot both promote it
	n, err := scanNewAsset(tx.QueryRowContext(ctx,
		`SELECT `+newAssetColumns+` FROM attestation_new_assets WHERE id=$1 FOR UPDATE`, newAssetID))
	if err == sql.ErrNoRows {
		return 0, false, appErrors.NewNotFound("new asset", newAssetID)
	}
	if err != nil {
		return 0, false, err
	}
	if n.Promoted() {
		return *n.PromotedAssetID, false, nil
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO assets
			(asset_type, make, model, serial_number, asset_tag, status,
			 employee_first_name, employee_last_name, employee_email,
			 manager_first_name, manager_last_name, manager_email, company_id, notes)
		VALUES ($1, $2, $3, $4, $5, 'active', $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`, n.AssetType, n.Make, n.Model, n.SerialNumber, n.AssetTag, n.EmployeeFirstName, n.EmployeeLastName,
		n.EmployeeEmail, n.ManagerFirstName, n.ManagerLastName, n.ManagerEmail, n.CompanyID, n.Notes).Scan(&assetID)
	if err != nil {
		return 0, false, err
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE attestation_new_assets SET promoted_at=$1, promoted_asset_id=$2 WHERE id=$3`, at, assetID, newAssetID); err != nil {
		return 0, false, err
	}
	return assetID, true, nil
}

var _ LedgerRepositoryInterface = (*LedgerRepository)(nil)
