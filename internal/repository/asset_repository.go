package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/attestation-service/internal/errors"
	"github.com/unclebandit/attestation-service/internal/model"
)

type AssetRegistryInterface interface {
	GetByID(ctx context.Context, id int64) (*model.Asset, error)
	ListByOwnerEmail(ctx context.Context, email string) ([]model.Asset, error)
	// ListOwners returns distinct owner emails on assets; an empty companyIDs means every company.
	ListOwners(ctx context.Context, companyIDs []int64) ([]model.AssetOwner, error)
	UpdateStatus(ctx context.Context, id int64, status string, returnedDate *time.Time) error
}

type CompanyRegistryInterface interface {
	// ExistingIDs filters ids down to the companies that still exist.
	ExistingIDs(ctx context.Context, ids []int64) ([]int64, error)
}

type AssetRepository struct {
	DB *sql.DB
}

const assetColumns = `id, asset_type, make, model, serial_number, asset_tag, status,
		employee_first_name, employee_last_name, employee_email,
		manager_first_name, manager_last_name, manager_email, COALESCE(company_id, 0), returned_date, notes`

func scanAsset(row interface{ Scan(...any) error }) (*model.Asset, error) {
	var a model.Asset
	err := row.Scan(&a.ID, &a.AssetType, &a.Make, &a.Model, &a.SerialNumber, &a.AssetTag, &a.Status,
		&a.EmployeeFirstName, &a.EmployeeLastName, &a.EmployeeEmail,
		&a.ManagerFirstName, &a.ManagerLastName, &a.ManagerEmail, &a.CompanyID, &a.ReturnedDate, &a.Notes)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AssetRepository) GetByID(ctx context.Context, id int64) (*model.Asset, error) {
	a, err := scanAsset(r.DB.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id=$1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewNotFound("asset", id)
		}
		return nil, err
	}
	return a, nil
}

func (r *AssetRepository) ListByOwnerEmail(ctx context.Context, email string) ([]model.Asset, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE lower(employee_email)=lower($1) ORDER BY id`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assets := []model.Asset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *a)
	}
	return assets, rows.Err()
}

func (r *AssetRepository) ListOwners(ctx context.Context, companyIDs []int64) ([]model.AssetOwner, error) {
	query := `
		SELECT DISTINCT ON (lower(employee_email)) employee_email, employee_first_name, employee_last_name
		FROM assets
		WHERE employee_email <> ''`
	args := []any{}
	if len(companyIDs) > 0 {
		query += ` AND company_id = ANY($1)`
		args = append(args, pq.Int64Array(companyIDs))
	}
	query += ` ORDER BY lower(employee_email), id`

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	owners := []model.AssetOwner{}
	for rows.Next() {
		var o model.AssetOwner
		if err := rows.Scan(&o.Email, &o.FirstName, &o.LastName); err != nil {
			return nil, err
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

func (r *AssetRepository) UpdateStatus(ctx context.Context, id int64, status string, returnedDate *time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE assets SET status=$1, returned_date=COALESCE($2, returned_date) WHERE id=$3`, status, returnedDate, id)
	if err != nil {
		return err
	}
	return requireAffected(res, appErrors.NewNotFound("asset", id))
}

func (r *AssetRepository) ExistingIDs(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return []int64{}, nil
	}
	var existing pq.Int64Array
	err := r.DB.QueryRowContext(ctx,
		`SELECT COALESCE(array_agg(id ORDER BY id), '{}') FROM companies WHERE id = ANY($1)`, pq.Int64Array(ids)).Scan(&existing)
	if err != nil {
		return nil, err
	}
	return []int64(existing), nil
}

var _ AssetRegistryInterface = (*AssetRepository)(nil)
var _ CompanyRegistryInterface = (*AssetRepository)(nil)
