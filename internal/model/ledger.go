// internal/model/ledger.go
package model

import "time"

var AttestedStatuses = map[string]bool{
	"active":   true,
	"returned": true,
	"lost":     true,
	"damaged":  true,
	"retired":  true,
}

const AssetStatusReturned = "returned"

// AttestedAsset is one immutable attestation decision.
type AttestedAsset struct {
	ID                  int64      `db:"id" json:"id"`
	AttestationRecordID int64      `db:"attestation_record_id" json:"attestation_record_id"`
	AssetID             int64      `db:"asset_id" json:"asset_id"`
	AttestedStatus      string     `db:"attested_status" json:"attested_status"`
	PreviousStatus      string     `db:"previous_status" json:"previous_status"`
	Notes               string     `db:"notes" json:"notes"`
	ReturnedDate        *time.Time `db:"returned_date" json:"returned_date,omitempty"`
	AttestedAt          time.Time  `db:"attested_at" json:"attested_at"`
}

// NewAsset is an asset declared during attestation and staged until the record completes.
type NewAsset struct {
	ID                  int64      `db:"id" json:"id"`
	AttestationRecordID int64      `db:"attestation_record_id" json:"attestation_record_id"`
	AssetType           string     `db:"asset_type" json:"asset_type"`
	Make                string     `db:"make" json:"make"`
	Model               string     `db:"model" json:"model"`
	SerialNumber        string     `db:"serial_number" json:"serial_number"`
	AssetTag            string     `db:"asset_tag" json:"asset_tag"`
	EmployeeFirstName   string     `db:"employee_first_name" json:"employee_first_name"`
	EmployeeLastName    string     `db:"employee_last_name" json:"employee_last_name"`
	EmployeeEmail       string     `db:"employee_email" json:"employee_email"`
	ManagerFirstName    string     `db:"manager_first_name" json:"manager_first_name"`
	ManagerLastName     string     `db:"manager_last_name" json:"manager_last_name"`
	ManagerEmail        string     `db:"manager_email" json:"manager_email"`
	CompanyID           int64      `db:"company_id" json:"company_id"`
	Notes               string     `db:"notes" json:"notes"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	PromotedAt          *time.Time `db:"promoted_at" json:"promoted_at,omitempty"`
	PromotedAssetID     *int64     `db:"promoted_asset_id" json:"promoted_asset_id,omitempty"`
}

func (n *NewAsset) Promoted() bool {
	return n.PromotedAt != nil
}
