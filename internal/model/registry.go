// internal/model/registry.go
package model

import "time"

const RoleAdmin = "admin"

// User, Asset and Company belong to the asset-management registry.
type User struct {
	ID           int64  `db:"id" json:"id"`
	Email        string `db:"email" json:"email"`
	FirstName    string `db:"first_name" json:"first_name"`
	LastName     string `db:"last_name" json:"last_name"`
	Role         string `db:"role" json:"role"`
	ManagerEmail string `db:"manager_email" json:"manager_email,omitempty"`
}

func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

type Company struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

type Asset struct {
	ID                int64      `db:"id" json:"id"`
	AssetType         string     `db:"asset_type" json:"asset_type"`
	Make              string     `db:"make" json:"make"`
	Model             string     `db:"model" json:"model"`
	SerialNumber      string     `db:"serial_number" json:"serial_number"`
	AssetTag          string     `db:"asset_tag" json:"asset_tag"`
	Status            string     `db:"status" json:"status"`
	EmployeeFirstName string     `db:"employee_first_name" json:"employee_first_name"`
	EmployeeLastName  string     `db:"employee_last_name" json:"employee_last_name"`
	EmployeeEmail     string     `db:"employee_email" json:"employee_email"`
	ManagerFirstName  string     `db:"manager_first_name" json:"manager_first_name"`
	ManagerLastName   string     `db:"manager_last_name" json:"manager_last_name"`
	ManagerEmail      string     `db:"manager_email" json:"manager_email"`
	CompanyID         int64      `db:"company_id" json:"company_id"`
	ReturnedDate      *time.Time `db:"returned_date" json:"returned_date,omitempty"`
	Notes             string     `db:"notes" json:"notes"`
}

// AssetOwner is a distinct owner email found on assets, with the names recorded on them.
type AssetOwner struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type AuditEntry struct {
	ID          int64     `db:"id" json:"id"`
	Action      string    `db:"action" json:"action"`
	EntityType  string    `db:"entity_type" json:"entity_type"`
	EntityID    int64     `db:"entity_id" json:"entity_id"`
	EntityLabel string    `db:"entity_label" json:"entity_label"`
	Details     string    `db:"details" json:"details"`
	ActorEmail  string    `db:"actor_email" json:"actor_email"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
