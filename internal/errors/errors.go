// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ValidationError reports missing or malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InvalidStateError reports an action that is not allowed in the entity's current status.
// It is a validation-class error.
type InvalidStateError struct {
	Entity string
	ID     int64
	Status string
	Action string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %d in status %s", e.Action, e.Entity, e.ID, e.Status)
}

type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %v not found", e.Entity, e.ID)
}

type PermissionError struct {
	Message string
}

func (e *PermissionError) Error() string {
	return e.Message
}

// DependencyError wraps a failure of an external collaborator (mail, audit, broker).
type DependencyError struct {
	Dependency string
	Cause      error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Dependency, e.Cause)
}

func (e *DependencyError) Unwrap() error {
	return e.Cause
}

// Helper constructors
func NewValidation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func NewInvalidState(entity string, id int64, status, action string) error {
	return &InvalidStateError{Entity: entity, ID: id, Status: status, Action: action}
}

func NewNotFound(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func NewCampaignNotFound(id int64) error {
	return NewNotFound("campaign", id)
}

func NewRecordNotFound(id int64) error {
	return NewNotFound("attestation record", id)
}

func NewPermission(message string) error {
	return &PermissionError{Message: message}
}

func NewDependency(dependency string, cause error) error {
	return &DependencyError{Dependency: dependency, Cause: cause}
}

func IsValidation(err error) bool {
	var v *ValidationError
	var s *InvalidStateError
	return errors.As(err, &v) || errors.As(err, &s)
}

func IsInvalidState(err error) bool {
	var s *InvalidStateError
	return errors.As(err, &s)
}

func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}

func IsPermission(err error) bool {
	var p *PermissionError
	return errors.As(err, &p)
}

func IsDependency(err error) bool {
	var d *DependencyError
	return errors.As(err, &d)
}
