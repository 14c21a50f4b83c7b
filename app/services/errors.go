// Package services holds the marketplace business rules. Services return
// the sentinel errors below, wrapped with detail; controllers map them to
// HTTP statuses.
package services

import (
	"errors"
	"fmt"

	"github.com/darcho/darcho/pkg/orm"
	"github.com/darcho/darcho/pkg/validate"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEmptyCart         = errors.New("cart is empty")
)

// ValidationError carries per-field messages. It unwraps to ErrInvalidInput.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// fieldError builds a one-field ValidationError.
func fieldError(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// check validates in with its struct tags.
func check(in any) error {
	if errs := validate.Struct(in); validate.HasErrors(errs) {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// notFound turns gorm's no-row error into ErrNotFound naming what was missing.
func notFound(err error, what string) error {
	if orm.IsNotFound(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}
