// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package validate provides a chainable Validator that collects field-level
// errors before returning a single [apperr.AppError].
//
// # Architecture
//
// Validators run in the service layer, after request sanitisation and before
// any store access, so that identity logic only operates on well-formed input.
// Identity rules key their failures by rule code (e.g. "PasswordTooShort")
// instead of by request field.
package validate

import (
	"net/mail"
	"strings"

	"github.com/taibuivan/authapi/internal/platform/apperr"
)

// ErrInvalidJSON is returned when the request body cannot be decoded.
var ErrInvalidJSON = apperr.ValidationError("Invalid JSON payload")

// Validator collects field-level validation errors via a fluent, chainable API.
//
// # Concurrency
//
// Validator is not safe for concurrent use. A new instance must be created
// for every request/operation.
type Validator struct {
	errs []apperr.FieldError
}

// # Rules

// Required fails if the trimmed value is empty.
func (v *Validator) Required(field, value string) *Validator {
	return v.Rule(strings.TrimSpace(value) == "", field, "This field is required")
}

// Email fails if the value is not a bare RFC 5322 address.
func (v *Validator) Email(field, value string) *Validator {
	return v.Rule(!IsEmail(value), field, "Must be a valid email address")
}

// Rule adds a failure for field when failed is true.
//
// # Example
//
//	v.Rule(len(password) < 6, "PasswordTooShort", "Passwords must be at least 6 characters.")
func (v *Validator) Rule(failed bool, field, message string) *Validator {
	if failed {
		v.errs = append(v.errs, apperr.FieldError{Field: field, Message: message})
	}
	return v
}

// Add appends a failure for field unconditionally.
func (v *Validator) Add(field, message string) *Validator {
	return v.Rule(true, field, message)
}

// # Output

// Err returns a [apperr.AppError] (VALIDATION_ERROR) if any rules failed,
// or nil if all rules passed.
//
// This is the only output method; call it at the end of the chain.
func (v *Validator) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return apperr.ValidationError("Validation failed", v.errs...)
}

// HasErrors reports whether any validation rule has failed so far.
func (v *Validator) HasErrors() bool {
	return len(v.errs) > 0
}

// Fail builds a validation error carrying a single failure.
func Fail(field, message string) error {
	return apperr.ValidationError("Validation failed", apperr.FieldError{
		Field:   field,
		Message: message,
	})
}

// # Predicates

// IsEmail reports whether value is a bare RFC 5322 address.
//
// Display-name forms such as "Alice <alice@example.com>" are rejected.
func IsEmail(value string) bool {
	address, err := mail.ParseAddress(value)
	return err == nil && address.Address == value
}
