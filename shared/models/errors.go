package models

import (
	"errors"
	"strings"
)

// MissingFieldsMessage is the response message for any request that lacks a
// required field.
const MissingFieldsMessage = "Please provide all the fields"

var (
	ErrNotFound            = errors.New("account not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrPolicyViolation     = errors.New("policy violation")
)

// ValidationError reports missing or malformed request fields.
type ValidationError struct {
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Fields, ", ")
}

// PolicyViolationError is returned for operations the ledger rules disallow,
// such as depositing into a child account.
type PolicyViolationError struct {
	Reason string
}

func (e *PolicyViolationError) Error() string { return e.Reason }

func (e *PolicyViolationError) Is(target error) bool { return target == ErrPolicyViolation }

type IdentityProviderError struct {
	Err error
}

func (e *IdentityProviderError) Error() string { return e.Err.Error() }

func (e *IdentityProviderError) Unwrap() error { return e.Err }

type StoreWriteError struct {
	Err error
}

func (e *StoreWriteError) Error() string { return e.Err.Error() }

func (e *StoreWriteError) Unwrap() error { return e.Err }
