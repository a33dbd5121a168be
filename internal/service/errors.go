package service

import (
	"errors"
	"fmt"
	"strings"
)

// Error classes. Handlers map these to response codes.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

// Validation causes. Each one is reported separately and can be matched with
// errors.Is on the returned *ValidationError.
var (
	ErrEmptyTaskSet        = errors.New("at least one task is required")
	ErrTaskNotFound        = errors.New("task does not exist")
	ErrTaskNotCompleted    = errors.New("task is not completed")
	ErrTaskAlreadyInvoiced = errors.New("task already belongs to an invoice")
	ErrTaskNotOwned        = errors.New("task belongs to another user")
	ErrTaskNotInInvoice    = errors.New("task not in invoice")
	ErrInvalidField        = errors.New("invalid field")
	ErrTaken               = errors.New("value already taken")
)

// Problem is a single validation failure.
type Problem struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// ValidationError collects every problem found while validating one request.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, p.Field+": "+p.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() []error {
	errs := []error{ErrValidation}
	for _, p := range e.Problems {
		if p.Err != nil {
			errs = append(errs, p.Err)
		}
	}
	return errs
}

// Add records a problem. cause may be nil, in which case ErrInvalidField is used.
func (e *ValidationError) Add(field, code string, cause error, format string, args ...any) {
	if cause == nil {
		cause = ErrInvalidField
	}
	e.Problems = append(e.Problems, Problem{
		Field:   field,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     cause,
	})
}

// OrNil returns e when it holds problems.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Problems) == 0 {
		return nil
	}
	return e
}

func invalid(field, code string, cause error, format string, args ...any) error {
	v := &ValidationError{}
	v.Add(field, code, cause, format, args...)
	return v
}

func notFound(what string, id int64) error {
	return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
}
