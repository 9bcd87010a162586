// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrTradeAlreadyOpen   = errors.New("trade already open")
	ErrNoTradeOpen        = errors.New("no trade open")
	ErrNoTrade            = errors.New("option has never been traded")
	ErrOptionExpired      = errors.New("option has expired")
	ErrNonMonotonicUpdate = errors.New("quote update is earlier than current quote")
	ErrNotFound           = errors.New("no matching option found")
	ErrAmbiguous          = errors.New("multiple matching options found")
	ErrInsufficientMargin = errors.New("insufficient margin")
	ErrPositionNotFound   = errors.New("position not found")
	ErrPositionExists     = errors.New("position already in portfolio")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrDataNotFound       = errors.New("data not found")
	ErrDatabaseError      = errors.New("database error")
	ErrInvalidCombination = errors.New("invalid option combination")
)

// ValidationError represents a validation error on a single field.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// OptionError represents an invalid operation on a single option.
type OptionError struct {
	OptionID  string
	Operation string
	Reason    string
	Err       error
}

func (e *OptionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("option error [%s] %s: %s: %v", e.OptionID, e.Operation, e.Reason, e.Err)
	}
	return fmt.Sprintf("option error [%s] %s: %v", e.OptionID, e.Operation, e.Err)
}

func (e *OptionError) Unwrap() error {
	return e.Err
}

// NewOptionError creates a new OptionError.
func NewOptionError(optionID, operation, reason string, err error) *OptionError {
	return &OptionError{
		OptionID:  optionID,
		Operation: operation,
		Reason:    reason,
		Err:       err,
	}
}

// CombinationError represents a structurally invalid option combination.
type CombinationError struct {
	Type   string
	Reason string
}

func (e *CombinationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Type, e.Reason)
}

// Is makes every CombinationError match ErrInvalidCombination.
func (e *CombinationError) Is(target error) bool {
	return target == ErrInvalidCombination
}

// NewCombinationError creates a new CombinationError.
func NewCombinationError(combinationType, reason string) *CombinationError {
	return &CombinationError{
		Type:   combinationType,
		Reason: reason,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// RiskError represents a risk management error.
type RiskError struct {
	Rule    string
	Current string
	Limit   string
	Message string
	Err     error
}

func (e *RiskError) Error() string {
	return fmt.Sprintf("risk violation [%s]: %s (required: %s, available: %s)", e.Rule, e.Message, e.Current, e.Limit)
}

func (e *RiskError) Unwrap() error {
	return e.Err
}

// NewRiskError creates a new RiskError. Current and limit are preformatted amounts.
func NewRiskError(rule, current, limit, message string, err error) *RiskError {
	return &RiskError{
		Rule:    rule,
		Current: current,
		Limit:   limit,
		Message: message,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
