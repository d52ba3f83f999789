package log

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"profitshare/internal/core"
	"profitshare/internal/store"
)

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldOperation     = "operation"
	FieldError         = "error"
	FieldErrorType     = "error_type"
	FieldReportID      = "report_id"
	FieldShareholderID = "shareholder_id"
	FieldRate          = "rate"
	FieldDelta         = "delta"
	FieldBalance       = "balance"
	FieldEntries       = "entries"
	FieldBackend       = "backend"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentCLI     = "cli"
	ComponentWorker  = "worker"
	ComponentAMQP    = "amqp"
	ComponentBackend = "backend"
)

// Operations defines standard operation names
const (
	OpFinalize = "finalize"
	OpEdit     = "edit"
	OpApply    = "apply"
	OpAdjust   = "adjust"
	OpDelete   = "delete"
	OpConsume  = "consume"
	OpFlush    = "flush"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation = "validation_error"
	ErrorTypeDatabase   = "database_error"
	ErrorTypeNetwork    = "network_error"
	ErrorTypeNotFound   = "not_found_error"
	ErrorTypeConflict   = "conflict_error"
	ErrorTypeInternal   = "internal_error"
)

// ErrorTypeOf classifies err by the sentinels it wraps.
func ErrorTypeOf(err error) string {
	switch {
	case errors.Is(err, core.ErrValidation),
		errors.Is(err, core.ErrEmptyMatrix),
		errors.Is(err, core.ErrInvalidPeriod):
		return ErrorTypeValidation
	case errors.Is(err, store.ErrNotFound):
		return ErrorTypeNotFound
	case errors.Is(err, store.ErrVersionConflict):
		return ErrorTypeConflict
	default:
		return ErrorTypeInternal
	}
}

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithError adds the error and its category; an empty errorType is derived
// with ErrorTypeOf. A nil error adds nothing.
func (f LogFields) WithError(err error, errorType string) LogFields {
	if err == nil {
		return f
	}
	if errorType == "" {
		errorType = ErrorTypeOf(err)
	}
	f[FieldError] = err.Error()
	f[FieldErrorType] = errorType
	return f
}

func (f LogFields) WithReport(reportID string) LogFields {
	f[FieldReportID] = reportID
	return f
}

// WithDistribution adds a distribution outcome: its rate and entry count.
func (f LogFields) WithDistribution(rate decimal.Decimal, entries int) LogFields {
	f[FieldRate] = rate.String()
	f[FieldEntries] = entries
	return f
}

// WithMovement adds a shareholder balance movement. Amounts are logged as
// strings to keep their exact decimal form.
func (f LogFields) WithMovement(shareholderID string, delta, balance decimal.Decimal) LogFields {
	f[FieldShareholderID] = shareholderID
	f[FieldDelta] = delta.String()
	f[FieldBalance] = balance.String()
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}

// ErrorContext logs err through the default logger, classified by ErrorTypeOf.
func ErrorContext(ctx context.Context, msg string, err error, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	slog.ErrorContext(ctx, msg, fields.WithError(err, "").WithOperation(operation).ToSlice()...)
}
