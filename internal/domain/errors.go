package domain

import (
	"fmt"
	"strings"
	"time"
)

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrCodeInput            = "INPUT_ERROR"
	ErrCodeUnitConversion   = "UNIT_CONVERSION_ERROR"
	ErrCodeRangeViolation   = "RANGE_VIOLATION_ERROR"
	ErrCodeConfiguration    = "CONFIGURATION_ERROR"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeNotFinalized     = "REPORT_NOT_FINALIZED"
	ErrCodeNarrative        = "NARRATIVE_ERROR"
	ErrCodeNarrativeOff     = "NARRATIVE_DISABLED"
	ErrCodeExtraction       = "EXTRACTION_ERROR"
	ErrCodeFeedback         = "FEEDBACK_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeRateLimit        = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalServer   = "INTERNAL_SERVER_ERROR"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeServiceUnhealthy = "SERVICE_UNAVAILABLE"
)

// ValidationError represents configuration and data file validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// InputError reports structural problems with the reading set as a whole.
type InputError struct {
	Missing    []Parameter `json:"missing,omitempty"`
	Duplicated []Parameter `json:"duplicated,omitempty"`
	Unknown    []string    `json:"unknown,omitempty"`
}

func (e *InputError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing mandatory parameters: "+joinParameters(e.Missing))
	}
	if len(e.Duplicated) > 0 {
		parts = append(parts, "duplicated parameters: "+joinParameters(e.Duplicated))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown parameters: "+strings.Join(e.Unknown, ", "))
	}
	if len(parts) == 0 {
		return "invalid input"
	}
	return strings.Join(parts, "; ")
}

// Empty reports whether no problem was recorded.
func (e *InputError) Empty() bool {
	return len(e.Missing) == 0 && len(e.Duplicated) == 0 && len(e.Unknown) == 0
}

// Parameters lists the canonical parameters involved in the error.
func (e *InputError) Parameters() []Parameter {
	out := make([]Parameter, 0, len(e.Missing)+len(e.Duplicated))
	out = append(out, e.Missing...)
	out = append(out, e.Duplicated...)
	return out
}

// UnitConversionError is returned when a reading's unit is not accepted for its parameter.
type UnitConversionError struct {
	Parameter Parameter `json:"parameter"`
	Unit      string    `json:"unit"`
}

func (e *UnitConversionError) Error() string {
	return fmt.Sprintf("unsupported unit %q for %s", e.Unit, e.Parameter)
}

// RangeViolationError is returned for values that cannot be physiological.
type RangeViolationError struct {
	Parameter Parameter `json:"parameter"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Reason    string    `json:"reason"`
}

func (e *RangeViolationError) Error() string {
	return fmt.Sprintf("%s value %g %s rejected: %s", e.Parameter, e.Value, e.Unit, e.Reason)
}

// ConfigurationError reports a broken reference table, rule base or engine setting.
type ConfigurationError struct {
	Source     string      `json:"source"`
	Message    string      `json:"message"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Source, e.Message)
}

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// NewConfigurationError creates a new ConfigurationError
func NewConfigurationError(source, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Source: source, Message: fmt.Sprintf(format, args...)}
}

func joinParameters(ps []Parameter) string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}
