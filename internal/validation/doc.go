// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

// Package validation provides struct validation using go-playground/validator v10.
//
// This package wraps the go-playground/validator library to provide a thread-safe
// singleton validator instance, used by internal/config.Config.Validate to enforce
// the `validate` struct tags on every provider block and pair entry.
//
// # Overview
//
// The package provides:
//   - Thread-safe singleton validator (initialized once, cached struct info)
//   - Error translation to human-readable per-field messages
//   - Built-in validator support (oneof, gte/lte, required, etc.)
//   - Uses WithRequiredStructEnabled for v11 compatibility
//
// # Quick Start
//
//	type PairConfig struct {
//	    Source    string `validate:"required"`
//	    Target    string `validate:"required"`
//	    Direction string `validate:"required,oneof=mirror two-way"`
//	}
//
//	if verr := validation.ValidateStruct(&cfg); verr != nil {
//	    return fmt.Errorf("config validation failed: %w", verr)
//	}
//
// # Common Validation Tags
//
// String validations:
//   - required: Field must not be empty
//   - oneof=a b c: Must be one of the specified values
//
// Numeric validations:
//   - gte=n: Greater than or equal to n
//   - lte=n: Less than or equal to n
//   - gt=n: Greater than n
//   - lt=n: Less than n
//   - min=n / max=n: Bounds (string length or numeric value, by field kind)
//
// # Error Types
//
// ValidationError represents a single field validation failure:
//
//	type ValidationError struct {
//	    Field()   string      // Struct field name
//	    Tag()     string      // Validation tag that failed
//	    Param()   string      // Tag parameter (e.g., "100" for max=100)
//	    Value()   interface{} // Actual value that failed
//	    Error()   string      // Human-readable message
//	}
//
// RequestValidationError aggregates multiple field errors:
//
//	type RequestValidationError struct {
//	    Errors() []ValidationError
//	    Error()  string // Combined "Field: message; Field: message" string
//	}
//
// # Error Message Translation
//
// Human-readable messages are generated for common validation tags:
//
//	required   -> "Source is required"
//	oneof=a b  -> "Direction must be one of: a b"
//	gte=1      -> "IntervalSeconds must be greater than or equal to 1"
//	lte=1000   -> "MaxRetries must be less than or equal to 1000"
//
// # Thread Safety
//
// The singleton validator is initialized once and safe for concurrent use:
//
//	validate := validation.GetValidator()  // Thread-safe
//	err := validation.ValidateStruct(&req) // Thread-safe
//
// # See Also
//
//   - internal/config: Config.Validate, the sole caller
//   - github.com/go-playground/validator/v10: Underlying library
package validation
