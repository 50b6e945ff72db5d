package model

import (
	"errors"
	"fmt"
)

// ValidationError reports a query or configuration value outside its
// declared range. Max < Min means the range is unbounded above.
type ValidationError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
	}
	if e.Max < e.Min {
		return fmt.Sprintf("invalid %s: %g must be >= %g", e.Field, e.Value, e.Min)
	}
	return fmt.Sprintf("invalid %s: %g outside [%g, %g]", e.Field, e.Value, e.Min, e.Max)
}

// RangeError reports a lookup outside the bounds of a table dimension.
type RangeError struct {
	Dimension string
	Value     int
	Min       int
	Max       int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %d out of range [%d, %d]", e.Dimension, e.Value, e.Min, e.Max)
}

// InfeasibleModelError is returned when the solver proves that no binary
// assignment satisfies every row of the program.
type InfeasibleModelError struct {
	Program string
	Rows    int
	Reason  string
}

func (e *InfeasibleModelError) Error() string {
	msg := fmt.Sprintf("model %s infeasible (%d rows)", e.Program, e.Rows)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// DataIntegrityError reports source data that cannot back a correct answer,
// such as a malformed id list or a context with no records.
type DataIntegrityError struct {
	Table  string
	Detail string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity: %s: %s", e.Table, e.Detail)
}

// IsValidation reports whether err (or any error in its chain) is a
// ValidationError or RangeError.
func IsValidation(err error) bool {
	var ve *ValidationError
	var re *RangeError
	return errors.As(err, &ve) || errors.As(err, &re)
}

// IsInfeasible reports whether err (or any error in its chain) is an
// InfeasibleModelError.
func IsInfeasible(err error) bool {
	var ie *InfeasibleModelError
	return errors.As(err, &ie)
}

// IsDataIntegrity reports whether err (or any error in its chain) is a
// DataIntegrityError.
func IsDataIntegrity(err error) bool {
	var de *DataIntegrityError
	return errors.As(err, &de)
}
