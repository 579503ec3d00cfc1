package model

import (
	"fmt"
)

// ValidationError reports a malformed, missing or mistyped request field.
// It is detected before any data-store access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: field %s: %s", e.Field, e.Reason)
}

// NoHistoricalDataError reports an empty cohort after institution, field and
// decision filtering.
type NoHistoricalDataError struct {
	InstitutionID int
	EnglishField  string
}

func (e *NoHistoricalDataError) Error() string {
	return fmt.Sprintf("no decided historical records for institution %d with %s present", e.InstitutionID, e.EnglishField)
}

// DegenerateNormalizationError reports a normalization factor of zero.
type DegenerateNormalizationError struct {
	InstitutionID int
	Feature       string
}

func (e *DegenerateNormalizationError) Error() string {
	if e.InstitutionID == 0 {
		return fmt.Sprintf("degenerate normalization: feature %s is zero for every record and the candidate", e.Feature)
	}
	return fmt.Sprintf("degenerate normalization for institution %d: feature %s is zero for every record and the candidate", e.InstitutionID, e.Feature)
}

// RubricNotFoundError reports an unknown institution/document-type rubric.
// Callers treat it as recoverable.
type RubricNotFoundError struct {
	InstitutionID int
	DocumentType  string
}

func (e *RubricNotFoundError) Error() string {
	return fmt.Sprintf("not found: no rubric for institution %d and document type %s", e.InstitutionID, e.DocumentType)
}
