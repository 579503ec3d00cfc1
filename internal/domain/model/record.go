// Package model contains domain models passed between layers.
package model

import (
	"strings"
)

// Upstream application-status codes carried by the bulk-loaded records.
const (
	StatusAdmitted = 6
	StatusRejected = 7
)

// Outcome is the final decision recorded for a historical applicant.
type Outcome string

// Known outcomes. Only ADMITTED and REJECTED participate in training.
const (
	OutcomeAdmitted Outcome = "ADMITTED"
	OutcomeRejected Outcome = "REJECTED"
	OutcomeOther    Outcome = "OTHER"
)

// OutcomeFromStatus maps an upstream application-status code to an Outcome.
func OutcomeFromStatus(code int) Outcome {
	switch code {
	case StatusAdmitted:
		return OutcomeAdmitted
	case StatusRejected:
		return OutcomeRejected
	default:
		return OutcomeOther
	}
}

// Status returns the upstream status code for the outcome, or 0 for OTHER.
func (o Outcome) Status() int {
	switch o {
	case OutcomeAdmitted:
		return StatusAdmitted
	case OutcomeRejected:
		return StatusRejected
	default:
		return 0
	}
}

// Decided reports whether the outcome is a final admit/reject decision.
func (o Outcome) Decided() bool {
	return o == OutcomeAdmitted || o == OutcomeRejected
}

// Label returns the training label: 1 for ADMITTED, 0 otherwise.
func (o Outcome) Label() int {
	if o == OutcomeAdmitted {
		return 1
	}
	return 0
}

// EnglishFamily selects which English proficiency test a score belongs to.
type EnglishFamily string

// Supported families. Family A is IELTS and family B is TOEFL.
const (
	FamilyA EnglishFamily = "A"
	FamilyB EnglishFamily = "B"
)

// ParseEnglishFamily accepts A, B, ielts or toefl (case-insensitive).
func ParseEnglishFamily(s string) (EnglishFamily, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "ielts":
		return FamilyA, nil
	case "b", "toefl":
		return FamilyB, nil
	default:
		return "", &ValidationError{Field: "englishTestFamily", Reason: "must be one of A (ielts) or B (toefl), got " + quote(s)}
	}
}

// Field returns the storage column holding this family's score.
func (f EnglishFamily) Field() string {
	if f == FamilyB {
		return "toefl_score"
	}
	return "ielts_score"
}

// Test returns the human name of the family's test.
func (f EnglishFamily) Test() string {
	if f == FamilyB {
		return "TOEFL"
	}
	return "IELTS"
}

// HistoricalRecord is one past applicant for one institution.
// Records are immutable once loaded.
type HistoricalRecord struct {
	InstitutionID         int
	StandardizedTestScore float64
	IELTSScore            *float64 // family A; nil when not taken
	TOEFLScore            *float64 // family B; nil when not taken
	WorkExperienceMonths  int
	PublicationCount      int
	Outcome               Outcome
}

// EnglishScore returns the record's score for family and whether it is present.
func (r HistoricalRecord) EnglishScore(family EnglishFamily) (float64, bool) {
	p := r.IELTSScore
	if family == FamilyB {
		p = r.TOEFLScore
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Features returns the record's feature vector for the given English family.
// The second result is false when the family's score is missing.
func (r HistoricalRecord) Features(family EnglishFamily) (Features, bool) {
	eng, ok := r.EnglishScore(family)
	if !ok {
		return Features{}, false
	}
	return Features{
		r.StandardizedTestScore,
		eng,
		float64(r.WorkExperienceMonths),
		float64(r.PublicationCount),
	}, true
}

// CandidateProfile is the applicant being scored in the current request.
type CandidateProfile struct {
	InstitutionID         int
	StandardizedTestScore float64
	EnglishFamily         EnglishFamily
	EnglishTestScore      float64
	WorkExperienceMonths  int
	PublicationCount      int
	SOPScore              float64
	LORScore              float64
	SOPText               string
	LORText               string
}

// Features returns the candidate's raw feature vector.
func (c CandidateProfile) Features() Features {
	return Features{
		c.StandardizedTestScore,
		c.EnglishTestScore,
		float64(c.WorkExperienceMonths),
		float64(c.PublicationCount),
	}
}

// Feature indexes into Features.
const (
	FeatureStandardizedTest = iota
	FeatureEnglishTest
	FeatureWorkExperience
	FeaturePublications
	NumFeatures
)

// FeatureNames gives the stable name of each feature index.
var FeatureNames = [NumFeatures]string{
	"standardizedTestScore",
	"englishTestScore",
	"workExperienceMonths",
	"publicationCount",
}

// Features is the fixed-width numeric input of the classifier.
type Features [NumFeatures]float64

func quote(s string) string {
	return `"` + s + `"`
}
