// Package repository provides read access to historical admission records.
package repository

import (
	"context"

	"github.com/okian/admitcast/internal/domain/model"
)

// Store provides read access to the historical cohort.
type Store interface {
	// FetchDecided returns records of one institution whose English score for
	// family is present and whose outcome is ADMITTED or REJECTED, in stored
	// order. An empty result is not an error.
	FetchDecided(ctx context.Context, institutionID int, family model.EnglishFamily) ([]model.HistoricalRecord, error)

	// Count returns the number of records held by the store.
	Count(ctx context.Context) int
}

// Writer appends historical records. It is used by bulk loading only.
type Writer interface {
	Insert(ctx context.Context, records []model.HistoricalRecord) error
}

// keep reports whether r belongs in a FetchDecided result.
func keep(r model.HistoricalRecord, institutionID int, family model.EnglishFamily) bool {
	if r.InstitutionID != institutionID || !r.Outcome.Decided() {
		return false
	}
	_, ok := r.EnglishScore(family)
	return ok
}

func validateRecord(r model.HistoricalRecord) error {
	if r.InstitutionID <= 0 {
		return ErrInvalidRecord
	}
	if r.IELTSScore == nil && r.TOEFLScore == nil {
		return ErrInvalidRecord
	}
	if !validScore(r.StandardizedTestScore) {
		return ErrInvalidRecord
	}
	if r.IELTSScore != nil && !validScore(*r.IELTSScore) {
		return ErrInvalidRecord
	}
	if r.TOEFLScore != nil && !validScore(*r.TOEFLScore) {
		return ErrInvalidRecord
	}
	if r.WorkExperienceMonths < 0 || r.PublicationCount < 0 {
		return ErrInvalidRecord
	}
	return nil
}
