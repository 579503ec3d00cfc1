package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/okian/admitcast/internal/domain/model"
	"github.com/okian/admitcast/pkg/metrics"
)

// Bulk CSV column names.
const (
	colInstitution     = "university_id"
	colStandardized    = "gre_score"
	colIELTS           = "ielts_score"
	colTOEFL           = "toefl_score"
	colPublications    = "technical_papers_count"
	colWorkExperience  = "total_work_experience_in_months"
	colApplicationCode = "application_status"
)

// ErrMissingColumn is returned when the CSV header lacks a required column.
var ErrMissingColumn = errors.New("missing required csv column")

// SkippedRow describes a CSV row that was not ingested.
type SkippedRow struct {
	Line   int
	Reason string
}

// ReadCSV parses the bulk-load CSV format. Rows with an unusable institution
// id or standardized score, or with neither English score, are skipped and
// reported rather than failing the whole file.
func ReadCSV(r io.Reader) ([]model.HistoricalRecord, []SkippedRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range []string{colInstitution, colStandardized, colIELTS, colTOEFL} {
		if _, ok := idx[c]; !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}

	var (
		records []model.HistoricalRecord
		skipped []SkippedRow
	)
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}

		field := func(name string) string {
			i, ok := idx[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		inst, err := strconv.Atoi(field(colInstitution))
		if err != nil || inst <= 0 {
			skipped = append(skipped, SkippedRow{Line: line, Reason: fmt.Sprintf("invalid %s %q", colInstitution, field(colInstitution))})
			continue
		}
		gre, err := strconv.ParseFloat(field(colStandardized), 64)
		if err != nil || !validScore(gre) {
			skipped = append(skipped, SkippedRow{Line: line, Reason: fmt.Sprintf("invalid %s %q", colStandardized, field(colStandardized))})
			continue
		}
		ielts, ok := optionalScore(field(colIELTS))
		if !ok {
			skipped = append(skipped, SkippedRow{Line: line, Reason: fmt.Sprintf("invalid %s %q", colIELTS, field(colIELTS))})
			continue
		}
		toefl, ok := optionalScore(field(colTOEFL))
		if !ok {
			skipped = append(skipped, SkippedRow{Line: line, Reason: fmt.Sprintf("invalid %s %q", colTOEFL, field(colTOEFL))})
			continue
		}
		if ielts == nil && toefl == nil {
			skipped = append(skipped, SkippedRow{Line: line, Reason: "no IELTS or TOEFL score"})
			continue
		}

		records = append(records, model.HistoricalRecord{
			InstitutionID:         inst,
			StandardizedTestScore: gre,
			IELTSScore:            ielts,
			TOEFLScore:            toefl,
			WorkExperienceMonths:  nonNegativeInt(field(colWorkExperience)),
			PublicationCount:      nonNegativeInt(field(colPublications)),
			Outcome:               model.OutcomeFromStatus(nonNegativeInt(field(colApplicationCode))),
		})
	}
	return records, skipped, nil
}

// optionalScore parses an optional score column. An empty value is absent;
// an unparsable, non-finite or negative value is rejected.
func optionalScore(s string) (*float64, bool) {
	if s == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !validScore(v) {
		return nil, false
	}
	return &v, true
}

func validScore(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

func nonNegativeInt(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// InsertBatches writes records to w in batches of size, calling progress
// with the batch length after each successful insert.
func InsertBatches(ctx context.Context, w Writer, records []model.HistoricalRecord, size int, progress func(n int)) error {
	if size <= 0 {
		size = len(records)
	}
	for start := 0; start < len(records); start += size {
		batch := records[start:min(start+size, len(records))]
		if err := w.Insert(ctx, batch); err != nil {
			return fmt.Errorf("failed to insert records %d-%d: %w", start, start+len(batch)-1, err)
		}
		metrics.RecordRecordsLoaded("loaded", len(batch))
		if progress != nil {
			progress(len(batch))
		}
	}
	return nil
}
