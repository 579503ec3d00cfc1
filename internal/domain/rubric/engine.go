// Package rubric scores free-text supporting documents against an
// institution- and document-type-specific weighted keyword rubric.
package rubric

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/admitcast/internal/domain/model"
)

// Scoring constants.
const (
	maxScore            = 10
	minScore            = 1
	maxBonus            = 3
	bonusWeightMin      = 0.8
	tooLongFactor       = 1.5
	recommendationCount = 3
)

var (
	whitespace = regexp.MustCompile(`\s+`)
	disallowed = regexp.MustCompile(`[^\w\s.,;:?!()\-"']`)
)

// Evaluation is the assessment of one document.
type Evaluation = model.DocumentEvaluation

// Engine scores documents against a Table. It is stateless and safe for
// concurrent use.
type Engine struct {
	table  *Table
	tracer trace.Tracer
}

// NewEngine returns an engine backed by table.
func NewEngine(table *Table) *Engine {
	return &Engine{
		table:  table,
		tracer: otel.Tracer("rubric-engine"),
	}
}

// Table exposes the engine's reference table.
func (e *Engine) Table() *Table {
	return e.table
}

// Score evaluates text for the institution and document type. An unknown pair
// yields a zero-score placeholder together with a *model.RubricNotFoundError.
func (e *Engine) Score(ctx context.Context, text string, institutionID int, doc DocumentType) (Evaluation, error) {
	_, span := e.tracer.Start(ctx, "RubricEngine.Score",
		trace.WithAttributes(
			attribute.Int("institution.id", institutionID),
			attribute.String("document.type", string(doc)),
		),
	)
	defer span.End()

	processed := Preprocess(text)
	words := len(strings.Fields(processed))

	profile, ok := e.table.Lookup(institutionID, doc)
	if !ok {
		err := &model.RubricNotFoundError{InstitutionID: institutionID, DocumentType: string(doc)}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Evaluation{
			Score:     0,
			Feedback:  []string{err.Error()},
			WordCount: words,
		}, err
	}

	raws := make([]float64, len(profile.Criteria))
	rounded := make([]int, len(profile.Criteria))
	per := make(map[string]int, len(profile.Criteria))
	var total, weights float64
	for i, c := range profile.Criteria {
		raws[i] = criterionScore(c, processed)
		rounded[i] = int(math.Round(raws[i]))
		per[c.Name] = rounded[i]
		total += raws[i] * c.Weight
		weights += c.Weight
	}

	overall := float64(minScore)
	if weights > 0 {
		overall = math.Round(total/weights*10) / 10
	}
	overall = math.Min(maxScore, math.Max(minScore, overall))

	ev := Evaluation{
		Score:           overall,
		PerCriterion:    per,
		Feedback:        feedback(profile, overall, words, rounded),
		Recommendations: recommendations(profile, rounded),
		WordCount:       words,
	}
	span.SetAttributes(
		attribute.Int("document.words", words),
		attribute.Float64("document.score", overall),
	)
	return ev, nil
}

// Preprocess collapses whitespace and strips characters outside word
// characters, whitespace and common punctuation.
func Preprocess(text string) string {
	s := whitespace.ReplaceAllString(text, " ")
	s = strings.TrimSpace(s)
	return disallowed.ReplaceAllString(s, "")
}

// criterionScore returns the unrounded 0..10 score of one criterion.
func criterionScore(c Criterion, text string) float64 {
	if len(c.patterns) == 0 {
		return 0
	}
	present := 0
	bonus := 0
	for _, re := range c.patterns {
		n := len(re.FindAllStringIndex(text, -1))
		if n > 0 {
			present++
		}
		if c.Weight >= bonusWeightMin && n > 1 {
			bonus += min(maxBonus, n-1)
		}
	}
	score := maxScore*float64(present)/float64(len(c.patterns)) + float64(bonus)
	return math.Min(maxScore, score)
}

func feedback(p *Profile, overall float64, words int, scores []int) []string {
	out := make([]string, 0, len(scores)+3)

	switch {
	case overall < 4:
		out = append(out, fmt.Sprintf("This document needs significant improvement to meet %s's standards.", p.Institution))
	case overall < 7:
		out = append(out, fmt.Sprintf("This document is average but could be significantly stronger for %s.", p.Institution))
	case overall < 9:
		out = append(out, fmt.Sprintf("This is a strong document that meets most of %s's standards.", p.Institution))
	default:
		out = append(out, fmt.Sprintf("This is an excellent document that strongly aligns with %s's expectations.", p.Institution))
	}

	if words < p.MinimumWords {
		out = append(out, fmt.Sprintf("The document is too short (%d words). Aim for at least %d words to fully address all criteria.", words, p.MinimumWords))
	} else if float64(words) > float64(p.IdealWords)*tooLongFactor {
		out = append(out, fmt.Sprintf("The document is too long (%d words). Consider focusing your message to around %d words for better impact.", words, p.IdealWords))
	}

	for i, c := range p.Criteria {
		switch {
		case scores[i] < 5:
			out = append(out, fmt.Sprintf("Strengthen %q (score: %d/10). Consider incorporating terms like: %s.", c.Name, scores[i], strings.Join(firstN(c.Keywords, 3), ", ")))
		case scores[i] < 8:
			out = append(out, fmt.Sprintf("Enhance your discussion of %q (score: %d/10). Provide more specific examples.", c.Name, scores[i]))
		}
	}

	out = append(out, fmt.Sprintf("To succeed at %s, focus on %s.", p.Institution, strings.ToLower(p.Emphasis)))
	return out
}

func recommendations(p *Profile, scores []int) []string {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	out := make([]string, 0, recommendationCount+1)
	for _, i := range firstN(idx, recommendationCount) {
		name := p.Criteria[i].Name
		switch {
		case scores[i] < 3:
			out = append(out, fmt.Sprintf("Missing %s: This is a critical area for %s. Add a dedicated paragraph that addresses this directly using specific examples.", name, p.Institution))
		case scores[i] < 6:
			out = append(out, fmt.Sprintf("Strengthen %s: Expand your current content with more specific details and examples that demonstrate this quality.", name))
		default:
			out = append(out, fmt.Sprintf("Enhance %s: While present, this could be more impactful with quantifiable results or more vivid examples.", name))
		}
	}
	out = append(out, fmt.Sprintf("Strategic focus: For %s, ensure your %s emphasizes %s throughout the document.", p.Institution, p.DocumentType.Noun(), strings.ToLower(p.Emphasis)))
	return out
}

func firstN[T any](s []T, n int) []T {
	if len(s) < n {
		return s
	}
	return s[:n]
}
