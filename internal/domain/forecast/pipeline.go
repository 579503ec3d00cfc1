// Package forecast runs one admission forecast: fetch the institution's
// cohort, normalize, train a fresh classifier, predict and blend.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/admitcast/internal/domain/blend"
	"github.com/okian/admitcast/internal/domain/classifier"
	"github.com/okian/admitcast/internal/domain/features"
	"github.com/okian/admitcast/internal/domain/model"
	"github.com/okian/admitcast/pkg/logger"
	"github.com/okian/admitcast/pkg/metrics"
)

// CohortSource supplies decided historical records for an institution.
type CohortSource interface {
	FetchDecided(ctx context.Context, institutionID int, family model.EnglishFamily) ([]model.HistoricalRecord, error)
}

// Pipeline is safe for concurrent use; every Run trains its own model.
type Pipeline struct {
	store          CohortSource
	classifierOpts []classifier.Option
	log            logger.Logger
	tracer         trace.Tracer
}

// NewPipeline returns a pipeline reading cohorts from store.
func NewPipeline(store CohortSource, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:  store,
		log:    logger.Nop(),
		tracer: otel.Tracer("forecast-pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run produces the blended forecast for candidate using its numeric SOP and
// LOR scores.
func (p *Pipeline) Run(ctx context.Context, candidate model.CandidateProfile) (model.ForecastResult, error) {
	ctx, span := p.tracer.Start(ctx, "Pipeline.Run",
		trace.WithAttributes(
			attribute.Int("institution.id", candidate.InstitutionID),
			attribute.String("english.family", string(candidate.EnglishFamily)),
		),
	)
	defer span.End()

	res, err := p.run(ctx, candidate)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.ForecastResult{}, err
	}
	span.SetAttributes(attribute.Float64("forecast.probability", res.Probability))
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, candidate model.CandidateProfile) (model.ForecastResult, error) {
	family := candidate.EnglishFamily
	cohort, err := p.fetch(ctx, candidate.InstitutionID, family)
	if err != nil {
		return model.ForecastResult{}, err
	}

	raw := make([]model.Features, len(cohort))
	labels := make([]float64, len(cohort))
	display := make([]model.TrainingRecord, len(cohort))
	for i, r := range cohort {
		raw[i], _ = r.Features(family)
		labels[i] = float64(r.Outcome.Label())
		display[i] = model.TrainingRecord{
			StandardizedTestScore: raw[i][model.FeatureStandardizedTest],
			EnglishTestScore:      raw[i][model.FeatureEnglishTest],
			WorkExperienceMonths:  r.WorkExperienceMonths,
			PublicationCount:      r.PublicationCount,
			Label:                 r.Outcome.Label(),
		}
	}

	factors := features.ComputeFactors(candidate.Features(), raw)
	samples, err := features.NormalizeAll(raw, factors)
	if err != nil {
		return model.ForecastResult{}, withInstitution(err, candidate.InstitutionID)
	}
	x, err := features.Normalize(candidate.Features(), factors)
	if err != nil {
		return model.ForecastResult{}, withInstitution(err, candidate.InstitutionID)
	}

	prob, err := p.trainAndPredict(ctx, candidate.InstitutionID, samples, labels, x)
	if err != nil {
		return model.ForecastResult{}, err
	}

	return model.ForecastResult{
		Probability:      blend.Blend(prob, candidate.SOPScore, candidate.LORScore),
		ModelProbability: prob,
		TrainingRecords:  display,
	}, nil
}

// fetch returns the decided cohort with the family's English score present.
func (p *Pipeline) fetch(ctx context.Context, institutionID int, family model.EnglishFamily) ([]model.HistoricalRecord, error) {
	ctx, span := p.tracer.Start(ctx, "Pipeline.FetchCohort")
	defer span.End()

	records, err := p.store.FetchDecided(ctx, institutionID, family)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch cohort for institution %d: %w", institutionID, err)
	}

	cohort := records[:0:0]
	for _, r := range records {
		if _, ok := r.EnglishScore(family); ok && r.Outcome.Decided() {
			cohort = append(cohort, r)
		}
	}
	span.SetAttributes(attribute.Int("cohort.size", len(cohort)))
	if len(cohort) == 0 {
		return nil, &model.NoHistoricalDataError{InstitutionID: institutionID, EnglishField: family.Field()}
	}
	return cohort, nil
}

func (p *Pipeline) trainAndPredict(ctx context.Context, institutionID int, samples []model.Features, labels []float64, x model.Features) (float64, error) {
	ctx, span := p.tracer.Start(ctx, "Pipeline.Train",
		trace.WithAttributes(attribute.Int("cohort.size", len(samples))),
	)
	defer span.End()

	start := time.Now()
	m, err := classifier.Train(ctx, samples, labels, p.classifierOpts...)
	if err != nil {
		if errors.Is(err, classifier.ErrEmptyTrainingSet) {
			return 0, &model.NoHistoricalDataError{InstitutionID: institutionID}
		}
		return 0, fmt.Errorf("failed to train classifier for institution %d: %w", institutionID, err)
	}
	defer m.Release()

	took := time.Since(start)
	st := m.Stats()
	metrics.RecordTraining(float64(took.Microseconds())/1000, st.Samples, st.Loss)
	p.log.Debug(ctx, "classifier trained",
		logger.Int("institution_id", institutionID),
		logger.Int("cohort", st.Samples),
		logger.Int("steps", st.Steps),
		logger.Float64("loss", st.Loss),
		logger.Duration("took", took),
	)

	prob, err := m.Predict(x)
	if err != nil {
		return 0, fmt.Errorf("failed to predict: %w", err)
	}
	return prob, nil
}

func withInstitution(err error, institutionID int) error {
	var derr *model.DegenerateNormalizationError
	if errors.As(err, &derr) {
		derr.InstitutionID = institutionID
	}
	return err
}
