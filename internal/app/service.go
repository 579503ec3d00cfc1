// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/admitcast/internal/adapters/repository"
	"github.com/okian/admitcast/internal/domain/blend"
	"github.com/okian/admitcast/internal/domain/classifier"
	"github.com/okian/admitcast/internal/domain/forecast"
	"github.com/okian/admitcast/internal/domain/institution"
	"github.com/okian/admitcast/internal/domain/model"
	"github.com/okian/admitcast/internal/domain/rubric"
	"github.com/okian/admitcast/pkg/logger"
	"github.com/okian/admitcast/pkg/metrics"
)

// ErrNotStarted is returned by operations invoked before Start.
var ErrNotStarted = errors.New("service not started")

// Service implements the API dependencies for the forecasting system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	pipeline  *forecast.Pipeline
	engine    *rubric.Engine
	table     *rubric.Table
	directory *institution.Directory

	// Configuration
	modelSeed int64
	epochs    int

	// State
	started   bool
	startedAt time.Time
	forecasts atomic.Int64
	documents atomic.Int64

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore sets the historical record store. Defaults to an empty in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithRubricTable overrides the embedded rubric table.
func WithRubricTable(t *rubric.Table) Option {
	return func(s *Service) {
		if t != nil {
			s.table = t
		}
	}
}

// WithDirectory overrides the embedded institution directory.
func WithDirectory(d *institution.Directory) Option {
	return func(s *Service) {
		if d != nil {
			s.directory = d
		}
	}
}

// WithModelSeed sets the classifier initializer seed.
func WithModelSeed(seed int64) Option {
	return func(s *Service) {
		s.modelSeed = seed
	}
}

// WithEpochs sets the number of training epochs per forecast.
func WithEpochs(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.epochs = n
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		modelSeed: 42,
		epochs:    20,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start loads reference data and wires the forecasting pipeline.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting forecasting service...")

	if s.store == nil {
		s.store = repository.NewInMemoryStore()
		s.logger.Warn(ctx, "no record store configured, using an empty in-memory store")
	}
	if s.table == nil {
		t, err := rubric.DefaultTable()
		if err != nil {
			return fmt.Errorf("failed to load rubric table: %w", err)
		}
		s.table = t
	}
	if s.directory == nil {
		d, err := institution.DefaultDirectory()
		if err != nil {
			return fmt.Errorf("failed to load institution directory: %w", err)
		}
		s.directory = d
	}

	s.engine = rubric.NewEngine(s.table)
	s.pipeline = forecast.NewPipeline(s.store,
		forecast.WithLogger(s.logger.Named("forecast")),
		forecast.WithClassifierOptions(
			classifier.WithSeed(s.modelSeed),
			classifier.WithEpochs(s.epochs),
		),
	)

	records := s.store.Count(ctx)
	metrics.UpdateRepositoryRecordsTotal(records)

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "forecasting service started",
		logger.Int("records", records),
		logger.Int("rubricProfiles", s.table.Len()),
		logger.Int("institutions", len(s.directory.List())),
		logger.Int("epochs", s.epochs),
	)

	return nil
}

// Stop releases the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping forecasting service...")

	if closer, ok := s.store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			s.logger.Warn(context.Background(), "failed to close record store", logger.Error(err))
		}
	}

	s.started = false
	s.logger.Info(context.Background(), "forecasting service stopped")
}

func (s *Service) components() (*forecast.Pipeline, *rubric.Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.pipeline, s.engine, nil
}

// Forecast validates req, runs the pipeline and scores any submitted
// documents concurrently, then blends. A scored document replaces the
// corresponding numeric score; a missing rubric keeps the numeric score.
func (s *Service) Forecast(ctx context.Context, req model.ForecastRequest) (model.ForecastResult, error) {
	start := time.Now()
	res, err := s.forecast(ctx, req)
	metrics.RecordForecastLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		metrics.RecordForecast("error")
		metrics.RecordErrorByComponent("forecast", errorType(err))
		return model.ForecastResult{}, err
	}
	metrics.RecordForecast("success")
	s.forecasts.Add(1)
	return res, nil
}

func (s *Service) forecast(ctx context.Context, req model.ForecastRequest) (model.ForecastResult, error) {
	if err := validateStruct(&req); err != nil {
		return model.ForecastResult{}, err
	}
	family, err := model.ParseEnglishFamily(req.EnglishTestFamily)
	if err != nil {
		return model.ForecastResult{}, err
	}
	pipeline, engine, err := s.components()
	if err != nil {
		return model.ForecastResult{}, err
	}

	candidate := model.CandidateProfile{
		InstitutionID:         *req.InstitutionID,
		StandardizedTestScore: *req.StandardizedTestScore,
		EnglishFamily:         family,
		EnglishTestScore:      *req.EnglishTestScore,
		WorkExperienceMonths:  *req.WorkExperienceMonths,
		PublicationCount:      *req.PublicationCount,
		SOPScore:              *req.SOPScore,
		LORScore:              *req.LORScore,
		SOPText:               req.SOPText,
		LORText:               req.LORText,
	}
	requestID := model.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	log := s.logger.With(logger.String("request_id", requestID), logger.Int("institution_id", candidate.InstitutionID))

	var (
		result model.ForecastResult
		sopEv  *rubric.Evaluation
		lorEv  *rubric.Evaluation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := pipeline.Run(gctx, candidate)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if strings.TrimSpace(candidate.SOPText) != "" {
		g.Go(func() error {
			sopEv = s.scoreOptional(gctx, log, engine, candidate.SOPText, candidate.InstitutionID, rubric.SOP)
			return nil
		})
	}
	if strings.TrimSpace(candidate.LORText) != "" {
		g.Go(func() error {
			lorEv = s.scoreOptional(gctx, log, engine, candidate.LORText, candidate.InstitutionID, rubric.LOR)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error(ctx, "forecast failed", logger.Error(err))
		return model.ForecastResult{}, err
	}

	sop, lor := candidate.SOPScore, candidate.LORScore
	if sopEv != nil || lorEv != nil {
		result.Documents = make(map[string]model.DocumentEvaluation, 2)
	}
	if sopEv != nil {
		result.Documents[string(rubric.SOP)] = *sopEv
		sop = sopEv.Score
	}
	if lorEv != nil {
		result.Documents[string(rubric.LOR)] = *lorEv
		lor = lorEv.Score
	}
	result.Probability = blend.Blend(result.ModelProbability, sop, lor)
	result.RequestID = requestID

	log.Info(ctx, "forecast computed",
		logger.Float64("probability", result.Probability),
		logger.Float64("modelProbability", result.ModelProbability),
		logger.Int("cohort", len(result.TrainingRecords)),
		logger.Bool("sopScored", sopEv != nil),
		logger.Bool("lorScored", lorEv != nil),
	)
	return result, nil
}

// scoreOptional returns nil when the document has no rubric so the caller
// falls back to the numeric score.
func (s *Service) scoreOptional(ctx context.Context, log logger.Logger, engine *rubric.Engine, text string, institutionID int, doc rubric.DocumentType) *rubric.Evaluation {
	ev, err := s.score(ctx, engine, text, institutionID, doc)
	if err != nil {
		log.Warn(ctx, "document not scored, keeping numeric score",
			logger.String("documentType", string(doc)),
			logger.Error(err),
		)
		return nil
	}
	return &ev
}

func (s *Service) score(ctx context.Context, engine *rubric.Engine, text string, institutionID int, doc rubric.DocumentType) (rubric.Evaluation, error) {
	start := time.Now()
	ev, err := engine.Score(ctx, text, institutionID, doc)
	if err != nil {
		metrics.RecordRubricNotFound()
		return ev, err
	}
	metrics.RecordDocumentScore(string(doc), ev.Score, float64(time.Since(start).Microseconds())/1000)
	s.documents.Add(1)
	return ev, nil
}

// ScoreDocument evaluates one document. Unknown institution or document type
// yields the not-found placeholder without an error.
func (s *Service) ScoreDocument(ctx context.Context, req model.DocumentRequest) (model.DocumentEvaluation, error) {
	if err := validateStruct(&req); err != nil {
		return model.DocumentEvaluation{}, err
	}
	_, engine, err := s.components()
	if err != nil {
		return model.DocumentEvaluation{}, err
	}

	doc, _ := rubric.ParseDocumentType(req.DocumentType)
	ev, err := s.score(ctx, engine, req.Document, *req.InstitutionID, doc)
	var nf *model.RubricNotFoundError
	if errors.As(err, &nf) {
		s.logger.Debug(ctx, "no rubric for document",
			logger.Int("institution_id", nf.InstitutionID),
			logger.String("documentType", nf.DocumentType),
		)
		return ev, nil
	}
	return ev, err
}

// Institutions lists the directory, filtered by query when non-empty.
func (s *Service) Institutions(_ context.Context, query string) []institution.Institution {
	s.mu.RLock()
	d := s.directory
	s.mu.RUnlock()
	if d == nil {
		return nil
	}
	return d.Search(query)
}

// Institution returns one directory entry.
func (s *Service) Institution(_ context.Context, id int) (institution.Institution, error) {
	s.mu.RLock()
	d := s.directory
	s.mu.RUnlock()
	if d == nil {
		return institution.Institution{}, ErrNotStarted
	}
	return d.Get(id)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":   s.started,
		"modelSeed": s.modelSeed,
		"epochs":    s.epochs,
		"forecasts": s.forecasts.Load(),
		"documents": s.documents.Load(),
	}

	if s.started {
		records := s.store.Count(context.Background())
		stats["records"] = records
		stats["rubricProfiles"] = s.table.Len()
		stats["institutions"] = len(s.directory.List())
		stats["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())

		metrics.UpdateRepositoryRecordsTotal(records)
	}

	return stats
}

func errorType(err error) string {
	var (
		verr *model.ValidationError
		nerr *model.NoHistoricalDataError
		derr *model.DegenerateNormalizationError
	)
	switch {
	case errors.As(err, &verr):
		return "validation"
	case errors.As(err, &nerr):
		return "no_historical_data"
	case errors.As(err, &derr):
		return "degenerate_normalization"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}
