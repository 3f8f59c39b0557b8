package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Ayash-Bera/querygen/internal/dedup"
	"github.com/Ayash-Bera/querygen/internal/enhancer"
	"github.com/Ayash-Bera/querygen/internal/models"
	"github.com/Ayash-Bera/querygen/internal/scoring"
	"github.com/Ayash-Bera/querygen/internal/templates"
	"github.com/Ayash-Bera/querygen/internal/textproc"
	"github.com/Ayash-Bera/querygen/pkg/utils"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Stage is a state of one generation run.
type Stage string

const (
	StageStarted           Stage = "STARTED"
	StageTemplateSelection Stage = "TEMPLATE_SELECTION"
	StageAIEnhancement     Stage = "AI_ENHANCEMENT"
	StageScoring           Stage = "SCORING"
	StageDeduplication     Stage = "DEDUPLICATION"
	StageValidation        Stage = "VALIDATION"
	StagePersisted         Stage = "PERSISTED"
	StageCompleted         Stage = "COMPLETED"
	StagePartial           Stage = "PARTIAL"
	StageFailed            Stage = "FAILED"
)

const (
	DefaultMaxQueries         = 10
	DefaultPersistConcurrency = 8
)

type TemplateSource interface {
	SelectTemplates(ctx context.Context, req *models.QueryGenerationRequest) ([]models.QueryTemplate, error)
	GenerateFromTemplates(ctx context.Context, tpls []models.QueryTemplate, req *models.QueryGenerationRequest) ([]models.GeneratedQuery, []*templates.ValidationError)
	RecordConfidence(ctx context.Context, templateID string, score float64) error
}

type Enhancer interface {
	EnhanceAll(ctx context.Context, baseQuery string, criteria models.QueryCriteria) []enhancer.Outcome
}

type Scorer interface {
	ScoreAndRank(ref scoring.Reference, candidates []models.GeneratedQuery) []models.GeneratedQuery
}

type Deduplicator interface {
	Deduplicate(candidates []models.GeneratedQuery) dedup.Result
}

// Dependencies wires a GenerationService. Enhancer may be nil when no AI
// provider is configured.
type Dependencies struct {
	Templates          TemplateSource
	Enhancer           Enhancer
	Scorer             Scorer
	Deduplicator       Deduplicator
	Queries            models.GeneratedQueryRepository
	PerformanceLogs    models.PerformanceLogRepository
	Metrics            *Metrics
	PersistConcurrency int
}

type GenerationService struct {
	templates          TemplateSource
	enhancer           Enhancer
	scorer             Scorer
	dedup              Deduplicator
	queries            models.GeneratedQueryRepository
	perfLogs           models.PerformanceLogRepository
	metrics            *Metrics
	persistConcurrency int
	logger             *logrus.Logger
}

func NewGenerationService(deps Dependencies, logger *logrus.Logger) *GenerationService {
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	if deps.PersistConcurrency <= 0 {
		deps.PersistConcurrency = DefaultPersistConcurrency
	}
	return &GenerationService{
		templates:          deps.Templates,
		enhancer:           deps.Enhancer,
		scorer:             deps.Scorer,
		dedup:              deps.Deduplicator,
		queries:            deps.Queries,
		perfLogs:           deps.PerformanceLogs,
		metrics:            deps.Metrics,
		persistConcurrency: deps.PersistConcurrency,
		logger:             logger,
	}
}

// run carries the state of one Generate call.
type run struct {
	req        models.QueryGenerationRequest
	stage      Stage
	start      time.Time
	stageStart time.Time
	result     *models.QueryGenerationResult
	logger     *logrus.Entry
}

func (r *run) transition(to Stage) {
	r.logger.WithFields(logrus.Fields{"from": r.stage, "to": to}).Debug("Generation stage transition")
	r.stage = to
	r.stageStart = time.Now()
}

func (r *run) warn(msg string) {
	r.result.Errors = append(r.result.Errors, msg)
}

// Generate runs the whole pipeline for one request. On a PipelineError the
// returned result has status failed and carries no queries.
func (s *GenerationService) Generate(ctx context.Context, req models.QueryGenerationRequest) (*models.QueryGenerationResult, error) {
	prepareRequest(&req)

	now := time.Now()
	r := &run{
		req:        req,
		stage:      StageStarted,
		start:      now,
		stageStart: now,
		result: &models.QueryGenerationResult{
			SearchID:      req.SearchID,
			BatchID:       req.BatchID,
			OriginalQuery: req.OriginalQuery,
			Queries:       []models.GeneratedQuery{},
			Metrics:       models.GenerationMetrics{CoverageByCriteria: emptyCoverage()},
		},
		logger: s.logger.WithFields(logrus.Fields{
			"search_id":    req.SearchID,
			"batch_id":     req.BatchID,
			"requested_by": req.RequestedBy,
		}),
	}

	r.logger.WithFields(logrus.Fields{
		"query":       req.OriginalQuery,
		"max_queries": req.Options.MaxQueries,
		"min_score":   req.Options.MinRelevanceScore,
		"ai_enabled":  req.Options.EnableAIEnhancement,
	}).Info("Starting query generation")

	candidates, err := s.selectTemplates(ctx, r)
	if err != nil {
		return s.fail(ctx, r, err)
	}

	candidates, err = s.enhance(ctx, r, candidates)
	if err != nil {
		return s.fail(ctx, r, err)
	}

	scored, err := s.score(ctx, r, candidates)
	if err != nil {
		return s.fail(ctx, r, err)
	}

	dres, err := s.deduplicate(ctx, r, scored)
	if err != nil {
		return s.fail(ctx, r, err)
	}

	if err := s.validate(ctx, r, scored); err != nil {
		return s.fail(ctx, r, err)
	}

	finals, err := s.persist(ctx, r, scored)
	if err != nil {
		return s.fail(ctx, r, err)
	}

	return s.complete(r, scored, finals, dres), nil
}

func prepareRequest(req *models.QueryGenerationRequest) {
	req.OriginalQuery = strings.TrimSpace(req.OriginalQuery)
	if req.SearchID == "" {
		req.SearchID = utils.NewID()
	}
	if req.BatchID == "" {
		req.BatchID = utils.NewID()
	}
	if req.Options.MaxQueries <= 0 {
		req.Options.MaxQueries = DefaultMaxQueries
	}
	req.Options.MinRelevanceScore = math.Max(0, math.Min(1, req.Options.MinRelevanceScore))
}

func (s *GenerationService) checkContext(ctx context.Context, r *run) error {
	if err := ctx.Err(); err != nil {
		return &PipelineError{Code: CodeGenerationCancelled, Stage: r.stage, Request: r.req, Err: err}
	}
	return nil
}

// guard turns a panic inside a stage into a coded PipelineError.
func (s *GenerationService) guard(r *run, code ErrorCode, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PipelineError{Code: code, Stage: r.stage, Request: r.req, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	if err := fn(); err != nil {
		var perr *PipelineError
		if errors.As(err, &perr) {
			return err
		}
		return &PipelineError{Code: code, Stage: r.stage, Request: r.req, Err: err}
	}
	return nil
}

func (s *GenerationService) selectTemplates(ctx context.Context, r *run) ([]models.GeneratedQuery, error) {
	if err := s.checkContext(ctx, r); err != nil {
		return nil, err
	}
	r.transition(StageTemplateSelection)
	start := r.stageStart

	var (
		candidates []models.GeneratedQuery
		rejected   []*templates.ValidationError
		selected   []models.QueryTemplate
	)
	err := s.guard(r, CodeTemplateSelectionFailed, func() error {
		var err error
		selected, err = s.templates.SelectTemplates(ctx, &r.req)
		if err != nil {
			return err
		}
		candidates, rejected = s.templates.GenerateFromTemplates(ctx, selected, &r.req)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logStage(ctx, r, models.OperationTemplateSelection, start, models.StageStatusCompleted, map[string]interface{}{
		"templates":  len(selected),
		"candidates": len(candidates),
		"rejected":   len(rejected),
	})
	return candidates, nil
}

func (s *GenerationService) enhance(ctx context.Context, r *run, candidates []models.GeneratedQuery) ([]models.GeneratedQuery, error) {
	if err := s.checkContext(ctx, r); err != nil {
		return nil, err
	}
	start := time.Now()

	if !r.req.Options.EnableAIEnhancement {
		s.logStage(ctx, r, models.OperationAIEnhancement, start, models.StageStatusSkipped, map[string]interface{}{"reason": "disabled"})
		return candidates, nil
	}
	if s.enhancer == nil {
		r.warn("ai enhancement requested but no AI provider is configured")
		s.logStage(ctx, r, models.OperationAIEnhancement, start, models.StageStatusSkipped, map[string]interface{}{"reason": "no_provider"})
		return candidates, nil
	}

	r.transition(StageAIEnhancement)
	outcomes := s.enhancer.EnhanceAll(ctx, r.req.OriginalQuery, r.req.Criteria)

	added, failures, dropped := 0, 0, 0
	snapshot := r.req.Criteria.Snapshot()
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			failures++
			r.warn(outcome.Err.Error())
			continue
		}
		for _, text := range outcome.Queries {
			if reason, _ := templates.Validate(text); reason != "" {
				dropped++
				r.logger.WithFields(logrus.Fields{"text": text, "reason": reason}).Debug("Dropping invalid AI candidate")
				continue
			}
			candidates = append(candidates, models.GeneratedQuery{
				ID:            utils.NewID(),
				SearchID:      r.req.SearchID,
				BatchID:       r.req.BatchID,
				OriginalQuery: r.req.OriginalQuery,
				Text:          text,
				QueryType:     enhancer.QueryTypeFor(outcome.Type),
				Criteria:      snapshot,
				Status:        models.QueryStatusPending,
				Metadata: map[string]interface{}{
					models.MetaAIEnhanced:       true,
					models.MetaEnhancementType:  string(outcome.Type),
					models.MetaProcessingTimeMs: time.Since(start).Milliseconds(),
				},
			})
			added++
		}
	}

	status := models.StageStatusCompleted
	if failures > 0 && failures == len(outcomes) {
		status = models.StageStatusFailed
	}
	s.logStage(ctx, r, models.OperationAIEnhancement, start, status, map[string]interface{}{
		"types":    len(outcomes),
		"failures": failures,
		"added":    added,
		"dropped":  dropped,
	})
	return candidates, nil
}

func (s *GenerationService) score(ctx context.Context, r *run, candidates []models.GeneratedQuery) ([]models.GeneratedQuery, error) {
	if err := s.checkContext(ctx, r); err != nil {
		return nil, err
	}
	r.transition(StageScoring)
	start := r.stageStart

	for i := range candidates {
		candidates[i].Status = models.QueryStatusProcessing
	}

	var scored []models.GeneratedQuery
	err := s.guard(r, CodeScoringFailed, func() error {
		scored = s.scorer.ScoreAndRank(scoring.Reference{
			OriginalQuery: r.req.OriginalQuery,
			Criteria:      r.req.Criteria,
		}, candidates)
		if len(scored) != len(candidates) {
			return fmt.Errorf("scorer returned %d of %d candidates", len(scored), len(candidates))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, q := range scored {
		if q.TemplateID == nil {
			continue
		}
		if err := s.templates.RecordConfidence(ctx, *q.TemplateID, q.Scores.Overall); err != nil {
			r.logger.WithError(err).Warn("Failed to record template confidence")
		}
	}

	s.logStage(ctx, r, models.OperationScoring, start, models.StageStatusCompleted, map[string]interface{}{
		"candidates": len(scored),
	})
	return scored, nil
}

func (s *GenerationService) deduplicate(ctx context.Context, r *run, scored []models.GeneratedQuery) (dedup.Result, error) {
	if err := s.checkContext(ctx, r); err != nil {
		return dedup.Result{}, err
	}
	r.transition(StageDeduplication)
	start := r.stageStart

	var result dedup.Result
	err := s.guard(r, CodeDeduplicationFailed, func() error {
		result = s.dedup.Deduplicate(scored)
		dedup.Apply(scored, result)
		return nil
	})
	if err != nil {
		return dedup.Result{}, err
	}

	s.logStage(ctx, r, models.OperationDeduplication, start, models.StageStatusCompleted, map[string]interface{}{
		"processed":  result.Stats.TotalProcessed,
		"duplicates": result.Stats.DuplicatesRemoved,
		"unique":     result.Stats.UniqueQueries,
	})
	return result, nil
}

// validate applies the score threshold and the result cap. scored is in
// rank order, so truncation keeps the best candidates.
func (s *GenerationService) validate(ctx context.Context, r *run, scored []models.GeneratedQuery) error {
	if err := s.checkContext(ctx, r); err != nil {
		return err
	}
	r.transition(StageValidation)
	start := r.stageStart

	accepted, belowMin, truncated := 0, 0, 0
	for i := range scored {
		q := &scored[i]
		if q.Status == models.QueryStatusCancelled {
			continue
		}
		if q.Metadata == nil {
			q.Metadata = map[string]interface{}{}
		}
		switch {
		case q.Scores.Overall < r.req.Options.MinRelevanceScore:
			q.Status = models.QueryStatusFailed
			q.Metadata[models.MetaRejectedReason] = "below_min_score"
			belowMin++
		case accepted >= r.req.Options.MaxQueries:
			q.Status = models.QueryStatusFailed
			q.Metadata[models.MetaRejectedReason] = "truncated"
			truncated++
		default:
			q.Status = models.QueryStatusCompleted
			accepted++
		}
	}

	s.logStage(ctx, r, models.OperationValidation, start, models.StageStatusCompleted, map[string]interface{}{
		"accepted":        accepted,
		"below_min_score": belowMin,
		"truncated":       truncated,
	})
	return nil
}

// persist writes every candidate concurrently and returns the completed ones
// that were stored. Individual failures are reported; only a total failure
// is fatal.
func (s *GenerationService) persist(ctx context.Context, r *run, all []models.GeneratedQuery) ([]models.GeneratedQuery, error) {
	if err := s.checkContext(ctx, r); err != nil {
		return nil, err
	}
	r.stageStart = time.Now()
	start := r.stageStart

	var (
		mu     sync.Mutex
		merr   *multierror.Error
		failed = make(map[string]struct{})
		g      errgroup.Group
	)
	g.SetLimit(s.persistConcurrency)

	for i := range all {
		q := &all[i]
		g.Go(func() error {
			if err := s.queries.Create(ctx, q); err != nil {
				mu.Lock()
				merr = multierror.Append(merr, &PersistenceError{QueryID: q.ID, Err: err})
				failed[q.ID] = struct{}{}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(all) > 0 && len(failed) == len(all) {
		return nil, &PipelineError{Code: CodePersistenceFailed, Stage: r.stage, Request: r.req, Err: merr.ErrorOrNil()}
	}

	if merr != nil {
		for _, e := range merr.Errors {
			r.warn(e.Error())
		}
		r.logger.WithError(merr).WithField("failed", len(failed)).Warn("Some generated queries were not persisted")
	}

	finals := []models.GeneratedQuery{}
	for _, q := range all {
		if _, bad := failed[q.ID]; !bad && q.Status == models.QueryStatusCompleted {
			finals = append(finals, q)
		}
	}

	r.transition(StagePersisted)
	s.logStage(ctx, r, models.OperationPersistence, start, models.StageStatusCompleted, map[string]interface{}{
		"persisted": len(all) - len(failed),
		"failed":    len(failed),
	})
	return finals, nil
}

func (s *GenerationService) complete(r *run, scored, finals []models.GeneratedQuery, dres dedup.Result) *models.QueryGenerationResult {
	result := r.result
	result.Queries = finals
	result.Metrics = models.GenerationMetrics{
		TotalGenerated:     len(scored),
		TotalDuplicates:    len(dres.Duplicates),
		AverageScore:       averageScore(finals),
		DiversityScore:     batchDiversity(finals),
		ProcessingTimeMs:   time.Since(r.start).Milliseconds(),
		CoverageByCriteria: coverage(r.req.Criteria, finals),
	}

	if len(finals) > 0 {
		result.Status = models.ResultStatusCompleted
		r.transition(StageCompleted)
	} else {
		result.Status = models.ResultStatusPartial
		r.transition(StagePartial)
		if len(scored) == 0 {
			r.warn("no candidate queries could be generated for the request")
		} else {
			r.warn(fmt.Sprintf("no queries met the minimum relevance score %.2f (%d candidates, %d duplicates)",
				r.req.Options.MinRelevanceScore, len(scored), len(dres.Duplicates)))
		}
	}

	for _, q := range scored {
		s.metrics.Queries.WithLabelValues(string(q.Status)).Inc()
	}
	s.metrics.Runs.WithLabelValues(string(result.Status)).Inc()

	r.logger.WithFields(logrus.Fields{
		"status":        result.Status,
		"queries":       len(finals),
		"candidates":    len(scored),
		"duplicates":    len(dres.Duplicates),
		"average_score": result.Metrics.AverageScore,
		"duration_ms":   result.Metrics.ProcessingTimeMs,
	}).Info("Query generation finished")

	return result
}

func (s *GenerationService) fail(ctx context.Context, r *run, err error) (*models.QueryGenerationResult, error) {
	var perr *PipelineError
	if !errors.As(err, &perr) {
		perr = &PipelineError{Code: CodeGenerationFailed, Stage: r.stage, Request: r.req, Err: err}
	}

	failedAt, since := perr.Stage, r.stageStart
	r.transition(StageFailed)

	// Record the failure even when ctx itself is what ended the run.
	s.logStage(context.WithoutCancel(ctx), r, operationFor(perr.Code, failedAt), since, models.StageStatusFailed, map[string]interface{}{
		"code":  string(perr.Code),
		"error": perr.Err.Error(),
	})

	result := r.result
	result.Queries = []models.GeneratedQuery{}
	result.Status = models.ResultStatusFailed
	result.Metrics.ProcessingTimeMs = time.Since(r.start).Milliseconds()
	r.warn(perr.Error())

	s.metrics.Runs.WithLabelValues(string(result.Status)).Inc()
	r.logger.WithError(perr).WithField("code", perr.Code).Error("Query generation failed")

	return result, perr
}

func operationFor(code ErrorCode, stage Stage) string {
	switch code {
	case CodeTemplateSelectionFailed:
		return models.OperationTemplateSelection
	case CodeScoringFailed:
		return models.OperationScoring
	case CodeDeduplicationFailed:
		return models.OperationDeduplication
	case CodePersistenceFailed:
		return models.OperationPersistence
	}
	switch stage {
	case StageAIEnhancement:
		return models.OperationAIEnhancement
	case StageScoring:
		return models.OperationScoring
	case StageDeduplication:
		return models.OperationDeduplication
	case StageValidation:
		return models.OperationValidation
	case StagePersisted:
		return models.OperationPersistence
	}
	return models.OperationTemplateSelection
}

func (s *GenerationService) logStage(ctx context.Context, r *run, operation string, start time.Time, status string, metadata map[string]interface{}) {
	end := time.Now()
	s.metrics.StageDuration.WithLabelValues(operation, status).Observe(end.Sub(start).Seconds())

	entry := &models.PerformanceLog{
		ID:          utils.NewID(),
		SearchID:    r.req.SearchID,
		BatchID:     r.req.BatchID,
		Operation:   operation,
		StartTime:   start,
		EndTime:     end,
		DurationMs:  end.Sub(start).Milliseconds(),
		Status:      status,
		Metadata:    metadata,
		RequestedBy: r.req.RequestedBy,
	}
	if err := s.perfLogs.Create(ctx, entry); err != nil {
		r.logger.WithError(err).WithField("operation", operation).Warn("Failed to write performance log")
	}
}

func averageScore(queries []models.GeneratedQuery) float64 {
	if len(queries) == 0 {
		return 0
	}
	total := 0.0
	for _, q := range queries {
		total += q.Scores.Overall
	}
	return total / float64(len(queries))
}

// batchDiversity is one minus the mean pairwise similarity of the results.
func batchDiversity(queries []models.GeneratedQuery) float64 {
	switch len(queries) {
	case 0:
		return 0
	case 1:
		return 1
	}
	total, pairs := 0.0, 0
	for i := range queries {
		for j := i + 1; j < len(queries); j++ {
			total += textproc.Similarity(queries[i].Text, queries[j].Text)
			pairs++
		}
	}
	return 1 - total/float64(pairs)
}

func emptyCoverage() models.CriteriaCoverage {
	return models.CriteriaCoverage{
		Countries:  []string{},
		Categories: []string{},
		Beats:      []string{},
		Languages:  []string{},
	}
}

// coverage lists the requested criteria values that at least one result
// mentions as a whole word. Snapshots only hold the first value per dimension.
func coverage(criteria models.QueryCriteria, queries []models.GeneratedQuery) models.CriteriaCoverage {
	texts := make([]string, len(queries))
	for i, q := range queries {
		texts[i] = " " + textproc.Normalize(q.Text) + " "
	}

	covered := func(dim models.Dimension) []string {
		out := []string{}
		for _, value := range criteria.Values(dim) {
			needle := " " + textproc.Normalize(value) + " "
			for _, text := range texts {
				if strings.Contains(text, needle) {
					out = append(out, value)
					break
				}
			}
		}
		sort.Strings(out)
		return out
	}

	return models.CriteriaCoverage{
		Countries:  covered(models.DimensionCountry),
		Categories: covered(models.DimensionCategory),
		Beats:      covered(models.DimensionBeat),
		Languages:  covered(models.DimensionLanguage),
	}
}
