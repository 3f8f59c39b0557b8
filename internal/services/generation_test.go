package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/Ayash-Bera/querygen/internal/cache"
	"github.com/Ayash-Bera/querygen/internal/dedup"
	"github.com/Ayash-Bera/querygen/internal/enhancer"
	"github.com/Ayash-Bera/querygen/internal/models"
	"github.com/Ayash-Bera/querygen/internal/optimizer"
	"github.com/Ayash-Bera/querygen/internal/repository"
	"github.com/Ayash-Bera/querygen/internal/scoring"
	"github.com/Ayash-Bera/querygen/internal/templates"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.QueryTemplate{}, &models.GeneratedQuery{}, &models.PerformanceLog{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// sqlite serializes writers; one connection avoids lock errors from the
	// persistence fan-out.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

type fixture struct {
	service *GenerationService
	repos   *repository.RepositoryManager
	metrics *Metrics
}

type fixtureOption func(*Dependencies)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	ctx := context.Background()
	repos := repository.NewRepositoryManager(newTestDB(t))

	engine := templates.NewEngine(repos.Template, cache.NewMemoryStore(100, time.Minute, nil), testLogger(), templates.Options{})
	_, err := engine.EnsureSeeded(ctx)
	require.NoError(t, err)

	scorer, err := scoring.NewScorer(scoring.DefaultWeights(), scoring.DefaultMinScore)
	require.NoError(t, err)
	deduplicator, err := dedup.New(dedup.DefaultOptions())
	require.NoError(t, err)

	metrics := NewMetrics(prometheus.NewRegistry())
	deps := Dependencies{
		Templates:       engine,
		Scorer:          scorer,
		Deduplicator:    deduplicator,
		Queries:         repos.GeneratedQuery,
		PerformanceLogs: repos.PerformanceLog,
		Metrics:         metrics,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	return &fixture{
		service: NewGenerationService(deps, testLogger()),
		repos:   repos,
		metrics: metrics,
	}
}

type stubProvider struct {
	fail func(req enhancer.CompletionRequest) bool
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Complete(_ context.Context, req enhancer.CompletionRequest) (string, error) {
	if p.fail != nil && p.fail(req) {
		return "", &enhancer.ProviderError{Provider: "stub", StatusCode: 503, Err: errors.New("upstream unavailable")}
	}
	return "1. technology reporters covering consumer gadgets\n2. startup journalists at tech blogs\n3. software industry editors", nil
}

func withEnhancer(p enhancer.Provider) fixtureOption {
	return func(d *Dependencies) {
		opt := optimizer.New(cache.NewMemoryStore(100, time.Minute, nil), optimizer.Options{
			Retry: optimizer.RetryConfig{MaxRetries: 0, Delay: time.Millisecond, CallTimeout: time.Second},
		}, nil, testLogger())
		d.Enhancer = enhancer.NewService(p, opt, testLogger(), enhancer.DefaultOptions())
	}
}

type lowScorer struct{}

func (lowScorer) ScoreAndRank(_ scoring.Reference, candidates []models.GeneratedQuery) []models.GeneratedQuery {
	out := make([]models.GeneratedQuery, len(candidates))
	copy(out, candidates)
	for i := range out {
		score := 0.45 - float64(i)*0.01
		if score < 0 {
			score = 0
		}
		out[i].Scores = models.QueryScores{Relevance: score, Diversity: score, Complexity: score, Overall: score}
	}
	return out
}

type panickingScorer struct{}

func (panickingScorer) ScoreAndRank(scoring.Reference, []models.GeneratedQuery) []models.GeneratedQuery {
	panic("weights not loaded")
}

type failingQueries struct {
	models.GeneratedQueryRepository
}

func (failingQueries) Create(context.Context, *models.GeneratedQuery) error {
	return errors.New("connection reset")
}

func baseRequest() models.QueryGenerationRequest {
	return models.QueryGenerationRequest{
		SearchID:      "search-1",
		BatchID:       "batch-1",
		OriginalQuery: "tech journalists",
		Criteria:      models.QueryCriteria{Categories: []string{"Technology"}},
		Options: models.GenerationOptions{
			MaxQueries:        5,
			MinRelevanceScore: 0.3,
		},
		RequestedBy: "user-1",
	}
}

func performanceLogs(t *testing.T, f *fixture, searchID string) map[string]string {
	t.Helper()
	logs, err := f.repos.PerformanceLog.GetBySearch(context.Background(), searchID)
	require.NoError(t, err)
	out := make(map[string]string, len(logs))
	for _, l := range logs {
		out[l.Operation] = l.Status
		assert.Equal(t, "user-1", l.RequestedBy)
	}
	return out
}

func TestGenerate_TemplateOnly(t *testing.T) {
	f := newFixture(t)

	result, err := f.service.Generate(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, models.ResultStatusCompleted, result.Status)
	require.NotEmpty(t, result.Queries)
	assert.LessOrEqual(t, len(result.Queries), 5)

	sawTechnology := false
	for _, q := range result.Queries {
		assert.Equal(t, models.QueryTypeBase, q.QueryType)
		assert.Equal(t, models.QueryStatusCompleted, q.Status)
		assert.GreaterOrEqual(t, q.Scores.Overall, 0.3)
		lower := strings.ToLower(q.Text)
		if strings.Contains(lower, "technology") && strings.Contains(lower, "journalist") {
			sawTechnology = true
		}
	}
	assert.True(t, sawTechnology, "expected a technology journalist query")

	for i := 1; i < len(result.Queries); i++ {
		assert.GreaterOrEqual(t, result.Queries[i-1].Scores.Overall, result.Queries[i].Scores.Overall)
	}

	assert.Equal(t, []string{"Technology"}, result.Metrics.CoverageByCriteria.Categories)
	assert.GreaterOrEqual(t, result.Metrics.TotalGenerated, len(result.Queries))
	assert.Greater(t, result.Metrics.AverageScore, 0.3)

	logs := performanceLogs(t, f, "search-1")
	assert.Equal(t, models.StageStatusSkipped, logs[models.OperationAIEnhancement])
	for _, op := range []string{
		models.OperationTemplateSelection, models.OperationScoring, models.OperationDeduplication,
		models.OperationValidation, models.OperationPersistence,
	} {
		assert.Equal(t, models.StageStatusCompleted, logs[op], op)
	}

	stored, err := f.service.ListQueries(context.Background(), "search-1")
	require.NoError(t, err)
	assert.Len(t, stored, result.Metrics.TotalGenerated)

	stats, err := f.service.QueryStats(context.Background(), "search-1")
	require.NoError(t, err)
	assert.Equal(t, int64(result.Metrics.TotalGenerated), stats.Total)
	assert.Equal(t, int64(len(result.Queries)), stats.ByStatus[models.QueryStatusCompleted])
	assert.Zero(t, stats.ByStatus[models.QueryStatusPending])

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Runs.WithLabelValues("completed")))
}

func TestGenerate_FillsMissingIdentifiers(t *testing.T) {
	f := newFixture(t)
	req := baseRequest()
	req.SearchID, req.BatchID = "", ""
	req.Options.MaxQueries = 0

	result, err := f.service.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, result.SearchID)
	assert.NotEmpty(t, result.BatchID)
	for _, q := range result.Queries {
		assert.Equal(t, result.SearchID, q.SearchID)
	}
}

func TestGenerate_LocalizationFailureKeepsRunCompleted(t *testing.T) {
	provider := &stubProvider{fail: func(req enhancer.CompletionRequest) bool {
		return strings.Contains(req.Prompt, "local media")
	}}
	f := newFixture(t, withEnhancer(provider))

	req := baseRequest()
	req.Criteria.Countries = []string{"US"}
	req.Options.EnableAIEnhancement = true
	req.Options.MaxQueries = 20

	result, err := f.service.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusCompleted, result.Status)

	var localization []string
	for _, msg := range result.Errors {
		if strings.Contains(msg, "ai enhancement (localization) failed") {
			localization = append(localization, msg)
		}
	}
	assert.Len(t, localization, 1)

	types := map[models.QueryType]int{}
	for _, q := range result.Queries {
		types[q.QueryType]++
	}
	assert.NotZero(t, types[models.QueryTypeBase])
	assert.Zero(t, types[models.QueryTypeLocalized])

	logs := performanceLogs(t, f, "search-1")
	assert.Equal(t, models.StageStatusCompleted, logs[models.OperationAIEnhancement])
}

func TestGenerate_AIWithoutProviderIsSkipped(t *testing.T) {
	f := newFixture(t)
	req := baseRequest()
	req.Options.EnableAIEnhancement = true

	result, err := f.service.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusCompleted, result.Status)
	assert.Contains(t, result.Errors, "ai enhancement requested but no AI provider is configured")
}

func TestGenerate_NothingMeetsThreshold(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) { d.Scorer = lowScorer{} })
	req := baseRequest()
	req.Options.MinRelevanceScore = 0.9

	result, err := f.service.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusPartial, result.Status)
	assert.Empty(t, result.Queries)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[len(result.Errors)-1], "minimum relevance score 0.90")

	stats, err := f.service.QueryStats(context.Background(), "search-1")
	require.NoError(t, err)
	assert.Zero(t, stats.ByStatus[models.QueryStatusCompleted])
	assert.NotZero(t, stats.ByStatus[models.QueryStatusFailed])

	stored, err := f.service.ListQueries(context.Background(), "search-1")
	require.NoError(t, err)
	for _, q := range stored {
		if q.Status == models.QueryStatusFailed {
			assert.Equal(t, "below_min_score", q.Metadata[models.MetaRejectedReason])
		}
	}
}

func TestGenerate_TruncatedCandidatesAreMarked(t *testing.T) {
	f := newFixture(t)
	req := baseRequest()
	req.Options.MaxQueries = 1
	req.Options.MinRelevanceScore = 0

	result, err := f.service.Generate(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Queries, 1)
	assert.Equal(t, 1.0, result.Metrics.DiversityScore)

	stored, err := f.service.ListQueries(context.Background(), "search-1")
	require.NoError(t, err)
	truncated := 0
	for _, q := range stored {
		if q.Metadata[models.MetaRejectedReason] == "truncated" {
			truncated++
			assert.Equal(t, models.QueryStatusFailed, q.Status)
		}
	}
	assert.NotZero(t, truncated)
}

func TestGenerate_ScoringPanicFailsRun(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) { d.Scorer = panickingScorer{} })

	result, err := f.service.Generate(context.Background(), baseRequest())
	require.Error(t, err)

	var perr *PipelineError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, CodeScoringFailed, perr.Code)
	assert.Equal(t, StageScoring, perr.Stage)
	assert.Equal(t, "tech journalists", perr.Request.OriginalQuery)

	require.NotNil(t, result)
	assert.Equal(t, models.ResultStatusFailed, result.Status)
	assert.Empty(t, result.Queries)

	count, err := f.repos.GeneratedQuery.CountBySearch(context.Background(), "search-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	logs := performanceLogs(t, f, "search-1")
	assert.Equal(t, models.StageStatusFailed, logs[models.OperationScoring])
}

func TestGenerate_FailedStageLogCoversOnlyThatStage(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) { d.Scorer = panickingScorer{} })

	_, err := f.service.Generate(context.Background(), baseRequest())
	require.Error(t, err)

	logs, err := f.repos.PerformanceLog.GetBySearch(context.Background(), "search-1")
	require.NoError(t, err)
	byOperation := make(map[string]models.PerformanceLog, len(logs))
	for _, l := range logs {
		byOperation[l.Operation] = l
	}

	selection, ok := byOperation[models.OperationTemplateSelection]
	require.True(t, ok)
	failed, ok := byOperation[models.OperationScoring]
	require.True(t, ok)
	assert.Equal(t, models.StageStatusFailed, failed.Status)
	assert.False(t, failed.StartTime.Before(selection.EndTime),
		"scoring failure started at %s, before template selection ended at %s", failed.StartTime, selection.EndTime)
}

func TestGenerate_CancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.service.Generate(ctx, baseRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var perr *PipelineError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, CodeGenerationCancelled, perr.Code)
	assert.Equal(t, models.ResultStatusFailed, result.Status)

	logs := performanceLogs(t, f, "search-1")
	assert.Equal(t, models.StageStatusFailed, logs[models.OperationTemplateSelection])
}

func TestGenerate_AllInsertsFail(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) { d.Queries = failingQueries{d.Queries} })

	result, err := f.service.Generate(context.Background(), baseRequest())
	require.Error(t, err)

	var perr *PipelineError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, CodePersistenceFailed, perr.Code)

	var pe *PersistenceError
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, models.ResultStatusFailed, result.Status)

	logs := performanceLogs(t, f, "search-1")
	assert.Equal(t, models.StageStatusFailed, logs[models.OperationPersistence])
}

func TestPerformanceSummary(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Generate(context.Background(), baseRequest())
	require.NoError(t, err)

	summary, err := f.service.PerformanceSummary(context.Background())
	require.NoError(t, err)

	ops := map[string]int64{}
	for _, s := range summary {
		ops[s.Operation] = s.Runs
	}
	assert.Equal(t, int64(1), ops[models.OperationScoring])
	assert.Equal(t, int64(1), ops[models.OperationAIEnhancement])
}

func TestBatchDiversity(t *testing.T) {
	assert.Zero(t, batchDiversity(nil))
	assert.Equal(t, 1.0, batchDiversity([]models.GeneratedQuery{{Text: "a b c"}}))
	same := []models.GeneratedQuery{{Text: "tech reporters"}, {Text: "Tech Reporters"}}
	assert.InDelta(t, 0, batchDiversity(same), 1e-9)
}

func TestCoverage(t *testing.T) {
	criteria := models.QueryCriteria{Countries: []string{"US", "Germany"}, Languages: []string{"Spanish"}}
	queries := []models.GeneratedQuery{
		{Text: "tech journalists in the US", Criteria: models.CriteriaSnapshot{Country: "US"}},
		{Text: "spanish language tech writers"},
	}

	got := coverage(criteria, queries)
	assert.Equal(t, []string{"US"}, got.Countries)
	assert.Equal(t, []string{"Spanish"}, got.Languages)
	assert.Empty(t, got.Categories)
}

func TestCoverage_IgnoresUnusedSnapshotValues(t *testing.T) {
	criteria := models.QueryCriteria{Countries: []string{"Germany", "US"}}
	snapshot := criteria.Snapshot()
	require.Equal(t, "Germany", snapshot.Country)

	got := coverage(criteria, []models.GeneratedQuery{
		{Text: "tech journalists media contacts", Criteria: snapshot},
	})
	assert.Empty(t, got.Countries)
}
