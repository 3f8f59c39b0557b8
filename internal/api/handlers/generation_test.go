package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Ayash-Bera/querygen/internal/cache"
	"github.com/Ayash-Bera/querygen/internal/health"
	"github.com/Ayash-Bera/querygen/internal/middleware"
	"github.com/Ayash-Bera/querygen/internal/models"
	"github.com/Ayash-Bera/querygen/internal/optimizer"
	"github.com/Ayash-Bera/querygen/internal/services"
	"github.com/Ayash-Bera/querygen/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeService struct {
	lastReq   models.QueryGenerationRequest
	generate  func(req models.QueryGenerationRequest) (*models.QueryGenerationResult, error)
	listCalls atomic.Int32
}

func (f *fakeService) Generate(_ context.Context, req models.QueryGenerationRequest) (*models.QueryGenerationResult, error) {
	f.lastReq = req
	return f.generate(req)
}

func (f *fakeService) ListQueries(_ context.Context, searchID string) ([]models.GeneratedQuery, error) {
	f.listCalls.Add(1)
	return []models.GeneratedQuery{{ID: "q1", SearchID: searchID, Text: "tech journalists"}}, nil
}

func (f *fakeService) QueryStats(_ context.Context, searchID string) (*services.SearchStats, error) {
	return &services.SearchStats{SearchID: searchID, Total: 3, ByStatus: map[models.QueryStatus]int64{
		models.QueryStatusCompleted: 2,
		models.QueryStatusCancelled: 1,
	}}, nil
}

func (f *fakeService) PerformanceSummary(context.Context) ([]models.OperationSummary, error) {
	return nil, errors.New("database is closed")
}

type fakeTemplates struct{}

func (fakeTemplates) ActiveTemplates(context.Context) ([]models.QueryTemplate, error) {
	return []models.QueryTemplate{{ID: "base-journalists", Name: "Journalists", Priority: 10}}, nil
}

type fakeHealth struct {
	status string
	cached *health.OverallHealth
	probes *atomic.Int32
}

func (f fakeHealth) CheckAll(context.Context) health.OverallHealth {
	if f.probes != nil {
		f.probes.Add(1)
	}
	return health.OverallHealth{Status: f.status, Services: []health.ServiceHealth{{Name: "database", Status: f.status}}}
}

func (f fakeHealth) CheckCached() (*health.OverallHealth, error) {
	if f.cached == nil {
		return nil, health.ErrNoCachedHealth
	}
	return f.cached, nil
}

func completedResult(req models.QueryGenerationRequest) (*models.QueryGenerationResult, error) {
	return &models.QueryGenerationResult{
		SearchID: "search-1",
		Status:   models.ResultStatusCompleted,
		Queries:  []models.GeneratedQuery{{ID: "q1", Text: req.OriginalQuery + " journalists"}},
	}, nil
}

func newTestRouter(svc *fakeService, healthStatus string, opts RouterOptions) *gin.Engine {
	h := NewGenerationHandler(svc, fakeTemplates{}, fakeHealth{status: healthStatus}, models.GenerationOptions{
		MaxQueries:        10,
		MinRelevanceScore: 0.3,
	}, time.Second, testLogger())
	return NewRouter(h, opts)
}

func do(r http.Handler, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, utils.APIResponse) {
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp utils.APIResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestHandleGenerate_Success(t *testing.T) {
	svc := &fakeService{generate: completedResult}
	r := newTestRouter(svc, health.StatusHealthy, RouterOptions{})

	w, resp := do(r, http.MethodPost, "/api/v1/queries/generate", map[string]interface{}{
		"originalQuery": "tech",
		"criteria":      map[string]interface{}{"categories": []string{"Technology"}},
		"options":       map[string]interface{}{"maxQueries": 5},
	}, map[string]string{"X-User-ID": "alice"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.CorrelationID)
	assert.Equal(t, w.Header().Get("X-Request-ID"), resp.CorrelationID)

	assert.Equal(t, 5, svc.lastReq.Options.MaxQueries)
	assert.Equal(t, 0.3, svc.lastReq.Options.MinRelevanceScore)
	assert.Equal(t, []string{"Technology"}, svc.lastReq.Criteria.Categories)
	assert.Equal(t, "alice", svc.lastReq.RequestedBy)
}

func TestHandleGenerate_PartialIsOK(t *testing.T) {
	svc := &fakeService{generate: func(models.QueryGenerationRequest) (*models.QueryGenerationResult, error) {
		return &models.QueryGenerationResult{Status: models.ResultStatusPartial, Queries: []models.GeneratedQuery{}}, nil
	}}
	r := newTestRouter(svc, health.StatusHealthy, RouterOptions{})

	w, resp := do(r, http.MethodPost, "/api/v1/queries/generate", map[string]string{"originalQuery": "tech"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
}

func TestHandleGenerate_InvalidInput(t *testing.T) {
	svc := &fakeService{generate: completedResult}
	r := newTestRouter(svc, health.StatusHealthy, RouterOptions{})

	tests := []struct {
		name string
		body interface{}
	}{
		{"malformed json", `{"originalQuery":`},
		{"missing query", map[string]string{}},
		{"blank query", map[string]string{"originalQuery": "   "}},
		{"max queries out of range", map[string]interface{}{"originalQuery": "tech", "options": map[string]int{"maxQueries": 0}}},
		{"score out of range", map[string]interface{}{"originalQuery": "tech", "options": map[string]float64{"minRelevanceScore": 1.5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := do(r, http.MethodPost, "/api/v1/queries/generate", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
		})
	}
}

func TestHandleGenerate_PipelineFailure(t *testing.T) {
	svc := &fakeService{generate: func(req models.QueryGenerationRequest) (*models.QueryGenerationResult, error) {
		return &models.QueryGenerationResult{SearchID: "search-9", Status: models.ResultStatusFailed},
			&services.PipelineError{Code: services.CodeScoringFailed, Stage: services.StageScoring, Request: req, Err: errors.New("boom")}
	}}
	r := newTestRouter(svc, health.StatusHealthy, RouterOptions{})

	w, resp := do(r, http.MethodPost, "/api/v1/queries/generate", map[string]string{"originalQuery": "tech"}, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(services.CodeScoringFailed), resp.Error.Code)

	details, ok := resp.Error.Details.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "search-9", details["searchId"])
	assert.Equal(t, "SCORING", details["stage"])
}

func TestReadEndpoints(t *testing.T) {
	svc := &fakeService{generate: completedResult}
	r := newTestRouter(svc, health.StatusHealthy, RouterOptions{
		ResponseCache: middleware.ResponseCache(cache.NewMemoryStore(10, time.Minute, nil), time.Minute, testLogger()),
	})

	w, resp := do(r, http.MethodGet, "/api/v1/searches/search-1/queries", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	data := resp.Data.(map[string]interface{})
	assert.EqualValues(t, 1, data["total"])

	w, _ = do(r, http.MethodGet, "/api/v1/searches/search-1/queries", nil, nil)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Equal(t, int32(1), svc.listCalls.Load())

	w, resp = do(r, http.MethodGet, "/api/v1/searches/search-1/stats", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-Cache"))
	stats := resp.Data.(map[string]interface{})
	assert.EqualValues(t, 3, stats["total"])

	w, resp = do(r, http.MethodGet, "/api/v1/templates", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, resp.Data.(map[string]interface{})["total"])

	w, resp = do(r, http.MethodGet, "/api/v1/performance", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, CodeInternal, resp.Error.Code)
}

func TestHandleHealth(t *testing.T) {
	r := newTestRouter(&fakeService{}, health.StatusDegraded, RouterOptions{})
	w, resp := do(r, http.MethodGet, "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, health.StatusDegraded, resp.Data.(map[string]interface{})["status"])

	r = newTestRouter(&fakeService{}, health.StatusUnhealthy, RouterOptions{})
	w, resp = do(r, http.MethodGet, "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, CodeUnhealthy, resp.Error.Code)
}

func TestHandleHealth_ServesCachedResult(t *testing.T) {
	var probes atomic.Int32
	checker := fakeHealth{
		status: health.StatusHealthy,
		cached: &health.OverallHealth{Status: health.StatusUnhealthy},
		probes: &probes,
	}
	h := NewGenerationHandler(&fakeService{}, fakeTemplates{}, checker, models.GenerationOptions{MaxQueries: 10}, time.Second, testLogger())
	r := NewRouter(h, RouterOptions{})

	w, resp := do(r, http.MethodGet, "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, CodeUnhealthy, resp.Error.Code)
	assert.Zero(t, probes.Load())

	checker.cached = nil
	h = NewGenerationHandler(&fakeService{}, fakeTemplates{}, checker, models.GenerationOptions{MaxQueries: 10}, time.Second, testLogger())
	w, _ = do(NewRouter(h, RouterOptions{}), http.MethodGet, "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), probes.Load())
}

func TestRouter_RateLimitAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	limiter := optimizer.NewRateLimiter(1, time.Minute, nil, optimizer.NewMetrics(reg))
	r := newTestRouter(&fakeService{generate: completedResult}, health.StatusHealthy, RouterOptions{
		RateLimit: middleware.RateLimit(limiter, testLogger()),
		Gatherer:  reg,
	})

	headers := map[string]string{"X-User-ID": "bob"}
	w, _ := do(r, http.MethodGet, "/api/v1/searches/s/stats", nil, headers)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(r, http.MethodGet, "/api/v1/searches/s/stats", nil, headers)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// health is outside the limited group
	w, _ = do(r, http.MethodGet, "/api/v1/health", nil, headers)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(r, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "querygen_")
}
