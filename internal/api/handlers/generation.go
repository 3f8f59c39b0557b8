package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Ayash-Bera/querygen/internal/health"
	"github.com/Ayash-Bera/querygen/internal/middleware"
	"github.com/Ayash-Bera/querygen/internal/models"
	"github.com/Ayash-Bera/querygen/internal/services"
	"github.com/Ayash-Bera/querygen/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInternal       = "INTERNAL_ERROR"
	CodeUnhealthy      = "SERVICE_UNHEALTHY"
	serviceName        = "querygen"
)

// QueryService is the orchestration surface the handlers need.
type QueryService interface {
	Generate(ctx context.Context, req models.QueryGenerationRequest) (*models.QueryGenerationResult, error)
	ListQueries(ctx context.Context, searchID string) ([]models.GeneratedQuery, error)
	QueryStats(ctx context.Context, searchID string) (*services.SearchStats, error)
	PerformanceSummary(ctx context.Context) ([]models.OperationSummary, error)
}

type TemplateLister interface {
	ActiveTemplates(ctx context.Context) ([]models.QueryTemplate, error)
}

type HealthReporter interface {
	CheckAll(ctx context.Context) health.OverallHealth
	CheckCached() (*health.OverallHealth, error)
}

type GenerationHandler struct {
	service        QueryService
	templates      TemplateLister
	health         HealthReporter
	defaults       models.GenerationOptions
	requestTimeout time.Duration
	logger         *logrus.Logger
}

func NewGenerationHandler(
	service QueryService,
	templates TemplateLister,
	healthReporter HealthReporter,
	defaults models.GenerationOptions,
	requestTimeout time.Duration,
	logger *logrus.Logger,
) *GenerationHandler {
	return &GenerationHandler{
		service:        service,
		templates:      templates,
		health:         healthReporter,
		defaults:       defaults,
		requestTimeout: requestTimeout,
		logger:         logger,
	}
}

// HandleGenerate runs one generation pipeline
func (h *GenerationHandler) HandleGenerate(c *gin.Context) {
	var body models.GenerateQueriesRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.logger.WithError(err).Warn("Invalid generation request")
		utils.ErrorResponse(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid request format", err.Error())
		return
	}
	if strings.TrimSpace(body.OriginalQuery) == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, CodeInvalidRequest, "originalQuery cannot be empty", nil)
		return
	}

	req := body.ToDomain(h.defaults)
	req.RequestedBy = c.GetString(middleware.ContextKeyIdentity)

	ctx := c.Request.Context()
	if h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()
	}

	result, err := h.service.Generate(ctx, req)
	if err != nil {
		var perr *services.PipelineError
		if errors.As(err, &perr) {
			details := gin.H{"stage": perr.Stage}
			if result != nil {
				details["searchId"] = result.SearchID
				details["batchId"] = result.BatchID
			}
			utils.ErrorResponse(c, http.StatusInternalServerError, string(perr.Code), "Query generation failed", details)
			return
		}
		h.logger.WithError(err).Error("Query generation failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, CodeInternal, "Query generation failed", nil)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"search_id": result.SearchID,
		"status":    result.Status,
		"queries":   len(result.Queries),
		"identity":  req.RequestedBy,
	}).Info("Generation request completed")

	utils.SuccessResponse(c, http.StatusOK, result)
}

func (h *GenerationHandler) HandleListQueries(c *gin.Context) {
	searchID := c.Param("searchId")
	queries, err := h.service.ListQueries(c.Request.Context(), searchID)
	if err != nil {
		h.logger.WithError(err).WithField("search_id", searchID).Error("Failed to list queries")
		utils.ErrorResponse(c, http.StatusInternalServerError, CodeInternal, "Failed to list queries", nil)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, gin.H{
		"searchId": searchID,
		"queries":  queries,
		"total":    len(queries),
	})
}

func (h *GenerationHandler) HandleStats(c *gin.Context) {
	searchID := c.Param("searchId")
	stats, err := h.service.QueryStats(c.Request.Context(), searchID)
	if err != nil {
		h.logger.WithError(err).WithField("search_id", searchID).Error("Failed to load query stats")
		utils.ErrorResponse(c, http.StatusInternalServerError, CodeInternal, "Failed to load query stats", nil)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, stats)
}

func (h *GenerationHandler) HandleTemplates(c *gin.Context) {
	templates, err := h.templates.ActiveTemplates(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load templates")
		utils.ErrorResponse(c, http.StatusInternalServerError, CodeInternal, "Failed to load templates", nil)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, gin.H{
		"templates": templates,
		"total":     len(templates),
	})
}

func (h *GenerationHandler) HandlePerformance(c *gin.Context) {
	summary, err := h.service.PerformanceSummary(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to summarize performance")
		utils.ErrorResponse(c, http.StatusInternalServerError, CodeInternal, "Failed to summarize performance", nil)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, gin.H{"operations": summary})
}

// HandleHealth serves the last periodic result, probing only when none exists
// yet. It answers 503 only when a required dependency is down.
func (h *GenerationHandler) HandleHealth(c *gin.Context) {
	overall, err := h.health.CheckCached()
	if err != nil {
		fresh := h.health.CheckAll(c.Request.Context())
		overall = &fresh
	}
	resp := models.HealthResponse{
		Status:    overall.Status,
		Service:   serviceName,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  overall.StatusMap(),
	}

	if overall.Status == health.StatusUnhealthy {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, CodeUnhealthy, "Service unhealthy", resp)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, resp)
}
