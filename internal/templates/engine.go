// Package templates selects and renders query templates for a generation
// request and keeps the per-template usage statistics.
package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Ayash-Bera/querygen/internal/cache"
	"github.com/Ayash-Bera/querygen/internal/models"
	"github.com/Ayash-Bera/querygen/pkg/utils"
	"github.com/sirupsen/logrus"
)

const (
	DefaultCacheTTL     = time.Hour
	DefaultMaxTemplates = 50
)

var dimensionOf = map[models.TemplateType]models.Dimension{
	models.TemplateTypeCountrySpecific:  models.DimensionCountry,
	models.TemplateTypeCategorySpecific: models.DimensionCategory,
	models.TemplateTypeBeatSpecific:     models.DimensionBeat,
	models.TemplateTypeLanguageSpecific: models.DimensionLanguage,
}

type Options struct {
	CacheTTL     time.Duration
	MaxTemplates int
}

type Engine struct {
	repo         models.TemplateRepository
	cache        cache.Store
	logger       *logrus.Logger
	cacheTTL     time.Duration
	maxTemplates int

	seedOnce    sync.Once
	seededCount int
	seedErr     error
}

func NewEngine(repo models.TemplateRepository, store cache.Store, logger *logrus.Logger, opts Options) *Engine {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.MaxTemplates <= 0 {
		opts.MaxTemplates = DefaultMaxTemplates
	}
	return &Engine{
		repo:         repo,
		cache:        store,
		logger:       logger,
		cacheTTL:     opts.CacheTTL,
		maxTemplates: opts.MaxTemplates,
	}
}

// EnsureSeeded inserts the built-in templates when the store is empty. It
// runs at most once per engine; later calls return the first outcome.
func (e *Engine) EnsureSeeded(ctx context.Context) (int, error) {
	e.seedOnce.Do(func() {
		e.seededCount, e.seedErr = e.seed(ctx)
	})
	return e.seededCount, e.seedErr
}

func (e *Engine) seed(ctx context.Context) (int, error) {
	count, err := e.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count templates: %w", err)
	}
	if count > 0 {
		e.logger.WithField("existing", count).Debug("Template store already seeded")
		return 0, nil
	}

	builtin := BuiltinTemplates()
	if err := e.repo.CreateBatch(ctx, builtin); err != nil {
		return 0, fmt.Errorf("failed to seed templates: %w", err)
	}

	e.logger.WithField("inserted", len(builtin)).Info("Seeded built-in query templates")
	return len(builtin), nil
}

// SelectTemplates returns the active templates applicable to the request,
// ranked and capped.
func (e *Engine) SelectTemplates(ctx context.Context, req *models.QueryGenerationRequest) ([]models.QueryTemplate, error) {
	key := "select:" + CriteriaKey(req.Criteria)

	if cached, ok := e.cachedSelection(ctx, key); ok {
		return cached, nil
	}

	filter := models.TemplateFilter{Types: []models.TemplateType{models.TemplateTypeBase}}
	for tt, dim := range dimensionOf {
		if len(req.Criteria.Values(dim)) > 0 {
			filter.Types = append(filter.Types, tt)
		}
	}
	if req.Criteria.HasAny() {
		filter.Types = append(filter.Types, models.TemplateTypeComposite)
	}

	candidates, err := e.repo.FindCandidates(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	selected := make([]models.QueryTemplate, 0, len(candidates))
	for _, tpl := range candidates {
		if applies(&tpl, req.Criteria) {
			selected = append(selected, tpl)
		}
	}

	Rank(selected)
	if len(selected) > e.maxTemplates {
		selected = selected[:e.maxTemplates]
	}

	if data, err := json.Marshal(selected); err == nil {
		if err := e.cache.Set(ctx, key, data, e.cacheTTL); err != nil {
			e.logger.WithError(err).Warn("Failed to cache template selection")
		}
	}

	e.logger.WithFields(logrus.Fields{
		"candidates": len(candidates),
		"selected":   len(selected),
	}).Debug("Selected templates")

	return selected, nil
}

func (e *Engine) cachedSelection(ctx context.Context, key string) ([]models.QueryTemplate, bool) {
	data, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		e.logger.WithError(err).Warn("Template cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var templates []models.QueryTemplate
	if err := json.Unmarshal(data, &templates); err != nil {
		e.logger.WithError(err).Warn("Discarding corrupt template cache entry")
		return nil, false
	}
	return templates, true
}

func applies(tpl *models.QueryTemplate, criteria models.QueryCriteria) bool {
	switch tpl.Type {
	case models.TemplateTypeBase:
		return true
	case models.TemplateTypeComposite:
		return criteria.HasAny()
	}
	dim, ok := dimensionOf[tpl.Type]
	if !ok {
		return false
	}
	values := criteria.Values(dim)
	if len(values) == 0 {
		return false
	}
	if tpl.CriterionValue == "" {
		return true
	}
	for _, v := range values {
		if strings.EqualFold(v, tpl.CriterionValue) {
			return true
		}
	}
	return false
}

// Less orders templates by priority desc, successCount desc,
// averageConfidence desc, usageCount desc, then name asc.
func Less(a, b *models.QueryTemplate) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.SuccessCount != b.SuccessCount {
		return a.SuccessCount > b.SuccessCount
	}
	if a.AverageConfidence != b.AverageConfidence {
		return a.AverageConfidence > b.AverageConfidence
	}
	if a.UsageCount != b.UsageCount {
		return a.UsageCount > b.UsageCount
	}
	return a.Name < b.Name
}

// Rank sorts templates in place with Less.
func Rank(templates []models.QueryTemplate) {
	sort.SliceStable(templates, func(i, j int) bool {
		return Less(&templates[i], &templates[j])
	})
}

// CriteriaKey is a stable cache key for a criteria set: every dimension
// lower-cased, trimmed, de-duplicated and sorted.
func CriteriaKey(criteria models.QueryCriteria) string {
	parts := make([]string, 0, len(models.AllDimensions))
	for _, dim := range models.AllDimensions {
		seen := make(map[string]struct{})
		var values []string
		for _, v := range criteria.Values(dim) {
			v = strings.ToLower(v)
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			values = append(values, v)
		}
		sort.Strings(values)
		parts = append(parts, string(dim)+"="+strings.Join(values, ","))
	}
	return strings.Join(parts, "|")
}

// GenerateFromTemplates renders every template into a BASE candidate.
// Rejected templates are returned alongside and never abort the call.
func (e *Engine) GenerateFromTemplates(ctx context.Context, templates []models.QueryTemplate, req *models.QueryGenerationRequest) ([]models.GeneratedQuery, []*ValidationError) {
	var (
		candidates []models.GeneratedQuery
		rejected   []*ValidationError
	)
	seen := make(map[string]struct{})
	snapshot := req.Criteria.Snapshot()

	for i := range templates {
		tpl := &templates[i]
		start := time.Now()

		text, err := Render(tpl, req)
		e.recordUsage(ctx, tpl.ID, err == nil)

		if err != nil {
			var verr *ValidationError
			if !errors.As(err, &verr) {
				verr = rejection(tpl, "render_failed", err.Error())
			}
			e.logger.WithFields(logrus.Fields{
				"template": tpl.Name,
				"reason":   verr.Reason,
				"detail":   verr.Detail,
			}).Debug("Template rejected")
			rejected = append(rejected, verr)
			continue
		}

		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}

		templateID := tpl.ID
		candidates = append(candidates, models.GeneratedQuery{
			ID:            utils.NewID(),
			SearchID:      req.SearchID,
			BatchID:       req.BatchID,
			OriginalQuery: req.OriginalQuery,
			Text:          text,
			TemplateID:    &templateID,
			QueryType:     models.QueryTypeBase,
			Criteria:      snapshot,
			Status:        models.QueryStatusPending,
			Metadata: map[string]interface{}{
				models.MetaTemplateName:     tpl.Name,
				models.MetaAIEnhanced:       false,
				models.MetaProcessingTimeMs: time.Since(start).Milliseconds(),
			},
		})
	}

	return candidates, rejected
}

func (e *Engine) recordUsage(ctx context.Context, templateID string, success bool) {
	if err := e.repo.IncrementUsage(ctx, templateID, success); err != nil {
		e.logger.WithError(err).WithField("template_id", templateID).Warn("Failed to update template usage")
	}
}

// RecordConfidence folds a scored candidate's overall score into its
// template's running average.
func (e *Engine) RecordConfidence(ctx context.Context, templateID string, score float64) error {
	if err := e.repo.RecordConfidence(ctx, templateID, score); err != nil {
		return fmt.Errorf("failed to record confidence for template %s: %w", templateID, err)
	}
	return nil
}

// ActiveTemplates lists every active template in rank order.
func (e *Engine) ActiveTemplates(ctx context.Context) ([]models.QueryTemplate, error) {
	templates, err := e.repo.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active templates: %w", err)
	}
	Rank(templates)
	return templates, nil
}
