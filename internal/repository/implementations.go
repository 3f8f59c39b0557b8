package repository

import (
	"context"

	"github.com/Ayash-Bera/querygen/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TemplateRepositoryImpl implements TemplateRepository
type TemplateRepositoryImpl struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) models.TemplateRepository {
	return &TemplateRepositoryImpl{db: db}
}

func (r *TemplateRepositoryImpl) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.QueryTemplate{}).Count(&count).Error
	return count, err
}

func (r *TemplateRepositoryImpl) CreateBatch(ctx context.Context, templates []models.QueryTemplate) error {
	if len(templates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(templates, 100).Error
}

// Upsert refreshes the definition of a template but never its statistics.
func (r *TemplateRepositoryImpl) Upsert(ctx context.Context, template *models.QueryTemplate) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "template", "type", "criterion_value", "variables", "priority", "is_active", "updated_at",
		}),
	}).Create(template).Error
}

func (r *TemplateRepositoryImpl) FindCandidates(ctx context.Context, filter models.TemplateFilter) ([]models.QueryTemplate, error) {
	var templates []models.QueryTemplate
	query := r.db.WithContext(ctx).Where("is_active = ?", true)
	if len(filter.Types) > 0 {
		query = query.Where("type IN ?", filter.Types)
	}
	err := query.Find(&templates).Error
	return templates, err
}

func (r *TemplateRepositoryImpl) GetActive(ctx context.Context) ([]models.QueryTemplate, error) {
	var templates []models.QueryTemplate
	err := r.db.WithContext(ctx).Where("is_active = ?", true).
		Order("priority DESC").
		Find(&templates).Error
	return templates, err
}

func (r *TemplateRepositoryImpl) IncrementUsage(ctx context.Context, id string, success bool) error {
	updates := map[string]interface{}{
		"usage_count": gorm.Expr("usage_count + 1"),
	}
	if success {
		updates["success_count"] = gorm.Expr("success_count + 1")
	}
	return r.db.WithContext(ctx).Model(&models.QueryTemplate{}).
		Where("id = ?", id).
		UpdateColumns(updates).Error
}

// RecordConfidence folds one score into the running average. Samples are
// counted apart from success_count, which also counts renders that never
// reach scoring.
func (r *TemplateRepositoryImpl) RecordConfidence(ctx context.Context, id string, confidence float64) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE query_templates
		SET average_confidence = (average_confidence * confidence_samples + ?) / (confidence_samples + 1),
			confidence_samples = confidence_samples + 1
		WHERE id = ?
	`, confidence, id).Error
}

// GeneratedQueryRepositoryImpl implements GeneratedQueryRepository
type GeneratedQueryRepositoryImpl struct {
	db *gorm.DB
}

func NewGeneratedQueryRepository(db *gorm.DB) models.GeneratedQueryRepository {
	return &GeneratedQueryRepositoryImpl{db: db}
}

func (r *GeneratedQueryRepositoryImpl) Create(ctx context.Context, query *models.GeneratedQuery) error {
	return r.db.WithContext(ctx).Create(query).Error
}

func (r *GeneratedQueryRepositoryImpl) GetBySearch(ctx context.Context, searchID string) ([]models.GeneratedQuery, error) {
	var queries []models.GeneratedQuery
	err := r.db.WithContext(ctx).Where("search_id = ?", searchID).
		Order("score_overall DESC").
		Order("created_at").
		Find(&queries).Error
	return queries, err
}

func (r *GeneratedQueryRepositoryImpl) CountBySearch(ctx context.Context, searchID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.GeneratedQuery{}).
		Where("search_id = ?", searchID).
		Count(&count).Error
	return count, err
}

func (r *GeneratedQueryRepositoryImpl) CountByStatus(ctx context.Context, searchID string) ([]models.StatusCount, error) {
	var counts []models.StatusCount
	err := r.db.WithContext(ctx).Model(&models.GeneratedQuery{}).
		Select("status, COUNT(*) AS count").
		Where("search_id = ?", searchID).
		Group("status").
		Order("status").
		Scan(&counts).Error
	return counts, err
}

// PerformanceLogRepositoryImpl implements PerformanceLogRepository
type PerformanceLogRepositoryImpl struct {
	db *gorm.DB
}

func NewPerformanceLogRepository(db *gorm.DB) models.PerformanceLogRepository {
	return &PerformanceLogRepositoryImpl{db: db}
}

func (r *PerformanceLogRepositoryImpl) Create(ctx context.Context, entry *models.PerformanceLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *PerformanceLogRepositoryImpl) GetBySearch(ctx context.Context, searchID string) ([]models.PerformanceLog, error) {
	var entries []models.PerformanceLog
	err := r.db.WithContext(ctx).Where("search_id = ?", searchID).
		Order("start_time").
		Find(&entries).Error
	return entries, err
}

func (r *PerformanceLogRepositoryImpl) SummarizeByOperation(ctx context.Context) ([]models.OperationSummary, error) {
	var summaries []models.OperationSummary
	err := r.db.WithContext(ctx).Model(&models.PerformanceLog{}).
		Select(`operation,
			COUNT(*) AS runs,
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS failures,
			AVG(duration_ms) AS avg_duration_ms,
			MAX(duration_ms) AS max_duration_ms`, models.StageStatusFailed).
		Group("operation").
		Order("operation").
		Scan(&summaries).Error
	return summaries, err
}

// RepositoryManager bundles all repositories
type RepositoryManager struct {
	Template       models.TemplateRepository
	GeneratedQuery models.GeneratedQueryRepository
	PerformanceLog models.PerformanceLogRepository
}

func NewRepositoryManager(db *gorm.DB) *RepositoryManager {
	return &RepositoryManager{
		Template:       NewTemplateRepository(db),
		GeneratedQuery: NewGeneratedQueryRepository(db),
		PerformanceLog: NewPerformanceLogRepository(db),
	}
}
