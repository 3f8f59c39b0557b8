package models

// GORM models

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TemplateType string

const (
	TemplateTypeBase             TemplateType = "BASE"
	TemplateTypeCountrySpecific  TemplateType = "COUNTRY_SPECIFIC"
	TemplateTypeCategorySpecific TemplateType = "CATEGORY_SPECIFIC"
	TemplateTypeBeatSpecific     TemplateType = "BEAT_SPECIFIC"
	TemplateTypeLanguageSpecific TemplateType = "LANGUAGE_SPECIFIC"
	TemplateTypeComposite        TemplateType = "COMPOSITE"
)

type QueryType string

const (
	QueryTypeBase      QueryType = "BASE"
	QueryTypeExpanded  QueryType = "EXPANDED"
	QueryTypeRefined   QueryType = "REFINED"
	QueryTypeLocalized QueryType = "LOCALIZED"
	QueryTypeEnhanced  QueryType = "ENHANCED"
)

type QueryStatus string

const (
	QueryStatusPending    QueryStatus = "PENDING"
	QueryStatusProcessing QueryStatus = "PROCESSING"
	QueryStatusCompleted  QueryStatus = "COMPLETED"
	QueryStatusCancelled  QueryStatus = "CANCELLED"
	QueryStatusFailed     QueryStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s QueryStatus) Terminal() bool {
	return s == QueryStatusCompleted || s == QueryStatusCancelled || s == QueryStatusFailed
}

// Metadata keys written on generated queries.
const (
	MetaTemplateName     = "templateName"
	MetaAIEnhanced       = "aiEnhanced"
	MetaEnhancementType  = "enhancementType"
	MetaProcessingTimeMs = "processingTimeMs"
	MetaDuplicateOf      = "duplicateOf"
	MetaSimilarity       = "similarity"
	MetaDuplicateReason  = "duplicateReason"
	MetaRejectedReason   = "rejectedReason"
)

// QueryTemplate is a reusable query string with named placeholders.
type QueryTemplate struct {
	ID                string            `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Name              string            `json:"name" gorm:"uniqueIndex;not null"`
	Template          string            `json:"template" gorm:"not null"`
	Type              TemplateType      `json:"type" gorm:"type:varchar(32);index;not null"`
	CriterionValue    string            `json:"criterionValue,omitempty"`
	Variables         datatypes.JSONMap `json:"variables,omitempty"`
	Priority          int               `json:"priority"`
	IsActive          bool              `json:"isActive" gorm:"index"`
	UsageCount        int               `json:"usageCount"`
	SuccessCount      int               `json:"successCount"`
	AverageConfidence float64           `json:"averageConfidence"`
	ConfidenceSamples int               `json:"confidenceSamples"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// CriteriaSnapshot keeps the first value per dimension used for a candidate.
type CriteriaSnapshot struct {
	Country  string `json:"country,omitempty"`
	Category string `json:"category,omitempty"`
	Beat     string `json:"beat,omitempty"`
	Language string `json:"language,omitempty"`
	Topic    string `json:"topic,omitempty"`
}

type QueryScores struct {
	Relevance  float64 `json:"relevance"`
	Diversity  float64 `json:"diversity"`
	Complexity float64 `json:"complexity"`
	Overall    float64 `json:"overall"`
}

// GeneratedQuery is one candidate produced by a generation run.
type GeneratedQuery struct {
	ID            string            `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SearchID      string            `json:"searchId" gorm:"index;not null"`
	BatchID       string            `json:"batchId" gorm:"index;not null"`
	OriginalQuery string            `json:"originalQuery" gorm:"not null"`
	Text          string            `json:"generatedQuery" gorm:"column:generated_query;not null"`
	TemplateID    *string           `json:"templateId,omitempty" gorm:"type:varchar(64)"`
	QueryType     QueryType         `json:"queryType" gorm:"type:varchar(16);not null"`
	Criteria      CriteriaSnapshot  `json:"criteria" gorm:"embedded;embeddedPrefix:criteria_"`
	Scores        QueryScores       `json:"scores" gorm:"embedded;embeddedPrefix:score_"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty"`
	Status        QueryStatus       `json:"status" gorm:"type:varchar(16);index;not null"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// PerformanceLog is written once per pipeline stage per run.
type PerformanceLog struct {
	ID          string            `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SearchID    string            `json:"searchId" gorm:"index"`
	BatchID     string            `json:"batchId"`
	Operation   string            `json:"operation" gorm:"index;not null"`
	StartTime   time.Time         `json:"startTime"`
	EndTime     time.Time         `json:"endTime"`
	DurationMs  int64             `json:"durationMs"`
	Status      string            `json:"status" gorm:"type:varchar(16);not null"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
	RequestedBy string            `json:"requestedBy,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// Performance log operations and statuses.
const (
	OperationTemplateSelection = "template-selection"
	OperationAIEnhancement     = "ai-enhancement"
	OperationScoring           = "scoring"
	OperationDeduplication     = "deduplication"
	OperationValidation        = "validation"
	OperationPersistence       = "persistence"

	StageStatusCompleted = "COMPLETED"
	StageStatusFailed    = "FAILED"
	StageStatusSkipped   = "SKIPPED"
)

// StatusCount is one row of a group-by-status query.
type StatusCount struct {
	Status QueryStatus `json:"status"`
	Count  int64       `json:"count"`
}

// OperationSummary aggregates performance logs per operation.
type OperationSummary struct {
	Operation     string  `json:"operation"`
	Runs          int64   `json:"runs"`
	Failures      int64   `json:"failures"`
	AvgDurationMs float64 `json:"avgDurationMs"`
	MaxDurationMs int64   `json:"maxDurationMs"`
}

// TemplateFilter narrows template candidates by type.
type TemplateFilter struct {
	Types []TemplateType
}

// Database interfaces for repository pattern
type TemplateRepository interface {
	Count(ctx context.Context) (int64, error)
	CreateBatch(ctx context.Context, templates []QueryTemplate) error
	Upsert(ctx context.Context, template *QueryTemplate) error
	FindCandidates(ctx context.Context, filter TemplateFilter) ([]QueryTemplate, error)
	GetActive(ctx context.Context) ([]QueryTemplate, error)
	IncrementUsage(ctx context.Context, id string, success bool) error
	RecordConfidence(ctx context.Context, id string, confidence float64) error
}

type GeneratedQueryRepository interface {
	Create(ctx context.Context, query *GeneratedQuery) error
	GetBySearch(ctx context.Context, searchID string) ([]GeneratedQuery, error)
	CountBySearch(ctx context.Context, searchID string) (int64, error)
	CountByStatus(ctx context.Context, searchID string) ([]StatusCount, error)
}

type PerformanceLogRepository interface {
	Create(ctx context.Context, entry *PerformanceLog) error
	GetBySearch(ctx context.Context, searchID string) ([]PerformanceLog, error)
	SummarizeByOperation(ctx context.Context) ([]OperationSummary, error)
}

// TableName methods for custom table names
func (QueryTemplate) TableName() string  { return "query_templates" }
func (GeneratedQuery) TableName() string { return "generated_queries" }
func (PerformanceLog) TableName() string { return "performance_logs" }

// Model validation methods
func (qt *QueryTemplate) Validate() error {
	if qt.ID == "" || qt.Name == "" {
		return fmt.Errorf("template id and name are required")
	}
	if qt.Template == "" {
		return fmt.Errorf("template text is required")
	}
	switch qt.Type {
	case TemplateTypeBase, TemplateTypeCountrySpecific, TemplateTypeCategorySpecific,
		TemplateTypeBeatSpecific, TemplateTypeLanguageSpecific, TemplateTypeComposite:
	default:
		return fmt.Errorf("invalid template type: %s", qt.Type)
	}
	return nil
}

func (gq *GeneratedQuery) Validate() error {
	if gq.ID == "" || gq.SearchID == "" {
		return fmt.Errorf("query id and search id are required")
	}
	if gq.Text == "" {
		return fmt.Errorf("generated query text is required")
	}
	if gq.Scores.Overall < 0 || gq.Scores.Overall > 1 {
		return fmt.Errorf("overall score out of range: %f", gq.Scores.Overall)
	}
	if gq.Status == QueryStatusCancelled {
		if _, ok := gq.Metadata[MetaDuplicateOf]; !ok {
			return fmt.Errorf("cancelled query %s has no duplicateOf metadata", gq.ID)
		}
		if _, ok := gq.Metadata[MetaSimilarity]; !ok {
			return fmt.Errorf("cancelled query %s has no similarity metadata", gq.ID)
		}
	}
	return nil
}

func (pl *PerformanceLog) Validate() error {
	if pl.Operation == "" {
		return fmt.Errorf("operation is required")
	}
	if pl.DurationMs < 0 {
		return fmt.Errorf("duration cannot be negative")
	}
	return nil
}

// GORM hooks
func (qt *QueryTemplate) BeforeCreate(tx *gorm.DB) error {
	return qt.Validate()
}

func (gq *GeneratedQuery) BeforeCreate(tx *gorm.DB) error {
	return gq.Validate()
}

func (pl *PerformanceLog) BeforeCreate(tx *gorm.DB) error {
	return pl.Validate()
}
