package models

import "strings"

// Dimension names a criteria axis.
type Dimension string

const (
	DimensionCountry  Dimension = "country"
	DimensionCategory Dimension = "category"
	DimensionBeat     Dimension = "beat"
	DimensionLanguage Dimension = "language"
	DimensionTopic    Dimension = "topic"
)

// QueryCriteria are the structured filters of a request. Order is irrelevant.
type QueryCriteria struct {
	Countries  []string `json:"countries,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Beats      []string `json:"beats,omitempty"`
	Languages  []string `json:"languages,omitempty"`
	Topics     []string `json:"topics,omitempty"`
}

// Values returns the trimmed, non-empty values of one dimension.
func (c QueryCriteria) Values(d Dimension) []string {
	var raw []string
	switch d {
	case DimensionCountry:
		raw = c.Countries
	case DimensionCategory:
		raw = c.Categories
	case DimensionBeat:
		raw = c.Beats
	case DimensionLanguage:
		raw = c.Languages
	case DimensionTopic:
		raw = c.Topics
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// First returns the first value of a dimension or "".
func (c QueryCriteria) First(d Dimension) string {
	if vals := c.Values(d); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// HasAny reports whether any dimension carries a value.
func (c QueryCriteria) HasAny() bool {
	for _, d := range AllDimensions {
		if len(c.Values(d)) > 0 {
			return true
		}
	}
	return false
}

// Snapshot captures the first value of every dimension.
func (c QueryCriteria) Snapshot() CriteriaSnapshot {
	return CriteriaSnapshot{
		Country:  c.First(DimensionCountry),
		Category: c.First(DimensionCategory),
		Beat:     c.First(DimensionBeat),
		Language: c.First(DimensionLanguage),
		Topic:    c.First(DimensionTopic),
	}
}

// AllDimensions lists every criteria axis in a fixed order.
var AllDimensions = []Dimension{DimensionCountry, DimensionCategory, DimensionBeat, DimensionLanguage, DimensionTopic}

type GenerationOptions struct {
	MaxQueries          int     `json:"maxQueries"`
	MinRelevanceScore   float64 `json:"minRelevanceScore"`
	EnableAIEnhancement bool    `json:"enableAIEnhancement"`
}

type QueryGenerationRequest struct {
	SearchID      string            `json:"searchId"`
	BatchID       string            `json:"batchId"`
	OriginalQuery string            `json:"originalQuery"`
	Criteria      QueryCriteria     `json:"criteria"`
	Options       GenerationOptions `json:"options"`
	// RequestedBy is the caller identity, used for attribution only.
	RequestedBy string `json:"-"`
}

type ResultStatus string

const (
	ResultStatusCompleted ResultStatus = "completed"
	ResultStatusPartial   ResultStatus = "partial"
	ResultStatusFailed    ResultStatus = "failed"
)

type CriteriaCoverage struct {
	Countries  []string `json:"countries"`
	Categories []string `json:"categories"`
	Beats      []string `json:"beats"`
	Languages  []string `json:"languages"`
}

type GenerationMetrics struct {
	TotalGenerated     int              `json:"totalGenerated"`
	TotalDuplicates    int              `json:"totalDuplicates"`
	AverageScore       float64          `json:"averageScore"`
	DiversityScore     float64          `json:"diversityScore"`
	ProcessingTimeMs   int64            `json:"processingTimeMs"`
	CoverageByCriteria CriteriaCoverage `json:"coverageByCriteria"`
}

type QueryGenerationResult struct {
	SearchID      string            `json:"searchId"`
	BatchID       string            `json:"batchId"`
	OriginalQuery string            `json:"originalQuery"`
	Queries       []GeneratedQuery  `json:"queries"`
	Metrics       GenerationMetrics `json:"metrics"`
	Status        ResultStatus      `json:"status"`
	Errors        []string          `json:"errors,omitempty"`
}
