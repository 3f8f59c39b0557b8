package enhancer

import (
	"fmt"

	"github.com/Ayash-Bera/querygen/internal/models"
)

type EnhancementType string

const (
	TypeExpansion    EnhancementType = "expansion"
	TypeRefinement   EnhancementType = "refinement"
	TypeLocalization EnhancementType = "localization"
)

// EnhancementRequest asks the provider for variants of one query.
type EnhancementRequest struct {
	BaseQuery       string               `json:"baseQuery"`
	Criteria        models.QueryCriteria `json:"criteria"`
	EnhancementType EnhancementType      `json:"enhancementType"`
	TargetCount     int                  `json:"targetCount"`
	DiversityBoost  float64              `json:"diversityBoost"`
}

// CompletionRequest is what a Provider receives.
type CompletionRequest struct {
	System      string  `json:"system"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type completionResponse struct {
	Text string `json:"text"`
}

// Outcome is the settled result of one enhancement type.
type Outcome struct {
	Type    EnhancementType
	Queries []string
	Err     error
}

// ProviderError wraps any failure talking to an AI provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// QueryTypeFor maps an enhancement type to the stored query type.
func QueryTypeFor(t EnhancementType) models.QueryType {
	switch t {
	case TypeExpansion:
		return models.QueryTypeExpanded
	case TypeRefinement:
		return models.QueryTypeRefined
	case TypeLocalization:
		return models.QueryTypeLocalized
	}
	return models.QueryTypeEnhanced
}

// TypesFor lists the enhancement types that apply to the criteria.
func TypesFor(criteria models.QueryCriteria) []EnhancementType {
	types := []EnhancementType{TypeExpansion, TypeRefinement}
	if len(criteria.Values(models.DimensionCountry)) > 0 {
		types = append(types, TypeLocalization)
	}
	return types
}
