package models

// GenerateQueriesRequest is the HTTP body of a generation call.
type GenerateQueriesRequest struct {
	SearchID      string        `json:"searchId" binding:"omitempty,max=64"`
	BatchID       string        `json:"batchId" binding:"omitempty,max=64"`
	OriginalQuery string        `json:"originalQuery" binding:"required,max=500"`
	Criteria      QueryCriteria `json:"criteria"`
	Options       struct {
		MaxQueries          *int     `json:"maxQueries" binding:"omitempty,min=1,max=100"`
		MinRelevanceScore   *float64 `json:"minRelevanceScore" binding:"omitempty,min=0,max=1"`
		EnableAIEnhancement *bool    `json:"enableAIEnhancement"`
	} `json:"options"`
}

// ToDomain fills unset options from defaults.
func (r GenerateQueriesRequest) ToDomain(defaults GenerationOptions) QueryGenerationRequest {
	opts := defaults
	if r.Options.MaxQueries != nil {
		opts.MaxQueries = *r.Options.MaxQueries
	}
	if r.Options.MinRelevanceScore != nil {
		opts.MinRelevanceScore = *r.Options.MinRelevanceScore
	}
	if r.Options.EnableAIEnhancement != nil {
		opts.EnableAIEnhancement = *r.Options.EnableAIEnhancement
	}
	return QueryGenerationRequest{
		SearchID:      r.SearchID,
		BatchID:       r.BatchID,
		OriginalQuery: r.OriginalQuery,
		Criteria:      r.Criteria,
		Options:       opts,
	}
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}
