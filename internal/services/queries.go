package services

import (
	"context"
	"fmt"

	"github.com/Ayash-Bera/querygen/internal/models"
)

// SearchStats summarizes the persisted candidates of one search.
type SearchStats struct {
	SearchID string                       `json:"searchId"`
	Total    int64                        `json:"total"`
	ByStatus map[models.QueryStatus]int64 `json:"byStatus"`
}

func (s *GenerationService) ListQueries(ctx context.Context, searchID string) ([]models.GeneratedQuery, error) {
	queries, err := s.queries.GetBySearch(ctx, searchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list queries for search %s: %w", searchID, err)
	}
	return queries, nil
}

func (s *GenerationService) QueryStats(ctx context.Context, searchID string) (*SearchStats, error) {
	counts, err := s.queries.CountByStatus(ctx, searchID)
	if err != nil {
		return nil, fmt.Errorf("failed to count queries for search %s: %w", searchID, err)
	}

	stats := &SearchStats{SearchID: searchID, ByStatus: make(map[models.QueryStatus]int64, len(counts))}
	for _, c := range counts {
		stats.ByStatus[c.Status] = c.Count
		stats.Total += c.Count
	}
	return stats, nil
}

func (s *GenerationService) PerformanceSummary(ctx context.Context) ([]models.OperationSummary, error) {
	summary, err := s.perfLogs.SummarizeByOperation(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize performance logs: %w", err)
	}
	return summary, nil
}
