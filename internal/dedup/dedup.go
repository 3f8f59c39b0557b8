// Package dedup removes near-identical candidate queries within one batch.
package dedup

import (
	"fmt"
	"sort"

	"github.com/Ayash-Bera/querygen/internal/models"
	"github.com/Ayash-Bera/querygen/internal/textproc"
)

type Method string

const (
	MethodExact      Method = "exact"
	MethodSimilarity Method = "similarity"
	MethodHybrid     Method = "hybrid"
)

const DefaultSimilarityThreshold = 0.8

// Duplicate reasons.
const (
	ReasonExact   = "exact_match"
	ReasonSimilar = "similar"
)

type Options struct {
	Method              Method
	SimilarityThreshold float64
	KeepHighestScored   bool
}

func DefaultOptions() Options {
	return Options{
		Method:              MethodHybrid,
		SimilarityThreshold: DefaultSimilarityThreshold,
		KeepHighestScored:   true,
	}
}

func (o Options) Validate() error {
	switch o.Method {
	case MethodExact, MethodSimilarity, MethodHybrid:
	default:
		return fmt.Errorf("unknown deduplication method %q", o.Method)
	}
	if o.SimilarityThreshold <= 0 || o.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be within (0,1], got %v", o.SimilarityThreshold)
	}
	return nil
}

type Duplicate struct {
	QueryID     string  `json:"queryId"`
	DuplicateOf string  `json:"duplicateOf"`
	Reason      string  `json:"reason"`
	Similarity  float64 `json:"similarity"`
}

type Stats struct {
	TotalProcessed    int `json:"totalProcessed"`
	DuplicatesRemoved int `json:"duplicatesRemoved"`
	UniqueQueries     int `json:"uniqueQueries"`
}

type Result struct {
	UniqueQueries []string    `json:"uniqueQueries"`
	Duplicates    []Duplicate `json:"duplicates"`
	Stats         Stats       `json:"stats"`
}

type Deduplicator struct {
	opts Options
}

func New(opts Options) (*Deduplicator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Deduplicator{opts: opts}, nil
}

func (d *Deduplicator) Options() Options { return d.opts }

// Deduplicate compares every candidate against every kept one, so no two
// kept candidates reach the threshold. Candidates are not modified; use
// Apply to mark the losers.
func (d *Deduplicator) Deduplicate(candidates []models.GeneratedQuery) Result {
	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	if d.opts.KeepHighestScored {
		sort.SliceStable(order, func(a, b int) bool {
			return candidates[order[a]].Scores.Overall > candidates[order[b]].Scores.Overall
		})
	}

	type kept struct {
		id         string
		normalized string
		text       string
	}
	var (
		keep   []kept
		result = Result{UniqueQueries: []string{}, Duplicates: []Duplicate{}}
	)

	for _, idx := range order {
		c := &candidates[idx]
		normalized := textproc.Normalize(c.Text)

		var dup *Duplicate
		for _, k := range keep {
			if dup = d.compare(c, normalized, k.id, k.normalized, k.text); dup != nil {
				break
			}
		}

		if dup != nil {
			result.Duplicates = append(result.Duplicates, *dup)
			continue
		}
		keep = append(keep, kept{id: c.ID, normalized: normalized, text: c.Text})
		result.UniqueQueries = append(result.UniqueQueries, c.ID)
	}

	result.Stats = Stats{
		TotalProcessed:    len(candidates),
		DuplicatesRemoved: len(result.Duplicates),
		UniqueQueries:     len(result.UniqueQueries),
	}
	return result
}

func (d *Deduplicator) compare(c *models.GeneratedQuery, normalized, keptID, keptNormalized, keptText string) *Duplicate {
	if d.opts.Method != MethodSimilarity && normalized == keptNormalized {
		return &Duplicate{QueryID: c.ID, DuplicateOf: keptID, Reason: ReasonExact, Similarity: 1}
	}
	if d.opts.Method == MethodExact {
		return nil
	}
	if sim := textproc.Similarity(c.Text, keptText); sim >= d.opts.SimilarityThreshold {
		reason := ReasonSimilar
		if sim == 1 {
			reason = ReasonExact
		}
		return &Duplicate{QueryID: c.ID, DuplicateOf: keptID, Reason: reason, Similarity: sim}
	}
	return nil
}

// Apply marks every duplicate CANCELLED with its duplicate metadata.
func Apply(candidates []models.GeneratedQuery, result Result) {
	byID := make(map[string]*Duplicate, len(result.Duplicates))
	for i := range result.Duplicates {
		byID[result.Duplicates[i].QueryID] = &result.Duplicates[i]
	}
	for i := range candidates {
		dup, ok := byID[candidates[i].ID]
		if !ok {
			continue
		}
		if candidates[i].Metadata == nil {
			candidates[i].Metadata = map[string]interface{}{}
		}
		candidates[i].Status = models.QueryStatusCancelled
		candidates[i].Metadata[models.MetaDuplicateOf] = dup.DuplicateOf
		candidates[i].Metadata[models.MetaSimilarity] = dup.Similarity
		candidates[i].Metadata[models.MetaDuplicateReason] = dup.Reason
	}
}
