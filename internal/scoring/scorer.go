// Package scoring rates candidate queries on relevance, diversity and
// complexity and ranks them.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Ayash-Bera/querygen/internal/models"
	"github.com/Ayash-Bera/querygen/internal/textproc"
)

const (
	DefaultMinScore = 0.3

	weightTolerance = 1e-6

	recallWeight    = 0.7
	precisionWeight = 0.3

	idealMinTokens = 3
	idealMaxTokens = 8
	maxTokens      = 18
	longQueryChars = 200
)

type Weights struct {
	Relevance  float64 `json:"relevance"`
	Diversity  float64 `json:"diversity"`
	Complexity float64 `json:"complexity"`
}

// DefaultWeights keeps the 0.4 : 0.25 : 0.2 ratio, normalized to sum to one.
func DefaultWeights() Weights {
	return Weights{Relevance: 8.0 / 17.0, Diversity: 5.0 / 17.0, Complexity: 4.0 / 17.0}
}

func (w Weights) Validate() error {
	for name, v := range map[string]float64{"relevance": w.Relevance, "diversity": w.Diversity, "complexity": w.Complexity} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%s weight must be non-negative, got %v", name, v)
		}
	}
	if sum := w.Relevance + w.Diversity + w.Complexity; math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("weights must sum to 1.0, got %.6f", sum)
	}
	return nil
}

// Reference is what candidates are judged against.
type Reference struct {
	OriginalQuery string
	Criteria      models.QueryCriteria
}

// Terms returns the stemmed meaningful tokens of the query and every
// criteria value.
func (r Reference) Terms() map[string]struct{} {
	parts := []string{r.OriginalQuery}
	for _, dim := range models.AllDimensions {
		parts = append(parts, r.Criteria.Values(dim)...)
	}
	return textproc.TermSet(strings.Join(parts, " "))
}

type Scorer struct {
	weights  Weights
	minScore float64
}

func NewScorer(weights Weights, minScore float64) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if minScore < 0 || minScore > 1 {
		return nil, fmt.Errorf("min score must be within [0,1], got %v", minScore)
	}
	return &Scorer{weights: weights, minScore: minScore}, nil
}

func (s *Scorer) Weights() Weights { return s.weights }

// MinScore is the default acceptance threshold; the scorer itself never
// filters.
func (s *Scorer) MinScore() float64 { return s.minScore }

// ScoreAndRank fills Scores on every candidate and returns them sorted by
// overall score, highest first. Ties keep the input order, which is also
// the order diversity is measured in.
func (s *Scorer) ScoreAndRank(ref Reference, candidates []models.GeneratedQuery) []models.GeneratedQuery {
	terms := ref.Terms()
	out := make([]models.GeneratedQuery, len(candidates))
	copy(out, candidates)

	for i := range out {
		relevance := Relevance(terms, out[i].Text)
		diversity := Diversity(out[i].Text, out[:i])
		complexity := Complexity(out[i].Text)

		out[i].Scores = models.QueryScores{
			Relevance:  relevance,
			Diversity:  diversity,
			Complexity: complexity,
			Overall: clamp(s.weights.Relevance*relevance +
				s.weights.Diversity*diversity +
				s.weights.Complexity*complexity),
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Scores.Overall > out[j].Scores.Overall
	})
	return out
}

// Relevance is 0.7*recall + 0.3*precision of the candidate's terms against
// the reference terms.
func Relevance(reference map[string]struct{}, text string) float64 {
	candidate := textproc.TermSet(text)
	if len(reference) == 0 || len(candidate) == 0 {
		return 0
	}
	shared := 0
	for term := range candidate {
		if _, ok := reference[term]; ok {
			shared++
		}
	}
	recall := float64(shared) / float64(len(reference))
	precision := float64(shared) / float64(len(candidate))
	return clamp(recallWeight*recall + precisionWeight*precision)
}

// Diversity is 1 minus the highest similarity to any earlier candidate.
func Diversity(text string, earlier []models.GeneratedQuery) float64 {
	maxSim := 0.0
	for i := range earlier {
		if sim := textproc.Similarity(text, earlier[i].Text); sim > maxSim {
			maxSim = sim
		}
	}
	return clamp(1 - maxSim)
}

// Complexity favours queries of three to eight tokens.
func Complexity(text string) float64 {
	n := len(textproc.Tokens(text))
	var score float64
	switch {
	case n < idealMinTokens:
		score = float64(n) / idealMinTokens
	case n <= idealMaxTokens:
		score = 1
	case n < maxTokens:
		score = float64(maxTokens-n) / float64(maxTokens-idealMaxTokens)
	default:
		score = 0
	}
	if utf8.RuneCountInString(text) > longQueryChars {
		score *= 0.5
	}
	return score
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
