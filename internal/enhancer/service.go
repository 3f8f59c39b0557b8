// Package enhancer asks an AI provider for query variants and settles the
// per-type outcomes without letting one failure affect the others.
package enhancer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ayash-Bera/querygen/internal/models"
	"github.com/Ayash-Bera/querygen/internal/optimizer"
	"github.com/sirupsen/logrus"
)

const requestTypePrefix = "ai-enhancement:"

type Options struct {
	TargetCount    int
	DiversityBoost float64
	Temperature    float64
	MaxTokens      int
	CacheTTL       time.Duration
	BatchRequests  bool
}

func DefaultOptions() Options {
	return Options{
		TargetCount:    5,
		DiversityBoost: 0.5,
		Temperature:    0.7,
		MaxTokens:      400,
		CacheTTL:       1800 * time.Second,
	}
}

type Service struct {
	provider  Provider
	optimizer *optimizer.Optimizer
	logger    *logrus.Logger
	opts      Options
}

func NewService(provider Provider, opt *optimizer.Optimizer, logger *logrus.Logger, opts Options) *Service {
	if opts.TargetCount <= 0 {
		opts.TargetCount = DefaultOptions().TargetCount
	}
	return &Service{
		provider:  provider,
		optimizer: opt,
		logger:    logger,
		opts:      opts,
	}
}

// EnhanceQuery returns up to req.TargetCount variants of req.BaseQuery.
func (s *Service) EnhanceQuery(ctx context.Context, req EnhancementRequest) ([]string, error) {
	if req.TargetCount <= 0 {
		req.TargetCount = s.opts.TargetCount
	}

	completion := CompletionRequest{
		System:      systemPrompt,
		Prompt:      BuildPrompt(req),
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	}

	data, err := s.optimizer.Execute(ctx, optimizer.Request{
		Type:      requestTypePrefix + string(req.EnhancementType),
		Payload:   req,
		Batchable: s.opts.BatchRequests,
		CacheTTL:  s.opts.CacheTTL,
	}, func(ctx context.Context, attempt int) ([]byte, error) {
		s.logger.WithFields(logrus.Fields{
			"type":     req.EnhancementType,
			"attempt":  attempt,
			"provider": s.provider.Name(),
		}).Debug("Calling AI provider")

		text, err := s.provider.Complete(ctx, completion)
		if err != nil {
			return nil, err
		}
		return []byte(text), nil
	})
	if err != nil {
		var perr *ProviderError
		if !errors.As(err, &perr) {
			err = &ProviderError{Provider: s.provider.Name(), Err: err}
		}
		return nil, err
	}

	return ParseLines(string(data), req.BaseQuery, req.TargetCount), nil
}

// EnhanceAll runs every applicable enhancement type concurrently.
func (s *Service) EnhanceAll(ctx context.Context, baseQuery string, criteria models.QueryCriteria) []Outcome {
	types := TypesFor(criteria)

	tasks := make([]func(context.Context) ([]string, error), 0, len(types))
	for _, t := range types {
		req := EnhancementRequest{
			BaseQuery:       baseQuery,
			Criteria:        criteria,
			EnhancementType: t,
			TargetCount:     s.opts.TargetCount,
			DiversityBoost:  s.opts.DiversityBoost,
		}
		tasks = append(tasks, func(ctx context.Context) ([]string, error) {
			return s.EnhanceQuery(ctx, req)
		})
	}

	results := SettleAll(ctx, tasks)

	outcomes := make([]Outcome, len(types))
	for i, res := range results {
		outcomes[i] = Outcome{Type: types[i], Queries: res.Value, Err: res.Err}
		if res.Err != nil {
			s.logger.WithError(res.Err).WithField("type", types[i]).Warn("AI enhancement failed")
			outcomes[i].Err = fmt.Errorf("ai enhancement (%s) failed: %w", types[i], res.Err)
		}
	}
	return outcomes
}
