package generation

import (
	"context"
	"errors"
	"fmt"

	"notebook/internal/domain"
	"notebook/internal/infra"
)

// Chain tries strategies in order until one produces an outcome.
//
// A timed-out outcome is returned as is: the remote job is still running and
// starting a second generation elsewhere would duplicate work.
type Chain struct {
	strategies []Strategy
	logger     *infra.Logger
}

// NewChain builds a chain. Nil strategies are dropped.
func NewChain(logger *infra.Logger, strategies ...Strategy) *Chain {
	c := &Chain{logger: infra.OrDiscard(logger)}
	for _, s := range strategies {
		if s != nil {
			c.strategies = append(c.strategies, s)
		}
	}
	return c
}

// Names lists the strategies that currently have credentials.
func (c *Chain) Names() []string {
	var names []string
	for _, s := range c.strategies {
		if s.Available() {
			names = append(names, s.Name())
		}
	}
	return names
}

func (c *Chain) Generate(ctx context.Context, req domain.GenerationRequest) (domain.Outcome, error) {
	var errs []error
	for _, s := range c.strategies {
		if !s.Available() {
			c.logger.Debug().Str("provider", s.Name()).Msg("generation: provider skipped, no credentials")
			continue
		}
		outcome, err := s.Generate(ctx, req)
		if err == nil {
			return outcome, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return outcome, ctxErr
		}
		c.logger.Warn().
			Err(err).
			Str("provider", s.Name()).
			Str("output_type", string(req.OutputType)).
			Msg("generation: provider failed, trying next")
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}
	if len(errs) == 0 {
		return domain.Outcome{}, fmt.Errorf("%w: no provider configured", domain.ErrProviderFailure)
	}
	return domain.Outcome{}, fmt.Errorf("%w: %w", domain.ErrProviderFailure, errors.Join(errs...))
}
