package aufguss

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"saunafreunde/internal/metrics"
)

// Tally credits finished claims to their claimants. Each claim counts once.
func (s *Service) Tally(ctx context.Context) (int, error) {
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.store.TallyFinished(sctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("tally: %w", err)
	}
	metrics.AddTallied(n)
	if n > 0 {
		s.logger.Info().Int("claims", n).Msg("Finished Aufguss claims credited")
	}
	return n, nil
}

// RegisterTally schedules Tally on c.
func (s *Service) RegisterTally(ctx context.Context, c *cron.Cron, spec string) error {
	_, err := c.AddFunc(spec, func() {
		if _, err := s.Tally(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Tally run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule tally '%s': %w", spec, err)
	}
	return nil
}
