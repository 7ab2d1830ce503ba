package artifacts

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// Retention periodically prunes the artifact directory
type Retention struct {
	service *Service
	cron    *cron.Cron
	logger  arbor.ILogger
}

// NewRetention creates a retention sweeper for service
func NewRetention(service *Service, logger arbor.ILogger) *Retention {
	return &Retention{
		service: service,
		cron:    cron.New(),
		logger:  logger,
	}
}

// Start begins the sweep on schedule. An empty schedule disables it.
func (r *Retention) Start(schedule string) error {
	if schedule == "" {
		r.logger.Info().Msg("Artifact retention sweep disabled")
		return nil
	}

	if _, err := r.cron.AddFunc(schedule, r.RunNow); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}

	r.cron.Start()
	r.logger.Info().
		Str("schedule", schedule).
		Int("max_files", r.service.MaxFiles()).
		Msg("Artifact retention sweep started")
	return nil
}

// Stop stops the sweep and waits for a running pass to finish
func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info().Msg("Artifact retention sweep stopped")
}

// RunNow prunes immediately
func (r *Retention) RunNow() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := r.service.Prune(ctx, r.service.MaxFiles())
	if err != nil {
		r.logger.Error().Err(err).Msg("Artifact retention sweep failed")
		return
	}

	r.logger.Debug().Int("removed", removed).Msg("Artifact retention sweep completed")
}
