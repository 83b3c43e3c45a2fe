// -----------------------------------------------------------------------
// Job Poller - Advances queued and running jobs on a fixed schedule
// -----------------------------------------------------------------------

package poller

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/models"
)

// Poller calls run() on every non-terminal job at a fixed interval, which
// is what drives jobs across batches. Batch invocations are idempotent,
// so overlapping external callers are harmless; within this process,
// ticks that would overlap are skipped.
type Poller struct {
	audit  interfaces.AuditService
	jobs   interfaces.JobStorage
	cron   *cron.Cron
	logger arbor.ILogger
}

// NewPoller creates a job poller
func NewPoller(audit interfaces.AuditService, jobs interfaces.JobStorage, logger arbor.ILogger) *Poller {
	return &Poller{
		audit:  audit,
		jobs:   jobs,
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger,
	}
}

// Start begins polling on the given cron schedule
func (p *Poller) Start(schedule string) error {
	if schedule == "" {
		schedule = "@every 5s"
	}

	_, err := p.cron.AddFunc(schedule, p.tick)
	if err != nil {
		return err
	}

	p.cron.Start()
	p.logger.Info().Str("schedule", schedule).Msg("Job poller started")
	return nil
}

// Stop stops the poller. In-flight ticks run to completion.
func (p *Poller) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
	p.logger.Info().Msg("Job poller stopped")
}

func (p *Poller) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	jobs, err := p.jobs.ListJobsByStatus(ctx, models.JobStatusQueued, models.JobStatusRunning)
	if err != nil {
		p.logger.Error().Err(err).Msg("Poller failed to list active jobs")
		return
	}

	for _, job := range jobs {
		if _, err := p.audit.Run(ctx, job.ID, 0); err != nil {
			p.logger.Error().
				Err(err).
				Str("job_id", job.ID).
				Msg("Poller batch failed")
		}
	}
}
