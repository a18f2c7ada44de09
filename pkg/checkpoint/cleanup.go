package checkpoint

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/phoenixlabs/phoenix/internal/config"
)

// Cleanup removes checkpoints for threads idle longer than the configured
// retention window. The sweep runs on a cron schedule; a max age of zero
// disables deletion entirely.
type Cleanup struct {
	store    *Store
	maxAge   time.Duration
	schedule string
	logger   zerolog.Logger

	cron    *cron.Cron
	entryID cron.EntryID
	running bool
}

// NewCleanup creates a retention sweeper from checkpoint configuration
func NewCleanup(store *Store, cfg config.CheckpointConfig, logger zerolog.Logger) *Cleanup {
	return &Cleanup{
		store:    store,
		maxAge:   time.Duration(cfg.MaxAgeDays) * 24 * time.Hour,
		schedule: cfg.CleanupSchedule,
		logger:   logger.With().Str("component", "checkpoint_cleanup").Logger(),
	}
}

// Start schedules the sweep
func (c *Cleanup) Start() error {
	if c.running {
		return fmt.Errorf("checkpoint cleanup is already running")
	}
	if c.maxAge == 0 {
		c.logger.Info().Msg("Checkpoint retention disabled, keeping all checkpoints")
		return nil
	}

	c.cron = cron.New()
	entryID, err := c.cron.AddFunc(c.schedule, func() {
		if err := c.SweepNow(); err != nil {
			c.logger.Error().Err(err).Msg("Checkpoint retention sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", c.schedule, err)
	}

	c.entryID = entryID
	c.cron.Start()
	c.running = true

	c.logger.Info().
		Str("schedule", c.schedule).
		Dur("max_age", c.maxAge).
		Msg("Checkpoint cleanup started")

	return nil
}

// Stop stops the scheduled sweep
func (c *Cleanup) Stop() {
	if !c.running {
		return
	}
	c.cron.Stop()
	c.running = false
	c.logger.Info().Msg("Checkpoint cleanup stopped")
}

// IsRunning reports whether the sweep is scheduled
func (c *Cleanup) IsRunning() bool {
	return c.running
}

// SweepNow immediately deletes checkpoints idle longer than the retention
// window and reports how many were removed.
func (c *Cleanup) SweepNow() error {
	if c.maxAge == 0 {
		return nil
	}

	threads, err := c.store.ListThreads()
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}

	now := time.Now()
	deleted := 0

	for _, threadID := range threads {
		modified, err := c.store.LastModified(threadID)
		if err != nil {
			c.logger.Warn().
				Str("thread_id", threadID).
				Err(err).
				Msg("Failed to stat checkpoint")
			continue
		}

		age := now.Sub(modified)
		if age < c.maxAge {
			continue
		}

		if err := c.store.Delete(threadID); err != nil {
			c.logger.Error().
				Str("thread_id", threadID).
				Err(err).
				Msg("Failed to delete expired checkpoint")
			continue
		}
		deleted++

		c.logger.Debug().
			Str("thread_id", threadID).
			Dur("age", age).
			Msg("Expired checkpoint deleted")
	}

	if deleted > 0 {
		c.logger.Info().Int("deleted", deleted).Msg("Checkpoint retention sweep completed")
	}

	return nil
}
