// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultCorrectionRefreshSpec reloads corrections every five minutes
const DefaultCorrectionRefreshSpec = "*/5 * * * *"

// CorrectionReloader refreshes in-memory category corrections from their store
// and reports how many classifiers were refreshed.
type CorrectionReloader interface {
	ReloadCorrections(ctx context.Context) (int, error)
}

// SessionEvictor drops import sessions idle for longer than the given duration
// and reports how many were dropped.
type SessionEvictor interface {
	EvictIdle(idle time.Duration) int
}

// DefaultSessionEvictionSpec sweeps idle sessions every ten minutes
const DefaultSessionEvictionSpec = "@every 10m"

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron     *cron.Cron
	reloader CorrectionReloader
	spec     string
	timeout  time.Duration
	logger   *slog.Logger

	evictor SessionEvictor
	idle    time.Duration
}

// NewScheduler creates a new job scheduler. An empty spec uses DefaultCorrectionRefreshSpec.
func NewScheduler(reloader CorrectionReloader, spec string, logger *slog.Logger) *Scheduler {
	// Create cron with seconds disabled (standard 5-field format)
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	if spec == "" {
		spec = DefaultCorrectionRefreshSpec
	}
	return &Scheduler{
		cron:     c,
		reloader: reloader,
		spec:     spec,
		timeout:  time.Minute,
		logger:   logger,
	}
}

// WithSessionEviction adds a job that evicts sessions idle for longer than idle.
// A zero idle leaves the job out.
func (s *Scheduler) WithSessionEviction(evictor SessionEvictor, idle time.Duration) *Scheduler {
	s.evictor = evictor
	s.idle = idle
	return s
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, s.reloadCorrections)
	if err != nil {
		return err
	}
	if s.evictor != nil && s.idle > 0 {
		if _, err := s.cron.AddFunc(DefaultSessionEvictionSpec, s.evictSessions); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
		slog.String("correction_refresh", s.spec),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow triggers a correction reload synchronously.
func (s *Scheduler) RunNow() {
	s.reloadCorrections()
}

func (s *Scheduler) reloadCorrections() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.reloader.ReloadCorrections(ctx)
	if err != nil {
		s.logger.Warn("failed to reload category corrections",
			slog.Int("classifiers", n),
			slog.Any("error", err),
		)
		return
	}

	s.logger.Debug("category corrections reloaded",
		slog.Int("classifiers", n),
		slog.Duration("duration", time.Since(start)),
	)
}

func (s *Scheduler) evictSessions() {
	n := s.evictor.EvictIdle(s.idle)
	s.logger.Debug("idle import sessions swept",
		slog.Int("evicted", n),
		slog.Duration("idle", s.idle),
	)
}
