package services

import (
	"context"
	"log/slog"
	"time"
)

// Refresher periodically recomputes admin overviews and retries explanation
// bundles held in the fallback cache.
type Refresher struct {
	overview    OverviewService
	publication PublicationService
	interval    time.Duration
	logger      *slog.Logger
}

func NewRefresher(overview OverviewService, publication PublicationService, interval time.Duration, logger *slog.Logger) *Refresher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Refresher{
		overview:    overview,
		publication: publication,
		interval:    interval,
		logger:      logger,
	}
}

// Run refreshes on every interval until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("Overview refresher started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Overview refresher stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

func (r *Refresher) RunOnce(ctx context.Context) {
	if synced, err := r.publication.RetryPendingExplanations(ctx); err != nil {
		r.logger.Warn("Pending explanations still unsynced", "synced", synced, "error", err)
	}

	refreshed, err := r.overview.RefreshAll(ctx)
	if err != nil {
		r.logger.Warn("Overview refresh incomplete", "refreshed", refreshed, "error", err)
		return
	}
	r.logger.Debug("Overviews refreshed", "count", refreshed)
}
