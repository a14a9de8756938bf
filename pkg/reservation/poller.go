package reservation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tykeal/homeassistant-captive-portal/internal/telemetry"
)

// Poller runs the synchronized batch poll of spec §4.E: every interval it
// polls all enabled integrations that are due (past their per-integration
// backoff), projects the results, and persists them. Grounded on the
// teacher's RunScheduleTopUpLoop shape (ticker + run-once-at-start +
// select/ctx.Done loop).
type Poller struct {
	pool     *pgxpool.Pool
	store    *Store
	source   Source
	logger   *slog.Logger
	interval time.Duration

	mu          sync.Mutex
	nextAttempt map[string]time.Time
}

// NewPoller creates a Poller. interval is the synchronized batch cadence
// (spec default 60s); per-integration backoff only delays an integration's
// own next poll within that cadence, it never changes the global tick.
func NewPoller(pool *pgxpool.Pool, source Source, logger *slog.Logger, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = PollInterval
	}
	return &Poller{
		pool:        pool,
		store:       NewStore(pool),
		source:      source,
		logger:      logger,
		interval:    interval,
		nextAttempt: make(map[string]time.Time),
	}
}

// Run polls on a fixed ticker until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("reservation poller started", "interval", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("reservation poller stopped")
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce polls every enabled, due integration once.
func (p *Poller) pollOnce(ctx context.Context) {
	integrations, err := p.store.EnabledIntegrations(ctx)
	if err != nil {
		p.logger.Error("listing enabled integrations", "error", err)
		return
	}

	now := time.Now().UTC()
	for _, cfg := range integrations {
		if !p.due(cfg.IntegrationID, now) {
			continue
		}
		p.pollIntegration(ctx, cfg)
	}
}

func (p *Poller) due(integrationID string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, ok := p.nextAttempt[integrationID]
	return !ok || !now.Before(next)
}

func (p *Poller) scheduleNext(integrationID string, consecutiveErrors int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextAttempt[integrationID] = time.Now().UTC().Add(NextBackoff(consecutiveErrors))
}

func (p *Poller) pollIntegration(ctx context.Context, cfg *IntegrationConfig) {
	raw, err := p.source.FetchEvents(ctx, cfg.IntegrationID)
	if err != nil {
		telemetry.ReservationPollsTotal.WithLabelValues("error").Inc()
		if rerr := p.store.RecordPollError(ctx, cfg.IntegrationID); rerr != nil {
			p.logger.Error("recording poll error", "integration_id", cfg.IntegrationID, "error", rerr)
		}
		p.scheduleNext(cfg.IntegrationID, cfg.ConsecutiveErrors+1)
		p.logger.Warn("polling reservation source failed", "integration_id", cfg.IntegrationID, "error", err)
		return
	}
	telemetry.ReservationPollsTotal.WithLabelValues("success").Inc()

	events := Project(cfg, raw)
	for _, e := range events {
		if err := p.store.UpsertEvent(ctx, e); err != nil {
			p.logger.Error("upserting rental event", "integration_id", cfg.IntegrationID, "event_index", e.EventIndex, "error", err)
		}
	}

	if err := p.store.RecordPollSuccess(ctx, cfg.IntegrationID); err != nil {
		p.logger.Error("recording poll success", "integration_id", cfg.IntegrationID, "error", err)
	}
	p.mu.Lock()
	delete(p.nextAttempt, cfg.IntegrationID)
	p.mu.Unlock()
}

// RunRetentionSweep deletes rental events more than 7 days past their
// end_utc (spec §4.E), returning the count deleted for the caller to audit.
func (p *Poller) RunRetentionSweep(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-RetentionWindow)
	return p.store.DeleteWhereEndBefore(ctx, cutoff)
}
