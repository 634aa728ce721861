package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"vibegraph/internal/auth"
	"vibegraph/internal/config"
	"vibegraph/internal/ingest"
	"vibegraph/internal/logging"
	"vibegraph/internal/metrics"
	"vibegraph/internal/model"
	"vibegraph/internal/store/graphdb"
	"vibegraph/internal/xclient"
)

const (
	cursorHashtagSince  = "ingest:hashtag_since"
	cursorMentionsSince = "ingest:mentions_since"
)

// Runner drives the periodic ingestion tick. A tick never overlaps a
// previous one: if a tick is still running when the next fires, the new
// one is skipped and counted.
type Runner struct {
	db      *graphdb.DB
	client  xclient.XClient
	auth    *auth.Manager
	proc    *ingest.Processor
	cfg     config.Config
	running atomic.Bool
}

func NewRunner(db *graphdb.DB, client xclient.XClient, am *auth.Manager, cfg config.Config) *Runner {
	return &Runner{
		db:     db,
		client: client,
		auth:   am,
		proc:   ingest.NewProcessor(db, client, am, cfg),
		cfg:    cfg,
	}
}

// RunLoop runs ticks on the configured interval until ctx is cancelled.
// The first tick runs immediately.
func (r *Runner) RunLoop(ctx context.Context) error {
	t := time.NewTicker(r.cfg.Ingestion.TickInterval)
	defer t.Stop()
	if err := r.TickOnce(ctx); err != nil {
		logging.Error("tick error", map[string]any{"error": err.Error()})
	}
	for {
		select {
		case <-ctx.Done():
			logging.Info("tick loop stop", nil)
			return ctx.Err()
		case <-t.C:
			if err := r.TickOnce(ctx); err != nil {
				logging.Error("tick error", map[string]any{"error": err.Error()})
			}
		}
	}
}

// TickOnce runs one ingestion tick: hashtag search, mention queries, view
// refresh when due, expired session sweep. Phase failures are isolated;
// a rate-limited phase abandons its remainder until the next tick.
func (r *Runner) TickOnce(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		metrics.TickSkips.Inc()
		logging.Warn("tick skipped: previous tick still running", nil)
		return nil
	}
	defer r.running.Store(false)

	start := time.Now()
	metrics.TickRuns.Inc()
	defer metrics.ObserveTickDuration(start)

	var errs []error
	if err := r.ingestHashtag(ctx); err != nil {
		metrics.TickErrors.WithLabelValues("hashtag").Inc()
		errs = append(errs, fmt.Errorf("hashtag phase: %w", err))
	}
	if err := r.handleMentions(ctx); err != nil {
		metrics.TickErrors.WithLabelValues("mentions").Inc()
		errs = append(errs, fmt.Errorf("mentions phase: %w", err))
	}
	if err := r.refreshViewsIfDue(ctx); err != nil {
		metrics.TickErrors.WithLabelValues("views").Inc()
		errs = append(errs, fmt.Errorf("view refresh: %w", err))
	}
	if n, err := r.db.DeleteExpiredSessions(ctx, time.Now().UTC()); err != nil {
		metrics.TickErrors.WithLabelValues("sessions").Inc()
		errs = append(errs, fmt.Errorf("session sweep: %w", err))
	} else if n > 0 {
		logging.Info("expired sessions removed", map[string]any{"count": n})
	}
	return errors.Join(errs...)
}

func (r *Runner) ingestHashtag(ctx context.Context) error {
	now := time.Now().UTC()
	since := r.sinceFor(ctx, cursorHashtagSince, now)
	tweets, err := r.search(ctx, "#"+r.cfg.Account.Hashtag, since)
	if err != nil {
		return r.noteRateLimit("hashtag search", err)
	}
	if err := r.proc.ProcessHashtagResults(ctx, tweets); err != nil {
		return err
	}
	_ = r.db.SaveCursor(ctx, cursorHashtagSince, now.Format(time.RFC3339Nano))
	logging.Info("hashtag ingest", map[string]any{"since": since, "tweets": len(tweets)})
	return nil
}

func (r *Runner) handleMentions(ctx context.Context) error {
	now := time.Now().UTC()
	since := r.sinceFor(ctx, cursorMentionsSince, now)
	tweets, err := r.search(ctx, "@"+r.cfg.Account.Username, since)
	if err != nil {
		return r.noteRateLimit("mention search", err)
	}
	if err := r.proc.ProcessMentions(ctx, tweets); err != nil {
		return err
	}
	_ = r.db.SaveCursor(ctx, cursorMentionsSince, now.Format(time.RFC3339Nano))
	logging.Info("mention ingest", map[string]any{"since": since, "tweets": len(tweets)})
	return nil
}

func (r *Runner) search(ctx context.Context, query string, since time.Time) ([]model.Tweet, error) {
	var tweets []model.Tweet
	err := r.auth.Do(ctx, func(ctx context.Context, token string) error {
		var err error
		tweets, err = r.client.SearchRecent(ctx, token, query, since, 100)
		return err
	})
	return tweets, err
}

// refreshViewsIfDue rebuilds the degree views when the last refresh is
// older than the configured interval.
func (r *Runner) refreshViewsIfDue(ctx context.Context) error {
	last, err := r.db.LastViewRefresh(ctx)
	if err != nil {
		return err
	}
	if !last.IsZero() && time.Since(last) < r.cfg.Ingestion.ViewRefreshInterval {
		return nil
	}
	results, err := r.db.RefreshDegreeViews(ctx)
	for _, res := range results {
		metrics.ObserveViewRefresh(res.Degree, res.Duration)
		logging.Info("degree view refreshed", map[string]any{
			"degree":      res.Degree,
			"duration_ms": res.Duration.Milliseconds(),
		})
	}
	return err
}

// sinceFor prefers the stored cursor and falls back to the search window.
func (r *Runner) sinceFor(ctx context.Context, key string, now time.Time) time.Time {
	since := now.Add(-r.cfg.Ingestion.SearchWindow)
	if v, err := r.db.LoadCursor(ctx, key); err == nil && v != "" {
		if ts, err2 := time.Parse(time.RFC3339Nano, v); err2 == nil {
			since = ts
		}
	}
	return since
}

// noteRateLimit downgrades a 429 to a logged skip: the cursor stays put so
// the next tick covers the same window after the reset.
func (r *Runner) noteRateLimit(phase string, err error) error {
	var rl *xclient.RateLimitError
	if errors.As(err, &rl) {
		logging.Warn("rate limited, phase abandoned", map[string]any{
			"phase": phase,
			"reset": rl.Reset.UTC().Format(time.RFC3339),
		})
		return nil
	}
	return err
}
