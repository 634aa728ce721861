package engage

import (
	"context"
	"time"

	"vibegraph/internal/config"
	"vibegraph/internal/store/graphdb"
)

const actionReply = "reply"

// ShouldAllowReply checks hourly/daily reply budgets before posting.
func ShouldAllowReply(ctx context.Context, db *graphdb.DB, cfg config.RepliesConfig, now time.Time) (bool, error) {
	startHour := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, time.UTC)
	startDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	hourCount, err := db.CountActionsWithin(ctx, startHour, startHour.Add(time.Hour), actionReply)
	if err != nil {
		return false, err
	}
	dayCount, err := db.CountActionsWithin(ctx, startDay, startDay.Add(24*time.Hour), actionReply)
	if err != nil {
		return false, err
	}
	if cfg.MaxPerHour > 0 && hourCount >= cfg.MaxPerHour {
		return false, nil
	}
	if cfg.MaxPerDay > 0 && dayCount >= cfg.MaxPerDay {
		return false, nil
	}
	return true, nil
}

// RecordReply logs a posted reply against the budget window.
func RecordReply(ctx context.Context, db *graphdb.DB, now time.Time) error {
	return db.PutAction(ctx, now, actionReply)
}
