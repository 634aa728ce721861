package graphdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vibegraph/internal/model"
)

// MaxDegree is the deepest emitter->sensor path length the views cover.
const MaxDegree = 3

// refreshSQL rebuilds one degree table from the edge table. Self-pairs are
// excluded here, not at edge-write time.
var refreshSQL = map[int]string{
	1: `INSERT INTO vibe_degree_1(emitter_id, sensor_id, path_count)
	    SELECT emitter_id, sensor_id, 1
	    FROM good_vibes
	    WHERE emitter_id != sensor_id`,
	2: `INSERT INTO vibe_degree_2(emitter_id, sensor_id, path_count)
	    SELECT g1.emitter_id, g2.sensor_id, COUNT(*)
	    FROM good_vibes g1
	    JOIN good_vibes g2 ON g1.sensor_id = g2.emitter_id
	    WHERE g1.emitter_id != g2.sensor_id
	    GROUP BY g1.emitter_id, g2.sensor_id`,
	3: `INSERT INTO vibe_degree_3(emitter_id, sensor_id, path_count)
	    SELECT g1.emitter_id, g3.sensor_id, COUNT(*)
	    FROM good_vibes g1
	    JOIN good_vibes g2 ON g1.sensor_id = g2.emitter_id
	    JOIN good_vibes g3 ON g2.sensor_id = g3.emitter_id
	    WHERE g1.emitter_id != g3.sensor_id
	    GROUP BY g1.emitter_id, g3.sensor_id`,
}

// RefreshDegreeViews rebuilds every degree table, timing each rebuild
// independently and recording it in view_refresh_metrics. A failure on one
// degree does not block the others; the joined error reports all of them.
func (d *DB) RefreshDegreeViews(ctx context.Context) ([]model.RefreshResult, error) {
	var results []model.RefreshResult
	var errs []error
	for degree := 1; degree <= MaxDegree; degree++ {
		start := time.Now()
		if err := d.refreshDegree(ctx, degree); err != nil {
			errs = append(errs, fmt.Errorf("degree %d: %w", degree, err))
			continue
		}
		elapsed := time.Since(start)
		results = append(results, model.RefreshResult{Degree: degree, Duration: elapsed})
		_, err := d.sql.ExecContext(ctx,
			`INSERT INTO view_refresh_metrics(degree, refreshed_at, duration_ms) VALUES(?,?,?)`,
			degree, start.UTC().Unix(), elapsed.Milliseconds())
		if err != nil {
			errs = append(errs, fmt.Errorf("degree %d metric: %w", degree, err))
		}
	}
	return results, errors.Join(errs...)
}

func (d *DB) refreshDegree(ctx context.Context, degree int) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM vibe_degree_%d`, degree)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, refreshSQL[degree]); err != nil {
		return err
	}
	return tx.Commit()
}

// DegreeScore returns path counts from the requester to the target at
// degrees 1..MaxDegree, read from the precomputed tables. An unknown
// target or an empty graph yields all zeros, not an error.
func (d *DB) DegreeScore(ctx context.Context, requesterID, targetUsername string) ([MaxDegree]int, error) {
	var scores [MaxDegree]int
	targetID, err := d.UserIDByUsername(ctx, targetUsername)
	if errors.Is(err, ErrNotFound) {
		return scores, nil
	}
	if err != nil {
		return scores, err
	}
	for degree := 1; degree <= MaxDegree; degree++ {
		row := d.sql.QueryRowContext(ctx, fmt.Sprintf(
			`SELECT COALESCE(SUM(path_count), 0) FROM vibe_degree_%d WHERE emitter_id=? AND sensor_id=?`, degree),
			requesterID, targetID)
		if err := row.Scan(&scores[degree-1]); err != nil {
			return scores, err
		}
	}
	return scores, nil
}

// LastViewRefresh returns when any degree view was last rebuilt, or the
// zero time when never.
func (d *DB) LastViewRefresh(ctx context.Context) (time.Time, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT COALESCE(MAX(refreshed_at), 0) FROM view_refresh_metrics`)
	var ts int64
	if err := row.Scan(&ts); err != nil {
		return time.Time{}, err
	}
	if ts == 0 {
		return time.Time{}, nil
	}
	return time.Unix(ts, 0).UTC(), nil
}
