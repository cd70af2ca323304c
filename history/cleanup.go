package history

import (
	"context"
	"fmt"
)

// Prune deletes every run except the newest keep, together with their
// workloads, and returns how many runs were removed.
//
// Example:
//
//	removed, err := repo.Prune(ctx, DefaultRetention)
func (r *Repository) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must be non-negative, got %d", keep)
	}
	conn, err := r.conn()
	if err != nil {
		return 0, err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM runs
		WHERE id NOT IN (SELECT id FROM runs ORDER BY created_at DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted runs: %w", err)
	}

	// Cascades when foreign keys are on; this covers connections where they are not.
	if _, err := tx.ExecContext(ctx, `DELETE FROM workloads WHERE run_id NOT IN (SELECT id FROM runs)`); err != nil {
		return 0, fmt.Errorf("failed to delete orphaned workloads: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}
	return removed, nil
}
