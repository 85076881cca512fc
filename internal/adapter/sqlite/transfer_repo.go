package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/otaupdater/ota-download-manager/internal/domain"
)

const transferColumns = `
	id, kind, name, version, changelog, url, checksum, spec_timestamp,
	status, total_bytes, done_bytes, redirected_url, num_redirects, num_failures,
	retry_after_seconds, retry_not_before, entity_tag, resuming, outcome,
	one_shot_shown, updated_at, finished_at`

// SaveSnapshot replaces the stored transfers and pending queue in one transaction
func (s *Store) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM transfers`); err != nil {
		return fmt.Errorf("failed to clear transfers: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_queue`); err != nil {
		return fmt.Errorf("failed to clear pending queue: %w", err)
	}

	insertTransfer, err := tx.PrepareContext(ctx, `
		INSERT INTO transfers (seq,`+transferColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer insertTransfer.Close()

	for i, r := range snap.Transfers {
		_, err := insertTransfer.ExecContext(ctx,
			i, r.ID, r.Spec.Kind.String(), r.Spec.Name, r.Spec.Version, r.Spec.Changelog,
			r.Spec.URL, r.Spec.Checksum, unixNano(r.Spec.Timestamp),
			r.Status.String(), r.TotalBytes, r.DoneBytes, r.RedirectedURL,
			r.NumRedirects, r.NumFailures, r.RetryAfterSeconds, unixNano(r.RetryNotBefore),
			r.EntityTag, r.Resuming, r.Outcome.String(), r.OneShotNotificationShown,
			unixNano(r.UpdatedAt), unixNano(r.FinishedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert transfer %d: %w", r.ID, err)
		}
	}

	insertPending, err := tx.PrepareContext(ctx, `INSERT INTO pending_queue (position, transfer_id) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer insertPending.Close()

	for i, id := range snap.Pending {
		if _, err := insertPending.ExecContext(ctx, i, id); err != nil {
			return fmt.Errorf("failed to insert pending id %d: %w", id, err)
		}
	}

	return tx.Commit()
}

// LoadSnapshot reads the stored transfers and pending queue in one transaction
func (s *Store) LoadSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	snap := &domain.Snapshot{}

	rows, err := tx.QueryContext(ctx, `SELECT`+transferColumns+` FROM transfers ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		snap.Transfers = append(snap.Transfers, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	pendingRows, err := tx.QueryContext(ctx, `SELECT transfer_id FROM pending_queue ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer pendingRows.Close()

	for pendingRows.Next() {
		var id int64
		if err := pendingRows.Scan(&id); err != nil {
			return nil, err
		}
		snap.Pending = append(snap.Pending, id)
	}
	if err := pendingRows.Err(); err != nil {
		return nil, err
	}

	return snap, nil
}

func scanTransfer(rows *sql.Rows) (*domain.TransferRecord, error) {
	r := &domain.TransferRecord{}
	var kind, status, outcome string
	var specTS, retryNotBefore, updatedAt, finishedAt int64

	err := rows.Scan(
		&r.ID, &kind, &r.Spec.Name, &r.Spec.Version, &r.Spec.Changelog, &r.Spec.URL,
		&r.Spec.Checksum, &specTS, &status, &r.TotalBytes, &r.DoneBytes,
		&r.RedirectedURL, &r.NumRedirects, &r.NumFailures, &r.RetryAfterSeconds,
		&retryNotBefore, &r.EntityTag, &r.Resuming, &outcome, &r.OneShotNotificationShown,
		&updatedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	if r.Spec.Kind, err = domain.ParseKind(kind); err != nil {
		return nil, err
	}
	if r.Status, err = domain.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("transfer %d: %w", r.ID, err)
	}
	if r.Outcome, err = domain.ParseOutcome(outcome); err != nil {
		return nil, fmt.Errorf("transfer %d: %w", r.ID, err)
	}
	r.Spec.Timestamp = fromUnixNano(specTS)
	r.RetryNotBefore = fromUnixNano(retryNotBefore)
	r.UpdatedAt = fromUnixNano(updatedAt)
	r.FinishedAt = fromUnixNano(finishedAt)

	return r, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
