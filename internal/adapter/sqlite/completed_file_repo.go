package sqlite

import (
	"context"
	"fmt"
)

// KeepCompletedFiles records finished download paths
func (s *Store) KeepCompletedFiles(ctx context.Context, paths []string) error {
	return s.execEach(ctx, `INSERT INTO completed_files (path) VALUES (?) ON CONFLICT(path) DO NOTHING`, paths)
}

// ForgetCompletedFiles drops recorded paths
func (s *Store) ForgetCompletedFiles(ctx context.Context, paths []string) error {
	return s.execEach(ctx, `DELETE FROM completed_files WHERE path = ?`, paths)
}

// CompletedFiles returns every recorded path
func (s *Store) CompletedFiles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM completed_files ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (s *Store) execEach(ctx context.Context, query string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range paths {
		if _, err := stmt.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("failed to update completed file %s: %w", p, err)
		}
	}
	return tx.Commit()
}
