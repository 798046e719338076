package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
)

// seedStore implements driven.SeedStore.
type seedStore struct {
	store *Store
}

var _ driven.SeedStore = (*seedStore)(nil)

// Completed reports whether the document has a completion marker.
func (s *seedStore) Completed(ctx context.Context, kbID domain.KBID, documentID int) (bool, error) {
	var one int
	err := s.store.db.QueryRowContext(ctx,
		"SELECT 1 FROM seed_generation_markers WHERE kb_id = ? AND document_id = ?", string(kbID), documentID).Scan(&one)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, fmt.Errorf("checking seed marker: %w", err)
	}
	return true, nil
}

// Complete writes the seeds and the completion marker in one transaction.
func (s *seedStore) Complete(ctx context.Context, kbID domain.KBID, documentID int, seeds []domain.BuildIdeaSeed) error {
	for i := range seeds {
		if err := domain.Stamp(kbID, &seeds[i].KBID); err != nil {
			return err
		}
		if seeds[i].DocumentID != documentID {
			return fmt.Errorf("%w: seed of document %d completed under document %d",
				domain.ErrInvalidInput, seeds[i].DocumentID, documentID)
		}
	}

	return s.store.withKBTx(ctx, kbID, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO seed_generation_markers (kb_id, document_id, completed_at)
			VALUES (?, ?, ?)
			ON CONFLICT(kb_id, document_id) DO NOTHING
		`, string(kbID), documentID, toNanos(time.Now()))
		if err != nil {
			return fmt.Errorf("saving seed marker: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("saving seed marker: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("seeds for document %d in kb %s: %w", documentID, kbID, domain.ErrAlreadyExists)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO build_idea_seeds (kb_id, document_id, seed_index, title, description, difficulty, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing statement: %w", err)
		}
		defer stmt.Close()

		for _, seed := range seeds {
			if _, err := stmt.ExecContext(ctx, string(kbID), documentID, seed.Index, seed.Title,
				seed.Description, string(seed.Difficulty), toNanos(seed.CreatedAt)); err != nil {
				return fmt.Errorf("saving seed %d: %w", seed.Index, err)
			}
		}
		return nil
	})
}

// RecordFailure keeps a failed attempt.
func (s *seedStore) RecordFailure(ctx context.Context, failure domain.SeedFailure) error {
	_, err := s.store.writer.ExecContext(ctx, `
		INSERT INTO seed_generation_failures (kb_id, document_id, message, failed_at)
		VALUES (?, ?, ?, ?)
	`, string(failure.KBID), failure.DocumentID, failure.Message, toNanos(failure.FailedAt))
	if err != nil {
		return fmt.Errorf("saving seed failure: %w", err)
	}
	return nil
}

// Failures returns recorded failures for a document, most recent first.
func (s *seedStore) Failures(ctx context.Context, kbID domain.KBID, documentID int) ([]domain.SeedFailure, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT kb_id, document_id, message, failed_at FROM seed_generation_failures
		WHERE kb_id = ? AND document_id = ?
		ORDER BY id DESC
	`, string(kbID), documentID)
	if err != nil {
		return nil, fmt.Errorf("querying seed failures: %w", err)
	}
	defer rows.Close()

	var failures []domain.SeedFailure //nolint:prealloc // size unknown from query
	for rows.Next() {
		var f domain.SeedFailure
		var kb string
		var failedAt int64
		if err := rows.Scan(&kb, &f.DocumentID, &f.Message, &failedAt); err != nil {
			return nil, fmt.Errorf("scanning seed failure: %w", err)
		}
		f.KBID = domain.KBID(kb)
		f.FailedAt = fromNanos(failedAt)
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating seed failures: %w", err)
	}
	return failures, nil
}

// List returns seeds of one KB, newest first. Ties break on the later
// document, then the lower seed index.
func (s *seedStore) List(ctx context.Context, kbID domain.KBID, filter domain.SeedFilter) ([]domain.BuildIdeaSeed, error) {
	filter = filter.Normalize()
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT kb_id, document_id, seed_index, title, description, difficulty, created_at FROM build_idea_seeds
		WHERE kb_id = ? AND (? = '' OR difficulty = ?)
		ORDER BY created_at DESC, document_id DESC, seed_index ASC
		LIMIT ?
	`, string(kbID), string(filter.Difficulty), string(filter.Difficulty), filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("querying seeds: %w", err)
	}
	defer rows.Close()

	var seeds []domain.BuildIdeaSeed //nolint:prealloc // size unknown from query
	for rows.Next() {
		var seed domain.BuildIdeaSeed
		var kb, difficulty string
		var createdAt int64
		if err := rows.Scan(&kb, &seed.DocumentID, &seed.Index, &seed.Title, &seed.Description,
			&difficulty, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning seed: %w", err)
		}
		seed.KBID = domain.KBID(kb)
		seed.Difficulty = domain.Difficulty(difficulty)
		seed.CreatedAt = fromNanos(createdAt)
		seeds = append(seeds, seed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating seeds: %w", err)
	}
	return seeds, nil
}

// Count returns the number of seeds stored for one KB.
func (s *seedStore) Count(ctx context.Context, kbID domain.KBID) (int, error) {
	var n int
	if err := s.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM build_idea_seeds WHERE kb_id = ?", string(kbID)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting seeds: %w", err)
	}
	return n, nil
}
