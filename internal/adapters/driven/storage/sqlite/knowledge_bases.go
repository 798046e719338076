package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
)

// knowledgeBaseStore implements driven.KnowledgeBaseStore.
type knowledgeBaseStore struct {
	store *Store
}

var _ driven.KnowledgeBaseStore = (*knowledgeBaseStore)(nil)

// Create stores a new knowledge base, clearing the owner's previous default
// when kb.Default is set.
func (s *knowledgeBaseStore) Create(ctx context.Context, kb domain.KnowledgeBase) error {
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM knowledge_bases WHERE id = ?", string(kb.ID)).Scan(&one)
		switch {
		case err == nil:
			return fmt.Errorf("kb %s: %w", kb.ID, domain.ErrAlreadyExists)
		case err != sql.ErrNoRows:
			return fmt.Errorf("checking kb %s: %w", kb.ID, err)
		}

		if kb.Default {
			if err := clearDefault(ctx, tx, kb.Owner); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO knowledge_bases (id, owner, is_default, created_at)
			VALUES (?, ?, ?, ?)
		`, string(kb.ID), kb.Owner, kb.Default, toNanos(kb.CreatedAt))
		if err != nil {
			return fmt.Errorf("saving kb %s: %w", kb.ID, err)
		}
		return nil
	})
}

// Get retrieves a knowledge base by ID.
func (s *knowledgeBaseStore) Get(ctx context.Context, id domain.KBID) (*domain.KnowledgeBase, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, owner, is_default, created_at FROM knowledge_bases WHERE id = ?
	`, string(id))
	kb, err := scanKnowledgeBase(row)
	if err != nil {
		return nil, notFound(err, "kb %s", id)
	}
	return kb, nil
}

// DefaultFor returns the principal's default knowledge base.
func (s *knowledgeBaseStore) DefaultFor(ctx context.Context, principal string) (*domain.KnowledgeBase, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, owner, is_default, created_at FROM knowledge_bases
		WHERE owner = ? AND is_default = 1
	`, principal)
	kb, err := scanKnowledgeBase(row)
	if err != nil {
		return nil, notFound(err, "default kb for %q", principal)
	}
	return kb, nil
}

// SetDefault makes id the principal's only default knowledge base.
func (s *knowledgeBaseStore) SetDefault(ctx context.Context, principal string, id domain.KBID) error {
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, "SELECT owner FROM knowledge_bases WHERE id = ?", string(id)).Scan(&owner)
		if err != nil {
			return notFound(err, "kb %s of %q", id, principal)
		}
		if owner != principal {
			return fmt.Errorf("kb %s of %q: %w", id, principal, domain.ErrNotFound)
		}

		if err := clearDefault(ctx, tx, principal); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE knowledge_bases SET is_default = 1 WHERE id = ?", string(id)); err != nil {
			return fmt.Errorf("setting default kb: %w", err)
		}
		return nil
	})
}

// ListFor returns the knowledge bases owned by principal, oldest first.
func (s *knowledgeBaseStore) ListFor(ctx context.Context, principal string) ([]domain.KnowledgeBase, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, owner, is_default, created_at FROM knowledge_bases
		WHERE owner = ? ORDER BY created_at, id
	`, principal)
	if err != nil {
		return nil, fmt.Errorf("querying knowledge bases: %w", err)
	}
	defer rows.Close()

	var kbs []domain.KnowledgeBase //nolint:prealloc // size unknown from query
	for rows.Next() {
		kb, err := scanKnowledgeBase(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning knowledge base: %w", err)
		}
		kbs = append(kbs, *kb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating knowledge bases: %w", err)
	}
	return kbs, nil
}

func clearDefault(ctx context.Context, tx *sql.Tx, owner string) error {
	if _, err := tx.ExecContext(ctx,
		"UPDATE knowledge_bases SET is_default = 0 WHERE owner = ? AND is_default = 1", owner); err != nil {
		return fmt.Errorf("clearing default kb: %w", err)
	}
	return nil
}

func scanKnowledgeBase(row rowScanner) (*domain.KnowledgeBase, error) {
	var kb domain.KnowledgeBase
	var id string
	var createdAt int64
	if err := row.Scan(&id, &kb.Owner, &kb.Default, &createdAt); err != nil {
		return nil, err
	}
	kb.ID = domain.KBID(id)
	kb.CreatedAt = fromNanos(createdAt)
	return &kb, nil
}
