package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/kbsynth/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/kbsynth/internal/core/domain"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
)

// Store owns one SQLite database and hands out the KB store, the knowledge
// base registry and the seed store over it.
//
// Reads go through a pool of WAL readers that never wait on a writer.
// Writes go through a separate pool whose transactions begin IMMEDIATE, and
// writers of the same knowledge base are serialised by a per-KB mutex.
type Store struct {
	db      *sql.DB
	writer  *sql.DB
	kbLocks sync.Map // domain.KBID -> *sync.Mutex
	path    string
}

// pragmas are applied to every connection. WAL is persistent, so only the
// writer pool switches the journal mode.
var (
	pragmas       = []string{"busy_timeout(5000)", "foreign_keys(1)"}
	writerPragmas = append([]string{"journal_mode(WAL)"}, pragmas...)
)

const (
	readConns  = 8
	writeConns = 4
)

// NewStore opens dataDir/kbsynth.db, creating it and applying pending
// migrations. An empty dataDir means ~/.kbsynth/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".kbsynth", "data")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	path := filepath.Join(dataDir, "kbsynth.db")
	writer, err := open(path, writeConns, url.Values{"_txlock": {"immediate"}, "_pragma": writerPragmas})
	if err != nil {
		return nil, err
	}
	if err := migrate(context.Background(), writer, migrations.FS); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	db, err := open(path, readConns, url.Values{"_pragma": pragmas})
	if err != nil {
		_ = writer.Close()
		return nil, err
	}
	return &Store{db: db, writer: writer, path: path}, nil
}

func open(path string, conns int, q url.Values) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(conns)
	return db, nil
}

// Close closes both connection pools.
func (s *Store) Close() error {
	return errors.Join(s.db.Close(), s.writer.Close())
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// KBStore returns the partitioned document store.
func (s *Store) KBStore() driven.KBStore {
	return &kbStore{store: s}
}

// KnowledgeBaseStore returns the knowledge base registry.
func (s *Store) KnowledgeBaseStore() driven.KnowledgeBaseStore {
	return &knowledgeBaseStore{store: s}
}

// SeedStore returns the idea seed store.
func (s *Store) SeedStore() driven.SeedStore {
	return &seedStore{store: s}
}

// SchemaVersion returns the number of the last applied migration.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	return schemaVersion(ctx, s.db)
}

// migration is one NNN_name.up.sql file.
type migration struct {
	version int
	name    string
}

// pendingMigrations lists the up migrations in fsys newer than current, in
// version order.
func pendingMigrations(fsys fs.FS, current int) ([]migration, error) {
	names, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, err
	}
	var out []migration
	for _, name := range names {
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: missing version prefix", name)
		}
		v, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %s: bad version prefix: %w", name, err)
		}
		if v > current {
			out = append(out, migration{version: v, name: name})
		}
	}
	slices.SortFunc(out, func(a, b migration) int { return a.version - b.version })
	return out, nil
}

// migrate applies each pending migration in its own transaction, recording
// progress in PRAGMA user_version inside the same transaction.
func migrate(ctx context.Context, db *sql.DB, fsys fs.FS) error {
	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}
	pending, err := pendingMigrations(fsys, current)
	if err != nil {
		return err
	}

	for _, m := range pending {
		body, err := fs.ReadFile(fsys, m.name)
		if err != nil {
			return err
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%s: %w", m.name, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%s: record version: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%s: %w", m.name, err)
		}
	}
	return nil
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// lockKB holds the write lock of kbID until the returned func is called.
func (s *Store) lockKB(kbID domain.KBID) func() {
	m, _ := s.kbLocks.LoadOrStore(kbID, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// withKBTx runs fn inside a write transaction while holding kbID's lock.
func (s *Store) withKBTx(ctx context.Context, kbID domain.KBID, fn func(tx *sql.Tx) error) error {
	defer s.lockKB(kbID)()
	return s.withTx(ctx, fn)
}

// withTx runs fn inside a write transaction, committing only when fn succeeds.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Times are stored as UTC unix nanoseconds so ordering in SQL is exact.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
