package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/smallwat3r/secretlink/internal/domain"
)

var _ Store = (*SQLStore)(nil)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

const schema = `CREATE TABLE IF NOT EXISTS secrets (
	id VARCHAR(64) NOT NULL PRIMARY KEY,
	ciphertext MEDIUMTEXT NOT NULL,
	password_verifier VARCHAR(512) NOT NULL DEFAULT '',
	attempts INT NOT NULL DEFAULT 0,
	created_at DATETIME(6) NOT NULL,
	expires_at DATETIME(6) NOT NULL,
	INDEX idx_secrets_expires_at (expires_at)
)`

// SQLStore keeps records in a MySQL table. Fetch-and-delete and claim run
// in a transaction holding a row lock on the identifier.
type SQLStore struct {
	db            *sql.DB
	opts          Options
	cleanupCancel context.CancelFunc
}

// OpenMySQL opens a connection pool. The DSN must set parseTime=true.
func OpenMySQL(dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// NewSQLStore creates the table if needed and starts a sweep of expired
// rows every cleanupInterval.
func NewSQLStore(ctx context.Context, db *sql.DB, opts Options, cleanupInterval time.Duration) (*SQLStore, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, transient("migrate", err)
	}
	jctx, cancel := context.WithCancel(context.Background())
	s := &SQLStore{db: db, opts: opts.withDefaults(), cleanupCancel: cancel}
	if cleanupInterval > 0 {
		go runJanitor(jctx, cleanupInterval, func() {
			_, _ = s.DeleteExpired(jctx)
		})
	}
	return s, nil
}

func (s *SQLStore) Create(ctx context.Context, env domain.Envelope) (domain.Record, error) {
	for range maxIDAttempts {
		rec, err := s.opts.newRecord(env)
		if err != nil {
			return domain.Record{}, err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO secrets (id, ciphertext, password_verifier, created_at, expires_at)
			 VALUES (?, ?, ?, ?, ?)`,
			rec.ID, rec.Ciphertext, rec.PasswordVerifier, rec.CreatedAt, rec.ExpiresAt)
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			continue
		}
		if err != nil {
			return domain.Record{}, transient("create", err)
		}
		return rec, nil
	}
	return domain.Record{}, errIDCollision
}

func (s *SQLStore) FetchAndDelete(ctx context.Context, id string) (domain.Record, error) {
	var rec domain.Record
	err := s.withLockedRow(ctx, id, func(tx *sql.Tx, row lockedRow) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM secrets WHERE id = ?`, id); err != nil {
			return err
		}
		rec = row.rec
		return nil
	})
	if err != nil {
		return domain.Record{}, err
	}
	return rec, nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE id = ?`, id); err != nil {
		return transient("delete", err)
	}
	return nil
}

func (s *SQLStore) Claim(ctx context.Context, id string, match MatchFunc) (domain.Record, error) {
	var (
		claimed domain.Record
		outcome error
	)
	err := s.withLockedRow(ctx, id, func(tx *sql.Tx, row lockedRow) error {
		attempts, remove, decision := decideClaim(row.rec, row.attempts, s.opts.MaxAttempts, match)
		outcome = decision
		if errors.Is(decision, domain.ErrPasswordRequired) {
			return nil
		}
		var err error
		if remove {
			_, err = tx.ExecContext(ctx, `DELETE FROM secrets WHERE id = ?`, id)
		} else {
			_, err = tx.ExecContext(ctx, `UPDATE secrets SET attempts = ? WHERE id = ?`, attempts, id)
		}
		if err != nil {
			return err
		}
		if decision == nil {
			claimed = row.rec
		}
		return nil
	})
	if err != nil {
		return domain.Record{}, err
	}
	if outcome != nil {
		return domain.Record{}, outcome
	}
	return claimed, nil
}

// DeleteExpired removes rows past their lifetime and returns how many.
func (s *SQLStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE expires_at <= ?`, s.opts.Now().UTC())
	if err != nil {
		return 0, transient("purge", err)
	}
	return res.RowsAffected()
}

func (s *SQLStore) Close() error {
	if s.cleanupCancel != nil {
		s.cleanupCancel()
	}
	return s.db.Close()
}

type lockedRow struct {
	rec      domain.Record
	attempts int
}

// withLockedRow runs fn inside a transaction holding SELECT ... FOR UPDATE
// on a live row. The transaction commits only if fn succeeds.
func (s *SQLStore) withLockedRow(ctx context.Context, id string, fn func(*sql.Tx, lockedRow) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return transient("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row lockedRow
	err = tx.QueryRowContext(ctx,
		`SELECT id, ciphertext, password_verifier, attempts, created_at, expires_at
		 FROM secrets WHERE id = ? AND expires_at > ? FOR UPDATE`,
		id, s.opts.Now().UTC(),
	).Scan(&row.rec.ID, &row.rec.Ciphertext, &row.rec.PasswordVerifier,
		&row.attempts, &row.rec.CreatedAt, &row.rec.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return transient("select", err)
	}

	if err := fn(tx, row); err != nil {
		return transient("update", err)
	}
	if err := tx.Commit(); err != nil {
		return transient("commit", err)
	}
	return nil
}
