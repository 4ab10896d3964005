package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgInsertAccount = `INSERT INTO users (username, password_hash) VALUES ($1, $2)`
	pgSelectAccount = `SELECT username, password_hash, created_at FROM users WHERE username = $1`

	pgUniqueViolation = "23505"
)

// PostgresStore は pgxpool 上の Store 実装です。
type PostgresStore struct {
	pool *pgxpool.Pool
}

// PostgresOptions はコネクションプールの設定です。
type PostgresOptions struct {
	MaxConns int32
	MinConns int32
}

// NewPostgresStore は既存のプールから PostgresStore を作成します。
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("account: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// OpenPostgres はプールを作成し、接続を確認してからマイグレーションを適用します。
func OpenPostgres(ctx context.Context, dsn string, opts PostgresOptions) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("account: parse postgres dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, unavailable("open postgres", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := migratePostgres(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Create はアカウントを1件追加します。
func (s *PostgresStore) Create(ctx context.Context, username, passwordHash string) error {
	if _, err := s.pool.Exec(ctx, pgInsertAccount, username, passwordHash); err != nil {
		if isPgUniqueViolation(err) {
			return ErrConflict
		}
		return unavailable("create", err)
	}
	return nil
}

// FindByUsername はユーザー名でアカウントを取得します。
func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (*Account, error) {
	acct := &Account{}
	err := s.pool.QueryRow(ctx, pgSelectAccount, username).Scan(&acct.Username, &acct.PasswordHash, &acct.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, unavailable("find", err)
	}
	return acct, nil
}

// Ping はタイムアウト付きで接続を確認します。
func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := s.pool.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close はプールを閉じます。
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
