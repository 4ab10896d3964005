package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	sqliteInsertAccount = `INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`
	sqliteSelectAccount = `SELECT username, password_hash, created_at FROM users WHERE username = ?`
)

// SQLiteStore は単一ノード向けの Store 実装です。
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite はデータベースファイルを開き、マイグレーションを適用します。
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("account: sqlite path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("account: open sqlite: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrateSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Create はアカウントを1件追加します。
func (s *SQLiteStore) Create(ctx context.Context, username, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, sqliteInsertAccount, username, passwordHash, s.now().UTC().Unix())
	if err != nil {
		if isSQLiteConstraint(err) {
			return ErrConflict
		}
		return unavailable("create", err)
	}
	return nil
}

// FindByUsername はユーザー名でアカウントを取得します。
func (s *SQLiteStore) FindByUsername(ctx context.Context, username string) (*Account, error) {
	var (
		acct      Account
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, sqliteSelectAccount, username).Scan(&acct.Username, &acct.PasswordHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, unavailable("find", err)
	}
	acct.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &acct, nil
}

// Ping は接続を確認します。
func (s *SQLiteStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close はデータベースを閉じます。
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isSQLiteConstraint(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
