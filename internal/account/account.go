// Package account はアカウントの永続化を担います。
//
// すべてのクエリはパッケージ内の定数で、呼び出し元の値はプレースホルダ経由で
// バインドします。SQL 文字列に値を連結する経路はありません。
package account

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConflict はユーザー名が既に登録されている場合に返されます（一意制約違反）。
	ErrConflict = errors.New("account: username already exists")
	// ErrNotFound は該当するアカウントがない場合に返されます。
	ErrNotFound = errors.New("account: not found")
	// ErrUnavailable はストアに到達できない、または想定外のエラーの場合に返されます。
	ErrUnavailable = errors.New("account: store unavailable")
)

// Account は登録済みのアカウントです。
type Account struct {
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Store はアカウントの読み書きを提供します。
type Store interface {
	Create(ctx context.Context, username, passwordHash string) error
	FindByUsername(ctx context.Context, username string) (*Account, error)
}

// Database は接続を所有する Store です。
type Database interface {
	Store
	Ping(ctx context.Context) error
	Close() error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("account: %s: %w: %w", op, ErrUnavailable, err)
}
