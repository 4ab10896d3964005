// Package session はサーバー側セッションの発行・検証・破棄を提供します。
//
// クライアントには推測不能なトークンだけを渡し、状態はストアに保存します。
// ストアのキーにはトークンの SHA-256 を使うため、ストアの内容からトークンは復元できません。
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrUnavailable はセッションストアに到達できない場合に返されます。
	ErrUnavailable = errors.New("session: store unavailable")
	// ErrInvalidSession は破棄済みまたは nil のセッションを操作しようとした場合に返されます。
	ErrInvalidSession = errors.New("session: invalid session")
)

// Session はクライアントのトークンに紐づくサーバー側の状態です。
type Session struct {
	ID        string    `json:"-"`
	Username  string    `json:"username,omitempty"`
	CSRFToken string    `json:"csrfToken"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`

	destroyed bool
}

// Destroyed はログアウト済みかどうかを返します。
func (s *Session) Destroyed() bool {
	return s != nil && s.destroyed
}

// Store はセッションの保存先です。key はトークンのハッシュです。
type Store interface {
	// Get は存在しない場合 (nil, nil) を返します。
	Get(ctx context.Context, key string) (*Session, error)
	Save(ctx context.Context, key string, sess *Session, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func storageKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
