package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultIdleTimeout はアクセスがない場合にセッションが失効するまでの時間です。
const DefaultIdleTimeout = time.Hour

// Manager はセッションのライフサイクルを管理します。
type Manager struct {
	store  Store
	idle   time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// Option は Manager の設定を変更します。
type Option func(*Manager)

// WithClock は現在時刻の取得方法を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger はロガーを設定します。
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager は Manager を作成します。idle が 0 以下なら DefaultIdleTimeout を使います。
func NewManager(store Store, idle time.Duration, opts ...Option) *Manager {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	m := &Manager{
		store:  store,
		idle:   idle,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IdleTimeout はセッションの有効期間を返します。
func (m *Manager) IdleTimeout() time.Duration {
	return m.idle
}

// Start はトークンに対応するセッションを返します。
// トークンが空・不明・期限切れの場合は匿名セッションを新規に作成して保存します。
// 有効なセッションは有効期限を延長します。
func (m *Manager) Start(ctx context.Context, token string) (*Session, error) {
	now := m.now()

	if token != "" {
		key := storageKey(token)
		sess, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if sess != nil {
			if now.Before(sess.ExpiresAt) {
				sess.ID = token
				sess.ExpiresAt = now.Add(m.idle)
				if err := m.store.Save(ctx, key, sess, m.idle); err != nil {
					return nil, err
				}
				return sess, nil
			}
			if err := m.store.Delete(ctx, key); err != nil {
				m.logger.WarnContext(ctx, "failed to delete expired session", "error", err)
			}
		}
	}

	return m.create(ctx, now)
}

// BindIdentity はセッションを認証済みにします。
// セッション固定攻撃を防ぐため、トークンと CSRF トークンを再発行します。
func (m *Manager) BindIdentity(ctx context.Context, sess *Session, username string) error {
	if sess == nil || sess.destroyed {
		return ErrInvalidSession
	}
	if username == "" {
		return errors.New("session: username is required")
	}

	token, err := newToken()
	if err != nil {
		return fmt.Errorf("session: generate token: %w", err)
	}
	csrf, err := newToken()
	if err != nil {
		return fmt.Errorf("session: generate csrf token: %w", err)
	}

	oldID := sess.ID
	next := *sess
	next.ID = token
	next.Username = username
	next.CSRFToken = csrf
	next.ExpiresAt = m.now().Add(m.idle)

	if err := m.store.Save(ctx, storageKey(token), &next, m.idle); err != nil {
		return err
	}
	if oldID != "" {
		if err := m.store.Delete(ctx, storageKey(oldID)); err != nil {
			m.logger.WarnContext(ctx, "failed to delete rotated session", "error", err)
		}
	}

	*sess = next
	return nil
}

// IsAuthenticated はセッションにユーザーが紐づいているかを返します。
func (m *Manager) IsAuthenticated(sess *Session) bool {
	return sess != nil && !sess.destroyed && sess.Username != ""
}

// Destroy はサーバー側の状態を削除し、セッションを無効にします。
func (m *Manager) Destroy(ctx context.Context, sess *Session) error {
	if sess == nil {
		return ErrInvalidSession
	}
	if sess.ID != "" {
		if err := m.store.Delete(ctx, storageKey(sess.ID)); err != nil {
			return err
		}
	}
	sess.ID = ""
	sess.Username = ""
	sess.CSRFToken = ""
	sess.destroyed = true
	return nil
}

func (m *Manager) create(ctx context.Context, now time.Time) (*Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("session: generate token: %w", err)
	}
	csrf, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("session: generate csrf token: %w", err)
	}

	sess := &Session{
		ID:        token,
		CSRFToken: csrf,
		CreatedAt: now.UTC(),
		ExpiresAt: now.Add(m.idle),
	}
	if err := m.store.Save(ctx, storageKey(token), sess, m.idle); err != nil {
		return nil, err
	}
	return sess, nil
}
