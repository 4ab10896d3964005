package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yourusername/memberauth/internal/account"
	"github.com/yourusername/memberauth/internal/credential"
	"github.com/yourusername/memberauth/internal/sanitize"
	"github.com/yourusername/memberauth/internal/session"
)

// イベント名と結果です。Recorder に渡されます。
const (
	EventSignup = "signup"
	EventLogin  = "login"
	EventLogout = "logout"

	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Recorder は認証イベントの記録先です（メトリクスなど）。
type Recorder interface {
	AuthEvent(event, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) AuthEvent(string, string) {}

// Service はサインアップ・ログイン・ログアウトの判定を行います。
// HTTP には依存せず、セッションは引数で受け取ります。
type Service struct {
	accounts account.Store
	hasher   *credential.Hasher
	sessions *session.Manager
	policy   sanitize.Policy
	logger   *slog.Logger
	recorder Recorder
}

// ServiceOption は Service の設定を変更します。
type ServiceOption func(*Service)

// WithPolicy はサインアップ時の制約を差し替えます。
func WithPolicy(p sanitize.Policy) ServiceOption {
	return func(s *Service) {
		s.policy = p
	}
}

// WithLogger はロガーを設定します。
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithRecorder はイベントの記録先を設定します。
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) {
		s.recorder = r
	}
}

// NewService は Service を作成します。
func NewService(accounts account.Store, hasher *credential.Hasher, sessions *session.Manager, opts ...ServiceOption) *Service {
	s := &Service{
		accounts: accounts,
		hasher:   hasher,
		sessions: sessions,
		policy:   sanitize.DefaultPolicy(),
		logger:   slog.Default(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sessions はセッションマネージャーを返します。
func (s *Service) Sessions() *session.Manager {
	return s.sessions
}

// Signup はアカウントを作成し、セッションを認証済みにします。
// 既存のユーザー名の場合は ErrUserExists を返し、保存済みのハッシュは変更しません。
func (s *Service) Signup(ctx context.Context, sess *session.Session, username, password string) error {
	err := s.signup(ctx, sess, username, password)
	s.record(EventSignup, err)
	if err == nil {
		s.logger.InfoContext(ctx, "account created", "username", username)
	}
	return err
}

func (s *Service) signup(ctx context.Context, sess *session.Session, username, password string) error {
	if err := s.policy.ValidateSignup(username, password); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		if errors.Is(err, credential.ErrPasswordTooLong) {
			return &sanitize.TooLongError{Field: sanitize.FieldPassword, Max: credential.MaxPasswordBytes}
		}
		return fmt.Errorf("auth: signup: %w", err)
	}

	// 一意制約だけを重複の判定に使う（事前の存在確認はしない）
	if err := s.accounts.Create(ctx, username, hash); err != nil {
		if errors.Is(err, account.ErrConflict) {
			return ErrUserExists
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if err := s.sessions.BindIdentity(ctx, sess, username); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Login は資格情報を照合し、セッションを認証済みにします。
// ユーザーが存在しない場合もパスワード不一致と同じ ErrInvalidCredentials を返します。
func (s *Service) Login(ctx context.Context, sess *session.Session, username, password string) error {
	err := s.login(ctx, sess, username, password)
	s.record(EventLogin, err)
	if err == nil {
		s.logger.InfoContext(ctx, "login succeeded", "username", username)
	}
	return err
}

func (s *Service) login(ctx context.Context, sess *session.Session, username, password string) error {
	if err := sanitize.ValidateCredentials(username, password); err != nil {
		return err
	}

	acct, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			s.hasher.DummyVerify(ctx, password)
			return ErrInvalidCredentials
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	ok, err := s.hasher.Verify(ctx, password, acct.PasswordHash)
	if err != nil {
		if errors.Is(err, credential.ErrMalformedHash) {
			s.logger.ErrorContext(ctx, "stored password hash is unusable", "error", err)
			return ErrInvalidCredentials
		}
		return fmt.Errorf("auth: login: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	if err := s.sessions.BindIdentity(ctx, sess, acct.Username); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Logout はセッションを破棄します。
func (s *Service) Logout(ctx context.Context, sess *session.Session) error {
	err := s.sessions.Destroy(ctx, sess)
	if err != nil && !errors.Is(err, session.ErrInvalidSession) {
		err = fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	s.record(EventLogout, err)
	return err
}

// IsAuthenticated はセッションが認証済みかを返します。
func (s *Service) IsAuthenticated(sess *session.Session) bool {
	return s.sessions.IsAuthenticated(sess)
}

func (s *Service) record(event string, err error) {
	if err == nil {
		s.recorder.AuthEvent(event, OutcomeSuccess)
		return
	}
	if code, ok := ReasonCode(err); ok {
		s.recorder.AuthEvent(event, code)
		return
	}
	s.recorder.AuthEvent(event, OutcomeError)
}
