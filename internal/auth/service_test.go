package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/memberauth/internal/account"
	"github.com/yourusername/memberauth/internal/credential"
	"github.com/yourusername/memberauth/internal/sanitize"
	"github.com/yourusername/memberauth/internal/session"
)

type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[string]account.Account
	err      error
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{accounts: make(map[string]account.Account)}
}

func (f *fakeAccounts) Create(_ context.Context, username, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.accounts[username]; ok {
		return account.ErrConflict
	}
	f.accounts[username] = account.Account{Username: username, PasswordHash: passwordHash, CreatedAt: time.Now()}
	return nil
}

func (f *fakeAccounts) FindByUsername(_ context.Context, username string) (*account.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	acct, ok := f.accounts[username]
	if !ok {
		return nil, account.ErrNotFound
	}
	return &acct, nil
}

type recordedEvent struct {
	event, outcome string
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *fakeRecorder) AuthEvent(event, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{event, outcome})
}

type serviceFixture struct {
	svc      *Service
	accounts *fakeAccounts
	sessions *session.Manager
	recorder *fakeRecorder
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	hasher, err := credential.NewHasher(bcrypt.MinCost, 2)
	require.NoError(t, err)
	accounts := newFakeAccounts()
	sessions := session.NewManager(session.NewMemoryStore(), time.Hour)
	recorder := &fakeRecorder{}
	return &serviceFixture{
		svc:      NewService(accounts, hasher, sessions, WithRecorder(recorder)),
		accounts: accounts,
		sessions: sessions,
		recorder: recorder,
	}
}

func (f *serviceFixture) anonymous(t *testing.T) *session.Session {
	t.Helper()
	sess, err := f.sessions.Start(context.Background(), "")
	require.NoError(t, err)
	return sess
}

func TestAliceScenario(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	sess := f.anonymous(t)
	require.NoError(t, f.svc.Signup(ctx, sess, "alice", "pw123"))
	assert.True(t, f.svc.IsAuthenticated(sess))
	assert.Equal(t, "alice", sess.Username)

	other := f.anonymous(t)
	assert.ErrorIs(t, f.svc.Login(ctx, other, "alice", "wrong"), ErrInvalidCredentials)
	assert.False(t, f.svc.IsAuthenticated(other))

	require.NoError(t, f.svc.Login(ctx, other, "alice", "pw123"))
	assert.True(t, f.svc.IsAuthenticated(other))
	assert.Equal(t, "alice", other.Username)

	require.NoError(t, f.svc.Logout(ctx, other))
	assert.False(t, f.svc.IsAuthenticated(other))
}

func TestSignupStoresHashNotPlaintext(t *testing.T) {
	f := newServiceFixture(t)
	require.NoError(t, f.svc.Signup(context.Background(), f.anonymous(t), "alice", "pw123"))

	stored := f.accounts.accounts["alice"]
	assert.NotEqual(t, "pw123", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("pw123")))
}

func TestSignupDuplicateKeepsOriginalHash(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Signup(ctx, f.anonymous(t), "alice", "pw123"))
	original := f.accounts.accounts["alice"].PasswordHash

	sess := f.anonymous(t)
	err := f.svc.Signup(ctx, sess, "alice", "other")
	assert.ErrorIs(t, err, ErrUserExists)
	assert.False(t, f.svc.IsAuthenticated(sess))
	assert.Equal(t, original, f.accounts.accounts["alice"].PasswordHash)
}

func TestSignupValidation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
		code     string
	}{
		{name: "missing username", username: "", password: "pw", code: "missing_username"},
		{name: "missing both reports username", username: "", password: "", code: "missing_username"},
		{name: "missing password", username: "bob", password: "", code: "missing_password"},
		{name: "long password", username: "bob", password: string(make([]byte, 73)), code: "too_long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.Signup(ctx, f.anonymous(t), tt.username, tt.password)
			code, ok := ReasonCode(err)
			require.True(t, ok, "err = %v", err)
			assert.Equal(t, tt.code, code)
		})
	}
	assert.Empty(t, f.accounts.accounts)
}

func TestLoginUnknownUserMatchesWrongPassword(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.Signup(ctx, f.anonymous(t), "alice", "pw123"))

	unknown := f.svc.Login(ctx, f.anonymous(t), "nobody", "pw123")
	wrong := f.svc.Login(ctx, f.anonymous(t), "alice", "nope")

	assert.ErrorIs(t, unknown, ErrInvalidCredentials)
	assert.ErrorIs(t, wrong, ErrInvalidCredentials)
	assert.Equal(t, unknown.Error(), wrong.Error())
}

func TestLoginInjectionDoesNotAuthenticate(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.Signup(ctx, f.anonymous(t), "alice", "pw123"))

	sess := f.anonymous(t)
	err := f.svc.Login(ctx, sess, "' OR '1'='1", "' OR '1'='1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.False(t, f.svc.IsAuthenticated(sess))
}

func TestLoginMalformedStoredHashIsInvalidCredentials(t *testing.T) {
	f := newServiceFixture(t)
	f.accounts.accounts["mallory"] = account.Account{Username: "mallory", PasswordHash: "not-a-bcrypt-hash"}

	sess := f.anonymous(t)
	err := f.svc.Login(context.Background(), sess, "mallory", "anything")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.False(t, f.svc.IsAuthenticated(sess))
}

func TestStoreFailureIsUnavailable(t *testing.T) {
	f := newServiceFixture(t)
	f.accounts.err = fmt.Errorf("account: find: %w: %w", account.ErrUnavailable, errors.New("connection refused"))
	ctx := context.Background()

	err := f.svc.Login(ctx, f.anonymous(t), "alice", "pw123")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, ok := ReasonCode(err)
	assert.False(t, ok)

	err = f.svc.Signup(ctx, f.anonymous(t), "alice", "pw123")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestServiceRecordsEvents(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	sess := f.anonymous(t)
	require.NoError(t, f.svc.Signup(ctx, sess, "alice", "pw123"))
	_ = f.svc.Login(ctx, f.anonymous(t), "alice", "wrong")
	require.NoError(t, f.svc.Logout(ctx, sess))

	assert.Equal(t, []recordedEvent{
		{EventSignup, OutcomeSuccess},
		{EventLogin, "failed_check"},
		{EventLogout, OutcomeSuccess},
	}, f.recorder.events)
}

func TestReasonCode(t *testing.T) {
	tests := []struct {
		err  error
		code string
		ok   bool
	}{
		{err: &sanitize.MissingFieldError{Field: sanitize.FieldUsername}, code: "missing_username", ok: true},
		{err: &sanitize.MissingFieldError{Field: sanitize.FieldPassword}, code: "missing_password", ok: true},
		{err: &sanitize.TooLongError{Field: sanitize.FieldUsername, Max: 64}, code: "too_long", ok: true},
		{err: ErrUserExists, code: "exists", ok: true},
		{err: fmt.Errorf("wrapped: %w", ErrInvalidCredentials), code: "failed_check", ok: true},
		{err: ErrUnavailable},
		{err: errors.New("boom")},
		{err: nil},
	}
	for _, tt := range tests {
		code, ok := ReasonCode(tt.err)
		assert.Equal(t, tt.ok, ok, "%v", tt.err)
		assert.Equal(t, tt.code, code, "%v", tt.err)
	}
}
