// Package credential はパスワードの一方向ハッシュ化と検証を提供します。
package credential

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultCost は bcrypt のワークファクターの既定値です。
	DefaultCost = 10
	// MaxPasswordBytes は bcrypt が参照する入力の最大バイト数です。
	MaxPasswordBytes = 72

	timingEqualizer = "memberauth:unknown-account"
)

var (
	// ErrMalformedHash は保存済みハッシュを解釈できない場合に返されます。
	ErrMalformedHash = errors.New("credential: malformed password hash")
	// ErrPasswordTooLong は bcrypt の入力上限を超えた場合に返されます。
	ErrPasswordTooLong = errors.New("credential: password exceeds 72 bytes")
)

// Hasher は bcrypt によるハッシュ化と検証を行います。
// bcrypt は CPU を占有するため、同時実行数をセマフォで制限します。
type Hasher struct {
	cost  int
	slots *semaphore.Weighted
	dummy []byte
}

// NewHasher は Hasher を作成します。
// cost が 0 の場合は DefaultCost、concurrency が 0 以下の場合は CPU 数を使います。
func NewHasher(cost, concurrency int) (*Hasher, error) {
	if cost == 0 {
		cost = DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("credential: bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte(timingEqualizer), cost)
	if err != nil {
		return nil, fmt.Errorf("credential: prepare dummy hash: %w", err)
	}

	return &Hasher{
		cost:  cost,
		slots: semaphore.NewWeighted(int64(concurrency)),
		dummy: dummy,
	}, nil
}

// Cost は設定済みのワークファクターを返します。
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash はソルト付きのハッシュ文字列を返します。呼び出しごとに異なる結果になります。
func (h *Hasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.slots.Release(1)

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("credential: hash: %w", err)
	}
	return string(hash), nil
}

// Verify は平文とハッシュを比較します。
// 不一致は (false, nil)、ハッシュが壊れている場合は ErrMalformedHash を返します。
func (h *Hasher) Verify(ctx context.Context, plaintext, hash string) (bool, error) {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.slots.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
}

// DummyVerify は存在しないアカウントに対しても照合1回分の時間を消費します。
func (h *Hasher) DummyVerify(ctx context.Context, plaintext string) {
	_, _ = h.Verify(ctx, plaintext, string(h.dummy))
}
