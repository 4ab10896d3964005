package auth

import (
	"sync"
	"time"
)

const throttlePruneThreshold = 10000

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// Throttle はクライアントごとのログイン失敗回数を数え、上限に達したら一定時間ロックします。
// nil の Throttle は何も制限しません。
type Throttle struct {
	maxAttempts  int
	window       time.Duration
	lockDuration time.Duration
	now          func() time.Time

	lock     sync.Mutex
	attempts map[string]*attemptState
}

// NewThrottle は Throttle を作成します。maxAttempts が 0 以下なら nil を返します（無効）。
func NewThrottle(maxAttempts int, window, lockDuration time.Duration) *Throttle {
	if maxAttempts <= 0 {
		return nil
	}
	return &Throttle{
		maxAttempts:  maxAttempts,
		window:       window,
		lockDuration: lockDuration,
		now:          time.Now,
		attempts:     make(map[string]*attemptState),
	}
}

// Check はロック中なら残り時間を返します。ロックされていなければ 0 です。
func (t *Throttle) Check(key string) time.Duration {
	if t == nil {
		return 0
	}
	t.lock.Lock()
	defer t.lock.Unlock()

	state, ok := t.attempts[key]
	if !ok {
		return 0
	}
	now := t.now()
	if !now.Before(state.lockedUntil) {
		return 0
	}
	return state.lockedUntil.Sub(now)
}

// Failure は失敗を記録し、ロックまでの残り回数を返します。
func (t *Throttle) Failure(key string) int {
	if t == nil {
		return 0
	}
	t.lock.Lock()
	defer t.lock.Unlock()

	now := t.now()
	if len(t.attempts) >= throttlePruneThreshold {
		t.prune(now)
	}

	state, ok := t.attempts[key]
	if !ok || now.Sub(state.firstAttempt) > t.window {
		state = &attemptState{firstAttempt: now}
		t.attempts[key] = state
	}

	state.count++
	if state.count >= t.maxAttempts {
		state.lockedUntil = now.Add(t.lockDuration)
		state.count = t.maxAttempts
	}

	return max(t.maxAttempts-state.count, 0)
}

// Reset は記録を削除します。ログイン成功時に呼び出します。
func (t *Throttle) Reset(key string) {
	if t == nil {
		return
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	delete(t.attempts, key)
}

func (t *Throttle) prune(now time.Time) {
	for key, state := range t.attempts {
		if now.Sub(state.firstAttempt) > t.window && !now.Before(state.lockedUntil) {
			delete(t.attempts, key)
		}
	}
}
