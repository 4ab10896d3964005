// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// セッションストアの種類です。
const (
	SessionStoreRedis  = "redis"
	SessionStoreMemory = "memory"
)

// release モードで要求する SESSION_SECRET の最小バイト数です。
const minSecretBytes = 32

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string `env:"PORT"     envDefault:"3000"`
	GinMode string `env:"GIN_MODE" envDefault:"debug"`

	// アカウントストア（postgres://... または sqlite://...）
	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"0"`

	// セッション設定
	SessionSecret      string        `env:"SESSION_SECRET"`
	SessionStore       string        `env:"SESSION_STORE"        envDefault:"redis"`
	RedisURL           string        `env:"REDIS_URL"            envDefault:"redis://127.0.0.1:6379/0"`
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"1h"`

	// パスワードハッシュ
	BcryptCost      int `env:"BCRYPT_COST"      envDefault:"10"`
	HashConcurrency int `env:"HASH_CONCURRENCY"` // 0 なら CPU 数

	// ログイン試行制限（LOGIN_MAX_ATTEMPTS=0 で無効）
	LoginMaxAttempts  int           `env:"LOGIN_MAX_ATTEMPTS"  envDefault:"0"`
	LoginWindow       time.Duration `env:"LOGIN_WINDOW"        envDefault:"15m"`
	LoginLockDuration time.Duration `env:"LOGIN_LOCK_DURATION" envDefault:"10m"`

	// CORS許可オリジン（空なら CORS ミドルウェアを使わない）
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	// 運用
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	LogLevel       string `env:"LOG_LEVEL"       envDefault:"info"`
}

// Load は環境変数から設定を読み込みます。
// .env.local と .env が存在する場合はそこからも読み込みます（既存の環境変数が優先）。
func Load() (*Config, error) {
	loadEnvFiles()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()

	// 必須設定のバリデーション
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadEnvFiles() {
	dirs := []string{"."}
	if cwd, err := os.Getwd(); err == nil {
		if parent := filepath.Dir(cwd); parent != "" && parent != cwd {
			dirs = append(dirs, parent)
		}
	}

	for _, name := range []string{".env.local", ".env"} {
		for _, dir := range dirs {
			if err := godotenv.Load(filepath.Join(dir, name)); err == nil {
				break
			}
		}
	}
}

func (c *Config) normalize() {
	c.SessionStore = strings.ToLower(strings.TrimSpace(c.SessionStore))
	if c.HashConcurrency <= 0 {
		c.HashConcurrency = runtime.NumCPU()
	}

	origins := c.CORSAllowedOrigins[:0]
	for _, origin := range c.CORSAllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	c.CORSAllowedOrigins = origins
}

// IsRelease は release モードかを返します。
func (c *Config) IsRelease() bool {
	return c.GinMode == "release"
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.SessionSecret == "" {
		errs = append(errs, errors.New("SESSION_SECRET is required"))
	} else if c.IsRelease() && len(c.SessionSecret) < minSecretBytes {
		errs = append(errs, fmt.Errorf("SESSION_SECRET must be at least %d bytes in release mode", minSecretBytes))
	}

	switch c.SessionStore {
	case SessionStoreRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when SESSION_STORE=redis"))
		}
	case SessionStoreMemory:
		// 本番では複数インスタンスで共有できないため許可しない
		if c.IsRelease() {
			errs = append(errs, errors.New("SESSION_STORE=memory is not allowed in release mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("SESSION_STORE must be %q or %q", SessionStoreRedis, SessionStoreMemory))
	}

	if c.SessionIdleTimeout <= 0 {
		errs = append(errs, errors.New("SESSION_IDLE_TIMEOUT must be positive"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost))
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		errs = append(errs, errors.New("DB_MIN_CONNS and DB_MAX_CONNS must satisfy 0 <= min <= max, max > 0"))
	}
	if c.LoginMaxAttempts < 0 {
		errs = append(errs, errors.New("LOGIN_MAX_ATTEMPTS must not be negative"))
	}
	if c.LoginMaxAttempts > 0 && (c.LoginWindow <= 0 || c.LoginLockDuration <= 0) {
		errs = append(errs, errors.New("LOGIN_WINDOW and LOGIN_LOCK_DURATION must be positive when throttling is enabled"))
	}

	return errors.Join(errs...)
}
