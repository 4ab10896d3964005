package account

import (
	"context"
	"fmt"
	"strings"
)

// Options は Open に渡す接続設定です。
type Options struct {
	URL      string
	MaxConns int32
	MinConns int32
}

// Open は URL のスキームから実装を選んで接続します。
//
//	postgres://... / postgresql://...  → PostgresStore
//	sqlite://<path> / file:<path>       → SQLiteStore
func Open(ctx context.Context, opts Options) (Database, error) {
	kind, target, err := parseURL(opts.URL)
	if err != nil {
		return nil, err
	}

	switch kind {
	case "postgres":
		return OpenPostgres(ctx, target, PostgresOptions{
			MaxConns: opts.MaxConns,
			MinConns: opts.MinConns,
		})
	default:
		return OpenSQLite(ctx, target)
	}
}

func parseURL(raw string) (kind, target string, err error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return "", "", fmt.Errorf("account: database url is required")
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return "postgres", raw, nil
	case strings.HasPrefix(raw, "sqlite://"):
		target = strings.TrimPrefix(raw, "sqlite://")
	case strings.HasPrefix(raw, "file:"):
		target = strings.TrimPrefix(raw, "file:")
	default:
		return "", "", fmt.Errorf("account: unsupported database url scheme")
	}
	if target == "" {
		return "", "", fmt.Errorf("account: sqlite path is required")
	}
	return "sqlite", target, nil
}
