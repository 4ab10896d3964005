// Package auth はアカウント作成・ログイン・ログアウトの判定と、その HTTP 層を提供します。
package auth

import (
	"errors"

	"github.com/yourusername/memberauth/internal/sanitize"
	"github.com/yourusername/memberauth/internal/web"
)

var (
	// ErrUserExists は同名のアカウントが既に存在する場合に返されます。
	ErrUserExists = errors.New("auth: user already exists")
	// ErrInvalidCredentials はユーザーが存在しない場合とパスワード不一致の両方で返されます。
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrUnavailable はアカウントストアやセッションストアに到達できない場合に返されます。
	ErrUnavailable = errors.New("auth: service unavailable")
)

// ReasonCode はエラーをリダイレクト用の理由コードに変換します。
// 利用者に返すべきでないエラー（ストア障害など）の場合は false を返します。
func ReasonCode(err error) (string, bool) {
	var missing *sanitize.MissingFieldError
	var tooLong *sanitize.TooLongError

	switch {
	case err == nil:
		return "", false
	case errors.As(err, &missing):
		if missing.Field == sanitize.FieldUsername {
			return web.ReasonMissingUsername, true
		}
		return web.ReasonMissingPassword, true
	case errors.As(err, &tooLong):
		return web.ReasonTooLong, true
	case errors.Is(err, ErrUserExists):
		return web.ReasonExists, true
	case errors.Is(err, ErrInvalidCredentials):
		return web.ReasonFailedCheck, true
	default:
		return "", false
	}
}
