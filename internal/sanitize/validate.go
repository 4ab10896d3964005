// Package sanitize はリクエスト由来の値の検証と、表示前のエスケープを提供します。
package sanitize

import (
	"fmt"
	"unicode/utf8"
)

// フォームのフィールド名です。エラーの Field にもこの値が入ります。
const (
	FieldUsername = "username"
	FieldPassword = "password"
)

// MissingFieldError は必須項目が空の場合のエラーです。
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("sanitize: %s is required", e.Field)
}

// TooLongError は項目が上限を超えた場合のエラーです。
type TooLongError struct {
	Field string
	Max   int
}

func (e *TooLongError) Error() string {
	return fmt.Sprintf("sanitize: %s exceeds %d", e.Field, e.Max)
}

// ValidateCredentials はユーザー名とパスワードの有無だけを検証します。
// ユーザー名を先に確認します。空白は意味のある文字として扱います。
func ValidateCredentials(username, password string) error {
	if username == "" {
		return &MissingFieldError{Field: FieldUsername}
	}
	if password == "" {
		return &MissingFieldError{Field: FieldPassword}
	}
	return nil
}

// Policy はサインアップ時に追加で適用する制約です。
type Policy struct {
	MaxUsernameRunes int // ユーザー名の最大文字数
	MaxPasswordBytes int // パスワードの最大バイト数（bcrypt は 72 バイトまで）
}

// DefaultPolicy は既定のサインアップ制約を返します。
func DefaultPolicy() Policy {
	return Policy{
		MaxUsernameRunes: 64,
		MaxPasswordBytes: 72,
	}
}

// ValidateSignup は有無の検証に加えて長さの上限を確認します。
func (p Policy) ValidateSignup(username, password string) error {
	if err := ValidateCredentials(username, password); err != nil {
		return err
	}
	if p.MaxUsernameRunes > 0 && utf8.RuneCountInString(username) > p.MaxUsernameRunes {
		return &TooLongError{Field: FieldUsername, Max: p.MaxUsernameRunes}
	}
	if p.MaxPasswordBytes > 0 && len(password) > p.MaxPasswordBytes {
		return &TooLongError{Field: FieldPassword, Max: p.MaxPasswordBytes}
	}
	return nil
}
