// Package web は画面の HTML を組み立てます。
//
// リクエストや保存済みデータ由来の値はすべて sanitize.EscapeForDisplay を通してから書き込みます。
package web

import (
	"io"

	"github.com/yourusername/memberauth/internal/sanitize"
)

// ContentType は HTML レスポンスの Content-Type です。
const ContentType = "text/html; charset=utf-8"

// NotFoundBody は未定義ルートに返す本文です。
const NotFoundBody = "404 error: Page Not Found"

// CSRFField はフォームに埋め込む CSRF トークンのフィールド名です。
const CSRFField = "csrf_token"

func h(value string) string {
	return sanitize.EscapeForDisplay(value)
}

func writePage(w io.Writer, title string, body func(io.Writer)) {
	_, _ = io.WriteString(w, "<!doctype html><html lang=\"en\"><head><meta charset=\"utf-8\"><title>"+h(title)+"</title></head><body>")
	body(w)
	_, _ = io.WriteString(w, "</body></html>")
}

// Home はトップページを書き込みます。username が空なら未ログイン向けのリンクを表示します。
func Home(w io.Writer, username string) {
	writePage(w, "Home", func(w io.Writer) {
		if username == "" {
			_, _ = io.WriteString(w, "<a href=\"/signup\">Sign up</a><br><a href=\"/login\">Log in</a>")
			return
		}
		_, _ = io.WriteString(w, "<p>Hello, "+h(username)+"</p><a href=\"/members\">Go to Member Area</a><br><a href=\"/logout\">Logout</a>")
	})
}

// SignupForm はアカウント作成フォームを書き込みます。
func SignupForm(w io.Writer, csrfToken, message string) {
	writePage(w, "Create User", func(w io.Writer) {
		writeCredentialForm(w, "/signup", "Create User", csrfToken, message)
	})
}

// LoginForm はログインフォームを書き込みます。
func LoginForm(w io.Writer, csrfToken, message string) {
	writePage(w, "Log in", func(w io.Writer) {
		writeCredentialForm(w, "/login", "Log in", csrfToken, message)
	})
}

func writeCredentialForm(w io.Writer, action, heading, csrfToken, message string) {
	_, _ = io.WriteString(w, "<form method=\"POST\" action=\""+h(action)+"\"><p>"+h(heading)+"</p>")
	_, _ = io.WriteString(w, "<input type=\"hidden\" name=\""+CSRFField+"\" value=\""+h(csrfToken)+"\">")
	_, _ = io.WriteString(w, "<label>Username: <input name=\"username\" autocomplete=\"username\"></label><br>")
	_, _ = io.WriteString(w, "<label>Password: <input type=\"password\" name=\"password\" autocomplete=\"current-password\"></label><br>")
	if message != "" {
		_, _ = io.WriteString(w, "<p role=\"alert\">"+h(message)+"</p>")
	}
	_, _ = io.WriteString(w, "<button type=\"submit\">Submit</button></form>")
}

// Members は会員ページを書き込みます。
func Members(w io.Writer, username string) {
	writePage(w, "Members", func(w io.Writer) {
		_, _ = io.WriteString(w, "<p>Hello, "+h(username)+"</p><a href=\"/logout\">Sign out</a>")
	})
}

// Message はエラーなどの短いメッセージページを書き込みます。
func Message(w io.Writer, title, message string) {
	writePage(w, title, func(w io.Writer) {
		_, _ = io.WriteString(w, "<h1>"+h(title)+"</h1><p>"+h(message)+"</p><a href=\"/\">Back to home</a>")
	})
}
