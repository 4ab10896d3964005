package sanitize

import "html"

// EscapeForDisplay はマークアップとして意味を持つ文字 (< > & ' ") を実体参照に置き換えます。
// リクエストや保存済みデータ由来の値は、画面に埋め込む前に必ずこれを通します。
func EscapeForDisplay(value string) string {
	return html.EscapeString(value)
}
