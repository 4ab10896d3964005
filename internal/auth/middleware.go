package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/memberauth/internal/session"
	"github.com/yourusername/memberauth/internal/web"
)

const csrfHeader = "X-CSRF-Token"

// ContextUserKey は、ハンドラー間でログイン済みユーザー名を共有するためのキーです。
const ContextUserKey = "auth.user"

// RequireLogin は未ログインのリクエストをトップページへリダイレクトします。
func (h *Handler) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := session.FromContext(c)
		if !h.svc.IsAuthenticated(sess) {
			c.Redirect(http.StatusFound, "/")
			c.Abort()
			return
		}
		c.Set(ContextUserKey, sess.Username)
		c.Next()
	}
}

// VerifyCSRF はフォームの csrf_token または X-CSRF-Token ヘッダーを検証するミドルウェアです。
func (h *Handler) VerifyCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		sess := session.FromContext(c)
		if sess == nil || sess.CSRFToken == "" {
			h.renderMessage(c, http.StatusForbidden, "Forbidden", "Your session is missing. Please reload the form and try again.")
			c.Abort()
			return
		}

		received := c.GetHeader(csrfHeader)
		if received == "" {
			received = c.PostForm(web.CSRFField)
		}
		if subtle.ConstantTimeCompare([]byte(sess.CSRFToken), []byte(received)) != 1 {
			h.logger.WarnContext(c.Request.Context(), "csrf token mismatch", "path", c.FullPath())
			h.renderMessage(c, http.StatusForbidden, "Forbidden", "The form has expired. Please reload it and try again.")
			c.Abort()
			return
		}

		c.Next()
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
