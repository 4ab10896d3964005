package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SecurityHeaders は画面レスポンスに共通のセキュリティヘッダーを付与します。
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.Writer.Header()
		header.Set("Content-Security-Policy", "default-src 'self'; form-action 'self'; frame-ancestors 'none'")
		header.Set("X-Content-Type-Options", "nosniff")
		header.Set("X-Frame-Options", "DENY")
		header.Set("Referrer-Policy", "no-referrer")
		header.Set("Cache-Control", "no-store")
		c.Next()
	}
}

// NotFound は未定義ルート用のハンドラーです。
func NotFound(c *gin.Context) {
	c.Data(http.StatusNotFound, ContentType, []byte(NotFoundBody))
}
