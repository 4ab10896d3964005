package session

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

const (
	// CookieName はトークンを運ぶ署名付きクッキーの名前です。
	CookieName = "memberauth_session"
	cookieKeyToken = "sid"

	contextKey = "session.current"
)

// NewCookieStore は SESSION_SECRET で署名するクッキーストアを作成します。
// クッキーに入るのは不透明なトークンだけです。
func NewCookieStore(secret []byte, maxAge time.Duration, secure bool) sessions.Store {
	store := cookie.NewStore(secret)
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return store
}

// Middleware はリクエストごとに Start を実行し、結果を gin.Context に保存します。
// sessions.Sessions(CookieName, ...) より後に登録してください。
// onError はストア障害時に呼ばれ、レスポンスを書く責任を持ちます。
func (m *Manager) Middleware(onError func(*gin.Context, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		carrier := sessions.Default(c)
		token, _ := carrier.Get(cookieKeyToken).(string)

		sess, err := m.Start(c.Request.Context(), token)
		if err != nil {
			m.logger.ErrorContext(c.Request.Context(), "session start failed", "error", err)
			onError(c, err)
			c.Abort()
			return
		}

		// 有効期限をスライドさせるため毎回書き戻す
		carrier.Set(cookieKeyToken, sess.ID)
		if err := carrier.Save(); err != nil {
			m.logger.ErrorContext(c.Request.Context(), "session cookie save failed", "error", err)
			onError(c, err)
			c.Abort()
			return
		}

		c.Set(contextKey, sess)
		c.Next()
	}
}

// FromContext は Middleware が保存したセッションを返します。
func FromContext(c *gin.Context) *Session {
	v, ok := c.Get(contextKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*Session)
	return sess
}

// Commit はトークンの再発行や破棄をクッキーに反映します。
// レスポンス本文を書く前に呼び出してください。
func Commit(c *gin.Context, sess *Session) error {
	carrier := sessions.Default(c)
	if sess == nil || sess.Destroyed() {
		carrier.Clear()
		carrier.Options(sessions.Options{
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		return carrier.Save()
	}
	carrier.Set(cookieKeyToken, sess.ID)
	return carrier.Save()
}
