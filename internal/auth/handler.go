package auth

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/memberauth/internal/session"
	"github.com/yourusername/memberauth/internal/web"
)

var errNoSession = errors.New("auth: request has no session")

// Handler は画面とフォーム送信の HTTP ハンドラーです。
type Handler struct {
	svc      *Service
	throttle *Throttle
	logger   *slog.Logger
}

// NewHandler は Handler を作成します。throttle が nil ならログイン試行を制限しません。
func NewHandler(svc *Service, throttle *Throttle, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, throttle: throttle, logger: logger}
}

// Register はルートを登録します。r には session の Middleware を適用しておいてください。
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/", h.Home)
	r.GET("/signup", h.SignupForm)
	r.POST("/signup", h.VerifyCSRF(), h.Signup)
	r.GET("/login", h.LoginForm)
	r.POST("/login", h.VerifyCSRF(), h.Login)
	r.GET("/members", h.RequireLogin(), h.Members)
	r.GET("/logout", h.Logout)
}

// Home は GET / のハンドラーです。
func (h *Handler) Home(c *gin.Context) {
	username := ""
	if sess := session.FromContext(c); h.svc.IsAuthenticated(sess) {
		username = sess.Username
	}
	h.render(c, http.StatusOK, func(w io.Writer) { web.Home(w, username) })
}

// SignupForm は GET /signup のハンドラーです。
func (h *Handler) SignupForm(c *gin.Context) {
	sess := session.FromContext(c)
	if sess == nil {
		h.respondWithError(c, "", errNoSession)
		return
	}
	message := web.SignupMessage(c.Query("error"))
	h.render(c, http.StatusOK, func(w io.Writer) { web.SignupForm(w, sess.CSRFToken, message) })
}

// Signup は POST /signup のハンドラーです。
func (h *Handler) Signup(c *gin.Context) {
	sess := session.FromContext(c)
	if sess == nil {
		h.respondWithError(c, "", errNoSession)
		return
	}

	username := c.PostForm("username")
	password := c.PostForm("password")
	if err := h.svc.Signup(c.Request.Context(), sess, username, password); err != nil {
		h.respondWithError(c, "/signup", err)
		return
	}

	if err := session.Commit(c, sess); err != nil {
		h.respondWithError(c, "", err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/members")
}

// LoginForm は GET /login のハンドラーです。
func (h *Handler) LoginForm(c *gin.Context) {
	sess := session.FromContext(c)
	if sess == nil {
		h.respondWithError(c, "", errNoSession)
		return
	}
	message := web.LoginMessage(c.Query("error"))
	h.render(c, http.StatusOK, func(w io.Writer) { web.LoginForm(w, sess.CSRFToken, message) })
}

// Login は POST /login のハンドラーです。
func (h *Handler) Login(c *gin.Context) {
	sess := session.FromContext(c)
	if sess == nil {
		h.respondWithError(c, "", errNoSession)
		return
	}

	ip := c.ClientIP()
	if retryAfter := h.throttle.Check(ip); retryAfter > 0 {
		// Retry-After は秒数で返す
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
		h.renderMessage(c, http.StatusTooManyRequests, "Too Many Attempts", "Please wait a while and try again.")
		return
	}

	username := c.PostForm("username")
	password := c.PostForm("password")
	if err := h.svc.Login(c.Request.Context(), sess, username, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.throttle.Failure(ip)
		}
		h.respondWithError(c, "/login", err)
		return
	}
	h.throttle.Reset(ip)

	if err := session.Commit(c, sess); err != nil {
		h.respondWithError(c, "", err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/members")
}

// Members は GET /members のハンドラーです。RequireLogin の後に登録します。
func (h *Handler) Members(c *gin.Context) {
	username := c.GetString(ContextUserKey)
	h.render(c, http.StatusOK, func(w io.Writer) { web.Members(w, username) })
}

// Logout は GET /logout のハンドラーです。
func (h *Handler) Logout(c *gin.Context) {
	sess := session.FromContext(c)
	if sess == nil {
		h.respondWithError(c, "", errNoSession)
		return
	}
	if err := h.svc.Logout(c.Request.Context(), sess); err != nil {
		h.respondWithError(c, "", err)
		return
	}
	if err := session.Commit(c, sess); err != nil {
		h.respondWithError(c, "", err)
		return
	}
	c.Redirect(http.StatusFound, "/")
}

// respondWithError は利用者に返せるエラーを formPath へのリダイレクトに変換します。
// それ以外は詳細をログにだけ残し、汎用のエラーページを返します。
func (h *Handler) respondWithError(c *gin.Context, formPath string, err error) {
	if code, ok := ReasonCode(err); ok && formPath != "" {
		c.Redirect(http.StatusSeeOther, formPath+"?"+url.Values{"error": {code}}.Encode())
		return
	}

	h.logger.ErrorContext(c.Request.Context(), "request failed",
		"path", c.FullPath(),
		"error", err,
	)
	_ = c.Error(err)
	h.renderMessage(c, http.StatusInternalServerError, "Something went wrong", "Please try again later.")
}

func (h *Handler) renderMessage(c *gin.Context, status int, title, message string) {
	h.render(c, status, func(w io.Writer) { web.Message(w, title, message) })
}

func (h *Handler) render(c *gin.Context, status int, page func(io.Writer)) {
	var buf bytes.Buffer
	page(&buf)
	c.Data(status, web.ContentType, buf.Bytes())
}
