package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/memberauth/internal/account"
	"github.com/yourusername/memberauth/internal/credential"
	"github.com/yourusername/memberauth/internal/session"
	"github.com/yourusername/memberauth/internal/web"
)

var csrfPattern = regexp.MustCompile(`name="csrf_token" value="([^"]*)"`)

func newTestServer(t *testing.T, throttle *Throttle) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := account.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	hasher, err := credential.NewHasher(bcrypt.MinCost, 4)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := session.NewManager(session.NewMemoryStore(), time.Hour, session.WithLogger(logger))
	svc := NewService(store, hasher, manager, WithLogger(logger))
	handler := NewHandler(svc, throttle, logger)

	router := gin.New()
	router.NoRoute(web.NotFound)
	pages := router.Group("/")
	pages.Use(
		web.SecurityHeaders(),
		sessions.Sessions(session.CookieName, session.NewCookieStore([]byte("test-secret-test-secret-test-secret"), time.Hour, false)),
		manager.Middleware(func(c *gin.Context, err error) {
			c.Data(http.StatusInternalServerError, web.ContentType, []byte("unavailable"))
		}),
	)
	handler.Register(pages)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func newBrowser(t *testing.T, server *httptest.Server) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{
		t:    t,
		base: server.URL,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (b *browser) get(path string) (*http.Response, string) {
	b.t.Helper()
	resp, err := b.client.Get(b.base + path)
	require.NoError(b.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return resp, string(body)
}

func (b *browser) csrf(formPath string) string {
	b.t.Helper()
	resp, body := b.get(formPath)
	require.Equal(b.t, http.StatusOK, resp.StatusCode)
	m := csrfPattern.FindStringSubmatch(body)
	require.Len(b.t, m, 2, "csrf token not found in %s", formPath)
	return m[1]
}

func (b *browser) submit(formPath, username, password string) *http.Response {
	b.t.Helper()
	return b.post(formPath, url.Values{
		"username":    {username},
		"password":    {password},
		web.CSRFField: {b.csrf(formPath)},
	})
}

func (b *browser) post(path string, form url.Values) *http.Response {
	b.t.Helper()
	resp, err := b.client.PostForm(b.base+path, form)
	require.NoError(b.t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp
}

func TestAliceOverHTTP(t *testing.T) {
	server := newTestServer(t, nil)
	b := newBrowser(t, server)

	resp := b.submit("/signup", "alice", "pw123")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/members", resp.Header.Get("Location"))

	resp, body := b.get("/members")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Hello, alice")

	_, body = b.get("/")
	assert.Contains(t, body, "Hello, alice")

	resp, _ = b.get("/logout")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp, _ = b.get("/members")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp = b.submit("/login", "alice", "wrong")
	assert.Equal(t, "/login?error=failed_check", resp.Header.Get("Location"))

	resp = b.submit("/login", "alice", "pw123")
	assert.Equal(t, "/members", resp.Header.Get("Location"))

	resp, body = b.get("/members")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Hello, alice")
}

func TestUnknownUserAndWrongPasswordLookIdentical(t *testing.T) {
	server := newTestServer(t, nil)
	b := newBrowser(t, server)
	require.Equal(t, http.StatusSeeOther, b.submit("/signup", "alice", "pw123").StatusCode)
	b.get("/logout")

	wrong := b.submit("/login", "alice", "nope")
	unknown := b.submit("/login", "nobody", "nope")

	assert.Equal(t, wrong.StatusCode, unknown.StatusCode)
	assert.Equal(t, wrong.Header.Get("Location"), unknown.Header.Get("Location"))

	_, body := b.get(wrong.Header.Get("Location"))
	assert.Contains(t, body, "Username or password not found")
}

func TestDuplicateSignupRedirectsWithExists(t *testing.T) {
	server := newTestServer(t, nil)
	first := newBrowser(t, server)
	require.Equal(t, "/members", first.submit("/signup", "alice", "pw123").Header.Get("Location"))

	second := newBrowser(t, server)
	resp := second.submit("/signup", "alice", "other")
	assert.Equal(t, "/signup?error=exists", resp.Header.Get("Location"))

	_, body := second.get("/signup?error=exists")
	assert.Contains(t, body, "User already exists")

	// 元のパスワードのまま
	assert.Equal(t, "/members", second.submit("/login", "alice", "pw123").Header.Get("Location"))
}

func TestMissingFieldsRedirect(t *testing.T) {
	server := newTestServer(t, nil)
	b := newBrowser(t, server)

	assert.Equal(t, "/signup?error=missing_username", b.submit("/signup", "", "pw").Header.Get("Location"))
	assert.Equal(t, "/signup?error=missing_password", b.submit("/signup", "bob", "").Header.Get("Location"))
	assert.Equal(t, "/login?error=missing_username", b.submit("/login", "", "").Header.Get("Location"))
	assert.Equal(t, "/login?error=missing_password", b.submit("/login", "bob", "").Header.Get("Location"))
	assert.Equal(t, "/signup?error=too_long", b.submit("/signup", strings.Repeat("a", 65), "pw").Header.Get("Location"))
}

func TestInjectionIsTreatedAsData(t *testing.T) {
	server := newTestServer(t, nil)
	b := newBrowser(t, server)
	require.Equal(t, "/members", b.submit("/signup", "alice", "pw123").Header.Get("Location"))
	b.get("/logout")

	injection := "' OR '1'='1"
	assert.Equal(t, "/login?error=failed_check", b.submit("/login", injection, injection).Header.Get("Location"))
	assert.Equal(t, "/login?error=failed_check", b.submit("/login", "alice' --", "x").Header.Get("Location"))

	// 登録すれば単なる文字列として扱われる
	require.Equal(t, "/members", b.submit("/signup", injection, "pw").Header.Get("Location"))
	_, body := b.get("/members")
	assert.Contains(t, body, "Hello, &#39; OR &#39;1&#39;=&#39;1")
	assert.NotContains(t, body, "Hello, alice")
}

func TestScriptUsernameIsEscaped(t *testing.T) {
	server := newTestServer(t, nil)
	b := newBrowser(t, server)

	require.Equal(t, "/members", b.submit("/signup", "<script>alert(1)</script>", "pw").Header.Get("Location"))

	_, body := b.get("/members")
	assert.Contains(t, body, "&lt;script&gt;alert(1)&lt;/script&gt;")
	assert.NotContains(t, body, "<script>")

	_, body = b.get("/")
	assert.NotContains(t, body, "<script>")
}

func TestUnknownErrorCodeRendersNoMessage(t *testing.T) {
	server := newTestServer(t, nil)
	b := newBrowser(t, server)

	_, body := b.get("/login?error=%3Cscript%3E")
	assert.NotContains(t, body, "<script>")
	assert.NotContains(t, body, `role="alert"`)
}

func TestPostWithoutCSRFTokenIsForbidden(t *testing.T) {
	server := newTestServer(t, nil)
	b := newBrowser(t, server)
	b.get("/")

	resp := b.post("/signup", url.Values{"username": {"alice"}, "password": {"pw123"}})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = b.post("/login", url.Values{"username": {"alice"}, "password": {"pw123"}, web.CSRFField: {"forged"}})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSessionTokenRotatesOnLogin(t *testing.T) {
	server := newTestServer(t, nil)
	b := newBrowser(t, server)
	b.get("/")

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	before := b.client.Jar.Cookies(u)
	require.NotEmpty(t, before)

	require.Equal(t, "/members", b.submit("/signup", "alice", "pw123").Header.Get("Location"))
	after := b.client.Jar.Cookies(u)
	require.NotEmpty(t, after)
	assert.NotEqual(t, before[0].Value, after[0].Value)

	// 固定化を狙って古いクッキーを使っても認証されない
	attacker := newBrowser(t, server)
	attacker.client.Jar.SetCookies(u, before)
	resp, _ := attacker.get("/members")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestUnmatchedRouteIs404(t *testing.T) {
	server := newTestServer(t, nil)
	b := newBrowser(t, server)

	resp, body := b.get("/does-not-exist")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "404 error: Page Not Found", body)
}

func TestLoginThrottleLocksClient(t *testing.T) {
	server := newTestServer(t, NewThrottle(2, time.Minute, time.Minute))
	b := newBrowser(t, server)
	require.Equal(t, "/members", b.submit("/signup", "alice", "pw123").Header.Get("Location"))
	b.get("/logout")

	assert.Equal(t, "/login?error=failed_check", b.submit("/login", "alice", "x").Header.Get("Location"))
	assert.Equal(t, "/login?error=failed_check", b.submit("/login", "nobody", "x").Header.Get("Location"))

	resp := b.submit("/login", "alice", "pw123")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}
