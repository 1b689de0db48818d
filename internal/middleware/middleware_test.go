package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/bug-hunting/internal/config"
	"github.com/iliyamo/bug-hunting/internal/utils"
)

const testSecret = "test-secret"

func protectedEcho(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		id, _ := UserID(c)
		return c.JSON(http.StatusOK, echo.Map{"user_id": id, "role": Role(c)})
	}, mw...)
	return e
}

func doGet(e *echo.Echo, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := protectedEcho(JWTAuth(testSecret))

	good, err := utils.NewAccessToken(testSecret, "u-42", RoleAdmin, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	rec := doGet(e, "Bearer "+good.Token)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: status %d body %s", rec.Code, rec.Body)
	}
	if body := rec.Body.String(); !contains(body, `"user_id":"u-42"`) || !contains(body, `"role":"admin"`) {
		t.Fatalf("body = %s", body)
	}

	wrongKey, _ := utils.NewAccessToken("other-secret", "u-42", RoleUser, time.Hour)
	expired, _ := utils.NewAccessToken(testSecret, "u-42", RoleUser, -time.Minute)
	numericSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": 42, "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u-42"}).SignedString([]byte(testSecret))

	for name, header := range map[string]string{
		"missing":     "",
		"not bearer":  "Basic abc",
		"garbage":     "Bearer not-a-jwt",
		"wrong key":   "Bearer " + wrongKey.Token,
		"expired":     "Bearer " + expired.Token,
		"numeric sub": "Bearer " + numericSub,
		"no exp":      "Bearer " + noExp,
	} {
		rec := doGet(e, header)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status %d, want 401", name, rec.Code)
		}
		if !contains(rec.Body.String(), `"success":false`) {
			t.Errorf("%s: body %s", name, rec.Body)
		}
	}
}

func TestJWTAuthDefaultsRole(t *testing.T) {
	e := protectedEcho(JWTAuth(testSecret))
	tok, _ := utils.NewAccessToken(testSecret, "u-1", "", time.Hour)
	rec := doGet(e, "Bearer "+tok.Token)
	if rec.Code != http.StatusOK || !contains(rec.Body.String(), `"role":"user"`) {
		t.Fatalf("status %d body %s", rec.Code, rec.Body)
	}
}

func TestRequireRole(t *testing.T) {
	e := protectedEcho(JWTAuth(testSecret), RequireRole(RoleAdmin))
	user, _ := utils.NewAccessToken(testSecret, "u-1", RoleUser, time.Hour)
	admin, _ := utils.NewAccessToken(testSecret, "u-2", RoleAdmin, time.Hour)

	if rec := doGet(e, "Bearer "+user.Token); rec.Code != http.StatusForbidden {
		t.Fatalf("user: status %d, want 403", rec.Code)
	}
	if rec := doGet(e, "Bearer "+admin.Token); rec.Code != http.StatusOK {
		t.Fatalf("admin: status %d, want 200", rec.Code)
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/hunting-sessions/abc/award", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.7")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/hunting-sessions/:id/award")

	cases := map[string]string{
		"ip":         "rl:ip:10.0.0.7",
		"user":       "rl:user:anon",
		"user_route": "rl:user:anon:route:POST /v1/hunting-sessions/:id/award",
		"":           "rl:ip:10.0.0.7:user:anon:route:POST /v1/hunting-sessions/:id/award",
	}
	for strategy, want := range cases {
		got := buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c)
		if got != want {
			t.Errorf("strategy %q: key %q, want %q", strategy, got, want)
		}
	}

	c.Set(ctxUserID, "u-9")
	if got := buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user"}, c); got != "rl:user:u-9" {
		t.Fatalf("authenticated key = %q", got)
	}
}

func TestParseLimiterResult(t *testing.T) {
	res, ok := parseLimiterResult([]interface{}{int64(0), int64(0), int64(1500)})
	if !ok || res.allowed || res.retryAfterSeconds() != 2 {
		t.Fatalf("blocked result = %+v ok=%v", res, ok)
	}
	res, ok = parseLimiterResult([]interface{}{int64(1), "7", int64(0)})
	if !ok || !res.allowed || res.remaining != 7 {
		t.Fatalf("allowed result = %+v ok=%v", res, ok)
	}
	if _, ok := parseLimiterResult("nope"); ok {
		t.Fatal("string result accepted")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"success":true}`))
	if err != nil {
		t.Fatal(err)
	}
	status, got, body, ok := decodePayload(bs)
	if !ok || status != http.StatusOK || got.Get("Content-Type") != "application/json" || string(body) != `{"success":true}` {
		t.Fatalf("decoded %d %v %q ok=%v", status, got, body, ok)
	}
	if _, _, _, ok := decodePayload(bs[:5]); ok {
		t.Fatal("short payload accepted")
	}
}

func TestCacheKeySeparatesParamsAndUsers(t *testing.T) {
	e := echo.New()
	newCtx := func(id, user string) echo.Context {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/bugs/"+id, nil), httptest.NewRecorder())
		c.SetPath("/v1/bugs/:id")
		c.SetParamNames("id")
		c.SetParamValues(id)
		if user != "" {
			c.Set(ctxUserID, user)
		}
		return c
	}
	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route_query"}
	if cacheKeyFrom(cfg, newCtx("a", "")) == cacheKeyFrom(cfg, newCtx("b", "")) {
		t.Fatal("different path params share a key")
	}
	cfg.KeyStrategy = "route_query_user"
	if cacheKeyFrom(cfg, newCtx("a", "u1")) == cacheKeyFrom(cfg, newCtx("a", "u2")) {
		t.Fatal("different users share a key")
	}
}

func TestCacheDisabledPassesThrough(t *testing.T) {
	e := echo.New()
	calls := 0
	e.GET("/x", func(c echo.Context) error { calls++; return c.NoContent(http.StatusNoContent) },
		NewRedisCache(config.CacheConfig{Enabled: true}, nil, zerolog.Nop()))
	for i := 0; i < 2; i++ {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	}
	if calls != 2 {
		t.Fatalf("handler calls = %d", calls)
	}
}

func contains(s, sub string) bool { return strings.Contains(s, sub) }
