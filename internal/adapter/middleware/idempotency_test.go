package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// helper: new Echo with the middleware and a simple route
func setupEcho(rdb *redis.Client, ttl time.Duration, handler echo.HandlerFunc) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(IdempotencyMiddleware(rdb, ttl))
	e.POST("/deferrals", handler)
	e.GET("/deferrals", handler) // for non-mutating bypass test
	return e
}

func mkJSONBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewReader(b)
}

func doReq(t *testing.T, e *echo.Echo, method, path string, body io.Reader, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// okCreatedHandler exercises response capture and storage
func okCreatedHandler(c echo.Context) error {
	return c.JSON(http.StatusCreated, map[string]any{"ok": true})
}

func Test_BypassOnGET_NoHeadersRequired(t *testing.T) {
	_, rdb := newMiniredisClient(t)
	e := setupEcho(rdb, 30*time.Second, func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "get ok"})
	})
	rec := doReq(t, e, http.MethodGet, "/deferrals", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func Test_ValidationFailures(t *testing.T) {
	_, rdb := newMiniredisClient(t)
	e := setupEcho(rdb, 30*time.Second, okCreatedHandler)

	// base headers (valid) to start from
	valid := map[string]string{
		HeaderRequestID: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", // 32-hex (valid)
		HeaderRequestAt: time.Now().UTC().Format(time.RFC3339),
		HeaderUserID:    "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
	}

	// missing X-Request-Id
	h := map[string]string{
		HeaderRequestAt: valid[HeaderRequestAt],
		HeaderUserID:    valid[HeaderUserID],
	}
	rec := doReq(t, e, http.MethodPost, "/deferrals", mkJSONBody(t, map[string]int{"x": 1}), h)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing X-Request-Id => want 400, got %d", rec.Code)
	}

	// invalid X-Request-Id
	h = map[string]string{
		HeaderRequestID: "NOT-VALID",
		HeaderRequestAt: valid[HeaderRequestAt],
		HeaderUserID:    valid[HeaderUserID],
	}
	rec = doReq(t, e, http.MethodPost, "/deferrals", mkJSONBody(t, map[string]int{"x": 1}), h)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid X-Request-Id => want 400, got %d", rec.Code)
	}

	// invalid X-Request-At format
	h = map[string]string{
		HeaderRequestID: valid[HeaderRequestID],
		HeaderRequestAt: "not-a-time",
		HeaderUserID:    valid[HeaderUserID],
	}
	rec = doReq(t, e, http.MethodPost, "/deferrals", mkJSONBody(t, map[string]int{"x": 1}), h)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid X-Request-At => want 400, got %d", rec.Code)
	}

	// X-Request-At too skewed (past)
	h = map[string]string{
		HeaderRequestID: valid[HeaderRequestID],
		HeaderRequestAt: time.Now().UTC().Add(-maxClockSkew - time.Minute).Format(time.RFC3339),
		HeaderUserID:    valid[HeaderUserID],
	}
	rec = doReq(t, e, http.MethodPost, "/deferrals", mkJSONBody(t, map[string]int{"x": 1}), h)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("X-Request-At skew => want 400, got %d", rec.Code)
	}

	// missing X-User-Id
	h = map[string]string{
		HeaderRequestID: valid[HeaderRequestID],
		HeaderRequestAt: valid[HeaderRequestAt],
	}
	rec = doReq(t, e, http.MethodPost, "/deferrals", mkJSONBody(t, map[string]int{"x": 1}), h)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing X-User-Id => want 400, got %d", rec.Code)
	}

	// invalid X-User-Id
	h = map[string]string{
		HeaderRequestID: valid[HeaderRequestID],
		HeaderRequestAt: valid[HeaderRequestAt],
		HeaderUserID:    "not32hex",
	}
	rec = doReq(t, e, http.MethodPost, "/deferrals", mkJSONBody(t, map[string]int{"x": 1}), h)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid X-User-Id => want 400, got %d", rec.Code)
	}
}

func Test_HappyPath_Then_Replay(t *testing.T) {
	_, rdb := newMiniredisClient(t)
	e := setupEcho(rdb, 2*time.Minute, okCreatedHandler)

	h := map[string]string{
		HeaderRequestID: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		HeaderRequestAt: time.Now().UTC().Format(time.RFC3339),
		HeaderUserID:    "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
	}
	body := mkJSONBody(t, map[string]any{"dcl_number": "DCL-1"})

	// First request -> goes through handler (201, {"ok":true})
	rec1 := doReq(t, e, http.MethodPost, "/deferrals", body, h)
	if rec1.Code != http.StatusCreated {
		t.Fatalf("first request => want 201, got %d, body: %s", rec1.Code, rec1.Body.String())
	}

	// Second request with SAME headers & body -> replay stored response (also 201)
	rec2 := doReq(t, e, http.MethodPost, "/deferrals", mkJSONBody(t, map[string]any{"dcl_number": "DCL-1"}), h)
	if rec2.Code != http.StatusCreated {
		t.Fatalf("replay => want 201, got %d, body: %s", rec2.Code, rec2.Body.String())
	}
	if rec1.Body.String() != rec2.Body.String() {
		t.Fatalf("replay body mismatch: %q vs %q", rec1.Body.String(), rec2.Body.String())
	}
}

func Test_Conflict_When_InProgress(t *testing.T) {
	_, rdb := newMiniredisClient(t)
	e := setupEcho(rdb, 2*time.Minute, okCreatedHandler)

	method := http.MethodPost
	path := "/deferrals"
	reqID := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	userID := "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	body := []byte(`{"x":1}`)

	// a pending claim from a call that has not finished
	key := replayKey(method, path, userID, reqID)
	store := replayStore{rdb: rdb, ttl: time.Minute}
	if ok, err := store.claim(context.Background(), key, replay{Pending: true, BodyDigest: digest(body), RequestID: reqID}); err != nil || !ok {
		t.Fatalf("seed pending failed, ok=%v err=%v", ok, err)
	}

	h := map[string]string{
		HeaderRequestID: reqID,
		HeaderRequestAt: time.Now().UTC().Format(time.RFC3339),
		HeaderUserID:    userID,
	}
	rec := doReq(t, e, method, path, bytes.NewReader(body), h)

	if rec.Code != http.StatusConflict {
		t.Fatalf("in-progress => want 409, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func Test_Conflict_When_SameReqID_DifferentBody(t *testing.T) {
	_, rdb := newMiniredisClient(t)
	e := setupEcho(rdb, 2*time.Minute, okCreatedHandler)

	method := http.MethodPost
	path := "/deferrals"
	reqID := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	userID := "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

	body1 := []byte(`{"x":1}`)
	body2 := []byte(`{"x":2}`)

	// a finished call stored for body1
	key := replayKey(method, path, userID, reqID)
	store := replayStore{rdb: rdb, ttl: 5 * time.Minute}
	if err := store.finish(context.Background(), key, replay{Status: http.StatusCreated, Body: []byte(`{"ok":true}`), BodyDigest: digest(body1), RequestID: reqID}); err != nil {
		t.Fatalf("seed final failed: %v", err)
	}

	h := map[string]string{
		HeaderRequestID: reqID,
		HeaderRequestAt: time.Now().UTC().Format(time.RFC3339),
		HeaderUserID:    userID,
	}
	rec := doReq(t, e, method, path, bytes.NewReader(body2), h)

	if rec.Code != http.StatusConflict {
		t.Fatalf("different body same reqID => want 409, got %d", rec.Code)
	}
}

func Test_StoreUnavailable_Returns503(t *testing.T) {
	// Create a client that points to a closed address → SetNX error
	// (fast fail vs waiting the whole context)
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	e := setupEcho(rdb, time.Minute, okCreatedHandler)

	h := map[string]string{
		HeaderRequestID: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		HeaderRequestAt: time.Now().UTC().Format(time.RFC3339),
		HeaderUserID:    "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
	}
	rec := doReq(t, e, http.MethodPost, "/deferrals", bytes.NewReader([]byte(`{}`)), h)

	if rec.Code != http.StatusServiceUnavailable && rec.Code != http.StatusBadGateway {
		// expect 503 from the middleware path
		t.Fatalf("store unavailable => want 503-ish, got %d", rec.Code)
	}
}

func Test_ServerErrorIsNotCached(t *testing.T) {
	_, rdb := newMiniredisClient(t)

	calls := 0
	e := setupEcho(rdb, 2*time.Minute, func(c echo.Context) error {
		calls++
		if calls == 1 {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db down"})
		}
		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	})
	h := map[string]string{
		HeaderRequestID: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		HeaderRequestAt: time.Now().UTC().Format(time.RFC3339),
		HeaderUserID:    "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
	}

	if rec := doReq(t, e, http.MethodPost, "/deferrals", bytes.NewReader([]byte(`{}`)), h); rec.Code != http.StatusInternalServerError {
		t.Fatalf("first => want 500, got %d", rec.Code)
	}
	if rec := doReq(t, e, http.MethodPost, "/deferrals", bytes.NewReader([]byte(`{}`)), h); rec.Code != http.StatusOK {
		t.Fatalf("retry => want 200, got %d", rec.Code)
	}
	if calls != 2 {
		t.Fatalf("handler calls = %d, want 2", calls)
	}
}

func Test_KeysAreScopedPerUser(t *testing.T) {
	_, rdb := newMiniredisClient(t)

	calls := 0
	e := setupEcho(rdb, 2*time.Minute, func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusCreated, map[string]int{"n": calls})
	})
	for _, user := range []string{"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", "cccccccccccccccccccccccccccccccc"} {
		h := map[string]string{
			HeaderRequestID: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			HeaderRequestAt: time.Now().UTC().Format(time.RFC3339),
			HeaderUserID:    user,
		}
		if rec := doReq(t, e, http.MethodPost, "/deferrals", bytes.NewReader([]byte(`{}`)), h); rec.Code != http.StatusCreated {
			t.Fatalf("user %s => want 201, got %d", user, rec.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("same request id from two users must both run, calls=%d", calls)
	}
}
