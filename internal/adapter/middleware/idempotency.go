package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

const (
	HeaderRequestID = "X-Request-Id"
	HeaderRequestAt = "X-Request-At"

	// pendingTTL bounds how long a crashed call blocks its request id.
	pendingTTL = 60 * time.Second
	// maxClockSkew is the accepted distance between X-Request-At and server time.
	maxClockSkew = 10 * time.Minute
)

// captureWriter tees the response so it can be stored for replay.
type captureWriter struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

type replayHeaders struct {
	requestID string
	sentAt    time.Time
	userID    string
}

// readReplayHeaders validates the request id, timestamp and acting user. The
// returned message is non-empty when the request must be refused.
func readReplayHeaders(c echo.Context) (replayHeaders, string) {
	req := c.Request()
	var h replayHeaders

	h.requestID = strings.TrimSpace(req.Header.Get(HeaderRequestID))
	if h.requestID == "" {
		return h, "missing " + HeaderRequestID
	}
	if !validRequestID(h.requestID) {
		return h, "invalid " + HeaderRequestID + " format"
	}

	sentAt, err := parseRequestAt(req.Header.Get(HeaderRequestAt))
	if err != nil {
		return h, err.Error()
	}
	if skew := now().Sub(sentAt); skew > maxClockSkew || skew < -maxClockSkew {
		return h, HeaderRequestAt + " too skewed"
	}
	h.sentAt = sentAt

	if u, ok := UserFrom(c); ok {
		h.userID = u.UserID
	} else {
		h.userID = strings.TrimSpace(req.Header.Get(HeaderUserID))
	}
	if h.userID == "" {
		return h, "missing " + HeaderUserID
	}
	if !hex32Pattern.MatchString(h.userID) {
		return h, "invalid " + HeaderUserID
	}
	return h, ""
}

// IdempotencyMiddleware makes mutating calls safe to retry. A call repeated
// with the same X-Request-Id by the same user on the same route replays the
// first response instead of running the transition twice; reusing the id
// with a different body is refused. Server errors are not stored.
func IdempotencyMiddleware(rdb *redis.Client, ttl time.Duration) echo.MiddlewareFunc {
	store := replayStore{rdb: rdb, ttl: ttl}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			switch req.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}

			h, problem := readReplayHeaders(c)
			if problem != "" {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": problem})
			}

			// Multipart uploads are digested too, so a retry with another file is refused.
			var body []byte
			if req.Body != nil {
				body, _ = io.ReadAll(req.Body)
			}
			req.Body = io.NopCloser(bytes.NewReader(body))
			bodyDigest := digest(body)

			key := replayKey(req.Method, c.Path(), h.userID, h.requestID)
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()

			claimed, err := store.claim(ctx, key, replay{
				Pending:    true,
				BodyDigest: bodyDigest,
				RequestID:  h.requestID,
				SentAt:     h.sentAt,
				StoredAt:   now(),
			})
			if err != nil {
				slog.ErrorContext(ctx, "idempotency store unavailable", "key", key, "error", err)
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "idempotency store unavailable"})
			}
			if !claimed {
				prev, err := store.load(ctx, key)
				if err != nil {
					slog.WarnContext(ctx, "load idempotency entry", "key", key, "error", err)
				}
				switch {
				case prev.BodyDigest != "" && prev.BodyDigest != bodyDigest:
					return c.JSON(http.StatusConflict, map[string]string{"error": HeaderRequestID + " reused with different body"})
				case prev.replayable():
					return c.Blob(prev.Status, echo.MIMEApplicationJSON, prev.Body)
				default:
					return c.JSON(http.StatusConflict, map[string]string{"error": "request is already in progress"})
				}
			}

			w := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK}
			c.Response().Writer = w
			if err := next(c); err != nil {
				c.Error(err)
			}

			// the handler's context may already be done; store with a fresh one
			bg, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			if w.status >= http.StatusInternalServerError {
				if err := store.release(bg, key); err != nil {
					slog.WarnContext(ctx, "release idempotency key", "key", key, "error", err)
				}
				return nil
			}
			err = store.finish(bg, key, replay{
				Status:     w.status,
				Body:       w.body.Bytes(),
				BodyDigest: bodyDigest,
				RequestID:  h.requestID,
				SentAt:     h.sentAt,
				StoredAt:   now(),
			})
			if err != nil {
				slog.WarnContext(ctx, "save idempotency entry", "key", key, "error", err)
			}
			return nil
		}
	}
}
