package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	uuidPattern  = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[1-5][a-f0-9]{3}-[89ab][a-f0-9]{3}-[a-f0-9]{12}$`)
	hex32Pattern = regexp.MustCompile(`^[a-f0-9]{32}$`)
)

var now = func() time.Time { return time.Now().UTC() }

// replay is the stored outcome of one mutating call, keyed by route, acting
// user and request id. Pending marks a call that has not finished yet.
type replay struct {
	Pending    bool      `json:"pending"`
	Status     int       `json:"status,omitempty"`
	Body       []byte    `json:"body,omitempty"`
	BodyDigest string    `json:"body_digest"`
	RequestID  string    `json:"request_id"`
	SentAt     time.Time `json:"sent_at"`
	StoredAt   time.Time `json:"stored_at"`
}

func (r replay) replayable() bool { return !r.Pending && r.Status != 0 && len(r.Body) > 0 }

type replayStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func replayKey(method, route, userID, requestID string) string {
	return "idemp:deferral:" + strings.ToLower(method) + ":" + route + ":" + userID + ":" + requestID
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// claim records a pending call. It reports false when the key is taken.
func (s replayStore) claim(ctx context.Context, key string, r replay) (bool, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return false, err
	}
	return s.rdb.SetNX(ctx, key, payload, pendingTTL).Result()
}

func (s replayStore) load(ctx context.Context, key string) (replay, error) {
	var r replay
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return r, err
	}
	return r, nil
}

// finish overwrites the pending claim with the final response for ttl.
func (s replayStore) finish(ctx context.Context, key string, r replay) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, payload, s.ttl).Err()
}

func (s replayStore) release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

func validRequestID(id string) bool {
	id = strings.ToLower(strings.TrimSpace(id))
	return uuidPattern.MatchString(id) || hex32Pattern.MatchString(id)
}

// parseRequestAt accepts epoch seconds, epoch milliseconds, or RFC3339 with
// an explicit zone. Naive local timestamps are rejected.
func parseRequestAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("missing " + HeaderRequestAt)
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, errors.New(HeaderRequestAt + " must be epoch (s/ms) or RFC3339 with timezone")
}
