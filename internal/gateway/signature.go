package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/freelance-marketplace/backend/internal/apperrors"
)

// DefaultSignatureTTL bounds how old a signed timestamp may be. Webhook
// retries from the gateway re-sign with a fresh timestamp, so a tight window
// is safe and blunts replay of captured payloads.
const DefaultSignatureTTL = 5 * time.Minute

// VerifySignature validates the webhook signature header against the raw
// request body. Header format: "t=<unix>,v1=<hex hmac-sha256>", where the
// signed message is "<unix>.<body>" keyed by the shared webhook secret.
func VerifySignature(header string, body []byte, secret string, maxAge time.Duration) error {
	if maxAge <= 0 {
		maxAge = DefaultSignatureTTL
	}
	if secret == "" {
		return fmt.Errorf("webhook secret is not configured")
	}

	var tsStr, sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			tsStr = v
		case "v1":
			sig = v
		}
	}
	if tsStr == "" || sig == "" {
		return apperrors.ErrInvalidSignature
	}

	tsUnix, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return apperrors.ErrInvalidSignature
	}
	ts := time.Unix(tsUnix, 0)
	if time.Since(ts) > maxAge {
		return fmt.Errorf("%w: timestamp is %s old (max %s)", apperrors.ErrInvalidSignature, time.Since(ts).Round(time.Second), maxAge)
	}
	if ts.After(time.Now().Add(1 * time.Minute)) {
		return fmt.Errorf("%w: timestamp is in the future", apperrors.ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(tsStr))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return apperrors.ErrInvalidSignature
	}
	return nil
}

// Sign produces the signature header for a payload. Used by tests and by the
// dead-letter redrive path, which re-enters events through the same verified
// pipeline.
func Sign(body []byte, secret string, at time.Time) string {
	tsStr := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(tsStr))
	mac.Write([]byte("."))
	mac.Write(body)
	return fmt.Sprintf("t=%s,v1=%s", tsStr, hex.EncodeToString(mac.Sum(nil)))
}
