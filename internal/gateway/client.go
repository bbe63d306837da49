// Package gateway is the thin adapter over the external payment processor:
// intent creation, refunds, and webhook signature verification. All money
// movement is confirmed asynchronously through webhooks; responses here only
// start the flows.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/freelance-marketplace/backend/internal/apperrors"
	"go.uber.org/zap"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	log        *zap.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, maxRetries int, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		log:        log,
	}
}

type CreateIntentRequest struct {
	OrderID        string `json:"order_id"`
	AmountCents    int64  `json:"amount_cents"`
	Currency       string `json:"currency"`
	IdempotencyKey string `json:"-"`
}

type IntentResult struct {
	Reference    string `json:"reference"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

// CreateIntent registers a payment intent and returns the client secret the
// buyer-side flow completes against. Safe to retry: the idempotency key pins
// the gateway to a single intent per order attempt.
func (c *Client) CreateIntent(ctx context.Context, req CreateIntentRequest) (*IntentResult, error) {
	var result IntentResult
	err := c.doWithRetry(ctx, "create_intent", http.MethodPost, "/v1/payment_intents", req.IdempotencyKey, req, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

type RefundRequest struct {
	Reference      string `json:"reference"`
	AmountCents    int64  `json:"amount_cents"`
	IdempotencyKey string `json:"-"`
}

type RefundResult struct {
	RefundReference string `json:"refund_reference"`
	Status          string `json:"status"`
}

// Refund starts a refund of a captured charge. Completion is reported by the
// charge.refunded webhook, never assumed from this response.
func (c *Client) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	var result RefundResult
	err := c.doWithRetry(ctx, "refund", http.MethodPost, "/v1/refunds", req.IdempotencyKey, req, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// doWithRetry retries transient failures with exponential backoff. The
// idempotency key travels on every attempt, so a retried call cannot
// double-charge or double-refund.
func (c *Client) doWithRetry(ctx context.Context, op, method, path, idempotencyKey string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	backoff := 200 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		lastErr = c.do(ctx, method, path, idempotencyKey, payload, out)
		if lastErr == nil {
			return nil
		}
		if !apperrors.IsTransient(lastErr) {
			return lastErr
		}
		c.log.Warn("gateway call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}
	return lastErr
}

func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &apperrors.GatewayError{Op: path, Transient: isTimeout(err), Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		body, _ := io.ReadAll(resp.Body)
		return &apperrors.GatewayError{Op: path, Transient: true, Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(body))}
	default:
		body, _ := io.ReadAll(resp.Body)
		return &apperrors.GatewayError{Op: path, Transient: false, Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(body))}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
