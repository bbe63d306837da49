package gateway

import (
	"errors"
	"testing"
	"time"

	"github.com/freelance-marketplace/backend/internal/apperrors"
)

const testSecret = "whsec_test"

func TestVerifySignatureRoundTrip(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	header := Sign(body, testSecret, time.Now())

	if err := VerifySignature(header, body, testSecret, DefaultSignatureTTL); err != nil {
		t.Errorf("VerifySignature on fresh signature failed: %v", err)
	}
}

func TestVerifySignatureRejects(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)

	tests := []struct {
		name   string
		header string
		body   []byte
		secret string
	}{
		{"wrong secret", Sign(body, "whsec_other", time.Now()), body, testSecret},
		{"tampered body", Sign(body, testSecret, time.Now()), []byte(`{"id":"evt_2"}`), testSecret},
		{"stale timestamp", Sign(body, testSecret, time.Now().Add(-10*time.Minute)), body, testSecret},
		{"future timestamp", Sign(body, testSecret, time.Now().Add(10*time.Minute)), body, testSecret},
		{"empty header", "", body, testSecret},
		{"garbage header", "t=abc,v1=zzz", body, testSecret},
		{"missing v1", "t=123456", body, testSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(tt.header, tt.body, tt.secret, DefaultSignatureTTL)
			if !errors.Is(err, apperrors.ErrInvalidSignature) {
				t.Errorf("VerifySignature() = %v, want ErrInvalidSignature", err)
			}
		})
	}
}

func TestVerifySignatureNoSecret(t *testing.T) {
	body := []byte(`{}`)
	header := Sign(body, "", time.Now())
	if err := VerifySignature(header, body, "", DefaultSignatureTTL); err == nil {
		t.Error("VerifySignature with empty secret should fail")
	}
}
