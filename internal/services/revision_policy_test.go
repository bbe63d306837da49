package services

import (
	"errors"
	"testing"

	"github.com/freelance-marketplace/backend/internal/apperrors"
)

func TestRevisionsRemaining(t *testing.T) {
	tests := []struct {
		name    string
		allowed int
		used    int
		want    int
	}{
		{"none used", 3, 0, 3},
		{"some used", 3, 2, 1},
		{"all used", 3, 3, 0},
		{"over used", 3, 5, 0},
		{"zero allowance", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RevisionsRemaining(tt.allowed, tt.used); got != tt.want {
				t.Errorf("RevisionsRemaining(%d, %d) = %d, want %d", tt.allowed, tt.used, got, tt.want)
			}
		})
	}
}

func TestCheckRevisionAllowed(t *testing.T) {
	if err := CheckRevisionAllowed(2, 1); err != nil {
		t.Errorf("CheckRevisionAllowed(2, 1) = %v, want nil", err)
	}
	if err := CheckRevisionAllowed(2, 2); !errors.Is(err, apperrors.ErrRevisionLimitExceeded) {
		t.Errorf("CheckRevisionAllowed(2, 2) = %v, want ErrRevisionLimitExceeded", err)
	}
	// Zero-revision packages reject the first request
	if err := CheckRevisionAllowed(0, 0); !errors.Is(err, apperrors.ErrRevisionLimitExceeded) {
		t.Errorf("CheckRevisionAllowed(0, 0) = %v, want ErrRevisionLimitExceeded", err)
	}
}
