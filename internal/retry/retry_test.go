package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-github/v68/github"
)

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultConfig(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	transientErr := &github.ErrorResponse{Response: &http.Response{StatusCode: 503}}

	cfg := Config{MaxAttempts: 3, BaseDelay: time.Millisecond, JitterFrac: 0}
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return transientErr
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_StopsImmediatelyOnPermanentError(t *testing.T) {
	calls := 0
	permanentErr := &github.ErrorResponse{Response: &http.Response{StatusCode: 404}}

	cfg := Config{MaxAttempts: 3, BaseDelay: time.Millisecond, JitterFrac: 0}
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return permanentErr
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (should not retry permanent error)", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	transientErr := &github.ErrorResponse{Response: &http.Response{StatusCode: 500}}

	cfg := Config{MaxAttempts: 3, BaseDelay: time.Millisecond, JitterFrac: 0}
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return transientErr
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transientErr := &github.ErrorResponse{Response: &http.Response{StatusCode: 500}}
	cfg := Config{MaxAttempts: 3, BaseDelay: time.Second, JitterFrac: 0}
	err := Do(ctx, cfg, func(ctx context.Context) error {
		return transientErr
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"500", &github.ErrorResponse{Response: &http.Response{StatusCode: 500}}, true},
		{"429", &github.ErrorResponse{Response: &http.Response{StatusCode: 429}}, true},
		{"404", &github.ErrorResponse{Response: &http.Response{StatusCode: 404}}, false},
		{"401", &github.ErrorResponse{Response: &http.Response{StatusCode: 401}}, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
