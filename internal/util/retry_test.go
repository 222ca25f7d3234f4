package util

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"
)

func fastRetry() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		InitialWait: 5 * time.Millisecond,
		MaxWait:     20 * time.Millisecond,
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"EAGAIN", syscall.EAGAIN, true},
		{"ETIMEDOUT", syscall.ETIMEDOUT, true},
		{"EIO", syscall.EIO, true},
		{"ENOENT", syscall.ENOENT, false},
		{"EPERM", syscall.EPERM, false},
		{"timeout in message", errors.New("connection timeout"), true},
		{"broken pipe in message", errors.New("write: broken pipe"), true},
		{"generic error", errors.New("invalid argument"), false},
		{"PathError with ETIMEDOUT", &os.PathError{Op: "open", Path: "/x", Err: syscall.ETIMEDOUT}, true},
		{"PathError with ENOENT", &os.PathError{Op: "open", Path: "/x", Err: syscall.ENOENT}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.expected {
				t.Errorf("IsRetryableError(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestRetryWithBackoff_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	result, err := RetryWithBackoff(context.Background(), fastRetry(), func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", syscall.ETIMEDOUT
		}
		return "success", nil
	}, "test operation")

	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result != "success" || attempts != 3 {
		t.Errorf("got result=%q attempts=%d", result, attempts)
	}
}

func TestRetryWithBackoff_FailureAfterMaxRetries(t *testing.T) {
	attempts := 0
	_, err := RetryWithBackoff(context.Background(), fastRetry(), func() (int, error) {
		attempts++
		return 0, syscall.ETIMEDOUT
	}, "test operation")

	if err == nil {
		t.Fatal("Expected error after max retries, got nil")
	}
	if !errors.Is(err, syscall.ETIMEDOUT) {
		t.Errorf("expected wrapped ETIMEDOUT, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
}

func TestRetryWithBackoff_NonRetryableError(t *testing.T) {
	attempts := 0
	_, err := RetryWithBackoff(context.Background(), fastRetry(), func() (int, error) {
		attempts++
		return 0, syscall.ENOENT
	}, "test operation")

	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got: %d", attempts)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := &RetryConfig{MaxAttempts: 5, InitialWait: time.Second, MaxWait: time.Second}
	attempts := 0
	err := Retry(ctx, cfg, func() error {
		attempts++
		return syscall.EAGAIN
	}, "cancelled")

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected a single attempt, got %d", attempts)
	}
}

func TestNASRetryConfig(t *testing.T) {
	cfg := NASRetryConfig()
	if cfg.MaxAttempts != 3 || cfg.InitialWait != 200*time.Millisecond || cfg.MaxWait != 10*time.Second {
		t.Errorf("unexpected NAS retry config: %+v", cfg)
	}
}
