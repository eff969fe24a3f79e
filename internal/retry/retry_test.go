package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("transient error")
		}
		return nil
	}, WithBackoff(time.Millisecond, time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return fmt.Errorf("persistent error")
	}, WithBackoff(time.Millisecond, time.Millisecond))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if err.Error() != "persistent error" {
		t.Fatalf("expected original error, got: %v", err)
	}
}

func TestDo_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, func() error {
		calls++
		return fmt.Errorf("fail")
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call (no retry after context cancel), got %d", calls)
	}
}

func TestDo_CustomOptions(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return fmt.Errorf("fail")
	}, WithMaxAttempts(5), WithBackoff(time.Millisecond, time.Millisecond, time.Millisecond, time.Millisecond))

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 5 {
		t.Fatalf("expected 5 calls, got %d", calls)
	}
}

func TestDo_PermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return Permanent(fmt.Errorf("bad request"))
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call (no retry for permanent), got %d", calls)
	}
	if err.Error() != "bad request" {
		t.Fatalf("expected unwrapped error, got: %v", err)
	}
}

func TestDo_WrappedPermanentError(t *testing.T) {
	calls := 0
	base := errors.New("forbidden")
	err := Do(context.Background(), func() error {
		calls++
		return fmt.Errorf("calling API: %w", Permanent(base))
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call for wrapped permanent error, got %d", calls)
	}
}

func TestDoVal_ReturnsValue(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), func() (string, error) {
		calls++
		if calls < 2 {
			return "", fmt.Errorf("transient")
		}
		return "hello", nil
	}, WithBackoff(time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "hello" {
		t.Fatalf("expected value, got %q", val)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestDoVal_ZeroValueOnFailure(t *testing.T) {
	val, err := DoVal(context.Background(), func() (int, error) {
		return 7, Permanent(fmt.Errorf("nope"))
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if val != 0 {
		t.Fatalf("expected zero value on failure, got %d", val)
	}
}
