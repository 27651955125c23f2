package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errDownstream = errors.New("downstream failed")

// advanceClock shifts the package clock forward by d for the duration
// of the test.
func advanceClock(t *testing.T, d time.Duration) {
	t.Helper()

	base := time.Now()
	timeNow = func() time.Time { return base.Add(d) }
	t.Cleanup(func() { timeNow = time.Now })
}

func failingOp(ctx context.Context) error { return errDownstream }
func okOp(ctx context.Context) error      { return nil }

func testConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

func TestBreaker_StartsClosed(t *testing.T) {
	b := New("docstore", testConfig())
	if b.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", b.State())
	}
}

func TestBreaker_OpensAfterFailureThreshold(t *testing.T) {
	b := New("docstore", testConfig())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_ = b.Do(ctx, failingOp)
		if b.State() != StateClosed {
			t.Fatalf("after %d failures state = %v, want closed", i+1, b.State())
		}
	}

	_ = b.Do(ctx, failingOp)
	if b.State() != StateOpen {
		t.Errorf("after 5 failures state = %v, want open", b.State())
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New("docstore", testConfig())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_ = b.Do(ctx, failingOp)
	}
	_ = b.Do(ctx, okOp) // resets the consecutive failure count

	for i := 0; i < 4; i++ {
		_ = b.Do(ctx, failingOp)
	}
	if b.State() == StateOpen {
		t.Error("breaker opened although a success reset the failure count")
	}
}

func TestBreaker_OpenRejectsWithoutInvoking(t *testing.T) {
	b := New("docstore", testConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = b.Do(ctx, failingOp)
	}

	invoked := false
	err := b.Do(ctx, func(ctx context.Context) error {
		invoked = true
		return nil
	})

	if !errors.Is(err, ErrOpen) {
		t.Errorf("err = %v, want ErrOpen", err)
	}
	if invoked {
		t.Error("operation must not be invoked while the breaker is open")
	}
}

func TestBreaker_HalfOpenProbeAfterTimeout(t *testing.T) {
	b := New("docstore", testConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = b.Do(ctx, failingOp)
	}

	advanceClock(t, 31*time.Second)

	// The call that finds the timeout elapsed runs as the probe.
	invoked := false
	err := b.Do(ctx, func(ctx context.Context) error {
		invoked = true
		return nil
	})
	if err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if !invoked {
		t.Fatal("probe call should invoke the operation")
	}
	if b.State() != StateHalfOpen {
		t.Errorf("state after one successful probe = %v, want half-open", b.State())
	}

	// Second consecutive success closes it (successThreshold=2).
	_ = b.Do(ctx, okOp)
	if b.State() != StateClosed {
		t.Errorf("state after two successes = %v, want closed", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New("docstore", testConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = b.Do(ctx, failingOp)
	}

	advanceClock(t, 31*time.Second)

	_ = b.Do(ctx, failingOp)
	if b.State() != StateOpen {
		t.Errorf("state after failed probe = %v, want open", b.State())
	}

	// The failed probe reset lastFailureTime, so the very next call is
	// rejected again.
	err := b.Do(ctx, okOp)
	if !errors.Is(err, ErrOpen) {
		t.Errorf("err = %v, want ErrOpen right after a failed probe", err)
	}
}

func TestBreaker_PropagatesOperationError(t *testing.T) {
	b := New("docstore", testConfig())

	err := b.Do(context.Background(), failingOp)
	if !errors.Is(err, errDownstream) {
		t.Errorf("err = %v, want the operation's own error", err)
	}
}

func TestBreaker_ConcurrentFailuresOpenOnce(t *testing.T) {
	b := New("docstore", Config{FailureThreshold: 50, SuccessThreshold: 2, Timeout: time.Minute})
	ctx := context.Background()

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 10; j++ {
				_ = b.Do(ctx, failingOp)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	if b.State() != StateOpen {
		t.Errorf("state = %v, want open after 100 concurrent failures", b.State())
	}
	close(done)
}
