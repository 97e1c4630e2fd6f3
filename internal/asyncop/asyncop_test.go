package asyncop

import (
	"testing"
	"time"

	"github.com/friendsincode/audioengine/internal/engineerr"
)

func TestResolveThenWaitReturnsReady(t *testing.T) {
	op := New()
	op.Resolve(42)

	st, err := op.Wait(time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != Ready {
		t.Fatalf("state = %v, want Ready", st)
	}
	v, err := op.TakeResult()
	if err != nil || v.(int) != 42 {
		t.Fatalf("result = %v, err = %v", v, err)
	}
}

func TestNotifierFiresOnResolve(t *testing.T) {
	op := New()
	fired := make(chan struct{}, 1)
	op.SetNotifier(func() { fired <- struct{}{} })

	go func() {
		time.Sleep(10 * time.Millisecond)
		op.Resolve("done")
	}()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("notifier never fired")
	}
}

func TestWaitTimesOutAndCancels(t *testing.T) {
	op := New()
	st, err := op.Wait(20 * time.Millisecond)
	if st != Cancelled {
		t.Fatalf("state = %v, want Cancelled", st)
	}
	if !engineerr.Is(err, engineerr.Timeout) {
		t.Fatalf("expected Timeout kind, got %v", err)
	}
	if op.Poll() != Cancelled {
		t.Fatalf("op should be left Cancelled after timeout")
	}
}

func TestFailSurfacesError(t *testing.T) {
	op := New()
	op.Fail(engineerr.New(engineerr.Io, "disk error"))
	_, err := op.TakeResult()
	if !engineerr.Is(err, engineerr.Io) {
		t.Fatalf("expected Io kind, got %v", err)
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	op := New()
	op.Resolve(1)
	op.Resolve(2) // must be ignored, first resolution wins
	v, _ := op.TakeResult()
	if v.(int) != 1 {
		t.Fatalf("second resolve overwrote first: got %v", v)
	}
}
