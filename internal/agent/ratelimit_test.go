package agent

import (
	"context"
	"testing"
	"time"
)

func TestThrottle_DisabledIsNil(t *testing.T) {
	th := NewThrottle(0, 5)
	if th != nil {
		t.Fatal("expected nil throttle when rate is zero")
	}
	if err := th.Wait(context.Background()); err != nil {
		t.Fatalf("nil throttle should never block: %v", err)
	}
}

func TestThrottle_Burst(t *testing.T) {
	th := NewThrottle(60, 3)
	for i := 0; i < 3; i++ {
		if err := th.Wait(context.Background()); err != nil {
			t.Fatalf("burst token %d: %v", i, err)
		}
	}
	if d := th.take(); d <= 0 {
		t.Fatalf("expected a wait after the burst, got %v", d)
	}
}

func TestThrottle_Refill(t *testing.T) {
	clock := time.Unix(1000, 0)
	th := NewThrottle(60, 1) // one per second
	th.now = func() time.Time { return clock }
	th.last = clock

	if d := th.take(); d != 0 {
		t.Fatalf("first take should succeed, waited %v", d)
	}
	if d := th.take(); d != time.Second {
		t.Fatalf("expected 1s wait, got %v", d)
	}
	clock = clock.Add(time.Second)
	if d := th.take(); d != 0 {
		t.Fatalf("token should have refilled, waited %v", d)
	}
}

func TestThrottle_CancelledContext(t *testing.T) {
	th := NewThrottle(1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	if err := th.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := th.Wait(ctx); err == nil {
		t.Fatal("expected context error")
	}
}
