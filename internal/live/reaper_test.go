package live

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingReaper struct{ calls atomic.Int32 }

func (c *countingReaper) Reap() int {
	c.calls.Add(1)
	return 1
}

func TestReaperTicksUntilCancelled(t *testing.T) {
	target := &countingReaper{}
	r := NewReaper(target, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for target.calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("reaper ran %d times", target.calls.Load())
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}

func TestReaperPrunesDisconnectedSubscribers(t *testing.T) {
	reg := New[int, snap]()
	sub, _ := reg.Subscribe(7, snap{"a", 1})
	keep, _ := reg.Subscribe(7, snap{"a", 1})
	sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewReaper(reg, 5*time.Millisecond, nil).Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for reg.Count(7) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("count still %d", reg.Count(7))
		}
		time.Sleep(time.Millisecond)
	}
	_ = keep
}

func TestNewReaperDefaultInterval(t *testing.T) {
	r := NewReaper(&countingReaper{}, 0, nil)
	if r.interval != DefaultReapInterval {
		t.Fatalf("interval = %v", r.interval)
	}
}
