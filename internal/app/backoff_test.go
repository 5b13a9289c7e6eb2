package app

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoff_Doubles(t *testing.T) {
	b := newBackoff(time.Microsecond, 4*time.Microsecond)
	want := []time.Duration{time.Microsecond, 2 * time.Microsecond, 4 * time.Microsecond, 4 * time.Microsecond}
	for i, w := range want {
		if b.Current() != w {
			t.Errorf("step %d: Current() = %v, want %v", i, b.Current(), w)
		}
		if err := b.Sleep(context.Background()); err != nil {
			t.Fatalf("Sleep() error = %v", err)
		}
	}
}

func TestBackoff_Jitter(t *testing.T) {
	b := newBackoff(time.Second, time.Minute)
	for i := 0; i < 100; i++ {
		d := b.next()
		if d < 800*time.Millisecond || d > 1200*time.Millisecond {
			t.Fatalf("next() = %v outside ±20%%", d)
		}
	}
}

func TestBackoff_Defaults(t *testing.T) {
	b := newBackoff(0, 0)
	if b.initial != DefaultBackoffInitial || b.max != DefaultBackoffMax {
		t.Errorf("defaults = %v/%v", b.initial, b.max)
	}
}

func TestBackoff_SleepCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := newBackoff(time.Hour, time.Hour)
	start := time.Now()
	if err := b.Sleep(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep() = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep() ignored cancellation")
	}
}
