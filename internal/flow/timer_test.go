package flow

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSimpleTimerFires(t *testing.T) {
	timer := NewSimpleTimer()
	var fired atomic.Int32
	if _, err := timer.ScheduleAfter(10*time.Millisecond, func() { fired.Add(1) }); err != nil {
		t.Fatalf("ScheduleAfter: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fired.Load() != 1 {
		t.Fatalf("fired = %d, want 1", fired.Load())
	}
	if timer.Active() != 0 {
		t.Errorf("active = %d, want 0 after fire", timer.Active())
	}
}

func TestSimpleTimerCancelIdempotent(t *testing.T) {
	timer := NewSimpleTimer()
	var fired atomic.Int32
	id, err := timer.ScheduleAfter(50*time.Millisecond, func() { fired.Add(1) })
	if err != nil {
		t.Fatalf("ScheduleAfter: %v", err)
	}
	if err := timer.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := timer.Cancel(id); err != nil {
		t.Fatalf("second Cancel: %v", err)
	}
	if err := timer.Cancel("timer_never_existed"); err != nil {
		t.Fatalf("Cancel of unknown id: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if fired.Load() != 0 {
		t.Errorf("canceled timer fired %d times", fired.Load())
	}
}

func TestSimpleTimerStopCancelsAll(t *testing.T) {
	timer := NewSimpleTimer()
	var fired atomic.Int32
	for i := 0; i < 3; i++ {
		timer.ScheduleAfter(50*time.Millisecond, func() { fired.Add(1) })
	}
	timer.Stop()
	if timer.Active() != 0 {
		t.Errorf("active = %d, want 0 after Stop", timer.Active())
	}
	time.Sleep(100 * time.Millisecond)
	if fired.Load() != 0 {
		t.Errorf("stopped timers fired %d times", fired.Load())
	}
}
