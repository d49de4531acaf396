package memory

import (
	"context"
	"testing"
	"time"
)

func newTestMonitor(alloc *uint64) *Monitor {
	m := NewMonitor(MonitorConfig{
		LimitBytes:        1000,
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     10 * time.Millisecond,
	})
	m.alloc = func() uint64 { return *alloc }
	return m
}

func TestMonitorPauseAndResume(t *testing.T) {
	alloc := uint64(100)
	m := newTestMonitor(&alloc)

	m.sample()
	if m.Paused() {
		t.Fatal("should not pause at 10% usage")
	}
	if err := m.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	alloc = 900
	m.sample()
	if !m.Paused() {
		t.Fatal("should pause at 90% usage")
	}
	if u := m.Usage(); u != 0.9 {
		t.Errorf("Usage() = %f, want 0.9", u)
	}

	// Between the watermarks the state holds
	alloc = 800
	m.sample()
	if !m.Paused() {
		t.Fatal("should stay paused between watermarks")
	}

	done := make(chan error, 1)
	go func() { done <- m.Wait(context.Background()) }()

	alloc = 100
	m.sample()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait() did not return after resume")
	}
}

func TestMonitorWaitCancelled(t *testing.T) {
	alloc := uint64(950)
	m := newTestMonitor(&alloc)
	m.sample()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Wait(ctx); err == nil {
		t.Error("expected context error while paused")
	}
}

func TestMonitorRunStopsWithContext(t *testing.T) {
	alloc := uint64(950)
	m := newTestMonitor(&alloc)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(stopped)
	}()

	deadline := time.After(time.Second)
	for !m.Paused() {
		select {
		case <-deadline:
			t.Fatal("monitor never sampled")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop")
	}
	if m.Paused() {
		t.Error("stopping the monitor should release waiters")
	}
}

func TestMonitorDisabledWithoutLimit(t *testing.T) {
	m := &Monitor{resume: make(chan struct{})}
	if m.Enabled() {
		t.Error("monitor without limit should be disabled")
	}
	m.Run(context.Background()) // returns immediately
	if m.Usage() != 0 {
		t.Error("Usage() should be 0 without a limit")
	}
}
