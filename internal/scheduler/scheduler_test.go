package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"keyword_bot/internal/monitor"
)

type mockRunner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockRunner) RunTick(context.Context) (*monitor.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &monitor.Stats{}, nil
}

func (m *mockRunner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunFiresImmediatelyAndStopsOnCancel(t *testing.T) {
	runner := &mockRunner{}
	s := New(runner, time.Hour, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for runner.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("scheduler never fired the initial tick")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}

	if got := runner.callCount(); got != 1 {
		t.Errorf("expected exactly the initial tick, got %d", got)
	}
}

func TestRunFiresOnInterval(t *testing.T) {
	runner := &mockRunner{}
	s := New(runner, 10*time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	deadline := time.After(2 * time.Second)
	for runner.callCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 ticks, got %d", runner.callCount())
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestRunSurvivesTickErrors(t *testing.T) {
	runner := &mockRunner{err: errors.New("feed unreachable")}
	s := New(runner, 10*time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	deadline := time.After(2 * time.Second)
	for runner.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected the loop to keep running after errors, got %d ticks", runner.callCount())
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestRunSkipsWhileTickRunning(t *testing.T) {
	runner := &mockRunner{err: monitor.ErrTickRunning}
	s := New(runner, 10*time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	deadline := time.After(2 * time.Second)
	for runner.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected the loop to keep polling past the run lock, got %d ticks", runner.callCount())
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}
