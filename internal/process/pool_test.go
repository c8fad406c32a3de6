package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func poolTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const loopCommand = `sh -c "trap 'exit 0' INT TERM; while :; do sleep 0.1; done"`

func waitJob(t *testing.T, pool Pool, id string) *JobInfo {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	info, err := pool.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait(%s) failed: %v", id, err)
	}
	return info
}

func TestPoolStartStop(t *testing.T) {
	pool := NewPool(&PoolOptions{Logger: poolTestLogger()})

	if err := pool.Start("test1", loopCommand); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	if !pool.IsRunning("test1") {
		t.Error("expected job to be running")
	}

	if err := pool.Stop("test1"); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if pool.IsRunning("test1") {
		t.Error("expected job to not be running")
	}
	if info := pool.GetStatus("test1"); info.State != StateError {
		t.Errorf("cancelled job state = %v, want error", info.State)
	}
}

func TestPoolStartAlreadyRunning(t *testing.T) {
	pool := NewPool(&PoolOptions{Logger: poolTestLogger()})

	if err := pool.Start("test1", "sleep 10"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pool.StopAll()

	if err := pool.Start("test1", "sleep 10"); err == nil {
		t.Error("expected error when starting an active job")
	}
}

func TestPoolRestartFinishedJob(t *testing.T) {
	pool := NewPool(&PoolOptions{Logger: poolTestLogger()})
	defer pool.StopAll()

	if err := pool.Start("test1", "true"); err != nil {
		t.Fatal(err)
	}
	waitJob(t, pool, "test1")

	if err := pool.Start("test1", "sh -c 'exit 3'"); err != nil {
		t.Fatalf("restarting a finished job failed: %v", err)
	}
	if info := waitJob(t, pool, "test1"); info.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", info.ExitCode)
	}
}

func TestPoolGetStatus(t *testing.T) {
	pool := NewPool(&PoolOptions{Logger: poolTestLogger()})

	if info := pool.GetStatus("test1"); info.State != StateIdle {
		t.Errorf("expected StateIdle, got %v", info.State)
	}

	if err := pool.Start("test1", "echo done"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pool.StopAll()

	info := waitJob(t, pool, "test1")
	if info.State != StateDone {
		t.Errorf("expected StateDone, got %v", info.State)
	}
	if info.ID != "test1" || info.Command != "echo done" {
		t.Errorf("unexpected info %+v", info)
	}
	if info.FinishedAt.Before(info.StartedAt) {
		t.Error("finish time before start time")
	}
}

func TestPoolWaitUnknown(t *testing.T) {
	pool := NewPool(nil)
	if _, err := pool.Wait(context.Background(), "missing"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("Wait error = %v, want ErrUnknownJob", err)
	}
}

func TestPoolStopAll(t *testing.T) {
	pool := NewPool(&PoolOptions{Logger: poolTestLogger()})

	_ = pool.Start("test1", loopCommand)
	_ = pool.Start("test2", loopCommand)

	time.Sleep(50 * time.Millisecond)

	if !pool.IsRunning("test1") || !pool.IsRunning("test2") {
		t.Error("expected both jobs to be running")
	}

	pool.StopAll()

	if pool.IsRunning("test1") || pool.IsRunning("test2") {
		t.Error("expected both jobs to be stopped")
	}
	if err := pool.Start("test3", "true"); err == nil {
		t.Error("expected error starting a job on a stopped pool")
	}
}

func TestPoolList(t *testing.T) {
	pool := NewPool(&PoolOptions{Logger: poolTestLogger()})
	defer pool.StopAll()

	_ = pool.Start("a", "true")
	time.Sleep(5 * time.Millisecond)
	_ = pool.Start("b", "true")
	waitJob(t, pool, "a")
	waitJob(t, pool, "b")

	jobs := pool.List()
	if len(jobs) != 2 || jobs[0].ID != "a" || jobs[1].ID != "b" {
		t.Errorf("List() = %+v, want a then b", jobs)
	}
}

func TestPoolStateChangeCallback(t *testing.T) {
	var mu sync.Mutex
	var states []State

	pool := NewPool(&PoolOptions{
		OnStateChange: func(id string, oldState, newState State, cbErr error) {
			mu.Lock()
			states = append(states, newState)
			mu.Unlock()
		},
		Logger: poolTestLogger(),
	})

	_ = pool.Start("test1", "echo test1")
	waitJob(t, pool, "test1")

	mu.Lock()
	defer mu.Unlock()

	want := []State{StateStarting, StateRunning, StateDone}
	if len(states) != len(want) {
		t.Fatalf("transitions = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, states[i], want[i])
		}
	}
}

func TestPoolConfigureProcess(t *testing.T) {
	var configuredID string
	var configured bool
	pool := NewPool(&PoolOptions{
		ConfigureProcess: func(id string, proc *Process) {
			configuredID = id
			configured = proc != nil
		},
		Logger: poolTestLogger(),
	})

	_ = pool.Start("test1", "echo test1")
	waitJob(t, pool, "test1")

	if !configured {
		t.Error("expected ConfigureProcess to be called")
	}
	if configuredID != "test1" {
		t.Errorf("expected configuredID 'test1', got %v", configuredID)
	}
}

func TestPoolProcessCrash(t *testing.T) {
	var mu sync.Mutex
	var lastErr error
	var lastState State

	pool := NewPool(&PoolOptions{
		OnStateChange: func(id string, oldState, newState State, err error) {
			mu.Lock()
			lastState = newState
			if err != nil {
				lastErr = err
			}
			mu.Unlock()
		},
		Logger: poolTestLogger(),
	})

	_ = pool.Start("test1", fmt.Sprintf("sh -c 'echo %s; exit 42'", "test1"))
	info := waitJob(t, pool, "test1")

	if info.State != StateError {
		t.Errorf("expected StateError, got %v", info.State)
	}
	if info.LastError == "" || info.ExitCode != 42 {
		t.Errorf("unexpected info %+v", info)
	}

	mu.Lock()
	defer mu.Unlock()
	if lastState != StateError {
		t.Errorf("expected callback to receive StateError, got %v", lastState)
	}
	var exitErr *ExitError
	if !errors.As(lastErr, &exitErr) {
		t.Errorf("expected callback to receive ExitError, got %v", lastErr)
	}
}

func TestPoolStopNotRunning(t *testing.T) {
	pool := NewPool(&PoolOptions{Logger: poolTestLogger()})

	if err := pool.Stop("nonexistent"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestPoolTracksProgress(t *testing.T) {
	pool := NewPool(&PoolOptions{
		Logger: poolTestLogger(),
		Progress: func(line string) (int, bool) {
			var n int
			_, err := fmt.Sscanf(line, "frame=%d", &n)
			return n, err == nil
		},
	})
	defer pool.StopAll()

	if err := pool.Start("enc", `printf "frame=3\\rframe=7\\rbye\\n"`); err != nil {
		t.Fatal(err)
	}
	if info := waitJob(t, pool, "enc"); info.Progress != 7 {
		t.Errorf("progress = %d, want 7", info.Progress)
	}
}
