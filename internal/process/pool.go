package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Pool runs named one-shot jobs in the background.
type Pool interface {
	// Start runs command as job id. Returns error if id is already active.
	Start(id, command string) error

	// Stop cancels a job and waits for it to exit.
	Stop(id string) error

	// Wait blocks until the job finishes or ctx is done.
	Wait(ctx context.Context, id string) (*JobInfo, error)

	// GetStatus returns job info. Returns idle state if not found.
	GetStatus(id string) *JobInfo

	// IsRunning checks if a job is currently active.
	IsRunning(id string) bool

	// List returns all known jobs ordered by start time.
	List() []*JobInfo

	// StopAll cancels every active job and waits for them.
	StopAll()
}

// ErrUnknownJob is returned by Wait for an ID the pool never started.
var ErrUnknownJob = errors.New("unknown job")

// managedJob tracks a job within the pool.
type managedJob struct {
	proc   *Process
	info   JobInfo
	cancel context.CancelFunc
	done   chan struct{}
}

// pool implements the Pool interface.
type pool struct {
	opts   PoolOptions
	jobs   map[string]*managedJob
	mu     sync.RWMutex
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a new job pool.
func NewPool(opts *PoolOptions) Pool {
	if opts == nil {
		opts = &PoolOptions{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &pool{
		opts:   *opts,
		jobs:   make(map[string]*managedJob),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start runs command as job id.
func (p *pool) Start(id, command string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if job, exists := p.jobs[id]; exists && !job.info.State.Finished() {
		return fmt.Errorf("job %s already running", id)
	}
	if p.ctx.Err() != nil {
		return errors.New("pool is stopped")
	}

	ctx, cancel := context.WithCancel(p.ctx)
	job := &managedJob{
		info: JobInfo{
			ID:        id,
			State:     StateStarting,
			Command:   command,
			StartedAt: time.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	job.proc = New(id, command, p.logger)
	if parse := p.opts.Progress; parse != nil {
		job.proc.Apply(WithLineHandler(func(line string) {
			if n, ok := parse(line); ok {
				p.mu.Lock()
				job.info.Progress = n
				p.mu.Unlock()
			}
		}))
	}
	if p.opts.ConfigureProcess != nil {
		p.opts.ConfigureProcess(id, job.proc)
	}
	p.jobs[id] = job

	p.notifyStateChange(id, StateIdle, StateStarting, nil)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(job.done)
		p.run(ctx, job)
	}()
	return nil
}

// run executes the job and records its outcome.
func (p *pool) run(ctx context.Context, job *managedJob) {
	p.mu.Lock()
	oldState := job.info.State
	job.info.State = StateRunning
	p.mu.Unlock()
	p.notifyStateChange(job.info.ID, oldState, StateRunning, nil)

	exitCode, err := job.proc.Run(ctx)

	p.mu.Lock()
	oldState = job.info.State
	job.info.ExitCode = exitCode
	job.info.FinishedAt = time.Now()
	if err != nil {
		job.info.State = StateError
		job.info.LastError = err.Error()
	} else {
		job.info.State = StateDone
	}
	newState := job.info.State
	id := job.info.ID
	p.mu.Unlock()

	p.notifyStateChange(id, oldState, newState, err)
	p.logger.Info("Job finished", "id", id, "state", newState, "exit_code", exitCode)
}

// Stop cancels a job and waits for it to exit.
func (p *pool) Stop(id string) error {
	p.mu.Lock()
	job, exists := p.jobs[id]
	if !exists || job.info.State.Finished() || job.info.State == StateStopping {
		p.mu.Unlock()
		return nil
	}
	oldState := job.info.State
	job.info.State = StateStopping
	p.mu.Unlock()

	p.notifyStateChange(id, oldState, StateStopping, nil)
	p.logger.Info("Stopping job", "id", id)
	job.cancel()

	select {
	case <-job.done:
	case <-time.After(10 * time.Second):
		p.logger.Warn("Timeout waiting for job to stop", "id", id)
	}
	return nil
}

// Wait blocks until the job finishes or ctx is done.
func (p *pool) Wait(ctx context.Context, id string) (*JobInfo, error) {
	p.mu.RLock()
	job, exists := p.jobs[id]
	p.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}

	select {
	case <-job.done:
		return p.GetStatus(id), nil
	case <-ctx.Done():
		return p.GetStatus(id), ctx.Err()
	}
}

// GetStatus returns job info.
func (p *pool) GetStatus(id string) *JobInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	job, exists := p.jobs[id]
	if !exists {
		return &JobInfo{ID: id, State: StateIdle}
	}
	info := job.info
	return &info
}

// IsRunning checks if a job is currently active.
func (p *pool) IsRunning(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	job, exists := p.jobs[id]
	return exists && !job.info.State.Finished()
}

// List returns all known jobs ordered by start time.
func (p *pool) List() []*JobInfo {
	p.mu.RLock()
	out := make([]*JobInfo, 0, len(p.jobs))
	for _, job := range p.jobs {
		info := job.info
		out = append(out, &info)
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// StopAll cancels every active job and waits for them.
func (p *pool) StopAll() {
	p.logger.Info("Stopping all jobs")

	p.mu.RLock()
	ids := make([]string, 0, len(p.jobs))
	for id := range p.jobs {
		ids = append(ids, id)
	}
	p.mu.RUnlock()

	for _, id := range ids {
		_ = p.Stop(id)
	}
	p.cancel()

	p.wg.Wait()
	p.logger.Info("All jobs stopped")
}

// notifyStateChange invokes the OnStateChange callback if configured.
func (p *pool) notifyStateChange(id string, oldState, newState State, err error) {
	if p.opts.OnStateChange != nil {
		p.opts.OnStateChange(id, oldState, newState, err)
	}
}
