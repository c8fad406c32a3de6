package process

import "time"

// State represents the current state of a pool job.
type State string

// Job states.
const (
	StateIdle     State = "idle"     // Unknown or never started
	StateStarting State = "starting" // Being started
	StateRunning  State = "running"  // Active
	StateStopping State = "stopping" // Being cancelled
	StateDone     State = "done"     // Exited with code 0
	StateError    State = "error"    // Failed to start, crashed, or was cancelled
)

// Finished reports whether s is a terminal state.
func (s State) Finished() bool {
	return s == StateDone || s == StateError
}

// JobInfo describes a pool job.
type JobInfo struct {
	ID         string    `json:"id" doc:"Job identifier"`
	State      State     `json:"state" enum:"idle,starting,running,stopping,done,error" doc:"Job state"`
	Command    string    `json:"command,omitempty" doc:"Command line"`
	ExitCode   int       `json:"exit_code" doc:"Exit code once finished"`
	Progress   int       `json:"progress" doc:"Last progress counter reported by the job, e.g. encoded frames"`
	StartedAt  time.Time `json:"started_at,omitempty" doc:"Start time"`
	FinishedAt time.Time `json:"finished_at,omitempty" doc:"Finish time"`
	LastError  string    `json:"error,omitempty" doc:"Failure description"`
}
