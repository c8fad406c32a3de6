package process

import "log/slog"

// StateChangeCallback observes job transitions. err is set on the
// transition into StateError.
type StateChangeCallback func(id string, oldState, newState State, err error)

// Configurer adjusts a job's Process before it starts, typically with Apply.
type Configurer func(id string, proc *Process)

// ProgressParser extracts a progress counter from an output line.
type ProgressParser func(line string) (int, bool)

// PoolOptions configures a new Pool. Every field is optional.
type PoolOptions struct {
	OnStateChange    StateChangeCallback
	ConfigureProcess Configurer
	// Progress fills JobInfo.Progress from job output.
	Progress ProgressParser
	Logger   *slog.Logger
}
