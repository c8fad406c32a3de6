package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// LogParser maps an output line to a log level ("error", "warning", "info",
// "debug", ...) and the message to log.
type LogParser func(line string) (level, msg string)

// ExitError reports a subprocess that exited with a non-zero code.
type ExitError struct {
	ID   string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("process %s exited with code %d", e.ID, e.Code)
}

// KilledExitCode is reported when a process had to be killed.
const KilledExitCode = 128 + int(syscall.SIGKILL)

// DefaultGrace is how long a cancelled process may take to exit after
// SIGINT before it is killed.
const DefaultGrace = 5 * time.Second

// Process runs one subprocess to completion.
type Process struct {
	id      string
	command string
	logger  *slog.Logger
	output  *slog.Logger
	parse   LogParser
	onLine  func(line string)
	grace   time.Duration
}

// Option configures a Process.
type Option func(*Process)

// WithOutputLogger logs subprocess output to logger at the level parse
// reports. Without it output is logged at info on the process logger.
func WithOutputLogger(logger *slog.Logger, parse LogParser) Option {
	return func(p *Process) {
		p.output = logger
		p.parse = parse
	}
}

// WithLineHandler calls fn for every output line before it is logged.
func WithLineHandler(fn func(line string)) Option {
	return func(p *Process) {
		prev := p.onLine
		p.onLine = fn
		if prev != nil {
			p.onLine = func(line string) {
				prev(line)
				fn(line)
			}
		}
	}
}

// WithGrace sets the SIGINT grace period.
func WithGrace(d time.Duration) Option {
	return func(p *Process) { p.grace = d }
}

// New creates a process for command. Nothing runs until Run is called.
func New(id, command string, logger *slog.Logger, opts ...Option) *Process {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Process{id: id, command: command, logger: logger, grace: DefaultGrace}
	p.Apply(opts...)
	return p
}

// Apply applies opts to a process that has not started yet.
func (p *Process) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(p)
	}
}

// Command returns the command string.
func (p *Process) Command() string {
	return p.command
}

// Run starts the subprocess and blocks until it exits. Cancelling ctx sends
// SIGINT; the process is killed when it is still running after the grace
// period. Run returns the exit code (128+signal when signalled) and an
// error when the process could not start, exited non-zero, or ctx ended.
func (p *Process) Run(ctx context.Context) (int, error) {
	args, err := ParseCommand(p.command)
	if err == nil && len(args) == 0 {
		err = errors.New("empty command")
	}
	if err != nil {
		p.logger.Error("Invalid command", "id", p.id, "error", err)
		return 1, err
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		p.logger.Info("Stopping process", "id", p.id)
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = p.grace

	// One writer for both streams: exec serialises writes to it.
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	scanned := make(chan struct{})
	go func() {
		defer close(scanned)
		p.scan(pr)
	}()

	if err := cmd.Start(); err != nil {
		pw.Close()
		<-scanned
		p.logger.Error("Failed to start process", "id", p.id, "error", err)
		return 1, fmt.Errorf("failed to start %s: %w", args[0], err)
	}
	p.logger.Debug("Process started", "id", p.id, "pid", cmd.Process.Pid, "command", p.command)

	waitErr := cmd.Wait()
	pw.Close()
	<-scanned

	code := exitCode(cmd.ProcessState, waitErr)
	if code == KilledExitCode && ctx.Err() != nil {
		p.logger.Warn("Process ignored SIGINT and was killed", "id", p.id, "grace", p.grace)
	}
	switch {
	case ctx.Err() != nil:
		return code, ctx.Err()
	case code != 0:
		p.logger.Warn("Process exited with error", "id", p.id, "exit_code", code)
		return code, &ExitError{ID: p.id, Code: code}
	}
	p.logger.Debug("Process exited", "id", p.id)
	return 0, nil
}

func exitCode(state *os.ProcessState, waitErr error) int {
	if state == nil {
		if waitErr != nil {
			return 1
		}
		return 0
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}

// scan logs every output line until r is closed.
func (p *Process) scan(r io.Reader) {
	logger := p.output
	if logger == nil {
		logger = p.logger
	}

	sc := bufio.NewScanner(r)
	sc.Split(scanLines)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		if p.onLine != nil {
			p.onLine(line)
		}

		level, msg := "info", line
		if p.parse != nil {
			level, msg = p.parse(line)
		}
		switch level {
		case "panic", "fatal", "error":
			logger.Error(msg, "job", p.id)
		case "warning":
			logger.Warn(msg, "job", p.id)
		case "info":
			logger.Info(msg, "job", p.id)
		default:
			logger.Debug(msg, "job", p.id)
		}
	}
	if err := sc.Err(); err != nil {
		p.logger.Warn("Error reading output", "id", p.id, "error", err)
	}
	// Keep draining so the writer never blocks on an overlong line.
	_, _ = io.Copy(io.Discard, r)
}

// scanLines splits on "\n" and on the bare "\r" ffmpeg uses for progress.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// ParseCommand splits a command line into arguments. Single and double
// quotes group words, and a backslash escapes the next character.
func ParseCommand(command string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		quote   rune
		started bool
		escaped bool
	)
	for _, r := range strings.TrimSpace(command) {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
			started = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			started = true
		case r == ' ' || r == '\t':
			if started {
				args = append(args, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if quote != 0 {
		return nil, errors.New("unclosed quote in command")
	}
	if escaped {
		cur.WriteRune('\\')
	}
	if started {
		args = append(args, cur.String())
	}
	return args, nil
}

// Quote wraps an argument in double quotes for ParseCommand.
func Quote(arg string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(arg) + `"`
}
