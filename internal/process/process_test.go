package process

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProcess(command string, opts ...Option) *Process {
	return New("test", command, testLogger(), append([]Option{WithGrace(100 * time.Millisecond)}, opts...)...)
}

type runResult struct {
	code int
	err  error
}

// runAsync runs the process in a goroutine and returns a result channel.
func runAsync(ctx context.Context, p *Process) <-chan runResult {
	done := make(chan runResult, 1)
	go func() {
		code, err := p.Run(ctx)
		done <- runResult{code, err}
	}()
	return done
}

// waitForResult waits for the run result, failing the test on timeout.
func waitForResult(t *testing.T, done <-chan runResult, timeout time.Duration) runResult {
	t.Helper()
	select {
	case r := <-done:
		return r
	case <-time.After(timeout):
		t.Fatal("timeout waiting for process to exit")
		return runResult{}
	}
}

func TestGracefulShutdown(t *testing.T) {
	// Process that handles SIGINT
	p := newTestProcess(`sh -c "trap 'exit 0' INT TERM; while :; do sleep 0.1; done"`, WithGrace(500*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, p)
	time.Sleep(100 * time.Millisecond)
	cancel()

	r := waitForResult(t, done, time.Second)
	if r.code != 0 {
		t.Errorf("expected exit code 0, got %d", r.code)
	}
	if !errors.Is(r.err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", r.err)
	}
}

func TestForceKillOnTimeout(t *testing.T) {
	// Process that ignores SIGINT
	p := newTestProcess(`sh -c "trap '' INT; sleep 10"`, WithGrace(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, p)
	time.Sleep(50 * time.Millisecond)
	cancel()

	r := waitForResult(t, done, time.Second)
	if r.code != KilledExitCode {
		t.Errorf("expected exit code %d, got %d", KilledExitCode, r.code)
	}
	if !errors.Is(r.err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", r.err)
	}
}

func TestDeadlineStopsProcess(t *testing.T) {
	p := newTestProcess("sleep 10")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	r := waitForResult(t, runAsync(ctx, p), time.Second)
	if !errors.Is(r.err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", r.err)
	}
	if r.code != 128+int(syscall.SIGINT) {
		t.Errorf("exit code = %d, want SIGINT status %d", r.code, 128+int(syscall.SIGINT))
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("shutdown took too long: %v", elapsed)
	}
}

func TestProcessAlreadyExited(t *testing.T) {
	p := newTestProcess("true")

	ctx, cancel := context.WithCancel(context.Background())
	code, err := p.Run(ctx)
	if code != 0 || err != nil {
		t.Errorf("Run() = (%d, %v), want (0, nil)", code, err)
	}
	// Cancelling after exit must not signal anything.
	cancel()
}

func TestCommand(t *testing.T) {
	p := newTestProcess("echo hello")
	if got := p.Command(); got != "echo hello" {
		t.Errorf("Command() = %q, want %q", got, "echo hello")
	}
}

func TestRunWithInvalidCommand(t *testing.T) {
	p := newTestProcess(`echo "unclosed`)
	if code, err := p.Run(context.Background()); code != 1 || err == nil {
		t.Errorf("Run() = (%d, %v), want exit code 1 with parse error", code, err)
	}
}

func TestRunWithEmptyCommand(t *testing.T) {
	p := newTestProcess("")
	if code, err := p.Run(context.Background()); code != 1 || err == nil {
		t.Errorf("Run() = (%d, %v), want exit code 1 with error", code, err)
	}
}

func TestProcessExitWithError(t *testing.T) {
	p := newTestProcess("sh -c 'exit 42'")
	code, err := p.Run(context.Background())
	if code != 42 {
		t.Errorf("expected exit code 42, got %d", code)
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 42 {
		t.Errorf("expected ExitError with code 42, got %v", err)
	}
}

func TestRunWithNonExistentCommand(t *testing.T) {
	p := newTestProcess("/nonexistent/command/that/does/not/exist")
	if code, err := p.Run(context.Background()); code != 1 || err == nil {
		t.Errorf("Run() = (%d, %v), want start error", code, err)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    []string
		wantErr bool
	}{
		{"plain", "ffmpeg -y -i in.png", []string{"ffmpeg", "-y", "-i", "in.png"}, false},
		{"escaped space", `echo hello\ world`, []string{"echo", "hello world"}, false},
		{"double quotes", `ffmpeg -i "my frames/%06d.png"`, []string{"ffmpeg", "-i", "my frames/%06d.png"}, false},
		{"single quotes", `sh -c 'exit 1'`, []string{"sh", "-c", "exit 1"}, false},
		{"empty quoted", `echo ""`, []string{"echo", ""}, false},
		{"tabs and runs of spaces", "a \t  b", []string{"a", "b"}, false},
		{"escaped quote in quotes", `echo "say \"hi\""`, []string{"echo", `say "hi"`}, false},
		{"trailing backslash", `echo a\`, []string{"echo", `a\`}, false},
		{"unclosed", `echo "oops`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.command)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParseCommand(%q) = %q, want %q", tt.command, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("arg %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestQuoteRoundTrip(t *testing.T) {
	for _, arg := range []string{"plain", "with space", `back\slash`, `say "hi"`, ""} {
		args, err := ParseCommand("cmd " + Quote(arg))
		if err != nil {
			t.Fatalf("ParseCommand failed for %q: %v", arg, err)
		}
		if len(args) != 2 || args[1] != arg {
			t.Errorf("Quote(%q) parsed back as %q", arg, args)
		}
	}
}

func TestOutputLogLevels(t *testing.T) {
	var buf syncBuffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	parse := func(line string) (string, string) {
		level, msg, _ := strings.Cut(line, " ")
		return level, msg
	}

	p := newTestProcess(`sh -c "echo error boom; echo warning careful; echo debug noise >&2"`, WithOutputLogger(logger, parse))
	if code, err := p.Run(context.Background()); code != 0 || err != nil {
		t.Fatalf("Run() = (%d, %v), want (0, nil)", code, err)
	}

	out := buf.String()
	for _, want := range []string{"level=ERROR msg=boom", "level=WARN msg=careful", "level=DEBUG msg=noise", "job=test"} {
		if !strings.Contains(out, want) {
			t.Errorf("output log missing %q:\n%s", want, out)
		}
	}
}

func TestLineHandlerSplitsCarriageReturns(t *testing.T) {
	var mu sync.Mutex
	var lines []string
	record := func(line string) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
	}

	p := newTestProcess(`printf "frame=1\\rframe=2\\rdone\\n"`, WithLineHandler(record))
	if code, _ := p.Run(context.Background()); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"frame=1", "frame=2", "done"}
	if strings.Join(lines, ",") != strings.Join(want, ",") {
		t.Errorf("lines = %q, want %q", lines, want)
	}
}

func TestLineHandlersChain(t *testing.T) {
	var a, b int
	p := newTestProcess("echo x", WithLineHandler(func(string) { a++ }), WithLineHandler(func(string) { b++ }))
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if a != 1 || b != 1 {
		t.Errorf("handlers called %d and %d times, want 1 each", a, b)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
