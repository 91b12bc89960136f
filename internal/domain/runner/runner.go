package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/ControlBridge/internal/shared/id"
)

// ErrSpawnFailed is returned when the tool could not be started.
var ErrSpawnFailed = errors.New("failed to spawn tool")

// eventBuffer lets readers run a little ahead of a slow consumer.
const eventBuffer = 64

// Stream names the output a line came from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
	StreamPTY    Stream = "pty"
)

// EventKind distinguishes output lines from the terminal exit marker.
type EventKind int

const (
	EventLine EventKind = iota
	EventExit
)

func (k EventKind) String() string {
	switch k {
	case EventLine:
		return "line"
	case EventExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Event is one item of a run's output.
type Event struct {
	Kind EventKind

	// Line events
	Stream Stream
	Line   string

	// Exit event. Code is -1 when the process did not exit normally.
	Code int
	Err  error
}

// Spec describes one tool invocation.
type Spec struct {
	Path  string
	Args  []string
	Stdin []byte
	Dir   string
	// Env entries are appended to the bridge's own environment.
	Env []string
	// PTY runs the tool attached to a pseudo-terminal.
	PTY bool
}

// Runner starts tool processes.
type Runner struct {
	logger *zap.Logger
}

// New creates a runner.
func New(logger *zap.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run is a started process and its event stream.
type Run struct {
	ID        id.RunID
	StartedAt time.Time

	pid    int
	events chan Event
	done   chan struct{}

	errMu   sync.Mutex
	readErr error
}

// PID returns the process ID.
func (r *Run) PID() int { return r.pid }

// Events returns the run's event stream. It yields every line, then one
// Exit, then closes. It is not restartable.
func (r *Run) Events() <-chan Event { return r.events }

// Done is closed once the process has exited and its output is fully read,
// whether or not anyone was still listening.
func (r *Run) Done() <-chan struct{} { return r.done }

func (r *Run) setReadErr(err error) {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	if r.readErr == nil {
		r.readErr = err
	}
}

// Start spawns the tool described by spec. ctx bounds event delivery only.
func (rn *Runner) Start(ctx context.Context, spec Spec) (*Run, error) {
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	run := &Run{
		ID:     id.NewRunID(),
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}
	log := rn.logger.With(
		zap.String("run", run.ID.String()),
		zap.String("tool", spec.Path),
		zap.Strings("args", spec.Args),
	)

	var (
		readers []io.Reader
		streams []Stream
		closer  io.Closer
	)

	if spec.PTY {
		ptmx, err := pty.Start(cmd)
		if err != nil {
			log.Warn("Failed to start tool", zap.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
		}
		if _, err := ptmx.Write(ptyInput(spec.Stdin)); err != nil {
			log.Debug("Failed to write tool input", zap.Error(err))
		}
		readers = []io.Reader{ptmx}
		streams = []Stream{StreamPTY}
		closer = ptmx
	} else {
		cmd.Stdin = bytes.NewReader(spec.Stdin)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
		}
		if err := cmd.Start(); err != nil {
			log.Warn("Failed to start tool", zap.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
		}
		readers = []io.Reader{stdout, stderr}
		streams = []Stream{StreamStdout, StreamStderr}
	}

	run.pid = cmd.Process.Pid
	run.StartedAt = time.Now()
	log.Info("Tool started", zap.Int("pid", run.pid))

	var wg sync.WaitGroup
	for i := range readers {
		wg.Add(1)
		go func(r io.Reader, stream Stream) {
			defer wg.Done()
			run.readLines(ctx, r, stream, spec.PTY)
		}(readers[i], streams[i])
	}

	go func() {
		defer close(run.events)

		wg.Wait()
		waitErr := cmd.Wait()
		if closer != nil {
			closer.Close()
		}
		close(run.done)

		exit := Event{Kind: EventExit, Code: cmd.ProcessState.ExitCode()}
		var exitErr *exec.ExitError
		if waitErr != nil && !errors.As(waitErr, &exitErr) {
			exit.Err = waitErr
		}
		run.errMu.Lock()
		if exit.Err == nil && run.readErr != nil {
			exit.Err = fmt.Errorf("reading output: %w", run.readErr)
		}
		run.errMu.Unlock()

		log.Info("Tool exited",
			zap.Int("code", exit.Code),
			zap.Duration("duration", time.Since(run.StartedAt)),
			zap.Error(exit.Err),
		)
		run.deliver(ctx, exit)
	}()

	return run, nil
}

// ptyEOF is the terminal end-of-file character (VEOF, ^D).
const ptyEOF = 0x04

// ptyInput returns stdin followed by an end-of-file on a line of its own, so
// a tool reading its input to the end sees it close. The line discipline only
// treats ^D as EOF at the start of a line.
func ptyInput(stdin []byte) []byte {
	in := make([]byte, 0, len(stdin)+2)
	in = append(in, stdin...)
	if len(in) > 0 && in[len(in)-1] != '\n' {
		in = append(in, '\n')
	}
	return append(in, ptyEOF)
}

// readLines scans r until EOF. After a read error or an oversized line the
// rest of r is discarded so the tool never blocks on a full pipe.
func (r *Run) readLines(ctx context.Context, src io.Reader, stream Stream, tty bool) {
	splitter := &lineSplitter{}
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	scanner.Split(splitter.split)

	for scanner.Scan() {
		r.deliver(ctx, Event{Kind: EventLine, Stream: stream, Line: scanner.Text()})
	}

	err := scanner.Err()
	// A pty master reports EIO once the child side has closed
	if err == nil || (tty && errors.Is(err, syscall.EIO)) {
		return
	}
	r.setReadErr(err)
	io.Copy(io.Discard, src)
}

// deliver sends ev unless ctx is done, in which case ev is dropped.
func (r *Run) deliver(ctx context.Context, ev Event) {
	select {
	case <-ctx.Done():
		return
	default:
	}
	select {
	case r.events <- ev:
	case <-ctx.Done():
	}
}
