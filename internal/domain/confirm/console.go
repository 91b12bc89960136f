package confirm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// pendingLines bounds how many unsolicited input lines are kept between prompts.
const pendingLines = 16

type answer struct {
	ok  bool
	err error
}

type prompt struct {
	ctx   context.Context
	req   Request
	reply chan answer
}

// Console prompts on a terminal. One goroutine owns the input; prompts are
// queued and asked one at a time, so a user answering one origin never
// answers for another.
type Console struct {
	out     io.Writer
	timeout time.Duration
	logger  *zap.Logger

	origin lipgloss.Style
	muted  lipgloss.Style

	requests chan prompt
	lines    chan string
	eof      chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// Available reports whether f is an interactive terminal a user can answer on.
func Available(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// NewConsole starts a console confirmer reading answers from in and writing
// prompts to out. A zero timeout waits forever.
func NewConsole(in io.Reader, out io.Writer, timeout time.Duration, logger *zap.Logger) *Console {
	renderer := lipgloss.NewRenderer(out)
	c := &Console{
		out:      out,
		timeout:  timeout,
		logger:   logger,
		origin:   renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
		muted:    renderer.NewStyle().Faint(true),
		requests: make(chan prompt),
		lines:    make(chan string, pendingLines),
		eof:      make(chan struct{}),
		stop:     make(chan struct{}),
	}
	go c.readLines(in)
	go c.serve()
	return c
}

// Confirm queues a prompt and waits for the user's answer. Only "Y"
// (case-insensitive, surrounding space ignored) approves.
func (c *Console) Confirm(ctx context.Context, req Request) (bool, error) {
	p := prompt{ctx: ctx, req: req, reply: make(chan answer, 1)}

	select {
	case c.requests <- p:
	case <-ctx.Done():
		return false, ctx.Err()
	case <-c.eof:
		return false, ErrClosed
	case <-c.stop:
		return false, ErrClosed
	}

	select {
	case a := <-p.reply:
		return a.ok, a.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Close stops serving prompts. Pending and future requests fail with ErrClosed.
func (c *Console) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

func (c *Console) readLines(in io.Reader) {
	defer close(c.eof)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case c.lines <- scanner.Text():
		default:
			c.logger.Debug("Dropping unsolicited console input")
		}
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warn("Console input failed", zap.Error(err))
	}
}

func (c *Console) serve() {
	for {
		select {
		case p := <-c.requests:
			p.reply <- c.ask(p)
		case <-c.stop:
			return
		}
	}
}

func (c *Console) ask(p prompt) answer {
	// Lines typed before this prompt was shown do not answer it
	for drained := false; !drained; {
		select {
		case <-c.lines:
		default:
			drained = true
		}
	}

	fmt.Fprintf(c.out, "Request from %s\nAre you sure you want to generate a new token? [y/N] ",
		c.origin.Render(DisplayOrigin(p.req.Origin)))

	var timeout <-chan time.Time
	if c.timeout > 0 {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case line := <-c.lines:
		return answer{ok: strings.ToUpper(strings.TrimSpace(line)) == "Y"}
	case <-timeout:
		fmt.Fprintln(c.out, c.muted.Render("\n(no answer, request denied)"))
		return answer{ok: false}
	case <-p.ctx.Done():
		fmt.Fprintln(c.out, c.muted.Render("\n(request withdrawn)"))
		return answer{err: p.ctx.Err()}
	case <-c.eof:
		select {
		case line := <-c.lines:
			return answer{ok: strings.ToUpper(strings.TrimSpace(line)) == "Y"}
		default:
			return answer{err: ErrClosed}
		}
	case <-c.stop:
		return answer{err: ErrClosed}
	}
}
