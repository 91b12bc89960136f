package confirm

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// syncBuffer is a bytes.Buffer safe for the console goroutine and the test.
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

func (b *syncBuffer) prompts() int {
	return strings.Count(b.String(), "[y/N]")
}

func newTestConsole(t *testing.T, timeout time.Duration) (*Console, *io.PipeWriter, *syncBuffer) {
	t.Helper()
	in, writer := io.Pipe()
	out := &syncBuffer{}
	c := NewConsole(in, out, timeout, zap.NewNop())
	t.Cleanup(func() {
		c.Close()
		writer.Close()
	})
	return c, writer, out
}

// answerPrompt waits for the nth prompt to be shown, then types line.
func answerPrompt(t *testing.T, w io.Writer, out *syncBuffer, n int, line string) {
	t.Helper()
	if !assert.Eventually(t, func() bool { return out.prompts() >= n }, 2*time.Second, 5*time.Millisecond) {
		return
	}
	_, err := io.WriteString(w, line+"\n")
	assert.NoError(t, err)
}

func TestConsoleAnswers(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   bool
	}{
		{"lowercase y approves", "y", true},
		{"uppercase Y approves", "Y", true},
		{"padded approves", "  y  ", true},
		{"yes is not Y", "yes", false},
		{"n denies", "n", false},
		{"empty denies", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w, out := newTestConsole(t, time.Second)

			go answerPrompt(t, w, out, 1, tt.answer)
			ok, err := c.Confirm(context.Background(), Request{Origin: "https://a.test"})

			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.Contains(t, out.String(), "https://a.test")
		})
	}
}

func TestConsoleDiscardsStaleInput(t *testing.T) {
	c, w, out := newTestConsole(t, time.Second)

	// Typed before any prompt exists
	_, err := io.WriteString(w, "y\n")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	go answerPrompt(t, w, out, 1, "n")
	ok, err := c.Confirm(context.Background(), Request{Origin: "https://b.test"})

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConsoleTimeoutDenies(t *testing.T) {
	c, _, out := newTestConsole(t, 30*time.Millisecond)

	ok, err := c.Confirm(context.Background(), Request{Origin: "https://slow.test"})

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, out.String(), "request denied")
}

func TestConsoleContextCancel(t *testing.T) {
	c, _, _ := newTestConsole(t, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	ok, err := c.Confirm(ctx, Request{Origin: "https://gone.test"})
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConsoleClosedInput(t *testing.T) {
	c, w, _ := newTestConsole(t, time.Second)
	require.NoError(t, w.Close())

	require.Eventually(t, func() bool {
		_, err := c.Confirm(context.Background(), Request{Origin: "https://a.test"})
		return err != nil
	}, time.Second, 5*time.Millisecond)

	_, err := c.Confirm(context.Background(), Request{Origin: "https://a.test"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConsoleSerializesPrompts(t *testing.T) {
	c, w, out := newTestConsole(t, 2*time.Second)

	results := make(chan bool, 2)
	for _, origin := range []string{"https://one.test", "https://two.test"} {
		go func(origin string) {
			ok, _ := c.Confirm(context.Background(), Request{Origin: origin})
			results <- ok
		}(origin)
	}

	answerPrompt(t, w, out, 1, "y")
	answerPrompt(t, w, out, 2, "n")

	got := []bool{<-results, <-results}
	assert.ElementsMatch(t, []bool{true, false}, got)
	assert.Equal(t, 2, out.prompts())
}

func TestDisplayOrigin(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://a.test", "https://a.test"},
		{"", "(unknown origin)"},
		{"   ", "(unknown origin)"},
		{"https://evil.test\x1b[2K\rhttps://trusted.test", "https://evil.testhttps://trusted.test"},
		{"https://bell.test\a\n", "https://bell.test"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DisplayOrigin(tt.in))
	}
}

func TestStatic(t *testing.T) {
	ok, err := Static{Approve: true}.Confirm(context.Background(), Request{})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Static{}.Confirm(context.Background(), Request{})
	require.NoError(t, err)
	assert.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Static{Approve: true}.Confirm(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}
