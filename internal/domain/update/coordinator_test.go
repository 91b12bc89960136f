package update

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	dir    string
	target string
	store  *RecordStore
}

func newFixture(t *testing.T) *fixture {
	dir := t.TempDir()
	f := &fixture{
		dir:    dir,
		target: filepath.Join(dir, "tool.exe"),
		store:  NewRecordStore(filepath.Join(dir, "release.json")),
	}
	require.NoError(t, os.WriteFile(f.target, []byte("old"), 0o755))
	return f
}

func (f *fixture) coordinator(t *testing.T, feed Feed, opts ...Option) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(feed, NewDownloader(time.Minute, zap.NewNop()), f.store, f.target, zap.NewNop(), opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func waitFor(t *testing.T, c *Coordinator, want State) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return c.State().State == want }, 10*time.Second, 5*time.Millisecond)
	return c.State()
}

type staticFeed struct {
	rel Release
	err error
}

func (f staticFeed) Latest(context.Context) (Release, error) { return f.rel, f.err }

type feedFunc func(ctx context.Context) (Release, error)

func (f feedFunc) Latest(ctx context.Context) (Release, error) { return f(ctx) }

// gatedFeed blocks until release is closed.
type gatedFeed struct {
	rel     Release
	release chan struct{}
}

func (f gatedFeed) Latest(ctx context.Context) (Release, error) {
	select {
	case <-f.release:
		return f.rel, nil
	case <-ctx.Done():
		return Release{}, ctx.Err()
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	states   []string
	attempts []string
}

func (o *recordingObserver) SetUpdateState(state string, _ []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

func (o *recordingObserver) SetUpdateDownloaded(int64) {}

func (o *recordingObserver) RecordUpdateAttempt(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = append(o.attempts, outcome)
}

func TestCoordinatorInstallsNewerRelease(t *testing.T) {
	f := newFixture(t)
	srv := assetServer(t, []byte("new-binary"))
	published := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	obs := &recordingObserver{}
	c := f.coordinator(t, staticFeed{rel: Release{Version: "v2.0.0", PublishedAt: published, URL: srv.URL}}, WithObserver(obs))
	assert.Equal(t, StateNoUpdate, c.State().State)
	assert.Equal(t, EpochVersion, c.Record().Version)

	require.NoError(t, c.Start())
	snap := waitFor(t, c, StateDone)

	assert.Equal(t, "v2.0.0", snap.Version)
	assert.Equal(t, int64(len("new-binary")), snap.Downloaded)
	assert.Empty(t, snap.Err)

	rec, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, "v2.0.0", rec.Version)
	assert.True(t, published.Equal(rec.UpdateAt))
	assert.NotEmpty(t, rec.Digest)

	got, err := os.ReadFile(f.target)
	require.NoError(t, err)
	assert.Equal(t, "new-binary", string(got))

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []string{"no-update", "prechecking", "downloading", "done"}, obs.states)
	assert.Equal(t, []string{"installed"}, obs.attempts)
}

func TestCoordinatorSkipsReleaseNotNewer(t *testing.T) {
	f := newFixture(t)
	installedAt := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.Save(Record{Version: "v2.0.0", UpdateAt: installedAt}))

	c := f.coordinator(t, staticFeed{rel: Release{Version: "v2.0.0", PublishedAt: installedAt, URL: "http://unused.test"}})

	require.NoError(t, c.Start())
	snap := waitFor(t, c, StateNoUpdate)
	assert.Empty(t, snap.Err)
	assert.Equal(t, "v2.0.0", c.Record().Version)
}

func TestCoordinatorRejectsConcurrentStart(t *testing.T) {
	t.Run("while prechecking", func(t *testing.T) {
		f := newFixture(t)
		feed := gatedFeed{release: make(chan struct{})}
		c := f.coordinator(t, feed)

		require.NoError(t, c.Start())
		assert.Equal(t, StatePrechecking, c.State().State)
		assert.ErrorIs(t, c.Start(), ErrConflict)

		close(feed.release)
		waitFor(t, c, StateNoUpdate)
	})

	t.Run("while downloading", func(t *testing.T) {
		f := newFixture(t)

		var hits int
		var hitsMu sync.Mutex
		unblock := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hitsMu.Lock()
			hits++
			hitsMu.Unlock()
			w.Header().Set("Content-Length", strconv.Itoa(8))
			fmt.Fprint(w, "half")
			w.(http.Flusher).Flush()
			<-unblock
			fmt.Fprint(w, "done")
		}))
		defer srv.Close()
		defer close(unblock)

		c := f.coordinator(t, staticFeed{rel: Release{Version: "v3", PublishedAt: time.Now(), URL: srv.URL}})

		require.NoError(t, c.Start())
		require.Eventually(t, func() bool {
			s := c.State()
			return s.State == StateDownloading && s.Downloaded == 4
		}, 10*time.Second, 5*time.Millisecond)

		assert.ErrorIs(t, c.Start(), ErrConflict)
		snap := c.State()
		assert.Equal(t, int64(8), snap.Total)
		assert.Equal(t, "v3", snap.Version)

		unblock <- struct{}{}
		waitFor(t, c, StateDone)

		hitsMu.Lock()
		defer hitsMu.Unlock()
		assert.Equal(t, 1, hits, "only one download started")
	})
}

func TestCoordinatorFailedDownloadKeepsRecord(t *testing.T) {
	f := newFixture(t)
	before, err := f.store.Load()
	require.NoError(t, err)

	srv := truncatingServer(t, 4096)
	obs := &recordingObserver{}
	c := f.coordinator(t, staticFeed{rel: Release{Version: "v9", PublishedAt: time.Now(), URL: srv.URL}}, WithObserver(obs))

	require.NoError(t, c.Start())
	require.Eventually(t, func() bool {
		s := c.State()
		return s.State == StateNoUpdate && s.Err != ""
	}, 10*time.Second, 5*time.Millisecond)

	after, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	assert.True(t, before.UpdateAt.Equal(after.UpdateAt))

	got, err := os.ReadFile(f.target)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))

	obs.mu.Lock()
	assert.Equal(t, []string{"failed"}, obs.attempts)
	obs.mu.Unlock()

	// A failed cycle never wedges the coordinator
	require.NoError(t, c.Start())
}

func TestCoordinatorFeedFailure(t *testing.T) {
	f := newFixture(t)
	var calls int
	feed := feedFunc(func(ctx context.Context) (Release, error) {
		calls++
		if calls == 1 {
			return Release{}, errors.New("feed unreachable")
		}
		<-ctx.Done()
		return Release{}, ctx.Err()
	})
	c := f.coordinator(t, feed)

	require.NoError(t, c.Start())
	require.Eventually(t, func() bool {
		return c.State().Err == "feed unreachable"
	}, 10*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateNoUpdate, c.State().State)

	// The next start clears the remembered error
	require.NoError(t, c.Start())
	assert.Empty(t, c.State().Err)
}

func TestCoordinatorCloseAbortsCycle(t *testing.T) {
	f := newFixture(t)
	c, err := NewCoordinator(gatedFeed{release: make(chan struct{})}, NewDownloader(time.Minute, zap.NewNop()), f.store, f.target, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, c.Start())
	c.Close()
	assert.Equal(t, StateNoUpdate, c.State().State)
}
