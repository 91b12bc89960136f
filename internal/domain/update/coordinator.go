package update

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrConflict is returned by Start while a cycle is already running.
var ErrConflict = errors.New("update already in progress")

// State is the coordinator's position in the update cycle.
type State string

const (
	StateNoUpdate    State = "no-update"
	StatePrechecking State = "prechecking"
	StateDownloading State = "downloading"
	StateDone        State = "done"
)

// States lists every state, for metrics.
var States = []string{
	string(StateNoUpdate),
	string(StatePrechecking),
	string(StateDownloading),
	string(StateDone),
}

// Busy reports whether s blocks a new cycle.
func (s State) Busy() bool {
	return s == StatePrechecking || s == StateDownloading
}

// Snapshot is a consistent copy of the coordinator state.
type Snapshot struct {
	State      State
	Downloaded int64
	Total      int64
	// Version is the release being installed, or the installed one when done.
	Version string
	// Err describes the last failed cycle; cleared by the next Start.
	Err string
}

// Observer receives state and progress changes.
type Observer interface {
	SetUpdateState(state string, known []string)
	SetUpdateDownloaded(n int64)
	RecordUpdateAttempt(outcome string)
}

type nopObserver struct{}

func (nopObserver) SetUpdateState(string, []string) {}
func (nopObserver) SetUpdateDownloaded(int64)       {}
func (nopObserver) RecordUpdateAttempt(string)      {}

// Coordinator owns the process-wide update state.
type Coordinator struct {
	feed     Feed
	fetcher  Fetcher
	store    *RecordStore
	target   string
	observer Observer
	logger   *zap.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu         sync.Mutex
	state      State
	downloaded int64
	total      int64
	version    string
	lastErr    error
	record     Record
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithObserver reports transitions to o.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) { c.observer = o }
}

// NewCoordinator loads the release record, creating the epoch record when
// absent, and returns an idle coordinator installing to target.
func NewCoordinator(feed Feed, fetcher Fetcher, store *RecordStore, target string, logger *zap.Logger, opts ...Option) (*Coordinator, error) {
	rec, err := store.Load()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		feed:     feed,
		fetcher:  fetcher,
		store:    store,
		target:   target,
		observer: nopObserver{},
		logger:   logger,
		baseCtx:  ctx,
		cancel:   cancel,
		state:    StateNoUpdate,
		record:   rec,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.observer.SetUpdateState(string(StateNoUpdate), States)
	return c, nil
}

// State returns a snapshot without waiting on any in-flight work.
func (c *Coordinator) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:      c.state,
		Downloaded: c.downloaded,
		Total:      c.total,
		Version:    c.version,
	}
	if c.lastErr != nil {
		snap.Err = c.lastErr.Error()
	}
	return snap
}

// Record returns the installed release record.
func (c *Coordinator) Record() Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record
}

// Start begins a cycle in the background. It returns ErrConflict while a
// cycle is running.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	if c.state.Busy() {
		c.mu.Unlock()
		return ErrConflict
	}
	c.state = StatePrechecking
	c.downloaded, c.total = 0, 0
	c.version = ""
	c.lastErr = nil
	c.wg.Add(1)
	c.mu.Unlock()

	c.observer.SetUpdateState(string(StatePrechecking), States)
	c.observer.SetUpdateDownloaded(0)
	c.logger.Info("Update check started")

	go func() {
		defer c.wg.Done()
		c.run(c.baseCtx)
	}()
	return nil
}

// Close aborts an in-flight cycle and waits for it to finish.
func (c *Coordinator) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) run(ctx context.Context) {
	started := time.Now()

	rel, err := c.feed.Latest(ctx)
	if err != nil {
		c.fail("check", err)
		return
	}

	installed := c.Record()
	log := c.logger.With(
		zap.String("installed", installed.Version),
		zap.String("latest", rel.Version),
	)
	if !rel.PublishedAt.After(installed.UpdateAt) {
		log.Info("Installed release is current")
		c.transition(StateNoUpdate, "")
		c.observer.RecordUpdateAttempt("current")
		return
	}

	log.Info("Newer release found, downloading", zap.String("url", rel.URL))
	c.mu.Lock()
	c.state = StateDownloading
	c.version = rel.Version
	c.total = rel.Size
	c.mu.Unlock()
	c.observer.SetUpdateState(string(StateDownloading), States)

	digest, err := c.fetcher.Fetch(ctx, rel, c.target, c.progress)
	if err != nil {
		c.fail("download", err)
		return
	}

	rec := Record{
		Version:  rel.Version,
		UpdateAt: rel.PublishedAt,
		URL:      rel.URL,
		Digest:   digest,
	}
	if err := c.store.Save(rec); err != nil {
		c.fail("record", err)
		return
	}

	c.mu.Lock()
	c.record = rec
	c.mu.Unlock()
	c.transition(StateDone, rel.Version)
	c.observer.RecordUpdateAttempt("installed")
	log.Info("Update complete", zap.Duration("duration", time.Since(started)))
}

func (c *Coordinator) progress(downloaded, total int64) {
	c.mu.Lock()
	c.downloaded = downloaded
	c.total = total
	c.mu.Unlock()
	c.observer.SetUpdateDownloaded(downloaded)
}

func (c *Coordinator) transition(to State, version string) {
	c.mu.Lock()
	c.state = to
	c.version = version
	c.mu.Unlock()
	c.observer.SetUpdateState(string(to), States)
}

func (c *Coordinator) fail(stage string, err error) {
	c.logger.Warn("Update failed", zap.String("stage", stage), zap.Error(err))

	c.mu.Lock()
	c.state = StateNoUpdate
	c.version = ""
	c.lastErr = err
	c.mu.Unlock()

	c.observer.SetUpdateState(string(StateNoUpdate), States)
	c.observer.RecordUpdateAttempt("failed")
}
