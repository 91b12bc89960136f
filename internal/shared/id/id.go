// Package id provides prefixed ULID generation for bridge-internal identifiers.
//
// Identifiers are used for logging and correlation only; capability tokens are
// minted separately by the token authority and never derive from these values.
//
//   - Sortable: ULIDs order by creation time, which keeps log scans readable
//   - Prefixed: sess_*, run_*, req_* make the owning object obvious in logs
//   - Typed: separate string types prevent mixing a run ID with a session ID
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionID identifies one upgraded multiplexed channel
type SessionID string

// RunID identifies one external tool invocation
type RunID string

// RequestID identifies a plain or tunnelled gateway request
type RequestID string

const (
	SessionPrefix = "sess"
	RunPrefix     = "run"
	RequestPrefix = "req"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Deterministic readers make test fixtures reproducible.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a "prefix_ULID" string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewSessionID generates a new session ID
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewRunID generates a new tool run ID
func NewRunID() RunID {
	return RunID(Default().GenerateWithPrefix(RunPrefix))
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

func (id SessionID) String() string { return string(id) }
func (id RunID) String() string     { return string(id) }
func (id RequestID) String() string { return string(id) }

// IsValid reports whether s is a bare ULID
func IsValid(s string) bool {
	_, err := ulid.Parse(s)
	return err == nil
}

// Split separates a prefixed ID into its prefix and ULID part
func Split(prefixed string) (prefix string, raw string, ok bool) {
	prefix, raw, ok = strings.Cut(prefixed, "_")
	if !ok || !IsValid(raw) {
		return "", "", false
	}
	return prefix, raw, true
}

// Timestamp extracts the creation time from a bare or prefixed ID
func Timestamp(s string) (time.Time, error) {
	if _, raw, ok := Split(s); ok {
		s = raw
	}
	parsed, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
