package config

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrConfigInvalid is returned by TryPublish when a candidate configuration
// fails validation. The previously active generation stays in effect.
var ErrConfigInvalid = errors.New("configuration invalid")

// Snapshot is one immutable, validated configuration generation.
// Any goroutine holding a Snapshot may keep using it after a newer one is
// published; a request admitted under generation G completes against G.
type Snapshot struct {
	// Generation is the monotonically increasing version number of this
	// snapshot. Generation 1 is the startup configuration.
	Generation uint64

	// Config is the validated configuration. Must not be mutated.
	Config *Config
}

// Store holds the currently active configuration snapshot behind an
// atomically swapped pointer. Reads never block publishes and publishes
// never block reads.
type Store struct {
	current atomic.Pointer[Snapshot]

	// publishMu serializes publishers so generation numbers increment
	// strictly. Readers never take it.
	publishMu sync.Mutex
	lastGen   uint64

	// subscribers receive the new snapshot after each successful publish.
	subMu       sync.RWMutex
	subscribers []func(*Snapshot)
}

// NewStore creates a Store with cfg as generation 1. The configuration must
// already be validated; NewStore panics on an invalid startup configuration
// since startup errors are handled before the store exists.
func NewStore(cfg *Config) *Store {
	if err := Validate(cfg); err != nil {
		panic(fmt.Sprintf("config: NewStore called with invalid configuration: %v", err))
	}

	s := &Store{lastGen: 1}
	s.current.Store(&Snapshot{Generation: 1, Config: cfg})
	return s
}

// Get returns the currently active snapshot. The call is a single atomic
// load and is safe from any goroutine.
func (s *Store) Get() *Snapshot {
	return s.current.Load()
}

// TryPublish validates candidate and, on success, installs it as the next
// generation and notifies subscribers. On validation failure it returns an
// error wrapping ErrConfigInvalid and leaves the active generation untouched.
// The returned generation is the one assigned to the candidate.
func (s *Store) TryPublish(candidate *Config) (uint64, error) {
	if err := Validate(candidate); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	s.publishMu.Lock()
	s.lastGen++
	snap := &Snapshot{Generation: s.lastGen, Config: candidate}
	s.current.Store(snap)
	s.publishMu.Unlock()

	s.notify(snap)
	return snap.Generation, nil
}

// Subscribe registers fn to be called after every successful publish with the
// new snapshot. Callbacks run on the publisher's goroutine and must not
// block; long work belongs on the subscriber's own goroutine.
func (s *Store) Subscribe(fn func(*Snapshot)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *Store) notify(snap *Snapshot) {
	s.subMu.RLock()
	subs := make([]func(*Snapshot), len(s.subscribers))
	copy(subs, s.subscribers)
	s.subMu.RUnlock()

	for _, fn := range subs {
		fn(snap)
	}
}
