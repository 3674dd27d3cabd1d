package swap

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/hotswap/bundle"
	"github.com/wippyai/hotswap/loader"
)

// bundlePrefix names uploaded bundles in the storage backend.
const bundlePrefix = "library-"

// Storage persists uploaded bundle bytes. The returned location must be
// immediately resolvable by the loader.
type Storage interface {
	StoreToTemp(data []byte, prefix string) (string, error)
}

// VersionExtractor derives a human-readable version tag from a bundle
// location. Failures are recovered by the store, never propagated.
type VersionExtractor func(location string) (string, error)

// Config configures a Store. Storage and Factory are required.
type Config struct {
	Storage Storage
	Factory *loader.Factory

	// ExtractVersion overrides the default bundle manifest reader.
	ExtractVersion VersionExtractor

	// Retire, when set, is called with a previously active location once
	// no execution can still be using it. Typical value is the storage
	// backend's Remove.
	Retire func(location string)
}

// Store holds the process-wide active bundle: its location, the version
// derived from it, and the content lock guarding its lifetime.
//
// Two independent lock domains coordinate replacement:
//
//   - mu, the location lock, guards the (location, version, current
//     content lock) tuple. Its critical sections are short.
//   - content, the content lock, belongs to the active bundle instance,
//     not to the store. Executions hold its read side for their whole
//     duration; a replace that finds it read-held installs a fresh
//     instance instead of waiting, leaving the old one to drain.
//
// Lock order is always mu before content. Replace only ever try-locks
// the content write side, so it cannot stall behind a slow execution.
type Store struct {
	mu       sync.RWMutex
	location string
	version  string
	content  *sync.RWMutex

	storage Storage
	factory *loader.Factory
	extract VersionExtractor
	retire  func(location string)
}

// NewStore creates a store with no active bundle. Executions fail with
// a resolution error until Replace or SetLocation establishes one.
func NewStore(cfg Config) *Store {
	extract := cfg.ExtractVersion
	if extract == nil {
		extract = bundle.ExtractVersion
	}
	return &Store{
		content: new(sync.RWMutex),
		storage: cfg.Storage,
		factory: cfg.Factory,
		extract: extract,
		retire:  cfg.Retire,
	}
}

// Replace persists data as a new bundle and makes it the active one.
//
// The write lock on the active bundle's content is only try-acquired.
// When an execution is still reading under it, the store adopts the new
// bundle immediately for future executions, installs a fresh content
// lock, and abandons the old instance to the in-flight readers; a
// drainer goroutine retires the old location once the last of them
// releases. Replace therefore returns in bounded time regardless of how
// long in-flight executions run.
func (s *Store) Replace(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	location, err := s.storage.StoreToTemp(data, bundlePrefix)
	if err != nil {
		return err
	}

	prev := s.location
	if s.content.TryLock() {
		// No execution holds the current bundle: it swaps in place and
		// the content lock instance stays current.
		s.setLocationLocked(location)
		s.content.Unlock()
		s.retireNow(prev)
	} else {
		old := s.content
		s.setLocationLocked(location)
		s.content = new(sync.RWMutex)
		s.retireDrained(old, prev)
	}

	Logger().Info("bundle replaced",
		zap.String("location", location),
		zap.String("version", s.version))
	return nil
}

// SetLocation points the store at an existing bundle, typically a
// deployment default. The previous location is not retired; only
// Replace hands locations to the retire pipeline.
func (s *Store) SetLocation(location string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocationLocked(location)
}

// setLocationLocked updates location and re-derives version. Callers
// hold mu's write side.
func (s *Store) setLocationLocked(location string) {
	s.location = location
	v, err := s.extract(location)
	if err != nil {
		Logger().Warn("could not read bundle version",
			zap.String("location", location),
			zap.Error(err))
		s.version = ""
		return
	}
	s.version = v
}

// Version returns the active bundle's version, or "" when no bundle is
// active or its version could not be derived.
func (s *Store) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Location returns the active bundle's location, or "".
func (s *Store) Location() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.location
}

// Info returns the active location and version as one consistent pair:
// both fields come from the same location-lock critical section.
func (s *Store) Info() (location, version string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.location, s.version
}

// WithCurrent resolves the active bundle and runs fn against its
// handle, holding the bundle's content read lock for fn's entire
// duration. The location lock is dropped as soon as the handle is
// resolved, so a concurrent Replace can proceed while fn runs; fn keeps
// the bundle it started with either way.
func (s *Store) WithCurrent(ctx context.Context, fn func(ctx context.Context, h loader.Handle) (any, error)) (any, error) {
	s.mu.RLock()
	// The snapshot must happen under mu's read side: it is what ties
	// the content lock instance to the location resolved below.
	content := s.content
	content.RLock()

	h, err := s.factory.Resolve(s.location)
	if err != nil {
		content.RUnlock()
		s.mu.RUnlock()
		return nil, err
	}
	s.mu.RUnlock()

	defer content.RUnlock()
	return fn(ctx, h)
}

func (s *Store) retireNow(location string) {
	if s.retire == nil || location == "" {
		return
	}
	go s.retire(location)
}

// retireDrained retires location once the abandoned content lock old
// has no readers left. The goroutine's write acquisition is the drain
// barrier; nothing else ever touches the abandoned instance again.
func (s *Store) retireDrained(old *sync.RWMutex, location string) {
	if s.retire == nil || location == "" {
		return
	}
	go func() {
		old.Lock()
		old.Unlock()
		s.retire(location)
	}()
}
