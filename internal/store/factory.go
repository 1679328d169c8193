package store

import (
	"fmt"
	"sync"

	"adl/internal/logging"
)

// Options carries everything the factory needs to construct a backend.
type Options struct {
	// Backend is one of BackendMemory, BackendFile, BackendSQLite.
	Backend string

	// FileRoot is the base directory of the file backend's tree.
	FileRoot string

	// DBPath is the sqlite database file location.
	DBPath string

	Logger *logging.Logger
}

// NewStore constructs a backend from options. An unrecognized backend
// selector is a hard error at construction time, never a silent fallback.
// The caller owns Initialize and Close.
func NewStore(opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		return NewFileStore(opts.FileRoot, opts.Logger), nil
	case BackendSQLite:
		return NewSQLiteStore(opts.DBPath, opts.Logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q (expected memory, file, or sqlite)", opts.Backend)
	}
}

// The process-wide singleton. Construction happens once per process;
// whatever owns process startup is responsible for calling Initialize on
// the returned store and then MarkInitialized.
var (
	defaultMu          sync.Mutex
	defaultStore       Store
	defaultInitialized bool
	defaultLogger      = logging.NewNopLogger()
)

// Configure resolves and constructs the singleton on first call; later
// calls return the existing instance regardless of options.
func Configure(opts Options) (Store, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultStore != nil {
		return defaultStore, nil
	}
	s, err := NewStore(opts)
	if err != nil {
		return nil, err
	}
	defaultStore = s
	if opts.Logger != nil {
		defaultLogger = opts.Logger
	}
	return s, nil
}

// Default returns the singleton. Fetching it before MarkInitialized logs a
// warning rather than failing, so early callers degrade instead of crash.
func Default() Store {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if !defaultInitialized {
		defaultLogger.Warn("store fetched before initialization", nil)
	}
	return defaultStore
}

// MarkInitialized records that the singleton's Initialize has completed.
func MarkInitialized() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultInitialized = true
}

// Override substitutes the singleton, for tests.
func Override(s Store) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultStore = s
	defaultInitialized = s != nil
}

// Reset returns the factory to its uninitialized state, for tests.
func Reset() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultStore = nil
	defaultInitialized = false
}
