package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/UltimateTournament/backoff/v4"
	"github.com/danthegoodman1/tablesweep/gologger"
	"github.com/danthegoodman1/tablesweep/snapshot"
	"github.com/danthegoodman1/tablesweep/workspace"
	"github.com/rs/zerolog"
)

const (
	// LocalCacheKey is the slot holding the last snapshot in the local cache.
	LocalCacheKey = "tablesweep_last_snapshot"
	// RemoteKey is the namespaced slot in the host key-value bridge.
	RemoteKey = "tablesweep:snapshot:last"

	DefaultSyncTimeout = 5 * time.Second
)

var (
	logger = gologger.ComponentLogger("store")
)

// StoreSyncError is a failure of the remote tier. It is logged and never
// fatal, the local cache stays authoritative.
type StoreSyncError struct {
	Op  string
	Err error
}

func (e *StoreSyncError) Error() string {
	return fmt.Sprintf("snapshot store sync failed during %s: %s", e.Op, e.Err)
}

func (e *StoreSyncError) Unwrap() error {
	return e.Err
}

type (
	// Store is the single-slot snapshot repository: reads prefer the remote
	// bridge and fall back to the local cache, writes go to both and tolerate
	// remote failure.
	Store struct {
		local       LocalCache
		remote      workspace.KVBridge
		watcher     workspace.ValueWatcher
		caps        workspace.Capabilities
		syncTimeout time.Duration

		mu          sync.RWMutex
		current     *snapshot.Snapshot
		listeners   []func(*snapshot.Snapshot)
		lastSyncErr error
	}

	Option func(*Store)
)

func WithSyncTimeout(d time.Duration) Option {
	return func(s *Store) { s.syncTimeout = d }
}

// New builds a store over a local cache and whatever bridge the gateway
// offers. Bridge capabilities are detected once here.
func New(local LocalCache, gw workspace.Gateway, opts ...Option) *Store {
	s := &Store{
		local:       local,
		caps:        workspace.DetectCapabilities(gw),
		syncTimeout: DefaultSyncTimeout,
	}
	if s.caps.KV {
		s.remote = gw.(workspace.KVBridge)
	}
	if s.caps.Push {
		s.watcher = gw.(workspace.ValueWatcher)
	}
	for _, opt := range opts {
		opt(s)
	}
	logger.Debug().Bool("kv", s.caps.KV).Bool("push", s.caps.Push).Msg("snapshot store ready")
	return s
}

func (s *Store) Capabilities() workspace.Capabilities {
	return s.caps
}

// Current returns the snapshot held in memory, without any I/O.
func (s *Store) Current() *snapshot.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// LastSyncError returns the most recent remote tier failure, nil once a
// remote write succeeds again.
func (s *Store) LastSyncError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSyncErr
}

// OnChange registers fn for snapshots pushed by the remote bridge that differ
// from the held one.
func (s *Store) OnChange(fn func(*snapshot.Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Load returns the latest snapshot, or nil when none was ever saved. Remote
// failures fall back to the local cache silently.
func (s *Store) Load(ctx context.Context) (*snapshot.Snapshot, error) {
	logger := zerolog.Ctx(ctx)

	if s.caps.KV {
		snap, err := s.loadRemote(ctx)
		if err != nil {
			logger.Warn().Err(&StoreSyncError{Op: "load", Err: err}).Msg("remote snapshot unavailable, using local cache")
		} else if snap != nil {
			s.setCurrent(snap)
			if b, err := snapshot.Marshal(snap); err == nil {
				if err := s.local.Set(ctx, LocalCacheKey, b); err != nil {
					logger.Warn().Err(err).Msg("could not refresh local cache from remote")
				}
			}
			return snap, nil
		}
	}

	b, ok, err := s.local.Get(ctx, LocalCacheKey)
	if err != nil {
		return nil, fmt.Errorf("error in local.Get: %w", err)
	}
	if !ok {
		return nil, nil
	}
	snap, err := snapshot.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("error decoding cached snapshot: %w", err)
	}
	s.setCurrent(snap)
	return snap, nil
}

func (s *Store) loadRemote(ctx context.Context) (*snapshot.Snapshot, error) {
	b, ok, err := s.remote.GetValue(ctx, RemoteKey)
	if err != nil {
		return nil, fmt.Errorf("error in GetValue: %w", err)
	}
	if !ok || len(b) == 0 {
		return nil, nil
	}
	snap, err := snapshot.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("error decoding remote snapshot: %w", err)
	}
	return snap, nil
}

// Save replaces the stored snapshot. A nil snapshot clears both tiers. Only a
// local cache failure is returned.
func (s *Store) Save(ctx context.Context, snap *snapshot.Snapshot) error {
	var b []byte
	if snap == nil {
		if err := s.local.Delete(ctx, LocalCacheKey); err != nil {
			return fmt.Errorf("error in local.Delete: %w", err)
		}
	} else {
		var err error
		b, err = snapshot.Marshal(snap)
		if err != nil {
			return err
		}
		if err := s.local.Set(ctx, LocalCacheKey, b); err != nil {
			return fmt.Errorf("error in local.Set: %w", err)
		}
	}
	// held state changes before mirroring so our own push echo is a no-op
	s.setCurrent(snap)

	if s.caps.KV {
		s.mirror(ctx, b)
	}
	return nil
}

func (s *Store) mirror(ctx context.Context, b []byte) {
	logger := zerolog.Ctx(ctx)
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = s.syncTimeout

	err := backoff.Retry(func() error {
		err := s.remote.SetValue(ctx, RemoteKey, b)
		if isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))

	var syncErr error
	if err != nil {
		syncErr = &StoreSyncError{Op: "save", Err: err}
		logger.Warn().Err(syncErr).Msg("could not mirror snapshot to remote store")
	}
	s.mu.Lock()
	s.lastSyncErr = syncErr
	s.mu.Unlock()
}

// Watch subscribes to remote pushes when the bridge supports them. The
// returned stop func is always safe to call.
func (s *Store) Watch(ctx context.Context) (stop func(), err error) {
	if !s.caps.Push {
		return func() {}, nil
	}
	unsub, err := s.watcher.OnValueChange(ctx, RemoteKey, func(value []byte) {
		s.handleRemote(ctx, value)
	})
	if err != nil {
		return func() {}, &StoreSyncError{Op: "watch", Err: err}
	}
	return unsub, nil
}

func (s *Store) handleRemote(ctx context.Context, value []byte) {
	logger := zerolog.Ctx(ctx)

	var incoming *snapshot.Snapshot
	if len(value) > 0 {
		var err error
		incoming, err = snapshot.Unmarshal(value)
		if err != nil {
			logger.Warn().Err(err).Msg("ignoring undecodable remote snapshot")
			return
		}
	}

	s.mu.Lock()
	if s.current.Equal(incoming) {
		s.mu.Unlock()
		return
	}
	s.current = incoming
	listeners := append([]func(*snapshot.Snapshot){}, s.listeners...)
	s.mu.Unlock()

	var err error
	if incoming == nil {
		err = s.local.Delete(ctx, LocalCacheKey)
	} else {
		err = s.local.Set(ctx, LocalCacheKey, value)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("could not write pushed snapshot to local cache")
	}

	logger.Debug().Msg("applied remote snapshot change")
	for _, fn := range listeners {
		fn(incoming)
	}
}

func (s *Store) setCurrent(snap *snapshot.Snapshot) {
	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()
}

func (s *Store) Shutdown(ctx context.Context) error {
	return s.local.Shutdown(ctx)
}

func isPermanent(err error) bool {
	var perm interface{ IsPermanent() bool }
	return errors.As(err, &perm) && perm.IsPermanent()
}
