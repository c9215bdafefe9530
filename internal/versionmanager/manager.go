// Package versionmanager discovers, materializes, and announces
// immutable versioned snapshots of the corpus, and persists catalog
// state across restarts.
package versionmanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kamura-io/cartograph/internal/corpus"
)

// Manager owns the version catalog: which VersionKeys are known, what
// names point at them, and a watch channel broadcasting the current key
// set whenever it changes.
type Manager struct {
	provider corpus.Provider
	patcher  corpus.Patcher
	logger   *zap.Logger

	updateInterval time.Duration
	directory      string
	repositories   []string

	mu       sync.RWMutex
	versions map[VersionKey]Version
	names    map[string]VersionKey

	broadcaster *broadcaster
}

// Config configures a Manager.
type Config struct {
	UpdateInterval time.Duration
	Directory      string
	Repositories   []string
}

// New builds a Manager. It does not touch disk or the network until
// Start is called.
func New(cfg Config, provider corpus.Provider, patcher corpus.Patcher, logger *zap.Logger) *Manager {
	return &Manager{
		provider: provider,
		patcher:  patcher,
		logger:   logger,

		updateInterval: cfg.UpdateInterval,
		directory:      cfg.Directory,
		repositories:   cfg.Repositories,

		versions: make(map[VersionKey]Version),
		names:    make(map[string]VersionKey),

		broadcaster: newBroadcaster(),
	}
}

// Subscribe returns a channel that receives the full current key set
// every time it changes. The initial state is delivered immediately if
// one has already been broadcast.
func (m *Manager) Subscribe() <-chan []VersionKey {
	return m.broadcaster.subscribe()
}

// Keys returns every currently known version key.
func (m *Manager) Keys() []VersionKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]VersionKey, 0, len(m.versions))
	for k := range m.versions {
		keys = append(keys, k)
	}
	return keys
}

// Resolve looks up a name, defaulting to "latest" when name is empty.
func (m *Manager) Resolve(name string) (VersionKey, bool) {
	if name == "" {
		name = latestName
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.names[name]
	return key, ok
}

// Names returns every name currently bound to key. ok is false if key is
// not a known version at all (as distinct from being known but unnamed).
func (m *Manager) Names(key VersionKey) (names []string, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, exists := m.versions[key]; !exists {
		return nil, false
	}
	for name, inner := range m.names {
		if inner == key {
			names = append(names, name)
		}
	}
	return names, true
}

// SetNames replaces every name currently bound to key with newNames, and
// persists the updated catalog.
func (m *Manager) SetNames(ctx context.Context, key VersionKey, newNames []string) error {
	m.mu.Lock()
	for name, inner := range m.names {
		if inner == key {
			delete(m.names, name)
		}
	}
	for _, name := range newNames {
		m.names[name] = key
	}
	m.mu.Unlock()

	return m.persistMetadata()
}

// Version returns the full Version for key, if known.
func (m *Manager) Version(key VersionKey) (Version, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.versions[key]
	return v, ok
}

// Start hydrates from disk and then runs the periodic update loop until
// ctx is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.hydrate(); err != nil {
		return fmt.Errorf("hydrate: %w", err)
	}

	ticker := time.NewTicker(m.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// time.Ticker already drops ticks that fire while the
			// previous one is still being delivered, giving the same
			// missed-tick-skip behavior as the reference update loop:
			// at most one pending tick is ever buffered.
			if err := m.update(ctx); err != nil {
				m.logger.Error("update failed", zap.Error(err))
			}
		}
	}
}

// update runs a single, non-overlapping update pass across every
// configured repository.
func (m *Manager) update(ctx context.Context) error {
	m.logger.Info("checking for version updates")

	repos := make([]Repository, len(m.repositories))
	group, gctx := errgroup.WithContext(ctx)
	for i, name := range m.repositories {
		i, name := i, name
		group.Go(func() error {
			repo, err := m.fetchRepository(gctx, name)
			if err != nil {
				return fmt.Errorf("fetch repository %q: %w", name, err)
			}
			repos[i] = repo
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	version := Version{Repositories: repos}
	key := ComputeVersionKey(version)

	m.mu.Lock()
	existing, exists := m.versions[key]
	isNew := !exists
	pathsChanged := exists && !existing.PathsEqual(version)
	if isNew || pathsChanged {
		m.versions[key] = version
	}
	m.mu.Unlock()

	if !isNew && !pathsChanged {
		return nil
	}

	if isNew {
		m.logger.Info("new version", zap.String("key", key.String()))
	} else {
		// Same patch identity, same key, but at least one patch was
		// re-fetched to a new local path: persist the updated path so a
		// later restart hydrates the current location, but do not
		// broadcast, since downstream consumers key off VersionKey and
		// see no change. See the comment in broadcast for the limitation
		// this implies.
		m.logger.Warn("patch path changed without version key change; downstream consumers will not observe until restart", zap.String("key", key.String()))
	}

	m.mu.Lock()
	m.names[latestName] = key
	m.mu.Unlock()

	persistGroup, _ := errgroup.WithContext(ctx)
	persistGroup.Go(func() error { return m.persistVersion(key, version) })
	persistGroup.Go(func() error { return m.persistMetadata() })
	if err := persistGroup.Wait(); err != nil {
		return fmt.Errorf("persist updated catalog: %w", err)
	}

	if isNew {
		m.broadcast()
	}
	return nil
}

func (m *Manager) fetchRepository(ctx context.Context, name string) (Repository, error) {
	patchList, err := m.provider.PatchList(ctx, name)
	if err != nil {
		return Repository{}, fmt.Errorf("fetch patch list: %w", err)
	}

	patches := make([]corpus.LocalPatch, len(patchList))
	group, gctx := errgroup.WithContext(ctx)
	for i, patch := range patchList {
		i, patch := i, patch
		group.Go(func() error {
			local, err := m.patcher.ToLocalPatch(gctx, name, patch)
			if err != nil {
				return err
			}
			patches[i] = local
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Repository{}, err
	}

	return NewRepository(name, patches)
}

func (m *Manager) hydrate() error {
	var metadata persistedMetadata
	found, err := readZstdJSON(m.metadataPath(), &metadata)
	if err != nil {
		return fmt.Errorf("read catalog metadata: %w", err)
	}
	if !found {
		return nil
	}

	versions := make(map[VersionKey]Version, len(metadata.Versions))
	for _, key := range metadata.Versions {
		var pv persistedVersion
		found, err := readZstdJSON(m.versionPath(key), &pv)
		if err != nil {
			m.logger.Warn("could not hydrate version", zap.String("key", key.String()), zap.Error(err))
			continue
		}
		if !found {
			m.logger.Warn("version has no persisted configuration", zap.String("key", key.String()))
			continue
		}
		versions[key] = fromPersistedVersion(pv)
		m.logger.Debug("hydrated version", zap.String("key", key.String()))
	}

	m.mu.Lock()
	m.versions = versions
	names := make(map[string]VersionKey, len(metadata.Names))
	for name, key := range metadata.Names {
		if _, ok := versions[key]; !ok {
			m.logger.Warn("unknown key for name", zap.String("name", name), zap.String("key", key.String()))
			continue
		}
		names[name] = key
		m.logger.Debug("named version", zap.String("name", name), zap.String("key", key.String()))
	}
	m.names = names
	m.mu.Unlock()

	m.broadcast()
	return nil
}

func (m *Manager) persistMetadata() error {
	m.mu.RLock()
	metadata := persistedMetadata{
		Versions: make([]VersionKey, 0, len(m.versions)),
		Names:    make(map[string]VersionKey, len(m.names)),
	}
	for k := range m.versions {
		metadata.Versions = append(metadata.Versions, k)
	}
	for n, k := range m.names {
		metadata.Names[n] = k
	}
	m.mu.RUnlock()

	return writeZstdJSON(m.metadataPath(), metadata)
}

func (m *Manager) persistVersion(key VersionKey, version Version) error {
	return writeZstdJSON(m.versionPath(key), toPersistedVersion(version))
}

func (m *Manager) broadcast() {
	m.mu.RLock()
	keys := make([]VersionKey, 0, len(m.versions))
	for k := range m.versions {
		keys = append(keys, k)
	}
	m.mu.RUnlock()

	// Patch-path-only changes to an existing key are not re-broadcast
	// here, matching the reference implementation's acknowledged
	// limitation (spec Open Questions): downstream consumers will not
	// observe the updated patch path until restart.
	m.broadcaster.sendIfModified(keys)
}
