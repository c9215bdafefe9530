package versionmanager

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kamura-io/cartograph/internal/corpus"
)

type fakeProvider struct {
	patches map[string][]corpus.PatchInfo
}

func (p *fakeProvider) PatchList(ctx context.Context, repository string) ([]corpus.PatchInfo, error) {
	return p.patches[repository], nil
}

type fakePatcher struct{}

func (fakePatcher) ToLocalPatch(ctx context.Context, repository string, patch corpus.PatchInfo) (corpus.LocalPatch, error) {
	return corpus.LocalPatch{Patch: patch, Path: repository + "/" + patch.Name}, nil
}

func (fakePatcher) PatchPath(repository string, patch corpus.PatchInfo) string {
	return repository + "/" + patch.Name
}

// movingPatcher re-fetches every patch to a new path on each call while
// keeping patch identity (name + version) fixed, simulating a patch
// source that re-materializes content to a fresh location without
// actually changing it.
type movingPatcher struct{ call int }

func (p *movingPatcher) ToLocalPatch(ctx context.Context, repository string, patch corpus.PatchInfo) (corpus.LocalPatch, error) {
	return corpus.LocalPatch{Patch: patch, Path: fmt.Sprintf("%s/%s/v%d", repository, patch.Name, p.call)}, nil
}

func (p *movingPatcher) PatchPath(repository string, patch corpus.PatchInfo) string {
	return fmt.Sprintf("%s/%s/v%d", repository, patch.Name, p.call)
}

func newTestManager(t *testing.T, provider *fakeProvider) *Manager {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		UpdateInterval: time.Hour,
		Directory:      dir,
		Repositories:   []string{"ffxiv"},
	}
	return New(cfg, provider, fakePatcher{}, zap.NewNop())
}

// (a) fresh start with empty catalog -> one update produces one version
// and broadcasts it.
func TestUpdateFreshStartBroadcastsOneVersion(t *testing.T) {
	provider := &fakeProvider{patches: map[string][]corpus.PatchInfo{
		"ffxiv": {{Name: "base", Version: "1"}},
	}}
	m := newTestManager(t, provider)
	sub := m.Subscribe()

	if err := m.update(context.Background()); err != nil {
		t.Fatalf("update: %v", err)
	}

	select {
	case keys := <-sub:
		if len(keys) != 1 {
			t.Fatalf("expected 1 key, got %d", len(keys))
		}
	default:
		t.Fatal("expected a broadcast after the first update")
	}
}

// (b) second tick with identical patch list -> no broadcast.
func TestUpdateIdenticalPatchListDoesNotRebroadcast(t *testing.T) {
	provider := &fakeProvider{patches: map[string][]corpus.PatchInfo{
		"ffxiv": {{Name: "base", Version: "1"}},
	}}
	m := newTestManager(t, provider)

	if err := m.update(context.Background()); err != nil {
		t.Fatalf("update: %v", err)
	}
	sub := m.Subscribe()
	<-sub // drain the initial value delivered on subscribe

	if err := m.update(context.Background()); err != nil {
		t.Fatalf("second update: %v", err)
	}

	select {
	case keys := <-sub:
		t.Fatalf("expected no broadcast for an unchanged patch list, got %v", keys)
	default:
	}
}

// (c) second tick with a new patch -> broadcast with both keys, "latest"
// points to the new one.
func TestUpdateNewPatchBroadcastsBothKeysAndUpdatesLatest(t *testing.T) {
	provider := &fakeProvider{patches: map[string][]corpus.PatchInfo{
		"ffxiv": {{Name: "base", Version: "1"}},
	}}
	m := newTestManager(t, provider)

	if err := m.update(context.Background()); err != nil {
		t.Fatalf("update: %v", err)
	}
	firstLatest, _ := m.Resolve("latest")

	provider.patches["ffxiv"] = append(provider.patches["ffxiv"], corpus.PatchInfo{Name: "ex1", Version: "2"})

	if err := m.update(context.Background()); err != nil {
		t.Fatalf("second update: %v", err)
	}

	keys := m.Keys()
	if len(keys) != 2 {
		t.Fatalf("expected 2 known versions, got %d", len(keys))
	}

	secondLatest, ok := m.Resolve("latest")
	if !ok {
		t.Fatal("expected a 'latest' mapping")
	}
	if secondLatest == firstLatest {
		t.Fatal("expected 'latest' to point at the new version")
	}
}

// (d) restart after (c) -> hydration broadcasts both keys once.
func TestHydrationAfterRestartBroadcastsAllKeys(t *testing.T) {
	provider := &fakeProvider{patches: map[string][]corpus.PatchInfo{
		"ffxiv": {{Name: "base", Version: "1"}},
	}}
	dir := t.TempDir()
	cfg := Config{UpdateInterval: time.Hour, Directory: dir, Repositories: []string{"ffxiv"}}

	first := New(cfg, provider, fakePatcher{}, zap.NewNop())
	if err := first.update(context.Background()); err != nil {
		t.Fatalf("update: %v", err)
	}
	provider.patches["ffxiv"] = append(provider.patches["ffxiv"], corpus.PatchInfo{Name: "ex1", Version: "2"})
	if err := first.update(context.Background()); err != nil {
		t.Fatalf("second update: %v", err)
	}

	second := New(cfg, provider, fakePatcher{}, zap.NewNop())
	sub := second.Subscribe()
	if err := second.hydrate(); err != nil {
		t.Fatalf("hydrate: %v", err)
	}

	select {
	case keys := <-sub:
		if len(keys) != 2 {
			t.Fatalf("expected 2 keys after hydration, got %d", len(keys))
		}
	default:
		t.Fatal("expected hydration to broadcast once")
	}
}

// (e) hydration with a deleted version file -> key dropped from names,
// warning logged (no fatal error).
func TestHydrationWithMissingVersionFileDropsKey(t *testing.T) {
	provider := &fakeProvider{patches: map[string][]corpus.PatchInfo{
		"ffxiv": {{Name: "base", Version: "1"}},
	}}
	dir := t.TempDir()
	cfg := Config{UpdateInterval: time.Hour, Directory: dir, Repositories: []string{"ffxiv"}}

	first := New(cfg, provider, fakePatcher{}, zap.NewNop())
	if err := first.update(context.Background()); err != nil {
		t.Fatalf("update: %v", err)
	}
	key, _ := first.Resolve("latest")
	if err := os.Remove(first.versionPath(key)); err != nil {
		t.Fatalf("remove version file: %v", err)
	}

	second := New(cfg, provider, fakePatcher{}, zap.NewNop())
	if err := second.hydrate(); err != nil {
		t.Fatalf("hydrate: %v", err)
	}

	if _, ok := second.Resolve("latest"); ok {
		t.Fatal("expected 'latest' to be dropped when its version file is missing")
	}
	if len(second.Keys()) != 0 {
		t.Fatalf("expected no hydrated versions, got %d", len(second.Keys()))
	}
}

// (f) patch identity unchanged but patch path changed -> key is
// unchanged, catalog is updated in place, and no new broadcast fires.
func TestUpdatePatchPathChangeWithoutIdentityChangeDoesNotRebroadcast(t *testing.T) {
	provider := &fakeProvider{patches: map[string][]corpus.PatchInfo{
		"ffxiv": {{Name: "base", Version: "1"}},
	}}
	dir := t.TempDir()
	cfg := Config{UpdateInterval: time.Hour, Directory: dir, Repositories: []string{"ffxiv"}}
	patcher := &movingPatcher{call: 0}
	m := New(cfg, provider, patcher, zap.NewNop())

	require.NoError(t, m.update(context.Background()))
	firstKey, ok := m.Resolve("latest")
	require.True(t, ok, "expected a 'latest' mapping after the first update")

	sub := m.Subscribe()
	<-sub // drain the value delivered on subscribe

	patcher.call = 1 // same patch identity, new on-disk path
	require.NoError(t, m.update(context.Background()))

	secondKey, ok := m.Resolve("latest")
	require.True(t, ok)
	require.Equal(t, firstKey, secondKey, "patch path alone must not change the version key")

	v, ok := m.Version(secondKey)
	require.True(t, ok)
	require.Equal(t, "ffxiv/base/v1", v.Repositories[0].Patches[0].Path, "catalog should reflect the new path")

	select {
	case keys := <-sub:
		t.Fatalf("expected no broadcast for a patch-path-only change, got %v", keys)
	default:
	}
}
