package versionmanager

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/klauspost/compress/zstd"

	"github.com/kamura-io/cartograph/internal/corpus"
)

const latestName = "latest"

// persistedMetadata is the on-disk catalog: the full set of known
// version keys plus the name→key mapping.
type persistedMetadata struct {
	Versions []VersionKey         `json:"versions"`
	Names    map[string]VersionKey `json:"names"`
}

// persistedVersion is the on-disk form of one Version.
type persistedVersion struct {
	Repositories []persistedRepository `json:"repositories"`
}

type persistedRepository struct {
	Name    string               `json:"name"`
	Patches []corpus.LocalPatch `json:"patches"`
}

func toPersistedVersion(v Version) persistedVersion {
	repos := make([]persistedRepository, len(v.Repositories))
	for i, r := range v.Repositories {
		repos[i] = persistedRepository{Name: r.Name, Patches: r.Patches}
	}
	return persistedVersion{Repositories: repos}
}

func fromPersistedVersion(p persistedVersion) Version {
	repos := make([]Repository, len(p.Repositories))
	for i, r := range p.Repositories {
		repos[i] = Repository{Name: r.Name, Patches: r.Patches}
	}
	return Version{Repositories: repos}
}

func (m *Manager) metadataPath() string {
	return filepath.Join(m.directory, "metadata.json.zst")
}

func (m *Manager) versionPath(key VersionKey) string {
	return filepath.Join(m.directory, fmt.Sprintf("version-%s.json.zst", key))
}

// openConfigRead opens path with a shared advisory lock, returning
// (nil, nil) if the file does not exist. Blocking file I/O and lock
// acquisition belong on the caller's worker-pool goroutine, never on a
// path that holds any other lock.
func openConfigRead(path string) (*flock.Flock, *os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	lock := flock.New(path)
	if err := lock.RLock(); err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("acquire shared lock on %s: %w", path, err)
	}
	return lock, file, nil
}

// openConfigWrite opens path for truncating write with an exclusive
// advisory lock, creating it if absent.
func openConfigWrite(path string) (*flock.Flock, *os.File, error) {
	lock := flock.New(path)
	if err := lock.Lock(); err != nil {
		return nil, nil, fmt.Errorf("acquire exclusive lock on %s: %w", path, err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		lock.Unlock()
		return nil, nil, err
	}
	return lock, file, nil
}

func readZstdJSON(path string, out any) (bool, error) {
	lock, file, err := openConfigRead(path)
	if err != nil {
		return false, err
	}
	if file == nil {
		return false, nil
	}
	defer lock.Unlock()
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		return false, err
	}
	defer decoder.Close()

	if err := json.NewDecoder(decoder).Decode(out); err != nil {
		return false, err
	}
	return true, nil
}

func writeZstdJSON(path string, in any) error {
	lock, file, err := openConfigWrite(path)
	if err != nil {
		return err
	}
	defer lock.Unlock()
	defer file.Close()

	encoder, err := zstd.NewWriter(file)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(encoder)
	enc.SetIndent("", "  ")
	if err := enc.Encode(in); err != nil {
		encoder.Close()
		return err
	}
	return encoder.Close()
}
