package versionmanager

import (
	"fmt"

	"github.com/kamura-io/cartograph/internal/cerrors"
	"github.com/kamura-io/cartograph/internal/corpus"
)

// Repository is a named, ordered, non-empty sequence of local patches.
// Order equals apply order.
type Repository struct {
	Name    string
	Patches []corpus.LocalPatch
}

// NewRepository builds a Repository, rejecting an empty patch list at
// construction so a Repository can never be the empty invariant callers
// would otherwise have to keep checking for downstream.
func NewRepository(name string, patches []corpus.LocalPatch) (Repository, error) {
	if len(patches) == 0 {
		return Repository{}, cerrors.NewInvalid(fmt.Sprintf("repository %q has no patches", name))
	}
	return Repository{Name: name, Patches: patches}, nil
}

// Version is an immutable, ordered collection of repositories that
// together reconstruct one snapshot of the corpus.
type Version struct {
	Repositories []Repository
}

// Equal reports whether two versions are built from the same patch
// identities (name + version), in the same order — the same notion of
// identity VersionKey hashes over. It deliberately ignores Path: where a
// patch is materialized on disk is not part of a version's content
// identity. The update pass itself compares versions by VersionKey and
// PathsEqual and does not call Equal.
func (v Version) Equal(other Version) bool {
	if len(v.Repositories) != len(other.Repositories) {
		return false
	}
	for i, repo := range v.Repositories {
		o := other.Repositories[i]
		if repo.Name != o.Name || len(repo.Patches) != len(o.Patches) {
			return false
		}
		for j, patch := range repo.Patches {
			op := o.Patches[j]
			if patch.Patch.Name != op.Patch.Name || patch.Patch.Version != op.Patch.Version {
				return false
			}
		}
	}
	return true
}

// PathsEqual reports whether two versions with the same patch identity
// also agree on where every patch is materialized on disk. Callers
// should only rely on this once Equal has already confirmed identity;
// PathsEqual does not itself check patch name/version.
func (v Version) PathsEqual(other Version) bool {
	if len(v.Repositories) != len(other.Repositories) {
		return false
	}
	for i, repo := range v.Repositories {
		o := other.Repositories[i]
		if len(repo.Patches) != len(o.Patches) {
			return false
		}
		for j, patch := range repo.Patches {
			if patch.Path != o.Patches[j].Path {
				return false
			}
		}
	}
	return true
}
