package versionmanager

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// VersionKey is an opaque, content-addressed identifier for a Version:
// equal iff the patch set that produced it is bit-identical. Hex
// representation gives it a natural total order.
type VersionKey string

func (k VersionKey) String() string { return string(k) }

// ComputeVersionKey derives the VersionKey for a Version by hashing its
// canonical textual form. Repository and patch order is preserved
// (order is apply order and is semantically significant), so no sorting
// happens here. Only patch identity (name + version) feeds the hash: the
// local on-disk path a patch happens to be materialized at is not part
// of a Version's content identity, so re-fetching the same patch set to
// a new path must not change the key.
func ComputeVersionKey(v Version) VersionKey {
	h := sha256.New()
	for _, repo := range v.Repositories {
		fmt.Fprintf(h, "repo:%s\n", repo.Name)
		for _, patch := range repo.Patches {
			fmt.Fprintf(h, "patch:%s:%s\n", patch.Patch.Name, patch.Patch.Version)
		}
	}
	return VersionKey(hex.EncodeToString(h.Sum(nil)))
}
