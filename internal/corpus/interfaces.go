// Package corpus declares the external collaborator interfaces the core
// depends on: patch discovery and materialization, and read access to a
// materialized data version's sheets. Concrete implementations (a real
// Git-backed schema provider, a patch-file downloader, the low-level
// game-archive reader) are out of scope per spec; fsprovider and
// fspatcher supply filesystem-backed stand-ins so the rest of the module
// is exercisable end to end.
package corpus

import "context"

// PatchInfo identifies one patch within a repository's ordered history.
type PatchInfo struct {
	Name    string
	Version string
}

// LocalPatch is a patch resolved to its on-disk representation.
type LocalPatch struct {
	Patch PatchInfo
	Path  string
}

// Provider discovers the ordered, non-empty patch history for a named
// repository. Failures are treated as fatal for the containing update
// pass.
type Provider interface {
	PatchList(ctx context.Context, repository string) ([]PatchInfo, error)
}

// Patcher materializes patches onto local disk. ToLocalPatch must be
// idempotent: concurrent calls for the same patch converge to one
// on-disk artifact.
type Patcher interface {
	ToLocalPatch(ctx context.Context, repository string, patch PatchInfo) (LocalPatch, error)
	PatchPath(repository string, patch PatchInfo) string
}

// Row is one record of a Sheet, identified by row and optional subrow.
type Row struct {
	RowID    uint32
	SubrowID uint16
	Fields   map[string]any
}

// Sheet exposes the rows of one named table within a DataVersion.
type Sheet interface {
	Name() string
	Rows(ctx context.Context) (<-chan Row, error)
}

// Excel is the archive-reader handle for one materialized DataVersion.
type Excel interface {
	List(ctx context.Context) ([]string, error)
	Sheet(ctx context.Context, name string) (Sheet, error)
}

// DataVersion is one materialized, immutable snapshot of the corpus,
// addressable by its VersionKey.
type DataVersion interface {
	Excel() Excel
}

// Data resolves a VersionKey to the DataVersion materialized on disk for
// it.
type Data interface {
	Version(ctx context.Context, key string) (DataVersion, error)
}
