// Package fspatcher is a filesystem-backed stand-in for the external
// patch-materialization collaborator (spec §6's Patcher): patches are
// assumed already present on local disk under root, rather than
// downloaded from a real distribution service.
package fspatcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kamura-io/cartograph/internal/corpus"
)

// Patcher resolves patches to paths beneath a local root.
type Patcher struct {
	root string
}

// New builds a Patcher rooted at root.
func New(root string) *Patcher {
	return &Patcher{root: root}
}

// PatchPath implements corpus.Patcher. Pure: no I/O.
func (p *Patcher) PatchPath(repository string, patch corpus.PatchInfo) string {
	return filepath.Join(p.root, repository, patch.Name+".patch")
}

// ToLocalPatch implements corpus.Patcher. Idempotent: it only verifies
// the expected on-disk artifact exists, never writes one itself, since
// patch materialization from the real distribution network is out of
// scope for this core.
func (p *Patcher) ToLocalPatch(ctx context.Context, repository string, patch corpus.PatchInfo) (corpus.LocalPatch, error) {
	path := p.PatchPath(repository, patch)
	if _, err := os.Stat(path); err != nil {
		return corpus.LocalPatch{}, fmt.Errorf("patch %q not materialized at %s: %w", patch.Name, path, err)
	}
	return corpus.LocalPatch{Patch: patch, Path: path}, nil
}
