// Package fsprovider is a filesystem-backed stand-in for the external
// patch-discovery collaborator (spec §6's Provider): it lists patches by
// reading a directory of "<repository>/<patch>.patch" files rather than
// querying a real patch-distribution network service, which is out of
// scope for this core.
package fsprovider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kamura-io/cartograph/internal/corpus"
)

// Provider lists patches from a local directory tree.
type Provider struct {
	root string
}

// New builds a Provider rooted at root. Each immediate subdirectory of
// root is treated as a repository; files within it (sorted
// lexicographically, which is expected to match apply order) are its
// patches.
func New(root string) *Provider {
	return &Provider{root: root}
}

// PatchList implements corpus.Provider.
func (p *Provider) PatchList(ctx context.Context, repository string) ([]corpus.PatchInfo, error) {
	dir := filepath.Join(p.root, repository)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list patches for repository %q: %w", repository, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	if len(names) == 0 {
		return nil, fmt.Errorf("repository %q has no patches", repository)
	}

	patches := make([]corpus.PatchInfo, len(names))
	for i, name := range names {
		patches[i] = corpus.PatchInfo{
			Name:    strings.TrimSuffix(name, filepath.Ext(name)),
			Version: fmt.Sprintf("%d", i),
		}
	}
	return patches, nil
}
