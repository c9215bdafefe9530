// Package searchversion owns the set of per-sheet indices for one corpus
// version, and fans ingestion and search out across sheets.
package searchversion

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kamura-io/cartograph/internal/cerrors"
	"github.com/kamura-io/cartograph/internal/corpus"
	"github.com/kamura-io/cartograph/internal/corpusindex"
	"github.com/kamura-io/cartograph/internal/query"
)

// indexMap is the write-once payload installed atomically once per
// ingestion pass: readers always observe a complete map or none.
type indexMap map[string]*corpusindex.Index

// SearchVersion owns every sheet's Index for one corpus version.
type SearchVersion struct {
	key       string
	directory string

	indices atomic.Pointer[indexMap]
}

// New returns a SearchVersion with no indices installed yet; call
// Ingest to populate it.
func New(key, directory string) *SearchVersion {
	return &SearchVersion{key: key, directory: directory}
}

// Key returns the version key this SearchVersion serves.
func (v *SearchVersion) Key() string { return v.key }

// Ready reports whether ingestion has completed at least once.
func (v *SearchVersion) Ready() bool {
	return v.indices.Load() != nil
}

// Resolve implements corpusindex.Executor: it looks up a sheet's Index
// within the snapshot installed by the most recent completed ingestion.
func (v *SearchVersion) Resolve(sheet string) (*corpusindex.Index, bool) {
	m := v.indices.Load()
	if m == nil {
		return nil, false
	}
	idx, ok := (*m)[sheet]
	return idx, ok
}

// Ingest lists every sheet in data, builds an Index per sheet in
// parallel, and atomically installs the resulting map. Failure of any
// single sheet's ingestion is fatal to the whole pass: the version is
// left not-ready, to be retried on a later run.
func (v *SearchVersion) Ingest(ctx context.Context, data corpus.DataVersion, logger *zap.Logger) error {
	sheetNames, err := data.Excel().List(ctx)
	if err != nil {
		return fmt.Errorf("list sheets: %w", err)
	}

	group, gctx := errgroup.WithContext(ctx)
	built := make(indexMap, len(sheetNames))
	var mu atomicMapGuard

	for _, name := range sheetNames {
		name := name
		group.Go(func() error {
			sheet, err := data.Excel().Sheet(gctx, name)
			if err != nil {
				return fmt.Errorf("sheet %q: %w", name, err)
			}

			path := filepath.Join(v.directory, corpusindex.EscapeSheetName(name))
			idx, err := corpusindex.Ingest(gctx, path, sheet, logger)
			if err != nil {
				logger.Error("sheet ingestion failed", zap.String("sheet", name), zap.Error(err))
				return fmt.Errorf("ingest sheet %q: %w", name, err)
			}

			mu.set(built, name, idx)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	v.indices.Store(&built)
	return nil
}

// Search executes each sheet's query in q against that sheet's Index
// (sheets in q with no ingested Index are skipped), returning per-sheet
// results keyed by sheet name and any non-fatal per-sheet issues. A Failure from any sheet is returned
// immediately without partial results, per the fan-out aggregation rule.
func (v *SearchVersion) Search(ctx context.Context, q query.PostQueryBySheet, cap *int, cache *corpusindex.RelationCache) (map[string][]corpusindex.IndexResult, []string, error) {
	m := v.indices.Load()
	if m == nil {
		return nil, nil, fmt.Errorf("version %s has no ingested indices", v.key)
	}

	out := make(map[string][]corpusindex.IndexResult, len(q))
	var warnings []string

	for sheet, node := range q {
		idx, ok := (*m)[sheet]
		if !ok {
			continue
		}

		executor := corpusindex.Executor(v)
		if cache != nil {
			executor = corpusindex.NewCachingExecutor(v, v.key, cache)
		}

		results, err := idx.Search(ctx, executor, node, cap)
		if err != nil {
			if cerrors.IsFailure(err) {
				return nil, nil, fmt.Errorf("sheet %s: %w", sheet, err)
			}
			warnings = append(warnings, fmt.Sprintf("sheet %s: %s", sheet, err))
			continue
		}
		out[sheet] = results
	}

	return out, warnings, nil
}

// atomicMapGuard serializes concurrent writes into a shared indexMap
// built up during a parallel ingestion fan-out. Each sheet's goroutine
// only ever touches its own key, but the underlying Go map is not safe
// for concurrent writes regardless, so a mutex still guards insertion.
type atomicMapGuard struct {
	mu sync.Mutex
}

func (g *atomicMapGuard) set(m indexMap, key string, value *corpusindex.Index) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m[key] = value
}
