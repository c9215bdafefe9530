// Package searchservice orchestrates ingestion across corpus versions
// and routes structural queries to the matching search version, applying
// limits, pagination, and the fan-out error/warning policy.
package searchservice

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kamura-io/cartograph/internal/cerrors"
	"github.com/kamura-io/cartograph/internal/corpus"
	"github.com/kamura-io/cartograph/internal/corpusindex"
	"github.com/kamura-io/cartograph/internal/query"
	"github.com/kamura-io/cartograph/internal/searchversion"
)

// SearchResult is one scored match, tagged with the sheet it came from.
type SearchResult struct {
	corpusindex.IndexResult
	Sheet string
}

// Config tunes default/maximum result limits and ingestion concurrency.
type Config struct {
	LimitDefault        int
	LimitMax            int
	IngestConcurrency   int
	RelationCacheSize   int
	IndexDirectory      string
}

// VersionSource resolves a VersionKey to the materialized DataVersion
// backing it, and subscribes to the set of known keys.
type VersionSource interface {
	Subscribe() <-chan []string
	Data(ctx context.Context, key string) (corpus.DataVersion, error)
}

// Service subscribes to a version source, ingests newly-announced
// versions, and serves structural queries against them.
type Service struct {
	cfg    Config
	source VersionSource
	logger *zap.Logger
	cache  *corpusindex.RelationCache

	mu       sync.RWMutex
	versions map[string]*searchversion.SearchVersion
}

// New builds a Service. Call Start to begin the ingestion loop.
func New(cfg Config, source VersionSource, logger *zap.Logger) (*Service, error) {
	cache, err := corpusindex.NewRelationCache(cfg.RelationCacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:      cfg,
		source:   source,
		logger:   logger,
		cache:    cache,
		versions: make(map[string]*searchversion.SearchVersion),
	}, nil
}

// IsIngested reports whether key has a fully-ingested SearchVersion
// available to serve queries.
func (s *Service) IsIngested(key string) bool {
	s.mu.RLock()
	sv, ok := s.versions[key]
	s.mu.RUnlock()
	return ok && sv.Ready()
}

// Start subscribes to the version source and ingests newly-observed
// versions until ctx is cancelled. On cancellation, in-flight per-sheet
// ingestion work halts; partial on-disk artifacts are reused or rebuilt
// on the next run.
func (s *Service) Start(ctx context.Context) error {
	keys := s.source.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case observed, ok := <-keys:
			if !ok {
				return nil
			}
			if err := s.ingestNew(ctx, observed); err != nil {
				s.logger.Error("ingestion pass failed", zap.Error(err))
			}
		}
	}
}

func (s *Service) ingestNew(ctx context.Context, observed []string) error {
	s.mu.RLock()
	var toIngest []string
	for _, key := range observed {
		if _, ok := s.versions[key]; !ok {
			toIngest = append(toIngest, key)
		}
	}
	s.mu.RUnlock()

	if len(toIngest) == 0 {
		return nil
	}

	concurrency := s.cfg.IngestConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	for _, key := range toIngest {
		key := key
		group.Go(func() error {
			data, err := s.source.Data(gctx, key)
			if err != nil {
				s.logger.Error("could not materialize version", zap.String("version", key), zap.Error(err))
				return nil
			}

			sv := searchversion.New(key, fmt.Sprintf("%s/%s", s.cfg.IndexDirectory, key))
			if err := sv.Ingest(gctx, data, s.logger); err != nil {
				s.logger.Error("version ingestion failed", zap.String("version", key), zap.Error(err))
				return nil
			}

			s.mu.Lock()
			s.versions[key] = sv
			s.mu.Unlock()
			return nil
		})
	}

	return group.Wait()
}

// QueryRequest is the input to Query.
type QueryRequest struct {
	VersionKey  string
	Pre         query.PreQuery
	Language    string
	SheetFilter []string // nil means every sheet in the schema
	Limit       *int
	Schema      query.Schema
}

// Query resolves versionKey to an ingested SearchVersion, normalizes and
// executes req.Pre against every selected sheet, and returns a
// deterministically sorted, limit-truncated, cursor-annotated result set
// paired with any accumulated warnings.
func (s *Service) Query(ctx context.Context, req QueryRequest) (cerrors.Warnings[[]SearchResult], *Cursor, error) {
	s.mu.RLock()
	sv, ok := s.versions[req.VersionKey]
	s.mu.RUnlock()
	if !ok {
		return cerrors.Warnings[[]SearchResult]{}, nil, cerrors.NewFailure("query", fmt.Errorf("version %s is not known", req.VersionKey))
	}
	if !sv.Ready() {
		return cerrors.Warnings[[]SearchResult]{}, nil, &cerrors.NotReady{Key: req.VersionKey}
	}

	limit := s.cfg.LimitDefault
	if req.Limit != nil {
		limit = *req.Limit
	}
	if limit > s.cfg.LimitMax {
		limit = s.cfg.LimitMax
	}
	internalLimit := limit + 1

	sheets := req.SheetFilter
	if sheets == nil {
		var err error
		sheets, err = schemaSheets(ctx, req)
		if err != nil {
			return cerrors.Warnings[[]SearchResult]{}, nil, err
		}
	}

	perSheet := make(query.PostQueryBySheet, len(sheets))
	var warnings []string

	for _, sheet := range sheets {
		normalized, err := query.Normalize(req.Pre, req.Schema, sheet, req.Language)
		if err != nil {
			if cerrors.IsSchemaMismatch(err) {
				continue
			}
			if cerrors.IsFailure(err) {
				return cerrors.Warnings[[]SearchResult]{}, nil, err
			}
			warnings = append(warnings, fmt.Sprintf("sheet %s: %s", sheet, err))
			continue
		}
		perSheet[sheet] = normalized
	}

	perSheetResults, searchWarnings, err := sv.Search(ctx, perSheet, &internalLimit, s.cache)
	if err != nil {
		return cerrors.Warnings[[]SearchResult]{}, nil, cerrors.NewFailure("query", err)
	}
	warnings = append(warnings, searchWarnings...)

	flat := flatten(perSheetResults)
	sortResults(flat)

	more := len(flat) > limit
	if more {
		flat = flat[:limit]
	}

	offsets := make(map[string]int)
	for _, r := range flat {
		offsets[r.Sheet]++
	}

	result := cerrors.Warnings[[]SearchResult]{Value: flat, Messages: warnings}

	// Open Question #2 decision: a single-sheet query that yields zero
	// results alongside at least one warning is treated as an error
	// rather than an empty success, since there is only one sheet the
	// caller could possibly have meant; multi-sheet queries keep the
	// uniform "succeed with warnings" behavior since a zero-result sheet
	// is an expected outcome of a broad fan-out.
	if len(req.SheetFilter) == 1 && len(flat) == 0 && len(warnings) > 0 {
		return cerrors.Warnings[[]SearchResult]{}, nil, cerrors.NewInvalid(fmt.Sprintf("query against %s produced no results: %v", sheets[0], warnings))
	}

	if !more {
		return result, nil, nil
	}

	cursor := Cursor{VersionKey: req.VersionKey, Offsets: offsets}
	return result, &cursor, nil
}

func schemaSheets(ctx context.Context, req QueryRequest) ([]string, error) {
	type sheetLister interface {
		Sheets(ctx context.Context) ([]string, error)
	}
	lister, ok := req.Schema.(sheetLister)
	if !ok {
		return nil, cerrors.NewInvalid("no sheet_filter provided and schema cannot enumerate its sheets")
	}
	return lister.Sheets(ctx)
}

func flatten(perSheet map[string][]corpusindex.IndexResult) []SearchResult {
	var out []SearchResult
	for sheet, results := range perSheet {
		for _, r := range results {
			out = append(out, SearchResult{IndexResult: r, Sheet: sheet})
		}
	}
	return out
}

// sortResults sorts by descending score, breaking ties deterministically
// by (sheet, row_id, subrow_id) per spec §4.E step 6.
func sortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Sheet != b.Sheet {
			return a.Sheet < b.Sheet
		}
		if a.RowID != b.RowID {
			return a.RowID < b.RowID
		}
		return a.SubrowID < b.SubrowID
	})
}
