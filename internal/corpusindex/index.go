// Package corpusindex implements the per-sheet, per-version searchable
// artifact: ingestion of rows into an on-disk segment set, and execution
// of a post-normalized query tree against it.
package corpusindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/kamura-io/cartograph/internal/corpus"
	"github.com/kamura-io/cartograph/internal/query"
)

// dirEscapeToken is substituted for '/' in sheet names so they can be
// used as path components without colliding across directory levels.
// Sheet names are restricted to ASCII alphanumerics by the schema
// provider plus '/', so this token can never appear literally, making
// the substitution reversible and collision-free.
const dirEscapeToken = "!DIR!"

// EscapeSheetName makes sheet into a safe, reversible single path
// component.
func EscapeSheetName(sheet string) string {
	return strings.ReplaceAll(sheet, "/", dirEscapeToken)
}

// UnescapeSheetName reverses EscapeSheetName.
func UnescapeSheetName(escaped string) string {
	return strings.ReplaceAll(escaped, dirEscapeToken, "/")
}

// IndexResult is one scored match produced by a search.
type IndexResult struct {
	Score    float32
	RowID    uint32
	SubrowID uint16
}

// fieldRowID and fieldSubrowID are the reserved document fields every
// ingested row carries alongside its schema fields, used to recover
// IndexResult identity from a bleve hit.
const (
	fieldRowID    = "_row_id"
	fieldSubrowID = "_subrow_id"
)

// Index is the persistent, queryable artifact for one sheet at one
// version.
type Index struct {
	sheet string
	path  string
	bleve bleve.Index
}

// Path returns the on-disk directory backing this index.
func (idx *Index) Path() string { return idx.path }

// Sheet returns the (unescaped) sheet name this index serves.
func (idx *Index) Sheet() string { return idx.sheet }

// Ingest builds (or reopens) the on-disk segment set for sheet at path.
// If path already contains a valid segment set, ingestion is skipped
// entirely: this is the idempotence guarantee callers rely on to resume
// a partially-completed version ingestion without redoing finished work.
func Ingest(ctx context.Context, path string, sheet corpus.Sheet, logger *zap.Logger) (*Index, error) {
	if existing, err := tryOpenExisting(path, sheet.Name()); err == nil && existing != nil {
		logger.Debug("reusing existing segment set", zap.String("sheet", sheet.Name()), zap.String("path", path))
		return existing, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index parent directory: %w", err)
	}
	// Remove any partial artifact from a previous, interrupted ingest
	// before rebuilding: a half-written segment set must never be mistaken
	// for a valid one.
	_ = os.RemoveAll(path)

	mapping := bleve.NewIndexMapping()
	bleveIdx, err := bleve.New(path, mapping)
	if err != nil {
		return nil, fmt.Errorf("create index at %s: %w", path, err)
	}

	rows, err := sheet.Rows(ctx)
	if err != nil {
		bleveIdx.Close()
		return nil, fmt.Errorf("list rows for sheet %s: %w", sheet.Name(), err)
	}

	batch := bleveIdx.NewBatch()
	const batchSize = 1000
	pending := 0

	for row := range rows {
		select {
		case <-ctx.Done():
			bleveIdx.Close()
			return nil, ctx.Err()
		default:
		}

		doc := make(map[string]any, len(row.Fields)+2)
		for k, v := range row.Fields {
			doc[k] = v
		}
		doc[fieldRowID] = row.RowID
		doc[fieldSubrowID] = row.SubrowID

		id := documentID(row.RowID, row.SubrowID)
		if err := batch.Index(id, doc); err != nil {
			bleveIdx.Close()
			return nil, fmt.Errorf("stage row %s for sheet %s: %w", id, sheet.Name(), err)
		}
		pending++

		if pending >= batchSize {
			if err := bleveIdx.Batch(batch); err != nil {
				bleveIdx.Close()
				return nil, fmt.Errorf("flush batch for sheet %s: %w", sheet.Name(), err)
			}
			batch = bleveIdx.NewBatch()
			pending = 0
		}
	}

	if pending > 0 {
		if err := bleveIdx.Batch(batch); err != nil {
			bleveIdx.Close()
			return nil, fmt.Errorf("flush final batch for sheet %s: %w", sheet.Name(), err)
		}
	}

	return &Index{sheet: sheet.Name(), path: path, bleve: bleveIdx}, nil
}

func tryOpenExisting(path, sheet string) (*Index, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	bleveIdx, err := bleve.Open(path)
	if err != nil {
		return nil, err
	}
	return &Index{sheet: sheet, path: path, bleve: bleveIdx}, nil
}

func documentID(rowID uint32, subrowID uint16) string {
	return strconv.FormatUint(uint64(rowID), 10) + ":" + strconv.FormatUint(uint64(subrowID), 10)
}

// Close releases the index's on-disk handle.
func (idx *Index) Close() error { return idx.bleve.Close() }

// Executor resolves relation targets to another Index within the same
// corpus version. Implementations hold an immutable snapshot of the
// version's index map for the lifetime of one outer query.
type Executor interface {
	Resolve(sheet string) (*Index, bool)
}

// Search executes q against the index, returning results ordered by
// descending score. When cap is non-nil, no more than *cap results are
// produced; a nil cap requests every matching row, as relation joins do.
func (idx *Index) Search(ctx context.Context, executor Executor, q query.PostQuery, cap *int) ([]IndexResult, error) {
	bq, err := translate(ctx, executor, q)
	if err != nil {
		return nil, err
	}

	request := bleve.NewSearchRequest(bq)
	request.Fields = []string{fieldRowID, fieldSubrowID}
	if cap != nil {
		request.Size = *cap
	} else {
		// Cheap upper bound: never more rows than the index holds.
		count, err := idx.bleve.DocCount()
		if err != nil {
			return nil, fmt.Errorf("count documents in sheet %s: %w", idx.sheet, err)
		}
		request.Size = int(count) + 1
	}

	result, err := idx.bleve.SearchInContext(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("search sheet %s: %w", idx.sheet, err)
	}

	out := make([]IndexResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		rowID, _ := toUint32(hit.Fields[fieldRowID])
		subrowID, _ := toUint16(hit.Fields[fieldSubrowID])
		out = append(out, IndexResult{Score: float32(hit.Score), RowID: rowID, SubrowID: subrowID})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func toUint32(v any) (uint32, bool) {
	switch n := v.(type) {
	case float64:
		return uint32(n), true
	case uint32:
		return n, true
	default:
		return 0, false
	}
}

func toUint16(v any) (uint16, bool) {
	switch n := v.(type) {
	case float64:
		return uint16(n), true
	case uint16:
		return n, true
	default:
		return 0, false
	}
}

// translate converts a post-normalized query tree into a bleve query,
// resolving Relation leaves against executor as it goes.
func translate(ctx context.Context, executor Executor, node query.PostQuery) (bleveQuery.Query, error) {
	switch node.Kind {
	case query.NodeLeaf:
		return translateLeaf(ctx, executor, node)
	case query.NodeClause:
		return translateClause(ctx, executor, node)
	default:
		return nil, fmt.Errorf("unknown node kind %d", node.Kind)
	}
}

func translateLeaf(ctx context.Context, executor Executor, node query.PostQuery) (bleveQuery.Query, error) {
	field := node.Field.Name
	op := node.Operation

	switch op.Kind {
	case query.OpEqual:
		return equalQuery(field, op.Value), nil

	case query.OpCompare:
		return compareQuery(field, op.Compare, op.Value), nil

	case query.OpMatch:
		mq := bleve.NewMatchQuery(op.MatchText)
		mq.SetField(field)
		return mq, nil

	case query.OpRelation:
		return translateRelation(ctx, executor, field, op)

	default:
		return nil, fmt.Errorf("unknown operation kind %d", op.Kind)
	}
}

// equalQuery matches a string value as a phrase of the field's analyzed
// tokens, so case follows the field's analyzer; a field holding further
// words around that phrase also matches.
func equalQuery(field string, value query.Value) bleveQuery.Query {
	switch value.Kind {
	case query.ValueString:
		pq := bleve.NewMatchPhraseQuery(value.String)
		pq.SetField(field)
		return pq
	case query.ValueBool:
		s := "false"
		if value.Bool {
			s = "true"
		}
		tq := bleve.NewTermQuery(s)
		tq.SetField(field)
		return tq
	case query.ValueInt:
		f := float64(value.Int)
		nq := bleve.NewNumericRangeInclusiveQuery(&f, &f, boolPtr(true), boolPtr(true))
		nq.SetField(field)
		return nq
	case query.ValueFloat:
		nq := bleve.NewNumericRangeInclusiveQuery(&value.Float, &value.Float, boolPtr(true), boolPtr(true))
		nq.SetField(field)
		return nq
	default:
		return bleve.NewMatchNoneQuery()
	}
}

func compareQuery(field string, op query.CompareOp, value query.Value) bleveQuery.Query {
	v := numericOf(value)
	switch op {
	case query.CompareLT:
		nq := bleve.NewNumericRangeInclusiveQuery(nil, &v, nil, boolPtr(false))
		nq.SetField(field)
		return nq
	case query.CompareLTE:
		nq := bleve.NewNumericRangeInclusiveQuery(nil, &v, nil, boolPtr(true))
		nq.SetField(field)
		return nq
	case query.CompareGT:
		nq := bleve.NewNumericRangeInclusiveQuery(&v, nil, boolPtr(false), nil)
		nq.SetField(field)
		return nq
	case query.CompareGTE:
		nq := bleve.NewNumericRangeInclusiveQuery(&v, nil, boolPtr(true), nil)
		nq.SetField(field)
		return nq
	default:
		return bleve.NewMatchNoneQuery()
	}
}

func numericOf(value query.Value) float64 {
	switch value.Kind {
	case query.ValueInt:
		return float64(value.Int)
	case query.ValueFloat:
		return value.Float
	default:
		return 0
	}
}

func boolPtr(b bool) *bool { return &b }

// translateRelation resolves target to another Index in the same
// version, evaluates sub against it unbounded, and turns the resulting
// row IDs into a disjunction of term queries against field on the
// current sheet: the relation's match criterion is "current row's field
// value names a row ID that satisfied the sub-query against target".
func translateRelation(ctx context.Context, executor Executor, field string, op query.Operation[query.Column]) (bleveQuery.Query, error) {
	target, ok := executor.Resolve(op.RelationTarget)
	if !ok {
		return nil, fmt.Errorf("relation target sheet %q not present in this version", op.RelationTarget)
	}
	if op.RelationSub == nil {
		return nil, fmt.Errorf("relation leaf for %q has no sub-query", op.RelationTarget)
	}

	var matches []IndexResult
	var err error
	if caching, ok := executor.(*CachingExecutor); ok {
		matches, err = caching.evaluateRelationCached(ctx, target, *op.RelationSub)
	} else {
		matches, err = target.Search(ctx, executor, *op.RelationSub, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("evaluate relation against %q: %w", op.RelationTarget, err)
	}

	if len(matches) == 0 {
		return bleve.NewMatchNoneQuery(), nil
	}

	disjuncts := make([]bleveQuery.Query, 0, len(matches))
	for _, m := range matches {
		tq := bleve.NewTermQuery(strconv.FormatUint(uint64(m.RowID), 10))
		tq.SetField(field)
		disjuncts = append(disjuncts, tq)
	}
	return bleve.NewDisjunctionQuery(disjuncts...), nil
}

func translateClause(ctx context.Context, executor Executor, node query.PostQuery) (bleveQuery.Query, error) {
	bq := bleve.NewBooleanQuery()
	hasMust, hasShould := false, false

	for _, entry := range node.Clause {
		child, err := translate(ctx, executor, entry.Node)
		if err != nil {
			return nil, err
		}
		switch entry.Occur {
		case query.Must:
			bq.AddMust(child)
			hasMust = true
		case query.Should:
			bq.AddShould(child)
			hasShould = true
		case query.MustNot:
			bq.AddMustNot(child)
		default:
			return nil, fmt.Errorf("unknown occur %d", entry.Occur)
		}
	}

	if hasShould && !hasMust {
		bq.SetMinShould(1)
	}
	return bq, nil
}
