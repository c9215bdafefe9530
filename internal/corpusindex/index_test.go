package corpusindex

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/kamura-io/cartograph/internal/corpus"
	"github.com/kamura-io/cartograph/internal/query"
)

func TestEscapeSheetNameRoundTrips(t *testing.T) {
	cases := []string{"Item", "quest/Main", "a/b/c"}
	for _, name := range cases {
		escaped := EscapeSheetName(name)
		if UnescapeSheetName(escaped) != name {
			t.Errorf("round-trip failed for %q: escaped=%q", name, escaped)
		}
	}
}

type fakeSheet struct {
	name string
	rows []corpus.Row
}

func (s *fakeSheet) Name() string { return s.name }

func (s *fakeSheet) Rows(ctx context.Context) (<-chan corpus.Row, error) {
	ch := make(chan corpus.Row, len(s.rows))
	for _, r := range s.rows {
		ch <- r
	}
	close(ch)
	return ch, nil
}

type singleIndexExecutor struct {
	indices map[string]*Index
}

func (e *singleIndexExecutor) Resolve(sheet string) (*Index, bool) {
	idx, ok := e.indices[sheet]
	return idx, ok
}

func TestIngestAndSearchEqualMatch(t *testing.T) {
	sheet := &fakeSheet{
		name: "Item",
		rows: []corpus.Row{
			{RowID: 1, Fields: map[string]any{"Name": "Potion"}},
			{RowID: 2, Fields: map[string]any{"Name": "Ether"}},
		},
	}

	dir := t.TempDir()
	idx, err := Ingest(context.Background(), filepath.Join(dir, "Item"), sheet, zap.NewNop())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	defer idx.Close()

	q := query.Leaf(query.Column{Name: "Name"}, query.Operation[query.Column]{
		Kind:  query.OpEqual,
		Value: query.StringValue("Potion"),
	})

	executor := &singleIndexExecutor{indices: map[string]*Index{"Item": idx}}
	results, err := idx.Search(context.Background(), executor, q, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].RowID != 1 {
		t.Fatalf("Search results = %+v, want a single match on row 1", results)
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	sheet := &fakeSheet{
		name: "Item",
		rows: []corpus.Row{{RowID: 1, Fields: map[string]any{"Name": "Potion"}}},
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "Item")

	first, err := Ingest(context.Background(), path, sheet, zap.NewNop())
	if err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	first.Close()

	// A second ingest over the same path, with a sheet that would error
	// if its Rows were consulted, must short-circuit via the existing
	// segment set rather than rebuilding.
	second, err := Ingest(context.Background(), path, &erroringSheet{name: "Item"}, zap.NewNop())
	if err != nil {
		t.Fatalf("second Ingest should reuse the existing segment set: %v", err)
	}
	defer second.Close()
}

type erroringSheet struct{ name string }

func (s *erroringSheet) Name() string { return s.name }
func (s *erroringSheet) Rows(ctx context.Context) (<-chan corpus.Row, error) {
	panic("Rows should not be called when an existing segment set is reused")
}
