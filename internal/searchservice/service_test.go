package searchservice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kamura-io/cartograph/internal/corpus"
	"github.com/kamura-io/cartograph/internal/query"
)

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

type fakeExcel struct{ sheets map[string]*fakeSheet }

func (e *fakeExcel) List(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(e.sheets))
	for n := range e.sheets {
		names = append(names, n)
	}
	return names, nil
}
func (e *fakeExcel) Sheet(ctx context.Context, name string) (corpus.Sheet, error) {
	return e.sheets[name], nil
}

type fakeDataVersion struct{ excel *fakeExcel }

func (d *fakeDataVersion) Excel() corpus.Excel { return d.excel }

type fakeSource struct {
	ch   chan []string
	data map[string]corpus.DataVersion
}

func (s *fakeSource) Subscribe() <-chan []string { return s.ch }
func (s *fakeSource) Data(ctx context.Context, key string) (corpus.DataVersion, error) {
	return s.data[key], nil
}

type fakeSchema struct {
	columns map[string]query.Column
	sheets  []string
}

func (s *fakeSchema) Resolve(sheet, field, language string) (query.Column, bool) {
	c, ok := s.columns[sheet+"."+field]
	return c, ok
}
func (s *fakeSchema) Sheets(ctx context.Context) ([]string, error) { return s.sheets, nil }

func makeSource(t *testing.T, sheetRows map[string][]corpus.Row) (*fakeSource, string) {
	t.Helper()
	sheets := make(map[string]*fakeSheet, len(sheetRows))
	for name, rows := range sheetRows {
		sheets[name] = &fakeSheet{name: name, rows: rows}
	}
	data := &fakeDataVersion{excel: &fakeExcel{sheets: sheets}}
	src := &fakeSource{ch: make(chan []string, 1), data: map[string]corpus.DataVersion{"v1": data}}
	return src, "v1"
}

func TestQueryAcrossTwoSheetsWithPagination(t *testing.T) {
	rows := make([]corpus.Row, 8)
	for i := range rows {
		rows[i] = corpus.Row{RowID: uint32(i + 1), Fields: map[string]any{"Name": "Potion"}}
	}
	src, key := makeSource(t, map[string][]corpus.Row{
		"Item":  rows,
		"Quest": rows,
	})

	svc, err := New(Config{LimitDefault: 10, LimitMax: 100, IngestConcurrency: 2, RelationCacheSize: 16, IndexDirectory: t.TempDir()}, src, zap.NewNop())
	require.NoError(t, err)

	src.ch <- []string{key}
	close(src.ch)
	require.NoError(t, svc.Start(context.Background()))

	schema := &fakeSchema{
		columns: map[string]query.Column{
			"Item.Name":  {Name: "Name", Kind: query.ValueString},
			"Quest.Name": {Name: "Name", Kind: query.ValueString},
		},
		sheets: []string{"Item", "Quest"},
	}

	pre := query.Leaf("Name", query.Operation[string]{Kind: query.OpEqual, Value: query.StringValue("Potion")})
	limit := 10
	result, cursor, err := svc.Query(context.Background(), QueryRequest{
		VersionKey: key,
		Pre:        pre,
		Language:   "en",
		Limit:      &limit,
		Schema:     schema,
	})
	require.NoError(t, err)
	require.Len(t, result.Value, 10, "expected 10 results (limit)")
	require.NotNil(t, cursor, "expected a pagination cursor since 16 internal matches exceed limit 10")

	total := 0
	for _, n := range cursor.Offsets {
		total += n
	}
	require.Equal(t, 10, total, "expected per-sheet offsets to sum to the limit (10)")
}

func TestQueryUnknownVersionFails(t *testing.T) {
	src, _ := makeSource(t, nil)
	svc, err := New(Config{LimitDefault: 10, LimitMax: 100, IngestConcurrency: 1, RelationCacheSize: 16, IndexDirectory: t.TempDir()}, src, zap.NewNop())
	require.NoError(t, err)

	_, _, err = svc.Query(context.Background(), QueryRequest{VersionKey: "missing", Schema: &fakeSchema{}})
	require.Error(t, err, "expected an error for an unknown version")
}
