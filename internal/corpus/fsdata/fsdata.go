// Package fsdata is a filesystem-backed stand-in for the external
// low-level game-archive reader (spec §6's Data/Excel/Sheet): each
// materialized version is a directory of "<sheet>.json" files, each
// holding an array of rows, rather than a real binary archive format.
package fsdata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kamura-io/cartograph/internal/corpus"
)

// Data resolves a VersionKey to a directory under root.
type Data struct {
	root string
}

// New builds a Data rooted at root; each materialized version is the
// directory root/<key>/.
func New(root string) *Data {
	return &Data{root: root}
}

// Version implements corpus.Data.
func (d *Data) Version(ctx context.Context, key string) (corpus.DataVersion, error) {
	dir := filepath.Join(d.root, key)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("version %s is not materialized at %s", key, dir)
	}
	return &dataVersion{dir: dir}, nil
}

type dataVersion struct{ dir string }

func (v *dataVersion) Excel() corpus.Excel { return &excel{dir: v.dir} }

type excel struct{ dir string }

func (e *excel) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return nil, fmt.Errorf("list sheets: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
	}
	return names, nil
}

func (e *excel) Sheet(ctx context.Context, name string) (corpus.Sheet, error) {
	path := filepath.Join(e.dir, name+".json")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("sheet %q not found: %w", name, err)
	}
	return &sheet{path: path, name: name}, nil
}

type sheet struct {
	path string
	name string
}

func (s *sheet) Name() string { return s.name }

type jsonRow struct {
	RowID    uint32         `json:"row_id"`
	SubrowID uint16         `json:"subrow_id"`
	Fields   map[string]any `json:"fields"`
}

func (s *sheet) Rows(ctx context.Context) (<-chan corpus.Row, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", s.name, err)
	}

	var rows []jsonRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("parse sheet %q: %w", s.name, err)
	}

	ch := make(chan corpus.Row, len(rows))
	for _, r := range rows {
		select {
		case <-ctx.Done():
			close(ch)
			return ch, ctx.Err()
		default:
		}
		ch <- corpus.Row{RowID: r.RowID, SubrowID: r.SubrowID, Fields: r.Fields}
	}
	close(ch)
	return ch, nil
}
