// Package fsschema is a filesystem-backed stand-in for the external
// Git-backed schema provider (spec §6's Schema): one "<sheet>.json" file
// per sheet maps field names to their column kind, rather than a real
// versioned schema repository.
package fsschema

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kamura-io/cartograph/internal/query"
)

// Schema resolves fields against JSON files under a directory.
type Schema struct {
	dir     string
	columns map[string]map[string]query.Column // sheet -> field -> column
}

// Load reads every "<sheet>.json" file in dir, each mapping field name
// to a value kind string ("string", "int", "float", "bool").
func Load(dir string) (*Schema, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read schema directory: %w", err)
	}

	columns := make(map[string]map[string]query.Column)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		sheet := strings.TrimSuffix(entry.Name(), ".json")

		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read schema for sheet %q: %w", sheet, err)
		}

		var fields map[string]string
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("parse schema for sheet %q: %w", sheet, err)
		}

		sheetColumns := make(map[string]query.Column, len(fields))
		for name, kind := range fields {
			sheetColumns[name] = query.Column{Name: name, Kind: parseKind(kind)}
		}
		columns[sheet] = sheetColumns
	}

	return &Schema{dir: dir, columns: columns}, nil
}

func parseKind(s string) query.ValueKind {
	switch s {
	case "int":
		return query.ValueInt
	case "float":
		return query.ValueFloat
	case "bool":
		return query.ValueBool
	default:
		return query.ValueString
	}
}

// Resolve implements query.Schema.
func (s *Schema) Resolve(sheet, field, language string) (query.Column, bool) {
	fields, ok := s.columns[sheet]
	if !ok {
		return query.Column{}, false
	}
	column, ok := fields[field]
	if !ok {
		return query.Column{}, false
	}
	column.Language = language
	return column, ok
}

// Sheets lists every sheet this schema has definitions for, letting
// searchservice enumerate a default sheet set when no sheet_filter is
// given.
func (s *Schema) Sheets(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(s.columns))
	for name := range s.columns {
		names = append(names, name)
	}
	return names, nil
}
