package filterlang

import "testing"

func mustParseColumn(t *testing.T, input string) *ColumnFilter {
	t.Helper()
	w, err := ParseColumnFilter(input)
	if err != nil {
		t.Fatalf("ParseColumnFilter(%q): %v", input, err)
	}
	return w.Value
}

func TestParseColumnFilterStructSimple(t *testing.T) {
	got := mustParseColumn(t, "a")
	want := &ColumnFilter{Kind: ColumnKindStruct, Struct: map[string]*ColumnFilter{"a": nil}}
	assertColumnEqual(t, "a", got, want)
}

func TestParseColumnFilterStructNested(t *testing.T) {
	got := mustParseColumn(t, "a.b")
	want := &ColumnFilter{Kind: ColumnKindStruct, Struct: map[string]*ColumnFilter{
		"a": {Kind: ColumnKindStruct, Struct: map[string]*ColumnFilter{"b": nil}},
	}}
	assertColumnEqual(t, "a.b", got, want)
}

func TestParseColumnFilterArraySimple(t *testing.T) {
	got := mustParseColumn(t, "[]")
	want := &ColumnFilter{Kind: ColumnKindArray, Array: nil}
	assertColumnEqual(t, "[]", got, want)
}

func TestParseColumnFilterArrayNested(t *testing.T) {
	got := mustParseColumn(t, "a.[].[].b")
	want := &ColumnFilter{Kind: ColumnKindStruct, Struct: map[string]*ColumnFilter{
		"a": {Kind: ColumnKindArray, Array: &ColumnFilter{
			Kind: ColumnKindArray, Array: &ColumnFilter{
				Kind: ColumnKindStruct, Struct: map[string]*ColumnFilter{"b": nil},
			},
		}},
	}}
	assertColumnEqual(t, "a.[].[].b", got, want)
}

// a,b -> {a, b}
func TestParseColumnFilterMergeStructSimple(t *testing.T) {
	got := mustParseColumn(t, "a,b")
	want := &ColumnFilter{Kind: ColumnKindStruct, Struct: map[string]*ColumnFilter{"a": nil, "b": nil}}
	assertColumnEqual(t, "a,b", got, want)
}

// a,a.b -> {a} (None dominates and widens)
func TestParseColumnFilterMergeStructWiden(t *testing.T) {
	got := mustParseColumn(t, "a,a.b")
	want := &ColumnFilter{Kind: ColumnKindStruct, Struct: map[string]*ColumnFilter{"a": nil}}
	assertColumnEqual(t, "a,a.b", got, want)
}

// a.b,a.c -> {a: {b, c}}
func TestParseColumnFilterMergeStructNested(t *testing.T) {
	got := mustParseColumn(t, "a.b,a.c")
	want := &ColumnFilter{Kind: ColumnKindStruct, Struct: map[string]*ColumnFilter{
		"a": {Kind: ColumnKindStruct, Struct: map[string]*ColumnFilter{"b": nil, "c": nil}},
	}}
	assertColumnEqual(t, "a.b,a.c", got, want)
}

// a.(b,c),a.d -> {a: {b, c, d}}
func TestParseColumnFilterMergeNestedGroup(t *testing.T) {
	got := mustParseColumn(t, "a.(b,c),a.d")
	want := &ColumnFilter{Kind: ColumnKindStruct, Struct: map[string]*ColumnFilter{
		"a": {Kind: ColumnKindStruct, Struct: map[string]*ColumnFilter{"b": nil, "c": nil, "d": nil}},
	}}
	assertColumnEqual(t, "a.(b,c),a.d", got, want)
}

// [].a,[].b -> [{a, b}]
func TestParseColumnFilterMergeArrayChildren(t *testing.T) {
	got := mustParseColumn(t, "[].a,[].b")
	want := &ColumnFilter{Kind: ColumnKindArray, Array: &ColumnFilter{
		Kind: ColumnKindStruct, Struct: map[string]*ColumnFilter{"a": nil, "b": nil},
	}}
	assertColumnEqual(t, "[].a,[].b", got, want)
}

func TestMergeStructArrayMismatchProducesWarning(t *testing.T) {
	structFilter := &ColumnFilter{Kind: ColumnKindStruct, Struct: map[string]*ColumnFilter{"a": nil}}
	arrayFilter := &ColumnFilter{Kind: ColumnKindArray, Array: nil}

	_, warnings := Merge(structFilter, arrayFilter)
	if len(warnings) == 0 {
		t.Fatal("expected a warning for a struct/array merge mismatch, got none")
	}
}

// a.b,a.[] -> the clash is nested under key "a", not at the top level;
// the warning must still surface out of mergeStruct's recursive call.
func TestParseColumnFilterNestedStructArrayMismatchSurfacesWarning(t *testing.T) {
	w, err := ParseColumnFilter("a.b,a.[]")
	if err != nil {
		t.Fatalf("ParseColumnFilter(%q): unexpected hard error: %v", "a.b,a.[]", err)
	}
	if len(w.Messages) == 0 {
		t.Fatal("expected a warning for the nested struct/array mismatch under key \"a\"")
	}
}

// a,[] -> a struct/array clash in a top-level comma chain must not fail
// the parse: it widens to "select all" and surfaces as a warning.
func TestParseColumnFilterStructArrayMismatchWidensWithWarning(t *testing.T) {
	w, err := ParseColumnFilter("a,[]")
	if err != nil {
		t.Fatalf("ParseColumnFilter(%q): unexpected hard error: %v", "a,[]", err)
	}
	if len(w.Messages) == 0 {
		t.Fatal("expected a warning for the struct/array mismatch")
	}
	if w.Value == nil {
		t.Fatal("expected a widened value instead of a dropped result")
	}
}

func assertColumnEqual(t *testing.T, input string, got, want *ColumnFilter) {
	t.Helper()
	if !columnEqual(got, want) {
		t.Errorf("ParseColumnFilter(%q) = %+v, want %+v", input, got, want)
	}
}

func columnEqual(a, b *ColumnFilter) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case ColumnKindStruct:
		if len(a.Struct) != len(b.Struct) {
			return false
		}
		for k, av := range a.Struct {
			bv, ok := b.Struct[k]
			if !ok || !columnEqual(av, bv) {
				return false
			}
		}
		return true
	case ColumnKindArray:
		return columnEqual(a.Array, b.Array)
	}
	return false
}
