package filterlang

import (
	"strings"

	"github.com/kamura-io/cartograph/internal/cerrors"
)

// ColumnKind tags which variant a ColumnFilter node holds.
type ColumnKind int

const (
	ColumnKindStruct ColumnKind = iota
	ColumnKindArray
)

// ColumnFilter is a merge-oriented projection: unlike Filter, a nil child
// filter means "select everything below this point" (None dominates), and
// struct entries are deduplicated by key as they merge.
type ColumnFilter struct {
	Kind   ColumnKind
	Struct map[string]*ColumnFilter // valid when Kind == ColumnKindStruct
	Array  *ColumnFilter            // valid when Kind == ColumnKindArray, nil means "all"
}

// ParseColumnFilter parses a comma-separated column-filter string such as
// "a.(b,c),a.d" into a single merged ColumnFilter. A struct/array clash
// between two comma-separated terms does not fail the parse: it widens
// to the broader side and is reported back as a warning.
func ParseColumnFilter(input string) (cerrors.Warnings[*ColumnFilter], error) {
	p := &columnParser{input: input}
	f, err := p.group()
	if err != nil {
		return cerrors.Warnings[*ColumnFilter]{}, err
	}
	if p.pos != len(p.input) {
		return cerrors.Warnings[*ColumnFilter]{}, cerrors.NewInvalid("unexpected trailing characters in column filter: " + p.input[p.pos:])
	}
	return cerrors.Warnings[*ColumnFilter]{Value: f, Messages: p.warnings}, nil
}

// Merge combines two ColumnFilter trees. Struct merges recurse per key;
// Array merges recurse into the child; a Struct/Array clash cannot be
// reconciled and is reported as a warning rather than a hard failure, per
// the soft-fail-with-warning policy for projection mismatches. Warnings
// from nested clashes (e.g. under a shared struct key several levels
// down) are all returned, not just the outermost one.
func Merge(target, source *ColumnFilter) (*ColumnFilter, []*Warning) {
	if target == nil || source == nil {
		return nil, nil
	}

	switch {
	case target.Kind == ColumnKindStruct && source.Kind == ColumnKindStruct:
		return mergeStruct(target, source)

	case target.Kind == ColumnKindArray && source.Kind == ColumnKindArray:
		return mergeArray(target, source)

	default:
		// Can't merge a struct projection with an array projection: keep
		// whichever side is wider (the nil-dominates, "select everything"
		// side) and surface a warning so the caller knows detail was lost.
		if target.Array == nil && target.Kind == ColumnKindArray {
			return target, []*Warning{{Message: "column filter mismatch: struct merged with array, widened to select all"}}
		}
		if source.Array == nil && source.Kind == ColumnKindArray {
			return source, []*Warning{{Message: "column filter mismatch: struct merged with array, widened to select all"}}
		}
		return target, []*Warning{{Message: "column filter mismatch: incompatible struct/array shapes"}}
	}
}

func mergeStruct(target, source *ColumnFilter) (*ColumnFilter, []*Warning) {
	result := &ColumnFilter{Kind: ColumnKindStruct, Struct: make(map[string]*ColumnFilter, len(target.Struct))}
	for k, v := range target.Struct {
		result.Struct[k] = v
	}

	var warnings []*Warning
	for key, sourceValue := range source.Struct {
		targetValue, exists := result.Struct[key]
		switch {
		case !exists:
			result.Struct[key] = sourceValue
		case targetValue != nil && sourceValue != nil:
			merged, warn := Merge(targetValue, sourceValue)
			result.Struct[key] = merged
			warnings = append(warnings, warn...)
		default:
			// Either side is nil ("select everything" under this key):
			// nil dominates and widens the merge.
			result.Struct[key] = nil
		}
	}

	return result, warnings
}

func mergeArray(target, source *ColumnFilter) (*ColumnFilter, []*Warning) {
	if target.Array == nil || source.Array == nil {
		return &ColumnFilter{Kind: ColumnKindArray, Array: nil}, nil
	}
	merged, warn := Merge(target.Array, source.Array)
	return &ColumnFilter{Kind: ColumnKindArray, Array: merged}, warn
}

// Warning carries a non-fatal issue discovered while merging or applying
// a column filter.
type Warning struct {
	Message string
}

type columnParser struct {
	input    string
	pos      int
	warnings []string
}

func (p *columnParser) rest() string { return p.input[p.pos:] }

func (p *columnParser) peek() (byte, bool) {
	if p.pos >= len(p.input) {
		return 0, false
	}
	return p.input[p.pos], true
}

func (p *columnParser) consumeByte(b byte) bool {
	if c, ok := p.peek(); ok && c == b {
		p.pos++
		return true
	}
	return false
}

// group parses one or more comma-separated filters and merges them
// left-to-right into a single ColumnFilter.
func (p *columnParser) group() (*ColumnFilter, error) {
	first, err := p.filter()
	if err != nil {
		return nil, err
	}

	acc := first
	for p.consumeByte(',') {
		next, err := p.filter()
		if err != nil {
			return nil, err
		}
		merged, warnings := Merge(acc, next)
		for _, warn := range warnings {
			p.warnings = append(p.warnings, warn.Message)
		}
		acc = merged
	}

	return acc, nil
}

func (p *columnParser) filter() (*ColumnFilter, error) {
	if strings.HasPrefix(p.rest(), "[]") {
		return p.arrayIndex()
	}
	if c, ok := p.peek(); ok && isAlphanumeric(c) {
		return p.structEntry()
	}
	if p.consumeByte('(') {
		f, err := p.group()
		if err != nil {
			return nil, err
		}
		if !p.consumeByte(')') {
			return nil, cerrors.NewInvalid("expected closing ')' in column filter")
		}
		return f, nil
	}
	return nil, cerrors.NewInvalid("unexpected character in column filter at: " + p.rest())
}

func (p *columnParser) chainedFilter() (*ColumnFilter, error) {
	if !p.consumeByte('.') {
		return nil, nil
	}
	return p.filter()
}

func (p *columnParser) structEntry() (*ColumnFilter, error) {
	key := p.takeAlphanumeric()
	if key == "" {
		return nil, cerrors.NewInvalid("expected field name in column filter at: " + p.rest())
	}
	child, err := p.chainedFilter()
	if err != nil {
		return nil, err
	}
	return &ColumnFilter{Kind: ColumnKindStruct, Struct: map[string]*ColumnFilter{key: child}}, nil
}

func (p *columnParser) arrayIndex() (*ColumnFilter, error) {
	p.pos += 2
	child, err := p.chainedFilter()
	if err != nil {
		return nil, err
	}
	return &ColumnFilter{Kind: ColumnKindArray, Array: child}, nil
}

func (p *columnParser) takeAlphanumeric() string {
	start := p.pos
	for p.pos < len(p.input) && isAlphanumeric(p.input[p.pos]) {
		p.pos++
	}
	return p.input[start:p.pos]
}
