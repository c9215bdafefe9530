// Package filterlang implements the two small query-projection grammars
// used by the read path: the read filter (selects which fields of a row
// get serialized) and the column filter (merges per-request field
// selections down into a single normalized shape).
package filterlang

import (
	"strings"

	"github.com/kamura-io/cartograph/internal/cerrors"
)

// Kind tags which variant a Filter node holds.
type Kind int

const (
	KindAll Kind = iota
	KindStruct
	KindArray
)

// StructKey names a single struct field, optionally scoped to a language
// variant (e.g. a localized string column).
type StructKey struct {
	Name     string
	Language string // empty means "unspecified / default language"
}

// StructField pairs a key with the sub-filter applied under it. Fields are
// kept as an ordered list rather than a map: the grammar permits the same
// key to appear more than once at the root (e.g. "a.b,a.c"), and callers
// are expected to fold over all entries rather than assume uniqueness.
type StructField struct {
	Key    StructKey
	Filter Filter
}

// Filter is a parsed read-projection tree: KindAll selects everything,
// KindStruct descends into named fields, KindArray descends into every
// element of a repeated field.
type Filter struct {
	Kind   Kind
	Fields []StructField // valid when Kind == KindStruct
	Array  *Filter       // valid when Kind == KindArray
}

// All is the filter that selects an entire value unfiltered.
var All = Filter{Kind: KindAll}

// ParseFilter parses a read-filter string such as "a.b,a.c[].*" into a
// Filter tree. An empty string is equivalent to "*".
func ParseFilter(input string) (Filter, error) {
	p := &filterParser{input: input}
	f, err := p.rootFilter()
	if err != nil {
		return Filter{}, err
	}
	if p.pos != len(p.input) {
		return Filter{}, cerrors.NewInvalid("unexpected trailing characters in filter: " + p.input[p.pos:])
	}
	return f, nil
}

type filterParser struct {
	input string
	pos   int
}

func (p *filterParser) rest() string { return p.input[p.pos:] }

func (p *filterParser) peek() (byte, bool) {
	if p.pos >= len(p.input) {
		return 0, false
	}
	return p.input[p.pos], true
}

func (p *filterParser) consumeByte(b byte) bool {
	if c, ok := p.peek(); ok && c == b {
		p.pos++
		return true
	}
	return false
}

// rootFilter is the root-level grammar: a bare struct body with optional
// braces, or "*"/empty for All. Braces are required everywhere else in
// the grammar to keep comma-separated lists unambiguous, but the root is
// relaxed so trivial queries ("name", "name,id") stay simple to write.
func (p *filterParser) rootFilter() (Filter, error) {
	if p.consumeByte('{') {
		f, err := p.structFields()
		if err != nil {
			return Filter{}, err
		}
		if !p.consumeByte('}') {
			return Filter{}, cerrors.NewInvalid("expected closing '}' in filter")
		}
		return f, nil
	}

	if c, ok := p.peek(); !ok || c == '*' {
		if ok {
			p.pos++
		}
		return All, nil
	}

	if isAlphanumeric(p.rest()[0]) {
		return p.structFields()
	}

	return All, nil
}

// filter parses a non-root filter node, the right-hand side of a '.' or
// the start of a bracketed group.
func (p *filterParser) filter() (Filter, error) {
	p.consumeByte('.')

	if p.consumeByte('{') {
		f, err := p.structFields()
		if err != nil {
			return Filter{}, err
		}
		if !p.consumeByte('}') {
			return Filter{}, cerrors.NewInvalid("expected closing '}' in filter")
		}
		return f, nil
	}

	if strings.HasPrefix(p.rest(), "[]") {
		p.pos += 2
		child, err := p.filter()
		if err != nil {
			return Filter{}, err
		}
		return Filter{Kind: KindArray, Array: &child}, nil
	}

	if c, ok := p.peek(); ok && isAlphanumeric(c) {
		key, err := p.structKey()
		if err != nil {
			return Filter{}, err
		}
		child, err := p.filter()
		if err != nil {
			return Filter{}, err
		}
		return Filter{Kind: KindStruct, Fields: []StructField{{Key: key, Filter: child}}}, nil
	}

	if c, ok := p.peek(); !ok || c == '*' {
		if ok {
			p.pos++
		}
		return All, nil
	}

	return All, nil
}

func (p *filterParser) structFields() (Filter, error) {
	var fields []StructField
	for {
		key, err := p.structKey()
		if err != nil {
			return Filter{}, err
		}
		child, err := p.filter()
		if err != nil {
			return Filter{}, err
		}
		fields = append(fields, StructField{Key: key, Filter: child})

		if !p.consumeByte(',') {
			break
		}
	}
	return Filter{Kind: KindStruct, Fields: fields}, nil
}

func (p *filterParser) structKey() (StructKey, error) {
	name := p.takeAlphanumeric()
	if name == "" {
		return StructKey{}, cerrors.NewInvalid("expected field name at: " + p.rest())
	}

	var language string
	if p.consumeByte('@') {
		language = p.takeAlphanumeric()
		if language == "" {
			return StructKey{}, cerrors.NewInvalid("expected language tag after '@'")
		}
	}

	return StructKey{Name: name, Language: language}, nil
}

func (p *filterParser) takeAlphanumeric() string {
	start := p.pos
	for p.pos < len(p.input) && isAlphanumeric(p.input[p.pos]) {
		p.pos++
	}
	return p.input[start:p.pos]
}

func isAlphanumeric(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
