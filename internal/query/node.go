// Package query defines the structural query AST, in both its
// pre-normalization (field references by logical name) and
// post-normalization (field references bound to a concrete schema
// column) forms, and the normalization pass between them.
package query

// Occur mirrors a boolean-query occurrence constraint, the same
// vocabulary most full-text engines use for clause composition.
type Occur int

const (
	Must Occur = iota
	Should
	MustNot
)

// CompareOp is a scalar ordering comparison supplied by the index layer.
type CompareOp int

const (
	CompareLT CompareOp = iota
	CompareLTE
	CompareGT
	CompareGTE
)

// ValueKind tags which scalar variant a Value holds.
type ValueKind int

const (
	ValueString ValueKind = iota
	ValueInt
	ValueFloat
	ValueBool
)

// Value is a scalar literal used on the right-hand side of an operation.
type Value struct {
	Kind   ValueKind
	String string
	Int    int64
	Float  float64
	Bool   bool
}

func StringValue(s string) Value  { return Value{Kind: ValueString, String: s} }
func IntValue(i int64) Value      { return Value{Kind: ValueInt, Int: i} }
func FloatValue(f float64) Value  { return Value{Kind: ValueFloat, Float: f} }
func BoolValue(b bool) Value      { return Value{Kind: ValueBool, Bool: b} }

// OpKind tags which operation variant a Leaf's Operation holds.
type OpKind int

const (
	OpEqual OpKind = iota
	OpCompare
	OpMatch    // free-text term match, delegated to the index layer
	OpRelation // join-like sub-query against another sheet
)

// Operation is the predicate attached to a Leaf. Field is generic over F
// so the same shape serves both the pre-query (F = string, a logical
// field name) and post-query (F = Column, a schema-bound column) trees.
type Operation[F any] struct {
	Kind OpKind

	// OpEqual / OpCompare
	Value   Value
	Compare CompareOp

	// OpMatch
	MatchText string

	// OpRelation: target is always named by logical sheet name, even in
	// the post-query tree, since relation resolution happens at search
	// time against the version's index map, not at normalization time.
	RelationTarget    string
	RelationCondition *Node[F]
	RelationSub       *Node[F]
}

// NodeKind tags which variant a Node holds.
type NodeKind int

const (
	NodeLeaf NodeKind = iota
	NodeClause
)

// ClauseEntry pairs one sub-node with its occurrence constraint within an
// enclosing Clause.
type ClauseEntry[F any] struct {
	Occur Occur
	Node  Node[F]
}

// Node is either a Leaf (a field reference plus an Operation) or a
// Clause (a boolean combination of child nodes).
type Node[F any] struct {
	Kind NodeKind

	// NodeLeaf
	Field     F
	Operation Operation[F]

	// NodeClause
	Clause []ClauseEntry[F]
}

// Leaf builds a NodeLeaf.
func Leaf[F any](field F, op Operation[F]) Node[F] {
	return Node[F]{Kind: NodeLeaf, Field: field, Operation: op}
}

// ClauseOf builds a NodeClause from its entries.
func ClauseOf[F any](entries ...ClauseEntry[F]) Node[F] {
	return Node[F]{Kind: NodeClause, Clause: entries}
}

// PreQuery is the form a caller submits: field references are plain
// logical names.
type PreQuery = Node[string]

// PostQuery is the form evaluated by an Index: every field reference has
// been resolved to a concrete schema Column.
type PostQuery = Node[Column]

// PostQueryBySheet maps a sheet name to the query normalized against
// that sheet's schema, the shape a multi-sheet search fan-out consumes.
type PostQueryBySheet = map[string]PostQuery

// Column is a schema-bound field reference: a physical column plus the
// value type the index should expect there.
type Column struct {
	Name     string
	Language string
	Kind     ValueKind
}
