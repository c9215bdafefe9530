package query

import (
	"fmt"

	"github.com/kamura-io/cartograph/internal/cerrors"
)

// Schema supplies field-name → column resolution for one sheet, bound
// per query. The concrete implementation is owned by the external
// schema-provider collaborator (out of scope here, per spec §6).
type Schema interface {
	// Resolve looks up field on the schema for the given sheet and
	// language, returning the concrete Column it maps to. ok is false if
	// the field does not exist on this sheet's schema at all.
	Resolve(sheet, field, language string) (Column, bool)
}

// Normalize binds every Leaf field reference in a PreQuery to a concrete
// Column via schema, for one sheet and language. A field absent from the
// schema produces a SchemaMismatch error (the semantically
// "not applicable here" outcome that fan-out callers should suppress);
// any other malformed shape is reported as an *cerrors.Invalid.
func Normalize(n PreQuery, schema Schema, sheet, language string) (PostQuery, error) {
	switch n.Kind {
	case NodeLeaf:
		return normalizeLeaf(n, schema, sheet, language)
	case NodeClause:
		return normalizeClause(n, schema, sheet, language)
	default:
		return PostQuery{}, cerrors.NewInvalid(fmt.Sprintf("unknown node kind %d", n.Kind))
	}
}

func normalizeLeaf(n PreQuery, schema Schema, sheet, language string) (PostQuery, error) {
	column, ok := schema.Resolve(sheet, n.Field, language)
	if !ok {
		return PostQuery{}, &cerrors.SchemaMismatch{Sheet: sheet, Field: n.Field}
	}

	op, err := normalizeOperation(n.Operation, schema, sheet, language)
	if err != nil {
		return PostQuery{}, err
	}

	return Leaf(column, op), nil
}

func normalizeOperation(op Operation[string], schema Schema, sheet, language string) (Operation[Column], error) {
	out := Operation[Column]{
		Kind:      op.Kind,
		Value:     op.Value,
		Compare:   op.Compare,
		MatchText: op.MatchText,

		RelationTarget: op.RelationTarget,
	}

	if op.Kind != OpRelation {
		return out, nil
	}

	// Relation sub-trees are normalized against the *target* sheet's
	// schema, not the current sheet: a relation leaf asks "does some row
	// in target satisfy sub", so field references inside sub and cond
	// belong to target's schema.
	if op.RelationSub != nil {
		sub, err := Normalize(*op.RelationSub, schema, op.RelationTarget, language)
		if err != nil {
			return Operation[Column]{}, err
		}
		out.RelationSub = &sub
	}
	if op.RelationCondition != nil {
		cond, err := Normalize(*op.RelationCondition, schema, op.RelationTarget, language)
		if err != nil {
			return Operation[Column]{}, err
		}
		out.RelationCondition = &cond
	}

	return out, nil
}

func normalizeClause(n PreQuery, schema Schema, sheet, language string) (PostQuery, error) {
	entries := make([]ClauseEntry[Column], 0, len(n.Clause))
	for _, entry := range n.Clause {
		child, err := Normalize(entry.Node, schema, sheet, language)
		if err != nil {
			return PostQuery{}, err
		}
		entries = append(entries, ClauseEntry[Column]{Occur: entry.Occur, Node: child})
	}
	return ClauseOf(entries...), nil
}
