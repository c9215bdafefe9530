package query

import (
	"testing"

	"github.com/kamura-io/cartograph/internal/cerrors"
)

type fakeSchema struct {
	columns map[string]Column // key: sheet + "." + field
}

func (s *fakeSchema) Resolve(sheet, field, language string) (Column, bool) {
	c, ok := s.columns[sheet+"."+field]
	return c, ok
}

func TestNormalizeLeafSuccess(t *testing.T) {
	schema := &fakeSchema{columns: map[string]Column{
		"Item.Name": {Name: "Name", Kind: ValueString},
	}}

	pre := Leaf("Name", Operation[string]{Kind: OpEqual, Value: StringValue("Potion")})
	post, err := Normalize(pre, schema, "Item", "en")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if post.Field.Name != "Name" {
		t.Errorf("Field = %+v, want Name", post.Field)
	}
}

func TestNormalizeLeafSchemaMismatch(t *testing.T) {
	schema := &fakeSchema{columns: map[string]Column{}}

	pre := Leaf("Missing", Operation[string]{Kind: OpEqual, Value: StringValue("x")})
	_, err := Normalize(pre, schema, "Item", "en")
	if !cerrors.IsSchemaMismatch(err) {
		t.Fatalf("expected SchemaMismatch, got %v", err)
	}
}

func TestNormalizeClausePropagatesFirstError(t *testing.T) {
	schema := &fakeSchema{columns: map[string]Column{
		"Item.Name": {Name: "Name", Kind: ValueString},
	}}

	pre := ClauseOf(
		ClauseEntry[string]{Occur: Must, Node: Leaf("Name", Operation[string]{Kind: OpEqual, Value: StringValue("a")})},
		ClauseEntry[string]{Occur: Must, Node: Leaf("Missing", Operation[string]{Kind: OpEqual, Value: StringValue("b")})},
	)

	_, err := Normalize(pre, schema, "Item", "en")
	if !cerrors.IsSchemaMismatch(err) {
		t.Fatalf("expected SchemaMismatch, got %v", err)
	}
}

func TestNormalizeRelationResolvesAgainstTargetSchema(t *testing.T) {
	schema := &fakeSchema{columns: map[string]Column{
		"Item.Recipe":    {Name: "Recipe", Kind: ValueInt},
		"Recipe.ItemKey": {Name: "ItemKey", Kind: ValueInt},
	}}

	sub := Leaf("ItemKey", Operation[string]{Kind: OpEqual, Value: IntValue(5)})
	pre := Leaf("Recipe", Operation[string]{
		Kind:           OpRelation,
		RelationTarget: "Recipe",
		RelationSub:    &sub,
	})

	post, err := Normalize(pre, schema, "Item", "en")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if post.Operation.RelationSub == nil || post.Operation.RelationSub.Field.Name != "ItemKey" {
		t.Fatalf("relation sub not resolved against target schema: %+v", post.Operation.RelationSub)
	}
}
