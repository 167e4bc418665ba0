package query

import "github.com/covault/covault/internal/common"

// Relation names an ordering relation between a field and a value. The names
// map 1:1 onto the $gt/$gte/$lt/$lte operators and plain/negated equality.
type Relation string

const (
	RelationHigher      Relation = "HIGHER"
	RelationHigherEqual Relation = "HIGHER_EQUAL"
	RelationLower       Relation = "LOWER"
	RelationLowerEqual  Relation = "LOWER_EQUAL"
	RelationEqual       Relation = "EQUAL"
	RelationNotEqual    Relation = "NOT_EQUAL"
)

// ParseRelation validates a relation name, failing fast on anything unknown.
func ParseRelation(name string) (Relation, error) {
	switch r := Relation(name); r {
	case RelationHigher, RelationHigherEqual, RelationLower,
		RelationLowerEqual, RelationEqual, RelationNotEqual:
		return r, nil
	default:
		return "", common.NewError(common.CodeInvalidParams, "unknown relation %q", name)
	}
}

// Cmp builds the expression comparing field to value under the relation.
func Cmp(rel Relation, field string, value any) (Expr, error) {
	switch rel {
	case RelationHigher:
		return Gt(field, value), nil
	case RelationHigherEqual:
		return Gte(field, value), nil
	case RelationLower:
		return Lt(field, value), nil
	case RelationLowerEqual:
		return Lte(field, value), nil
	case RelationEqual:
		return Eq(field, value), nil
	case RelationNotEqual:
		return Neq(field, value), nil
	default:
		return nil, common.NewError(common.CodeInvalidParams, "unknown relation %q", string(rel))
	}
}
