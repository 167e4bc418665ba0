// Package query provides a typed, backend-agnostic boolean filter AST with a
// fluent builder, a negation rewriter, and an in-memory evaluator. A built
// expression never executes anything by itself; it is either translated to a
// native database filter or fed to Matches.
package query

// Expr is a single filter node. It is either a logical combinator
// ({$and|$or|$nor: [...]}) or a map of dotted field paths to a plain value
// (equality) or an operator object ({$gt: v}, {$in: [...]}, ...).
type Expr map[string]any

// Empty reports whether e constrains nothing. An empty expression matches
// every document.
func (e Expr) Empty() bool { return len(e) == 0 }

// Eq matches documents whose field equals value.
func Eq(field string, value any) Expr {
	return Expr{field: value}
}

// Neq matches documents whose field does not equal value.
func Neq(field string, value any) Expr {
	return Expr{field: map[string]any{"$ne": value}}
}

// In matches documents whose field equals one of values.
func In[T any](field string, values []T) Expr {
	return Expr{field: map[string]any{"$in": anySlice(values)}}
}

// Nin matches documents whose field equals none of values.
func Nin[T any](field string, values []T) Expr {
	return Expr{field: map[string]any{"$nin": anySlice(values)}}
}

// Exists matches documents where the field is present (or absent).
func Exists(field string, exists bool) Expr {
	return Expr{field: map[string]any{"$exists": exists}}
}

// Gt matches documents whose field orders strictly above value.
func Gt(field string, value any) Expr {
	return Expr{field: map[string]any{"$gt": value}}
}

// Gte matches documents whose field orders at or above value.
func Gte(field string, value any) Expr {
	return Expr{field: map[string]any{"$gte": value}}
}

// Lt matches documents whose field orders strictly below value.
func Lt(field string, value any) Expr {
	return Expr{field: map[string]any{"$lt": value}}
}

// Lte matches documents whose field orders at or below value.
func Lte(field string, value any) Expr {
	return Expr{field: map[string]any{"$lte": value}}
}

// Regex matches documents whose string field matches pattern. The pattern is
// either an uncompiled string or a *regexp.Regexp.
func Regex(field string, pattern any) Expr {
	return Expr{field: map[string]any{"$regex": pattern}}
}

// And combines expressions conjunctively. Zero expressions yield the empty
// query, one yields the expression itself.
func And(exprs ...Expr) Expr {
	return combine("$and", exprs)
}

// Or combines expressions disjunctively. Zero expressions yield the empty
// query (an empty $or list is vacuously true), one yields the expression
// itself.
func Or(exprs ...Expr) Expr {
	return combine("$or", exprs)
}

// Nor matches documents matching none of the expressions.
func Nor(exprs ...Expr) Expr {
	return Expr{"$nor": exprs}
}

func combine(op string, exprs []Expr) Expr {
	switch len(exprs) {
	case 0:
		return Expr{}
	case 1:
		return exprs[0]
	default:
		return Expr{op: exprs}
	}
}

func anySlice[T any](values []T) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
