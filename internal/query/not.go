package query

import "github.com/covault/covault/internal/common"

// Not rewrites the logical negation of e. Combinators are pushed through by
// De Morgan ($and becomes $or of negated children and vice versa), a field
// condition with a single operator is rewritten to its complement, and any
// operator with no complement is wrapped in $not. Negating an expression
// with more than one key is ambiguous and fails.
func Not(e Expr) (Expr, error) {
	if len(e) != 1 {
		return nil, common.NewError(common.CodeInvalidParams,
			"cannot negate a query with %d keys", len(e))
	}
	for key, value := range e {
		switch key {
		case "$and":
			children, err := notAll(value)
			if err != nil {
				return nil, err
			}
			return Expr{"$or": children}, nil
		case "$or":
			children, err := notAll(value)
			if err != nil {
				return nil, err
			}
			return Expr{"$and": children}, nil
		case "$nor":
			children, err := exprList(value)
			if err != nil {
				return nil, err
			}
			return Expr{"$or": children}, nil
		default:
			return notField(key, value)
		}
	}
	return nil, common.NewError(common.CodeInvalidParams, "cannot negate an empty query")
}

func notAll(value any) ([]Expr, error) {
	children, err := exprList(value)
	if err != nil {
		return nil, err
	}
	out := make([]Expr, len(children))
	for i, child := range children {
		negated, err := Not(child)
		if err != nil {
			return nil, err
		}
		out[i] = negated
	}
	return out, nil
}

func notField(field string, cond any) (Expr, error) {
	ops, ok := operatorObject(cond)
	if !ok {
		// Plain equality negates to $ne.
		return Neq(field, cond), nil
	}
	if len(ops) != 1 {
		return nil, common.NewError(common.CodeInvalidParams,
			"cannot negate a condition with %d operators on %q", len(ops), field)
	}
	for op, arg := range ops {
		switch op {
		case "$ne":
			return Eq(field, arg), nil
		case "$in":
			return Expr{field: map[string]any{"$nin": arg}}, nil
		case "$nin":
			return Expr{field: map[string]any{"$in": arg}}, nil
		case "$exists":
			b, ok := arg.(bool)
			if !ok {
				return nil, common.NewError(common.CodeInvalidParams,
					"$exists argument on %q is not a boolean", field)
			}
			return Exists(field, !b), nil
		case "$gt":
			return Lte(field, arg), nil
		case "$gte":
			return Lt(field, arg), nil
		case "$lt":
			return Gte(field, arg), nil
		case "$lte":
			return Gt(field, arg), nil
		default:
			return Expr{field: map[string]any{"$not": map[string]any{op: arg}}}, nil
		}
	}
	return nil, common.NewError(common.CodeInvalidParams, "empty condition on %q", field)
}

func exprList(value any) ([]Expr, error) {
	switch list := value.(type) {
	case []Expr:
		return list, nil
	case []any:
		out := make([]Expr, len(list))
		for i, item := range list {
			switch e := item.(type) {
			case Expr:
				out[i] = e
			case map[string]any:
				out[i] = Expr(e)
			default:
				return nil, common.NewError(common.CodeInvalidParams,
					"combinator child %d is not a query", i)
			}
		}
		return out, nil
	default:
		return nil, common.NewError(common.CodeInvalidParams, "combinator argument is not a list")
	}
}

// operatorObject reports whether cond is an operator map ({"$gt": 5}, ...)
// rather than a literal value. Maps whose first key does not start with '$'
// are literals.
func operatorObject(cond any) (map[string]any, bool) {
	var m map[string]any
	switch c := cond.(type) {
	case map[string]any:
		m = c
	case Expr:
		m = c
	default:
		return nil, false
	}
	for key := range m {
		if len(key) == 0 || key[0] != '$' {
			return nil, false
		}
	}
	return m, len(m) > 0
}
