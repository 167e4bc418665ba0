package mongodocs

import (
	"regexp"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/covault/covault/internal/common"
	"github.com/covault/covault/internal/query"
)

// Translate converts a query expression into a native MongoDB filter. The
// operator vocabulary is shared, so translation is mostly structural:
// combinator lists become bson arrays and precompiled regexps become native
// regex values.
func Translate(e query.Expr) (bson.M, error) {
	out := bson.M{}
	for key, value := range e {
		switch key {
		case "$and", "$or", "$nor":
			children, err := translateList(value)
			if err != nil {
				return nil, err
			}
			out[key] = children
		default:
			cond, err := translateCond(value)
			if err != nil {
				return nil, err
			}
			out[key] = cond
		}
	}
	return out, nil
}

func translateList(value any) (bson.A, error) {
	var children []query.Expr
	switch list := value.(type) {
	case []query.Expr:
		children = list
	case []any:
		for _, item := range list {
			switch e := item.(type) {
			case query.Expr:
				children = append(children, e)
			case map[string]any:
				children = append(children, query.Expr(e))
			default:
				return nil, common.NewError(common.CodeInvalidParams, "combinator child is not a query")
			}
		}
	default:
		return nil, common.NewError(common.CodeInvalidParams, "combinator argument is not a list")
	}
	out := make(bson.A, len(children))
	for i, child := range children {
		t, err := Translate(child)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func translateCond(cond any) (any, error) {
	switch c := cond.(type) {
	case map[string]any:
		if isOperatorMap(c) {
			out := bson.M{}
			for op, arg := range c {
				v, err := translateArg(op, arg)
				if err != nil {
					return nil, err
				}
				out[op] = v
			}
			return out, nil
		}
		return c, nil
	case query.Expr:
		return translateCond(map[string]any(c))
	case *regexp.Regexp:
		return bson.Regex{Pattern: c.String()}, nil
	default:
		return cond, nil
	}
}

func translateArg(op string, arg any) (any, error) {
	if op == "$regex" {
		switch p := arg.(type) {
		case *regexp.Regexp:
			return bson.Regex{Pattern: p.String()}, nil
		case string:
			return bson.Regex{Pattern: p}, nil
		default:
			return nil, common.NewError(common.CodeInvalidParams, "$regex argument is not a pattern")
		}
	}
	if op == "$not" {
		return translateCond(arg)
	}
	return arg, nil
}

func isOperatorMap(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for key := range m {
		if len(key) == 0 || key[0] != '$' {
			return false
		}
	}
	return true
}
