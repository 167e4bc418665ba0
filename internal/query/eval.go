package query

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/covault/covault/internal/common"
)

// Matches evaluates e against a decoded document. The document is expected
// as nested map[string]any / []any values, the shape produced by bson or
// json unmarshalling into any.
func Matches(e Expr, doc map[string]any) (bool, error) {
	return matchExpr(e, doc)
}

func matchExpr(e Expr, doc map[string]any) (bool, error) {
	for key, value := range e {
		switch key {
		case "$and":
			children, err := exprList(value)
			if err != nil {
				return false, err
			}
			for _, child := range children {
				ok, err := matchExpr(child, doc)
				if err != nil || !ok {
					return false, err
				}
			}
		case "$or":
			children, err := exprList(value)
			if err != nil {
				return false, err
			}
			// An empty $or list is vacuously true, matching Or().
			if len(children) > 0 {
				matched := false
				for _, child := range children {
					ok, err := matchExpr(child, doc)
					if err != nil {
						return false, err
					}
					if ok {
						matched = true
						break
					}
				}
				if !matched {
					return false, nil
				}
			}
		case "$nor":
			children, err := exprList(value)
			if err != nil {
				return false, err
			}
			for _, child := range children {
				ok, err := matchExpr(child, doc)
				if err != nil {
					return false, err
				}
				if ok {
					return false, nil
				}
			}
		default:
			ok, err := matchPath(doc, strings.Split(key, "."), value)
			if err != nil || !ok {
				return false, err
			}
		}
	}
	return true, nil
}

// matchPath walks the remaining path segments toward the condition's target
// value. Whenever an intermediate value is an array the rest of the path is
// evaluated against every element and the results are OR'd; this existential
// rule is uniform, not per-field.
func matchPath(value any, path []string, cond any) (bool, error) {
	if len(path) == 0 {
		return matchCond(value, cond, true)
	}
	if items, ok := asSlice(value); ok {
		for _, item := range items {
			ok, err := matchPath(item, path, cond)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	m, ok := asMap(value)
	if !ok {
		return matchCond(nil, cond, false)
	}
	child, present := m[path[0]]
	if !present {
		return matchCond(nil, cond, false)
	}
	return matchPath(child, path[1:], cond)
}

// matchCond applies a condition to a resolved value. present is false when
// the path did not resolve; only $exists:false can match then.
func matchCond(value any, cond any, present bool) (bool, error) {
	ops, isOps := operatorObject(cond)
	if !isOps {
		return present && existentialEq(value, cond), nil
	}
	for op, arg := range ops {
		ok, err := matchOp(op, value, arg, present)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchOp(op string, value, arg any, present bool) (bool, error) {
	switch op {
	case "$exists":
		want, ok := arg.(bool)
		if !ok {
			return false, common.NewError(common.CodeInvalidParams, "$exists argument is not a boolean")
		}
		return want == present, nil
	case "$ne":
		return !(present && existentialEq(value, arg)), nil
	case "$nin":
		ok, err := existentialIn(value, arg, present)
		return !ok, err
	case "$not":
		inner, ok := operatorObject(arg)
		if !ok {
			return false, common.NewError(common.CodeInvalidParams, "$not argument is not an operator object")
		}
		matched, err := matchCond(value, inner, present)
		return !matched, err
	}
	if !present {
		return false, nil
	}
	switch op {
	case "$in":
		return existentialIn(value, arg, present)
	case "$gt", "$gte", "$lt", "$lte":
		return existential(value, func(v any) (bool, error) {
			cmp, comparable := compareOrder(v, arg)
			if !comparable {
				return false, nil
			}
			switch op {
			case "$gt":
				return cmp > 0, nil
			case "$gte":
				return cmp >= 0, nil
			case "$lt":
				return cmp < 0, nil
			default:
				return cmp <= 0, nil
			}
		})
	case "$regex":
		re, err := compileRegex(arg)
		if err != nil {
			return false, err
		}
		return existential(value, func(v any) (bool, error) {
			s, ok := v.(string)
			return ok && re.MatchString(s), nil
		})
	default:
		return false, common.NewError(common.CodeInvalidParams, "unknown query operator %q", op)
	}
}

// existential applies a predicate to the value directly and, when the value
// is an array, to each of its elements.
func existential(value any, pred func(any) (bool, error)) (bool, error) {
	ok, err := pred(value)
	if err != nil || ok {
		return ok, err
	}
	if items, isSlice := asSlice(value); isSlice {
		for _, item := range items {
			ok, err := pred(item)
			if err != nil || ok {
				return ok, err
			}
		}
	}
	return false, nil
}

func existentialEq(value, arg any) bool {
	ok, _ := existential(value, func(v any) (bool, error) { return looseEqual(v, arg), nil })
	return ok
}

func existentialIn(value, arg any, present bool) (bool, error) {
	items, ok := asSlice(arg)
	if !ok {
		return false, common.NewError(common.CodeInvalidParams, "$in/$nin argument is not a list")
	}
	if !present {
		return false, nil
	}
	return existential(value, func(v any) (bool, error) {
		for _, item := range items {
			if looseEqual(v, item) {
				return true, nil
			}
		}
		return false, nil
	})
}

func compileRegex(arg any) (*regexp.Regexp, error) {
	switch p := arg.(type) {
	case *regexp.Regexp:
		return p, nil
	case string:
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, common.NewError(common.CodeInvalidParams, "invalid $regex pattern: %v", err)
		}
		return re, nil
	default:
		return nil, common.NewError(common.CodeInvalidParams, "$regex argument is not a pattern")
	}
}

// looseEqual compares two decoded values, treating all numeric types as one
// domain so int(3) from a builder equals float64(3) from a decoder.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if na, aNum := toFloat(a); aNum {
		nb, bNum := toFloat(b)
		return bNum && na == nb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	if as, ok := asSlice(a); ok {
		bs, ok := asSlice(b)
		if !ok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !looseEqual(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	if am, ok := asMap(a); ok {
		bm, ok := asMap(b)
		if !ok || len(am) != len(bm) {
			return false
		}
		for k, av := range am {
			bv, present := bm[k]
			if !present || !looseEqual(av, bv) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

var (
	collatorMu sync.Mutex
	collator   = collate.New(language.Und)
)

// compareOrder defines ordering for $gt/$gte/$lt/$lte: two numbers compare
// numerically, two strings compare through the collator, a number and a
// string compare as strings after coercing the number. Anything else is not
// comparable and the predicate evaluates false.
func compareOrder(a, b any) (int, bool) {
	na, aNum := toFloat(a)
	nb, bNum := toFloat(b)
	if aNum && bNum {
		switch {
		case na < nb:
			return -1, true
		case na > nb:
			return 1, true
		default:
			return 0, true
		}
	}
	sa, aStr := asString(a, aNum, na)
	sb, bStr := asString(b, bNum, nb)
	if aStr && bStr {
		collatorMu.Lock()
		defer collatorMu.Unlock()
		return collator.CompareString(sa, sb), true
	}
	return 0, false
}

func asString(v any, isNum bool, num float64) (string, bool) {
	if s, ok := v.(string); ok {
		return s, true
	}
	if isNum {
		return strconv.FormatFloat(num, 'f', -1, 64), true
	}
	return "", false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		// Byte blobs are scalars, not element lists.
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Expr:
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	for _, k := range rv.MapKeys() {
		out[fmt.Sprint(k.Interface())] = rv.MapIndex(k).Interface()
	}
	return out, true
}
