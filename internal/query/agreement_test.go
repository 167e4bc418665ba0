package query

import (
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// The evaluator must agree with an independently written interpreter on a
// generated corpus of expression trees and documents. refMatches below
// shares no code with eval.go; a divergence between the two flags a semantic
// bug in one of them.
func TestMatches_AgreesWithReference(t *testing.T) {
	c := &corpus{rng: rand.New(rand.NewSource(42))}

	for i := 0; i < 500; i++ {
		e := c.expr(3)
		for j := 0; j < 5; j++ {
			doc := c.doc()
			got, err := Matches(e, doc)
			require.NoError(t, err, "expr %v", e)
			require.Equal(t, refMatches(e, doc), got, "expr %v doc %v", e, doc)
		}
	}
}

// corpus generates random expressions and documents. Strings stay in
// [a-z0-9] so collated and byte-wise ordering coincide, and float scalars
// stay whole so number-to-string coercion yields plain digit strings.
type corpus struct {
	rng *rand.Rand
}

func (c *corpus) scalar() any {
	switch c.rng.Intn(4) {
	case 0:
		return c.rng.Intn(10)
	case 1:
		return []string{"apple", "berry", "cherry", "7"}[c.rng.Intn(4)]
	case 2:
		return c.rng.Intn(2) == 0
	default:
		return float64(c.rng.Intn(10))
	}
}

func (c *corpus) fieldValue() any {
	switch c.rng.Intn(6) {
	case 0, 1:
		return c.scalar()
	case 2:
		arr := make([]any, c.rng.Intn(3))
		for i := range arr {
			arr[i] = c.scalar()
		}
		return arr
	case 3:
		return map[string]any{"x": c.scalar()}
	case 4:
		arr := make([]any, 1+c.rng.Intn(2))
		for i := range arr {
			arr[i] = map[string]any{"x": c.scalar()}
		}
		return arr
	default:
		return nil
	}
}

func (c *corpus) doc() map[string]any {
	doc := map[string]any{}
	for _, f := range []string{"a", "b", "c"} {
		if c.rng.Intn(4) > 0 {
			doc[f] = c.fieldValue()
		}
	}
	return doc
}

func (c *corpus) field() string {
	return []string{"a", "b", "c", "b.x", "c.x"}[c.rng.Intn(5)]
}

func (c *corpus) list() []any {
	vals := make([]any, 1+c.rng.Intn(3))
	for i := range vals {
		vals[i] = c.scalar()
	}
	return vals
}

func (c *corpus) predicate() Expr {
	field := c.field()
	switch c.rng.Intn(11) {
	case 0:
		return Eq(field, c.scalar())
	case 1:
		return Neq(field, c.scalar())
	case 2:
		return Gt(field, c.scalar())
	case 3:
		return Gte(field, c.scalar())
	case 4:
		return Lt(field, c.scalar())
	case 5:
		return Lte(field, c.scalar())
	case 6:
		return In(field, c.list())
	case 7:
		return Nin(field, c.list())
	case 8:
		return Exists(field, c.rng.Intn(2) == 0)
	case 9:
		return Regex(field, []string{"^a", "rr", "7", "err?y"}[c.rng.Intn(4)])
	default:
		return Expr{field: map[string]any{"$not": map[string]any{"$gt": c.rng.Intn(10)}}}
	}
}

func (c *corpus) expr(depth int) Expr {
	if depth == 0 || c.rng.Intn(3) == 0 {
		e := c.predicate()
		// Sometimes a conjunctive multi-field map.
		if c.rng.Intn(5) == 0 {
			for k, v := range c.predicate() {
				e[k] = v
			}
		}
		return e
	}
	op := []string{"$and", "$or", "$nor"}[c.rng.Intn(3)]
	children := make([]Expr, c.rng.Intn(4))
	for i := range children {
		children[i] = c.expr(depth - 1)
	}
	return Expr{op: children}
}

// refMatches is the reference interpreter for the generated subset: plain
// map/slice documents, builder-shaped combinators, single-operator
// conditions.
func refMatches(e Expr, doc map[string]any) bool {
	for key, arg := range e {
		var ok bool
		switch key {
		case "$and":
			ok = true
			for _, child := range arg.([]Expr) {
				if !refMatches(child, doc) {
					ok = false
					break
				}
			}
		case "$or":
			children := arg.([]Expr)
			ok = len(children) == 0
			for _, child := range children {
				if refMatches(child, doc) {
					ok = true
					break
				}
			}
		case "$nor":
			ok = true
			for _, child := range arg.([]Expr) {
				if refMatches(child, doc) {
					ok = false
					break
				}
			}
		default:
			ok = refPath(doc, strings.Split(key, "."), arg)
		}
		if !ok {
			return false
		}
	}
	return true
}

func refPath(v any, path []string, cond any) bool {
	if len(path) == 0 {
		return refCond(v, cond, true)
	}
	switch t := v.(type) {
	case []any:
		for _, el := range t {
			if refPath(el, path, cond) {
				return true
			}
		}
		return false
	case map[string]any:
		child, ok := t[path[0]]
		if !ok {
			return refCond(nil, cond, false)
		}
		return refPath(child, path[1:], cond)
	default:
		return refCond(nil, cond, false)
	}
}

func refCond(v, cond any, present bool) bool {
	ops, isOp := cond.(map[string]any)
	if !isOp {
		return present && refEqAtom(v, cond)
	}
	for op, arg := range ops {
		if !refOp(op, v, arg, present) {
			return false
		}
	}
	return true
}

func refOp(op string, v, arg any, present bool) bool {
	switch op {
	case "$exists":
		return arg.(bool) == present
	case "$ne":
		return !(present && refEqAtom(v, arg))
	case "$nin":
		return !refIn(v, arg, present)
	case "$not":
		return !refCond(v, arg, present)
	case "$in":
		return refIn(v, arg, present)
	}
	if !present {
		return false
	}
	switch op {
	case "$gt", "$gte", "$lt", "$lte":
		for _, atom := range refAtoms(v) {
			cmp, comparable := refCompare(atom, arg)
			if !comparable {
				continue
			}
			switch op {
			case "$gt":
				if cmp > 0 {
					return true
				}
			case "$gte":
				if cmp >= 0 {
					return true
				}
			case "$lt":
				if cmp < 0 {
					return true
				}
			default:
				if cmp <= 0 {
					return true
				}
			}
		}
		return false
	case "$regex":
		re := regexp.MustCompile(arg.(string))
		for _, atom := range refAtoms(v) {
			if s, ok := atom.(string); ok && re.MatchString(s) {
				return true
			}
		}
		return false
	}
	return false
}

// refAtoms lists the value itself plus, for arrays, each element.
func refAtoms(v any) []any {
	atoms := []any{v}
	if arr, ok := v.([]any); ok {
		atoms = append(atoms, arr...)
	}
	return atoms
}

func refEqAtom(v, arg any) bool {
	for _, atom := range refAtoms(v) {
		if refEq(atom, arg) {
			return true
		}
	}
	return false
}

func refIn(v, arg any, present bool) bool {
	if !present {
		return false
	}
	for _, item := range arg.([]any) {
		if refEqAtom(v, item) {
			return true
		}
	}
	return false
}

func refEq(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	na, aNum := refNum(a)
	nb, bNum := refNum(b)
	if aNum || bNum {
		return aNum && bNum && na == nb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !refEq(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, x := range av {
			y, found := bv[k]
			if !found || !refEq(x, y) {
				return false
			}
		}
		return true
	}
	return false
}

func refCompare(a, b any) (int, bool) {
	na, aNum := refNum(a)
	nb, bNum := refNum(b)
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
	sa, aStr := refString(a, aNum, na)
	sb, bStr := refString(b, bNum, nb)
	if aStr && bStr {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

func refString(v any, isNum bool, num float64) (string, bool) {
	if s, ok := v.(string); ok {
		return s, true
	}
	if isNum {
		return strconv.FormatFloat(num, 'f', -1, 64), true
	}
	return "", false
}

func refNum(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
