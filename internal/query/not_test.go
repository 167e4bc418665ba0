package query

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNot_SimplePredicates(t *testing.T) {
	cases := []struct {
		name string
		in   Expr
		want Expr
	}{
		{"eq", Eq("a", 1), Neq("a", 1)},
		{"neq", Neq("a", 1), Eq("a", 1)},
		{"gt", Gt("a", 1), Lte("a", 1)},
		{"gte", Gte("a", 1), Lt("a", 1)},
		{"lt", Lt("a", 1), Gte("a", 1)},
		{"lte", Lte("a", 1), Gt("a", 1)},
		{"exists", Exists("a", true), Exists("a", false)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Not(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNot_InNin(t *testing.T) {
	got, err := Not(In("a", []int{1, 2}))
	require.NoError(t, err)
	assert.Equal(t, Expr{"a": map[string]any{"$nin": []any{1, 2}}}, got)

	back, err := Not(got)
	require.NoError(t, err)
	assert.Equal(t, Expr{"a": map[string]any{"$in": []any{1, 2}}}, back)
}

func TestNot_DeMorgan(t *testing.T) {
	e := And(Eq("a", 1), Gt("b", 2))
	got, err := Not(e)
	require.NoError(t, err)
	assert.Equal(t, Expr{"$or": []Expr{Neq("a", 1), Lte("b", 2)}}, got)

	e = Expr{"$or": []Expr{Eq("a", 1), Eq("b", 2)}}
	got, err = Not(e)
	require.NoError(t, err)
	assert.Equal(t, Expr{"$and": []Expr{Neq("a", 1), Neq("b", 2)}}, got)
}

func TestNot_NorBecomesOr(t *testing.T) {
	got, err := Not(Nor(Eq("a", 1), Eq("b", 2)))
	require.NoError(t, err)
	assert.Equal(t, Expr{"$or": []Expr{Eq("a", 1), Eq("b", 2)}}, got)
}

func TestNot_UnknownOperatorWraps(t *testing.T) {
	got, err := Not(Regex("a", "x"))
	require.NoError(t, err)
	assert.Equal(t, Expr{"a": map[string]any{"$not": map[string]any{"$regex": "x"}}}, got)
}

func TestNot_MultiKeyIsAmbiguous(t *testing.T) {
	_, err := Not(Expr{"a": 1, "b": 2})
	require.Error(t, err)

	_, err = Not(Expr{"a": map[string]any{"$gt": 1, "$lt": 5}})
	require.Error(t, err)

	_, err = Not(Expr{})
	require.Error(t, err)
}

// Double negation must reproduce the original single-operator predicate.
func TestNot_Involutive(t *testing.T) {
	preds := []Expr{
		Eq("a", 1), Neq("a", "x"), Gt("a", 3), Gte("a", 3),
		Lt("a", 3), Lte("a", 3), Exists("a", true), Exists("a", false),
		In("a", []int{1, 2, 3}), Nin("a", []string{"x"}),
	}
	for _, p := range preds {
		once, err := Not(p)
		require.NoError(t, err)
		twice, err := Not(once)
		require.NoError(t, err)
		assert.Equal(t, p, twice)
	}
}

// The rewritten negation and a semantic negation must agree on random docs.
func TestNot_AgreesWithEvaluator(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	preds := []Expr{
		Eq("a", 1), Neq("a", 2), Gt("a", 5), Lte("a", 5),
		In("a", []int{1, 3, 5}), Exists("a", true),
	}
	for i := 0; i < 200; i++ {
		// Field kept present and comparable: ordering operators and their
		// complements are both false on a missing value.
		doc := map[string]any{"a": rng.Intn(10)}
		for _, p := range preds {
			neg, err := Not(p)
			require.NoError(t, err)
			direct := mustMatch(t, p, doc)
			negated := mustMatch(t, neg, doc)
			assert.NotEqual(t, direct, negated, "pred %v doc %v", p, doc)
		}
	}
}
