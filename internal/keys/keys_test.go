package keys

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covault/covault/internal/common"
)

type fakeMembership struct {
	users map[string]bool
}

func (f *fakeMembership) UserExists(ctx context.Context, contextID, userID string) (bool, error) {
	return f.users[userID], nil
}

func membershipOf(users ...string) *fakeMembership {
	m := &fakeMembership{users: map[string]bool{}}
	for _, u := range users {
		m.users[u] = true
	}
	return m
}

func grants(keyID string, users ...string) []KeyInsert {
	out := make([]KeyInsert, len(users))
	for i, u := range users {
		out[i] = KeyInsert{User: u, KeyID: keyID, Data: "enc-" + keyID + "-" + u}
	}
	return out
}

func TestCreation_BuildsExactKeySet(t *testing.T) {
	s := NewService(membershipOf("alice", "bob"))

	keys, err := s.CheckKeysAndUsersDuringCreation(context.Background(), "ctx1",
		grants("k1", "alice", "bob"), "k1", []string{"alice", "bob"}, []string{"bob"})
	require.NoError(t, err)

	require.Len(t, keys, 2)
	for _, entry := range keys {
		require.Len(t, entry.Keys, 1)
		assert.Equal(t, "k1", entry.Keys[0].KeyID)
	}
}

func TestCreation_RejectsDuplicateMembers(t *testing.T) {
	s := NewService(membershipOf("alice"))

	_, err := s.CheckKeysAndUsersDuringCreation(context.Background(), "ctx1",
		grants("k1", "alice"), "k1", []string{"alice", "alice"}, nil)
	require.ErrorIs(t, err, common.ErrInvalidParams)

	_, err = s.CheckKeysAndUsersDuringCreation(context.Background(), "ctx1",
		grants("k1", "alice"), "k1", nil, []string{"alice", "alice"})
	require.ErrorIs(t, err, common.ErrInvalidParams)
}

func TestCreation_RejectsUnknownContextUser(t *testing.T) {
	s := NewService(membershipOf("alice"))

	_, err := s.CheckKeysAndUsersDuringCreation(context.Background(), "ctx1",
		grants("k1", "alice", "mallory"), "k1", []string{"alice", "mallory"}, nil)
	require.ErrorIs(t, err, common.ErrUserDoesNotExist)
}

func TestBuildKeys_RejectsDuplicateGrantPair(t *testing.T) {
	s := NewService(membershipOf("alice"))

	inserts := append(grants("k1", "alice"), grants("k1", "alice")...)
	_, err := s.CheckKeysAndUsersDuringCreation(context.Background(), "ctx1",
		inserts, "k1", []string{"alice"}, nil)
	require.ErrorIs(t, err, common.ErrInvalidParams)
}

func TestBuildKeys_RejectsUnknownGeneration(t *testing.T) {
	s := NewService(membershipOf("alice"))

	_, err := s.CheckKeysAndClients(context.Background(), "ctx1",
		[]string{"k1"}, nil, grants("k9", "alice"), "k1", []string{"alice"}, nil)
	require.ErrorIs(t, err, common.ErrInvalidKeyID)
}

func TestVerify_MissingHolderFails(t *testing.T) {
	s := NewService(membershipOf("alice", "bob"))

	// bob gets no grant for k1.
	_, err := s.CheckKeysAndUsersDuringCreation(context.Background(), "ctx1",
		grants("k1", "alice"), "k1", []string{"alice", "bob"}, nil)
	require.ErrorIs(t, err, common.ErrInvalidParams)
}

func TestVerify_StaleHolderFails(t *testing.T) {
	s := NewService(membershipOf("alice", "bob"))

	old := []UserKeysEntry{
		{User: "alice", Keys: []KeyEntry{{KeyID: "k1", Data: "x"}}},
		{User: "bob", Keys: []KeyEntry{{KeyID: "k1", Data: "y"}}},
	}
	// bob is removed from the membership but still holds k1.
	_, err := s.CheckKeysAndClients(context.Background(), "ctx1",
		[]string{"k1"}, old, nil, "k1", []string{"alice"}, nil)
	require.ErrorIs(t, err, common.ErrInvalidParams)
}

func TestRotation_KeepsHistoricalGenerations(t *testing.T) {
	s := NewService(membershipOf("alice", "bob", "carol"))

	old := []UserKeysEntry{
		{User: "alice", Keys: []KeyEntry{{KeyID: "k1", Data: "a1"}}},
		{User: "bob", Keys: []KeyEntry{{KeyID: "k1", Data: "b1"}}},
	}
	// Rotate to k2 with membership {bob, carol}: alice is out, carol is new.
	newKeys, err := s.CheckKeysAndClients(context.Background(), "ctx1",
		[]string{"k1", "k2"}, old, grants("k2", "bob", "carol"), "k2",
		[]string{"bob", "carol"}, nil)
	require.NoError(t, err)

	byUser := map[string]UserKeysEntry{}
	for _, e := range newKeys {
		byUser[e.User] = e
	}
	// Alice keeps her historical k1 copy untouched but gets no k2.
	require.Len(t, byUser["alice"].Keys, 1)
	assert.Equal(t, "k1", byUser["alice"].Keys[0].KeyID)
	assert.Equal(t, "a1", byUser["alice"].Keys[0].Data)
	// Bob holds both generations.
	require.Len(t, byUser["bob"].Keys, 2)
	// Carol holds only the current one.
	require.Len(t, byUser["carol"].Keys, 1)
	assert.Equal(t, "k2", byUser["carol"].Keys[0].KeyID)
}

func TestRebuild_DoesNotMutateOldKeys(t *testing.T) {
	s := NewService(membershipOf("alice", "bob"))

	old := []UserKeysEntry{{User: "alice", Keys: []KeyEntry{{KeyID: "k1", Data: "a1"}}}}
	_, err := s.CheckKeysAndClients(context.Background(), "ctx1",
		[]string{"k1", "k2"}, old, grants("k2", "alice", "bob"), "k2",
		[]string{"alice", "bob"}, nil)
	require.NoError(t, err)

	require.Len(t, old, 1)
	require.Len(t, old[0].Keys, 1, "input key list must stay untouched")
}

func TestHasRemovedClients(t *testing.T) {
	assert.False(t, HasRemovedClients([]string{"a", "b"}, []string{"b", "a", "c"}))
	assert.True(t, HasRemovedClients([]string{"a", "b"}, []string{"a"}))
	assert.False(t, HasRemovedClients(nil, []string{"a"}))
}

// Property: after a successful rebuild, a user holds a copy of the current
// key iff the user is in users ∪ managers.
func TestKeyInvariant_Property(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pool := make([]string, 8)
	for i := range pool {
		pool[i] = fmt.Sprintf("user%d", i)
	}
	s := NewService(membershipOf(pool...))

	for round := 0; round < 300; round++ {
		users := randomSubset(rng, pool)
		managers := randomSubset(rng, pool)
		members := uniqueUnion(users, managers)

		// Grant to a random superset or subset of the membership.
		grantees := randomSubset(rng, pool)
		inserts := grants("k1", grantees...)

		keys, err := s.CheckKeysAndUsersDuringCreation(context.Background(), "ctx1",
			inserts, "k1", users, managers)

		wantOK := sameSet(grantees, members)
		if !wantOK {
			require.Error(t, err, "round %d: grants %v members %v", round, grantees, members)
			continue
		}
		require.NoError(t, err, "round %d", round)
		holders := map[string]bool{}
		for _, e := range keys {
			for _, k := range e.Keys {
				if k.KeyID == "k1" {
					holders[e.User] = true
				}
			}
		}
		for _, u := range pool {
			inMembers := false
			for _, m := range members {
				if m == u {
					inMembers = true
				}
			}
			assert.Equal(t, inMembers, holders[u], "round %d user %s", round, u)
		}
	}
}

func randomSubset(rng *rand.Rand, pool []string) []string {
	var out []string
	for _, v := range pool {
		if rng.Intn(2) == 0 {
			out = append(out, v)
		}
	}
	return out
}

func sameSet(a, b []string) bool {
	if len(uniqueUnion(a, nil)) != len(uniqueUnion(b, nil)) {
		return false
	}
	for _, v := range a {
		found := false
		for _, w := range b {
			if v == w {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestMembershipErrorPropagates(t *testing.T) {
	s := NewService(&errMembership{})
	_, err := s.CheckKeysAndUsersDuringCreation(context.Background(), "ctx1",
		grants("k1", "alice"), "k1", []string{"alice"}, nil)
	require.Error(t, err)
	require.False(t, errors.Is(err, common.ErrUserDoesNotExist))
}

type errMembership struct{}

func (errMembership) UserExists(context.Context, string, string) (bool, error) {
	return false, errors.New("lookup failed")
}
