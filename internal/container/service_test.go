package container

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covault/covault/internal/common"
	"github.com/covault/covault/internal/keys"
	"github.com/covault/covault/internal/logging"
	"github.com/covault/covault/internal/policy"
	"github.com/covault/covault/internal/storage/memdocs"
)

const testContext = "ctx1"

// fakeContexts plays both the context-membership and the context-policy
// collaborator.
type fakeContexts struct {
	policy   *policy.ContextPolicy
	members  map[string]bool
	managers map[string]bool
}

func (f *fakeContexts) Policy(context.Context, string) (*policy.ContextPolicy, error) {
	return f.policy, nil
}

func (f *fakeContexts) IsManager(_ context.Context, _, userID string) (bool, error) {
	return f.managers[userID], nil
}

func (f *fakeContexts) UserExists(_ context.Context, _, userID string) (bool, error) {
	return f.members[userID], nil
}

func newService(t *testing.T, fc *fakeContexts) *Service {
	t.Helper()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewService(policy.KindThread, Deps{
		Manager:  memdocs.NewManager(),
		Keys:     keys.NewService(fc),
		Contexts: fc,
		Logger:   logger,
	})
}

func defaultContexts() *fakeContexts {
	return &fakeContexts{
		members:  map[string]bool{"A": true, "B": true, "C": true, "D": true},
		managers: map[string]bool{},
	}
}

func grant(user, keyID string) keys.KeyInsert {
	return keys.KeyInsert{User: user, KeyID: keyID, Data: "enc-" + user + "-" + keyID}
}

func createThread(t *testing.T, svc *Service) *Container {
	t.Helper()
	c, err := svc.Create(context.Background(), "B", CreateParams{
		ContextID:  testContext,
		Users:      []string{"A", "B"},
		Managers:   []string{"B"},
		KeyID:      "K1",
		KeyInserts: []keys.KeyInsert{grant("A", "K1"), grant("B", "K1")},
		Data:       "cipher-v0",
	})
	require.NoError(t, err)
	return c
}

func holders(entries []keys.UserKeysEntry, keyID string) []string {
	var out []string
	for _, e := range entries {
		for _, k := range e.Keys {
			if k.KeyID == keyID {
				out = append(out, e.User)
			}
		}
	}
	return out
}

func TestCreate_CreatorHasToBeManager(t *testing.T) {
	svc := newService(t, defaultContexts())
	_, err := svc.Create(context.Background(), "A", CreateParams{
		ContextID:  testContext,
		Users:      []string{"A"},
		Managers:   []string{"B"},
		KeyID:      "K1",
		KeyInserts: []keys.KeyInsert{grant("A", "K1"), grant("B", "K1")},
	})
	require.ErrorIs(t, err, common.ErrAccessDenied)
}

func TestMembershipChangeEndToEnd(t *testing.T) {
	svc := newService(t, defaultContexts())
	ctx := context.Background()

	c := createThread(t, svc)
	assert.ElementsMatch(t, []string{"A", "B"}, holders(c.Keys, "K1"))
	assert.Equal(t, 0, c.Version())

	// Remove A, add C, rotate to K2.
	updated, err := svc.Update(ctx, "B", UpdateParams{
		ContextID:  testContext,
		ID:         c.ID,
		Users:      []string{"C"},
		Managers:   []string{"B"},
		KeyID:      "K2",
		KeyInserts: []keys.KeyInsert{grant("B", "K2"), grant("C", "K2")},
		Data:       "cipher-v1",
		Version:    0,
	})
	require.NoError(t, err)

	// The new generation is held by exactly the new membership.
	assert.ElementsMatch(t, []string{"B", "C"}, holders(updated.Keys, "K2"))
	// A's historical copy of the obsolete generation is untouched.
	assert.ElementsMatch(t, []string{"A", "B"}, holders(updated.Keys, "K1"))

	assert.Equal(t, 1, updated.Version())
	require.Len(t, updated.History, 1)
	assert.Equal(t, "cipher-v0", updated.History[0].Data)
	assert.Equal(t, "K1", updated.History[0].KeyID)
	assert.Equal(t, "K2", updated.KeyID)
	assert.Equal(t, "B", updated.LastModifier)
}

func TestUpdate_RemovedMemberStillHoldsCurrentKey(t *testing.T) {
	svc := newService(t, defaultContexts())
	c := createThread(t, svc)

	// Dropping A without rotating leaves A holding the still-current K1.
	_, err := svc.Update(context.Background(), "B", UpdateParams{
		ContextID: testContext,
		ID:        c.ID,
		Users:     []string{},
		Managers:  []string{"B"},
		KeyID:     "K1",
		Version:   0,
	})
	require.ErrorIs(t, err, common.ErrInvalidParams)
}

func TestUpdate_UnknownGeneration(t *testing.T) {
	svc := newService(t, defaultContexts())
	c := createThread(t, svc)

	_, err := svc.Update(context.Background(), "B", UpdateParams{
		ContextID:  testContext,
		ID:         c.ID,
		Users:      []string{"A", "B"},
		Managers:   []string{"B"},
		KeyID:      "K1",
		KeyInserts: []keys.KeyInsert{grant("A", "K9")},
		Version:    0,
	})
	require.ErrorIs(t, err, common.ErrInvalidKeyID)
}

func TestUpdate_VersionConflict(t *testing.T) {
	svc := newService(t, defaultContexts())
	ctx := context.Background()
	c := createThread(t, svc)

	p := UpdateParams{
		ContextID: testContext,
		ID:        c.ID,
		Users:     []string{"A", "B"},
		Managers:  []string{"B"},
		KeyID:     "K1",
		Data:      "cipher-v1",
		Version:   7,
	}
	_, err := svc.Update(ctx, "B", p)
	require.ErrorIs(t, err, common.ErrVersionConflict)

	p.Force = true
	updated, err := svc.Update(ctx, "B", p)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Version())
}

func TestUpdate_OnlyManagers(t *testing.T) {
	svc := newService(t, defaultContexts())
	c := createThread(t, svc)

	_, err := svc.Update(context.Background(), "A", UpdateParams{
		ContextID: testContext,
		ID:        c.ID,
		Users:     []string{"A", "B"},
		Managers:  []string{"B"},
		KeyID:     "K1",
		Version:   0,
	})
	require.ErrorIs(t, err, common.ErrAccessDenied)
}

func TestGet_ReadPolicy(t *testing.T) {
	svc := newService(t, defaultContexts())
	ctx := context.Background()
	c := createThread(t, svc)

	_, err := svc.Get(ctx, "A", testContext, c.ID)
	require.NoError(t, err)
	_, err = svc.Get(ctx, "C", testContext, c.ID)
	require.ErrorIs(t, err, common.ErrAccessDenied)
	_, err = svc.Get(ctx, "A", testContext, "missing")
	require.ErrorIs(t, err, common.ErrContainerDoesNotExist)
}

func TestDelete(t *testing.T) {
	svc := newService(t, defaultContexts())
	ctx := context.Background()
	c := createThread(t, svc)

	err := svc.Delete(ctx, "A", testContext, c.ID, 0, false)
	require.ErrorIs(t, err, common.ErrAccessDenied)

	err = svc.Delete(ctx, "B", testContext, c.ID, 3, false)
	require.ErrorIs(t, err, common.ErrVersionConflict)

	require.NoError(t, svc.Delete(ctx, "B", testContext, c.ID, 0, false))
	_, err = svc.Get(ctx, "B", testContext, c.ID)
	require.ErrorIs(t, err, common.ErrContainerDoesNotExist)
}

func TestListings(t *testing.T) {
	fc := defaultContexts()
	fc.managers["D"] = true
	svc := newService(t, fc)
	ctx := context.Background()

	createThread(t, svc)
	_, err := svc.Create(ctx, "C", CreateParams{
		ContextID:  testContext,
		Users:      []string{"C"},
		Managers:   []string{"C"},
		KeyID:      "K1",
		KeyInserts: []keys.KeyInsert{grant("C", "K1")},
	})
	require.NoError(t, err)

	mine, err := svc.ListMy(ctx, "A", testContext)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	// listAll defaults to managers; a plain member is denied, a context
	// manager is not.
	_, err = svc.ListAll(ctx, "A", testContext)
	require.ErrorIs(t, err, common.ErrAccessDenied)

	all, err := svc.ListAll(ctx, "D", testContext)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRequiresRotation(t *testing.T) {
	c := &Container{Users: []string{"A", "B"}, Managers: []string{"B"}}
	assert.False(t, RequiresRotation(c, []string{"A", "B"}, []string{"B"}))
	assert.False(t, RequiresRotation(c, []string{"A", "B", "C"}, []string{"B"}))
	assert.True(t, RequiresRotation(c, []string{"B"}, []string{"B"}))
}

func TestDeleteByContext(t *testing.T) {
	fc := defaultContexts()
	fc.managers["D"] = true
	svc := newService(t, fc)
	ctx := context.Background()
	createThread(t, svc)
	createThread(t, svc)

	require.NoError(t, svc.DeleteByContext(ctx, testContext))
	all, err := svc.ListAll(ctx, "D", testContext)
	require.NoError(t, err)
	assert.Empty(t, all)
}
