package contexts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covault/covault/internal/common"
	"github.com/covault/covault/internal/policy"
	"github.com/covault/covault/internal/storage/memdocs"
)

func newSaved(t *testing.T) (*Service, context.Context) {
	t.Helper()
	svc := NewService(memdocs.NewManager())
	ctx := context.Background()
	require.NoError(t, svc.Save(ctx, &Context{
		ID:   "ctx1",
		Name: "first",
		Users: []User{
			{UserID: "A", PubKey: "pk-a", Role: RoleUser},
			{UserID: "B", PubKey: "pk-b", Role: RoleManager},
		},
		Policy: &policy.ContextPolicy{},
	}))
	return svc, ctx
}

func TestSave_RequiresID(t *testing.T) {
	svc := NewService(memdocs.NewManager())
	err := svc.Save(context.Background(), &Context{Name: "anonymous"})
	require.ErrorIs(t, err, common.ErrInvalidParams)
}

func TestUserExists(t *testing.T) {
	svc, ctx := newSaved(t)

	ok, err := svc.UserExists(ctx, "ctx1", "A")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.UserExists(ctx, "ctx1", "Z")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.UserExists(ctx, "missing", "A")
	require.ErrorIs(t, err, common.ErrContextDoesNotExist)
}

func TestGetUser_ByIDOrPubKey(t *testing.T) {
	svc, ctx := newSaved(t)

	u, err := svc.GetUser(ctx, "ctx1", "A")
	require.NoError(t, err)
	assert.Equal(t, "pk-a", u.PubKey)

	u, err = svc.GetUser(ctx, "ctx1", "pk-b")
	require.NoError(t, err)
	assert.Equal(t, "B", u.UserID)

	_, err = svc.GetUser(ctx, "ctx1", "Z")
	require.ErrorIs(t, err, common.ErrUserDoesNotExist)
}

func TestIsManager(t *testing.T) {
	svc, ctx := newSaved(t)

	ok, err := svc.IsManager(ctx, "ctx1", "B")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsManager(ctx, "ctx1", "A")
	require.NoError(t, err)
	assert.False(t, ok)

	// Unknown users are simply not managers.
	ok, err = svc.IsManager(ctx, "ctx1", "Z")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPolicyAndExists(t *testing.T) {
	svc, ctx := newSaved(t)

	p, err := svc.Policy(ctx, "ctx1")
	require.NoError(t, err)
	assert.NotNil(t, p)

	ok, err := svc.Exists(ctx, "ctx1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	svc, ctx := newSaved(t)

	require.NoError(t, svc.Delete(ctx, "ctx1"))

	ok, err := svc.Exists(ctx, "ctx1")
	require.NoError(t, err)
	assert.False(t, ok)

	err = svc.Delete(ctx, "ctx1")
	require.ErrorIs(t, err, common.ErrContextDoesNotExist)
}
