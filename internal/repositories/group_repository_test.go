package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/db/dbtest"
)

func TestCreateGroupAddsCreatorAsAdmin(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewGroupRepo(conn)
	ctx := context.Background()
	alice := dbtest.CreateUser(t, conn, "alice")
	bob := dbtest.CreateUser(t, conn, "bob")

	group, err := repo.Create(ctx, alice, "team", "weekly sync", []int{bob, bob, alice}, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, []int{alice, bob}, group.MemberIDs)

	loaded, err := repo.Get(ctx, group.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{alice, bob}, loaded.MemberIDs)
	assert.Equal(t, []int{alice}, loaded.AdminIDs)
	assert.True(t, loaded.IsAdmin(alice))
	assert.Equal(t, "weekly sync", loaded.Description)
}

func TestCreateGroupRequiresName(t *testing.T) {
	conn := dbtest.Open(t)
	alice := dbtest.CreateUser(t, conn, "alice")
	_, err := NewGroupRepo(conn).Create(context.Background(), alice, "", "", nil, time.Now())
	require.ErrorIs(t, err, ErrEmptyGroupName)
}

func TestGetGroupNotFound(t *testing.T) {
	conn := dbtest.Open(t)
	_, err := NewGroupRepo(conn).Get(context.Background(), 7)
	require.ErrorIs(t, err, ErrGroupNotFound)
}

func TestAddAndRemoveMembers(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewGroupRepo(conn)
	ctx := context.Background()
	alice := dbtest.CreateUser(t, conn, "alice")
	bob := dbtest.CreateUser(t, conn, "bob")
	carol := dbtest.CreateUser(t, conn, "carol")

	group, err := repo.Create(ctx, alice, "team", "", []int{bob}, time.Now().UTC())
	require.NoError(t, err)

	added, err := repo.AddMembers(ctx, group.ID, []int{bob, carol, carol}, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, []int{carol}, added)

	ok, err := repo.IsMember(ctx, group.ID, carol)
	require.NoError(t, err)
	assert.True(t, ok)

	removed, err := repo.RemoveMember(ctx, group.ID, bob)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repo.RemoveMember(ctx, group.ID, bob)
	require.NoError(t, err)
	assert.False(t, removed)

	members, err := repo.ListMembers(ctx, group.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{alice, carol}, members)

	groups, err := repo.ListForUser(ctx, carol)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, group.ID, groups[0].ID)

	groups, err = repo.ListForUser(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, groups)
}
