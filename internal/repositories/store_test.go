package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/conversation"
	"chat-realtime/internal/db/dbtest"
)

func TestWithTxRollsBackOnError(t *testing.T) {
	conn := dbtest.Open(t)
	store := NewStore(conn)
	ctx := context.Background()
	alice := dbtest.CreateUser(t, conn, "alice")
	bob := dbtest.CreateUser(t, conn, "bob")
	pair, _ := conversation.PairKey(alice, bob)
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx Store) error {
		msg, err := tx.Messages().Create(ctx, directMessage(alice, bob, "lost"))
		if err != nil {
			return err
		}
		if _, err := tx.Conversations().UpsertDirect(ctx, pair, &msg.ID, time.Now().UTC()); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.Conversations().FindByPair(ctx, pair)
	require.ErrorIs(t, err, ErrConversationNotFound)
	msgs, err := store.Messages().ListDirect(ctx, alice, bob)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestWithTxNestedReusesTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	store := NewStore(conn)
	ctx := context.Background()
	alice := dbtest.CreateUser(t, conn, "alice")
	bob := dbtest.CreateUser(t, conn, "bob")

	err := store.WithTx(ctx, func(tx Store) error {
		return tx.WithTx(ctx, func(inner Store) error {
			_, err := inner.Messages().Create(ctx, directMessage(alice, bob, "nested"))
			return err
		})
	})
	require.NoError(t, err)

	msgs, err := store.Messages().ListDirect(ctx, alice, bob)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}
