package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairKeyIsOrderIndependent(t *testing.T) {
	ab, err := PairKey(7, 3)
	require.NoError(t, err)
	ba, err := PairKey(3, 7)
	require.NoError(t, err)

	assert.Equal(t, ab, ba)
	assert.Equal(t, Pair{Low: 3, High: 7}, ab)
}

func TestPairKeyRejectsSelf(t *testing.T) {
	_, err := PairKey(4, 4)
	require.ErrorIs(t, err, ErrSelfPair)
}

func TestOnSendSkipsSender(t *testing.T) {
	updates := OnSend(1, []int{1, 2, 3, 2})

	require.Len(t, updates, 2)
	assert.Equal(t, Update{UserID: 2, Transition: Increment}, updates[0])
	assert.Equal(t, Update{UserID: 3, Transition: Increment}, updates[1])
}

func TestOnSendToSelfOnlyIsEmpty(t *testing.T) {
	assert.Empty(t, OnSend(5, []int{5}))
}

func TestOnRead(t *testing.T) {
	assert.Equal(t, Update{UserID: 8, Transition: Reset}, OnRead(8))
	assert.Equal(t, "reset", Reset.String())
	assert.Equal(t, "increment", Increment.String())
}
