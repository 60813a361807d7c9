// Package conversation holds the invariants of conversation keys and unread counters.
//
// Nothing here touches storage. The delivery engine decides which transitions to
// apply and the repositories translate each one into a single atomic statement;
// the unread_count CHECK keeps counters from going negative.
package conversation

import "errors"

// ErrSelfPair is returned when both sides of a direct conversation are the same user.
var ErrSelfPair = errors.New("conversation needs two distinct users")

// Pair is the unordered participant key of a direct conversation, stored ordered.
type Pair struct {
	Low  int
	High int
}

// PairKey orders a and b so that the same two users always produce the same key.
func PairKey(a, b int) (Pair, error) {
	if a == b {
		return Pair{}, ErrSelfPair
	}
	if a > b {
		a, b = b, a
	}
	return Pair{Low: a, High: b}, nil
}

// Transition is a change applied to one user's unread counter.
type Transition int

const (
	// Increment adds one unread message.
	Increment Transition = iota + 1
	// Reset marks everything read.
	Reset
)

func (t Transition) String() string {
	switch t {
	case Increment:
		return "increment"
	case Reset:
		return "reset"
	}
	return "unknown"
}

// Update is a transition bound to the user whose counter it changes.
type Update struct {
	UserID     int
	Transition Transition
}

// OnSend returns the unread updates caused by sender posting to participants.
// The sender never gets an increment and duplicates collapse into one update.
func OnSend(sender int, participants []int) []Update {
	seen := make(map[int]struct{}, len(participants))
	updates := make([]Update, 0, len(participants))
	for _, id := range participants {
		if id == sender {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		updates = append(updates, Update{UserID: id, Transition: Increment})
	}
	return updates
}

// OnRead returns the update caused by reader opening the conversation.
func OnRead(reader int) Update {
	return Update{UserID: reader, Transition: Reset}
}
