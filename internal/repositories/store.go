package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Store is the storage boundary of the messaging core.
type Store interface {
	Users() UserRepository
	Messages() MessageRepository
	Conversations() ConversationRepository
	Groups() GroupRepository
	// WithTx runs fn against a Store bound to one transaction. A nil return
	// commits, an error or panic rolls back. Nested calls reuse the outer transaction.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// SQLStore is the sqlx implementation of Store.
type SQLStore struct {
	db *sqlx.DB
	q  sqlx.ExtContext
}

// NewStore wraps db.
func NewStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, q: db}
}

func (s *SQLStore) Users() UserRepository                 { return NewUserRepo(s.q) }
func (s *SQLStore) Messages() MessageRepository           { return NewMessageRepo(s.q) }
func (s *SQLStore) Conversations() ConversationRepository { return NewConversationRepo(s.q) }
func (s *SQLStore) Groups() GroupRepository               { return NewGroupRepo(s.q) }

// WithTx implements Store.
func (s *SQLStore) WithTx(ctx context.Context, fn func(tx Store) error) (err error) {
	if _, inTx := s.q.(*sqlx.Tx); inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
			return
		}
		if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("commit tx: %w", commitErr)
		}
	}()

	err = fn(&SQLStore{db: s.db, q: tx})
	return err
}

// in expands a slice argument for an IN (?) clause and rebinds for the driver.
func in(q sqlx.ExtContext, query string, args ...any) (string, []any, error) {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return q.Rebind(query), args, nil
}
