package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"chat-realtime/internal/models"
)

var (
	ErrGroupNotFound  = errors.New("group not found")
	ErrNotGroupAdmin  = errors.New("user is not a group admin")
	ErrNotGroupMember = errors.New("user is not a group member")
	ErrEmptyGroupName = errors.New("group name is required")
)

// GroupRepository abstracts group persistence.
type GroupRepository interface {
	// Create stores the group with the creator as member and admin. Callers that
	// also need the group conversation run both inside Store.WithTx.
	Create(ctx context.Context, creatorID int, name, description string, memberIDs []int, at time.Time) (models.Group, error)
	Get(ctx context.Context, groupID int) (models.Group, error)
	ListMembers(ctx context.Context, groupID int) ([]int, error)
	IsMember(ctx context.Context, groupID int, userID int) (bool, error)
	ListForUser(ctx context.Context, userID int) ([]models.Group, error)
	// AddMembers inserts the ids that are not members yet and returns them.
	AddMembers(ctx context.Context, groupID int, userIDs []int, at time.Time) ([]int, error)
	RemoveMember(ctx context.Context, groupID int, userID int) (bool, error)
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db sqlx.ExtContext
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db sqlx.ExtContext) *GroupRepo {
	return &GroupRepo{db: db}
}

const groupColumns = `id, name, description, creator_id, created_at`

// Create implements GroupRepository.
func (r *GroupRepo) Create(ctx context.Context, creatorID int, name, description string, memberIDs []int, at time.Time) (models.Group, error) {
	if name == "" {
		return models.Group{}, ErrEmptyGroupName
	}
	var group models.Group
	if err := sqlx.GetContext(ctx, r.db, &group, r.db.Rebind(`INSERT INTO chat_groups (name, description, creator_id, created_at)
        VALUES (?, ?, ?, ?) RETURNING `+groupColumns), name, description, creatorID, at); err != nil {
		return models.Group{}, err
	}

	// creator first, then members deduped and ordered
	others := lo.Without(lo.Uniq(memberIDs), creatorID)
	sort.Ints(others)

	if _, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO group_members (group_id, user_id, is_admin, joined_at) VALUES (?, ?, ?, ?)`), group.ID, creatorID, true, at); err != nil {
		return models.Group{}, err
	}
	for _, id := range others {
		if _, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO group_members (group_id, user_id, is_admin, joined_at) VALUES (?, ?, ?, ?)`), group.ID, id, false, at); err != nil {
			return models.Group{}, err
		}
	}

	group.MemberIDs = append([]int{creatorID}, others...)
	group.AdminIDs = []int{creatorID}
	return group, nil
}

// Get fetches a group with its member and admin ids.
func (r *GroupRepo) Get(ctx context.Context, groupID int) (models.Group, error) {
	var group models.Group
	err := sqlx.GetContext(ctx, r.db, &group, r.db.Rebind(`SELECT `+groupColumns+` FROM chat_groups WHERE id=?`), groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	if err != nil {
		return models.Group{}, err
	}
	groups := []models.Group{group}
	if err := r.attachMembers(ctx, groups); err != nil {
		return models.Group{}, err
	}
	return groups[0], nil
}

// ListMembers returns the current member ids in join order.
func (r *GroupRepo) ListMembers(ctx context.Context, groupID int) ([]int, error) {
	var ids []int
	err := sqlx.SelectContext(ctx, r.db, &ids, r.db.Rebind(`SELECT user_id FROM group_members WHERE group_id=? ORDER BY joined_at, user_id`), groupID)
	return ids, err
}

// IsMember checks membership.
func (r *GroupRepo) IsMember(ctx context.Context, groupID int, userID int) (bool, error) {
	var count int
	err := sqlx.GetContext(ctx, r.db, &count, r.db.Rebind(`SELECT COUNT(1) FROM group_members WHERE group_id=? AND user_id=?`), groupID, userID)
	return count > 0, err
}

// ListForUser returns groups that include the user.
func (r *GroupRepo) ListForUser(ctx context.Context, userID int) ([]models.Group, error) {
	var groups []models.Group
	err := sqlx.SelectContext(ctx, r.db, &groups, r.db.Rebind(`SELECT g.id, g.name, g.description, g.creator_id, g.created_at
        FROM chat_groups g INNER JOIN group_members gm ON gm.group_id = g.id
        WHERE gm.user_id=? ORDER BY g.created_at DESC, g.id DESC`), userID)
	if err != nil {
		return nil, err
	}
	if err := r.attachMembers(ctx, groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// AddMembers implements GroupRepository.
func (r *GroupRepo) AddMembers(ctx context.Context, groupID int, userIDs []int, at time.Time) ([]int, error) {
	added := make([]int, 0, len(userIDs))
	for _, id := range lo.Uniq(userIDs) {
		res, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO group_members (group_id, user_id, is_admin, joined_at) VALUES (?, ?, ?, ?)
            ON CONFLICT (group_id, user_id) DO NOTHING`), groupID, id, false, at)
		if err != nil {
			return nil, err
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			added = append(added, id)
		}
	}
	return added, nil
}

// RemoveMember deletes the membership row, admin flag included.
func (r *GroupRepo) RemoveMember(ctx context.Context, groupID int, userID int) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM group_members WHERE group_id=? AND user_id=?`), groupID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *GroupRepo) attachMembers(ctx context.Context, groups []models.Group) error {
	if len(groups) == 0 {
		return nil
	}
	ids := lo.Map(groups, func(g models.Group, _ int) int { return g.ID })
	query, args, err := in(r.db, `SELECT group_id, user_id, is_admin, joined_at FROM group_members WHERE group_id IN (?) ORDER BY joined_at, user_id`, ids)
	if err != nil {
		return err
	}
	var rows []models.GroupMember
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
		return err
	}
	byGroup := lo.GroupBy(rows, func(m models.GroupMember) int { return m.GroupID })
	for i := range groups {
		members := byGroup[groups[i].ID]
		groups[i].MemberIDs = lo.Map(members, func(m models.GroupMember, _ int) int { return m.UserID })
		groups[i].AdminIDs = lo.FilterMap(members, func(m models.GroupMember, _ int) (int, bool) { return m.UserID, m.IsAdmin })
	}
	return nil
}
