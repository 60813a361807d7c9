package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"chat-realtime/internal/middleware"
	"chat-realtime/internal/models"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/telemetry"
)

// GroupHandler manages group endpoints.
type GroupHandler struct {
	store repositories.Store
	audit *telemetry.AuditEmitter
	log   *slog.Logger
	now   func() time.Time
}

// NewGroupHandler builds a GroupHandler. audit may be nil.
func NewGroupHandler(store repositories.Store, audit *telemetry.AuditEmitter, log *slog.Logger) *GroupHandler {
	return &GroupHandler{
		store: store,
		audit: audit,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateGroup handles POST /groups. The group and its conversation are created together.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID := middleware.UserID(c)

	var req struct {
		Name        string `json:"name" binding:"required,max=100"`
		Description string `json:"description" binding:"max=500"`
		MemberIDs   []int  `json:"member_ids" binding:"dive,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, telemetry.LevelError, "invalid request payload", 0, nil)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := h.now()
	var group models.Group
	err := h.store.WithTx(c.Request.Context(), func(tx repositories.Store) error {
		var err error
		group, err = tx.Groups().Create(c.Request.Context(), userID, req.Name, req.Description, req.MemberIDs, now)
		if err != nil {
			return err
		}
		_, err = tx.Conversations().UpsertGroup(c.Request.Context(), group.ID, nil, now)
		return err
	})
	if errors.Is(err, repositories.ErrEmptyGroupName) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group name is required"})
		return
	}
	if err != nil {
		h.log.Error("create group failed", "user_id", userID, "err", err)
		h.emitAudit(c, telemetry.LevelError, "internal error", 0, nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	h.emitAudit(c, telemetry.LevelInfo, "Group created", group.ID, map[string]any{"member_ids": group.MemberIDs})
	c.JSON(http.StatusCreated, gin.H{"group": group})
}

// ListGroups returns groups the caller belongs to.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	userID := middleware.UserID(c)
	groups, err := h.store.Groups().ListForUser(c.Request.Context(), userID)
	if err != nil {
		h.log.Error("list groups failed", "user_id", userID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load groups"})
		return
	}
	if groups == nil {
		groups = []models.Group{}
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// GetGroupMessages returns the group history to members.
func (h *GroupHandler) GetGroupMessages(c *gin.Context) {
	groupID, ok := groupIDParam(c)
	if !ok {
		return
	}

	userID := middleware.UserID(c)
	member, err := h.store.Groups().IsMember(c.Request.Context(), groupID, userID)
	if err != nil {
		h.log.Error("membership check failed", "user_id", userID, "group_id", groupID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a group member"})
		return
	}

	msgs, err := h.store.Messages().ListGroup(c.Request.Context(), groupID)
	if err != nil {
		h.log.Error("list group messages failed", "group_id", groupID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	populated, err := h.store.Messages().Populate(c.Request.Context(), msgs)
	if err != nil {
		h.log.Error("populate group messages failed", "group_id", groupID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": populated})
}

// AddMembers handles POST /groups/:group_id/members. Admins only.
func (h *GroupHandler) AddMembers(c *gin.Context) {
	groupID, ok := groupIDParam(c)
	if !ok {
		return
	}

	var req struct {
		MemberIDs []int `json:"member_ids" binding:"required,min=1,dive,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, telemetry.LevelError, "invalid request payload", groupID, nil)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, ok := h.loadGroup(c, groupID)
	if !ok {
		return
	}
	userID := middleware.UserID(c)
	if !group.IsAdmin(userID) {
		h.emitAudit(c, telemetry.LevelError, "forbidden", groupID, nil)
		c.JSON(http.StatusForbidden, gin.H{"error": repositories.ErrNotGroupAdmin.Error()})
		return
	}

	added, err := h.store.Groups().AddMembers(c.Request.Context(), groupID, req.MemberIDs, h.now())
	if err != nil {
		h.log.Error("add group members failed", "group_id", groupID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add members"})
		return
	}

	h.emitAudit(c, telemetry.LevelInfo, "Group members added", groupID, map[string]any{"added": added})
	c.JSON(http.StatusOK, gin.H{"added": added})
}

// RemoveMember handles DELETE /groups/:group_id/members/:member_id. Admins may
// remove anyone and members may remove themselves.
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	groupID, ok := groupIDParam(c)
	if !ok {
		return
	}
	memberID, err := strconv.Atoi(c.Param("member_id"))
	if err != nil || memberID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid member id"})
		return
	}

	group, ok := h.loadGroup(c, groupID)
	if !ok {
		return
	}
	userID := middleware.UserID(c)
	if userID != memberID && !group.IsAdmin(userID) {
		h.emitAudit(c, telemetry.LevelError, "forbidden", groupID, nil)
		c.JSON(http.StatusForbidden, gin.H{"error": repositories.ErrNotGroupAdmin.Error()})
		return
	}

	removed, err := h.store.Groups().RemoveMember(c.Request.Context(), groupID, memberID)
	if err != nil {
		h.log.Error("remove group member failed", "group_id", groupID, "member_id", memberID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove member"})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": repositories.ErrNotGroupMember.Error()})
		return
	}

	h.emitAudit(c, telemetry.LevelInfo, "Group member removed", groupID, map[string]any{"member_id": memberID})
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) loadGroup(c *gin.Context, groupID int) (models.Group, bool) {
	group, err := h.store.Groups().Get(c.Request.Context(), groupID)
	if errors.Is(err, repositories.ErrGroupNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return models.Group{}, false
	}
	if err != nil {
		h.log.Error("load group failed", "group_id", groupID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group"})
		return models.Group{}, false
	}
	return group, true
}

func groupIDParam(c *gin.Context) (int, bool) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil || groupID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return 0, false
	}
	return groupID, true
}

func (h *GroupHandler) emitAudit(c *gin.Context, level, text string, groupID int, fields map[string]any) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c), telemetry.AuditPayload{
		GroupID: groupID,
		Fields:  fields,
	})
}
