package handlers

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/mocks"
	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/telemetry"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// asUser stands in for middleware.Identity.
func asUser(userID int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	}
}

func setupGroupRouter(handler *GroupHandler, userID int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(asUser(userID))
	r.POST("/groups", handler.CreateGroup)
	r.GET("/groups", handler.ListGroups)
	r.GET("/groups/:group_id/messages", handler.GetGroupMessages)
	r.POST("/groups/:group_id/members", handler.AddMembers)
	r.DELETE("/groups/:group_id/members/:member_id", handler.RemoveMember)
	return r
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateGroupSuccess(t *testing.T) {
	store := mocks.NewStoreMock()
	publisher := new(mocks.PublisherMock)
	audit := telemetry.NewAuditEmitter(publisher, observability.RoutingAuditGroups, "chat-realtime", "test", discardLogger())
	handler := NewGroupHandler(store, audit, discardLogger())
	router := setupGroupRouter(handler, 1)

	group := models.Group{ID: 5, Name: "test", CreatorID: 1, MemberIDs: []int{1, 2}, AdminIDs: []int{1}}
	store.On("WithTx", mock.Anything, mock.Anything).Return(nil).Once()
	store.GroupRepo.On("Create", mock.Anything, 1, "test", "", []int{2}, mock.Anything).Return(group, nil).Once()
	store.ConversationRepo.On("UpsertGroup", mock.Anything, 5, mock.Anything, mock.Anything).Return(models.Conversation{ID: 9}, nil).Once()
	publisher.On("Publish", mock.Anything, "audit.groups", mock.MatchedBy(func(env telemetry.AuditEnvelope) bool {
		return env.Payload.Text == "Group created" && env.Payload.GroupID == 5 && env.UserID != nil && *env.UserID == 1
	})).Return(nil).Once()

	rec := serve(router, http.MethodPost, "/groups", `{"name":"test","member_ids":[2]}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"member_ids":[1,2]`)
	store.AssertExpectations(t)
	store.GroupRepo.AssertExpectations(t)
	store.ConversationRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
	assert.Equal(t, []string{"audit.groups"}, publisher.RoutingKeys())
}

func TestCreateGroupInvalidBody(t *testing.T) {
	handler := NewGroupHandler(mocks.NewStoreMock(), nil, discardLogger())
	router := setupGroupRouter(handler, 1)

	rec := serve(router, http.MethodPost, "/groups", `{"name":5}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, http.MethodPost, "/groups", `{"name":"x","member_ids":[0]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateGroupStorageFailure(t *testing.T) {
	store := mocks.NewStoreMock()
	handler := NewGroupHandler(store, nil, discardLogger())
	router := setupGroupRouter(handler, 1)

	store.On("WithTx", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

	rec := serve(router, http.MethodPost, "/groups", `{"name":"test"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListGroupsReturnsEmptyList(t *testing.T) {
	store := mocks.NewStoreMock()
	router := setupGroupRouter(NewGroupHandler(store, nil, discardLogger()), 1)
	store.GroupRepo.On("ListForUser", mock.Anything, 1).Return(nil, nil).Once()

	rec := serve(router, http.MethodGet, "/groups", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"groups":[]}`, rec.Body.String())
}

func TestGetGroupMessagesSuccess(t *testing.T) {
	store := mocks.NewStoreMock()
	router := setupGroupRouter(NewGroupHandler(store, nil, discardLogger()), 1)

	groupID := 9
	msgs := []models.Message{{ID: 1, GroupID: &groupID, SenderID: 1, Content: "hi"}}
	store.GroupRepo.On("IsMember", mock.Anything, 9, 1).Return(true, nil).Once()
	store.MessageRepo.On("ListGroup", mock.Anything, 9).Return(msgs, nil).Once()
	store.MessageRepo.On("Populate", mock.Anything, msgs).Return([]models.PopulatedMessage{{
		Message: msgs[0],
		Sender:  models.UserSummary{ID: 1, Name: "me"},
	}}, nil).Once()

	rec := serve(router, http.MethodGet, "/groups/9/messages", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"content":"hi"`)
	store.GroupRepo.AssertExpectations(t)
	store.MessageRepo.AssertExpectations(t)
}

func TestGetGroupMessagesForbidden(t *testing.T) {
	store := mocks.NewStoreMock()
	router := setupGroupRouter(NewGroupHandler(store, nil, discardLogger()), 1)
	store.GroupRepo.On("IsMember", mock.Anything, 9, 1).Return(false, nil).Once()

	rec := serve(router, http.MethodGet, "/groups/9/messages", "")

	require.Equal(t, http.StatusForbidden, rec.Code)
	store.MessageRepo.AssertNotCalled(t, "ListGroup", mock.Anything, mock.Anything)
}

func TestGetGroupMessagesInvalidID(t *testing.T) {
	router := setupGroupRouter(NewGroupHandler(mocks.NewStoreMock(), nil, discardLogger()), 1)
	rec := serve(router, http.MethodGet, "/groups/abc/messages", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddMembersRequiresAdmin(t *testing.T) {
	store := mocks.NewStoreMock()
	router := setupGroupRouter(NewGroupHandler(store, nil, discardLogger()), 2)
	store.GroupRepo.On("Get", mock.Anything, 9).Return(models.Group{ID: 9, MemberIDs: []int{1, 2}, AdminIDs: []int{1}}, nil).Once()

	rec := serve(router, http.MethodPost, "/groups/9/members", `{"member_ids":[3]}`)

	require.Equal(t, http.StatusForbidden, rec.Code)
	store.GroupRepo.AssertNotCalled(t, "AddMembers", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAddMembersByAdmin(t *testing.T) {
	store := mocks.NewStoreMock()
	router := setupGroupRouter(NewGroupHandler(store, nil, discardLogger()), 1)
	store.GroupRepo.On("Get", mock.Anything, 9).Return(models.Group{ID: 9, MemberIDs: []int{1, 2}, AdminIDs: []int{1}}, nil).Once()
	store.GroupRepo.On("AddMembers", mock.Anything, 9, []int{2, 3}, mock.Anything).Return([]int{3}, nil).Once()

	rec := serve(router, http.MethodPost, "/groups/9/members", `{"member_ids":[2,3]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"added":[3]}`, rec.Body.String())
	store.GroupRepo.AssertExpectations(t)
}

func TestAddMembersUnknownGroup(t *testing.T) {
	store := mocks.NewStoreMock()
	router := setupGroupRouter(NewGroupHandler(store, nil, discardLogger()), 1)
	store.GroupRepo.On("Get", mock.Anything, 9).Return(nil, repositories.ErrGroupNotFound).Once()

	rec := serve(router, http.MethodPost, "/groups/9/members", `{"member_ids":[3]}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRemoveMemberSelfOrAdmin(t *testing.T) {
	group := models.Group{ID: 9, MemberIDs: []int{1, 2, 3}, AdminIDs: []int{1}}

	cases := []struct {
		name   string
		caller int
		target string
		remove bool
		want   int
	}{
		{"member leaves", 2, "2", true, http.StatusNoContent},
		{"admin removes member", 1, "3", true, http.StatusNoContent},
		{"member removes other", 2, "3", false, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := mocks.NewStoreMock()
			router := setupGroupRouter(NewGroupHandler(store, nil, discardLogger()), tc.caller)
			store.GroupRepo.On("Get", mock.Anything, 9).Return(group, nil).Once()
			if tc.remove {
				store.GroupRepo.On("RemoveMember", mock.Anything, 9, mock.Anything).Return(true, nil).Once()
			}

			rec := serve(router, http.MethodDelete, "/groups/9/members/"+tc.target, "")

			require.Equal(t, tc.want, rec.Code)
			store.GroupRepo.AssertExpectations(t)
		})
	}
}

func TestRemoveMemberNotInGroup(t *testing.T) {
	store := mocks.NewStoreMock()
	router := setupGroupRouter(NewGroupHandler(store, nil, discardLogger()), 1)
	store.GroupRepo.On("Get", mock.Anything, 9).Return(models.Group{ID: 9, AdminIDs: []int{1}}, nil).Once()
	store.GroupRepo.On("RemoveMember", mock.Anything, 9, 7).Return(false, nil).Once()

	rec := serve(router, http.MethodDelete, "/groups/9/members/7", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
