package ws

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/db/dbtest"
	"chat-realtime/internal/delivery"
	"chat-realtime/internal/middleware"
	"chat-realtime/internal/models"
	"chat-realtime/internal/presence"
	"chat-realtime/internal/repositories"
)

type server struct {
	url      string
	registry *presence.Registry
}

func newServer(t *testing.T) (*server, repositories.Store, func(name string) int) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conn := dbtest.Open(t)
	store := repositories.NewStore(conn)
	registry := presence.NewRegistry()
	rooms := presence.NewRooms()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := delivery.NewEngine(store, registry, rooms, nil, log)
	registry.Observe(engine.BroadcastStatus)

	r := gin.New()
	r.GET("/ws", NewHandler(engine, registry, rooms, DefaultConfig(), log).Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &server{url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", registry: registry},
		store,
		func(name string) int { return dbtest.CreateUser(t, conn, name) }
}

func (s *server) dial(t *testing.T, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frameType string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Frame{Type: frameType, Data: raw}))
}

// next reads frames until one of frameType arrives.
func next(t *testing.T, conn *websocket.Conn, frameType string) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var frame Frame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Type == frameType {
			return frame
		}
	}
}

func (s *server) waitOnline(t *testing.T, userID int) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, ok := s.registry.Lookup(userID)
		return ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWebsocketDirectMessageRoundTrip(t *testing.T) {
	srv, store, createUser := newServer(t)
	alice := createUser("alice")
	bob := createUser("bob")

	aliceConn := srv.dial(t, nil)
	bobConn := srv.dial(t, nil)
	send(t, aliceConn, TypeUserConnected, UserConnected{UserID: alice})
	srv.waitOnline(t, alice)
	send(t, bobConn, TypeUserConnected, UserConnected{UserID: bob})
	srv.waitOnline(t, bob)

	send(t, aliceConn, TypeSendMessage, SendMessage{Sender: alice, Recipient: bob, Content: "hello bob"})

	var received models.PopulatedMessage
	require.NoError(t, json.Unmarshal(next(t, bobConn, models.EventReceiveMessage).Data, &received))
	assert.Equal(t, "hello bob", received.Content)
	assert.Equal(t, "alice", received.Sender.Name)

	var sent models.PopulatedMessage
	require.NoError(t, json.Unmarshal(next(t, aliceConn, models.EventMessageSent).Data, &sent))
	assert.Equal(t, received.ID, sent.ID)

	convs, err := store.Conversations().ListForUser(t.Context(), bob)
	require.NoError(t, err)
	require.Len(t, convs, 1)

	send(t, bobConn, TypeMarkRead, MarkRead{ConversationID: convs[0].ID, UserID: bob})
	var read models.ReadEvent
	require.NoError(t, json.Unmarshal(next(t, aliceConn, models.EventMessagesRead).Data, &read))
	assert.Equal(t, bob, read.UserID)
}

func TestWebsocketDisconnectBroadcastsOffline(t *testing.T) {
	srv, store, createUser := newServer(t)
	alice := createUser("alice")
	bob := createUser("bob")

	aliceConn := srv.dial(t, nil)
	send(t, aliceConn, TypeUserConnected, UserConnected{UserID: alice})
	srv.waitOnline(t, alice)

	bobConn := srv.dial(t, nil)
	send(t, bobConn, TypeUserConnected, UserConnected{UserID: bob})
	srv.waitOnline(t, bob)
	require.NoError(t, bobConn.Close())

	for {
		var change models.StatusChange
		require.NoError(t, json.Unmarshal(next(t, aliceConn, models.EventUserStatusChange).Data, &change))
		if change.UserID == bob && change.Status == models.StatusOffline {
			assert.NotNil(t, change.LastSeen)
			assert.NotZero(t, change.Stamp)
			break
		}
	}

	user, err := store.Users().GetUser(t.Context(), bob)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, user.Status)
}

func TestWebsocketClaimedIdentityMustMatch(t *testing.T) {
	srv, _, createUser := newServer(t)
	alice := createUser("alice")

	header := http.Header{}
	header.Set(middleware.HeaderUserID, strconv.Itoa(alice))
	conn := srv.dial(t, header)
	send(t, conn, TypeUserConnected, UserConnected{UserID: alice + 1})

	var evt models.ErrorEvent
	require.NoError(t, json.Unmarshal(next(t, conn, models.EventMessageError).Data, &evt))
	assert.Equal(t, "invalid message", evt.Error)
	_, ok := srv.registry.Lookup(alice + 1)
	assert.False(t, ok)
}

func TestWebsocketRejectsInvalidIdentityHeader(t *testing.T) {
	srv, _, _ := newServer(t)
	header := http.Header{}
	header.Set(middleware.HeaderUserID, "nope")

	_, resp, err := websocket.DefaultDialer.Dial(srv.url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
