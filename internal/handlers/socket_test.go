package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsDial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err, "websocket dial")
	if resp != nil {
		resp.Body.Close()
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg), "read frame")
	return msg
}

func TestWebsocketSession(t *testing.T) {
	e := newHTTPEnv(t)
	ana := e.seedPlayer(t, "ana")

	srv := httptest.NewServer(e.router)
	defer srv.Close()

	conn := wsDial(t, srv, e.token(t, ana))
	defer conn.Close()

	hello := readFrame(t, conn)
	assert.Equal(t, "connection_established", hello["type"])
	assert.EqualValues(t, ana.ID, hello["user_id"])
	assert.Equal(t, "ana", hello["nickname"])
	assert.Nil(t, hello["room_id"])
	assert.NotEmpty(t, hello["timestamp"])

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "ping"}))
	pong := readFrame(t, conn)
	assert.Equal(t, "pong", pong["type"])
	assert.NotEmpty(t, pong["timestamp"])
}

func TestWebsocketRejectsBadToken(t *testing.T) {
	e := newHTTPEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=bogus"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Nil(t, conn)
}

func TestWebsocketJoinFansOut(t *testing.T) {
	e := newHTTPEnv(t)
	ana := e.seedPlayer(t, "ana")
	bob := e.seedPlayer(t, "bob")

	room, err := e.rooms.CreateRoom(e.ctx, ana.ID, 4, true, false)
	require.NoError(t, err)

	srv := httptest.NewServer(e.router)
	defer srv.Close()

	anaConn := wsDial(t, srv, e.token(t, ana))
	defer anaConn.Close()
	hello := readFrame(t, anaConn)
	assert.EqualValues(t, room.ID, hello["room_id"], "member reattaches into their room")

	bobConn := wsDial(t, srv, e.token(t, bob))
	defer bobConn.Close()
	readFrame(t, bobConn)

	require.NoError(t, bobConn.WriteJSON(map[string]any{
		"action": "join_room",
		"data":   map[string]any{"room_id": room.ID},
	}))

	joined := readFrame(t, bobConn)
	assert.Equal(t, "player_joined", joined["type"])
	assert.EqualValues(t, bob.ID, joined["user_id"])

	seen := readFrame(t, anaConn)
	assert.Equal(t, "player_joined", seen["type"])
	assert.EqualValues(t, bob.ID, seen["user_id"])
	assert.Equal(t, "bob", seen["nickname"])
}
