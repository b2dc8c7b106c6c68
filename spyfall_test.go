package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// testHub returns a hub that is not running, so tests drive it directly.
func testHub(t *testing.T, players ...string) *Hub {
	t.Helper()
	return testHubWithStore(t, newStore(nil), players...)
}

func testHubWithStore(t *testing.T, store *Store, players ...string) *Hub {
	t.Helper()

	room := newTestRoom(players...)
	room.Players = nil
	putRoom(t, store, room)

	h := newHub(&Config{}, store, testCategories(t), testRoomID, testRand(5))
	t.Cleanup(h.stopTimer)

	for _, id := range players {
		require.NoError(t, hubDo(h, id, ClientMessage{Type: "join", Nickname: "nick-" + id}))
	}

	return h
}

// hubDo runs a command the way the hub goroutine does.
func hubDo(h *Hub, playerID string, msg ClientMessage) error {
	ctx := context.Background()
	err := h.handle(ctx, request{playerID: playerID, msg: msg})
	h.evaluate(ctx)
	return err
}

func hubRoom(t *testing.T, h *Hub) *Room {
	t.Helper()
	return getRoom(t, h.store, h.id)
}

func TestHubInnocentsFindSpy(t *testing.T) {
	h := testHub(t, "a", "b", "c")

	require.NoError(t, hubDo(h, "a", ClientMessage{Type: "start_round"}))

	room := hubRoom(t, h)
	require.Equal(t, PhaseActive, room.Phase())
	assert.Equal(t, 1, room.GameState.Round)
	require.NotNil(t, h.timer, "round timer is armed")

	require.NoError(t, hubDo(h, "b", ClientMessage{Type: "start_vote"}))

	spy := room.GameState.Spies()[0]
	var innocents []string
	for _, id := range room.PlayerIDs() {
		if id != spy {
			innocents = append(innocents, id)
		}
	}

	require.NoError(t, hubDo(h, innocents[0], ClientMessage{Type: "vote", Target: spy}))
	require.NoError(t, hubDo(h, innocents[1], ClientMessage{Type: "vote", Target: spy}))
	assert.Equal(t, PhaseVoting, hubRoom(t, h).Phase())

	require.NoError(t, hubDo(h, spy, ClientMessage{Type: "vote", Target: innocents[0]}))

	room = hubRoom(t, h)
	require.Equal(t, PhaseResolved, room.Phase())
	assert.Equal(t, WinnerInnocents, room.GameState.Winner)
	assert.Equal(t, ReasonVoteSpyFound, room.GameState.Reason)
	assert.Nil(t, h.timer, "timer stops once resolved")

	for _, id := range innocents {
		assert.Equal(t, 10, room.Players[id].Score)
	}
	assert.Zero(t, room.Players[spy].Score)

	// A late vote cannot reopen or re-score the round.
	err := hubDo(h, spy, ClientMessage{Type: "vote", Target: innocents[1]})
	assert.ErrorIs(t, err, ErrInvalidPhase)
	assert.Equal(t, room.Players, hubRoom(t, h).Players)
}

func TestHubSpyGuessesWord(t *testing.T) {
	h := testHub(t, "a", "b", "c", "d")

	require.NoError(t, hubDo(h, "a", ClientMessage{Type: "start_round"}))
	room := hubRoom(t, h)
	spy := room.GameState.Spies()[0]

	innocent := room.PlayerIDs()[0]
	if innocent == spy {
		innocent = room.PlayerIDs()[1]
	}
	assert.ErrorIs(t, hubDo(h, innocent, ClientMessage{Type: "guess", Word: "x"}), ErrNotSpy)

	require.NoError(t, hubDo(h, spy, ClientMessage{Type: "guess", Word: room.GameState.SecretWord}))

	room = hubRoom(t, h)
	assert.Equal(t, WinnerSpy, room.GameState.Winner)
	assert.Equal(t, ReasonSpyGuessWin, room.GameState.Reason)
	assert.Equal(t, 20, room.Players[spy].Score)

	require.NoError(t, hubDo(h, "a", ClientMessage{Type: "next_round"}))
	room = hubRoom(t, h)
	assert.Equal(t, 2, room.GameState.Round)
	assert.Equal(t, PhaseActive, room.Phase())
	assert.Equal(t, 20, room.Players[spy].Score, "scores carry over between rounds")
}

func TestHubRejectsCommands(t *testing.T) {
	h := testHub(t, "a", "b", "c")

	assert.ErrorIs(t, hubDo(h, "b", ClientMessage{Type: "start_round"}), ErrNotHost)
	assert.ErrorIs(t, hubDo(h, "a", ClientMessage{Type: "dance"}), ErrBadRequest)
	assert.ErrorIs(t, hubDo(h, "a", ClientMessage{Type: "update_settings"}), ErrInvalidSettings)
	assert.ErrorIs(t, hubDo(h, "a", ClientMessage{Type: "vote", Target: "b"}), ErrInvalidPhase)
	assert.ErrorIs(t, hubDo(h, "a", ClientMessage{Type: "new_game"}), ErrInvalidPhase)
}

func TestHubSettingsAndKick(t *testing.T) {
	h := testHub(t, "a", "b", "c", "d")

	s := defaultSettings("animals")
	s.SpyCount = 2
	require.NoError(t, hubDo(h, "a", ClientMessage{Type: "update_settings", Settings: &s}))
	assert.Equal(t, s, hubRoom(t, h).Settings)

	require.NoError(t, hubDo(h, "a", ClientMessage{Type: "kick", Target: "d"}))
	assert.False(t, hubRoom(t, h).HasPlayer("d"))

	require.NoError(t, hubDo(h, "a", ClientMessage{Type: "start_round"}))
	assert.Len(t, hubRoom(t, h).GameState.Spies(), 2)
}

func TestHubTimeoutOpensVoting(t *testing.T) {
	ctx := context.Background()
	h := testHub(t, "a", "b", "c")

	require.NoError(t, hubDo(h, "a", ClientMessage{Type: "start_round"}))

	h.onTimeout(ctx, h.timerSeq+1)
	assert.Equal(t, PhaseActive, hubRoom(t, h).Phase(), "unknown timers are ignored")

	h.onTimeout(ctx, h.timerSeq)
	room := hubRoom(t, h)
	assert.Equal(t, PhaseVoting, room.Phase())
	assert.Equal(t, WinnerNone, room.GameState.Winner, "time running out never picks a winner")
	assert.Nil(t, h.timer)
}

func TestHubIgnoresTimerFromEarlierGame(t *testing.T) {
	ctx := context.Background()
	h := testHub(t, "a", "b", "c")

	require.NoError(t, hubDo(h, "a", ClientMessage{Type: "start_round"}))
	firstTimer := h.timerSeq

	spy := hubRoom(t, h).GameState.Spies()[0]
	require.NoError(t, hubDo(h, spy, ClientMessage{Type: "guess", Word: "definitely wrong"}))
	require.NoError(t, hubDo(h, "a", ClientMessage{Type: "new_game"}))
	require.NoError(t, hubDo(h, "a", ClientMessage{Type: "start_round"}))

	room := hubRoom(t, h)
	require.Equal(t, 1, room.GameState.Round, "a new game counts rounds from 1 again")

	h.onTimeout(ctx, firstTimer)
	assert.Equal(t, PhaseActive, hubRoom(t, h).Phase())

	h.onTimeout(ctx, h.timerSeq)
	assert.Equal(t, PhaseVoting, hubRoom(t, h).Phase())
}

func testClient(playerID string) *Client {
	return &Client{
		playerID: playerID,
		send:     make(chan any, 16),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func TestHubRetriesFailedResolution(t *testing.T) {
	ctx := context.Background()

	backend := &mockBackend{}
	backend.On("Commit", mock.Anything, mock.MatchedBy(func(docs map[string][]byte) bool {
		return strings.Contains(string(docs[roomPath(testRoomID)]), `"winner"`)
	})).Return(errors.New("disk full")).Once()
	backend.On("Commit", mock.Anything, mock.Anything).Return(nil)

	h := testHubWithStore(t, newStore(backend), "a", "b", "c")

	clients := map[string]*Client{}
	for _, id := range []string{"a", "b", "c"} {
		clients[id] = testClient(id)
		h.clients[clients[id]] = true
	}

	require.NoError(t, hubDo(h, "a", ClientMessage{Type: "start_round"}))
	room := hubRoom(t, h)
	spy := room.GameState.Spies()[0]

	require.NoError(t, hubDo(h, spy, ClientMessage{Type: "guess", Word: room.GameState.SecretWord}))

	room = hubRoom(t, h)
	assert.Equal(t, WinnerNone, room.GameState.Winner)
	assert.Zero(t, room.Players[spy].Score)

	require.Len(t, clients["a"].send, 1)
	msg := <-clients["a"].send
	assert.Equal(t, "store_write_failure", msg.(ErrorMessage).Code)
	assert.Empty(t, clients["b"].send, "only the host hears about failed writes")
	assert.Empty(t, clients["c"].send)

	// Any later change retries.
	require.NoError(t, hubDo(h, "b", ClientMessage{Type: "join", Nickname: "Bora"}))

	room = hubRoom(t, h)
	assert.Equal(t, WinnerSpy, room.GameState.Winner)
	assert.Equal(t, ReasonSpyGuessWin, room.GameState.Reason)
	assert.Equal(t, 20, room.Players[spy].Score)

	h.evaluate(ctx)
	assert.Equal(t, 20, hubRoom(t, h).Players[spy].Score, "scores are applied once")
	assert.Empty(t, clients["a"].send)

	backend.AssertExpectations(t)
}

func TestHubNewGameAndClose(t *testing.T) {
	h := testHub(t, "a", "b", "c")

	require.NoError(t, hubDo(h, "a", ClientMessage{Type: "start_round"}))
	room := hubRoom(t, h)
	spy := room.GameState.Spies()[0]
	require.NoError(t, hubDo(h, spy, ClientMessage{Type: "guess", Word: "definitely wrong"}))

	room = hubRoom(t, h)
	require.Equal(t, ReasonSpyGuessFail, room.GameState.Reason)

	require.NoError(t, hubDo(h, "a", ClientMessage{Type: "new_game"}))
	room = hubRoom(t, h)
	assert.Equal(t, StatusWaiting, room.Status)
	assert.Nil(t, room.GameState)
	for _, p := range room.Players {
		assert.Zero(t, p.Score)
	}

	require.NoError(t, hubDo(h, "a", ClientMessage{Type: "close_room"}))
	assert.Equal(t, StatusFinished, hubRoom(t, h).Status)
	assert.ErrorIs(t, hubDo(h, "z", ClientMessage{Type: "join", Nickname: "Zed"}), ErrInvalidPhase)
}

func TestHubRemovesIdlePlayers(t *testing.T) {
	ctx := context.Background()
	h := testHub(t, "a", "b", "c")

	h.removeIfGone(ctx, "b")
	assert.False(t, hubRoom(t, h).HasPlayer("b"))

	h.removeIfGone(ctx, "a")
	assert.True(t, hubRoom(t, h).HasPlayer("a"), "the host is never dropped")

	require.NoError(t, hubDo(h, "d", ClientMessage{Type: "join", Nickname: "Deniz"}))
	require.NoError(t, hubDo(h, "a", ClientMessage{Type: "start_round"}))

	h.removeIfGone(ctx, "c")
	assert.True(t, hubRoom(t, h).HasPlayer("c"), "players are kept during a round")
}

func TestRoomManager(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newStore(nil)
	m := newRoomManager(ctx, &Config{}, store, testCategories(t))

	code, err := m.createRoom(ctx, "host")
	require.NoError(t, err)
	assert.Len(t, code, roomCodeLength)

	room := getRoom(t, store, code)
	assert.Equal(t, "host", room.HostID)
	assert.Equal(t, StatusWaiting, room.Status)
	assert.Equal(t, "celebrities", room.Settings.CategoryID)

	h, err := m.hub(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, code, h.id)

	require.NoError(t, h.do("host", ClientMessage{Type: "join", Nickname: "Host"}))
	assert.True(t, getRoom(t, store, code).HasPlayer("host"))

	_, err = m.hub(ctx, "NOPE")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestRoomManagerRestore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newStore(nil)
	for id, status := range map[string]RoomStatus{"AAAA": StatusWaiting, "BBBB": StatusPlaying, "CCCC": StatusFinished} {
		room := newTestRoom("a")
		room.ID = id
		room.Status = status
		putRoom(t, store, room)
	}

	m := newRoomManager(ctx, &Config{}, store, testCategories(t))

	n, err := m.restore()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRoomManagerReapsIdleRooms(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newStore(nil)
	m := newRoomManager(ctx, &Config{sessionTimeout: 50 * time.Millisecond}, store, testCategories(t))

	code, err := m.createRoom(ctx, "host")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, ok, _ := store.Get(ctx, roomPath(code))
		return !ok
	}, 2*time.Second, 20*time.Millisecond)
}

func TestNewRoomCode(t *testing.T) {
	for range 100 {
		code, err := newRoomCode()
		require.NoError(t, err)
		require.Len(t, code, roomCodeLength)
		assert.Empty(t, strings.Trim(code, roomCodeChars))
	}
}

func TestErrorCodes(t *testing.T) {
	assert.Equal(t, "not_host", newErrorMessage(ErrNotHost).Code)
	assert.Equal(t, "store_write_failure", errorCode(ErrStoreWrite))
	assert.Equal(t, "internal", errorCode(assert.AnError))
}

func newTestServer(t *testing.T) (*httptest.Server, *Store) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := newStore(nil)
	errs := make(chan error, 8)

	mux, _ := newRouter(ctx, &Config{}, store, testCategories(t), errs)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, store
}

func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

func TestServeWebSocket(t *testing.T) {
	srv, _ := newTestServer(t)

	client := &http.Client{CheckRedirect: noRedirect}
	resp, err := client.Get(srv.URL + "/room")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	location := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(location, "/room/"))

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	header := http.Header{}
	header.Set("Cookie", sessionCookieName+"="+cookie.Value)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + location + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	readView := func() RoomView {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var v RoomView
		require.NoError(t, conn.ReadJSON(&v))
		return v
	}

	v := readView()
	assert.Equal(t, "room_state", v.Type)
	assert.Equal(t, publicPlayerID(cookie.Value), v.You)
	assert.Equal(t, v.You, v.HostID)
	assert.NotEqual(t, cookie.Value, v.You, "the session token is never shown")
	assert.Empty(t, v.Players)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "join", Nickname: "Ayse"}))

	v = readView()
	require.Len(t, v.Players, 1)
	assert.Equal(t, "Ayse", v.Players[0].Nickname)
	assert.True(t, v.Players[0].IsHost)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "start_round"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var e ErrorMessage
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, "error", e.Type)
	assert.Equal(t, "invalid_room_size", e.Code)
}

func TestServeWebSocketUnknownRoom(t *testing.T) {
	srv, _ := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/room/NOPE/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeStateAndAssets(t *testing.T) {
	srv, store := newTestServer(t)

	room := newTestRoom("a", "b", "c")
	room.ID = "ROOM"
	putRoom(t, store, room)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/room/ROOM/state", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "00000000-0000-0000-0000-000000000000"})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var v RoomView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	assert.Equal(t, "ROOM", v.RoomID)
	assert.Len(t, v.Players, 3)

	tests := []struct {
		path        string
		status      int
		contentType string
	}{
		{"/room/ROOM", http.StatusOK, "text/html; charset=utf-8"},
		{"/room/ROOM/qr", http.StatusOK, "image/png"},
		{"/room/room/qr", http.StatusOK, "image/png"},
		{"/room/NOPE/qr", http.StatusNotFound, ""},
		{"/room/NOPE/state", http.StatusNotFound, ""},
		{"/categories", http.StatusOK, "application/json; charset=utf-8"},
		{"/assets/spyfall/app.js", http.StatusOK, "application/javascript; charset=utf-8"},
		{"/", http.StatusOK, "text/html; charset=utf-8"},
		{"/healthz", http.StatusOK, "text/plain; charset=utf-8"},
		{"/version", http.StatusOK, "text/plain; charset=utf-8"},
		{"/join?code=bad", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.contentType != "" {
				assert.Equal(t, tt.contentType, resp.Header.Get("Content-Type"))
			}
		})
	}
}

func TestServeJoinRedirects(t *testing.T) {
	srv, _ := newTestServer(t)

	client := &http.Client{CheckRedirect: noRedirect}
	resp, err := client.Get(srv.URL + "/join?code=ab12")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/room/AB12", resp.Header.Get("Location"))
}

func TestSessionCookieIsNotThePlayerID(t *testing.T) {
	srv, store := newTestServer(t)

	spyToken, innocentToken := uuid.NewString(), uuid.NewString()
	spy, innocent := publicPlayerID(spyToken), publicPlayerID(innocentToken)

	room := playingRoom(map[string]Role{"a": RoleInnocent, spy: RoleSpy, innocent: RoleInnocent}, "Kütüphane")
	room.ID = "ROOM"
	room.HostID = innocent
	putRoom(t, store, room)

	fetch := func(token string) RoomView {
		t.Helper()

		req, err := http.NewRequest(http.MethodGet, srv.URL+"/room/ROOM/state", nil)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var v RoomView
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
		require.NotNil(t, v.Round)
		return v
	}

	v := fetch(spyToken)
	assert.Equal(t, spy, v.You)
	assert.Equal(t, RoleSpy, v.Round.Role)
	assert.Empty(t, v.Round.SecretWord)

	v = fetch(innocentToken)
	assert.Equal(t, innocent, v.You)
	assert.Equal(t, "Kütüphane", v.Round.SecretWord)

	// A public id copied into the cookie names a stranger, not its owner.
	for _, copied := range []string{innocent, spy} {
		v = fetch(copied)
		assert.NotEqual(t, copied, v.You)
		assert.NotEqual(t, v.HostID, v.You)
		assert.Equal(t, RoleUnassigned, v.Round.Role)
		assert.Empty(t, v.Round.SecretWord)
	}
}

func TestRoomURL(t *testing.T) {
	cfg := &Config{prefix: "/games"}

	r := httptest.NewRequest(http.MethodGet, "http://example.com/games/room/abcd/qr", nil)
	assert.Equal(t, "http://example.com/games/room/ABCD", roomURL(cfg, r, "/room", "ABCD"))

	r.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https://example.com/games/room/ABCD", roomURL(cfg, r, "/room", "ABCD"))

	r.Header.Set("X-Forwarded-Proto", "javascript")
	assert.Equal(t, "http://example.com/games/room/ABCD", roomURL(cfg, r, "/room", "ABCD"))
}
