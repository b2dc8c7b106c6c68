// Casus Kim? (Spyfall-style social deduction)
//
// Every player but the spies is shown a secret word drawn from the room's
// category. Spies only see the category. Players question each other, then
// either vote out a suspect or, as a spy, try to name the word.
//
// Features:
// - Rooms live in the RoomStore at rooms/{roomId}; each browser subscribes
//   to its room and receives a personalized room_state on every change
// - One Hub goroutine per room serializes every command and is the only
//   writer of winners and scores
// - Rounds resolve once all spies have guessed (spies win only if every
//   guess is right) or once every player has voted
// - The round timer opens voting when it runs out; it never picks a winner
// - Host can edit settings, kick players, start rounds and reset scores
// - Players hold a secret session cookie; rooms and views only carry the
//   public id derived from it
// - Disconnected lobby players are dropped after --player-timeout
// - Idle rooms are reaped after --session-timeout
// - 4-char room codes via crypto/rand, checked against the store

package main

import (
	"context"
	crand "crypto/rand"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	roomCodeLength = 4
	roomCodeChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// Messages coming from clients
type ClientMessage struct {
	Type      string    `json:"type"`                // see Hub.handle
	Nickname  string    `json:"nickname,omitempty"`  // join
	AvatarURL string    `json:"avatarUrl,omitempty"` // join
	Settings  *Settings `json:"settings,omitempty"`  // update_settings
	Target    string    `json:"target,omitempty"`    // kick / vote
	Word      string    `json:"word,omitempty"`      // guess
}

// ErrorMessage is sent only to the client whose command failed.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SimpleMessage is for generic notifications ("kicked", "room_closed").
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newErrorMessage(err error) ErrorMessage {
	return ErrorMessage{
		Type:    "error",
		Code:    errorCode(err),
		Message: err.Error(),
	}
}

type Client struct {
	conn     *websocket.Conn
	playerID string
	send     chan any
	notify   chan struct{}
	done     chan struct{}
	once     sync.Once

	mu     sync.Mutex
	latest *RoomView
}

func newClient(conn *websocket.Conn, playerID string) *Client {
	return &Client{
		conn:     conn,
		playerID: playerID,
		send:     make(chan any, 16),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// push queues a message, dropping it if the client is gone or backed up.
func (c *Client) push(msg any) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
	}
}

// setView replaces any view that has not been written yet. Views are full
// snapshots, so only the newest one matters.
func (c *Client) setView(v RoomView) {
	c.mu.Lock()
	c.latest = &v
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) write(msg any) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *Client) writePump() {
	defer c.close()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}
		case <-c.notify:
			c.mu.Lock()
			v := c.latest
			c.latest = nil
			c.mu.Unlock()

			if v == nil {
				continue
			}
			if err := c.write(v); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.leave(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		if err := h.do(c.playerID, msg); err != nil {
			c.push(newErrorMessage(err))
		}
	}
}

type request struct {
	playerID string
	msg      ClientMessage
	reply    chan error
}

// Hub coordinates a single room. Every command runs on the hub goroutine,
// which is also the only place rounds are resolved.
type Hub struct {
	id         string
	cfg        *Config
	store      RoomStore
	categories *Categories
	rng        *rand.Rand
	now        func() time.Time
	cancel     context.CancelFunc

	clients  map[*Client]bool
	register chan *Client
	unreg    chan *Client
	requests chan request
	changed  chan struct{}
	timeouts chan uint64
	removals chan string
	done     chan struct{}

	mu         sync.RWMutex
	lastActive time.Time

	// timerSeq identifies the armed timer; deliveries from older timers are
	// dropped.
	timer    *time.Timer
	timerSeq uint64
}

func newHub(cfg *Config, store RoomStore, categories *Categories, roomID string, rng *rand.Rand) *Hub {
	return &Hub{
		id:         roomID,
		cfg:        cfg,
		store:      store,
		categories: categories,
		rng:        rng,
		now:        time.Now,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		requests:   make(chan request),
		changed:    make(chan struct{}, 1),
		timeouts:   make(chan uint64),
		removals:   make(chan string),
		done:       make(chan struct{}),
		lastActive: time.Now(),
	}
}

func (h *Hub) run(ctx context.Context) {
	unsubscribe := h.store.Subscribe(roomPath(h.id), func(any, bool) {
		select {
		case h.changed <- struct{}{}:
		default:
		}
	})

	defer func() {
		unsubscribe()
		h.stopTimer()
		for c := range h.clients {
			c.close()
			delete(h.clients, c)
		}
		close(h.done)
	}()

	h.resumeTimer(ctx)

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.touch()
			h.clients[c] = true

		case c := <-h.unreg:
			h.touch()
			if _, ok := h.clients[c]; !ok {
				break
			}
			delete(h.clients, c)
			if !h.connected(c.playerID) && h.cfg.playerTimeout > 0 {
				h.scheduleRemoval(c.playerID)
			}

		case req := <-h.requests:
			h.touch()
			err := h.handle(ctx, req)
			h.evaluate(ctx)
			req.reply <- err

		case <-h.changed:
			h.evaluate(ctx)

		case seq := <-h.timeouts:
			h.onTimeout(ctx, seq)

		case playerID := <-h.removals:
			h.removeIfGone(ctx, playerID)
		}
	}
}

func (h *Hub) stop() {
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()
}

func (h *Hub) idleSince() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastActive
}

// join registers c with the hub. It reports false once the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unreg <- c:
	case <-h.done:
	}
}

// do runs a command on the hub goroutine and waits for its result.
func (h *Hub) do(playerID string, msg ClientMessage) error {
	req := request{
		playerID: playerID,
		msg:      msg,
		reply:    make(chan error, 1),
	}

	select {
	case h.requests <- req:
	case <-h.done:
		return ErrRoomNotFound
	}

	select {
	case err := <-req.reply:
		return err
	case <-h.done:
		return ErrRoomNotFound
	}
}

func (h *Hub) connected(playerID string) bool {
	for c := range h.clients {
		if c.playerID == playerID {
			return true
		}
	}
	return false
}

func (h *Hub) load(ctx context.Context) (*Room, error) {
	v, ok, err := h.store.Get(ctx, roomPath(h.id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, h.id)
	}
	return decodeRoom(h.id, v)
}

func (h *Hub) handle(ctx context.Context, req request) error {
	room, err := h.load(ctx)
	if err != nil {
		return err
	}

	var (
		updates map[string]any
		start   *roundStart
		after   func()
	)

	switch req.msg.Type {
	case "join":
		updates, err = joinUpdate(room, req.playerID, req.msg.Nickname, req.msg.AvatarURL)
		if !room.HasPlayer(req.playerID) {
			after = func() {
				logf(h.cfg, "GAMES: Player %q joined %s", strings.TrimSpace(req.msg.Nickname), h.id)
			}
		}

	case "update_settings":
		if req.msg.Settings == nil {
			return fmt.Errorf("%w: settings are missing", ErrInvalidSettings)
		}
		updates, err = settingsUpdate(room, req.playerID, *req.msg.Settings, h.categories)

	case "kick":
		updates, err = kickUpdate(room, req.playerID, req.msg.Target)
		after = func() {
			logf(h.cfg, "GAMES: Player %q was kicked from %s", room.Players[req.msg.Target].Nickname, h.id)
			h.sendTo(req.msg.Target, SimpleMessage{
				Type:    "kicked",
				Message: "You have been removed by the host.",
			})
		}

	case "start_round":
		start, err = startRoundUpdate(room, req.playerID, h.rng, h.categories, h.now())

	case "next_round":
		start, err = nextRoundUpdate(room, req.playerID, h.rng, h.categories, h.now())

	case "start_vote":
		updates, err = startVoteUpdate(room, req.playerID)
		after = func() {
			logf(h.cfg, "GAMES: Voting opened in %s", h.id)
		}

	case "vote":
		updates, err = castVoteUpdate(room, req.playerID, req.msg.Target)

	case "guess":
		updates, err = castSpyGuessUpdate(room, req.playerID, req.msg.Word)

	case "new_game":
		updates, err = newGameUpdate(room, req.playerID)
		after = func() {
			h.stopTimer()
			logf(h.cfg, "GAMES: Scores reset in %s", h.id)
		}

	case "close_room":
		updates, err = closeRoomUpdate(room, req.playerID)
		after = func() {
			h.stopTimer()
			logf(h.cfg, "GAMES: Room %s closed by host", h.id)
		}

	default:
		return fmt.Errorf("%w: unknown message type %q", ErrBadRequest, req.msg.Type)
	}
	if err != nil {
		return err
	}

	if start != nil {
		if start.warning != nil {
			errorf("%s: %v", h.id, start.warning)
		}
		updates = start.updates
		after = func() {
			h.armTimer(time.Duration(room.Settings.TimeLimit) * time.Minute)
			logf(h.cfg, "GAMES: Round %d started in %s with %d players", start.round, h.id, len(room.Players))
		}
	}

	if len(updates) == 0 {
		return nil
	}
	if err := h.store.Update(ctx, updates); err != nil {
		return err
	}

	if after != nil {
		after()
	}

	return nil
}

// evaluate resolves the round if it is ready. It is a no-op once a winner
// is set, so calling it after every change is safe.
func (h *Hub) evaluate(ctx context.Context) {
	room, err := h.load(ctx)
	if err != nil {
		if !errors.Is(err, ErrRoomNotFound) {
			errorf("%s: %v", h.id, err)
		}
		return
	}

	o, ok := Resolve(room)
	if !ok {
		return
	}

	if err := h.store.Update(ctx, resolutionUpdate(room, o)); err != nil {
		// The predicate still holds, so the next change retries.
		errorf("resolving round %d in %s: %v", room.GameState.Round, h.id, err)
		h.sendTo(room.HostID, newErrorMessage(err))
		return
	}

	h.stopTimer()

	logf(h.cfg, "GAMES: Round %d in %s won by %s (%s), %d points each",
		room.GameState.Round, h.id, o.Winner, o.Reason, Points(room.Settings.Scores, o))
}

func (h *Hub) sendTo(playerID string, msg any) {
	for c := range h.clients {
		if c.playerID == playerID {
			c.push(msg)
		}
	}
}

func (h *Hub) armTimer(d time.Duration) {
	h.stopTimer()
	seq := h.timerSeq
	h.timer = time.AfterFunc(d, func() {
		select {
		case h.timeouts <- seq:
		case <-h.done:
		}
	})
}

func (h *Hub) stopTimer() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.timerSeq++
}

// resumeTimer re-arms the round timer for a room restored from storage.
func (h *Hub) resumeTimer(ctx context.Context) {
	room, err := h.load(ctx)
	if err != nil || room.Phase() != PhaseActive {
		return
	}

	deadline := time.UnixMilli(room.GameState.StartTime).Add(time.Duration(room.Settings.TimeLimit) * time.Minute)
	h.armTimer(max(deadline.Sub(h.now()), 0))
}

// onTimeout opens voting when the timer armed as seq runs out. It never
// decides a winner by itself.
func (h *Hub) onTimeout(ctx context.Context, seq uint64) {
	if h.timer == nil || seq != h.timerSeq {
		return
	}
	h.timer = nil

	room, err := h.load(ctx)
	if err != nil {
		return
	}
	if room.Phase() != PhaseActive {
		return
	}

	updates, err := startVoteUpdate(room, "")
	if err == nil {
		err = h.store.Update(ctx, updates)
	}
	if err != nil {
		errorf("opening vote on timeout in %s: %v", h.id, err)
		return
	}

	logf(h.cfg, "GAMES: Time is up for round %d in %s, voting opened", room.GameState.Round, h.id)
}

// scheduleRemoval waits for the player timeout, then drops the player from
// the lobby if they have not reconnected.
func (h *Hub) scheduleRemoval(playerID string) {
	time.AfterFunc(h.cfg.playerTimeout, func() {
		select {
		case h.removals <- playerID:
		case <-h.done:
		}
	})
}

func (h *Hub) removeIfGone(ctx context.Context, playerID string) {
	if h.connected(playerID) {
		return
	}

	room, err := h.load(ctx)
	if err != nil {
		return
	}
	if room.Status != StatusWaiting || room.IsHost(playerID) || !room.HasPlayer(playerID) {
		return
	}

	if err := h.store.Set(ctx, playerPath(h.id, playerID), nil); err != nil {
		errorf("removing idle player from %s: %v", h.id, err)
		return
	}

	logf(h.cfg, "GAMES: Player %q timed out of %s", room.Players[playerID].Nickname, h.id)
}

// RoomManager holds the hubs of every open room.
type RoomManager struct {
	ctx        context.Context
	cfg        *Config
	store      RoomStore
	categories *Categories

	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
}

func newRoomManager(ctx context.Context, cfg *Config, store RoomStore, categories *Categories) *RoomManager {
	m := &RoomManager{
		ctx:         ctx,
		cfg:         cfg,
		store:       store,
		categories:  categories,
		hubs:        make(map[string]*Hub),
		idleTimeout: cfg.sessionTimeout,
	}
	if m.idleTimeout > 0 {
		go m.reaperLoop()
	}
	return m
}

// restore starts hubs for every open room found in the store.
func (m *RoomManager) restore() (int, error) {
	v, ok, err := m.store.Get(m.ctx, "rooms")
	if err != nil || !ok {
		return 0, err
	}
	rooms, _ := v.(map[string]any)

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, doc := range rooms {
		room, err := decodeRoom(id, doc)
		if err != nil {
			errorf("skipping stored room: %v", err)
			continue
		}
		if room.Status == StatusFinished {
			continue
		}
		if _, err := m.startHubLocked(id); err != nil {
			return n, err
		}
		n++
	}

	return n, nil
}

// createRoom stores a new waiting room owned by hostID and starts its hub.
func (m *RoomManager) createRoom(ctx context.Context, hostID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for range 32 {
		code, err := newRoomCode()
		if err != nil {
			return "", err
		}

		_, exists, err := m.store.Get(ctx, roomPath(code))
		if err != nil {
			return "", err
		}
		if exists {
			continue
		}

		room := Room{
			HostID:    hostID,
			Status:    StatusWaiting,
			Settings:  defaultSettings(m.categories.Default().ID),
			CreatedAt: time.Now().UnixMilli(),
		}
		if err := m.store.Set(ctx, roomPath(code), room); err != nil {
			return "", err
		}

		if _, err := m.startHubLocked(code); err != nil {
			return "", err
		}

		return code, nil
	}

	return "", errors.New("no free room code found")
}

func (m *RoomManager) hub(ctx context.Context, roomID string) (*Hub, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.hubs[roomID]; ok {
		return h, nil
	}

	_, exists, err := m.store.Get(ctx, roomPath(roomID))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	return m.startHubLocked(roomID)
}

func (m *RoomManager) startHubLocked(roomID string) (*Hub, error) {
	rng, err := newRand()
	if err != nil {
		return nil, err
	}

	h := newHub(m.cfg, m.store, m.categories, roomID, rng)
	ctx, cancel := context.WithCancel(m.ctx)
	h.cancel = cancel
	m.hubs[roomID] = h

	go h.run(ctx)

	return h, nil
}

// reaperLoop periodically removes rooms that have been idle longer than idleTimeout.
func (m *RoomManager) reaperLoop() {
	ticker := time.NewTicker(m.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-m.idleTimeout)

		m.mu.Lock()
		for id, h := range m.hubs {
			if h.idleSince().After(cutoff) {
				continue
			}
			delete(m.hubs, id)
			h.stop()

			if err := m.store.Set(m.ctx, roomPath(id), nil); err != nil {
				errorf("reaping %s: %v", id, err)
				continue
			}
			logf(m.cfg, "GAMES: Reaped idle room %s", id)
		}
		m.mu.Unlock()
	}
}

// newRoomCode returns a crypto-random room code.
func newRoomCode() (string, error) {
	buf := make([]byte, roomCodeLength)
	if _, err := crand.Read(buf); err != nil {
		return "", fmt.Errorf("generating room code: %w", err)
	}

	out := make([]byte, roomCodeLength)
	for i := range out {
		out[i] = roomCodeChars[int(buf[i])%len(roomCodeChars)]
	}

	return string(out), nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const sessionCookieName = "casuskim_session"

// playerNamespace scopes the public ids derived from session tokens.
var playerNamespace = uuid.MustParse("5b0f6c3e-2a51-4d8e-9a67-3c1f0e7d4b92")

// publicPlayerID maps a secret session token to the id other players see.
// The token cannot be recovered from the id.
func publicPlayerID(token string) string {
	return uuid.NewSHA1(playerNamespace, []byte(token)).String()
}

// playerFromCookie returns the requester's public player id, issuing a new
// session token when the cookie is missing or malformed.
func playerFromCookie(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookieName); err == nil {
		if token, err := uuid.Parse(c.Value); err == nil {
			return publicPlayerID(token.String())
		}
	}

	token := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return publicPlayerID(token)
}

// WebSocket handler that picks the hub based on :roomid
func serveWSForManager(cfg *Config, m *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := strings.ToUpper(ps.ByName("roomid"))

		hub, err := m.hub(r.Context(), roomID)
		if err != nil {
			if errors.Is(err, ErrRoomNotFound) {
				http.Error(w, "room not found", http.StatusNotFound)
				return
			}
			http.Error(w, "unable to open room", http.StatusInternalServerError)
			return
		}

		playerID := playerFromCookie(w, r)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := newClient(conn, playerID)

		unsubscribe := m.store.Subscribe(roomPath(roomID), func(v any, ok bool) {
			if !ok {
				client.push(SimpleMessage{
					Type:    "room_closed",
					Message: "This room no longer exists.",
				})
				return
			}
			room, err := decodeRoom(roomID, v)
			if err != nil {
				errorf("%v", err)
				return
			}
			client.setView(buildView(room, playerID, m.categories))
		})
		defer unsubscribe()

		if !hub.join(client) {
			client.close()
			return
		}

		go client.writePump()
		client.readPump(hub)
	}
}

// serveState returns the cookie holder's view of a room as JSON.
func serveState(cfg *Config, m *RoomManager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := strings.ToUpper(ps.ByName("roomid"))

		v, ok, err := m.store.Get(r.Context(), roomPath(roomID))
		if err != nil {
			http.Error(w, "unable to read room", http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		room, err := decodeRoom(roomID, v)
		if err != nil {
			http.Error(w, "unable to read room", http.StatusInternalServerError)
			return
		}

		playerID := playerFromCookie(w, r)

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		if err := json.NewEncoder(w).Encode(buildView(room, playerID, m.categories)); err != nil {
			errs <- err
		}
	}
}

func serveCategories(cfg *Config, categories *Categories, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)

		if err := json.NewEncoder(w).Encode(categories.List()); err != nil {
			errs <- err
		}
	}
}

const qrSize = 320

// roomURL is the absolute link players scan to reach roomID.
func roomURL(cfg *Config, r *http.Request, path, roomID string) string {
	scheme := cfg.scheme()
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host + cfg.prefix + path + "/" + roomID
}

// serveQR renders the join link of an existing room as a PNG.
func serveQR(cfg *Config, path string, m *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := strings.ToUpper(ps.ByName("roomid"))

		_, ok, err := m.store.Get(r.Context(), roomPath(roomID))
		if err != nil {
			http.Error(w, "unable to read room", http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		png, err := qrcode.Encode(roomURL(cfg, r, path, roomID), qrcode.Medium, qrSize)
		if err != nil {
			errorf("qr for %s: %v", roomID, err)
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)

		_, _ = w.Write(png)
	}
}

// ---- Static file paths ----

//go:embed spyfall/index.html
var indexHTML []byte

//go:embed spyfall/app.css
var spyfallCSS []byte

//go:embed spyfall/app.js
var spyfallJS []byte

func serveStatic(cfg *Config, contentType string, data []byte, withCookie bool) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		if withCookie {
			_ = playerFromCookie(w, r)
		}

		_, _ = w.Write(data)
	}
}

// redirectNewRoom handles GET /path by creating a room hosted by the
// requester and redirecting to /path/:roomid.
func redirectNewRoom(cfg *Config, path string, m *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		playerID := playerFromCookie(w, r)

		roomID, err := m.createRoom(r.Context(), playerID)
		if err != nil {
			errorf("creating room: %v", err)
			http.Error(w, "unable to create room", http.StatusInternalServerError)
			return
		}

		logf(cfg, "GAMES: Created room %s%s/%s", cfg.prefix, path, roomID)
		http.Redirect(w, r, cfg.prefix+path+"/"+roomID, http.StatusTemporaryRedirect)
	}
}

// registerSpyfall sets up routes so that:
//   - $path                  → creates a room and redirects to it
//   - $path/:roomid          → HTML client
//   - $path/:roomid/ws       → WebSocket for that room
//   - $path/:roomid/state    → JSON view for the requesting player
//   - $path/:roomid/qr       → PNG QR code linking to the room
func registerSpyfall(cfg *Config, path string, mux *httprouter.Router, m *RoomManager, errs chan<- error) {
	mux.GET(cfg.prefix+path, redirectNewRoom(cfg, path, m))

	mux.GET(cfg.prefix+path+"/:roomid", serveStatic(cfg, "text/html; charset=utf-8", indexHTML, true))

	mux.GET(cfg.prefix+"/assets/spyfall/app.css", serveStatic(cfg, "text/css; charset=utf-8", spyfallCSS, false))
	mux.GET(cfg.prefix+"/assets/spyfall/app.js", serveStatic(cfg, "application/javascript; charset=utf-8", spyfallJS, false))

	mux.GET(cfg.prefix+path+"/:roomid/ws", serveWSForManager(cfg, m))
	mux.GET(cfg.prefix+path+"/:roomid/state", serveState(cfg, m, errs))
	mux.GET(cfg.prefix+path+"/:roomid/qr", serveQR(cfg, path, m))

	mux.GET(cfg.prefix+"/categories", serveCategories(cfg, m.categories, errs))
}
