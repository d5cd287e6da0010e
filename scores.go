// Scorebox shared scoreboard
//
// Everyone at the table opens the same link and sees the same board. Any
// player can add or remove players, type in a score and submit it, clear all
// scores, or set the cutoff; every change is pushed to all connected clients.
//
// Features:
// - WebSockets per scoreboard ID: /path/:gameid and /path/:gameid/ws
// - First connection to a scoreboard becomes host
// - Host can lock/unlock the board (others can watch but not edit)
// - Clients identified by cookie
// - Invalid scores are reported only to the client that submitted them
// - Duplicate and blank player names are ignored
// - Scoreboards auto-reaped after configurable idle timeout
// - Random 8-char scoreboard IDs via crypto/rand, with server-side collision check
// - In-browser QR button to share the current board, backed by go-qrcode
// - YAML export of the current board at /path/:gameid/export

package main

import (
	"crypto/rand"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/scorebox/tracker"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Messages coming from clients
type ClientMessage struct {
	Type   string `json:"type"`             // see the msg* constants
	Player string `json:"player,omitempty"` // add_player / remove_player / stage_score / commit_score
	Value  string `json:"value,omitempty"`  // stage_score / set_cutoff
	Lock   *bool  `json:"lock,omitempty"`   // lock_board
}

const (
	msgAddPlayer    = "add_player"
	msgRemovePlayer = "remove_player"
	msgStageScore   = "stage_score"
	msgCommitScore  = "commit_score"
	msgClearScores  = "clear_scores"
	msgSetCutoff    = "set_cutoff"
	msgLockBoard    = "lock_board"
)

// BoardMessage carries the full scoreboard; clients redraw from it.
type BoardMessage struct {
	Type  string        `json:"type"` // "board"
	Board tracker.Board `json:"board"`
}

// Sent to a single client when a submitted score is not a number
type ValidationMessage struct {
	Type    string `json:"type"`    // "validation"
	Player  string `json:"player"`  // whose score field was rejected
	Input   string `json:"input"`   // the rejected text
	Message string `json:"message"` // user-facing text
}

// ResetInputMessage tells the sender to empty one of its input fields.
type ResetInputMessage struct {
	Type  string `json:"type"`  // "reset_input"
	Field string `json:"field"` // "new_player"
}

// SimpleMessage is for generic notifications ("board_locked", "unknown_player", etc.)
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// BoardStateMessage informs clients about lock/unlock changes.
type BoardStateMessage struct {
	Type   string `json:"type"` // "board_state"
	Locked bool   `json:"locked"`
}

// SessionInfoMessage is sent immediately on connect so the client knows
// whether the board is locked and whether it is the host.
type SessionInfoMessage struct {
	Type     string `json:"type"` // "session_info"
	Locked   bool   `json:"locked"`
	IsHost   bool   `json:"is_host"`
	Version  string `json:"version"`
	Watchers int    `json:"watchers"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	clientID string
}

type command struct {
	client *Client
	msg    ClientMessage
}

type Hub struct {
	id      string
	scores  *tracker.Tracker
	clients map[*Client]bool

	register chan *Client
	unreg    chan *Client
	commands chan command
	done     chan struct{}
	stopOnce sync.Once

	mu sync.RWMutex

	createdAt  time.Time
	lastActive time.Time
	locked     bool
	hostID     string // cookie of the first client to connect
}

func newHub(gameID string) *Hub {
	now := time.Now()
	return &Hub{
		id:         gameID,
		scores:     tracker.New(),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		commands:   make(chan command),
		done:       make(chan struct{}),
		createdAt:  now,
		lastActive: now,
	}
}

func (h *Hub) run(cfg *Config) {
	for {
		select {
		case c := <-h.register:
			h.handleRegister(c)

		case c := <-h.unreg:
			h.mu.Lock()
			h.lastActive = time.Now()

			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case cmd := <-h.commands:
			h.handleCommand(cfg, cmd)

		case <-h.done:
			return
		}
	}
}

func (h *Hub) handleRegister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	// First connection becomes host
	if h.hostID == "" {
		h.hostID = c.clientID
	}

	h.clients[c] = true

	h.sendLocked(c, SessionInfoMessage{
		Type:     "session_info",
		Locked:   h.locked,
		IsHost:   c.clientID == h.hostID,
		Version:  releaseVersion,
		Watchers: len(h.clients),
	})
	h.sendLocked(c, h.boardMessage())
}

// sendLocked queues msg for a single client, dropping the client if its
// buffer is full. Assumes h.mu is held.
func (h *Hub) sendLocked(c *Client, msg any) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcastLocked(msg any) {
	for client := range h.clients {
		h.sendLocked(client, msg)
	}
}

func (h *Hub) boardMessage() BoardMessage {
	return BoardMessage{
		Type:  "board",
		Board: h.scores.Board(),
	}
}

func (h *Hub) broadcastBoardLocked() {
	h.broadcastLocked(h.boardMessage())
}

// handleCommand applies one client request to the scoreboard. Every state
// change is followed by a board broadcast.
func (h *Hub) handleCommand(cfg *Config, cmd command) {
	c := cmd.client
	msg := cmd.msg

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	isHost := h.hostID != "" && c.clientID == h.hostID

	if msg.Type == msgLockBoard {
		if !isHost {
			return
		}

		h.locked = msg.Lock != nil && *msg.Lock
		h.broadcastLocked(BoardStateMessage{
			Type:   "board_state",
			Locked: h.locked,
		})
		logf(cfg, "GAMES: Board %s locked=%t", h.id, h.locked)

		return
	}

	if h.locked && !isHost {
		h.sendLocked(c, SimpleMessage{
			Type:    "board_locked",
			Message: "The host has locked this board.",
		})

		return
	}

	switch msg.Type {
	case msgAddPlayer:
		outcome := h.scores.AddPlayer(msg.Player)
		if outcome.ClearsInput() {
			h.sendLocked(c, ResetInputMessage{
				Type:  "reset_input",
				Field: "new_player",
			})
		}
		if outcome == tracker.AddAdded {
			logf(cfg, "GAMES: Player %q added to %s", msg.Player, h.id)
			h.broadcastBoardLocked()
		}

	case msgRemovePlayer:
		h.scores.RemovePlayer(msg.Player)
		logf(cfg, "GAMES: Player %q removed from %s", msg.Player, h.id)
		h.broadcastBoardLocked()

	case msgStageScore:
		if err := h.scores.StageScoreInput(msg.Player, msg.Value); err != nil {
			h.sendError(c, err)

			return
		}
		h.broadcastBoardLocked()

	case msgCommitScore:
		score, err := h.scores.CommitScore(msg.Player)
		if err != nil {
			h.sendError(c, err)

			return
		}
		logf(cfg, "GAMES: Recorded %d for %q in %s", score, msg.Player, h.id)
		h.broadcastBoardLocked()

	case msgClearScores:
		h.scores.ClearAllScores()
		logf(cfg, "GAMES: Cleared all scores in %s", h.id)
		h.broadcastBoardLocked()

	case msgSetCutoff:
		if !h.scores.SetCutoff(msg.Value) {
			return
		}
		cutoff, _ := h.scores.Cutoff()
		logf(cfg, "GAMES: Cutoff set to %d in %s", cutoff, h.id)
		h.broadcastBoardLocked()
	}
}

// sendError reports a rejected command to the client that sent it.
func (h *Hub) sendError(c *Client, err error) {
	var verr *tracker.ValidationError
	if errors.As(err, &verr) {
		h.sendLocked(c, ValidationMessage{
			Type:    "validation",
			Player:  verr.Player,
			Input:   verr.Input,
			Message: verr.Message(),
		})

		return
	}

	var lerr *tracker.LookupError
	if errors.As(err, &lerr) {
		h.sendLocked(c, SimpleMessage{
			Type:    "unknown_player",
			Message: "No player named " + lerr.Player + " is on this board.",
		})
	}
}

// stop ends the hub's run loop and disconnects all clients (used by reaper).
func (h *Hub) stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		defer h.mu.Unlock()

		for c := range h.clients {
			close(c.send)
			if c.conn != nil {
				_ = c.conn.Close()
			}
			delete(h.clients, c)
		}
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const clientCookieName = "scorebox_id"

func getOrSetClientID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(clientCookieName); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}

	id, err := uuid.NewRandom()
	if err != nil {
		log.Println("uuid error:", err)
		return ""
	}

	http.SetCookie(w, &http.Cookie{
		Name:     clientCookieName,
		Value:    id.String(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id.String()
}

// SessionManager holds a set of hubs keyed by scoreboard ID, so each
// $path/$gameid is its own isolated board.
type SessionManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
	done        chan struct{}
	closeOnce   sync.Once
}

func newSessionManager(idleTimeout time.Duration) *SessionManager {
	sm := &SessionManager{
		hubs:        make(map[string]*Hub),
		idleTimeout: idleTimeout,
		done:        make(chan struct{}),
	}
	if idleTimeout > 0 {
		go sm.reaperLoop()
	}
	return sm
}

func (sm *SessionManager) getHub(cfg *Config, gameID string) *Hub {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if hub, ok := sm.hubs[gameID]; ok {
		return hub
	}

	hub := newHub(gameID)
	sm.hubs[gameID] = hub
	go hub.run(cfg)
	return hub
}

// lookup returns an existing hub without creating one.
func (sm *SessionManager) lookup(gameID string) (*Hub, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	hub, ok := sm.hubs[gameID]
	return hub, ok
}

// newGameID generates a crypto-random scoreboard ID and ensures it doesn't
// collide with existing boards.
func (sm *SessionManager) newGameID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		sm.mu.Lock()
		_, exists := sm.hubs[id]
		sm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reap removes hubs that have been idle since before cutoff.
func (sm *SessionManager) reap(cutoff time.Time) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	reaped := 0
	for id, hub := range sm.hubs {
		hub.mu.RLock()
		last := hub.lastActive
		hub.mu.RUnlock()

		if last.Before(cutoff) {
			delete(sm.hubs, id)
			go hub.stop()
			reaped++
		}
	}
	return reaped
}

// reaperLoop periodically removes hubs that have been idle longer than idleTimeout.
func (sm *SessionManager) reaperLoop() {
	ticker := time.NewTicker(sm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sm.reap(time.Now().Add(-sm.idleTimeout))
		case <-sm.done:
			return
		}
	}
}

// Close stops the reaper and every hub.
func (sm *SessionManager) Close() {
	sm.closeOnce.Do(func() {
		close(sm.done)

		sm.mu.Lock()
		defer sm.mu.Unlock()

		for id, hub := range sm.hubs {
			delete(sm.hubs, id)
			hub.stop()
		}
	})
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForManager(cfg *Config, sm *SessionManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing scoreboard id", http.StatusBadRequest)
			return
		}

		clientID := getOrSetClientID(w, r)
		if clientID == "" {
			http.Error(w, "unable to assign client id", http.StatusInternalServerError)
			return
		}

		hub := sm.getHub(cfg, gameID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 16),
			clientID: clientID,
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			_ = conn.Close()
			return
		}

		logf(cfg, "GAMES: Client connected to %s from %s", gameID, realIP(r))

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case msgAddPlayer, msgRemovePlayer, msgStageScore, msgCommitScore,
			msgClearScores, msgSetCutoff, msgLockBoard:
			select {
			case h.commands <- command{client: c, msg: msg}:
			case <-h.done:
				return
			}
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current scoreboard URL using go-qrcode.
func qrHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing scoreboard id", http.StatusBadRequest)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}

		// We are at /.../:gameid/qr; strip trailing "/qr" to get the board URL.
		path := strings.TrimSuffix(r.URL.Path, "/qr")

		url := scheme + "://" + r.Host + path

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)
		_, _ = w.Write(png)
	}
}

// exportHandler serves the current board of an existing scoreboard as YAML.
func exportHandler(cfg *Config, sm *SessionManager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		gameID := ps.ByName("gameid")

		hub, ok := sm.lookup(gameID)
		if !ok {
			http.NotFound(w, r)
			return
		}

		data, err := hub.scores.Board().YAML()
		if err != nil {
			errs <- err
			http.Error(w, "export failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="scorebox-`+gameID+`.yaml"`)
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		written, err := w.Write(data)
		if err != nil {
			errs <- err
			return
		}

		logf(cfg, "SERVE: Export of %s (%s) to %s in %s",
			gameID,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func getIndexHandler(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		data, err := assets.ReadFile("assets/index.html")
		if err != nil {
			errs <- err
			http.Error(w, "missing client", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_ = getOrSetClientID(w, r)

		_, _ = w.Write(data)
	}
}

// redirectNewGame handles GET /path by generating a new random scoreboard ID
// (with server-side collision detection) and redirecting to /path/:gameid.
func redirectNewGame(cfg *Config, path string, sm *SessionManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID := sm.newGameID()
		logf(cfg, "GAMES: Created scoreboard %s/%s", path, gameID)
		http.Redirect(w, r, cfg.prefix+path+"/"+gameID, http.StatusTemporaryRedirect)
	}
}

// registerScoreboard sets up routes so that:
//   - $path                  → redirects to new random scoreboard (8-char ID)
//   - $path/:gameid          → HTML client
//   - $path/:gameid/ws       → WebSocket for that scoreboard
//   - $path/:gameid/qr       → PNG QR code for that scoreboard URL
//   - $path/:gameid/export   → YAML snapshot of that scoreboard
func registerScoreboard(cfg *Config, path string, mux *httprouter.Router, errs chan<- error) *SessionManager {
	sm := newSessionManager(cfg.sessionTimeout)

	mux.GET(cfg.prefix+path, redirectNewGame(cfg, path, sm))

	mux.GET(cfg.prefix+path+"/:gameid", getIndexHandler(cfg, errs))

	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWSForManager(cfg, sm))

	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler(cfg))

	mux.GET(cfg.prefix+path+"/:gameid/export", exportHandler(cfg, sm, errs))

	return sm
}
