// Package eventbus fans judging and leaderboard events out to connected
// websocket clients, grouped into rooms so a team only receives the
// traffic relevant to it while admins can watch everything.
package eventbus

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/judgeboard/platform/internal/auth"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

// RoomAdmins is the room every admin connection joins in addition to its
// contest room.
const RoomAdmins = "admins"

// RoomContest returns the broadcast room for every client watching a
// contest, team and admin connections alike.
func RoomContest(contestID uuid.UUID) string {
	return "contest:" + contestID.String()
}

// RoomTeam returns the room scoped to messages meant for one team only,
// such as its own verdicts.
func RoomTeam(teamID uuid.UUID) string {
	return "team:" + teamID.String()
}

// Client is one connected websocket, the same Send/Done-channel shape the
// teacher's gateway used for its trading clients, scoped here to the
// rooms it has joined.
type Client struct {
	ID      uuid.UUID
	TeamID  uuid.UUID
	IsAdmin bool
	Conn    *websocket.Conn
	Send    chan []byte
	Done    chan struct{}
	rooms   []string
}

// Hub owns every connected client and the room memberships used to route
// broadcasts. All mutation goes through the register/unregister/broadcast
// channels and happens on the Run goroutine; mu lets ClientCount read
// concurrently, and deliver takes its read lock.
type Hub struct {
	logger *zap.Logger

	clients map[uuid.UUID]*Client
	rooms   map[string]map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan roomMessage

	mu sync.RWMutex
}

type roomMessage struct {
	room    string
	payload []byte
}

// NewHub constructs an empty Hub. Call Run to start its event loop.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[uuid.UUID]*Client),
		rooms:      make(map[string]map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan roomMessage, 256),
	}
}

// Run drives the hub's event loop until stop is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case m := <-h.broadcast:
			h.deliver(m.room, m.payload)
		case <-stop:
			return
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.ID] = c
	for _, room := range c.rooms {
		if h.rooms[room] == nil {
			h.rooms[room] = make(map[uuid.UUID]*Client)
		}
		h.rooms[room][c.ID] = c
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, c.ID)
	for _, room := range c.rooms {
		delete(h.rooms[room], c.ID)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) deliver(room string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.rooms[room] {
		select {
		case c.Send <- payload:
		default:
			// Slow consumer; drop rather than block the whole hub.
		}
	}
}

// Broadcast publishes payload to every client currently in room.
func (h *Hub) Broadcast(room string, payload []byte) {
	h.broadcast <- roomMessage{room: room, payload: payload}
}

// BroadcastJSON marshals v and publishes it to room.
func (h *Hub) BroadcastJSON(room string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(room, payload)
	return nil
}

// ClientCount reports how many sockets are currently attached, for
// metrics reporting.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades an authenticated request to a websocket and joins the
// client to its contest room, its team room, and the admin room when the
// token carries is_admin. claims must already be verified by the caller
// (auth.Service.VerifyToken against the handshake token query parameter).
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, claims *auth.Claims) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	teamID, err := uuid.Parse(claims.TeamID)
	if err != nil {
		conn.Close()
		return err
	}
	contestID, err := uuid.Parse(claims.ContestID)
	if err != nil {
		conn.Close()
		return err
	}

	rooms := []string{RoomContest(contestID), RoomTeam(teamID)}
	if claims.IsAdmin {
		rooms = append(rooms, RoomAdmins)
	}

	client := &Client{
		ID:      uuid.New(),
		TeamID:  teamID,
		IsAdmin: claims.IsAdmin,
		Conn:    conn,
		Send:    make(chan []byte, sendBuffer),
		Done:    make(chan struct{}),
		rooms:   rooms,
	}

	h.register <- client

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

func (h *Hub) readPump(c *Client) {
	defer func() {
		h.unregister <- c
		close(c.Done)
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// Clients only ever receive on this connection; any inbound frame
		// besides a pong is unexpected but must still be drained so
		// ReadMessage keeps returning control frames.
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.Done:
			return
		}
	}
}
