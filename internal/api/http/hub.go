package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/laborio/questing-together/internal/story/event"
)

const (
	// writeWait bounds a single frame write to a client.
	writeWait = 10 * time.Second
	// pongWait is how long a client may stay silent before it is dropped.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// sendBuffer is the per-client outbound queue. A client that falls this
	// far behind is disconnected rather than allowed to block the room.
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// StreamMessage is one frame pushed to subscribed clients.
type StreamMessage struct {
	Type  string    `json:"type"`
	Event EventView `json:"event"`
}

// Hub fans appended events out to websocket subscribers, scoped per room.
// Its Broadcast method satisfies the gate's Publisher signature, so wiring
// the hub in makes every durably appended event reach subscribers in order.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*wsClient]bool
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*wsClient]bool)}
}

type wsClient struct {
	hub    *Hub
	roomID string
	conn   *websocket.Conn
	send   chan []byte

	mu     sync.Mutex
	closed bool
}

// Broadcast pushes the appended events to every subscriber of the room, in
// order. Clients whose queue is full are dropped; they can reconnect and
// catch up through the events endpoint.
func (h *Hub) Broadcast(roomID string, events []event.Event) {
	if len(events) == 0 {
		return
	}

	frames := make([][]byte, 0, len(events))
	for _, evt := range events {
		frame, err := json.Marshal(StreamMessage{Type: "event", Event: NewEventView(evt)})
		if err != nil {
			log.Printf("hub: marshal event room=%s seq=%d err=%v", roomID, evt.Seq, err)
			continue
		}
		frames = append(frames, frame)
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.rooms[roomID]))
	for client := range h.rooms[roomID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if !client.enqueue(frames) {
			log.Printf("hub: slow subscriber dropped room=%s", roomID)
			h.unregister(client)
		}
	}
}

// enqueue queues every frame, reporting false if the client is gone or its
// queue is full.
func (c *wsClient) enqueue(frames [][]byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	for _, frame := range frames {
		select {
		case c.send <- frame:
		default:
			return false
		}
	}
	return true
}

// SubscriberCount reports the number of connected clients for the room.
func (h *Hub) SubscriberCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*wsClient, 0)
	for _, room := range h.rooms {
		for client := range room {
			clients = append(clients, client)
		}
	}
	h.rooms = make(map[string]map[*wsClient]bool)
	h.mu.Unlock()

	for _, client := range clients {
		client.close()
	}
}

// ServeWS upgrades the request and subscribes the connection to the room.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, roomID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &wsClient{
		hub:    h,
		roomID: roomID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}
	h.register(client)

	go client.writePump()
	go client.readPump()
	return nil
}

func (h *Hub) register(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[client.roomID] == nil {
		h.rooms[client.roomID] = make(map[*wsClient]bool)
	}
	h.rooms[client.roomID][client] = true
}

func (h *Hub) unregister(client *wsClient) {
	h.mu.Lock()
	if room, ok := h.rooms[client.roomID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, client.roomID)
		}
	}
	h.mu.Unlock()

	client.close()
}

func (c *wsClient) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	_ = c.conn.Close()
}

// writePump drains the send queue onto the wire and keeps the connection
// alive with pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames; the stream is one-way. It exists to
// process pongs and to notice the peer going away.
func (c *wsClient) readPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
