package game

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// Hub fans settlement and reveal events out to audit-feed subscribers.
// Subscribers only ever receive records of already-settled rounds; nothing
// about an open round is streamed.
type auditClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

type Hub struct {
	clients    map[*auditClient]bool
	broadcast  chan interface{}
	register   chan *auditClient
	unregister chan *auditClient
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*auditClient]bool),
		broadcast:  make(chan interface{}, 100),
		register:   make(chan *auditClient),
		unregister: make(chan *auditClient),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("[WS] Audit subscriber connected (total: %d)", h.GetClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.conn.Close()
			}
			h.mu.Unlock()
			log.Printf("[WS] Audit subscriber disconnected (total: %d)", h.GetClientCount())

		case message := <-h.broadcast:
			jsonMessage, err := json.Marshal(message)
			if err != nil {
				log.Printf("[WS] Marshal error: %v", err)
				continue
			}

			h.mu.RLock()
			for client := range h.clients {
				go client.send(jsonMessage)
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) Broadcast(message interface{}) {
	select {
	case h.broadcast <- message:
	default:
		log.Println("[WS] Broadcast channel full, dropping message")
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *auditClient) send(message []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		log.Printf("[WS] Write error: %v", err)
	}
}

func (h *Hub) RegisterClient(conn *websocket.Conn) {
	h.register <- &auditClient{conn: conn}
}

func (h *Hub) UnregisterClient(conn *websocket.Conn) {
	h.mu.RLock()
	for client := range h.clients {
		if client.conn == conn {
			h.mu.RUnlock()
			h.unregister <- client
			return
		}
	}
	h.mu.RUnlock()
}
