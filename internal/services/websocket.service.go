package services

import (
	"context"
	"sync"
	"time"

	"cloudrams/internal/models"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Event types pushed to websocket clients
const (
	EventTasks       = "tasks"
	EventTransfer    = "transfer"
	EventPong        = "pong"
	EventAuthSuccess = "auth_success"
	EventAuthError   = "auth_error"
)

// Event represents a message sent over WebSocket
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// ClientMessage is what browsers send to the agent
type ClientMessage struct {
	Type  string `json:"type"` // "ping", "auth", "unsubscribe"
	Token string `json:"token,omitempty"`
}

// TasksPayload is the data of a tasks event
type TasksPayload struct {
	Tasks       []models.TrackedTask `json:"tasks"`
	LastUpdated time.Time            `json:"last_updated"`
}

// ClientConnection represents a connected WebSocket client
type ClientConnection struct {
	ID   string
	Conn *websocket.Conn
	Send chan Event
}

// WebSocketHub manages all connected WebSocket clients
type WebSocketHub struct {
	clients    map[string]*ClientConnection
	broadcast  chan Event
	register   chan *ClientConnection
	unregister chan string
	done       chan struct{}
	mu         sync.RWMutex
}

var wsHub *WebSocketHub

// InitWebSocketHub creates the hub; Run must be started before clients register
func InitWebSocketHub() *WebSocketHub {
	wsHub = &WebSocketHub{
		clients:    make(map[string]*ClientConnection),
		broadcast:  make(chan Event, 256),
		register:   make(chan *ClientConnection),
		unregister: make(chan string),
		done:       make(chan struct{}),
	}
	return wsHub
}

// GetWebSocketHub returns the shared hub
func GetWebSocketHub() *WebSocketHub {
	return wsHub
}

// Run manages the hub's event loop until ctx is done, then disconnects everyone
func (h *WebSocketHub) Run(ctx context.Context) error {
	defer func() {
		h.mu.Lock()
		for id, client := range h.clients {
			delete(h.clients, id)
			close(client.Send)
		}
		h.mu.Unlock()
		close(h.done)
		logrus.Info("[WS] Hub stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			total := len(h.clients)
			h.mu.Unlock()
			logrus.Infof("[WS] Client connected: %s (total: %d)", client.ID, total)

		case clientID := <-h.unregister:
			h.mu.Lock()
			if client, exists := h.clients[clientID]; exists {
				delete(h.clients, clientID)
				close(client.Send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			logrus.Infof("[WS] Client disconnected: %s (total: %d)", clientID, total)

		case evt := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.clients {
				select {
				case client.Send <- evt:
				default:
					// Client's send channel is full, skip this message
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a new client to the hub. It reports false once the hub has stopped.
func (h *WebSocketHub) Register(client *ClientConnection) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub
func (h *WebSocketHub) Unregister(clientID string) {
	select {
	case h.unregister <- clientID:
	case <-h.done:
	}
}

// Publish queues an event for every client without blocking the caller
func (h *WebSocketHub) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- evt:
	default:
		logrus.Debugf("[WS] Broadcast queue full, dropping %s event", evt.Type)
	}
}

// PublishTasks broadcasts a tracked-task snapshot
func (h *WebSocketHub) PublishTasks(tasks []models.TrackedTask) {
	now := time.Now()
	h.Publish(Event{
		Type:      EventTasks,
		Timestamp: now,
		Data:      TasksPayload{Tasks: tasks, LastUpdated: now},
	})
}

// PublishProgress broadcasts transfer progress
func (h *WebSocketHub) PublishProgress(p models.TransferProgress) {
	h.Publish(Event{Type: EventTransfer, Data: p})
}

// Send delivers an event to one client, dropping it when the client is gone or slow
func (h *WebSocketHub) Send(clientID string, evt Event) bool {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	client, exists := h.clients[clientID]
	if !exists {
		return false
	}

	select {
	case client.Send <- evt:
		return true
	default:
		return false
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
