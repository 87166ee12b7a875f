package controllers

import (
	"net/http"
	"strings"
	"time"

	"cloudrams/internal/middleware"
	"cloudrams/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Non-browser clients send no Origin
		if origin == "" {
			return true
		}
		return middleware.OriginAllowed(origin, settings.AllowedOrigins)
	},
}

// HandleWebSocket upgrades an authenticated request and attaches it to the hub
func HandleWebSocket(c *gin.Context) {
	hub := services.GetWebSocketHub()
	if hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event hub not running"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Warnf("[WS] Upgrade error: %v", err)
		return
	}

	ip := c.ClientIP()
	client := &services.ClientConnection{
		ID:   ip + "-" + uuid.NewString()[:8],
		Conn: ws,
		Send: make(chan services.Event, 256),
	}

	if !hub.Register(client) {
		ws.Close()
		return
	}
	middleware.GlobalSecurityLogger.LogWebSocketConnected(ip, client.ID)

	go writePump(client)
	go readPump(client, hub, ip)
}

// readPump reads messages from the WebSocket client
func readPump(client *services.ClientConnection, hub *services.WebSocketHub, ip string) {
	defer func() {
		hub.Unregister(client.ID)
		client.Conn.Close()
		middleware.GlobalSecurityLogger.LogWebSocketDisconnected(ip, client.ID)
	}()

	client.Conn.SetReadLimit(maxMessageSize)

	for {
		var msg services.ClientMessage
		if err := client.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.Debugf("[WS] Read error from %s: %v", client.ID, err)
			}
			return
		}

		switch msg.Type {
		case "ping":
			hub.Send(client.ID, services.Event{Type: services.EventPong})

		case "auth":
			bearer := ""
			if strings.Count(msg.Token, ".") == 2 {
				bearer = msg.Token
			}
			if err := services.Authorize(msg.Token, bearer); err != nil {
				middleware.GlobalSecurityLogger.LogFailedAuth(ip, "websocket auth message")
				hub.Send(client.ID, services.Event{Type: services.EventAuthError, Error: "invalid token"})
				continue
			}
			hub.Send(client.ID, services.Event{Type: services.EventAuthSuccess})

		case "unsubscribe":
			// Client unsubscribing (will close connection)
			return

		default:
			logrus.Debugf("[WS] Unknown message type from %s: %s", client.ID, msg.Type)
		}
	}
}

// writePump writes messages to the WebSocket client until the hub closes its channel
func writePump(client *services.ClientConnection) {
	defer client.Conn.Close()

	for msg := range client.Send {
		client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.Conn.WriteJSON(msg); err != nil {
			logrus.Debugf("[WS] Write error to %s: %v", client.ID, err)
			return
		}
	}

	client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	client.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
