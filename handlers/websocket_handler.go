package handlers

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"feedback-sentiment/middleware"
	"feedback-sentiment/services"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = 54 * time.Second
	wsMaxMessageSize = 64 * 1024
)

// WebSocketMessage represents an incoming WebSocket message
type WebSocketMessage struct {
	Type string `json:"type"`
}

// WebSocketUpgrade rejects plain HTTP requests on the live feed route
func WebSocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// HandleWebSocket streams dashboard events of the session organization
func (h *DashboardHandler) HandleWebSocket(c *websocket.Conn) {
	organizationID, _ := c.Locals(middleware.LocalOrganizationID).(string)
	if organizationID == "" {
		slog.Error("WebSocket connection without organization ID")
		c.Close()
		return
	}
	userID, _ := c.Locals(middleware.LocalUserID).(string)

	conn := &services.WebSocketConnection{
		ID:             uuid.New().String(),
		Conn:           c,
		OrganizationID: organizationID,
		UserID:         userID,
		Send:           make(chan []byte, 256),
	}

	h.hub.RegisterConnection(conn)
	defer h.hub.UnregisterConnection(organizationID, conn.ID)

	welcome := map[string]interface{}{
		"type":          "connected",
		"message":       "WebSocket connection established",
		"connection_id": conn.ID,
	}
	if data, err := json.Marshal(welcome); err == nil {
		c.WriteMessage(websocket.TextMessage, data)
	}

	go writePump(conn)
	readPump(conn)
}

func writePump(conn *services.WebSocketConnection) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Error("Failed to write WebSocket message", "error", err)
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only answers pings; the feed is server to client
func readPump(conn *services.WebSocketConnection) {
	conn.Conn.SetReadLimit(wsMaxMessageSize)
	conn.Conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, data, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket read error", "error", err)
			}
			return
		}
		conn.Conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var msg WebSocketMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			pong, _ := json.Marshal(map[string]string{"type": "pong"})
			select {
			case conn.Send <- pong:
			default:
			}
		}
	}
}
