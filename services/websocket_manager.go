package services

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// WebSocket errors
var (
	ErrConnectionNotFound   = errors.New("connection not found")
	ErrConnectionBufferFull = errors.New("connection buffer full")
)

// Dashboard event types
const (
	EventFeedbackCreated  = "feedback_created"
	EventFeedbackAnalyzed = "feedback_analyzed"
	EventImportFinished   = "import_finished"
)

// WebSocketManager fans dashboard events out to the connections of each organization
type WebSocketManager struct {
	// Map of organization ID to map of connection ID to connection
	connections map[string]map[string]*WebSocketConnection
	mu          sync.RWMutex
	broadcast   chan BroadcastMessage
}

// WebSocketConnection represents a single WebSocket connection
type WebSocketConnection struct {
	ID             string
	Conn           *websocket.Conn
	OrganizationID string
	UserID         string
	Send           chan []byte
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	OrganizationID string
	Type           string
	Data           interface{}
}

// MessagePayload represents the structure of WebSocket messages
type MessagePayload struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// NewWebSocketManager creates a manager and starts its broadcast loop
func NewWebSocketManager() *WebSocketManager {
	m := &WebSocketManager{
		connections: make(map[string]map[string]*WebSocketConnection),
		broadcast:   make(chan BroadcastMessage, 100),
	}
	go m.handleBroadcast()
	return m
}

// RegisterConnection registers a new WebSocket connection
func (m *WebSocketManager) RegisterConnection(conn *WebSocketConnection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connections[conn.OrganizationID] == nil {
		m.connections[conn.OrganizationID] = make(map[string]*WebSocketConnection)
	}

	m.connections[conn.OrganizationID][conn.ID] = conn

	slog.Info("WebSocket connection registered",
		"organizationID", conn.OrganizationID,
		"userID", conn.UserID,
		"totalConnections", len(m.connections[conn.OrganizationID]))
}

// UnregisterConnection removes a WebSocket connection
func (m *WebSocketManager) UnregisterConnection(organizationID, connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if orgConns, exists := m.connections[organizationID]; exists {
		if conn, exists := orgConns[connID]; exists {
			close(conn.Send)
			delete(orgConns, connID)

			slog.Info("WebSocket connection unregistered",
				"organizationID", organizationID,
				"userID", conn.UserID,
				"remainingConnections", len(orgConns))

			// Clean up empty organization map
			if len(orgConns) == 0 {
				delete(m.connections, organizationID)
			}
		}
	}
}

// BroadcastToOrganization queues a message for every connection of an organization.
// The message is dropped if the queue is full.
func (m *WebSocketManager) BroadcastToOrganization(message BroadcastMessage) {
	select {
	case m.broadcast <- message:
	default:
		slog.Warn("WebSocket broadcast queue full, dropping event",
			"organizationID", message.OrganizationID,
			"type", message.Type)
	}
}

// handleBroadcast processes broadcast messages
func (m *WebSocketManager) handleBroadcast() {
	for message := range m.broadcast {
		payload := MessagePayload{
			Type:      message.Type,
			Data:      message.Data,
			Timestamp: time.Now().Unix(),
		}

		jsonData, err := json.Marshal(payload)
		if err != nil {
			slog.Error("Failed to marshal WebSocket message", "error", err)
			continue
		}

		m.deliver(message.OrganizationID, jsonData)
	}
}

func (m *WebSocketManager) deliver(organizationID string, data []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, conn := range m.connections[organizationID] {
		select {
		case conn.Send <- data:
			// Message sent successfully
		default:
			// Connection buffer full, skip
			slog.Warn("WebSocket connection buffer full",
				"organizationID", organizationID,
				"userID", conn.UserID)
		}
	}
}

// SendToConnection sends a message to a specific connection
func (m *WebSocketManager) SendToConnection(organizationID, connID string, data []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if orgConns, exists := m.connections[organizationID]; exists {
		if conn, exists := orgConns[connID]; exists {
			select {
			case conn.Send <- data:
				return nil
			default:
				return ErrConnectionBufferFull
			}
		}
	}
	return ErrConnectionNotFound
}

// GetConnectionCount returns the number of active connections for an organization
func (m *WebSocketManager) GetConnectionCount(organizationID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.connections[organizationID])
}
