// -----------------------------------------------------------------------
// WebSocket Handler - Live job event stream for queue watchers
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/levels"
	"github.com/ternarybob/opero/internal/common"
	"github.com/ternarybob/opero/internal/interfaces"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope for every message pushed to clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WebSocketHandler relays queue events to connected clients: job_created,
// job_status, job_progress and log_event messages.
//
// job_progress broadcasts are throttled so a fast batch cannot flood the
// stream; job_status carries every terminal transition and is never
// throttled, so watchers always observe the final state.
type WebSocketHandler struct {
	logger           arbor.ILogger
	events           interfaces.EventService
	clients          map[*websocket.Conn]bool
	clientMutex      map[*websocket.Conn]*sync.Mutex
	mu               sync.RWMutex
	progressThrottle *rate.Limiter

	// Filters applied to log_event broadcasts
	minLogLevel     levels.LogLevel
	excludePatterns []string

	// serverInstanceID changes on restart so clients can reset stale state
	serverInstanceID string
}

// NewWebSocketHandler creates the event stream handler and subscribes it
// to the queue's event bus
func NewWebSocketHandler(events interfaces.EventService, logger arbor.ILogger, wsConfig *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		events:           events,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		progressThrottle: rate.NewLimiter(rate.Every(wsConfig.GetProgressInterval()), 1),
		minLogLevel:      parseLogLevel(wsConfig.MinLevel),
		excludePatterns:  wsConfig.ExcludePatterns,
		serverInstanceID: uuid.New().String(),
	}

	if events != nil {
		h.subscribeToQueueEvents()
	}

	return h
}

// subscribeToQueueEvents wires the handler into the event bus
func (h *WebSocketHandler) subscribeToQueueEvents() {
	forward := func(msgType string) interfaces.EventHandler {
		return func(ctx context.Context, event interfaces.Event) error {
			h.broadcast(msgType, event.Payload)
			return nil
		}
	}

	h.events.Subscribe(interfaces.EventJobCreated, forward("job_created"))
	h.events.Subscribe(interfaces.EventJobStatus, forward("job_status"))

	h.events.Subscribe(interfaces.EventLogEvent, func(ctx context.Context, event interfaces.Event) error {
		if h.shouldBroadcastLog(event.Payload) {
			h.broadcast("log_event", event.Payload)
		}
		return nil
	})

	h.events.Subscribe(interfaces.EventJobProgress, func(ctx context.Context, event interfaces.Event) error {
		if !h.progressThrottle.Allow() {
			return nil
		}
		h.broadcast("job_progress", event.Payload)
		return nil
	})
}

// shouldBroadcastLog applies the configured level and pattern filters to a
// log_event payload before it reaches clients
func (h *WebSocketHandler) shouldBroadcastLog(payload interface{}) bool {
	entry, ok := payload.(map[string]interface{})
	if !ok {
		return true
	}

	if level, ok := entry["level"].(string); ok {
		if parseLogLevel(level) < h.minLogLevel {
			return false
		}
	}

	if message, ok := entry["message"].(string); ok {
		for _, pattern := range h.excludePatterns {
			if strings.Contains(message, pattern) {
				return false
			}
		}
	}

	return true
}

// parseLogLevel converts a string log level to arbor levels.LogLevel
func parseLogLevel(level string) levels.LogLevel {
	switch strings.ToLower(level) {
	case "error":
		return levels.ErrorLevel
	case "warn", "warning":
		return levels.WarnLevel
	case "info":
		return levels.InfoLevel
	case "debug":
		return levels.DebugLevel
	default:
		return levels.InfoLevel
	}
}

// HandleWebSocket handles GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	h.sendToClient(conn, WSMessage{
		Type: "connected",
		Payload: map[string]interface{}{
			"server_instance_id": h.serverInstanceID,
		},
	})

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}()

	// Drain client messages to keep the connection alive; the stream is
	// one-directional and inbound content is ignored
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcast sends a message to every connected client. Writes to a dead
// client fail silently here; its read loop tears the connection down.
func (h *WebSocketHandler) broadcast(msgType string, payload interface{}) {
	data, err := json.Marshal(WSMessage{Type: msgType, Payload: payload})
	if err != nil {
		h.logger.Error().Err(err).Str("message_type", msgType).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range conns {
		mutexes[i].Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutexes[i].Unlock()

		if err != nil {
			h.logger.Debug().Err(err).Str("message_type", msgType).Msg("Failed to send WebSocket message")
		}
	}
}

// sendToClient sends a message to a single connection
func (h *WebSocketHandler) sendToClient(conn *websocket.Conn, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	mutex, ok := h.clientMutex[conn]
	h.mu.RUnlock()
	if !ok {
		return
	}

	mutex.Lock()
	defer mutex.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Debug().Err(err).Msg("Failed to send WebSocket message")
	}
}
