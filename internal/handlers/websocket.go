package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// wsClient is one connected observer. jobID is empty for firehose clients
// on /ws and set for job-scoped clients on /ws/jobs/{id}. The mutex
// serializes writes since gorilla connections allow one writer at a time.
type wsClient struct {
	conn  *websocket.Conn
	jobID string
	mu    sync.Mutex
	done  chan struct{}
}

func (c *wsClient) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WebSocketHandler fans job progress events out to connected clients
type WebSocketHandler struct {
	logger            arbor.ILogger
	events            interfaces.EventService
	heartbeatInterval time.Duration

	mu      sync.RWMutex
	clients map[*wsClient]bool
}

// NewWebSocketHandler creates the handler and subscribes it to job updates
func NewWebSocketHandler(events interfaces.EventService, config *common.WebSocketConfig, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:            logger,
		events:            events,
		heartbeatInterval: config.HeartbeatIntervalDuration(),
		clients:           make(map[*wsClient]bool),
	}

	if events != nil {
		events.Subscribe(interfaces.EventJobUpdates, func(ctx context.Context, event interfaces.Event) error {
			update, ok := event.Payload.(models.JobUpdateEvent)
			if !ok {
				h.logger.Warn().Msg("Invalid job update event payload type")
				return nil
			}
			h.Broadcast(update)
			return nil
		})
	}

	return h
}

// HandleWebSocket handles WS /ws, the all-jobs firehose
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "")
}

// HandleJobWebSocket handles WS /ws/jobs/{id}, scoped to one job
func (h *WebSocketHandler) HandleJobWebSocket(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/ws/jobs/")
	jobID = strings.Trim(jobID, "/")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Missing job ID")
		return
	}
	h.serve(w, r, jobID)
}

func (h *WebSocketHandler) serve(w http.ResponseWriter, r *http.Request, jobID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := &wsClient{
		conn:  conn,
		jobID: jobID,
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[client] = true
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().
		Str("job_id", jobID).
		Int("clients", clientCount).
		Msg("WebSocket client connected")

	go h.heartbeat(client)

	defer func() {
		close(client.done)
		h.mu.Lock()
		delete(h.clients, client)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Int("clients", remaining).Msg("WebSocket client disconnected")
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}

		if strings.TrimSpace(string(message)) == "ping" {
			if err := client.send([]byte("pong")); err != nil {
				return
			}
		}
	}
}

// heartbeat sends periodic liveness frames until the client disconnects
func (h *WebSocketHandler) heartbeat(client *wsClient) {
	if h.heartbeatInterval <= 0 {
		return
	}

	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	frame, _ := json.Marshal(map[string]string{"type": "heartbeat"})

	for {
		select {
		case <-client.done:
			return
		case <-ticker.C:
			if err := client.send(frame); err != nil {
				return
			}
		}
	}
}

// Broadcast sends the update to all firehose clients and to job-scoped
// clients watching the update's job. Clients whose writes fail are evicted.
func (h *WebSocketHandler) Broadcast(update models.JobUpdateEvent) {
	data, err := json.Marshal(update)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal job update")
		return
	}

	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		if client.jobID == "" || client.jobID == update.JobID {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	var stale []*wsClient
	for _, client := range targets {
		if err := client.send(data); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send job update to client")
			stale = append(stale, client)
		}
	}

	if len(stale) > 0 {
		h.mu.Lock()
		for _, client := range stale {
			if h.clients[client] {
				delete(h.clients, client)
				client.conn.Close()
			}
		}
		h.mu.Unlock()
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
