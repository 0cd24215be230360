package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/ndjson-viewer/backend/internal/fetch"
	"github.com/ndjson-viewer/backend/internal/ingest"
	"github.com/ndjson-viewer/backend/internal/logging"
	"github.com/ndjson-viewer/backend/internal/session"
)

// WebSocket message types for the trigger channel
const (
	// Client -> Server messages
	MsgTypeMore  = "more"
	MsgTypeRetry = "retry"
	MsgTypePing  = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeState     = "state"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WebSocket error response
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler lets a view send near-end and retry triggers over one connection
// and receive a state message after every cycle.
type WebSocketHandler struct {
	sessionMgr SessionManager
	upgrader   websocket.Upgrader
	log        *log.Logger
}

// NewWebSocketHandler creates a new WebSocket trigger handler
func NewWebSocketHandler(sessionMgr SessionManager) *WebSocketHandler {
	return &WebSocketHandler{
		sessionMgr: sessionMgr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		log: logging.New("ws"),
	}
}

// wsConn serializes writes from the read loop and trigger goroutines.
type wsConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) send(msg WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg.Timestamp = time.Now().UnixMilli()
	return c.ws.WriteJSON(msg)
}

// HandleWebSocket upgrades the connection and serves the trigger protocol for one session
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	id := c.Param("id")
	snap, err := wsh.sessionMgr.Snapshot(id)
	if err != nil {
		return sessionError(err, id)
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	conn := &wsConn{ws: ws}
	wsh.log.Infof("[WebSocket %s] client connected", session.ShortID(id))

	wsh.sendMessage(conn, WSMessage{Type: MsgTypeConnected, ID: id, Payload: mustJSON(snap)})

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsh.log.Warnf("[WebSocket %s] connection error: %v", session.ShortID(id), err)
			}
			break
		}

		switch msg.Type {
		case MsgTypePing:
			wsh.sessionMgr.TouchSession(id)
			wsh.sendMessage(conn, WSMessage{Type: MsgTypePong, ID: msg.ID})
		default:
			ev, err := triggerEvent(msg.Type)
			if err != nil {
				wsh.sendError(conn, msg.ID, "Unknown message type: "+msg.Type, "INVALID_TYPE")
				continue
			}
			// Triggers run beside the read loop so a busy session drops them.
			wg.Add(1)
			go func(reqID string) {
				defer wg.Done()
				wsh.runTrigger(conn, id, reqID, ev)
			}(msg.ID)
		}
	}

	wsh.log.Infof("[WebSocket %s] client disconnected", session.ShortID(id))
	return nil
}

// triggerEvent maps a client message type onto an ingestion event. Raw event names
// (mount, near_end, retry) are accepted alongside the short forms.
func triggerEvent(msgType string) (ingest.Event, error) {
	switch msgType {
	case MsgTypeMore:
		return ingest.EventNearEnd, nil
	case MsgTypeRetry:
		return ingest.EventRetry, nil
	default:
		return ingest.ParseEvent(msgType)
	}
}

func (wsh *WebSocketHandler) runTrigger(conn *wsConn, id, reqID string, ev ingest.Event) {
	ran, err := wsh.sessionMgr.Trigger(context.Background(), id, ev)
	if err != nil {
		var fe *fetch.FetchError
		code := "INTERNAL_ERROR"
		if errors.As(err, &fe) {
			code = "FETCH_ERROR"
		} else if apiErr := sessionError(err, id); apiErr.Code == "NOT_FOUND" {
			code = apiErr.Code
		}
		wsh.sendError(conn, reqID, err.Error(), code)
		return
	}

	snap, err := wsh.sessionMgr.Snapshot(id)
	if err != nil {
		wsh.sendError(conn, reqID, err.Error(), "NOT_FOUND")
		return
	}
	wsh.sendMessage(conn, WSMessage{
		Type:    MsgTypeState,
		ID:      reqID,
		Payload: mustJSON(triggerResponse{Ran: ran, Snapshot: snap}),
	})
}

func (wsh *WebSocketHandler) sendMessage(conn *wsConn, msg WSMessage) {
	if err := conn.send(msg); err != nil {
		wsh.log.Warnf("[WebSocket] Failed to send message: %v", err)
	}
}

func (wsh *WebSocketHandler) sendError(conn *wsConn, reqID, message, code string) {
	wsh.sendMessage(conn, WSMessage{
		Type:    MsgTypeError,
		ID:      reqID,
		Payload: mustJSON(WSErrorResponse{Message: message, Code: code}),
	})
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
