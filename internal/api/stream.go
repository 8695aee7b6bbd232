package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"propMonitor/internal/domain"
)

// MessageType tags a stream message.
type MessageType string

const (
	MsgTypeEvaluation MessageType = "evaluation"
	MsgTypeBreach     MessageType = "breach" // evaluation with at least one CRITICAL violation
	MsgTypeError      MessageType = "error"
)

const (
	defaultStreamInterval = 5 * time.Second
	streamWriteWait       = 10 * time.Second
	streamPongWait        = 60 * time.Second
	streamMaxMessageSize  = 4096
)

// StreamMessage is a message pushed to account stream subscribers.
type StreamMessage struct {
	Type      MessageType     `json:"type"`
	AccountID string          `json:"accountId"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// handleStream upgrades to a WebSocket and pushes the account evaluation
// on every tick until the client goes away or the server stops.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	// Reject unknown accounts before upgrading so the client gets a plain 404.
	if _, err := s.monitor.GetAccount(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.originAllowed,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "WebSocket upgrade failed", map[string]interface{}{"accountID": id, "error": err.Error()})
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.readPump(conn, cancel)

	fields := map[string]interface{}{"accountID": id, "remote": r.RemoteAddr}
	s.logger.Debug(ctx, "Stream subscriber connected", fields)
	defer s.logger.Debug(ctx, "Stream subscriber disconnected", fields)

	interval := s.config.StreamInterval
	if interval <= 0 {
		interval = defaultStreamInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.pushEvaluation(ctx, conn, id); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(streamWriteWait))
			return
		case <-ticker.C:
		}
	}
}

// readPump drains client frames so pongs and close frames are processed.
func (s *Server) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(streamMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug(context.Background(), "WebSocket read error", map[string]interface{}{"error": err.Error()})
			}
			return
		}
	}
}

func (s *Server) pushEvaluation(ctx context.Context, conn *websocket.Conn, id string) error {
	msg := StreamMessage{AccountID: id, Timestamp: time.Now().UnixMilli()}

	result, err := s.monitor.EvaluateAccount(ctx, id)
	if err != nil {
		msg.Type = MsgTypeError
		msg.Error = err.Error()
	} else {
		msg.Type = streamTypeFor(result)
		if msg.Data, err = json.Marshal(result); err != nil {
			return err
		}
	}

	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteJSON(msg); err != nil {
		return err
	}
	// Keep the read deadline alive on quiet clients.
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait))
}

func streamTypeFor(result *domain.RuleEngineResult) MessageType {
	if domain.HasCritical(result.Violations) {
		return MsgTypeBreach
	}
	return MsgTypeEvaluation
}

func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.config.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return len(s.config.CORSOrigins) == 0
}
