// Package ws provides the WebSocket consultation endpoint.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/consult/internal/config"
	"github.com/xiaot623/gogo/consult/internal/domain"
	"github.com/xiaot623/gogo/consult/internal/logging"
	"github.com/xiaot623/gogo/consult/internal/service"
	"github.com/xiaot623/gogo/consult/internal/transport"
)

// Consulter runs one consultation.
type Consulter interface {
	Handle(ctx context.Context, req service.ConsultRequest) (*domain.ConsultationResponse, error)
}

// Server handles WebSocket connections.
type Server struct {
	cfg      *config.Config
	hub      *Hub
	svc      Consulter
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, h *Hub, svc Consulter) *Server {
	return &Server{
		cfg: cfg,
		hub: h,
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (s *Server) pingInterval() time.Duration {
	return s.cfg.WSReadTimeout * 9 / 10
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle. The
// credential is taken from the upgrade request and applies to every frame.
func (s *Server) HandleWebSocket(c echo.Context) error {
	token := transport.Credential(c.Request(), s.cfg.SessionCookie)
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("failed to upgrade websocket", "error", err)
		return err
	}

	conn := newConnection(ws, token, c.RealIP())
	s.hub.Register(conn)

	ws.SetReadLimit(s.cfg.WSMaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(conn *Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
		conn.inflight.Wait()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.WSReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.WSReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read error", "conn_id", conn.ID, "error", err)
			}
			break
		}

		s.handleMessage(conn, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (s *Server) writePump(conn *Connection) {
	ticker := time.NewTicker(s.pingInterval())
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WSWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Warn("failed to write websocket message", "conn_id", conn.ID, "error", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WSWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-conn.ctx.Done():
			return
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(conn *Connection, data []byte) {
	var baseMsg BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err != nil {
		s.sendError(conn, "", &domain.ConsultError{Kind: domain.ErrorKindInvalidInput, Message: "invalid JSON message"})
		return
	}

	switch baseMsg.Type {
	case TypeConsult:
		s.handleConsult(conn, data)
	default:
		s.sendError(conn, baseMsg.RequestID, &domain.ConsultError{Kind: domain.ErrorKindInvalidInput, Message: "unknown message type: " + baseMsg.Type})
	}
}

// handleConsult runs the gateway for one frame without blocking the reader.
// Closing the socket cancels the consultation.
func (s *Server) handleConsult(conn *Connection, data []byte) {
	var msg ConsultMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", &domain.ConsultError{Kind: domain.ErrorKindInvalidInput, Message: "invalid consult message"})
		return
	}

	conn.inflight.Add(1)
	go func() {
		defer conn.inflight.Done()

		resp, err := s.svc.Handle(conn.Context(), service.ConsultRequest{
			RequestID:  msg.RequestID,
			Body:       domain.ConsultBody{Message: msg.Message, UserID: msg.UserID},
			Token:      conn.Token,
			RemoteAddr: conn.RemoteAddr,
		})
		if err != nil {
			s.sendError(conn, msg.RequestID, err)
			return
		}

		result := ResultMessage{
			BaseMessage: BaseMessage{Type: TypeResult, Ts: time.Now().UnixMilli(), RequestID: resp.RequestID},
			Response:    resp,
		}
		if err := conn.SendJSON(result); err != nil {
			logging.FromContext(logging.WithRequestID(context.Background(), resp.RequestID)).
				Warn("failed to queue websocket result", "conn_id", conn.ID, "error", err)
		}
	}()
}

// sendError sends an error message to a connection.
func (s *Server) sendError(conn *Connection, requestID string, err error) {
	status, body := transport.NewErrorBody(err, requestID)
	errMsg := ErrorMessage{
		BaseMessage: BaseMessage{
			Type:      TypeError,
			Ts:        time.Now().UnixMilli(),
			RequestID: body.RequestID,
		},
		Status: status,
		Error:  body.Error,
	}
	if err := conn.SendJSON(errMsg); err != nil && conn.Context().Err() == nil {
		slog.Warn("failed to queue websocket error", "conn_id", conn.ID, "error", err)
	}
}
