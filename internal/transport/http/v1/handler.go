// Package v1 provides the versioned HTTP handlers of the consultation service.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/consult/internal/service"
	"github.com/xiaot623/gogo/consult/internal/transport"
)

// Handler handles HTTP requests.
type Handler struct {
	service    *service.Service
	cookieName string
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service, cookieName string) *Handler {
	return &Handler{
		service:    service,
		cookieName: cookieName,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Consultation API
	e.POST("/api/chat", h.Consult)
	e.POST("/v1/consultations", h.Consult)
	e.GET("/v1/consultations/:request_id/events", h.GetConsultationEvents)

	// Context API
	e.GET("/v1/context", h.GetContext)
	e.DELETE("/v1/context", h.ClearContext)
	e.GET("/v1/users/:user_id/context", h.GetContext)
	e.DELETE("/v1/users/:user_id/context", h.ClearContext)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

func (h *Handler) credential(c echo.Context) string {
	return transport.Credential(c.Request(), h.cookieName)
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}

// writeError writes the error body for err, keeping X-Request-ID in sync with
// the body's requestId.
func writeError(c echo.Context, err error) error {
	status, body := transport.NewErrorBody(err, requestID(c))
	c.Response().Header().Set(echo.HeaderXRequestID, body.RequestID)
	return c.JSON(status, body)
}
