package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GetContext returns a user's stored conversation context.
// GET /v1/context, GET /v1/users/:user_id/context
func (h *Handler) GetContext(c echo.Context) error {
	view, err := h.service.GetContext(c.Request().Context(), h.credential(c), c.Param("user_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// ClearContext deletes a user's stored conversation context.
// DELETE /v1/context, DELETE /v1/users/:user_id/context
func (h *Handler) ClearContext(c echo.Context) error {
	requestID, err := h.service.ClearContext(c.Request().Context(), h.credential(c), c.Param("user_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":        true,
		"requestId": requestID,
	})
}
