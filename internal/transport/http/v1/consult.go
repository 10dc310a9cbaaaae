package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/consult/internal/domain"
	"github.com/xiaot623/gogo/consult/internal/service"
)

// Consult runs a consultation.
// POST /api/chat, POST /v1/consultations
func (h *Handler) Consult(c echo.Context) error {
	var body domain.ConsultBody
	if err := c.Bind(&body); err != nil {
		return writeError(c, &domain.ConsultError{
			Kind:      domain.ErrorKindInvalidInput,
			Message:   "invalid request body",
			RequestID: requestID(c),
		})
	}

	resp, err := h.service.Handle(c.Request().Context(), service.ConsultRequest{
		RequestID:  requestID(c),
		Body:       body,
		Token:      h.credential(c),
		RemoteAddr: c.RealIP(),
	})
	if err != nil {
		return writeError(c, err)
	}

	c.Response().Header().Set(echo.HeaderXRequestID, resp.RequestID)
	return c.JSON(http.StatusOK, resp)
}
