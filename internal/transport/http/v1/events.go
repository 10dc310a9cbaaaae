package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/consult/internal/domain"
)

// GetConsultationEvents returns the audit trail of a consultation.
// GET /v1/consultations/:request_id/events?after_ts=&limit=
func (h *Handler) GetConsultationEvents(c echo.Context) error {
	var afterTs int64
	var limit int
	err := echo.QueryParamsBinder(c).
		Int64("after_ts", &afterTs).
		Int("limit", &limit).
		BindError()
	if err != nil || afterTs < 0 || limit < 0 {
		return writeError(c, &domain.ConsultError{
			Kind:      domain.ErrorKindInvalidInput,
			Message:   "after_ts and limit must be non-negative integers",
			RequestID: requestID(c),
		})
	}

	consultation, events, err := h.service.Events(c.Request().Context(), h.credential(c), c.Param("request_id"), afterTs, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"consultation": consultation,
		"events":       events,
	})
}
