package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/consult/internal/domain"
	"github.com/xiaot623/gogo/consult/internal/logging"
	"github.com/xiaot623/gogo/consult/policy"
)

// recordEvent records an event to the audit store. Audit writes survive
// caller cancellation.
func (s *Service) recordEvent(ctx context.Context, requestID string, eventType domain.EventType, payload interface{}) {
	if s.audit == nil {
		return
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		logging.FromContext(ctx).Error("failed to marshal event payload", "type", eventType, "error", err)
		return
	}

	event := &domain.Event{
		EventID:   "evt_" + uuid.New().String()[:8],
		RequestID: requestID,
		Ts:        s.now().UnixMilli(),
		Type:      eventType,
		Payload:   payloadBytes,
	}
	if err := s.audit.CreateEvent(context.WithoutCancel(ctx), event); err != nil {
		logging.FromContext(ctx).Error("failed to record event", "type", eventType, "error", err)
	}
}

func (s *Service) auditStart(ctx context.Context, requestID string, startedAt time.Time) {
	if s.audit == nil {
		return
	}
	err := s.audit.CreateConsultation(context.WithoutCancel(ctx), &domain.Consultation{
		RequestID: requestID,
		Anonymous: true,
		Status:    domain.ConsultStateReceived,
		StartedAt: startedAt,
	})
	if err != nil {
		logging.FromContext(ctx).Error("failed to create consultation", "error", err)
	}
}

func (s *Service) auditCaller(ctx context.Context, requestID string, caller domain.CallerIdentity) {
	if s.audit == nil {
		return
	}
	if err := s.audit.UpdateConsultationUser(context.WithoutCancel(ctx), requestID, caller.ID, caller.Anonymous); err != nil {
		logging.FromContext(ctx).Error("failed to record consultation caller", "error", err)
	}
}

func (s *Service) auditState(ctx context.Context, requestID string, from, to domain.ConsultState) {
	if s.audit == nil {
		return
	}
	if err := s.audit.UpdateConsultationStatus(context.WithoutCancel(ctx), requestID, to); err != nil {
		logging.FromContext(ctx).Error("failed to update consultation status", "error", err)
	}
	s.recordEvent(ctx, requestID, domain.EventTypeStateChanged, domain.StateChangedPayload{From: from, To: to})
}

func (s *Service) auditComplete(ctx context.Context, requestID string, status domain.ConsultState, kind domain.ErrorKind) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CompleteConsultation(context.WithoutCancel(ctx), requestID, status, kind); err != nil {
		logging.FromContext(ctx).Error("failed to complete consultation", "error", err)
	}
}

// Events returns the audit trail of a consultation. Only administrators may
// read it.
func (s *Service) Events(ctx context.Context, token, requestID string, afterTs int64, limit int) (*domain.Consultation, []domain.Event, error) {
	opID := newRequestID()
	ctx = logging.WithRequestID(ctx, opID)

	if _, err := s.authorize(ctx, opID, token, policy.ActionEventsRead, ""); err != nil {
		return nil, nil, err
	}
	if s.audit == nil {
		return nil, nil, &domain.ConsultError{Kind: domain.ErrorKindNotFound, Message: "audit trail is disabled", RequestID: opID}
	}

	c, err := s.audit.GetConsultation(ctx, requestID)
	if err != nil {
		return nil, nil, &domain.ConsultError{Kind: domain.ErrorKindUnknown, Message: "failed to load consultation", RequestID: opID, Err: err}
	}
	if c == nil {
		return nil, nil, &domain.ConsultError{Kind: domain.ErrorKindNotFound, Message: fmt.Sprintf("consultation %s not found", requestID), RequestID: opID}
	}
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	events, err := s.audit.GetEvents(ctx, requestID, afterTs, limit)
	if err != nil {
		return nil, nil, &domain.ConsultError{Kind: domain.ErrorKindUnknown, Message: "failed to load events", RequestID: opID, Err: err}
	}
	return c, events, nil
}
