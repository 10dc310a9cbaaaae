package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/xiaot623/gogo/consult/internal/domain"
	"github.com/xiaot623/gogo/consult/internal/logging"
	"github.com/xiaot623/gogo/consult/internal/reasoner"
	"github.com/xiaot623/gogo/consult/policy"
)

// ConsultRequest is one inbound consultation.
type ConsultRequest struct {
	// RequestID is generated when empty.
	RequestID  string
	Body       domain.ConsultBody
	Token      string
	RemoteAddr string
}

// consultRun tracks one request through the gateway state machine.
type consultRun struct {
	svc       *Service
	requestID string
	state     domain.ConsultState
}

func (r *consultRun) transition(ctx context.Context, to domain.ConsultState) {
	from := r.state
	r.state = to
	logging.FromContext(ctx).Debug("consultation state changed", "from", from, "to", to)
	r.svc.auditState(ctx, r.requestID, from, to)
}

func (r *consultRun) fail(ctx context.Context, kind domain.ErrorKind, message string, err error) *domain.ConsultError {
	ce := &domain.ConsultError{
		Kind:      kind,
		Message:   message,
		RequestID: r.requestID,
		State:     r.state,
		Err:       err,
	}
	return r.failWith(ctx, ce)
}

func (r *consultRun) failWith(ctx context.Context, ce *domain.ConsultError) *domain.ConsultError {
	ce.RequestID = r.requestID
	ce.State = r.state

	log := logging.FromContext(ctx).With("kind", ce.Kind, "state", ce.State)
	switch ce.Kind {
	case domain.ErrorKindUnknown, domain.ErrorKindMalformedCandidate, domain.ErrorKindReasoningUnavailable:
		log.Error("consultation failed", "error", ce)
	default:
		log.Info("consultation rejected", "error", ce)
	}

	r.svc.recordEvent(ctx, r.requestID, domain.EventTypeConsultFailed, domain.ConsultFailedPayload{
		Kind:    ce.Kind,
		State:   ce.State,
		Message: ce.Message,
	})
	r.state = domain.ConsultStateFailed
	r.svc.auditComplete(ctx, r.requestID, domain.ConsultStateFailed, ce.Kind)
	r.svc.metrics.observeOutcome(string(ce.Kind))
	return ce
}

// Handle runs a consultation through
// RECEIVED → AUTHENTICATING → CONTEXT_LOADED → REASONING → FORMATTING → RESPONDED,
// or FAILED(kind) from any state. A turn is appended only when the request
// reaches RESPONDED while the caller is still waiting.
func (s *Service) Handle(ctx context.Context, req ConsultRequest) (*domain.ConsultationResponse, error) {
	requestID := req.RequestID
	if requestID == "" {
		requestID = newRequestID()
	}
	ctx = logging.WithRequestID(ctx, requestID)
	run := &consultRun{svc: s, requestID: requestID, state: domain.ConsultStateReceived}

	s.auditStart(ctx, requestID, s.now())
	s.recordEvent(ctx, requestID, domain.EventTypeConsultReceived, map[string]interface{}{
		"message_length": len([]rune(req.Body.Message)),
		"remote_addr":    req.RemoteAddr,
	})

	// Input is validated before any collaborator is contacted.
	if err := reasoner.ValidateMessage(req.Body.Message, s.config.MaxMessageLength); err != nil {
		return nil, run.fail(ctx, domain.ErrorKindInvalidInput, strings.TrimPrefix(err.Error(), reasoner.ErrInvalidInput.Error()+": "), err)
	}
	target := strings.TrimSpace(req.Body.UserID)

	run.transition(ctx, domain.ConsultStateAuthenticating)
	caller, err := s.resolveCaller(ctx, requestID, req.Token)
	if err != nil {
		var ce *domain.ConsultError
		errors.As(err, &ce)
		return nil, run.failWith(ctx, ce)
	}
	s.auditCaller(ctx, requestID, caller)

	limitKey := caller.ID
	if caller.Anonymous {
		limitKey = "anon:" + req.RemoteAddr
	}
	if !s.limiter.Allow(limitKey) {
		return nil, run.fail(ctx, domain.ErrorKindRateLimited, "too many requests", nil)
	}

	if err := s.checkPolicy(ctx, requestID, caller, policy.ActionConsult, target); err != nil {
		var ce *domain.ConsultError
		errors.As(err, &ce)
		return nil, run.failWith(ctx, ce)
	}

	subject := caller.ID
	if target != "" {
		subject = target
	}
	contextKey := s.contextKey(caller, subject, req.RemoteAddr)

	history := domain.ConversationContext{}
	if contextKey != "" {
		history = s.sessions.GetContext(ctx, contextKey)
	}
	run.transition(ctx, domain.ConsultStateContextLoaded)

	run.transition(ctx, domain.ConsultStateReasoning)
	s.recordEvent(ctx, requestID, domain.EventTypeReasoningStarted, map[string]interface{}{
		"context_turns": len(history),
	})
	start := time.Now()
	candidates, err := s.diagnose(ctx, domain.SymptomRequest{
		UserID:  subject,
		Message: req.Body.Message,
		Context: history,
	})
	elapsed := time.Since(start)
	s.metrics.observeReasoning(elapsed)
	if err != nil {
		kind, message := classifyReasoningError(ctx, err)
		return nil, run.fail(ctx, kind, message, err)
	}
	s.recordEvent(ctx, requestID, domain.EventTypeReasoningDone, domain.ReasoningDonePayload{
		Candidates: len(candidates),
		LatencyMs:  elapsed.Milliseconds(),
	})

	run.transition(ctx, domain.ConsultStateFormatting)
	resp, err := Format(candidates, requestID)
	if err != nil {
		return nil, run.fail(ctx, domain.ErrorKindMalformedCandidate, "reasoner produced an invalid candidate", err)
	}

	if ctx.Err() != nil {
		return nil, run.fail(ctx, domain.ErrorKindCancelled, "request cancelled", ctx.Err())
	}
	if contextKey != "" {
		turn := domain.Turn{
			Timestamp: s.now(),
			Message:   req.Body.Message,
			Response:  summarize(resp),
		}
		if err := s.sessions.Append(ctx, contextKey, turn); err != nil {
			logging.FromContext(ctx).Error("failed to append turn", "user_id", contextKey, "error", err)
		}
	}

	run.transition(ctx, domain.ConsultStateResponded)
	s.recordEvent(ctx, requestID, domain.EventTypeConsultResponded, map[string]interface{}{
		"candidates":     len(resp.Candidates),
		"low_confidence": resp.LowConfidence,
	})
	s.auditComplete(ctx, requestID, domain.ConsultStateResponded, "")
	s.metrics.observeOutcome("ok")
	logging.FromContext(ctx).Info("consultation responded",
		"user_id", subject,
		"anonymous", caller.Anonymous,
		"candidates", len(resp.Candidates),
		"latency_ms", elapsed.Milliseconds(),
	)
	return &resp, nil
}

// contextKey returns the session key for the consultation, or "" when the
// consultation is stateless.
func (s *Service) contextKey(caller domain.CallerIdentity, subject, remoteAddr string) string {
	if !caller.Anonymous {
		return subject
	}
	if s.config.AnonymousContext && remoteAddr != "" {
		return "anon:" + remoteAddr
	}
	return ""
}

type diagnoseResult struct {
	candidates []domain.DiagnosisCandidate
	err        error
}

// diagnose calls the reasoner under the reasoning timeout. The deadline holds
// even when the reasoner ignores its context.
func (s *Service) diagnose(ctx context.Context, req domain.SymptomRequest) ([]domain.DiagnosisCandidate, error) {
	timeout := s.config.ReasoningTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan diagnoseResult, 1)
	go func() {
		candidates, err := s.reasoner.Diagnose(rctx, req)
		done <- diagnoseResult{candidates: candidates, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil && rctx.Err() != nil {
			return nil, rctx.Err()
		}
		return res.candidates, res.err
	case <-rctx.Done():
		return nil, rctx.Err()
	}
}

// classifyReasoningError maps a reasoner failure to an error kind. Caller
// cancellation wins over the reasoning deadline.
func classifyReasoningError(ctx context.Context, err error) (domain.ErrorKind, string) {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return domain.ErrorKindCancelled, "request cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ErrorKindTimeout, "reasoning timed out"
	case errors.Is(err, context.Canceled):
		return domain.ErrorKindCancelled, "request cancelled"
	case errors.Is(err, reasoner.ErrInvalidInput):
		return domain.ErrorKindInvalidInput, "invalid message"
	case errors.Is(err, reasoner.ErrUnavailable):
		return domain.ErrorKindReasoningUnavailable, "reasoning backend unavailable"
	case errors.Is(err, reasoner.ErrMalformedOutput):
		return domain.ErrorKindMalformedCandidate, "reasoning backend returned malformed output"
	default:
		return domain.ErrorKindUnknown, "internal error"
	}
}
