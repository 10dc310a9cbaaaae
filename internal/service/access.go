package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/consult/internal/domain"
	"github.com/xiaot623/gogo/consult/internal/identity"
	"github.com/xiaot623/gogo/consult/internal/logging"
	"github.com/xiaot623/gogo/consult/policy"
)

func newRequestID() string {
	return uuid.New().String()
}

// resolveCaller maps the credential to an identity, translating resolver
// errors into consultation errors.
func (s *Service) resolveCaller(ctx context.Context, requestID, token string) (domain.CallerIdentity, error) {
	caller, err := s.resolver.Resolve(ctx, token)
	if err == nil {
		return caller, nil
	}
	switch {
	case errors.Is(err, identity.ErrUnauthenticated):
		return domain.CallerIdentity{}, &domain.ConsultError{
			Kind: domain.ErrorKindUnauthenticated, Message: "invalid credential", RequestID: requestID, Err: err,
		}
	case errors.Is(err, context.Canceled):
		return domain.CallerIdentity{}, &domain.ConsultError{
			Kind: domain.ErrorKindCancelled, Message: "request cancelled", RequestID: requestID, Err: err,
		}
	default:
		return domain.CallerIdentity{}, &domain.ConsultError{
			Kind: domain.ErrorKindUnknown, Message: "identity lookup failed", RequestID: requestID, Err: err,
		}
	}
}

// checkPolicy evaluates action for caller on target.
func (s *Service) checkPolicy(ctx context.Context, requestID string, caller domain.CallerIdentity, action, target string) error {
	decision, err := s.policyEngine.Evaluate(ctx, policy.Input{
		Action:       action,
		Role:         string(caller.Role),
		Anonymous:    caller.Anonymous,
		UserID:       caller.ID,
		TargetUserID: target,
	})
	if err != nil {
		return &domain.ConsultError{Kind: domain.ErrorKindUnknown, Message: "policy evaluation failed", RequestID: requestID, Err: err}
	}
	if !decision.Allow {
		logging.FromContext(ctx).Info("policy denied request", "action", action, "user_id", caller.ID, "target_user_id", target, "reason", decision.Reason)
		return &domain.ConsultError{Kind: domain.ErrorKindForbidden, Message: decision.Reason, RequestID: requestID}
	}
	return nil
}

// authorize resolves token and checks action for an authenticated caller.
// An empty target means the caller itself.
func (s *Service) authorize(ctx context.Context, requestID, token, action, target string) (domain.CallerIdentity, error) {
	caller, err := s.resolveCaller(ctx, requestID, token)
	if err != nil {
		return caller, err
	}
	if caller.Anonymous {
		return caller, &domain.ConsultError{Kind: domain.ErrorKindUnauthenticated, Message: "authentication required", RequestID: requestID}
	}
	if target == "" && action != policy.ActionEventsRead {
		target = caller.ID
	}
	return caller, s.checkPolicy(ctx, requestID, caller, action, target)
}

// ContextView is the stored context of one user.
type ContextView struct {
	UserID    string                     `json:"userId"`
	Turns     domain.ConversationContext `json:"turns"`
	MaxTurns  int                        `json:"maxTurns"`
	RequestID string                     `json:"requestId"`
}

// GetContext returns the stored context of userID, or of the caller when
// userID is empty.
func (s *Service) GetContext(ctx context.Context, token, userID string) (*ContextView, error) {
	requestID := newRequestID()
	ctx = logging.WithRequestID(ctx, requestID)

	caller, err := s.authorize(ctx, requestID, token, policy.ActionContextRead, userID)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		userID = caller.ID
	}
	return &ContextView{
		UserID:    userID,
		Turns:     s.sessions.GetContext(ctx, userID),
		MaxTurns:  s.sessions.MaxTurns(),
		RequestID: requestID,
	}, nil
}

// ClearContext deletes the stored context of userID, or of the caller when
// userID is empty. It returns the operation's request id.
func (s *Service) ClearContext(ctx context.Context, token, userID string) (string, error) {
	requestID := newRequestID()
	ctx = logging.WithRequestID(ctx, requestID)

	caller, err := s.authorize(ctx, requestID, token, policy.ActionContextClear, userID)
	if err != nil {
		return requestID, err
	}
	if userID == "" {
		userID = caller.ID
	}
	if err := s.sessions.Clear(ctx, userID); err != nil {
		return requestID, &domain.ConsultError{Kind: domain.ErrorKindUnknown, Message: "failed to clear context", RequestID: requestID, Err: err}
	}
	logging.FromContext(ctx).Info("context cleared", "user_id", userID, "cleared_by", caller.ID)
	return requestID, nil
}
