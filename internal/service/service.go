package service

import (
	"context"
	"time"

	"github.com/xiaot623/gogo/consult/internal/config"
	"github.com/xiaot623/gogo/consult/internal/domain"
	"github.com/xiaot623/gogo/consult/internal/identity"
	"github.com/xiaot623/gogo/consult/internal/reasoner"
	"github.com/xiaot623/gogo/consult/internal/session"
	"github.com/xiaot623/gogo/consult/policy"
)

// AuditStore persists the consultation audit trail.
type AuditStore interface {
	CreateConsultation(ctx context.Context, c *domain.Consultation) error
	UpdateConsultationStatus(ctx context.Context, requestID string, status domain.ConsultState) error
	UpdateConsultationUser(ctx context.Context, requestID, userID string, anonymous bool) error
	CompleteConsultation(ctx context.Context, requestID string, status domain.ConsultState, kind domain.ErrorKind) error
	GetConsultation(ctx context.Context, requestID string) (*domain.Consultation, error)
	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, requestID string, afterTs int64, limit int) ([]domain.Event, error)
}

// Service is the Request Gateway. It is safe for concurrent use.
type Service struct {
	resolver     *identity.Resolver
	sessions     *session.Store
	reasoner     reasoner.Reasoner
	policyEngine *policy.Engine
	audit        AuditStore
	metrics      *Metrics
	limiter      *limiterPool
	config       *config.Config
	now          func() time.Time
}

// New creates the gateway. audit and metrics may be nil.
func New(resolver *identity.Resolver, sessions *session.Store, r reasoner.Reasoner, policyEngine *policy.Engine, audit AuditStore, metrics *Metrics, cfg *config.Config) *Service {
	return &Service{
		resolver:     resolver,
		sessions:     sessions,
		reasoner:     r,
		policyEngine: policyEngine,
		audit:        audit,
		metrics:      metrics,
		limiter:      newLimiterPool(cfg.RateLimitRPS, cfg.RateLimitBurst),
		config:       cfg,
		now:          time.Now,
	}
}

// Shutdown stops background work owned by the service.
func (s *Service) Shutdown() {
	s.limiter.Shutdown()
}
