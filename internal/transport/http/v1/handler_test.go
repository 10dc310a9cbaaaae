package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/xiaot623/gogo/consult/internal/config"
	"github.com/xiaot623/gogo/consult/internal/domain"
	"github.com/xiaot623/gogo/consult/internal/identity"
	"github.com/xiaot623/gogo/consult/internal/reasoner"
	"github.com/xiaot623/gogo/consult/internal/service"
	"github.com/xiaot623/gogo/consult/internal/session"
	"github.com/xiaot623/gogo/consult/internal/testutil"
	"github.com/xiaot623/gogo/consult/internal/transport"
	"github.com/xiaot623/gogo/consult/policy"
)

type slowReasoner struct{}

func (slowReasoner) Diagnose(ctx context.Context, req domain.SymptomRequest) ([]domain.DiagnosisCandidate, error) {
	time.Sleep(300 * time.Millisecond)
	return nil, nil
}

func newTestServer(t *testing.T, r reasoner.Reasoner, mutate func(*config.Config)) (*echo.Echo, *session.Store) {
	t.Helper()
	ctx := context.Background()

	cfg := config.Default()
	cfg.RateLimitRPS = 0
	if mutate != nil {
		mutate(cfg)
	}
	db := testutil.NewTestSQLiteStore(t)
	testutil.SeedUser(t, db, "u1", domain.RoleUser, "tok-u1")
	testutil.SeedUser(t, db, "admin", domain.RoleAdmin, "tok-admin")

	if r == nil {
		catalog, err := reasoner.DefaultCatalog()
		if err != nil {
			t.Fatalf("DefaultCatalog failed: %v", err)
		}
		r = reasoner.NewRuleReasoner(catalog)
	}
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	sessions := session.NewStore(session.NewMemoryRepository(), cfg.ContextMaxTurns, cfg.ContextTTL)
	resolver := identity.NewResolver(db, cfg.IdentityCacheTTL)
	svc := service.New(resolver, sessions, r, policyEngine, db, service.NewMetrics(prometheus.NewRegistry()), cfg)
	t.Cleanup(svc.Shutdown)

	e := echo.New()
	e.Use(middleware.RequestID())
	NewHandler(svc, cfg.SessionCookie).RegisterRoutes(e)
	return e, sessions
}

func do(e *echo.Echo, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) transport.ErrorBody {
	t.Helper()
	var body transport.ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error body %q: %v", rec.Body.String(), err)
	}
	if body.RequestID == "" {
		t.Fatalf("error body without requestId: %s", rec.Body.String())
	}
	return body
}

func TestConsultDryCough(t *testing.T) {
	e, sessions := newTestServer(t, nil, nil)

	body := `{"message":"I have a persistent dry cough and mild fever for 3 days"}`
	rec := do(e, http.MethodPost, "/api/chat", body, "tok-u1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp domain.ConsultationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Confidence <= 0.15 {
		t.Fatalf("unexpected candidates: %+v", resp.Candidates)
	}
	if resp.RequestID == "" || rec.Header().Get(echo.HeaderXRequestID) != resp.RequestID {
		t.Fatalf("request id mismatch: header=%q body=%q", rec.Header().Get(echo.HeaderXRequestID), resp.RequestID)
	}
	if !strings.Contains(rec.Body.String(), `"recommendedMedications"`) {
		t.Fatalf("expected recommendedMedications field: %s", rec.Body.String())
	}
	if got := len(sessions.GetContext(context.Background(), "u1")); got != 1 {
		t.Fatalf("expected 1 turn, got %d", got)
	}
}

func TestConsultEmptyMessage(t *testing.T) {
	e, sessions := newTestServer(t, nil, nil)

	rec := do(e, http.MethodPost, "/v1/consultations", `{"message":""}`, "tok-u1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Error.Kind != domain.ErrorKindInvalidInput {
		t.Fatalf("unexpected kind: %s", body.Error.Kind)
	}
	if got := len(sessions.GetContext(context.Background(), "u1")); got != 0 {
		t.Fatalf("expected no turns, got %d", got)
	}
}

func TestConsultMalformedBody(t *testing.T) {
	e, _ := newTestServer(t, nil, nil)

	rec := do(e, http.MethodPost, "/api/chat", `{"message":`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	decodeError(t, rec)
}

func TestConsultAnonymousAndUnauthenticated(t *testing.T) {
	e, _ := newTestServer(t, nil, nil)

	rec := do(e, http.MethodPost, "/api/chat", `{"message":"sneezing and itchy eyes"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodPost, "/api/chat", `{"message":"sneezing and itchy eyes"}`, "bogus")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", rec.Code)
	}
	decodeError(t, rec)
}

func TestConsultSessionCookie(t *testing.T) {
	e, sessions := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(`{"message":"heartburn after meals"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "session", Value: "tok-u1"})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := len(sessions.GetContext(context.Background(), "u1")); got != 1 {
		t.Fatalf("expected 1 turn, got %d", got)
	}
}

func TestConsultTimeout(t *testing.T) {
	e, sessions := newTestServer(t, slowReasoner{}, func(c *config.Config) {
		c.ReasoningTimeout = 20 * time.Millisecond
	})

	rec := do(e, http.MethodPost, "/api/chat", `{"message":"cough"}`, "tok-u1")
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Error.Kind != domain.ErrorKindTimeout {
		t.Fatalf("unexpected kind: %s", body.Error.Kind)
	}
	if got := len(sessions.GetContext(context.Background(), "u1")); got != 0 {
		t.Fatalf("expected no turns, got %d", got)
	}
}

func TestContextEndpoints(t *testing.T) {
	e, _ := newTestServer(t, nil, nil)

	if rec := do(e, http.MethodPost, "/api/chat", `{"message":"cough"}`, "tok-u1"); rec.Code != http.StatusOK {
		t.Fatalf("consult failed: %d", rec.Code)
	}

	rec := do(e, http.MethodGet, "/v1/context", "", "tok-u1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var view service.ContextView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.UserID != "u1" || len(view.Turns) != 1 {
		t.Fatalf("unexpected view: %+v", view)
	}

	if rec := do(e, http.MethodGet, "/v1/context", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/v1/users/admin/context", "", "tok-u1"); rec.Code != http.StatusForbidden {
		t.Fatalf("other user: expected 403, got %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/v1/users/u1/context", "", "tok-admin"); rec.Code != http.StatusOK {
		t.Fatalf("admin: expected 200, got %d", rec.Code)
	}

	if rec := do(e, http.MethodDelete, "/v1/context", "", "tok-u1"); rec.Code != http.StatusOK {
		t.Fatalf("clear: expected 200, got %d", rec.Code)
	}
	rec = do(e, http.MethodGet, "/v1/context", "", "tok-u1")
	view = service.ContextView{}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(view.Turns) != 0 {
		t.Fatalf("expected cleared context, got %d turns", len(view.Turns))
	}
}

func TestConsultationEvents(t *testing.T) {
	e, _ := newTestServer(t, nil, nil)

	rec := do(e, http.MethodPost, "/api/chat", `{"message":"cough"}`, "tok-u1")
	requestID := rec.Header().Get(echo.HeaderXRequestID)

	if rec := do(e, http.MethodGet, "/v1/consultations/"+requestID+"/events", "", "tok-u1"); rec.Code != http.StatusForbidden {
		t.Fatalf("user: expected 403, got %d", rec.Code)
	}

	rec = do(e, http.MethodGet, "/v1/consultations/"+requestID+"/events?limit=2", "", "tok-admin")
	if rec.Code != http.StatusOK {
		t.Fatalf("admin: expected 200, got %d", rec.Code)
	}
	var out struct {
		Consultation domain.Consultation `json:"consultation"`
		Events       []domain.Event      `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Consultation.Status != domain.ConsultStateResponded || len(out.Events) != 2 {
		t.Fatalf("unexpected events response: %+v", out)
	}

	if rec := do(e, http.MethodGet, "/v1/consultations/nope/events", "", "tok-admin"); rec.Code != http.StatusNotFound {
		t.Fatalf("missing: expected 404, got %d", rec.Code)
	}
}

func TestConsultationEventsRejectsMalformedQuery(t *testing.T) {
	e, _ := newTestServer(t, nil, nil)

	rec := do(e, http.MethodPost, "/api/chat", `{"message":"cough"}`, "tok-u1")
	requestID := rec.Header().Get(echo.HeaderXRequestID)

	for _, query := range []string{"after_ts=yesterday", "limit=ten", "limit=-1", "after_ts=-5", "limit=2.5"} {
		rec := do(e, http.MethodGet, "/v1/consultations/"+requestID+"/events?"+query, "", "tok-admin")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", query, rec.Code)
		}
		var body transport.ErrorBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: decode: %v", query, err)
		}
		if body.Error.Kind != domain.ErrorKindInvalidInput {
			t.Fatalf("%s: expected InvalidInput, got %s", query, body.Error.Kind)
		}
	}

	if rec := do(e, http.MethodGet, "/v1/consultations/"+requestID+"/events?after_ts=0&limit=1", "", "tok-admin"); rec.Code != http.StatusOK {
		t.Fatalf("well-formed query: expected 200, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	e, _ := newTestServer(t, nil, nil)
	if rec := do(e, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
