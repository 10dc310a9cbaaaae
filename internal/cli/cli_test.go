package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/consult/internal/domain"
	"github.com/xiaot623/gogo/consult/internal/service"
	"github.com/xiaot623/gogo/consult/internal/transport"
	"github.com/xiaot623/gogo/consult/internal/transport/ws"
)

type fakeAPI struct {
	lastAuth string
	lastBody domain.ConsultBody
	lastPath string
	cleared  bool
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/consultations", func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastBody))
		if strings.TrimSpace(f.lastBody.Message) == "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(transport.ErrorBody{
				Error:     transport.ErrorDetail{Kind: domain.ErrorKindInvalidInput, Message: "message is required"},
				RequestID: "req-bad",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(domain.ConsultationResponse{
			Candidates: []domain.DiagnosisCandidate{
				{Condition: "Acute bronchitis", Confidence: 0.5, RecommendedMedications: []domain.MedicationRef{"Dextromethorphan"}},
			},
			Disclaimer: service.Disclaimer,
			RequestID:  "req-1",
		})
	})
	contextHandler := func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth = r.Header.Get("Authorization")
		f.lastPath = r.URL.Path
		switch r.Method {
		case http.MethodDelete:
			f.cleared = true
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "cleared", "requestId": "req-3"})
		default:
			_ = json.NewEncoder(w).Encode(service.ContextView{
				UserID: "u1",
				Turns: domain.ConversationContext{
					{UserID: "u1", Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), Message: "dry cough", Response: "Acute bronchitis (50%)"},
				},
				MaxTurns:  10,
				RequestID: "req-2",
			})
		}
	}
	mux.HandleFunc("/v1/context", contextHandler)
	mux.HandleFunc("/v1/users/u2/context", contextHandler)
	return mux
}

func TestAskPrintsRankedConditions(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	stdout, _, err := executeCLI(t, "", "--server", srv.URL, "--token", "tok-u1", "ask", "dry", "cough")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-u1", api.lastAuth)
	assert.Equal(t, "dry cough", api.lastBody.Message)
	assert.Contains(t, stdout, "1. Acute bronchitis (50%)")
	assert.Contains(t, stdout, "medications: Dextromethorphan")
	assert.Contains(t, stdout, service.Disclaimer)
	assert.Contains(t, stdout, "requestId: req-1")
}

func TestAskJSONOutput(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	stdout, _, err := executeCLI(t, "", "--server", srv.URL, "ask", "--json", "--user-id", "u2", "cough")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(stdout)))
	assert.Contains(t, stdout, "\"requestId\": \"req-1\"")
	assert.Equal(t, "u2", api.lastBody.UserID)
	assert.Empty(t, api.lastAuth)
}

func TestAskReportsAPIError(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	_, _, err := executeCLI(t, "", "--server", srv.URL, "ask", "  ")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, domain.ErrorKindInvalidInput, apiErr.Body.Error.Kind)
	assert.Contains(t, err.Error(), "requestId=req-bad")
}

func TestAskRequiresMessage(t *testing.T) {
	_, _, err := executeCLI(t, "", "ask")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestServerAndTokenFromEnvironment(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	t.Setenv("CONSULT_SERVER", srv.URL)
	t.Setenv("CONSULT_TOKEN", "tok-env")

	_, _, err := executeCLI(t, "", "ask", "cough")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-env", api.lastAuth)
}

func TestConfigFileInHome(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	home := t.TempDir()
	cfg := "server: " + srv.URL + "\ntoken: tok-file\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, ".consultctl.yaml"), []byte(cfg), 0o600))

	_, _, err := executeCLI(t, home, "ask", "cough")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-file", api.lastAuth)
}

func TestContextShowAndClear(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	stdout, _, err := executeCLI(t, "", "--server", srv.URL, "--token", "tok-u1", "context", "show")
	require.NoError(t, err)
	assert.Equal(t, "/v1/context", api.lastPath)
	assert.Contains(t, stdout, "user: u1 (1/10 turns)")
	assert.Contains(t, stdout, "dry cough")

	stdout, _, err = executeCLI(t, "", "--server", srv.URL, "--token", "tok-admin", "context", "clear", "--user-id", "u2")
	require.NoError(t, err)
	assert.True(t, api.cleared)
	assert.Equal(t, "/v1/users/u2/context", api.lastPath)
	assert.Contains(t, stdout, "context cleared")
}

func TestChatSession(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/consultations/ws", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for {
			var msg ws.ConsultMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Message == "fail" {
				_ = conn.WriteJSON(ws.ErrorMessage{
					BaseMessage: ws.BaseMessage{Type: ws.TypeError, RequestID: msg.RequestID},
					Status:      http.StatusServiceUnavailable,
					Error:       transport.ErrorDetail{Kind: domain.ErrorKindReasoningUnavailable, Message: "reasoning backend unavailable"},
				})
				continue
			}
			_ = conn.WriteJSON(ws.ResultMessage{
				BaseMessage: ws.BaseMessage{Type: ws.TypeResult, RequestID: msg.RequestID},
				Response: &domain.ConsultationResponse{
					Candidates: []domain.DiagnosisCandidate{{Condition: "Influenza", Confidence: 0.45}},
					Disclaimer: service.Disclaimer,
					RequestID:  msg.RequestID,
				},
			})
		}
	}))
	defer srv.Close()

	stdin := strings.NewReader("fever and chills\n\nfail\n/quit\nnever sent\n")
	stdout, _, err := executeCLIWithInput(t, "", stdin, "--server", srv.URL, "--token", "tok-u1", "chat")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-u1", gotAuth)
	assert.Contains(t, stdout, "1. Influenza (45%)")
	assert.Contains(t, stdout, "error: ReasoningUnavailable (503)")
	assert.NotContains(t, stdout, "never sent")
}

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	return executeCLIWithInput(t, home, strings.NewReader(""), args...)
}

func executeCLIWithInput(t *testing.T, home string, in io.Reader, args ...string) (string, string, error) {
	t.Helper()
	if home == "" {
		home = t.TempDir()
	}
	t.Setenv("HOME", home)

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetIn(in)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}
