package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/circuit"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/engine"
)

func testServer() (*Server, *engine.State) {
	state := engine.NewState(10000)
	deps := Deps{
		State:   state,
		Breaker: circuit.NewBreaker(circuit.DefaultConfig(), 10000),
	}
	return NewServer(ServerConfig{Host: "127.0.0.1", Port: 0}, deps, zerolog.Nop()), state
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := testServer()
	w := doRequest(s, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s, state := testServer()
	state.SetEnabled(true)

	w := doRequest(s, http.MethodGet, "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	eng, ok := resp["engine"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing engine block in %v", resp)
	}
	if eng["enabled"] != true {
		t.Error("engine should report enabled")
	}
	if _, ok := resp["circuit_breaker"]; !ok {
		t.Error("missing circuit_breaker block")
	}
}

func TestEngineStartStop(t *testing.T) {
	s, state := testServer()

	if w := doRequest(s, http.MethodPost, "/api/engine/start", ""); w.Code != http.StatusOK {
		t.Fatalf("start status = %d", w.Code)
	}
	if !state.Snapshot().Enabled {
		t.Fatal("engine not enabled")
	}

	if w := doRequest(s, http.MethodPost, "/api/engine/stop", ""); w.Code != http.StatusOK {
		t.Fatalf("stop status = %d", w.Code)
	}
	if state.Snapshot().Enabled {
		t.Fatal("engine still enabled")
	}
}

func TestBreakerResetValidation(t *testing.T) {
	s, _ := testServer()

	if w := doRequest(s, http.MethodPost, "/api/breaker/reset", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing balance should 400, got %d", w.Code)
	}
	if w := doRequest(s, http.MethodPost, "/api/breaker/reset", `{"starting_balance": 5000}`); w.Code != http.StatusOK {
		t.Errorf("valid reset should 200, got %d", w.Code)
	}
}

func TestLedgerUnavailableWithoutConfig(t *testing.T) {
	s, _ := testServer()
	if w := doRequest(s, http.MethodGet, "/api/ledger", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}
