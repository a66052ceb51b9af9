package auth_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/firasghr/loadspiker-engine/auth"
	"github.com/firasghr/loadspiker-engine/dispatch"
	"github.com/firasghr/loadspiker-engine/httpadapter"
	"github.com/firasghr/loadspiker-engine/metrics"
	"github.com/firasghr/loadspiker-engine/session"
)

func testEngine(handler http.Handler) (*dispatch.Engine, func()) {
	srv := httptest.NewServer(handler)
	m := metrics.NewAggregator(1)
	return &dispatch.Engine{HTTP: httpadapter.New(srv.Client(), m, nil)}, srv.Close
}

func TestBasic(t *testing.T) {
	store := session.NewStore()
	flow := auth.Basic("alice", "hunter2")
	res := flow.Authenticate(nil, "u1", store, nil)
	if !res.Success || res.AuthType != "basic" {
		t.Fatalf("Basic: %+v", res)
	}
	if !auth.IsAuthenticated(store, "basic") {
		t.Error("expected basic token to be present")
	}
	headers := store.PrepareRequestHeaders("")
	if !strings.Contains(headers, "Authorization: Basic") {
		t.Errorf("expected Basic Authorization header, got %q", headers)
	}
}

func TestBearerDirect(t *testing.T) {
	store := session.NewStore()
	flow := auth.BearerDirect("tok123")
	res := flow.Authenticate(nil, "u1", store, nil)
	if !res.Success || res.Token != "tok123" {
		t.Fatalf("BearerDirect: %+v", res)
	}
	headers := store.PrepareRequestHeaders("")
	if !strings.Contains(headers, "Authorization: Bearer tok123") {
		t.Errorf("expected bearer header, got %q", headers)
	}
}

func TestBearerEndpoint(t *testing.T) {
	eng, closeSrv := testEngine(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"abc","expires_in":3600}`))
	}))
	defer closeSrv()

	store := session.NewStore()
	flow := auth.BearerEndpoint("http://example.com/token", "client", "secret")
	res := flow.Authenticate(eng, "u1", store, nil)
	if !res.Success || res.Token != "abc" {
		t.Fatalf("BearerEndpoint: %+v", res)
	}
	tok, ok := store.GetToken("bearer")
	if !ok || tok != "abc" {
		t.Errorf("GetToken(bearer) = %q, %v", tok, ok)
	}
}

func TestAPIKey(t *testing.T) {
	store := session.NewStore()
	flow := auth.APIKey("X-Api-Key", "secretvalue")
	res := flow.Authenticate(nil, "u1", store, nil)
	if !res.Success {
		t.Fatalf("APIKey: %+v", res)
	}
	headers := store.PrepareRequestHeaders("")
	if !strings.Contains(headers, "X-Api-Key: secretvalue") {
		t.Errorf("expected plain api key header, got %q", headers)
	}
	if strings.Contains(headers, "Authorization:") {
		t.Errorf("api_key must not be folded into Authorization, got %q", headers)
	}
}

func TestForm_SuccessAndCookies(t *testing.T) {
	eng, closeSrv := testEngine(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Set-Cookie", "sid=abc123")
		w.Write([]byte("welcome back"))
	}))
	defer closeSrv()

	store := session.NewStore()
	flow := auth.Form("http://example.com/login", map[string]string{"user": "alice", "pass": "x"}, "welcome")
	res := flow.Authenticate(eng, "u1", store, nil)
	if !res.Success {
		t.Fatalf("Form: %+v", res)
	}
	if v, ok := store.GetCookie("sid"); !ok || v != "abc123" {
		t.Errorf("expected sid cookie auto-handled, got %q, %v", v, ok)
	}
}

func TestForm_SuccessIndicatorMissing(t *testing.T) {
	eng, closeSrv := testEngine(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("invalid credentials"))
	}))
	defer closeSrv()

	store := session.NewStore()
	flow := auth.Form("http://example.com/login", map[string]string{"user": "alice"}, "welcome")
	res := flow.Authenticate(eng, "u1", store, nil)
	if res.Success {
		t.Error("expected failure when success indicator absent")
	}
}

func TestOAuth2Code_TwoPhase(t *testing.T) {
	eng, closeSrv := testEngine(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"oauth-tok","expires_in":60}`))
	}))
	defer closeSrv()

	flow := auth.OAuth2Code("http://example/authorize", "http://example.com/token", "client", "secret", "http://app/callback")
	store := session.NewStore()

	first := flow.Authenticate(eng, "u1", store, nil)
	if first.Success {
		t.Error("expected first phase to be advisory (not success)")
	}
	if !strings.Contains(first.Token, "http://example/authorize") {
		t.Errorf("expected authorization URL in first phase token field, got %q", first.Token)
	}

	second := flow.Authenticate(eng, "u1", store, map[string]string{"authorization_code": "c0de"})
	if !second.Success || second.Token != "oauth-tok" {
		t.Fatalf("OAuth2Code second phase: %+v", second)
	}
}

func TestCustom(t *testing.T) {
	store := session.NewStore()
	flow := auth.Custom(func(_ *dispatch.Engine, userID string, s *session.Store, params map[string]string) auth.Result {
		s.Set("seen_user", userID)
		return auth.Result{Success: true, AuthType: "custom"}
	})
	res := flow.Authenticate(nil, "u7", store, nil)
	if !res.Success || res.AuthType != "custom" {
		t.Fatalf("Custom: %+v", res)
	}
	if v, _ := store.Get("seen_user"); v != "u7" {
		t.Errorf("expected callback to observe user id, got %v", v)
	}
}

func TestRegistry(t *testing.T) {
	r := auth.NewRegistry()
	r.Register("basic", auth.Basic("u", "p"))
	store := session.NewStore()
	res := r.Authenticate(nil, "basic", "u1", store, nil)
	if !res.Success {
		t.Fatalf("Registry.Authenticate: %+v", res)
	}
	if res := r.Authenticate(nil, "missing", "u1", store, nil); res.Success {
		t.Error("expected failure for unregistered flow name")
	}
}

func TestIsAuthenticatedAndLogout(t *testing.T) {
	store := session.NewStore()
	store.SetToken("bearer", "tok", 0)
	if !auth.IsAuthenticated(store, "") {
		t.Error("expected IsAuthenticated to find the bearer token")
	}
	auth.Logout(store, "")
	if auth.IsAuthenticated(store, "") {
		t.Error("expected Logout to clear all tokens")
	}
}
