package api

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"sharedcal/config"
	"sharedcal/core/reqctx"
	"sharedcal/core/store"
)

func TestRequireAdminDeniesSessionWithoutActor(t *testing.T) {
	s := &Server{}
	called := false
	handler := s.requireAdmin(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodPost, "/api/incidents", nil)
	req = req.WithContext(reqctx.WithSession(req.Context(), &store.SessionRecord{ID: "s1", UserID: 2, Username: "teacher"}))
	rr := httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusForbidden || called {
		t.Fatalf("expected forbidden without calling handler, got %d called=%v", rr.Code, called)
	}
}

func TestRequireAdminAllowsActor(t *testing.T) {
	s := &Server{}
	handler := s.requireAdmin(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodPost, "/api/incidents", nil)
	req = req.WithContext(reqctx.WithActor(req.Context(), &store.Actor{AdminID: 1, UserID: 1, Username: "root"}))
	rr := httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected handler to run, got %d", rr.Code)
	}
}

func TestSessionTokenIgnoresCookieOnMutations(t *testing.T) {
	get := httptest.NewRequest(http.MethodGet, "/api/calendars/incidents/ics", nil)
	get.AddCookie(&http.Cookie{Name: sessionCookie, Value: "abc"})
	if got := sessionToken(get); got != "abc" {
		t.Fatalf("expected cookie token on GET, got %q", got)
	}
	post := httptest.NewRequest(http.MethodPost, "/api/incidents", nil)
	post.AddCookie(&http.Cookie{Name: sessionCookie, Value: "abc"})
	if got := sessionToken(post); got != "" {
		t.Fatalf("expected cookie ignored on POST, got %q", got)
	}
	post.Header.Set("Authorization", "Bearer xyz")
	if got := sessionToken(post); got != "xyz" {
		t.Fatalf("expected bearer token, got %q", got)
	}
	post.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	if got := sessionToken(post); got != "" {
		t.Fatalf("expected non-bearer scheme rejected, got %q", got)
	}
}

func TestWithSessionRejectsMissingToken(t *testing.T) {
	s := &Server{}
	h := s.withSession(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/api/incidents", nil)
	rr := httptest.NewRecorder()
	h(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", rr.Code)
	}
	if rr.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate challenge")
	}
}

func TestRequestMetadataPopulatesContext(t *testing.T) {
	s := &Server{cfg: &config.AppConfig{}}
	var ip, ua, id string
	var stamped bool
	h := s.requestMetadataMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = reqctx.ClientIP(r.Context())
		ua = reqctx.UserAgent(r.Context())
		id = reqctx.RequestID(r.Context())
		stamped = !reqctx.Now(r.Context()).IsZero()
	}))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "192.0.2.7:4000"
	req.Header.Set("User-Agent", "cal-client/2.0")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if ip != "192.0.2.7" || ua != "cal-client/2.0" || !stamped {
		t.Fatalf("unexpected metadata ip=%q ua=%q stamped=%v", ip, ua, stamped)
	}
	if id == "" || rr.Header().Get(requestIDHeader) != id {
		t.Fatalf("expected generated request id echoed, got %q / %q", id, rr.Header().Get(requestIDHeader))
	}
}

func TestRequestMetadataKeepsIncomingRequestID(t *testing.T) {
	s := &Server{cfg: &config.AppConfig{}}
	var id string
	h := s.requestMetadataMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id = reqctx.RequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "trace-123")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if id != "trace-123" {
		t.Fatalf("expected incoming request id, got %q", id)
	}
}

func TestRecoverMiddlewareReturnsServerError(t *testing.T) {
	s := &Server{}
	h := s.recoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", rr.Code)
	}
}

func TestIsHTTPSRequestWithTLS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/incidents", nil)
	req.TLS = &tls.ConnectionState{}
	if !isHTTPSRequest(req, &config.AppConfig{}) {
		t.Fatalf("expected https request when TLS state is present")
	}
}

func TestIsHTTPSRequestWithTrustedProxyForwardedProto(t *testing.T) {
	cfg := &config.AppConfig{Security: config.SecurityConfig{TrustedProxies: []string{"10.0.0.10"}}}
	req := httptest.NewRequest(http.MethodGet, "/api/incidents", nil)
	req.RemoteAddr = "10.0.0.10:12345"
	req.Header.Set("X-Forwarded-Proto", "https")
	if !isHTTPSRequest(req, cfg) {
		t.Fatalf("expected https request behind trusted proxy with x-forwarded-proto=https")
	}
}

func TestIsHTTPSRequestIgnoresUntrustedProxyHeader(t *testing.T) {
	cfg := &config.AppConfig{Security: config.SecurityConfig{TrustedProxies: []string{"10.0.0.10"}}}
	req := httptest.NewRequest(http.MethodGet, "/api/incidents", nil)
	req.RemoteAddr = "192.168.1.20:12345"
	req.Header.Set("X-Forwarded-Proto", "https")
	if isHTTPSRequest(req, cfg) {
		t.Fatalf("expected non-https for untrusted proxy source")
	}
}

func TestClientIPUsesNearestUntrustedXFFHop(t *testing.T) {
	s := &Server{cfg: &config.AppConfig{Security: config.SecurityConfig{TrustedProxies: []string{"10.0.0.10", "10.0.0.0/24"}}}}
	req := httptest.NewRequest(http.MethodGet, "/api/incidents", nil)
	req.RemoteAddr = "10.0.0.10:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.11")
	if got := s.clientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected client ip 203.0.113.9, got %s", got)
	}
}

func TestClientIPIgnoresXFFForUntrustedRemote(t *testing.T) {
	s := &Server{cfg: &config.AppConfig{Security: config.SecurityConfig{TrustedProxies: []string{"10.0.0.10"}}}}
	req := httptest.NewRequest(http.MethodGet, "/api/incidents", nil)
	req.RemoteAddr = "192.168.1.20:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.10")
	if got := s.clientIP(req); got != "192.168.1.20" {
		t.Fatalf("expected remote addr ip for untrusted source, got %s", got)
	}
}

func TestClientIPInvalidXFFFallsBackToRealIP(t *testing.T) {
	s := &Server{cfg: &config.AppConfig{Security: config.SecurityConfig{TrustedProxies: []string{"10.0.0.10"}}}}
	req := httptest.NewRequest(http.MethodGet, "/api/incidents", nil)
	req.RemoteAddr = "10.0.0.10:54321"
	req.Header.Set("X-Forwarded-For", "garbage,not-an-ip")
	req.Header.Set("X-Real-IP", "198.51.100.8")
	if got := s.clientIP(req); got != "198.51.100.8" {
		t.Fatalf("expected fallback to valid X-Real-IP, got %s", got)
	}
}

func TestSecurityHeadersHSTSOnlyForTrustedProxyHTTPS(t *testing.T) {
	s := &Server{cfg: &config.AppConfig{Security: config.SecurityConfig{TrustedProxies: []string{"10.0.0.10"}}}}
	h := s.securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for remote, want := range map[string]bool{"10.0.0.10:12345": true, "192.168.1.20:12345": false} {
		req := httptest.NewRequest(http.MethodGet, "/api/incidents", nil)
		req.RemoteAddr = remote
		req.Header.Set("X-Forwarded-Proto", "https")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if got := rr.Header().Get("Strict-Transport-Security") != ""; got != want {
			t.Fatalf("remote %s: expected hsts=%v, got %v", remote, want, got)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Fatalf("expected nosniff header")
		}
	}
}

func TestSessionActivitySweepsStaleEntries(t *testing.T) {
	sa := newSessionActivity()
	start := time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 100; i++ {
		if !sa.shouldUpdate("sess-"+strconv.Itoa(i), start, sessionActivityInterval) {
			t.Fatalf("first touch of session %d must update", i)
		}
	}
	if sa.shouldUpdate("sess-0", start.Add(time.Second), sessionActivityInterval) {
		t.Fatalf("touch within interval must be throttled")
	}
	later := start.Add(2 * sessionActivityInterval)
	if !sa.shouldUpdate("fresh", later, sessionActivityInterval) {
		t.Fatalf("new session must update")
	}
	if len(sa.last) != 1 {
		t.Fatalf("stale sessions kept: %d entries", len(sa.last))
	}
	sa.forget("fresh")
	if len(sa.last) != 0 {
		t.Fatalf("forgotten session kept")
	}
}
