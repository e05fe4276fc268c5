package api

import (
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/uuid/v5"

	"sharedcal/api/handlers"
	"sharedcal/config"
	"sharedcal/core/reqctx"
	"sharedcal/core/utils"
)

const (
	sessionCookie           = handlers.SessionCookieName
	requestIDHeader         = "X-Request-ID"
	sessionActivityInterval = 30 * time.Second
)

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Errorf("PANIC %s %s: %v\n%s", r.Method, r.URL.Path, rec, string(debug.Stack()))
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": map[string]string{"code": "server.error"}})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestMetadataMiddleware stamps every request once with its id, client
// address, user agent and time. Everything downstream reads them from reqctx.
func (s *Server) requestMetadataMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 64 {
			if u, err := uuid.NewV4(); err == nil {
				id = u.String()
			}
		}
		w.Header().Set(requestIDHeader, id)
		ctx := reqctx.WithRequestID(r.Context(), id)
		ctx = reqctx.WithClientMetadata(ctx, s.clientIP(r), strings.TrimSpace(r.UserAgent()))
		ctx = reqctx.WithTime(ctx, utils.NowUTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		if isHTTPSRequest(r, s.cfg) {
			w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := s.logger.With("request_id", reqctx.RequestID(r.Context()))
		log.Printf("REQ %s %s", r.Method, r.URL.Path)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		// withSession attaches the session to the inner request only
		user := rec.username
		if user == "" {
			user = "-"
		}
		log.Printf("RESP %s %s user=%s status=%d dur=%s bytes=%d", r.Method, r.URL.Path, user, rec.status, time.Since(start), rec.size)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status   int
	size     int
	username string
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

// sessionActivity throttles session touches. Entries older than the
// interval carry no information and are swept once per interval, so the map
// only holds sessions seen recently.
type sessionActivity struct {
	mu    sync.Mutex
	last  map[string]time.Time
	swept time.Time
}

func newSessionActivity() *sessionActivity {
	return &sessionActivity{last: map[string]time.Time{}}
}

func (sa *sessionActivity) shouldUpdate(id string, now time.Time, interval time.Duration) bool {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	if now.Sub(sa.swept) >= interval {
		for key, seen := range sa.last {
			if now.Sub(seen) >= interval {
				delete(sa.last, key)
			}
		}
		sa.swept = now
	}
	last, ok := sa.last[id]
	if !ok || now.Sub(last) >= interval {
		sa.last[id] = now
		return true
	}
	return false
}

func (sa *sessionActivity) forget(id string) {
	sa.mu.Lock()
	delete(sa.last, id)
	sa.mu.Unlock()
}

// sessionToken reads a bearer token, or the session cookie on safe methods.
// Cookies never authorize a mutation, so state-changing requests cannot be
// forged cross-site.
func sessionToken(r *http.Request) string {
	if authz := strings.TrimSpace(r.Header.Get("Authorization")); authz != "" {
		if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
			return strings.TrimSpace(authz[7:])
		}
		return ""
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return ""
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

// withSession resolves the session and, when the user is an administrator,
// the acting administrator. Both are resolved once and stored in the context.
func (s *Server) withSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			s.logger.Printf("AUTH fail (missing token) %s %s", r.Method, r.URL.Path)
			respondUnauthorized(w)
			return
		}
		sr, err := s.sessions.Get(r.Context(), token)
		if err != nil || sr == nil {
			s.logger.Printf("AUTH fail (session not found) %s %s: %v", r.Method, r.URL.Path, err)
			respondUnauthorized(w)
			return
		}
		user, err := s.users.Get(r.Context(), sr.UserID)
		if err != nil || user == nil || !user.Active {
			s.logger.Printf("AUTH fail (user inactive/missing) %s %s: %v", r.Method, r.URL.Path, err)
			_ = s.sessions.Delete(r.Context(), sr.ID)
			s.activityTracker.forget(sr.ID)
			respondUnauthorized(w)
			return
		}
		actor, err := s.actors.ActorForUser(r.Context(), user.ID)
		if err != nil {
			s.logger.Errorf("resolve actor for %s: %v", user.Username, err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": map[string]string{"code": "server.error"}})
			return
		}
		if rec, ok := w.(*statusRecorder); ok {
			rec.username = user.Username
		}
		now := reqctx.Now(r.Context())
		if s.activityTracker.shouldUpdate(sr.ID, now, sessionActivityInterval) {
			if err := s.sessions.Refresh(r.Context(), sr.ID); err != nil {
				s.logger.Errorf("touch session: %v", err)
			}
		}
		ctx := reqctx.WithSession(r.Context(), sr)
		ctx = reqctx.WithActor(ctx, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reqctx.Actor(r.Context()) == nil {
			username := "-"
			if sr := reqctx.Session(r.Context()); sr != nil {
				username = sr.Username
			}
			s.logger.Printf("PERM fail %s %s user=%s need=admin", r.Method, r.URL.Path, username)
			writeJSON(w, http.StatusForbidden, map[string]any{"error": map[string]string{"code": "auth.adminRequired"}})
			return
		}
		next.ServeHTTP(w, r)
	}
}

func respondUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="sharedcal"`)
	writeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]string{"code": "auth.unauthorized"}})
}

func (s *Server) clientIP(r *http.Request) string {
	ip, _, _ := net.SplitHostPort(r.RemoteAddr)
	if ip == "" {
		ip = r.RemoteAddr
	}
	ip = strings.TrimSpace(ip)
	if s == nil || s.cfg == nil || !isTrustedProxy(ip, s.cfg.Security.TrustedProxies) {
		return ip
	}
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		if candidate := extractClientIPFromXFF(xff, s.cfg.Security.TrustedProxies); candidate != "" {
			return candidate
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		if parsed := net.ParseIP(realIP); parsed != nil {
			return parsed.String()
		}
	}
	return ip
}

func isHTTPSRequest(r *http.Request, cfg *config.AppConfig) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	if cfg == nil {
		return false
	}
	remoteIP, _, _ := net.SplitHostPort(r.RemoteAddr)
	if remoteIP == "" {
		remoteIP = strings.TrimSpace(r.RemoteAddr)
	}
	if !isTrustedProxy(strings.TrimSpace(remoteIP), cfg.Security.TrustedProxies) {
		return false
	}
	proto := strings.ToLower(strings.TrimSpace(strings.SplitN(r.Header.Get("X-Forwarded-Proto"), ",", 2)[0]))
	return proto == "https"
}

// extractClientIPFromXFF walks right to left and returns the first hop that
// is not a trusted proxy.
func extractClientIPFromXFF(xff string, trusted []string) string {
	parts := strings.Split(xff, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		parsed := net.ParseIP(strings.TrimSpace(parts[i]))
		if parsed == nil {
			continue
		}
		val := parsed.String()
		if !isTrustedProxy(val, trusted) {
			return val
		}
	}
	return ""
}

func isTrustedProxy(ip string, trusted []string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false
	}
	for _, raw := range trusted {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if strings.Contains(val, "/") {
			if _, block, err := net.ParseCIDR(val); err == nil && block.Contains(parsed) {
				return true
			}
			continue
		}
		if parsed.Equal(net.ParseIP(val)) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
