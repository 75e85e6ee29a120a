package api

import (
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"lineup/internal/config"
	"lineup/internal/ledger"
	"lineup/internal/models"

	"golang.org/x/time/rate"
)

const (
	permReadAvailability = "read:availability"
	permReadResources    = "read:resources"
	permWriteBookings    = "write:bookings"
	permStaff            = "staff"
)

var errPermissionDenied = fmt.Errorf("permission denied")

// HTTPAuth provides API-key auth and per-key rate limiting. The actor headers
// identify WHO is acting; the API key identifies WHICH integration is calling.
// Both travel on every request.
type HTTPAuth struct {
	cfg      config.APIConfig
	clients  map[string]config.APIClientKey
	limiters sync.Map // map[string]*rate.Limiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clients: m}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				statusCode := http.StatusUnauthorized
				if err == errPermissionDenied {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
		}

		if err := a.checkRateLimit(r); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Actor builds the acting identity from the request headers. The staff role
// is only honored when the calling key carries the staff permission (or the
// config override is set); anyone can claim a guest identity.
func (a *HTTPAuth) Actor(r *http.Request) ledger.Actor {
	actorHeader := headerName(a.cfg.Auth.HeaderActor, "x-actor-id")
	roleHeader := headerName(a.cfg.Auth.HeaderRole, "x-actor-role")

	actor := ledger.Actor{
		ID:   strings.TrimSpace(r.Header.Get(actorHeader)),
		Role: strings.TrimSpace(r.Header.Get(roleHeader)),
	}
	if actor.Role == "" {
		actor.Role = models.RoleDiner
	}

	if actor.Role == models.RoleStaff && a.cfg.Auth.Enabled && !a.cfg.Auth.StaffOverride {
		if client, ok := a.client(r); !ok || !hasPermission(client, permStaff) {
			actor.Role = models.RoleDiner
		}
	}
	return actor
}

func (a *HTTPAuth) client(r *http.Request) (config.APIClientKey, bool) {
	apiKeyHeader := headerName(a.cfg.Auth.HeaderAPIKey, "x-api-key")
	apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader))
	client, ok := a.clients[apiKey]
	return client, ok
}

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	apiKeyHeader := headerName(a.cfg.Auth.HeaderAPIKey, "x-api-key")

	apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader))
	if apiKey == "" {
		return fmt.Errorf("missing api key header")
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return fmt.Errorf("invalid api key")
	}
	if subtle.ConstantTimeCompare([]byte(client.Key), []byte(apiKey)) != 1 {
		return fmt.Errorf("invalid api key")
	}

	return a.checkPermissions(client, r)
}

func (a *HTTPAuth) checkPermissions(client config.APIClientKey, r *http.Request) error {
	required := requiredPermission(r)
	if required == "" {
		return nil
	}
	// Empty permissions list means allow-all.
	if len(client.Permissions) == 0 {
		return nil
	}
	if hasPermission(client, required) {
		return nil
	}
	return errPermissionDenied
}

func hasPermission(client config.APIClientKey, required string) bool {
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return true
		}
	}
	return false
}

func requiredPermission(r *http.Request) string {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/v1/availability"):
		return permReadAvailability
	case strings.HasPrefix(path, "/api/v1/resources") && r.Method == http.MethodGet:
		return permReadResources
	case strings.HasPrefix(path, "/api/v1/resources"):
		return permStaff
	case strings.HasPrefix(path, "/api/v1/reservations"), strings.HasPrefix(path, "/api/v1/holds"):
		return permWriteBookings
	}
	return ""
}

func (a *HTTPAuth) checkRateLimit(r *http.Request) error {
	if a.cfg.RateLimit.RPS <= 0 {
		return nil
	}

	lim := a.getLimiter(a.clientKey(r))
	if !lim.Allow() {
		return fmt.Errorf("rate limit exceeded")
	}
	return nil
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	apiKeyHeader := headerName(a.cfg.Auth.HeaderAPIKey, "x-api-key")
	if apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func (a *HTTPAuth) getLimiter(key string) *rate.Limiter {
	if v, ok := a.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	burst := a.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(a.cfg.RateLimit.RPS), burst)
	actual, loaded := a.limiters.LoadOrStore(key, lim)
	if loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}

func headerName(configured, fallback string) string {
	h := strings.TrimSpace(strings.ToLower(configured))
	if h == "" {
		return fallback
	}
	return h
}
