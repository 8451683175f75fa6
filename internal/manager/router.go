package manager

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/migasfree/migasfree-swarm/internal/ca"
	"github.com/migasfree/migasfree-swarm/internal/coreauth"
	"github.com/migasfree/migasfree-swarm/internal/redisdir"
	"github.com/migasfree/migasfree-swarm/internal/saturation"
)

// RouterConfig carries every dependency the HTTP layer needs, following the
// corpus's convention of one dependency-injection struct per router rather
// than package-level globals.
type RouterConfig struct {
	Logger      *zap.Logger
	Verifier    coreauth.Verifier
	CA          *ca.Service
	Agents      *redisdir.AgentDirectory
	Relays      *redisdir.RelayDirectory
	Admission   *saturation.Controller
	RelayDialer *RelayClientDialer

	// FQDN is this stack's public hostname, used to build the default
	// relay URL fallback and the CA's issued-token consumption URLs.
	FQDN string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	h := &handlers{cfg: cfg}

	// ca/v1/public is deliberately its own top-level prefix distinct from
	// v1/public: token *consumption* is public (the token itself is the
	// credential), but token *issuance* lives under v1/private below,
	// gated behind an authenticated superuser session.
	r.Route("/ca/v1/public", func(pub chi.Router) {
		pub.Get("/crl", h.crl)
		pub.Post("/mtls/admin-requests/{token}", h.consumeAdminCertificate)
		pub.Post("/mtls/computer-requests/{token}", h.consumeComputerCertificate)
	})

	r.Route("/v1/public", func(pub chi.Router) {
		pub.Post("/synchronizations/availability/", h.synchronizationAvailability)
	})

	r.Route("/v1/private", func(priv chi.Router) {
		// tunnel/register is called by relays and agents establishing a
		// session, not by a logged-in admin browser, so it is mounted
		// under /v1/private but deliberately outside the Authenticate
		// middleware that guards the rest of this prefix.
		priv.Post("/tunnel/register", h.registerTunnel)

		priv.Group(func(admin chi.Router) {
			admin.Use(Authenticate(cfg.Verifier))

			admin.Get("/tunnel/agents", h.listAgents)
			admin.Get("/tunnel/ws/agents/{agent_id}", h.tunnelWS)
			admin.Get("/metrics/json", h.metricsJSON)

			admin.Post("/mtls/admin-tokens", h.issueAdminToken)
			admin.Post("/mtls/computer-tokens", h.issueComputerToken)
			admin.Post("/mtls/admin-certificates/revoke", h.revokeAdmin)
			admin.Post("/mtls/computer-certificates/revoke", h.revokeComputer)
		})
	})

	return r
}

// RequestLogger logs each request's method, path, status, and duration,
// matching the wrap-response-writer pattern used elsewhere in this
// codebase's middleware.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
