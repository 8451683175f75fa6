package manager

import (
	"net/http"
	"strings"
)

type availabilityResponse struct {
	Admitted bool `json:"admitted"`
	Queued   bool `json:"queued"`
}

// computerUUIDFromClientCN extracts the computer UUID from the mTLS client
// certificate's CN, forwarded by the reverse proxy as X-SSL-Client-CN in
// the form /O=.../OU=.../CN=<uuid>_<cert-id>. The identity is never taken
// from the request body: the TLS handshake is the only thing a computer
// cannot forge.
func computerUUIDFromClientCN(cn string) string {
	idx := strings.LastIndex(cn, "CN=")
	if idx == -1 {
		return ""
	}
	value := cn[idx+len("CN="):]
	if i := strings.IndexByte(value, '/'); i != -1 {
		value = value[:i]
	}
	underscore := strings.LastIndexByte(value, '_')
	if underscore == -1 {
		return value
	}
	return value[:underscore]
}

// synchronizationAvailability is the admission gate a computer calls before
// starting a synchronization. When the controller reports saturation the
// computer's UUID is queued and the caller gets a 429 with retry_after;
// otherwise it is admitted immediately.
func (h *handlers) synchronizationAvailability(w http.ResponseWriter, r *http.Request) {
	computerUUID := computerUUIDFromClientCN(r.Header.Get("X-SSL-Client-CN"))
	if computerUUID == "" {
		ErrUnauthorized(w, "missing or malformed client certificate")
		return
	}

	decision, err := h.cfg.Admission.Admit(r.Context(), computerUUID)
	if err != nil {
		ErrUpstreamUnavailable(w, "admission controller unavailable")
		return
	}

	if !decision.Admitted {
		ErrSaturated(w, decision.RetryAfterSeconds)
		return
	}

	Ok(w, availabilityResponse{Admitted: true})
}

func (h *handlers) metricsJSON(w http.ResponseWriter, r *http.Request) {
	snap, err := h.cfg.Admission.CurrentSnapshot(r.Context())
	if err != nil {
		ErrUpstreamUnavailable(w, "metrics unavailable")
		return
	}
	Ok(w, snap)
}
