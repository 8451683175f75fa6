package manager

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/migasfree/migasfree-swarm/internal/ca"
)

type handlers struct {
	cfg RouterConfig
}

type issueAdminTokenRequest struct {
	CommonName string `json:"common_name"`
}

type issueComputerTokenRequest struct {
	ComputerUUID string `json:"computer_uuid"`
}

type issueTokenResponse struct {
	URL string `json:"url"`
}

// issueAdminToken mints a single-use enrollment token bound to the admin
// identity an already-authenticated superuser names; this is the only way
// an admin-requests token comes into existence, closing the escalation path
// where anyone could request one without being logged in first.
func (h *handlers) issueAdminToken(w http.ResponseWriter, r *http.Request) {
	var req issueAdminTokenRequest
	if err := decodeJSON(w, r, &req); err != nil || req.CommonName == "" {
		ErrBadRequest(w, "common_name is required")
		return
	}
	token, err := h.cfg.CA.IssueAdminToken(r.Context(), req.CommonName)
	if err != nil {
		ErrInternal(w, err.Error())
		return
	}
	Created(w, issueTokenResponse{URL: h.requestURL("admin-requests", token)})
}

func (h *handlers) issueComputerToken(w http.ResponseWriter, r *http.Request) {
	var req issueComputerTokenRequest
	if err := decodeJSON(w, r, &req); err != nil || req.ComputerUUID == "" {
		ErrBadRequest(w, "computer_uuid is required")
		return
	}
	token, err := h.cfg.CA.IssueComputerToken(r.Context(), req.ComputerUUID)
	if err != nil {
		ErrInternal(w, err.Error())
		return
	}
	Created(w, issueTokenResponse{URL: h.requestURL("computer-requests", token)})
}

func (h *handlers) requestURL(kind, token string) string {
	return fmt.Sprintf("https://%s/ca/v1/public/mtls/%s/%s", h.cfg.FQDN, kind, token)
}

// consumeAdminCertificate redeems an admin-requests token posted as an
// application/x-www-form-urlencoded body, matching the form contract the
// enrollment script on the other end already speaks. The identity in the
// resulting certificate is whatever was bound to the token at issuance,
// never a field this request supplies.
func (h *handlers) consumeAdminCertificate(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := r.ParseForm(); err != nil {
		ErrBadRequest(w, "malformed form body")
		return
	}
	password := r.PostFormValue("password")

	bundle, err := h.cfg.CA.ConsumeAdminCertificate(r.Context(), token, password)
	if err != nil {
		writeCAConsumeError(w, err)
		return
	}
	writeCertificateBundle(w, bundle, "admin.tar")
}

func (h *handlers) consumeComputerCertificate(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := r.ParseForm(); err != nil {
		ErrBadRequest(w, "malformed form body")
		return
	}
	password := r.PostFormValue("password")

	bundle, err := h.cfg.CA.ConsumeComputerCertificate(r.Context(), token, password)
	if err != nil {
		writeCAConsumeError(w, err)
		return
	}
	writeCertificateBundle(w, bundle, "computer.tar")
}

func writeCAConsumeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ca.ErrInvalidToken):
		ErrNotFound(w, "token is invalid, expired, or already used")
	case errors.Is(err, ca.ErrTokenThrottled):
		JSON(w, http.StatusTooManyRequests, envelope{Error: &errorResponse{Kind: "throttled", Message: "too many attempts, retry shortly", RetryAfter: 3}})
	default:
		ErrInternal(w, err.Error())
	}
}

func writeCertificateBundle(w http.ResponseWriter, data []byte, filename string) {
	w.Header().Set("Content-Type", "application/x-tar")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(data)
}

func (h *handlers) crl(w http.ResponseWriter, r *http.Request) {
	data, err := h.cfg.CA.CRL(r.Context())
	if err != nil {
		ErrInternal(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/pkix-crl")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type revokeAdminRequest struct {
	CommonName string `json:"common_name"`
}

type revokeComputerRequest struct {
	ComputerUUID string `json:"computer_uuid"`
}

func (h *handlers) revokeAdmin(w http.ResponseWriter, r *http.Request) {
	var req revokeAdminRequest
	if err := decodeJSON(w, r, &req); err != nil || req.CommonName == "" {
		ErrBadRequest(w, "common_name is required")
		return
	}
	if err := h.cfg.CA.RevokeAdmin(r.Context(), req.CommonName); err != nil {
		if errors.Is(err, ca.ErrCertificateNotFound) {
			ErrNotFound(w, "no such admin certificate")
			return
		}
		ErrInternal(w, err.Error())
		return
	}
	NoContent(w)
}

func (h *handlers) revokeComputer(w http.ResponseWriter, r *http.Request) {
	var req revokeComputerRequest
	if err := decodeJSON(w, r, &req); err != nil || req.ComputerUUID == "" {
		ErrBadRequest(w, "computer_uuid is required")
		return
	}
	if err := h.cfg.CA.RevokeComputer(r.Context(), req.ComputerUUID); err != nil {
		if errors.Is(err, ca.ErrCertificateNotFound) {
			ErrNotFound(w, "no such computer certificate")
			return
		}
		ErrInternal(w, err.Error())
		return
	}
	NoContent(w)
}

func (h *handlers) listAgents(w http.ResponseWriter, r *http.Request) {
	records, err := h.cfg.Agents.List(r.Context())
	if err != nil {
		ErrUpstreamUnavailable(w, "agent directory unavailable")
		return
	}
	Ok(w, records)
}
