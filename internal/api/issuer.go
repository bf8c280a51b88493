package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Concordium/concordium-web3id/internal/core/domain"
	"github.com/Concordium/concordium-web3id/internal/core/ports"
	"github.com/Concordium/concordium-web3id/internal/core/services"
	"github.com/Concordium/concordium-web3id/internal/health"
	"github.com/Concordium/concordium-web3id/internal/log"
	"github.com/Concordium/concordium-web3id/internal/metrics"
)

// IssuerServer serves the credential issuance endpoints.
type IssuerServer struct {
	issuance *services.Issuance
	health   *health.Status
	metrics  *metrics.Metrics
}

// NewIssuerServer builds the issuance HTTP surface.
func NewIssuerServer(issuance *services.Issuance, status *health.Status, m *metrics.Metrics) *IssuerServer {
	return &IssuerServer{issuance: issuance, health: status, metrics: m}
}

// Routes attaches the issuer endpoints to the router.
func (s *IssuerServer) Routes(mux *chi.Mux) {
	mux.Post("/credential", s.handleIssueCredential)
	mux.Get("/health", handleHealth(s.health))
	mux.Handle("/metrics", promhttp.Handler())
}

func (s *IssuerServer) handleIssueCredential(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req domain.IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.RecordIssuance("invalid", start)
		writeError(ctx, w, http.StatusBadRequest, "cannot parse request: "+err.Error())
		return
	}

	resp, err := s.issuance.Issue(ctx, &req)
	if err != nil {
		status, outcome := issuanceStatus(err)
		s.metrics.RecordIssuance(outcome, start)
		if status >= http.StatusInternalServerError {
			log.Error(ctx, "issuing credential", "err", err)
		}
		writeError(ctx, w, status, err.Error())
		return
	}

	s.metrics.RecordIssuance("success", start)
	writeJSON(ctx, w, http.StatusCreated, resp)
}

// issuanceStatus maps issuance errors to a response status and a metrics
// outcome label.
func issuanceStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid"
	case errors.Is(err, services.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, ports.ErrLedgerRejected):
		return http.StatusBadRequest, "rejected"
	case errors.Is(err, ports.ErrLedgerUnavailable):
		return http.StatusBadGateway, "ledger_unavailable"
	default:
		return http.StatusInternalServerError, "error"
	}
}
