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

// VerificationRequest is the body of the verification write endpoints.
type VerificationRequest struct {
	Proof     domain.Presentation `json:"proof"`
	Timestamp time.Time           `json:"timestamp"`
}

// VerifierServer serves the presentation verification endpoints.
type VerifierServer struct {
	verifier *services.PresentationVerifier
	health   *health.Status
	metrics  *metrics.Metrics
}

// NewVerifierServer builds the verifier HTTP surface.
func NewVerifierServer(verifier *services.PresentationVerifier, status *health.Status, m *metrics.Metrics) *VerifierServer {
	return &VerifierServer{verifier: verifier, health: status, metrics: m}
}

// Routes attaches the verifier endpoints to the router.
func (s *VerifierServer) Routes(mux *chi.Mux) {
	mux.Post("/verifications", s.handleAddVerification)
	mux.Patch("/verifications", s.handleRemoveVerification)
	mux.Get("/verifications/{platform}/{id}", s.handleGetVerification)
	mux.Get("/health", handleHealth(s.health))
	mux.Handle("/metrics", promhttp.Handler())
}

func (s *VerifierServer) handleAddVerification(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req VerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.RecordVerification("invalid", start)
		writeError(ctx, w, http.StatusBadRequest, "cannot parse request: "+err.Error())
		return
	}

	err := s.verifier.AddVerification(ctx, &req.Proof, req.Timestamp)
	if err != nil {
		var dup *ports.DuplicateUserIDError
		if errors.As(err, &dup) {
			s.metrics.RecordVerification("duplicate", start)
			writeJSON(ctx, w, http.StatusBadRequest, DuplicateIdentityMessage{
				Message:     "account already bound to another verification",
				DuplicateID: dup.UserID,
			})
			return
		}
		status, outcome := verificationStatus(err)
		s.metrics.RecordVerification(outcome, start)
		if status >= http.StatusInternalServerError {
			log.Error(ctx, "adding verification", "err", err)
		}
		writeError(ctx, w, status, err.Error())
		return
	}

	s.metrics.RecordVerification("success", start)
	writeJSON(ctx, w, http.StatusCreated, struct{}{})
}

func (s *VerifierServer) handleRemoveVerification(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req VerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.RecordVerification("invalid", start)
		writeError(ctx, w, http.StatusBadRequest, "cannot parse request: "+err.Error())
		return
	}

	if err := s.verifier.RemoveVerification(ctx, &req.Proof, req.Timestamp); err != nil {
		if errors.Is(err, services.ErrVerificationNotFound) {
			s.metrics.RecordVerification("not_found", start)
			writeError(ctx, w, http.StatusBadRequest, "credential is not part of any verification")
			return
		}
		status, outcome := verificationStatus(err)
		s.metrics.RecordVerification(outcome, start)
		if status >= http.StatusInternalServerError {
			log.Error(ctx, "removing verification", "err", err)
		}
		writeError(ctx, w, status, err.Error())
		return
	}

	s.metrics.RecordVerification("removed", start)
	writeJSON(ctx, w, http.StatusOK, struct{}{})
}

func (s *VerifierServer) handleGetVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	platform, err := domain.ParsePlatform(chi.URLParam(r, "platform"))
	if err != nil {
		writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	verification, err := s.verifier.GetVerification(ctx, platform, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, services.ErrVerificationNotFound) {
			writeJSON(ctx, w, http.StatusOK, struct{}{})
			return
		}
		log.Error(ctx, "getting verification", "err", err)
		writeError(ctx, w, http.StatusInternalServerError, "cannot load verification")
		return
	}

	writeJSON(ctx, w, http.StatusOK, verification)
}

// verificationStatus maps verification errors to a response status and a
// metrics outcome label.
func verificationStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrStaleRequest),
		errors.Is(err, services.ErrChallengeMismatch),
		errors.Is(err, services.ErrCredentialInactive),
		errors.Is(err, services.ErrInvalidStatement),
		errors.Is(err, services.ErrInvalidIssuer),
		errors.Is(err, ports.ErrInvalidProof),
		errors.Is(err, ports.ErrCredentialNotFound):
		return http.StatusBadRequest, "invalid"
	case errors.Is(err, ports.ErrLedgerUnavailable):
		return http.StatusBadGateway, "ledger_unavailable"
	default:
		return http.StatusInternalServerError, "error"
	}
}
