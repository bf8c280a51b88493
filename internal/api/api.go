// Package api holds the hand written HTTP surface of both services.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Concordium/concordium-web3id/internal/health"
	"github.com/Concordium/concordium-web3id/internal/log"
)

// Version is stamped at build time.
var Version = "dev"

// GenericErrorMessage is the error response envelope.
type GenericErrorMessage struct {
	Message string `json:"message"`
}

// DuplicateIdentityMessage reports an identity clash together with the
// clashing external id so the caller can resolve it.
type DuplicateIdentityMessage struct {
	Message     string `json:"message"`
	DuplicateID string `json:"duplicateId"`
}

// HealthResponse is the health probe payload.
type HealthResponse struct {
	Status  map[string]bool `json:"status"`
	Version string          `json:"version"`
}

// NewMux returns a router with the shared middleware stack installed.
func NewMux(ctx context.Context) *chi.Mux {
	mux := chi.NewRouter()
	mux.Use(
		middleware.RequestID,
		log.ChiMiddleware(ctx),
		middleware.Recoverer,
		cors.AllowAll().Handler,
	)
	return mux
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error(ctx, "writing response", "err", err)
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, msg string) {
	writeJSON(ctx, w, status, GenericErrorMessage{Message: msg})
}

func handleHealth(status *health.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, http.StatusOK, HealthResponse{
			Status:  status.Status(r.Context()),
			Version: Version,
		})
	}
}
