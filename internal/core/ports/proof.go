package ports

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Concordium/concordium-web3id/internal/core/domain"
)

// ErrInvalidProof is returned when the cryptographic verification of a
// presentation fails.
var ErrInvalidProof = errors.New("invalid proof")

// ProofSystem is the opaque elliptic-curve commitment and zero-knowledge
// proof capability. The service never interprets the cryptographic payloads
// itself.
type ProofSystem interface {
	// VerifyPresentation checks the cryptographic proofs of a presentation
	// against the resolved public credential data and the global parameters.
	// Returns ErrInvalidProof if the proofs do not hold.
	VerifyPresentation(ctx context.Context, presentation *domain.Presentation, publicData []domain.CredentialEntry, params json.RawMessage) error
	// GenerateCommitments produces per-attribute commitment randomness and
	// the issuer signature over the commitments for a newly issued
	// credential.
	GenerateCommitments(ctx context.Context, values map[string]string, holder domain.HolderID) (domain.SignedCommitments, error)
}
