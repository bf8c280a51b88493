package gateways

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/Concordium/concordium-web3id/internal/core/domain"
	"github.com/Concordium/concordium-web3id/internal/core/ports"
	"github.com/Concordium/concordium-web3id/internal/log"
	client "github.com/Concordium/concordium-web3id/pkg/http"
)

// ProofConfig represents the proof service connection config.
type ProofConfig struct {
	ServerURL       string
	ResponseTimeout time.Duration
}

// ProofService delegates commitment generation and presentation verification
// to the external proof service. Proof payloads stay opaque on this side.
type ProofService struct {
	cfg *ProofConfig
}

// NewProofService builds a proof system gateway.
func NewProofService(cfg *ProofConfig) ports.ProofSystem {
	return &ProofService{cfg: cfg}
}

// VerifyPresentation calls the proof service for cryptographic verification.
func (s *ProofService) VerifyPresentation(ctx context.Context, presentation *domain.Presentation, publicData []domain.CredentialEntry, params json.RawMessage) error {
	r := struct {
		Presentation  json.RawMessage          `json:"presentation"`
		PublicData    []domain.CredentialEntry `json:"publicData"`
		GlobalContext json.RawMessage          `json:"globalContext"`
	}{
		Presentation:  presentation.Raw(),
		PublicData:    publicData,
		GlobalContext: params,
	}
	payload, err := json.Marshal(r)
	if err != nil {
		log.Error(ctx, "can't json encode verify request", "err", err)
		return err
	}

	url := s.cfg.ServerURL + "/v0/verify"
	status, body, err := client.NewClient(http.Client{Timeout: s.cfg.ResponseTimeout}).Post(ctx, url, payload)
	if err != nil {
		return errors.Wrap(err, "calling proof service")
	}
	if status == http.StatusBadRequest {
		return fmt.Errorf("%w: %s", ports.ErrInvalidProof, string(body))
	}
	if status != http.StatusOK {
		return fmt.Errorf("proof service returned status %d", status)
	}
	resp := struct {
		Valid bool `json:"valid"`
	}{}
	if err := json.Unmarshal(body, &resp); err != nil {
		return errors.Wrap(err, "decoding verify response")
	}
	if !resp.Valid {
		return ports.ErrInvalidProof
	}
	return nil
}

// GenerateCommitments asks the proof service for commitment randomness and an
// issuer signature over a newly issued credential's attributes.
func (s *ProofService) GenerateCommitments(ctx context.Context, values map[string]string, holder domain.HolderID) (domain.SignedCommitments, error) {
	r := struct {
		Values   map[string]string `json:"values"`
		HolderID domain.HolderID   `json:"holderId"`
	}{
		Values:   values,
		HolderID: holder,
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return domain.SignedCommitments{}, err
	}

	url := s.cfg.ServerURL + "/v0/commitments"
	status, body, err := client.NewClient(http.Client{Timeout: s.cfg.ResponseTimeout}).Post(ctx, url, payload)
	if err != nil {
		return domain.SignedCommitments{}, errors.Wrap(err, "calling proof service")
	}
	if status != http.StatusOK {
		return domain.SignedCommitments{}, fmt.Errorf("proof service returned status %d", status)
	}
	var commitments domain.SignedCommitments
	if err := json.Unmarshal(body, &commitments); err != nil {
		return domain.SignedCommitments{}, errors.Wrap(err, "decoding commitments")
	}
	return commitments, nil
}
