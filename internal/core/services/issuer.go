package services

import (
	"context"
	"fmt"

	"github.com/Concordium/concordium-web3id/internal/core/domain"
	"github.com/Concordium/concordium-web3id/internal/core/ports"
	"github.com/Concordium/concordium-web3id/internal/log"
)

// Base credential types every issued credential carries. A platform specific
// type is appended from configuration.
var baseCredentialTypes = []string{"VerifiableCredential", "ConcordiumVerifiableCredential"}

// Issuance orchestrates credential issuance: it forwards requests to the
// worker and, once the registration landed, assembles the credential secrets
// returned to the holder.
type Issuance struct {
	worker         *IssuanceWorker
	proofs         ports.ProofSystem
	registry       domain.ContractAddress
	credentialType []string
	schemaURL      string
}

// NewIssuance builds the issuance service. credentialType is the platform
// specific type appended to the base types, schemaURL the schema embedded in
// every issued credential.
func NewIssuance(worker *IssuanceWorker, proofs ports.ProofSystem, registry domain.ContractAddress, credentialType, schemaURL string) *Issuance {
	types := append([]string{}, baseCredentialTypes...)
	if credentialType != "" {
		types = append(types, credentialType)
	}
	return &Issuance{
		worker:         worker,
		proofs:         proofs,
		registry:       registry,
		credentialType: types,
		schemaURL:      schemaURL,
	}
}

// Issue registers the credential on the ledger and returns the transaction
// hash together with the full credential secret. The commitment randomness is
// generated only after the registration was accepted, so a failed submission
// leaks nothing.
func (s *Issuance) Issue(ctx context.Context, req *domain.IssueRequest) (*domain.IssueResponse, error) {
	txHash, err := s.worker.Issue(ctx, req)
	if err != nil {
		return nil, err
	}

	values := map[string]string{
		domain.AttrUserID:   req.UserID,
		domain.AttrUsername: req.Username,
	}
	commitments, err := s.proofs.GenerateCommitments(ctx, values, req.Credential.HolderID)
	if err != nil {
		log.Error(ctx, "registration landed but commitment generation failed",
			"err", err, "txHash", txHash)
		return nil, fmt.Errorf("generating credential commitments: %w", err)
	}

	return &domain.IssueResponse{
		TxHash: txHash,
		Credential: domain.Web3IDCredential{
			HolderID:         req.Credential.HolderID,
			Registry:         s.registry,
			IssuerKey:        commitments.IssuerKey,
			CredentialType:   s.credentialType,
			CredentialSchema: s.schemaURL,
			ValidFrom:        req.Credential.ValidFrom,
			ValidUntil:       req.Credential.ValidUntil,
			Values:           values,
			Randomness:       commitments.Randomness,
			Signature:        commitments.Signature,
		},
	}, nil
}
