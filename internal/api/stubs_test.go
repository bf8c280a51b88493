package api

import (
	"context"
	"encoding/json"

	"github.com/Concordium/concordium-web3id/internal/core/domain"
	"github.com/Concordium/concordium-web3id/internal/core/ports"
	"github.com/Concordium/concordium-web3id/internal/health"
	"github.com/Concordium/concordium-web3id/internal/metrics"
)

// Prometheus collectors register globally, so the package shares one
// instance across tests.
var testMetrics = metrics.New()

type stubLedger struct {
	nonceInfo ports.NonceInfo
	submitErr error
	entries   map[domain.HolderID]domain.CredentialEntry
}

func (s *stubLedger) NextSequenceNumber(_ context.Context, _ string) (ports.NonceInfo, error) {
	return s.nonceInfo, nil
}

func (s *stubLedger) SubmitTransaction(_ context.Context, _ domain.RegisterCredentialTx) (domain.TransactionHash, error) {
	if s.submitErr != nil {
		return "", s.submitErr
	}
	return "deadbeef", nil
}

func (s *stubLedger) CredentialEntry(_ context.Context, registry domain.ContractAddress, holder domain.HolderID) (domain.CredentialEntry, error) {
	entry, ok := s.entries[holder]
	if !ok {
		return domain.CredentialEntry{}, ports.ErrCredentialNotFound
	}
	entry.Registry = registry
	return entry, nil
}

func (s *stubLedger) CryptographicParameters(_ context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

type stubProofs struct {
	verifyErr error
}

func (s *stubProofs) VerifyPresentation(_ context.Context, _ *domain.Presentation, _ []domain.CredentialEntry, _ json.RawMessage) error {
	return s.verifyErr
}

func (s *stubProofs) GenerateCommitments(_ context.Context, values map[string]string, _ domain.HolderID) (domain.SignedCommitments, error) {
	return domain.SignedCommitments{
		Randomness: map[string]string{"userId": "r1"},
		Signature:  "sig",
		IssuerKey:  "ik",
	}, nil
}

type stubRepo struct {
	added   *domain.VerificationsEntry
	addErr  error
	stored  *domain.DbVerification
	removed bool
}

func (s *stubRepo) AddVerification(_ context.Context, entry *domain.VerificationsEntry) error {
	s.added = entry
	return s.addErr
}

func (s *stubRepo) GetVerification(_ context.Context, _ string, _ domain.Platform) (*domain.DbVerification, error) {
	return s.stored, nil
}

func (s *stubRepo) RemoveVerification(_ context.Context, _ domain.HolderID, _ domain.Platform) (bool, error) {
	return s.removed, nil
}

func newHealth() *health.Status {
	return health.New()
}
