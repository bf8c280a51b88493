package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Concordium/concordium-web3id/internal/core/domain"
	"github.com/Concordium/concordium-web3id/internal/core/ports"
)

type fakeLedger struct {
	mu        sync.Mutex
	nonceInfo ports.NonceInfo
	nonceErr  error

	submitFn  func(tx domain.RegisterCredentialTx) (domain.TransactionHash, error)
	submitted []domain.RegisterCredentialTx

	entries  map[string]domain.CredentialEntry
	entryErr error

	params json.RawMessage
}

func entryKey(registry domain.ContractAddress, holder domain.HolderID) string {
	return registry.String() + "/" + holder.String()
}

func (f *fakeLedger) NextSequenceNumber(_ context.Context, _ string) (ports.NonceInfo, error) {
	return f.nonceInfo, f.nonceErr
}

func (f *fakeLedger) SubmitTransaction(_ context.Context, tx domain.RegisterCredentialTx) (domain.TransactionHash, error) {
	f.mu.Lock()
	f.submitted = append(f.submitted, tx)
	f.mu.Unlock()
	if f.submitFn != nil {
		return f.submitFn(tx)
	}
	return "deadbeef", nil
}

func (f *fakeLedger) CredentialEntry(_ context.Context, registry domain.ContractAddress, holder domain.HolderID) (domain.CredentialEntry, error) {
	if f.entryErr != nil {
		return domain.CredentialEntry{}, f.entryErr
	}
	entry, ok := f.entries[entryKey(registry, holder)]
	if !ok {
		return domain.CredentialEntry{}, ports.ErrCredentialNotFound
	}
	return entry, nil
}

func (f *fakeLedger) CryptographicParameters(_ context.Context) (json.RawMessage, error) {
	if f.params == nil {
		return json.RawMessage(`{"onChainCommitmentKey":"00"}`), nil
	}
	return f.params, nil
}

func (f *fakeLedger) submittedTxs() []domain.RegisterCredentialTx {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.RegisterCredentialTx{}, f.submitted...)
}

type fakeProofs struct {
	verifyErr error
	verified  []*domain.Presentation

	commitments domain.SignedCommitments
	commitErr   error
	lastValues  map[string]string
	lastHolder  domain.HolderID
}

func (f *fakeProofs) VerifyPresentation(_ context.Context, p *domain.Presentation, _ []domain.CredentialEntry, _ json.RawMessage) error {
	f.verified = append(f.verified, p)
	return f.verifyErr
}

func (f *fakeProofs) GenerateCommitments(_ context.Context, values map[string]string, holder domain.HolderID) (domain.SignedCommitments, error) {
	f.lastValues = values
	f.lastHolder = holder
	if f.commitErr != nil {
		return domain.SignedCommitments{}, f.commitErr
	}
	return f.commitments, nil
}

type fakeRepo struct {
	added  *domain.VerificationsEntry
	addErr error

	stored *domain.DbVerification
	getErr error

	removed         bool
	removeErr       error
	removedCred     domain.HolderID
	removedPlatform domain.Platform
}

func (f *fakeRepo) AddVerification(_ context.Context, entry *domain.VerificationsEntry) error {
	f.added = entry
	return f.addErr
}

func (f *fakeRepo) GetVerification(_ context.Context, _ string, _ domain.Platform) (*domain.DbVerification, error) {
	return f.stored, f.getErr
}

func (f *fakeRepo) RemoveVerification(_ context.Context, credID domain.HolderID, platform domain.Platform) (bool, error) {
	f.removedCred = credID
	f.removedPlatform = platform
	return f.removed, f.removeErr
}

type fakeDirectory struct {
	names map[string]string
	err   error
}

func (f *fakeDirectory) Username(_ context.Context, id string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.names[id], nil
}
