package ports

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Concordium/concordium-web3id/internal/core/domain"
)

// Classified ledger submission failures. The issuance worker keys its state
// machine off these.
var (
	// ErrLedgerRejected means the transaction was well formed but refused at
	// contract level. The nonce was not consumed.
	ErrLedgerRejected = errors.New("ledger rejected the transaction")
	// ErrLedgerSequence means the node reported a sequence number mismatch.
	// The in-memory nonce has desynced from ledger state and the worker must
	// not continue.
	ErrLedgerSequence = errors.New("ledger reported a sequence number mismatch")
	// ErrLedgerUnavailable covers transient node or network failures.
	ErrLedgerUnavailable = errors.New("ledger is unavailable")
	// ErrCredentialNotFound is returned when a referenced credential does not
	// exist in its registry.
	ErrCredentialNotFound = errors.New("credential not found in registry")
)

// NonceInfo is the account sequence state reported by the ledger.
type NonceInfo struct {
	Nonce uint64 `json:"nonce"`
	// AllFinal reports whether every transaction from the account is
	// finalized. The issuance worker refuses to start otherwise.
	AllFinal bool `json:"allFinal"`
}

// LedgerClient is the boundary to the external append-only transaction
// system. Implementations classify submission failures into the sentinel
// errors above.
type LedgerClient interface {
	// NextSequenceNumber returns the next nonce for the given account.
	NextSequenceNumber(ctx context.Context, account string) (NonceInfo, error)
	// SubmitTransaction submits a signed credential registration.
	SubmitTransaction(ctx context.Context, tx domain.RegisterCredentialTx) (domain.TransactionHash, error)
	// CredentialEntry resolves the public data and status of a credential in
	// a registry contract.
	CredentialEntry(ctx context.Context, registry domain.ContractAddress, holder domain.HolderID) (domain.CredentialEntry, error)
	// CryptographicParameters returns the global parameters needed for proof
	// verification. They never change for a given network.
	CryptographicParameters(ctx context.Context) (json.RawMessage, error)
}
