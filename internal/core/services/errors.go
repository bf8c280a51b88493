package services

import "errors"

// Issuance outcomes surfaced to the API layer. Ledger submission failures
// keep their ports sentinels (ErrLedgerRejected, ErrLedgerUnavailable) so
// callers can tell a contract refusal from a transient node failure.
var (
	// ErrInvalidRequest marks a request that violates issuance policy or is
	// structurally malformed.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRateLimited marks a requester that exhausted its issuance budget.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrWorkerStopped is returned for requests that arrive after the
	// issuance worker has terminated.
	ErrWorkerStopped = errors.New("issuance worker is not running")
)

// Presentation verification outcomes.
var (
	// ErrStaleRequest means the request timestamp is outside the freshness
	// window.
	ErrStaleRequest = errors.New("request timestamp is not fresh")
	// ErrChallengeMismatch means the presentation challenge is not bound to
	// the request timestamp.
	ErrChallengeMismatch = errors.New("challenge does not match request timestamp")
	// ErrCredentialInactive means a referenced credential is not currently
	// active on the ledger.
	ErrCredentialInactive = errors.New("credential is not active")
	// ErrInvalidStatement marks a disclosed statement with the wrong shape
	// or a duplicate disclosure.
	ErrInvalidStatement = errors.New("invalid credential statement")
	// ErrInvalidIssuer marks a statement issued by an unknown registry.
	ErrInvalidIssuer = errors.New("statement issuer is not a known registry")
	// ErrVerificationNotFound is returned when no verification exists for
	// the queried account.
	ErrVerificationNotFound = errors.New("verification not found")
)
