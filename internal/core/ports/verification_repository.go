package ports

import (
	"context"
	"fmt"

	"github.com/Concordium/concordium-web3id/internal/core/domain"
)

// DuplicateUserIDError reports an identity clash: the external id is already
// bound to another verification. It is never auto-merged; the caller must
// resolve it.
type DuplicateUserIDError struct {
	UserID string
}

func (e *DuplicateUserIDError) Error() string {
	return fmt.Sprintf("duplicate user id: %s", e.UserID)
}

// VerificationRepository persists the mapping between platform accounts and
// verified identities.
type VerificationRepository interface {
	// AddVerification atomically stores a new verification entry,
	// superseding rows that share a credential holder id. A duplicate
	// platform account aborts the whole write and is reported through a
	// *DuplicateUserIDError carrying the clashing external id.
	AddVerification(ctx context.Context, entry *domain.VerificationsEntry) error
	// GetVerification returns the verification containing the given account,
	// nil if none exists.
	GetVerification(ctx context.Context, externalID string, platform domain.Platform) (*domain.DbVerification, error)
	// RemoveVerification deletes the verification reachable from the given
	// platform credential, reporting whether a row existed.
	RemoveVerification(ctx context.Context, credID domain.HolderID, platform domain.Platform) (bool, error)
}
