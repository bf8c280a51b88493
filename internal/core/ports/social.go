package ports

import "context"

// SocialDirectory resolves current display names for platform accounts whose
// usernames the platform rotates server side.
type SocialDirectory interface {
	// Username returns the current display username for the given external
	// account id.
	Username(ctx context.Context, id string) (string, error)
}
