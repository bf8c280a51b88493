package cache

import (
	"context"
	"time"
)

// NullCache is a null cache that does nothing. Used when no redis url is
// configured.
type NullCache struct{}

// Set does nothing
func (n *NullCache) Set(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}

// Get returns not found
func (n *NullCache) Get(_ context.Context, _ string, _ any) bool {
	return false
}

// Exists returns it doesn't exist
func (n *NullCache) Exists(_ context.Context, _ string) bool {
	return false
}

// Delete does nothing
func (n *NullCache) Delete(_ context.Context, _ string) error {
	return nil
}
