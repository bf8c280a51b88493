package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChallenge(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 45, 123_000_000, time.UTC)

	assert.Len(t, Challenge(ts), 32)

	// The challenge covers millisecond precision; sub-millisecond digits do
	// not participate.
	assert.Equal(t, Challenge(ts), Challenge(ts.Add(400*time.Microsecond)))
	assert.NotEqual(t, Challenge(ts), Challenge(ts.Add(time.Millisecond)))

	// Offsets normalize to UTC before hashing.
	cet := time.FixedZone("CET", 3600)
	assert.Equal(t, Challenge(ts), Challenge(ts.In(cet)))
}
