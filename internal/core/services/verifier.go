package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Concordium/concordium-web3id/internal/cache"
	"github.com/Concordium/concordium-web3id/internal/core/domain"
	"github.com/Concordium/concordium-web3id/internal/core/ports"
	"github.com/Concordium/concordium-web3id/internal/log"
)

// timestampFormat is RFC 3339 with fixed millisecond precision. The challenge
// hash is computed over this exact rendering, so it must not change.
const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Challenge derives the presentation challenge bound to a request timestamp.
func Challenge(ts time.Time) []byte {
	sum := sha256.Sum256([]byte(ts.UTC().Format(timestampFormat)))
	return sum[:]
}

// PresentationVerifier checks presentations and maintains the verification
// store. Verification is a fixed pipeline: freshness, challenge binding,
// ledger liveness, cryptographic verification, statement extraction. Any
// failure short-circuits.
type PresentationVerifier struct {
	ledger    ports.LedgerClient
	proofs    ports.ProofSystem
	repo      ports.VerificationRepository
	directory ports.SocialDirectory
	cache     cache.Cache

	registries map[domain.Platform]domain.ContractAddress
	platforms  map[domain.ContractAddress]domain.Platform
	tolerance  time.Duration
	cacheTTL   time.Duration

	// Global cryptographic parameters never change for a network; fetched
	// once and memoized.
	paramsMu sync.Mutex
	params   json.RawMessage
}

// NewPresentationVerifier builds the verifier. registries maps each supported
// platform to the registry contract its credentials live in. directory may be
// nil, in which case stored usernames are served as is.
func NewPresentationVerifier(
	ledger ports.LedgerClient,
	proofs ports.ProofSystem,
	repo ports.VerificationRepository,
	directory ports.SocialDirectory,
	c cache.Cache,
	registries map[domain.Platform]domain.ContractAddress,
	tolerance time.Duration,
	cacheTTL time.Duration,
) *PresentationVerifier {
	platforms := make(map[domain.ContractAddress]domain.Platform, len(registries))
	for platform, registry := range registries {
		platforms[registry] = platform
	}
	return &PresentationVerifier{
		ledger:     ledger,
		proofs:     proofs,
		repo:       repo,
		directory:  directory,
		cache:      c,
		registries: registries,
		platforms:  platforms,
		tolerance:  tolerance,
		cacheTTL:   cacheTTL,
	}
}

// AddVerification verifies the presentation and stores the disclosed platform
// accounts as one verification. Duplicate external ids surface as a
// *ports.DuplicateUserIDError.
func (v *PresentationVerifier) AddVerification(ctx context.Context, p *domain.Presentation, ts time.Time) error {
	if len(p.VerifiableCredential) < 2 {
		return fmt.Errorf("%w: at least two statements are required", ErrInvalidStatement)
	}
	entry, err := v.verify(ctx, p, ts)
	if err != nil {
		return err
	}
	if entry.Telegram == nil && entry.Discord == nil {
		return fmt.Errorf("%w: no platform account disclosed", ErrInvalidStatement)
	}
	return v.repo.AddVerification(ctx, entry)
}

// RemoveVerification verifies a single-statement presentation proving
// ownership of a platform credential and removes the verification it belongs
// to.
func (v *PresentationVerifier) RemoveVerification(ctx context.Context, p *domain.Presentation, ts time.Time) error {
	if len(p.VerifiableCredential) != 1 {
		return fmt.Errorf("%w: exactly one statement is required", ErrInvalidStatement)
	}
	entry, err := v.verify(ctx, p, ts)
	if err != nil {
		return err
	}
	for _, platform := range domain.SupportedPlatforms {
		pe := entry.PlatformEntryFor(platform)
		if pe == nil {
			continue
		}
		removed, err := v.repo.RemoveVerification(ctx, pe.CredID, platform)
		if err != nil {
			return err
		}
		if !removed {
			return ErrVerificationNotFound
		}
		return nil
	}
	return fmt.Errorf("%w: statement does not disclose a platform account", ErrInvalidStatement)
}

// GetVerification returns the cross-platform verification containing the
// given account. Each account is enriched with its current ledger credential
// status and, where the platform rotates usernames, the current display name.
// Accounts whose lookups fail are dropped rather than failing the request.
func (v *PresentationVerifier) GetVerification(ctx context.Context, platform domain.Platform, externalID string) (*domain.Verification, error) {
	stored, err := v.repo.GetVerification(ctx, externalID, platform)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, ErrVerificationNotFound
	}

	out := &domain.Verification{FullName: stored.FullName, Accounts: []domain.Account{}}
	for _, acc := range stored.Accounts {
		status, err := v.credentialStatus(ctx, acc.Platform, acc.CredID)
		if err != nil {
			log.Warn(ctx, "dropping account, credential status lookup failed",
				"err", err, "platform", acc.Platform)
			continue
		}
		username := acc.Username
		if acc.Platform == domain.PlatformDiscord && v.directory != nil {
			username, err = v.discordUsername(ctx, acc.ID)
			if err != nil {
				log.Warn(ctx, "dropping account, username lookup failed", "err", err)
				continue
			}
		}
		out.Accounts = append(out.Accounts, domain.Account{
			Platform:   acc.Platform,
			Username:   username,
			CredStatus: status,
		})
	}
	return out, nil
}

func (v *PresentationVerifier) verify(ctx context.Context, p *domain.Presentation, ts time.Time) (*domain.VerificationsEntry, error) {
	if d := time.Since(ts); d > v.tolerance || d < -v.tolerance {
		return nil, fmt.Errorf("%w: timestamp %s outside the %s window", ErrStaleRequest, ts.Format(timestampFormat), v.tolerance)
	}
	if !bytes.Equal(p.PresentationContext, Challenge(ts)) {
		return nil, ErrChallengeMismatch
	}

	publicData, err := v.resolveCredentials(ctx, p)
	if err != nil {
		return nil, err
	}

	params, err := v.cryptographicParameters(ctx)
	if err != nil {
		return nil, err
	}
	if err := v.proofs.VerifyPresentation(ctx, p, publicData, params); err != nil {
		return nil, err
	}

	return v.extract(p)
}

// resolveCredentials looks up every platform credential the presentation
// references and requires all of them to be active right now.
func (v *PresentationVerifier) resolveCredentials(ctx context.Context, p *domain.Presentation) ([]domain.CredentialEntry, error) {
	var publicData []domain.CredentialEntry
	for i := range p.VerifiableCredential {
		stmt := &p.VerifiableCredential[i]
		if stmt.Type != domain.StatementWeb3ID {
			continue
		}
		if stmt.Registry == nil {
			return nil, fmt.Errorf("%w: platform statement without a registry", ErrInvalidStatement)
		}
		entry, err := v.ledger.CredentialEntry(ctx, *stmt.Registry, stmt.Holder)
		if err != nil {
			return nil, fmt.Errorf("resolving credential in %s: %w", stmt.Registry, err)
		}
		if entry.Status != domain.StatusActive {
			return nil, fmt.Errorf("%w: status %s", ErrCredentialInactive, entry.Status)
		}
		publicData = append(publicData, entry)
	}
	return publicData, nil
}

func (v *PresentationVerifier) extract(p *domain.Presentation) (*domain.VerificationsEntry, error) {
	entry := domain.NewVerificationsEntry(p)
	for i := range p.VerifiableCredential {
		stmt := &p.VerifiableCredential[i]
		switch stmt.Type {
		case domain.StatementWeb3ID:
			if stmt.Registry == nil {
				return nil, fmt.Errorf("%w: platform statement without a registry", ErrInvalidStatement)
			}
			platform, ok := v.platforms[*stmt.Registry]
			if !ok {
				return nil, fmt.Errorf("%w: registry %s", ErrInvalidIssuer, stmt.Registry)
			}
			pe, err := platformEntry(stmt)
			if err != nil {
				return nil, err
			}
			if !entry.SetPlatformEntry(platform, pe) {
				return nil, fmt.Errorf("%w: duplicate %s statement", ErrInvalidStatement, platform)
			}
		case domain.StatementAccount:
			name, err := fullName(stmt)
			if err != nil {
				return nil, err
			}
			if entry.FullName != nil {
				return nil, fmt.Errorf("%w: duplicate full name statement", ErrInvalidStatement)
			}
			entry.FullName = name
		default:
			return nil, fmt.Errorf("%w: unknown statement type %q", ErrInvalidStatement, stmt.Type)
		}
	}
	return entry, nil
}

// platformEntry requires exactly the external id and username to be revealed.
func platformEntry(stmt *domain.CredentialStatement) (*domain.PlatformEntry, error) {
	if len(stmt.Proofs) != 2 {
		return nil, fmt.Errorf("%w: platform statements must reveal exactly id and username", ErrInvalidStatement)
	}
	pe := &domain.PlatformEntry{CredID: stmt.Holder}
	for _, attr := range stmt.Proofs {
		switch attr.Tag {
		case domain.AttrUserID:
			pe.ID = attr.Value
		case domain.AttrUsername:
			pe.Username = attr.Value
		default:
			return nil, fmt.Errorf("%w: unexpected attribute %q", ErrInvalidStatement, attr.Tag)
		}
	}
	if pe.ID == "" || pe.Username == "" {
		return nil, fmt.Errorf("%w: platform statements must reveal exactly id and username", ErrInvalidStatement)
	}
	return pe, nil
}

// fullName requires exactly the first and last name to be revealed.
func fullName(stmt *domain.CredentialStatement) (*domain.FullName, error) {
	if len(stmt.Proofs) != 2 {
		return nil, fmt.Errorf("%w: name statements must reveal exactly first and last name", ErrInvalidStatement)
	}
	name := &domain.FullName{}
	for _, attr := range stmt.Proofs {
		switch attr.Tag {
		case domain.AttrTagFirstName:
			name.FirstName = attr.Value
		case domain.AttrTagLastName:
			name.LastName = attr.Value
		default:
			return nil, fmt.Errorf("%w: unexpected attribute %q", ErrInvalidStatement, attr.Tag)
		}
	}
	if name.FirstName == "" || name.LastName == "" {
		return nil, fmt.Errorf("%w: name statements must reveal exactly first and last name", ErrInvalidStatement)
	}
	return name, nil
}

func (v *PresentationVerifier) credentialStatus(ctx context.Context, platform domain.Platform, credID domain.HolderID) (domain.CredentialStatus, error) {
	registry, ok := v.registries[platform]
	if !ok {
		return "", fmt.Errorf("no registry configured for platform %s", platform)
	}
	key := "credstatus:" + string(platform) + ":" + credID.String()
	var status domain.CredentialStatus
	if v.cache.Get(ctx, key, &status) {
		return status, nil
	}
	entry, err := v.ledger.CredentialEntry(ctx, registry, credID)
	if err != nil {
		return "", err
	}
	if err := v.cache.Set(ctx, key, entry.Status, v.cacheTTL); err != nil {
		log.Warn(ctx, "caching credential status failed", "err", err)
	}
	return entry.Status, nil
}

func (v *PresentationVerifier) discordUsername(ctx context.Context, id string) (string, error) {
	key := "discord:username:" + id
	var username string
	if v.cache.Get(ctx, key, &username) {
		return username, nil
	}
	username, err := v.directory.Username(ctx, id)
	if err != nil {
		return "", err
	}
	if err := v.cache.Set(ctx, key, username, v.cacheTTL); err != nil {
		log.Warn(ctx, "caching username failed", "err", err)
	}
	return username, nil
}

func (v *PresentationVerifier) cryptographicParameters(ctx context.Context) (json.RawMessage, error) {
	v.paramsMu.Lock()
	defer v.paramsMu.Unlock()
	if v.params != nil {
		return v.params, nil
	}
	params, err := v.ledger.CryptographicParameters(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching cryptographic parameters: %w", err)
	}
	v.params = params
	return params, nil
}
