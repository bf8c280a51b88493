package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Concordium/concordium-web3id/internal/cache"
	"github.com/Concordium/concordium-web3id/internal/core/domain"
	"github.com/Concordium/concordium-web3id/internal/core/ports"
)

var (
	telegramRegistry = domain.ContractAddress{Index: 100}
	discordRegistry  = domain.ContractAddress{Index: 200}
)

func testRegistries() map[domain.Platform]domain.ContractAddress {
	return map[domain.Platform]domain.ContractAddress{
		domain.PlatformTelegram: telegramRegistry,
		domain.PlatformDiscord:  discordRegistry,
	}
}

func newTestVerifier(ledger *fakeLedger, proofs *fakeProofs, repo *fakeRepo, dir ports.SocialDirectory) *PresentationVerifier {
	return NewPresentationVerifier(ledger, proofs, repo, dir, &cache.NullCache{},
		testRegistries(), 10*time.Minute, time.Minute)
}

func activeLedger(holders ...domain.HolderID) *fakeLedger {
	ledger := &fakeLedger{entries: map[string]domain.CredentialEntry{}}
	registries := []domain.ContractAddress{telegramRegistry, discordRegistry}
	for _, holder := range holders {
		for _, registry := range registries {
			ledger.entries[entryKey(registry, holder)] = domain.CredentialEntry{
				Registry: registry,
				Holder:   holder,
				Status:   domain.StatusActive,
			}
		}
	}
	return ledger
}

func platformStatement(registry domain.ContractAddress, holder domain.HolderID, id, username string) domain.CredentialStatement {
	return domain.CredentialStatement{
		Type:     domain.StatementWeb3ID,
		Registry: &registry,
		Holder:   holder,
		Proofs: []domain.RevealedAttribute{
			{Tag: domain.AttrUserID, Value: id},
			{Tag: domain.AttrUsername, Value: username},
		},
	}
}

func nameStatement(first, last string) domain.CredentialStatement {
	return domain.CredentialStatement{
		Type: domain.StatementAccount,
		Proofs: []domain.RevealedAttribute{
			{Tag: domain.AttrTagFirstName, Value: first},
			{Tag: domain.AttrTagLastName, Value: last},
		},
	}
}

func presentationAt(ts time.Time, stmts ...domain.CredentialStatement) *domain.Presentation {
	return &domain.Presentation{
		PresentationContext:  Challenge(ts),
		VerifiableCredential: stmts,
	}
}

func TestVerifier_AddVerification(t *testing.T) {
	holder := domain.HolderID{1}
	ledger := activeLedger(holder)
	proofs := &fakeProofs{}
	repo := &fakeRepo{}
	v := newTestVerifier(ledger, proofs, repo, nil)

	ts := time.Now()
	p := presentationAt(ts,
		platformStatement(telegramRegistry, holder, "12345", "alice_tg"),
		nameStatement("Alice", "Smith"),
	)

	require.NoError(t, v.AddVerification(context.Background(), p, ts))
	require.NotNil(t, repo.added)
	require.NotNil(t, repo.added.Telegram)
	assert.Equal(t, "12345", repo.added.Telegram.ID)
	assert.Equal(t, "alice_tg", repo.added.Telegram.Username)
	assert.Equal(t, holder, repo.added.Telegram.CredID)
	assert.Nil(t, repo.added.Discord)
	require.NotNil(t, repo.added.FullName)
	assert.Equal(t, "Alice", repo.added.FullName.FirstName)
	assert.NotEmpty(t, repo.added.Presentation)
	assert.Len(t, proofs.verified, 1)
}

func TestVerifier_AddVerificationBothPlatforms(t *testing.T) {
	tgHolder := domain.HolderID{1}
	dcHolder := domain.HolderID{2}
	ledger := activeLedger(tgHolder, dcHolder)
	repo := &fakeRepo{}
	v := newTestVerifier(ledger, &fakeProofs{}, repo, nil)

	ts := time.Now()
	p := presentationAt(ts,
		platformStatement(telegramRegistry, tgHolder, "12345", "alice_tg"),
		platformStatement(discordRegistry, dcHolder, "67890", "alice#1"),
	)

	require.NoError(t, v.AddVerification(context.Background(), p, ts))
	require.NotNil(t, repo.added.Telegram)
	require.NotNil(t, repo.added.Discord)
	assert.Equal(t, "67890", repo.added.Discord.ID)
	assert.Nil(t, repo.added.FullName)
}

func TestVerifier_AddVerificationRejections(t *testing.T) {
	holder := domain.HolderID{1}
	ts := time.Now()

	for _, tc := range []struct {
		name    string
		ts      time.Time
		stmts   []domain.CredentialStatement
		mutate  func(p *domain.Presentation)
		ledger  func() *fakeLedger
		proofs  *fakeProofs
		wantErr error
	}{
		{
			name: "stale timestamp",
			ts:   ts.Add(-time.Hour),
			stmts: []domain.CredentialStatement{
				platformStatement(telegramRegistry, holder, "1", "a"),
				nameStatement("A", "B"),
			},
			wantErr: ErrStaleRequest,
		},
		{
			name: "challenge not bound to timestamp",
			ts:   ts,
			stmts: []domain.CredentialStatement{
				platformStatement(telegramRegistry, holder, "1", "a"),
				nameStatement("A", "B"),
			},
			mutate:  func(p *domain.Presentation) { p.PresentationContext = []byte("wrong") },
			wantErr: ErrChallengeMismatch,
		},
		{
			name:    "too few statements",
			ts:      ts,
			stmts:   []domain.CredentialStatement{platformStatement(telegramRegistry, holder, "1", "a")},
			wantErr: ErrInvalidStatement,
		},
		{
			name: "revoked credential",
			ts:   ts,
			stmts: []domain.CredentialStatement{
				platformStatement(telegramRegistry, holder, "1", "a"),
				nameStatement("A", "B"),
			},
			ledger: func() *fakeLedger {
				ledger := activeLedger(holder)
				entry := ledger.entries[entryKey(telegramRegistry, holder)]
				entry.Status = domain.StatusRevoked
				ledger.entries[entryKey(telegramRegistry, holder)] = entry
				return ledger
			},
			wantErr: ErrCredentialInactive,
		},
		{
			name: "credential missing from registry",
			ts:   ts,
			stmts: []domain.CredentialStatement{
				platformStatement(telegramRegistry, domain.HolderID{9}, "1", "a"),
				nameStatement("A", "B"),
			},
			wantErr: ports.ErrCredentialNotFound,
		},
		{
			name: "invalid proof",
			ts:   ts,
			stmts: []domain.CredentialStatement{
				platformStatement(telegramRegistry, holder, "1", "a"),
				nameStatement("A", "B"),
			},
			proofs:  &fakeProofs{verifyErr: ports.ErrInvalidProof},
			wantErr: ports.ErrInvalidProof,
		},
		{
			name: "unknown registry",
			ts:   ts,
			stmts: []domain.CredentialStatement{
				platformStatement(domain.ContractAddress{Index: 999}, holder, "1", "a"),
				nameStatement("A", "B"),
			},
			ledger: func() *fakeLedger {
				ledger := activeLedger(holder)
				ledger.entries[entryKey(domain.ContractAddress{Index: 999}, holder)] = domain.CredentialEntry{
					Status: domain.StatusActive,
				}
				return ledger
			},
			wantErr: ErrInvalidIssuer,
		},
		{
			name: "duplicate platform statement",
			ts:   ts,
			stmts: []domain.CredentialStatement{
				platformStatement(telegramRegistry, holder, "1", "a"),
				platformStatement(telegramRegistry, holder, "2", "b"),
			},
			wantErr: ErrInvalidStatement,
		},
		{
			name: "platform statement with wrong attributes",
			ts:   ts,
			stmts: []domain.CredentialStatement{
				{
					Type:     domain.StatementWeb3ID,
					Registry: &telegramRegistry,
					Holder:   holder,
					Proofs:   []domain.RevealedAttribute{{Tag: "email", Value: "a@b.c"}, {Tag: domain.AttrUserID, Value: "1"}},
				},
				nameStatement("A", "B"),
			},
			wantErr: ErrInvalidStatement,
		},
		{
			name: "only name statements",
			ts:   ts,
			stmts: []domain.CredentialStatement{
				nameStatement("A", "B"),
				nameStatement("C", "D"),
			},
			wantErr: ErrInvalidStatement,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ledger := activeLedger(holder)
			if tc.ledger != nil {
				ledger = tc.ledger()
			}
			proofs := tc.proofs
			if proofs == nil {
				proofs = &fakeProofs{}
			}
			repo := &fakeRepo{}
			v := newTestVerifier(ledger, proofs, repo, nil)

			p := presentationAt(tc.ts, tc.stmts...)
			if tc.mutate != nil {
				tc.mutate(p)
			}
			err := v.AddVerification(context.Background(), p, tc.ts)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Nil(t, repo.added)
		})
	}
}

func TestVerifier_RemoveVerification(t *testing.T) {
	holder := domain.HolderID{1}
	ledger := activeLedger(holder)
	repo := &fakeRepo{removed: true}
	v := newTestVerifier(ledger, &fakeProofs{}, repo, nil)

	ts := time.Now()
	p := presentationAt(ts, platformStatement(discordRegistry, holder, "67890", "alice#1"))

	require.NoError(t, v.RemoveVerification(context.Background(), p, ts))
	assert.Equal(t, holder, repo.removedCred)
	assert.Equal(t, domain.PlatformDiscord, repo.removedPlatform)
}

func TestVerifier_RemoveVerificationNotFound(t *testing.T) {
	holder := domain.HolderID{1}
	v := newTestVerifier(activeLedger(holder), &fakeProofs{}, &fakeRepo{removed: false}, nil)

	ts := time.Now()
	p := presentationAt(ts, platformStatement(telegramRegistry, holder, "1", "a"))

	err := v.RemoveVerification(context.Background(), p, ts)
	assert.ErrorIs(t, err, ErrVerificationNotFound)
}

func TestVerifier_RemoveVerificationStatementCount(t *testing.T) {
	holder := domain.HolderID{1}
	v := newTestVerifier(activeLedger(holder), &fakeProofs{}, &fakeRepo{}, nil)

	ts := time.Now()
	p := presentationAt(ts,
		platformStatement(telegramRegistry, holder, "1", "a"),
		platformStatement(discordRegistry, holder, "2", "b"),
	)
	assert.ErrorIs(t, v.RemoveVerification(context.Background(), p, ts), ErrInvalidStatement)

	p = presentationAt(ts, nameStatement("A", "B"))
	assert.ErrorIs(t, v.RemoveVerification(context.Background(), p, ts), ErrInvalidStatement)
}

func TestVerifier_GetVerification(t *testing.T) {
	tgHolder := domain.HolderID{1}
	dcHolder := domain.HolderID{2}
	ledger := activeLedger(tgHolder, dcHolder)
	repo := &fakeRepo{stored: &domain.DbVerification{
		Accounts: []domain.DbAccount{
			{Platform: domain.PlatformTelegram, ID: "12345", CredID: tgHolder, Username: "alice_tg"},
			{Platform: domain.PlatformDiscord, ID: "67890", CredID: dcHolder, Username: "stale#0"},
		},
		FullName: &domain.FullName{FirstName: "Alice", LastName: "Smith"},
	}}
	dir := &fakeDirectory{names: map[string]string{"67890": "alice#1"}}
	v := newTestVerifier(ledger, &fakeProofs{}, repo, dir)

	got, err := v.GetVerification(context.Background(), domain.PlatformTelegram, "12345")
	require.NoError(t, err)
	require.Len(t, got.Accounts, 2)
	assert.Equal(t, domain.Account{
		Platform:   domain.PlatformTelegram,
		Username:   "alice_tg",
		CredStatus: domain.StatusActive,
	}, got.Accounts[0])
	// Discord serves the directory name, not the stored one.
	assert.Equal(t, "alice#1", got.Accounts[1].Username)
	require.NotNil(t, got.FullName)
	assert.Equal(t, "Smith", got.FullName.LastName)
}

func TestVerifier_GetVerificationDropsFailingAccounts(t *testing.T) {
	tgHolder := domain.HolderID{1}
	dcHolder := domain.HolderID{2}
	// Only the telegram credential resolves; the discord status lookup fails.
	ledger := &fakeLedger{entries: map[string]domain.CredentialEntry{
		entryKey(telegramRegistry, tgHolder): {Status: domain.StatusRevoked},
	}}
	repo := &fakeRepo{stored: &domain.DbVerification{
		Accounts: []domain.DbAccount{
			{Platform: domain.PlatformTelegram, ID: "12345", CredID: tgHolder, Username: "alice_tg"},
			{Platform: domain.PlatformDiscord, ID: "67890", CredID: dcHolder, Username: "alice#1"},
		},
	}}
	v := newTestVerifier(ledger, &fakeProofs{}, repo, nil)

	got, err := v.GetVerification(context.Background(), domain.PlatformTelegram, "12345")
	require.NoError(t, err)
	// A revoked credential is still served with its status; only failing
	// lookups drop the account.
	require.Len(t, got.Accounts, 1)
	assert.Equal(t, domain.StatusRevoked, got.Accounts[0].CredStatus)
}

func TestVerifier_GetVerificationNotFound(t *testing.T) {
	v := newTestVerifier(&fakeLedger{}, &fakeProofs{}, &fakeRepo{}, nil)

	_, err := v.GetVerification(context.Background(), domain.PlatformTelegram, "nobody")
	assert.ErrorIs(t, err, ErrVerificationNotFound)
}

func TestVerifier_DuplicateIdentityPassesThrough(t *testing.T) {
	holder := domain.HolderID{1}
	dup := &ports.DuplicateUserIDError{UserID: "12345"}
	repo := &fakeRepo{addErr: dup}
	v := newTestVerifier(activeLedger(holder), &fakeProofs{}, repo, nil)

	ts := time.Now()
	p := presentationAt(ts,
		platformStatement(telegramRegistry, holder, "12345", "alice_tg"),
		nameStatement("Alice", "Smith"),
	)

	err := v.AddVerification(context.Background(), p, ts)
	var got *ports.DuplicateUserIDError
	require.True(t, errors.As(err, &got))
	assert.Equal(t, "12345", got.UserID)
}
