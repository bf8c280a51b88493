package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"

	"github.com/Concordium/concordium-web3id/internal/core/domain"
	"github.com/Concordium/concordium-web3id/internal/core/ports"
	"github.com/Concordium/concordium-web3id/internal/db"
)

const duplicateViolationErrorCode = "23505"

const insertVerificationSQL = `INSERT INTO verifications (presentation, first_name, last_name)
		VALUES ($1, $2, $3)
		RETURNING id`

// platformSQL holds one fixed statement set per supported platform. Platform
// names never reach the SQL text as identifiers.
var platformSQL = map[domain.Platform]struct {
	insert       string
	deleteByCred string
	getByID      string
}{
	domain.PlatformTelegram: {
		insert: `INSERT INTO telegram (id, cred_id, username, verification_id) VALUES ($1, $2, $3, $4)`,
		deleteByCred: `DELETE FROM verifications
				WHERE id IN (SELECT verification_id FROM telegram WHERE cred_id = $1)`,
		getByID: `SELECT v.presentation, v.first_name, v.last_name,
						t.id, t.cred_id, t.username,
						d.id, d.cred_id, d.username
				FROM verifications v
				LEFT JOIN telegram t ON t.verification_id = v.id
				LEFT JOIN discord d ON d.verification_id = v.id
				WHERE v.id = (SELECT verification_id FROM telegram WHERE id = $1)`,
	},
	domain.PlatformDiscord: {
		insert: `INSERT INTO discord (id, cred_id, username, verification_id) VALUES ($1, $2, $3, $4)`,
		deleteByCred: `DELETE FROM verifications
				WHERE id IN (SELECT verification_id FROM discord WHERE cred_id = $1)`,
		getByID: `SELECT v.presentation, v.first_name, v.last_name,
						t.id, t.cred_id, t.username,
						d.id, d.cred_id, d.username
				FROM verifications v
				LEFT JOIN telegram t ON t.verification_id = v.id
				LEFT JOIN discord d ON d.verification_id = v.id
				WHERE v.id = (SELECT verification_id FROM discord WHERE id = $1)`,
	},
}

type verifications struct {
	conn db.Storage
}

// NewVerifications creates the postgres backed verification repository
func NewVerifications(conn db.Storage) ports.VerificationRepository {
	return &verifications{conn: conn}
}

// AddVerification stores a verification in one transaction: rows superseded
// by the new entry's credential holder ids are deleted first, then the top
// level row and the per platform sub rows are inserted. A unique violation on
// an external id rolls the whole write back and reports the clashing id.
func (r *verifications) AddVerification(ctx context.Context, entry *domain.VerificationsEntry) error {
	return r.conn.Pgx.BeginFunc(ctx, func(tx pgx.Tx) error {
		for _, platform := range domain.SupportedPlatforms {
			pe := entry.PlatformEntryFor(platform)
			if pe == nil {
				continue
			}
			if _, err := deleteByCred(ctx, tx, platform, pe.CredID); err != nil {
				return fmt.Errorf("superseding %s verification: %w", platform, err)
			}
		}

		presentation := pgtype.JSONB{Bytes: entry.Presentation, Status: pgtype.Present}
		var firstName, lastName *string
		if entry.FullName != nil {
			firstName = &entry.FullName.FirstName
			lastName = &entry.FullName.LastName
		}
		var verificationID int64
		if err := tx.QueryRow(ctx, insertVerificationSQL, presentation, firstName, lastName).Scan(&verificationID); err != nil {
			return fmt.Errorf("inserting verification: %w", err)
		}

		for _, platform := range domain.SupportedPlatforms {
			pe := entry.PlatformEntryFor(platform)
			if pe == nil {
				continue
			}
			if _, err := tx.Exec(ctx, platformSQL[platform].insert, pe.ID, pe.CredID.Bytes(), pe.Username, verificationID); err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == duplicateViolationErrorCode {
					return &ports.DuplicateUserIDError{UserID: pe.ID}
				}
				return fmt.Errorf("inserting %s account: %w", platform, err)
			}
		}
		return nil
	})
}

// GetVerification returns the verification containing the given account
// together with every platform sub row sharing it, nil when no row matches.
func (r *verifications) GetVerification(ctx context.Context, externalID string, platform domain.Platform) (*domain.DbVerification, error) {
	sqls, ok := platformSQL[platform]
	if !ok {
		return nil, fmt.Errorf("unknown platform %q", platform)
	}

	var (
		presentation        pgtype.JSONB
		firstName, lastName *string
		tgID, tgUsername    *string
		dcID, dcUsername    *string
		tgCred, dcCred      []byte
	)
	err := r.conn.Pgx.QueryRow(ctx, sqls.getByID, externalID).Scan(
		&presentation,
		&firstName,
		&lastName,
		&tgID,
		&tgCred,
		&tgUsername,
		&dcID,
		&dcCred,
		&dcUsername,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	out := &domain.DbVerification{Presentation: presentation.Bytes}
	if firstName != nil && lastName != nil {
		out.FullName = &domain.FullName{FirstName: *firstName, LastName: *lastName}
	}
	if tgID != nil {
		out.Accounts = append(out.Accounts, domain.DbAccount{
			Platform: domain.PlatformTelegram,
			ID:       *tgID,
			CredID:   holderFromBytes(tgCred),
			Username: deref(tgUsername),
		})
	}
	if dcID != nil {
		out.Accounts = append(out.Accounts, domain.DbAccount{
			Platform: domain.PlatformDiscord,
			ID:       *dcID,
			CredID:   holderFromBytes(dcCred),
			Username: deref(dcUsername),
		})
	}
	return out, nil
}

// RemoveVerification deletes the verification reachable from the platform sub
// row with the given credential holder id, cascading to all sub rows.
func (r *verifications) RemoveVerification(ctx context.Context, credID domain.HolderID, platform domain.Platform) (bool, error) {
	deleted, err := deleteByCred(ctx, r.conn.Pgx, platform, credID)
	if err != nil {
		return false, err
	}
	return deleted > 0, nil
}

// deleteByCred removes the verification reachable from a platform credential.
// It runs against either the pool or an open transaction.
func deleteByCred(ctx context.Context, conn db.Querier, platform domain.Platform, credID domain.HolderID) (int64, error) {
	sqls, ok := platformSQL[platform]
	if !ok {
		return 0, fmt.Errorf("unknown platform %q", platform)
	}
	tag, err := conn.Exec(ctx, sqls.deleteByCred, credID.Bytes())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func holderFromBytes(b []byte) domain.HolderID {
	var h domain.HolderID
	copy(h[:], b)
	return h
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
