package gateways

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Concordium/concordium-web3id/internal/core/domain"
	"github.com/Concordium/concordium-web3id/internal/core/ports"
)

func testLedger(t *testing.T, handler http.Handler) ports.LedgerClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewLedgerService(&LedgerConfig{BaseURL: srv.URL, RequestTimeout: 5 * time.Second})
}

func TestLedgerService_NextSequenceNumber(t *testing.T) {
	svc := testLedger(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/accounts/acc-1/nonce", r.URL.Path)
		_ = json.NewEncoder(w).Encode(ports.NonceInfo{Nonce: 42, AllFinal: true})
	}))

	info, err := svc.NextSequenceNumber(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), info.Nonce)
	assert.True(t, info.AllFinal)
}

func TestLedgerService_SubmitTransaction(t *testing.T) {
	for _, tc := range []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"accepted", http.StatusOK, `{"txHash":"abc123"}`, nil},
		{"contract rejection", http.StatusBadRequest, `module rejected`, ports.ErrLedgerRejected},
		{"sequence mismatch", http.StatusUnprocessableEntity, `stale nonce`, ports.ErrLedgerSequence},
		{"node down", http.StatusServiceUnavailable, ``, ports.ErrLedgerUnavailable},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var gotNonce uint64
			svc := testLedger(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v2/transactions/register-credential", r.URL.Path)
				var tx domain.RegisterCredentialTx
				require.NoError(t, json.NewDecoder(r.Body).Decode(&tx))
				gotNonce = tx.Nonce
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))

			hash, err := svc.SubmitTransaction(context.Background(), domain.RegisterCredentialTx{Nonce: 7})
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.TransactionHash("abc123"), hash)
			assert.Equal(t, uint64(7), gotNonce)
		})
	}
}

func TestLedgerService_CredentialEntry(t *testing.T) {
	holder := domain.HolderID{1, 2}
	registry := domain.ContractAddress{Index: 100, Subindex: 2}
	svc := testLedger(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/registries/100/2/credentials/"+holder.String() {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(domain.CredentialEntry{
			Registry: registry,
			Holder:   holder,
			Status:   domain.StatusActive,
		})
	}))

	entry, err := svc.CredentialEntry(context.Background(), registry, holder)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, entry.Status)
	assert.Equal(t, holder, entry.Holder)

	_, err = svc.CredentialEntry(context.Background(), domain.ContractAddress{Index: 999}, holder)
	assert.ErrorIs(t, err, ports.ErrCredentialNotFound)
}

func TestLedgerService_CryptographicParameters(t *testing.T) {
	svc := testLedger(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/parameters", r.URL.Path)
		_, _ = w.Write([]byte(`{"onChainCommitmentKey":"aabb"}`))
	}))

	params, err := svc.CryptographicParameters(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"onChainCommitmentKey":"aabb"}`, string(params))
}
