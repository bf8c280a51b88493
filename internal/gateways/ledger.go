package gateways

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"github.com/Concordium/concordium-web3id/internal/core/domain"
	"github.com/Concordium/concordium-web3id/internal/core/ports"
	"github.com/Concordium/concordium-web3id/internal/log"
	client "github.com/Concordium/concordium-web3id/pkg/http"
)

// LedgerConfig holds the connection parameters of the node API.
type LedgerConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// LedgerService talks to the ledger node over its JSON API. Reads retry on
// transient failures; transaction submission never does, since a retried
// submission with the same nonce could land twice.
type LedgerService struct {
	cfg   *LedgerConfig
	read  *client.Client
	write *client.Client
}

// NewLedgerService builds a node gateway from the given configuration.
func NewLedgerService(cfg *LedgerConfig) ports.LedgerClient {
	return &LedgerService{
		cfg: cfg,
		read: client.NewClient(http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &retryablehttp.RoundTripper{
				Client: retryablehttp.NewClient(),
			},
		}),
		write: client.NewClient(http.Client{Timeout: cfg.RequestTimeout}),
	}
}

// NextSequenceNumber returns the next nonce of the account and whether all
// its transactions are finalized.
func (s *LedgerService) NextSequenceNumber(ctx context.Context, account string) (ports.NonceInfo, error) {
	url := fmt.Sprintf("%s/v2/accounts/%s/nonce", s.cfg.BaseURL, account)
	status, body, err := s.read.Get(ctx, url, nil)
	if err != nil {
		return ports.NonceInfo{}, errors.Wrap(ports.ErrLedgerUnavailable, err.Error())
	}
	if status != http.StatusOK {
		return ports.NonceInfo{}, fmt.Errorf("%w: nonce query returned status %d", ports.ErrLedgerUnavailable, status)
	}
	var info ports.NonceInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return ports.NonceInfo{}, errors.Wrap(err, "decoding nonce response")
	}
	return info, nil
}

// SubmitTransaction submits a credential registration and classifies
// failures: a 400 is a contract level rejection, a 422 a sequence number
// mismatch, anything else transient unavailability.
func (s *LedgerService) SubmitTransaction(ctx context.Context, tx domain.RegisterCredentialTx) (domain.TransactionHash, error) {
	payload, err := json.Marshal(tx)
	if err != nil {
		return "", errors.Wrap(err, "encoding transaction")
	}

	url := s.cfg.BaseURL + "/v2/transactions/register-credential"
	status, body, err := s.write.Post(ctx, url, payload)
	if err != nil {
		return "", errors.Wrap(ports.ErrLedgerUnavailable, err.Error())
	}
	switch {
	case status == http.StatusOK || status == http.StatusCreated:
	case status == http.StatusBadRequest:
		return "", fmt.Errorf("%w: %s", ports.ErrLedgerRejected, string(body))
	case status == http.StatusUnprocessableEntity:
		return "", fmt.Errorf("%w: %s", ports.ErrLedgerSequence, string(body))
	default:
		return "", fmt.Errorf("%w: submission returned status %d", ports.ErrLedgerUnavailable, status)
	}

	var resp struct {
		TxHash domain.TransactionHash `json:"txHash"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", errors.Wrap(err, "decoding submission response")
	}
	log.Debug(ctx, "transaction submitted", "txHash", resp.TxHash, "nonce", tx.Nonce)
	return resp.TxHash, nil
}

// CredentialEntry resolves the public data of a credential in a registry.
func (s *LedgerService) CredentialEntry(ctx context.Context, registry domain.ContractAddress, holder domain.HolderID) (domain.CredentialEntry, error) {
	url := fmt.Sprintf("%s/v2/registries/%d/%d/credentials/%s",
		s.cfg.BaseURL, registry.Index, registry.Subindex, holder)
	status, body, err := s.read.Get(ctx, url, nil)
	if err != nil {
		return domain.CredentialEntry{}, errors.Wrap(ports.ErrLedgerUnavailable, err.Error())
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return domain.CredentialEntry{}, ports.ErrCredentialNotFound
	default:
		return domain.CredentialEntry{}, fmt.Errorf("%w: credential query returned status %d", ports.ErrLedgerUnavailable, status)
	}
	var entry domain.CredentialEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		return domain.CredentialEntry{}, errors.Wrap(err, "decoding credential entry")
	}
	return entry, nil
}

// CryptographicParameters fetches the network's global parameters.
func (s *LedgerService) CryptographicParameters(ctx context.Context) (json.RawMessage, error) {
	url := s.cfg.BaseURL + "/v2/parameters"
	status, body, err := s.read.Get(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrap(ports.ErrLedgerUnavailable, err.Error())
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: parameters query returned status %d", ports.ErrLedgerUnavailable, status)
	}
	return body, nil
}
