package domain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// TransactionHash identifies a submitted ledger transaction.
type TransactionHash string

// HolderID is the public key of the credential holder. It is the
// cross-platform join key in the verification store.
type HolderID [32]byte

// String returns the hex representation of the holder id.
func (h HolderID) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns the raw key bytes.
func (h HolderID) Bytes() []byte {
	return h[:]
}

// MarshalJSON encodes the holder id as a hex string.
func (h HolderID) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes the holder id from a hex string.
func (h *HolderID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("holder id is not valid hex: %w", err)
	}
	if len(raw) != len(h) {
		return fmt.Errorf("holder id must be %d bytes, got %d", len(h), len(raw))
	}
	copy(h[:], raw)
	return nil
}

// ContractAddress is the address of a registry contract on the ledger.
type ContractAddress struct {
	Index    uint64 `json:"index"`
	Subindex uint64 `json:"subindex"`
}

// String renders the address in the usual <index,subindex> form.
func (a ContractAddress) String() string {
	return fmt.Sprintf("<%d,%d>", a.Index, a.Subindex)
}

// ParseContractAddress parses an address in "<index,subindex>" form.
func ParseContractAddress(s string) (ContractAddress, error) {
	var a ContractAddress
	if _, err := fmt.Sscanf(s, "<%d,%d>", &a.Index, &a.Subindex); err != nil {
		return ContractAddress{}, fmt.Errorf("invalid contract address %q: %w", s, err)
	}
	return a, nil
}

// MetadataURL points at the off-chain credential metadata.
type MetadataURL struct {
	URL  string `json:"url"`
	Hash string `json:"hash,omitempty"`
}

// CredentialInfo is the public part of a credential issuance request.
type CredentialInfo struct {
	HolderID        HolderID    `json:"holderId"`
	HolderRevocable bool        `json:"holderRevocable"`
	ValidFrom       time.Time   `json:"validFrom"`
	ValidUntil      *time.Time  `json:"validUntil,omitempty"`
	MetadataURL     MetadataURL `json:"metadataUrl"`
}

// IssueRequest is the request-facing shape of POST /credential. The user id
// and username become the committed attributes of the issued credential.
type IssueRequest struct {
	Credential CredentialInfo `json:"credential"`
	UserID     string         `json:"userId"`
	Username   string         `json:"username"`
}

// Attribute keys committed into issued credentials.
const (
	AttrUserID   = "userId"
	AttrUsername = "username"
)

// SignedCommitments are the blinding values and issuer signature produced by
// the proof system for a set of committed attributes.
type SignedCommitments struct {
	Randomness map[string]string `json:"randomness"`
	Signature  string            `json:"signature"`
	IssuerKey  string            `json:"issuerKey"`
}

// Web3IDCredential is the full credential secret returned to the holder after
// issuance. The holder keeps the randomness; it never touches persistent
// storage on our side.
type Web3IDCredential struct {
	HolderID         HolderID          `json:"holderId"`
	Registry         ContractAddress   `json:"registry"`
	IssuerKey        string            `json:"issuerKey"`
	CredentialType   []string          `json:"credentialType"`
	CredentialSchema string            `json:"credentialSchema"`
	ValidFrom        time.Time         `json:"validFrom"`
	ValidUntil       *time.Time        `json:"validUntil,omitempty"`
	Values           map[string]string `json:"values"`
	Randomness       map[string]string `json:"randomness"`
	Signature        string            `json:"signature"`
}

// IssueResponse is returned from a successful issuance.
type IssueResponse struct {
	TxHash     TransactionHash  `json:"txHash"`
	Credential Web3IDCredential `json:"credential"`
}

// RegisterCredentialTx is a ledger write registering a new credential,
// sequenced by the issuance worker.
type RegisterCredentialTx struct {
	Sender     string          `json:"sender"`
	Nonce      uint64          `json:"nonce"`
	Expiry     time.Time       `json:"expiry"`
	Energy     uint64          `json:"energy"`
	Registry   ContractAddress `json:"registry"`
	Credential CredentialInfo  `json:"credential"`
}
