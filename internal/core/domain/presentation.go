package domain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Platform is a social media platform supported by the verifier.
type Platform string

// Supported platforms
const (
	PlatformTelegram Platform = "telegram"
	PlatformDiscord  Platform = "discord"
)

// SupportedPlatforms lists every platform the verifier knows about.
var SupportedPlatforms = []Platform{PlatformTelegram, PlatformDiscord}

// ParsePlatform parses a platform path or body parameter.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(s) {
	case PlatformTelegram:
		return PlatformTelegram, nil
	case PlatformDiscord:
		return PlatformDiscord, nil
	default:
		return "", fmt.Errorf("unknown platform %q", s)
	}
}

// CredentialStatus is the ledger-side lifecycle state of a credential.
type CredentialStatus string

// Credential states as reported by the registry contract.
const (
	StatusActive       CredentialStatus = "Active"
	StatusRevoked      CredentialStatus = "Revoked"
	StatusExpired      CredentialStatus = "Expired"
	StatusNotActivated CredentialStatus = "NotActivated"
)

// HexBytes is a byte slice that marshals to a hex string in JSON, used for
// the presentation challenge.
type HexBytes []byte

// MarshalJSON encodes as hex.
func (b HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(b))
}

// UnmarshalJSON decodes from hex.
func (b *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	*b = raw
	return nil
}

// StatementType discriminates the two disclosure shapes a presentation may
// carry.
type StatementType string

// Statement types
const (
	// StatementWeb3ID discloses a platform account held in a registry contract.
	StatementWeb3ID StatementType = "web3Id"
	// StatementAccount discloses identity attributes from an account credential.
	StatementAccount StatementType = "account"
)

// Attribute tags used by account (full name) statements.
const (
	AttrTagFirstName = "firstName"
	AttrTagLastName  = "lastName"
)

// RevealedAttribute is one disclosed attribute inside a credential statement.
type RevealedAttribute struct {
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

// CredentialStatement is one statement of a presentation: either a platform
// account disclosure bound to a registry contract, or an identity (full name)
// disclosure.
type CredentialStatement struct {
	Type     StatementType       `json:"type"`
	Registry *ContractAddress    `json:"registry,omitempty"`
	Holder   HolderID            `json:"holder"`
	Proofs   []RevealedAttribute `json:"proofs"`
}

// Presentation is a bundled zero-knowledge proof plus disclosed attributes.
// The cryptographic payload is opaque to this service; only the challenge and
// the disclosed statements are interpreted here.
type Presentation struct {
	PresentationContext  HexBytes              `json:"presentationContext"`
	VerifiableCredential []CredentialStatement `json:"verifiableCredential"`
	Proof                json.RawMessage       `json:"proof"`

	// raw is the presentation as it arrived on the wire. It is what gets
	// persisted and later re-verified, so it must survive byte-for-byte.
	raw json.RawMessage
}

type presentationAlias Presentation

// UnmarshalJSON decodes the presentation and retains the raw wire form.
func (p *Presentation) UnmarshalJSON(data []byte) error {
	var alias presentationAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*p = Presentation(alias)
	p.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON re-emits the original wire form when available.
func (p Presentation) MarshalJSON() ([]byte, error) {
	if p.raw != nil {
		return p.raw, nil
	}
	return json.Marshal(presentationAlias(p))
}

// Raw returns the presentation as it arrived on the wire.
func (p *Presentation) Raw() json.RawMessage {
	if p.raw != nil {
		return p.raw
	}
	raw, _ := json.Marshal(presentationAlias(*p))
	return raw
}

// CredentialEntry is the public ledger data for one credential referenced by
// a presentation.
type CredentialEntry struct {
	Registry ContractAddress  `json:"registry"`
	Holder   HolderID         `json:"holder"`
	Status   CredentialStatus `json:"status"`
	Inputs   json.RawMessage  `json:"inputs"`
}

// FullName is a disclosed identity name.
type FullName struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// PlatformEntry is one platform account disclosed by a presentation, keyed by
// the credential holder id.
type PlatformEntry struct {
	ID       string
	CredID   HolderID
	Username string
}

// VerificationsEntry is the initializer for one pending verification store
// write: at most one platform entry per supported platform, the serialized
// presentation and an optional full name.
type VerificationsEntry struct {
	Telegram     *PlatformEntry
	Discord      *PlatformEntry
	Presentation json.RawMessage
	FullName     *FullName
}

// NewVerificationsEntry seeds an entry with the serialized presentation.
func NewVerificationsEntry(p *Presentation) *VerificationsEntry {
	return &VerificationsEntry{Presentation: p.Raw()}
}

// PlatformEntryFor returns the entry for the given platform, nil if absent.
func (e *VerificationsEntry) PlatformEntryFor(p Platform) *PlatformEntry {
	switch p {
	case PlatformTelegram:
		return e.Telegram
	case PlatformDiscord:
		return e.Discord
	default:
		return nil
	}
}

// SetPlatformEntry stores a platform entry, reporting whether one was already
// present for that platform.
func (e *VerificationsEntry) SetPlatformEntry(p Platform, entry *PlatformEntry) bool {
	if e.PlatformEntryFor(p) != nil {
		return false
	}
	switch p {
	case PlatformTelegram:
		e.Telegram = entry
	case PlatformDiscord:
		e.Discord = entry
	}
	return true
}

// DbAccount is a platform account read back from the verification store.
type DbAccount struct {
	Platform Platform
	ID       string
	CredID   HolderID
	Username string
}

// DbVerification is the read-side projection of one verification row: every
// platform account sharing the row, the optional full name and the stored
// presentation.
type DbVerification struct {
	Accounts     []DbAccount
	FullName     *FullName
	Presentation json.RawMessage
}

// Account is one verified platform account as served by the API, enriched
// with its current ledger credential status.
type Account struct {
	Platform   Platform         `json:"platform"`
	Username   string           `json:"username"`
	CredStatus CredentialStatus `json:"credStatus"`
}

// Verification is the cross-platform verification set served by the API.
type Verification struct {
	Accounts []Account `json:"accounts"`
	FullName *FullName `json:"fullName,omitempty"`
}
