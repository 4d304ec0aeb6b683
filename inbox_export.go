package sealbox

import (
	"fmt"
	"strings"
	"time"

	"github.com/sealbox/client-go/internal/seal"
)

// ExportVersion is the current export format version.
const ExportVersion = 1

// ExportedInbox contains all data needed to restore an inbox, possibly in
// another process or on another machine.
// WARNING: For encrypted inboxes, this contains private key material -
// handle securely.
//
// The public key is NOT included for encrypted inboxes; it is derived
// from the secret key on import.
type ExportedInbox struct {
	// Version is the export format version. MUST be 1.
	Version int `json:"version"`
	// EmailAddress is the inbox email address. MUST contain exactly one @.
	EmailAddress string `json:"emailAddress"`
	// ExpiresAt is the inbox expiration timestamp (ISO 8601).
	ExpiresAt time.Time `json:"expiresAt"`
	// InboxHash is the unique inbox identifier. Non-empty.
	InboxHash string `json:"inboxHash"`
	// ServerSigPk is the server's ML-DSA-65 public key (base64url, 1952
	// bytes decoded). Only set for encrypted inboxes.
	ServerSigPk string `json:"serverSigPk,omitempty"`
	// SecretKey is the ML-KEM-768 secret key (base64url, 2400 bytes
	// decoded). Only set for encrypted inboxes.
	SecretKey string `json:"secretKey,omitempty"`
	// ExportedAt is the export timestamp (ISO 8601). Informational only.
	ExportedAt time.Time `json:"exportedAt"`
	// EmailAuth indicates whether email authentication is enabled for this inbox.
	EmailAuth bool `json:"emailAuth"`
	// Encrypted indicates whether this is an encrypted inbox.
	Encrypted bool `json:"encrypted"`
}

// Validate checks the exported data. The checks run in a fixed order so a
// given malformed export always fails the same way: version, required
// fields, address shape, expiry, then key material. Key encoding is
// strict unpadded base64url; padded or standard-alphabet input is
// rejected rather than fixed up.
func (e *ExportedInbox) Validate() error {
	if e.Version != ExportVersion {
		return fmt.Errorf("%w: unsupported version %d, expected %d", ErrInvalidImportData, e.Version, ExportVersion)
	}

	if e.EmailAddress == "" {
		return fmt.Errorf("%w: emailAddress is required", ErrInvalidImportData)
	}
	if e.InboxHash == "" {
		return fmt.Errorf("%w: inboxHash is required", ErrInvalidImportData)
	}

	if strings.Count(e.EmailAddress, "@") != 1 {
		return fmt.Errorf("%w: emailAddress must contain exactly one @", ErrInvalidImportData)
	}

	if e.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: expiresAt is required", ErrInvalidImportData)
	}
	if !e.ExpiresAt.After(time.Now()) {
		return fmt.Errorf("%w: %v", ErrInvalidImportData, ErrInboxExpired)
	}

	if e.Encrypted {
		if e.SecretKey == "" {
			return fmt.Errorf("%w: secretKey is required for encrypted inbox", ErrInvalidImportData)
		}
		secretKey, err := seal.DecodeKey(e.SecretKey)
		if err != nil {
			return fmt.Errorf("%w: invalid secretKey encoding", ErrInvalidImportData)
		}
		if len(secretKey) != seal.KEMSecretKeySize {
			return fmt.Errorf("%w: secretKey size %d, expected %d", ErrInvalidImportData, len(secretKey), seal.KEMSecretKeySize)
		}

		if e.ServerSigPk == "" {
			return fmt.Errorf("%w: serverSigPk is required for encrypted inbox", ErrInvalidImportData)
		}
		serverSigPk, err := seal.DecodeKey(e.ServerSigPk)
		if err != nil {
			return fmt.Errorf("%w: invalid serverSigPk encoding", ErrInvalidImportData)
		}
		if len(serverSigPk) != seal.SigningKeySize {
			return fmt.Errorf("%w: serverSigPk size %d, expected %d", ErrInvalidImportData, len(serverSigPk), seal.SigningKeySize)
		}
	}

	return nil
}

// Export returns exportable inbox data. For encrypted inboxes, this
// includes the private key material.
func (i *Inbox) Export() *ExportedInbox {
	exported := &ExportedInbox{
		Version:      ExportVersion,
		EmailAddress: i.emailAddress,
		ExpiresAt:    i.expiresAt,
		InboxHash:    i.inboxHash,
		ExportedAt:   time.Now().UTC(),
		EmailAuth:    i.emailAuth,
		Encrypted:    i.encrypted,
	}

	if i.encrypted && i.serverSigPk != nil && i.keypair != nil {
		exported.ServerSigPk = seal.EncodeKey(i.serverSigPk)
		exported.SecretKey = seal.EncodeKey(i.keypair.SecretKey)
	}

	return exported
}

// newInboxFromExport reconstructs an inbox from exported data. For
// encrypted inboxes, the public key is derived from the secret key.
func newInboxFromExport(data *ExportedInbox, c *Client) (*Inbox, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}

	inbox := &Inbox{
		emailAddress: data.EmailAddress,
		expiresAt:    data.ExpiresAt,
		inboxHash:    data.InboxHash,
		client:       c,
		emailAuth:    data.EmailAuth,
		encrypted:    data.Encrypted,
	}

	// Validate() already verified encoding and sizes.
	if data.Encrypted {
		secretKey, _ := seal.DecodeKey(data.SecretKey)
		serverSigPk, _ := seal.DecodeKey(data.ServerSigPk)

		keypair, err := seal.KeyPairFromSecret(secretKey)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to reconstruct keypair: %v", ErrInvalidImportData, err)
		}

		inbox.serverSigPk = serverSigPk
		inbox.keypair = keypair
	}

	return inbox, nil
}
