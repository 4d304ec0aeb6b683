package sealbox

import (
	"context"
	"time"

	"github.com/sealbox/client-go/internal/gateway"
	"github.com/sealbox/client-go/internal/seal"
)

// Inbox represents a temporary email inbox.
type Inbox struct {
	emailAddress string
	expiresAt    time.Time
	createdAt    time.Time
	inboxHash    string
	serverSigPk  []byte
	keypair      *seal.KeyPair
	emailAuth    bool
	encrypted    bool
	client       *Client
}

// InboxStatus is the lightweight change-detection state of an inbox: the
// number of emails and a hash over their IDs.
type InboxStatus = gateway.InboxStatus

// EmailAddress returns the inbox email address.
func (i *Inbox) EmailAddress() string {
	return i.emailAddress
}

// ExpiresAt returns when the inbox expires.
func (i *Inbox) ExpiresAt() time.Time {
	return i.expiresAt
}

// CreatedAt returns when the inbox was created. Zero for imported
// inboxes, whose export format does not carry the creation time.
func (i *Inbox) CreatedAt() time.Time {
	return i.createdAt
}

// InboxHash returns the inbox identifier derived from the public key.
func (i *Inbox) InboxHash() string {
	return i.inboxHash
}

// IsEncrypted reports whether emails in this inbox are end-to-end
// encrypted.
func (i *Inbox) IsEncrypted() bool {
	return i.encrypted
}

// IsExpired checks if the inbox has expired.
func (i *Inbox) IsExpired() bool {
	return time.Now().After(i.expiresAt)
}

// GetStatus retrieves the inbox status. The emails hash can be compared
// across calls to efficiently check for changes.
func (i *Inbox) GetStatus(ctx context.Context) (*InboxStatus, error) {
	status, err := i.client.gateway.GetInboxStatus(ctx, i.emailAddress)
	if err != nil {
		return nil, wrapError(err)
	}
	return status, nil
}

// Delete deletes the inbox.
func (i *Inbox) Delete(ctx context.Context) error {
	return i.client.DeleteInbox(ctx, i.emailAddress)
}

func newInboxFromResult(resp *gateway.CreateInboxResponse, kp *seal.KeyPair, serverSigPk []byte, c *Client) *Inbox {
	return &Inbox{
		emailAddress: resp.Address,
		expiresAt:    resp.ExpiresAt,
		createdAt:    resp.CreatedAt,
		inboxHash:    resp.InboxHash,
		serverSigPk:  serverSigPk,
		keypair:      kp,
		encrypted:    resp.Encrypted,
		client:       c,
	}
}
