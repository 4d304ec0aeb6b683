package sealbox

import (
	"context"

	"github.com/sealbox/client-go/rawmail"
)

// GetEmails fetches and decrypts all emails in the inbox.
//
// An email whose signature fails to verify aborts the whole call; that is
// a security failure, never skipped. An email that fails to decrypt for
// any other reason is logged and omitted from the result.
func (i *Inbox) GetEmails(ctx context.Context) ([]*Email, error) {
	msgs, err := i.client.gateway.ListMessages(ctx, i.emailAddress)
	if err != nil {
		return nil, wrapError(err)
	}

	emails := make([]*Email, 0, len(msgs))
	for j := range msgs {
		email, err := i.decryptEmail(ctx, &msgs[j])
		if err != nil {
			if isSecurityError(err) {
				return nil, err
			}
			i.client.log.WithField("email_id", msgs[j].ID).WithError(err).
				Warn("skipping undecryptable email")
			continue
		}
		emails = append(emails, email)
	}
	return emails, nil
}

// GetEmailsMetadataOnly fetches and decrypts only the metadata of all
// emails in the inbox. Cheaper than GetEmails: no body fetch, no body
// decryption.
func (i *Inbox) GetEmailsMetadataOnly(ctx context.Context) ([]*EmailMetadata, error) {
	msgs, err := i.client.gateway.ListMessages(ctx, i.emailAddress)
	if err != nil {
		return nil, wrapError(err)
	}

	metadata := make([]*EmailMetadata, 0, len(msgs))
	for j := range msgs {
		md, err := i.decryptMetadata(&msgs[j])
		if err != nil {
			if isSecurityError(err) {
				return nil, err
			}
			i.client.log.WithField("email_id", msgs[j].ID).WithError(err).
				Warn("skipping undecryptable email metadata")
			continue
		}
		metadata = append(metadata, md)
	}
	return metadata, nil
}

// GetEmail fetches and decrypts a specific email by ID.
func (i *Inbox) GetEmail(ctx context.Context, emailID string) (*Email, error) {
	msg, err := i.client.gateway.GetMessage(ctx, i.emailAddress, emailID)
	if err != nil {
		return nil, wrapError(err)
	}
	email, err := i.decryptEmail(ctx, msg)
	if err != nil {
		return nil, err
	}
	return email, nil
}

// GetRawEmail fetches and decrypts the raw RFC 5322 source of an email.
func (i *Inbox) GetRawEmail(ctx context.Context, emailID string) (string, error) {
	src, err := i.client.gateway.GetMessageSource(ctx, i.emailAddress, emailID)
	if err != nil {
		return "", wrapError(err)
	}
	if src.SealedSource == nil {
		return "", &DecryptionError{Stage: "decode", Message: "email has no sealed source"}
	}
	plain, err := i.openEnvelope(src.SealedSource)
	if err != nil {
		return "", wrapSealError(err, "source")
	}
	return string(plain), nil
}

// ParseRawEmail fetches the raw RFC 5322 source of an email and parses
// it client-side. Useful for assertions on the wire-format message that
// the server-parsed Email fields do not cover.
func (i *Inbox) ParseRawEmail(ctx context.Context, emailID string) (*rawmail.Message, error) {
	src, err := i.GetRawEmail(ctx, emailID)
	if err != nil {
		return nil, err
	}
	parsed, err := rawmail.ParseString(src)
	if err != nil {
		return nil, &DecryptionError{Stage: "decode", Message: "parse raw email", Err: err}
	}
	return parsed, nil
}

// MarkEmailAsRead marks a specific email as read.
func (i *Inbox) MarkEmailAsRead(ctx context.Context, emailID string) error {
	return wrapError(i.client.gateway.MarkMessageRead(ctx, i.emailAddress, emailID))
}

// DeleteEmail deletes a specific email.
func (i *Inbox) DeleteEmail(ctx context.Context, emailID string) error {
	return wrapError(i.client.gateway.DeleteMessage(ctx, i.emailAddress, emailID))
}
