package sealbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sealbox/client-go/authresults"
	"github.com/sealbox/client-go/internal/gateway"
	"github.com/sealbox/client-go/internal/seal"
	"github.com/sealbox/client-go/spamanalysis"
)

// sealedMeta is the plaintext carried by a message's metadata envelope.
type sealedMeta struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Subject    string `json:"subject"`
	ReceivedAt string `json:"receivedAt"`
}

// sealedBody is the plaintext carried by a message's body envelope.
type sealedBody struct {
	Text         string                 `json:"text"`
	HTML         string                 `json:"html"`
	Headers      map[string]interface{} `json:"headers"`
	Attachments  []sealedAttachment     `json:"attachments"`
	Links        []string               `json:"links"`
	AuthResults  json.RawMessage        `json:"authResults"`
	SpamAnalysis json.RawMessage        `json:"spamAnalysis"`
}

type sealedAttachment struct {
	Filename           string `json:"filename"`
	ContentType        string `json:"contentType"`
	Size               int    `json:"size"`
	ContentID          string `json:"contentId"`
	ContentDisposition string `json:"contentDisposition"`
	Content            string `json:"content"` // base64
	Checksum           string `json:"checksum"`
}

// decryptEmail turns a gateway message into a decrypted Email. When the
// message lacks the sealed body (list responses omit it), the full message
// is fetched first.
//
// Metadata failures make the whole email unusable and are returned as the
// error alone. A body failure after successfully decrypted metadata
// returns the metadata-only email together with the error, so callers that
// matched on metadata can report the failure instead of silently skipping.
func (i *Inbox) decryptEmail(ctx context.Context, msg *gateway.Message) (*Email, error) {
	if msg.SealedMeta == nil {
		return nil, &DecryptionError{Stage: "decode", Message: "email has no sealed metadata"}
	}

	data := msg
	if msg.SealedBody == nil {
		full, err := i.client.gateway.GetMessage(ctx, i.emailAddress, msg.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch full email: %w", wrapError(err))
		}
		data = full
	}

	metaPlain, err := i.openEnvelope(data.SealedMeta)
	if err != nil {
		return nil, wrapSealError(err, "metadata")
	}

	var meta sealedMeta
	if err := json.Unmarshal(metaPlain, &meta); err != nil {
		return nil, &DecryptionError{Stage: "decode", Message: "parse metadata", Err: err}
	}

	email := buildEmailFromMeta(data, &meta)

	if data.SealedBody == nil {
		return email, nil
	}

	bodyPlain, err := i.openEnvelope(data.SealedBody)
	if err != nil {
		return email, wrapSealError(err, "body")
	}
	if err := applyBody(email, bodyPlain); err != nil {
		return email, err
	}
	return email, nil
}

// openEnvelope verifies and opens one envelope according to the inbox
// mode. Plaintext inboxes still verify the server signature.
func (i *Inbox) openEnvelope(env *seal.Envelope) ([]byte, error) {
	if !i.encrypted {
		return seal.OpenPlain(env, i.serverSigPk)
	}
	return seal.Open(env, i.keypair, i.serverSigPk)
}

// buildEmailFromMeta constructs an Email from the message and its
// decrypted metadata. The metadata timestamp wins; the server-side
// receivedAt is the fallback when it is absent or unparseable.
func buildEmailFromMeta(msg *gateway.Message, meta *sealedMeta) *Email {
	email := &Email{
		ID:      msg.ID,
		From:    meta.From,
		To:      []string{meta.To},
		Subject: meta.Subject,
		IsRead:  msg.IsRead,
	}

	if meta.ReceivedAt != "" {
		if t, err := time.Parse(time.RFC3339, meta.ReceivedAt); err == nil {
			email.ReceivedAt = t
		}
	}
	if email.ReceivedAt.IsZero() {
		email.ReceivedAt = msg.ReceivedAt
	}
	return email
}

// applyBody parses decrypted body plaintext and fills in the content
// fields of email.
func applyBody(email *Email, plaintext []byte) error {
	var body sealedBody
	if err := json.Unmarshal(plaintext, &body); err != nil {
		return &DecryptionError{Stage: "decode", Message: "parse body", Err: err}
	}

	email.Text = body.Text
	email.HTML = body.HTML
	email.Links = body.Links

	// The server may send headers with non-string values; only
	// string-typed values are preserved.
	if len(body.Headers) > 0 {
		email.Headers = make(map[string]string)
		for k, v := range body.Headers {
			if s, ok := v.(string); ok {
				email.Headers[k] = s
			}
		}
	}

	if len(body.Attachments) > 0 {
		email.Attachments = make([]Attachment, len(body.Attachments))
		for j, a := range body.Attachments {
			content, err := base64.StdEncoding.DecodeString(a.Content)
			if err != nil {
				return &DecryptionError{Stage: "decode", Message: "decode attachment content", Err: err}
			}
			email.Attachments[j] = Attachment{
				Filename:           a.Filename,
				ContentType:        a.ContentType,
				Size:               a.Size,
				ContentID:          a.ContentID,
				ContentDisposition: a.ContentDisposition,
				Content:            content,
				Checksum:           a.Checksum,
			}
		}
	}

	if len(body.AuthResults) > 0 {
		var ar authresults.AuthResults
		if err := json.Unmarshal(body.AuthResults, &ar); err == nil {
			email.AuthResults = &ar
		}
	}
	if len(body.SpamAnalysis) > 0 {
		var sa spamanalysis.SpamAnalysis
		if err := json.Unmarshal(body.SpamAnalysis, &sa); err == nil {
			email.SpamAnalysis = &sa
		}
	}
	return nil
}

// decryptMetadata decrypts only the metadata envelope of a message.
func (i *Inbox) decryptMetadata(msg *gateway.Message) (*EmailMetadata, error) {
	if msg.SealedMeta == nil {
		return nil, &DecryptionError{Stage: "decode", Message: "email has no sealed metadata"}
	}
	metaPlain, err := i.openEnvelope(msg.SealedMeta)
	if err != nil {
		return nil, wrapSealError(err, "metadata")
	}
	var meta sealedMeta
	if err := json.Unmarshal(metaPlain, &meta); err != nil {
		return nil, &DecryptionError{Stage: "decode", Message: "parse metadata", Err: err}
	}

	md := &EmailMetadata{
		ID:      msg.ID,
		From:    meta.From,
		Subject: meta.Subject,
		IsRead:  msg.IsRead,
	}
	if meta.ReceivedAt != "" {
		if t, err := time.Parse(time.RFC3339, meta.ReceivedAt); err == nil {
			md.ReceivedAt = t
		}
	}
	if md.ReceivedAt.IsZero() {
		md.ReceivedAt = msg.ReceivedAt
	}
	return md, nil
}
