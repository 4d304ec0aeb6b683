// Package rawmail parses raw RFC 5322 email sources, such as the ones
// returned by Inbox.GetRawEmail, into a structured form for assertions
// on the original wire-format message.
package rawmail

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// Message is a parsed raw email.
type Message struct {
	From    string
	To      []string
	Subject string
	Date    time.Time
	// Text is the first text/plain part.
	Text string
	// HTML is the first text/html part.
	HTML        string
	Attachments []Attachment
}

// Attachment is one parsed attachment part.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Parse reads a raw email from r.
//
// Unknown charsets and other recoverable header problems do not fail the
// parse; the affected text is kept as-is.
func Parse(r io.Reader) (*Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("rawmail: parse message: %w", err)
	}

	msg := &Message{}
	msg.Subject, _ = mr.Header.Subject()
	msg.Date, _ = mr.Header.Date()
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = from[0].Address
	}
	if to, err := mr.Header.AddressList("To"); err == nil {
		for _, addr := range to {
			msg.To = append(msg.To, addr.Address)
		}
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return nil, fmt.Errorf("rawmail: read part: %w", err)
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			body, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, fmt.Errorf("rawmail: read body: %w", err)
			}
			switch {
			case ct == "text/plain" && msg.Text == "":
				msg.Text = string(body)
			case ct == "text/html" && msg.HTML == "":
				msg.HTML = string(body)
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			ct, _, _ := h.ContentType()
			content, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, fmt.Errorf("rawmail: read attachment: %w", err)
			}
			msg.Attachments = append(msg.Attachments, Attachment{
				Filename:    filename,
				ContentType: ct,
				Content:     content,
			})
		}
	}

	return msg, nil
}

// ParseString parses a raw email held as a string.
func ParseString(s string) (*Message, error) {
	return Parse(strings.NewReader(s))
}

var (
	textURLPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)
	hrefPattern    = regexp.MustCompile(`(?i)href\s*=\s*["']([^"']+)["']`)
)

// ExtractLinks collects the URLs in the message: bare URLs from the text
// part first, then href targets from the HTML part. A URL appearing in
// both parts appears twice; callers asserting position or count rely on
// the order and on duplicates being kept.
func ExtractLinks(m *Message) []string {
	links := []string{}
	links = append(links, textURLPattern.FindAllString(m.Text, -1)...)
	for _, match := range hrefPattern.FindAllStringSubmatch(m.HTML, -1) {
		links = append(links, match[1])
	}
	return links
}
