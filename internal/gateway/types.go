package gateway

import (
	"time"

	"github.com/sealbox/client-go/internal/seal"
)

// ServerInfo is the GET /v1/server response.
type ServerInfo struct {
	SigningKey       string    `json:"signingKey"`
	Algs             seal.Algs `json:"algs"`
	Context          string    `json:"context"`
	MaxTTL           int       `json:"maxTtlSeconds"`
	DefaultTTL       int       `json:"defaultTtlSeconds"`
	AllowedDomains   []string  `json:"allowedDomains"`
	EncryptionPolicy string    `json:"encryptionPolicy"`
}

// CreateInboxRequest is the POST /v1/inboxes request body.
type CreateInboxRequest struct {
	KemPublicKey string `json:"kemPublicKey,omitempty"`
	TTL          int    `json:"ttlSeconds,omitempty"`
	Address      string `json:"address,omitempty"`
	EmailAuth    bool   `json:"emailAuth"`
	Encryption   string `json:"encryption,omitempty"`
}

// CreateInboxResponse is the POST /v1/inboxes response.
type CreateInboxResponse struct {
	Address    string    `json:"address"`
	InboxHash  string    `json:"inboxHash"`
	ExpiresAt  time.Time `json:"expiresAt"`
	CreatedAt  time.Time `json:"createdAt"`
	SigningKey string    `json:"signingKey"`
	Encrypted  bool      `json:"encrypted"`
}

// InboxStatus is the GET /v1/inboxes/{address}/status response: a cheap
// change detector for polling and resync.
type InboxStatus struct {
	EmailCount int    `json:"emailCount"`
	EmailsHash string `json:"emailsHash"`
}

// Message is one encrypted email as the gateway returns it. List responses
// omit SealedBody; the single-message endpoint includes it.
type Message struct {
	ID         string         `json:"id"`
	InboxHash  string         `json:"inboxHash"`
	ReceivedAt time.Time      `json:"receivedAt"`
	IsRead     bool           `json:"isRead"`
	SealedMeta *seal.Envelope `json:"sealedMeta"`
	SealedBody *seal.Envelope `json:"sealedBody,omitempty"`
}

// SourceMessage is the GET .../messages/{id}/source response.
type SourceMessage struct {
	ID           string         `json:"id"`
	SealedSource *seal.Envelope `json:"sealedSource"`
}

// Event is one push-channel notification.
type Event struct {
	InboxHash  string         `json:"inboxHash"`
	MessageID  string         `json:"messageId"`
	SealedMeta *seal.Envelope `json:"sealedMeta,omitempty"`
}
