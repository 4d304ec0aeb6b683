package sealbox

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sealbox/client-go/internal/delivery"
	"github.com/sealbox/client-go/internal/gateway"
	"github.com/sealbox/client-go/internal/seal"
)

// TTL constants for inbox creation.
const (
	MinTTL = 60 * time.Second     // Minimum TTL: 1 minute
	MaxTTL = 604800 * time.Second // Maximum TTL: 7 days
)

// eventTimeout is the timeout for fetching and decrypting an email after
// receiving a delivery event.
const eventTimeout = 30 * time.Second

// syncState tracks the synchronization state for an inbox to enable
// efficient reconnection sync using the status endpoint.
type syncState struct {
	seenEmails map[string]struct{} // Set of email IDs already delivered to subscribers
}

// computeEmailsHash computes the hash of seen emails to compare with the
// server's status hash.
// Algorithm: sort IDs alphabetically, join with comma, SHA256, base64url
// encode (no padding).
func (s *syncState) computeEmailsHash() string {
	if len(s.seenEmails) == 0 {
		// Empty set has a specific hash
		hash := sha256.Sum256([]byte(""))
		return base64.RawURLEncoding.EncodeToString(hash[:])
	}

	ids := make([]string, 0, len(s.seenEmails))
	for id := range s.seenEmails {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	joined := strings.Join(ids, ",")
	hash := sha256.Sum256([]byte(joined))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// EncryptionPolicy represents the server's encryption policy for inboxes.
type EncryptionPolicy string

// Encryption policy constants.
const (
	// EncryptionPolicyAlways requires all inboxes to be encrypted.
	EncryptionPolicyAlways EncryptionPolicy = "always"
	// EncryptionPolicyEnabled makes encryption the default, but allows plain inboxes.
	EncryptionPolicyEnabled EncryptionPolicy = "enabled"
	// EncryptionPolicyDisabled makes plain the default, but allows encrypted inboxes.
	EncryptionPolicyDisabled EncryptionPolicy = "disabled"
	// EncryptionPolicyNever requires all inboxes to be plain.
	EncryptionPolicyNever EncryptionPolicy = "never"
)

// ServerInfo contains server configuration.
type ServerInfo struct {
	AllowedDomains   []string
	MaxTTL           time.Duration
	DefaultTTL       time.Duration
	EncryptionPolicy EncryptionPolicy
}

// Client is the main Sealbox client for managing inboxes.
type Client struct {
	gateway       *gateway.Client
	strategy      delivery.Engine
	serverInfo    *gateway.ServerInfo
	log           *logrus.Entry
	inboxes       map[string]*Inbox     // keyed by email address
	inboxesByHash map[string]*Inbox     // keyed by inbox hash for O(1) lookup
	syncStates    map[string]*syncState // keyed by inbox hash for sync optimization
	mu            sync.RWMutex
	closed        bool

	// Subscription manager for email notifications
	subs *subscriptionManager

	strategyCtx    context.Context
	strategyCancel context.CancelFunc

	// Error callback for background sync failures
	onSyncError func(error)
}

// buildGateway creates and configures a transport client from the given config.
func buildGateway(apiKey string, cfg *clientConfig) (*gateway.Client, error) {
	opts := []gateway.Option{
		gateway.WithBaseURL(cfg.baseURL),
	}
	if cfg.timeout > 0 {
		opts = append(opts, gateway.WithTimeout(cfg.timeout))
	}
	if cfg.retries > 0 || len(cfg.retryOn) > 0 {
		policy := gateway.DefaultRetryPolicy()
		if cfg.retries > 0 {
			policy.MaxRetries = cfg.retries
		}
		if len(cfg.retryOn) > 0 {
			policy.RetryOn = cfg.retryOn
		}
		opts = append(opts, gateway.WithRetryPolicy(policy))
	}
	if cfg.httpClient != nil {
		opts = append(opts, gateway.WithHTTPClient(cfg.httpClient))
	}

	return gateway.New(apiKey, opts...)
}

// buildLogger returns the configured logger, or a silent one.
func buildLogger(cfg *clientConfig) *logrus.Entry {
	logger := cfg.logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return logger.WithField("component", "sealbox")
}

// createDeliveryStrategy creates a delivery engine based on the config.
func createDeliveryStrategy(cfg *clientConfig, gw *gateway.Client) delivery.Engine {
	deliveryCfg := delivery.Config{
		Gateway:            gw,
		Log:                cfg.logger,
		PollInterval:       cfg.pollingInitialInterval,
		PollMaxBackoff:     cfg.pollingMaxBackoff,
		PollMultiplier:     cfg.pollingBackoffMultiplier,
		PollJitter:         cfg.pollingJitterFactor,
		PushBaseDelay:      cfg.pushReconnectBaseDelay,
		PushMaxAttempts:    cfg.pushMaxReconnects,
		PushConnectTimeout: cfg.pushConnectTimeout,
	}
	switch cfg.deliveryStrategy {
	case StrategyPolling:
		return delivery.NewPollingEngine(deliveryCfg)
	case StrategyPush:
		return delivery.NewPushEngine(deliveryCfg)
	default:
		return delivery.NewAutoEngine(deliveryCfg)
	}
}

// New creates a new Sealbox client with the given API key.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	cfg := &clientConfig{
		baseURL:          defaultBaseURL,
		deliveryStrategy: StrategyAuto,
		timeout:          defaultWaitTimeout,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	gw, err := buildGateway(apiKey, cfg)
	if err != nil {
		return nil, err
	}

	// Validate API key
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	if err := gw.CheckKey(ctx); err != nil {
		return nil, wrapError(err)
	}

	// Fetch server info
	serverInfo, err := gw.GetServerInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch server info: %w", wrapError(err))
	}

	strategy := createDeliveryStrategy(cfg, gw)

	strategyCtx, strategyCancel := context.WithCancel(context.Background())

	c := &Client{
		gateway:        gw,
		strategy:       strategy,
		serverInfo:     serverInfo,
		log:            buildLogger(cfg),
		inboxes:        make(map[string]*Inbox),
		inboxesByHash:  make(map[string]*Inbox),
		syncStates:     make(map[string]*syncState),
		subs:           newSubscriptionManager(),
		strategyCtx:    strategyCtx,
		strategyCancel: strategyCancel,
		onSyncError:    cfg.onSyncError,
	}

	// A plain push strategy has no fallback; exhaustion is surfaced as a
	// terminal error to everything subscribed.
	if push, ok := strategy.(*delivery.PushEngine); ok {
		push.OnExhausted(c.handlePushExhausted)
	}

	// Start the engine with an event handler
	if err := strategy.Start(strategyCtx, nil, c.handleDeliveryEvent); err != nil {
		strategyCancel()
		return nil, fmt.Errorf("start delivery strategy: %w", err)
	}

	// Register reconnect handler to sync emails after a push channel
	// reconnection. This catches any emails that arrived during the
	// reconnection window.
	strategy.OnReconnect(c.syncAllInboxes)

	return c, nil
}

// checkClosed returns ErrClientClosed if the client has been closed.
func (c *Client) checkClosed() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}

// registerInbox adds an inbox to the client's tracking maps and delivery engine.
func (c *Client) registerInbox(inbox *Inbox) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	c.inboxes[inbox.emailAddress] = inbox
	c.inboxesByHash[inbox.inboxHash] = inbox
	c.syncStates[inbox.inboxHash] = &syncState{
		seenEmails: make(map[string]struct{}),
	}
	c.strategy.AddInbox(delivery.Inbox{
		Hash:    inbox.inboxHash,
		Address: inbox.emailAddress,
	})
	return nil
}

// CreateInbox creates a new temporary email inbox.
//
// For encrypted inboxes the ML-KEM-768 keypair is generated here, on the
// client; only the public key ever leaves the process.
func (c *Client) CreateInbox(ctx context.Context, opts ...InboxOption) (*Inbox, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	cfg := &inboxConfig{
		ttl: time.Hour, // Default 1 hour
	}
	for _, opt := range opts {
		opt(cfg)
	}

	// Validate TTL against limits
	if cfg.ttl > 0 {
		if cfg.ttl < MinTTL {
			return nil, fmt.Errorf("TTL %v is below minimum %v", cfg.ttl, MinTTL)
		}
		serverMaxTTL := time.Duration(c.serverInfo.MaxTTL) * time.Second
		if cfg.ttl > serverMaxTTL {
			return nil, fmt.Errorf("TTL %v exceeds server maximum %v", cfg.ttl, serverMaxTTL)
		}
	}

	req := &gateway.CreateInboxRequest{
		TTL:       int(cfg.ttl / time.Second),
		Address:   cfg.emailAddress,
		EmailAuth: cfg.emailAuth,
	}

	var kp *seal.KeyPair
	if cfg.plaintext {
		req.Encryption = "plain"
	} else {
		var err error
		kp, err = seal.GenerateKeyPair()
		if err != nil {
			return nil, fmt.Errorf("generate keypair: %w", err)
		}
		req.Encryption = "encrypted"
		req.KemPublicKey = seal.EncodeKey(kp.PublicKey)
	}

	resp, err := c.gateway.CreateInbox(ctx, req)
	if err != nil {
		return nil, wrapError(err)
	}

	// The signing key is pinned for the inbox's whole lifetime; every
	// envelope, plain or sealed, must verify against it.
	serverSigPk, err := seal.DecodeKey(resp.SigningKey)
	if err != nil || len(serverSigPk) != seal.SigningKeySize {
		return nil, fmt.Errorf("create inbox: server returned invalid signing key")
	}
	if !resp.Encrypted {
		kp = nil
	}

	inbox := newInboxFromResult(resp, kp, serverSigPk, c)
	inbox.emailAuth = cfg.emailAuth

	if err := c.registerInbox(inbox); err != nil {
		return nil, err
	}

	return inbox, nil
}

// ImportInbox imports a previously exported inbox.
//
// Beyond structural validation, the import verifies the exported server
// signing key against the key the server currently publishes. A mismatch
// means emails in the inbox could not be authenticated and the import is
// refused.
func (c *Client) ImportInbox(ctx context.Context, data *ExportedInbox) (*Inbox, error) {
	if data == nil {
		return nil, fmt.Errorf("exported inbox data cannot be nil")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}

	// Check for duplicate
	if _, exists := c.inboxes[data.EmailAddress]; exists {
		c.mu.Unlock()
		return nil, ErrInboxAlreadyExists
	}
	c.mu.Unlock()

	inbox, err := newInboxFromExport(data, c)
	if err != nil {
		return nil, err
	}

	if inbox.encrypted {
		if data.ServerSigPk != c.serverInfo.SigningKey {
			return nil, &ServerKeyMismatchError{
				Pinned:   data.ServerSigPk,
				Received: c.serverInfo.SigningKey,
			}
		}
	} else {
		// Plain inboxes do not export the signing key; pin the one the
		// server currently publishes.
		sigPk, err := seal.DecodeKey(c.serverInfo.SigningKey)
		if err != nil || len(sigPk) != seal.SigningKeySize {
			return nil, fmt.Errorf("%w: server published invalid signing key", ErrInvalidImportData)
		}
		inbox.serverSigPk = sigPk
	}

	// Verify inbox still exists on server
	if _, err := c.gateway.GetInboxStatus(ctx, inbox.emailAddress); err != nil {
		return nil, fmt.Errorf("verify inbox: %w", wrapError(err))
	}

	if err := c.registerInbox(inbox); err != nil {
		return nil, err
	}

	return inbox, nil
}

// DeleteInbox deletes an inbox by email address.
func (c *Client) DeleteInbox(ctx context.Context, emailAddress string) error {
	c.mu.Lock()
	inbox, exists := c.inboxes[emailAddress]
	if exists {
		delete(c.inboxes, emailAddress)
		delete(c.inboxesByHash, inbox.inboxHash)
		delete(c.syncStates, inbox.inboxHash)
		c.strategy.RemoveInbox(inbox.inboxHash)
	}
	c.mu.Unlock()

	return wrapError(c.gateway.DeleteInbox(ctx, emailAddress))
}

// DeleteAllInboxes deletes all inboxes owned by the client's API key and
// returns how many were removed.
func (c *Client) DeleteAllInboxes(ctx context.Context) (int, error) {
	c.mu.Lock()
	for email, inbox := range c.inboxes {
		c.strategy.RemoveInbox(inbox.inboxHash)
		delete(c.inboxes, email)
		delete(c.inboxesByHash, inbox.inboxHash)
		delete(c.syncStates, inbox.inboxHash)
	}
	c.mu.Unlock()

	count, err := c.gateway.DeleteAllInboxes(ctx)
	return count, wrapError(err)
}

// GetInbox returns an inbox by email address.
func (c *Client) GetInbox(emailAddress string) (*Inbox, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inbox, exists := c.inboxes[emailAddress]
	return inbox, exists
}

// Inboxes returns all inboxes managed by this client.
func (c *Client) Inboxes() []*Inbox {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*Inbox, 0, len(c.inboxes))
	for _, inbox := range c.inboxes {
		result = append(result, inbox)
	}
	return result
}

// ServerInfo returns the server configuration.
func (c *Client) ServerInfo() *ServerInfo {
	return &ServerInfo{
		AllowedDomains:   c.serverInfo.AllowedDomains,
		MaxTTL:           time.Duration(c.serverInfo.MaxTTL) * time.Second,
		DefaultTTL:       time.Duration(c.serverInfo.DefaultTTL) * time.Second,
		EncryptionPolicy: EncryptionPolicy(c.serverInfo.EncryptionPolicy),
	}
}

// CheckKey validates the API key.
// Returns nil if the key is valid, otherwise returns an error.
func (c *Client) CheckKey(ctx context.Context) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	return wrapError(c.gateway.CheckKey(ctx))
}

// ExportInboxToFile exports an inbox to a JSON file with secure permissions (0600).
func (c *Client) ExportInboxToFile(inbox *Inbox, filePath string) error {
	if inbox == nil {
		return fmt.Errorf("inbox is nil")
	}

	data := inbox.Export()

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal inbox data: %w", err)
	}

	if err := os.WriteFile(filePath, jsonData, 0600); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}

// ImportInboxFromFile imports an inbox from a JSON file.
// Returns the imported inbox or an error if the file cannot be read or parsed.
func (c *Client) ImportInboxFromFile(ctx context.Context, filePath string) (*Inbox, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	jsonData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var data ExportedInbox
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return nil, fmt.Errorf("parse inbox data: %w", err)
	}

	return c.ImportInbox(ctx, &data)
}

// InboxEvent represents an email arriving in a specific inbox.
type InboxEvent struct {
	Inbox *Inbox
	Email *Email
}

// WatchInboxes returns a channel that receives events from multiple inboxes.
// The channel is not closed when the context is cancelled; use a select
// on ctx.Done() to detect cancellation.
//
// Example:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
//	defer cancel()
//
//	ch := client.WatchInboxes(ctx, inbox1, inbox2)
//	for {
//	    select {
//	    case <-ctx.Done():
//	        return
//	    case event := <-ch:
//	        fmt.Printf("Email in %s: %s\n", event.Inbox.EmailAddress(), event.Email.Subject)
//	    }
//	}
func (c *Client) WatchInboxes(ctx context.Context, inboxes ...*Inbox) <-chan *InboxEvent {
	ch := make(chan *InboxEvent, 16)

	if len(inboxes) == 0 {
		close(ch)
		return ch
	}

	// Track unsubscribe functions
	unsubscribes := make([]func(), 0, len(inboxes))

	for _, inbox := range inboxes {
		inbox := inbox
		unsub := c.subs.subscribe(inbox.inboxHash, func(email *Email, err error) {
			if err != nil || email == nil {
				return
			}
			// Spawn goroutine to guarantee delivery without blocking event source
			go func(e *Email) { ch <- &InboxEvent{Inbox: inbox, Email: e} }(email)
		})
		unsubscribes = append(unsubscribes, unsub)
	}

	// Cleanup goroutine: unsubscribe when context is cancelled.
	// We intentionally do not close(ch) to avoid a race where an
	// in-flight handler tries to send after close.
	go func() {
		<-ctx.Done()
		for _, unsub := range unsubscribes {
			unsub()
		}
	}()

	return ch
}

// WatchInboxesFunc calls fn for each event from multiple inboxes until context is cancelled.
// This is a convenience wrapper around WatchInboxes for simpler use cases.
//
// Example:
//
//	client.WatchInboxesFunc(ctx, func(event *sealbox.InboxEvent) {
//	    fmt.Printf("Email in %s: %s\n", event.Inbox.EmailAddress(), event.Email.Subject)
//	}, inbox1, inbox2)
func (c *Client) WatchInboxesFunc(ctx context.Context, fn func(*InboxEvent), inboxes ...*Inbox) {
	events := c.WatchInboxes(ctx, inboxes...)
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			if event != nil {
				fn(event)
			}
		}
	}
}

// MonitorInboxes returns an event-emitter style monitor over the given
// inboxes.
func (c *Client) MonitorInboxes(inboxes ...*Inbox) *InboxMonitor {
	return newInboxMonitor(c, inboxes)
}

// registerEmailCallback subscribes fn to one inbox's fully decrypted
// emails. Used by InboxMonitor.
func (c *Client) registerEmailCallback(inboxHash string, fn func(*Inbox, *Email)) func() {
	return c.subs.subscribe(inboxHash, func(email *Email, err error) {
		if err != nil || email == nil {
			return
		}
		c.mu.RLock()
		inbox := c.inboxesByHash[inboxHash]
		c.mu.RUnlock()
		if inbox != nil {
			fn(inbox, email)
		}
	})
}

// overridePollInterval forwards a one-shot poll interval tightening to
// the delivery engine, when the active engine supports it.
func (c *Client) overridePollInterval(inboxHash string, interval time.Duration) {
	if o, ok := c.strategy.(delivery.IntervalOverrider); ok {
		o.OverrideInterval(inboxHash, interval)
	}
}

// syncAllInboxes fetches emails for all tracked inboxes and notifies watchers.
// This is called after a push channel reconnection to catch any emails
// that arrived during the reconnection window.
func (c *Client) syncAllInboxes(ctx context.Context) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	// Copy inbox list to avoid holding lock during API calls
	inboxes := make([]*Inbox, 0, len(c.inboxes))
	for _, inbox := range c.inboxes {
		inboxes = append(inboxes, inbox)
	}
	c.mu.RUnlock()

	for _, inbox := range inboxes {
		c.syncInbox(ctx, inbox)
	}
}

// reportSyncError routes background failures to the configured callback
// and the log.
func (c *Client) reportSyncError(err error) {
	c.log.WithError(err).Warn("background sync failure")
	if c.onSyncError != nil {
		c.onSyncError(err)
	}
}

// syncInbox reconciles one inbox against the server and notifies
// subscribers of anything not yet delivered. It compares the hash of the
// locally seen email IDs with the server's status hash before fetching,
// and handles deletions by dropping IDs no longer on the server.
func (c *Client) syncInbox(ctx context.Context, inbox *Inbox) {
	c.mu.RLock()
	state := c.syncStates[inbox.inboxHash]
	var localHash string
	if state != nil {
		localHash = state.computeEmailsHash()
	}
	c.mu.RUnlock()

	if state == nil {
		// Inbox was deleted or not registered, skip
		return
	}

	// Check status first (lightweight call)
	status, err := inbox.GetStatus(ctx)
	if err != nil {
		c.reportSyncError(err)
		return
	}

	// If hash unchanged, no changes - skip fetching
	if status.EmailsHash == localHash {
		return
	}

	// Hash changed - fetch metadata only to find changes
	metadata, err := inbox.GetEmailsMetadataOnly(ctx)
	if err != nil {
		if isSecurityError(err) {
			c.subs.notify(inbox.inboxHash, nil, err)
			return
		}
		c.reportSyncError(err)
		return
	}

	// Build set of server email IDs
	serverIDs := make(map[string]struct{}, len(metadata))
	for _, m := range metadata {
		serverIDs[m.ID] = struct{}{}
	}

	c.mu.Lock()
	state = c.syncStates[inbox.inboxHash]
	if state == nil {
		c.mu.Unlock()
		return
	}

	// Find new emails (on server but not in seenEmails)
	var newEmailIDs []string
	for id := range serverIDs {
		if _, seen := state.seenEmails[id]; !seen {
			newEmailIDs = append(newEmailIDs, id)
		}
	}

	// Find and remove deleted emails (in seenEmails but not on server)
	for id := range state.seenEmails {
		if _, exists := serverIDs[id]; !exists {
			delete(state.seenEmails, id)
		}
	}
	c.mu.Unlock()

	sort.Strings(newEmailIDs)
	for _, emailID := range newEmailIDs {
		if err := c.deliverEmail(ctx, inbox, emailID); err != nil {
			c.reportSyncError(err)
		}
	}
}

// deliverEmail fetches, decrypts and delivers one email to the inbox's
// subscribers, recording it as seen. Duplicate deliveries (push event
// followed by a reconnect sync, or a polling fallback replay) are dropped
// here.
func (c *Client) deliverEmail(ctx context.Context, inbox *Inbox, emailID string) error {
	c.mu.RLock()
	state := c.syncStates[inbox.inboxHash]
	seen := false
	if state != nil {
		_, seen = state.seenEmails[emailID]
	}
	c.mu.RUnlock()
	if state == nil || seen {
		return nil
	}

	msg, err := c.gateway.GetMessage(ctx, inbox.emailAddress, emailID)
	if err != nil {
		return wrapError(err)
	}

	email, decErr := inbox.decryptEmail(ctx, msg)
	if decErr != nil && isSecurityError(decErr) {
		// Tampering evidence is delivered, never recorded as seen.
		c.subs.notify(inbox.inboxHash, nil, decErr)
		return decErr
	}

	c.mu.Lock()
	if state = c.syncStates[inbox.inboxHash]; state != nil {
		state.seenEmails[emailID] = struct{}{}
	}
	c.mu.Unlock()
	if state == nil {
		return nil
	}

	c.subs.notify(inbox.inboxHash, email, decErr)
	return nil
}

// handleDeliveryEvent processes one event from the delivery engine.
func (c *Client) handleDeliveryEvent(ctx context.Context, event *gateway.Event) {
	if event == nil {
		return
	}

	c.mu.RLock()
	inbox := c.inboxesByHash[event.InboxHash]
	c.mu.RUnlock()
	if inbox == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, eventTimeout)
	defer cancel()

	if err := c.deliverEmail(ctx, inbox, event.MessageID); err != nil {
		c.reportSyncError(err)
	}
}

// handlePushExhausted surfaces a terminal push channel failure to every
// subscriber. Only installed for StrategyPush; StrategyAuto falls back to
// polling instead.
func (c *Client) handlePushExhausted(err error) {
	wrapped := wrapPushError(err)
	c.log.WithError(wrapped).Error("push channel terminally failed")

	c.mu.RLock()
	hashes := make([]string, 0, len(c.inboxesByHash))
	for hash := range c.inboxesByHash {
		hashes = append(hashes, hash)
	}
	c.mu.RUnlock()

	for _, hash := range hashes {
		c.subs.notify(hash, nil, wrapped)
	}
	if c.onSyncError != nil {
		c.onSyncError(wrapped)
	}
}

// Close closes the client and releases resources.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.strategyCancel
	strategy := c.strategy
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	// Stop waits for in-flight deliveries, and those take c.mu
	// themselves, so the lock must not be held across it.
	var stopErr error
	if strategy != nil {
		stopErr = strategy.Stop()
	}

	c.mu.Lock()
	c.inboxes = make(map[string]*Inbox)
	c.inboxesByHash = make(map[string]*Inbox)
	c.mu.Unlock()
	c.subs.clear()

	return stopErr
}
