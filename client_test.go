package sealbox

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sealbox/client-go/internal/seal"
	"github.com/sealbox/client-go/internal/seal/sealtest"
)

const testAPIKey = "sk_test_0123456789"

// fakeServer is an in-memory Sealbox API that seals real envelopes, so
// the full verify-and-decrypt pipeline runs in tests.
type fakeServer struct {
	t      *testing.T
	sealer *sealtest.Sealer

	mu      sync.Mutex
	nextID  int
	inboxes map[string]*fakeInbox // by address
}

type fakeInbox struct {
	address   string
	hash      string
	kemPub    []byte
	expiresAt time.Time
	messages  []*fakeMessage
}

type fakeMessage struct {
	id     string
	meta   *seal.Envelope
	body   *seal.Envelope
	source *seal.Envelope
	isRead bool
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{
		t:       t,
		sealer:  sealtest.NewSealer(t),
		inboxes: make(map[string]*fakeInbox),
	}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)
	return fs, srv
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+testAPIKey {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid api key"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/v1/ping":
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case r.URL.Path == "/v1/server":
		writeJSON(w, http.StatusOK, map[string]any{
			"signingKey":        seal.EncodeKey(f.sealer.SigningKey),
			"context":           seal.Context,
			"maxTtlSeconds":     604800,
			"defaultTtlSeconds": 3600,
			"allowedDomains":    []string{"sealbox.dev"},
			"encryptionPolicy":  "enabled",
		})
	case r.URL.Path == "/v1/inboxes" && r.Method == http.MethodPost:
		f.handleCreate(w, r)
	case r.URL.Path == "/v1/inboxes" && r.Method == http.MethodDelete:
		n := len(f.inboxes)
		f.inboxes = make(map[string]*fakeInbox)
		writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
	case strings.HasPrefix(r.URL.Path, "/v1/inboxes/"):
		f.handleInbox(w, r)
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
	}
}

func (f *fakeServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		KemPublicKey string `json:"kemPublicKey"`
		TTL          int    `json:"ttlSeconds"`
		Address      string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad request"})
		return
	}

	address := req.Address
	if address == "" {
		f.nextID++
		address = fmt.Sprintf("inbox%d@sealbox.dev", f.nextID)
	}
	kemPub, err := seal.DecodeKey(req.KemPublicKey)
	if err != nil || len(kemPub) != seal.KEMPublicKeySize {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid kem public key"})
		return
	}

	in := &fakeInbox{
		address:   address,
		hash:      "hash-" + address,
		kemPub:    kemPub,
		expiresAt: time.Now().Add(time.Duration(req.TTL) * time.Second),
	}
	f.inboxes[address] = in

	writeJSON(w, http.StatusOK, map[string]any{
		"address":    in.address,
		"inboxHash":  in.hash,
		"expiresAt":  in.expiresAt.UTC().Format(time.RFC3339),
		"createdAt":  time.Now().UTC().Format(time.RFC3339),
		"signingKey": seal.EncodeKey(f.sealer.SigningKey),
		"encrypted":  true,
	})
}

func (f *fakeServer) handleInbox(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/v1/inboxes/"), "/")
	in := f.inboxes[parts[0]]
	if in == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "inbox not found"})
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodDelete:
		delete(f.inboxes, in.address)
		writeJSON(w, http.StatusOK, map[string]any{})
	case len(parts) == 2 && parts[1] == "status":
		writeJSON(w, http.StatusOK, map[string]any{
			"emailCount": len(in.messages),
			"emailsHash": in.emailsHash(),
		})
	case len(parts) == 2 && parts[1] == "messages":
		list := make([]map[string]any, 0, len(in.messages))
		for _, m := range in.messages {
			list = append(list, m.toJSON(false))
		}
		writeJSON(w, http.StatusOK, list)
	case len(parts) >= 3 && parts[1] == "messages":
		msg := in.findMessage(parts[2])
		if msg == nil {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "email not found"})
			return
		}
		switch {
		case len(parts) == 3 && r.Method == http.MethodGet:
			writeJSON(w, http.StatusOK, msg.toJSON(true))
		case len(parts) == 3 && r.Method == http.MethodDelete:
			in.removeMessage(msg.id)
			writeJSON(w, http.StatusOK, map[string]any{})
		case len(parts) == 4 && parts[3] == "source":
			writeJSON(w, http.StatusOK, map[string]any{
				"id":           msg.id,
				"sealedSource": msg.source,
			})
		case len(parts) == 4 && parts[3] == "read" && r.Method == http.MethodPatch:
			msg.isRead = true
			writeJSON(w, http.StatusOK, map[string]any{})
		default:
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
		}
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
	}
}

func (in *fakeInbox) emailsHash() string {
	ids := make([]string, 0, len(in.messages))
	for _, m := range in.messages {
		ids = append(ids, m.id)
	}
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, ",")))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func (in *fakeInbox) findMessage(id string) *fakeMessage {
	for _, m := range in.messages {
		if m.id == id {
			return m
		}
	}
	return nil
}

func (in *fakeInbox) removeMessage(id string) {
	for i, m := range in.messages {
		if m.id == id {
			in.messages = append(in.messages[:i], in.messages[i+1:]...)
			return
		}
	}
}

func (m *fakeMessage) toJSON(full bool) map[string]any {
	out := map[string]any{
		"id":         m.id,
		"receivedAt": time.Now().UTC().Format(time.RFC3339),
		"isRead":     m.isRead,
		"sealedMeta": m.meta,
	}
	if full {
		out["sealedBody"] = m.body
	}
	return out
}

// testEmail describes one email to inject into the fake server.
type testEmail struct {
	from    string
	subject string
	text    string
	html    string
	links   []string
	// extraBody merges additional fields (headers, attachments,
	// authResults, spamAnalysis) into the sealed body payload.
	extraBody map[string]any
	// corruptSignature makes the metadata envelope fail verification.
	corruptSignature bool
	// corruptBody makes only the body envelope undecryptable.
	corruptBody bool
}

// addEmail seals an email into the named inbox and returns its ID.
func (f *fakeServer) addEmail(t *testing.T, address string, e testEmail) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	in := f.inboxes[address]
	if in == nil {
		t.Fatalf("no such inbox %q", address)
	}

	f.nextID++
	id := fmt.Sprintf("email-%d", f.nextID)

	metaJSON, _ := json.Marshal(map[string]any{
		"from":       e.from,
		"to":         address,
		"subject":    e.subject,
		"receivedAt": time.Now().UTC().Format(time.RFC3339),
	})
	body := map[string]any{
		"text":  e.text,
		"html":  e.html,
		"links": e.links,
	}
	for k, v := range e.extraBody {
		body[k] = v
	}
	bodyJSON, _ := json.Marshal(body)
	raw := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", e.from, address, e.subject, e.text)

	aad := []byte(id)
	msg := &fakeMessage{id: id}
	if e.corruptSignature {
		msg.meta = f.sealer.SealCorrupted(t, metaJSON, in.kemPub, aad)
	} else {
		msg.meta = f.sealer.Seal(t, metaJSON, in.kemPub, aad)
	}
	if e.corruptBody {
		// Sealed to an unrelated recipient: the signature verifies but
		// decapsulation yields the wrong content key and AEAD open fails.
		msg.body = f.sealer.Seal(t, bodyJSON, garbageRecipient(t), aad)
	} else {
		msg.body = f.sealer.Seal(t, bodyJSON, in.kemPub, aad)
	}
	msg.source = f.sealer.Seal(t, []byte(raw), in.kemPub, aad)
	in.messages = append(in.messages, msg)
	return id
}

// garbageRecipient returns a valid but unrelated recipient key, so the
// inbox under test cannot recover the content key.
func garbageRecipient(t *testing.T) []byte {
	t.Helper()
	kp, err := seal.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	return kp.PublicKey
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// newTestClient builds a client against the fake server with fast polling.
func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithBaseURL(srv.URL),
		WithDeliveryStrategy(StrategyPolling),
		WithPollingInitialInterval(5 * time.Millisecond),
		WithPollingMaxBackoff(25 * time.Millisecond),
		WithTimeout(5 * time.Second),
	}
	client, err := New(testAPIKey, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New("")
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestNewRejectsInvalidAPIKey(t *testing.T) {
	_, srv := newFakeServer(t)
	_, err := New("sk_wrong_key", WithBaseURL(srv.URL), WithTimeout(2*time.Second))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestCreateInboxGeneratesKeysClientSide(t *testing.T) {
	fs, srv := newFakeServer(t)
	client := newTestClient(t, srv)

	inbox, err := client.CreateInbox(context.Background())
	if err != nil {
		t.Fatalf("CreateInbox: %v", err)
	}

	if inbox.EmailAddress() == "" || inbox.InboxHash() == "" {
		t.Fatalf("inbox missing identity: %+v", inbox)
	}
	if !inbox.IsEncrypted() {
		t.Fatal("inbox not encrypted")
	}
	if inbox.IsExpired() {
		t.Fatal("fresh inbox reported expired")
	}

	// The server only ever saw the public key.
	fs.mu.Lock()
	stored := fs.inboxes[inbox.EmailAddress()].kemPub
	fs.mu.Unlock()
	if len(stored) != seal.KEMPublicKeySize {
		t.Fatalf("server stored key of size %d", len(stored))
	}

	got, ok := client.GetInbox(inbox.EmailAddress())
	if !ok || got != inbox {
		t.Fatal("GetInbox did not return the created inbox")
	}
	if n := len(client.Inboxes()); n != 1 {
		t.Fatalf("Inboxes() = %d entries, want 1", n)
	}
}

func TestCreateInboxValidatesTTL(t *testing.T) {
	_, srv := newFakeServer(t)
	client := newTestClient(t, srv)

	if _, err := client.CreateInbox(context.Background(), WithTTL(time.Second)); err == nil {
		t.Fatal("sub-minimum TTL accepted")
	}
	if _, err := client.CreateInbox(context.Background(), WithTTL(30*24*time.Hour)); err == nil {
		t.Fatal("TTL above server maximum accepted")
	}
}

func TestServerInfo(t *testing.T) {
	_, srv := newFakeServer(t)
	client := newTestClient(t, srv)

	info := client.ServerInfo()
	if info.MaxTTL != 604800*time.Second {
		t.Errorf("MaxTTL = %v", info.MaxTTL)
	}
	if info.DefaultTTL != 3600*time.Second {
		t.Errorf("DefaultTTL = %v", info.DefaultTTL)
	}
	if info.EncryptionPolicy != EncryptionPolicyEnabled {
		t.Errorf("EncryptionPolicy = %q", info.EncryptionPolicy)
	}
	if len(info.AllowedDomains) != 1 || info.AllowedDomains[0] != "sealbox.dev" {
		t.Errorf("AllowedDomains = %v", info.AllowedDomains)
	}
}

func TestDeleteInboxStopsTracking(t *testing.T) {
	fs, srv := newFakeServer(t)
	client := newTestClient(t, srv)

	inbox, err := client.CreateInbox(context.Background())
	if err != nil {
		t.Fatalf("CreateInbox: %v", err)
	}
	if err := inbox.Delete(context.Background()); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, ok := client.GetInbox(inbox.EmailAddress()); ok {
		t.Fatal("deleted inbox still tracked")
	}
	fs.mu.Lock()
	_, exists := fs.inboxes[inbox.EmailAddress()]
	fs.mu.Unlock()
	if exists {
		t.Fatal("inbox still on server")
	}
}

func TestDeleteAllInboxes(t *testing.T) {
	_, srv := newFakeServer(t)
	client := newTestClient(t, srv)

	for range 3 {
		if _, err := client.CreateInbox(context.Background()); err != nil {
			t.Fatalf("CreateInbox: %v", err)
		}
	}
	n, err := client.DeleteAllInboxes(context.Background())
	if err != nil {
		t.Fatalf("DeleteAllInboxes: %v", err)
	}
	if n != 3 {
		t.Fatalf("deleted = %d, want 3", n)
	}
	if len(client.Inboxes()) != 0 {
		t.Fatal("inboxes still tracked after DeleteAllInboxes")
	}
}

func TestClosedClientRejectsOperations(t *testing.T) {
	_, srv := newFakeServer(t)
	client := newTestClient(t, srv)

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := client.CreateInbox(context.Background()); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("CreateInbox after Close: %v, want ErrClientClosed", err)
	}
	if err := client.CheckKey(context.Background()); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("CheckKey after Close: %v, want ErrClientClosed", err)
	}
	// Closing twice is fine.
	if err := client.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestExportInboxToFileUsesRestrictivePermissions(t *testing.T) {
	_, srv := newFakeServer(t)
	client := newTestClient(t, srv)

	inbox, err := client.CreateInbox(context.Background())
	if err != nil {
		t.Fatalf("CreateInbox: %v", err)
	}

	path := filepath.Join(t.TempDir(), "inbox.json")
	if err := client.ExportInboxToFile(inbox, path); err != nil {
		t.Fatalf("ExportInboxToFile: %v", err)
	}

	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := st.Mode().Perm(); perm != 0o600 {
		t.Fatalf("file mode = %o, want 600", perm)
	}

	var data ExportedInbox
	raw, _ := os.ReadFile(path)
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if data.EmailAddress != inbox.EmailAddress() {
		t.Fatalf("exported address = %q", data.EmailAddress)
	}
}

func TestImportInboxFromFileRoundTrip(t *testing.T) {
	fs, srv := newFakeServer(t)
	client := newTestClient(t, srv)

	inbox, err := client.CreateInbox(context.Background())
	if err != nil {
		t.Fatalf("CreateInbox: %v", err)
	}
	path := filepath.Join(t.TempDir(), "inbox.json")
	if err := client.ExportInboxToFile(inbox, path); err != nil {
		t.Fatalf("ExportInboxToFile: %v", err)
	}

	// A second client (fresh process, same account) restores the inbox
	// and can decrypt emails sealed to the original keypair.
	client2 := newTestClient(t, srv)
	restored, err := client2.ImportInboxFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ImportInboxFromFile: %v", err)
	}
	if restored.EmailAddress() != inbox.EmailAddress() {
		t.Fatalf("restored address = %q", restored.EmailAddress())
	}

	fs.addEmail(t, inbox.EmailAddress(), testEmail{from: "a@example.com", subject: "hi", text: "body"})
	emails, err := restored.GetEmails(context.Background())
	if err != nil {
		t.Fatalf("GetEmails on restored inbox: %v", err)
	}
	if len(emails) != 1 || emails[0].Subject != "hi" {
		t.Fatalf("restored inbox emails = %+v", emails)
	}
}

func TestImportInboxRejectsDuplicate(t *testing.T) {
	_, srv := newFakeServer(t)
	client := newTestClient(t, srv)

	inbox, err := client.CreateInbox(context.Background())
	if err != nil {
		t.Fatalf("CreateInbox: %v", err)
	}
	if _, err := client.ImportInbox(context.Background(), inbox.Export()); !errors.Is(err, ErrInboxAlreadyExists) {
		t.Fatalf("duplicate import: %v, want ErrInboxAlreadyExists", err)
	}
}

func TestImportInboxRejectsForeignServerKey(t *testing.T) {
	_, srv := newFakeServer(t)
	client := newTestClient(t, srv)

	inbox, err := client.CreateInbox(context.Background())
	if err != nil {
		t.Fatalf("CreateInbox: %v", err)
	}

	exported := inbox.Export()
	exported.EmailAddress = "other@sealbox.dev"
	foreign := sealtest.NewSealer(t)
	exported.ServerSigPk = seal.EncodeKey(foreign.SigningKey)

	if _, err := client.ImportInbox(context.Background(), exported); !errors.Is(err, ErrServerKeyMismatch) {
		t.Fatalf("foreign-key import: %v, want ErrServerKeyMismatch", err)
	}
}

func TestSyncStateEmailsHash(t *testing.T) {
	s := &syncState{seenEmails: map[string]struct{}{}}

	empty := sha256.Sum256([]byte(""))
	if got, want := s.computeEmailsHash(), base64.RawURLEncoding.EncodeToString(empty[:]); got != want {
		t.Fatalf("empty hash = %q, want %q", got, want)
	}

	s.seenEmails["b"] = struct{}{}
	s.seenEmails["a"] = struct{}{}
	sum := sha256.Sum256([]byte("a,b"))
	if got, want := s.computeEmailsHash(), base64.RawURLEncoding.EncodeToString(sum[:]); got != want {
		t.Fatalf("hash = %q, want %q (IDs must be sorted)", got, want)
	}
}

func TestWatchInboxesDeliversAcrossInboxes(t *testing.T) {
	fs, srv := newFakeServer(t)
	client := newTestClient(t, srv)

	inbox1, err := client.CreateInbox(context.Background())
	if err != nil {
		t.Fatalf("CreateInbox: %v", err)
	}
	inbox2, err := client.CreateInbox(context.Background())
	if err != nil {
		t.Fatalf("CreateInbox: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := client.WatchInboxes(ctx, inbox1, inbox2)

	fs.addEmail(t, inbox1.EmailAddress(), testEmail{from: "x@example.com", subject: "one"})
	fs.addEmail(t, inbox2.EmailAddress(), testEmail{from: "y@example.com", subject: "two"})

	got := map[string]string{}
	for range 2 {
		select {
		case ev := <-events:
			got[ev.Inbox.EmailAddress()] = ev.Email.Subject
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out, got %v", got)
		}
	}
	if got[inbox1.EmailAddress()] != "one" || got[inbox2.EmailAddress()] != "two" {
		t.Fatalf("events = %v", got)
	}
}

func TestCloseWithDeliveriesInFlight(t *testing.T) {
	fs, srv := newFakeServer(t)
	client := newTestClient(t, srv)

	inbox, err := client.CreateInbox(context.Background())
	if err != nil {
		t.Fatalf("CreateInbox: %v", err)
	}

	arrived := make(chan struct{})
	var once sync.Once
	client.subs.subscribe(inbox.inboxHash, func(email *Email, err error) {
		once.Do(func() { close(arrived) })
		time.Sleep(50 * time.Millisecond)
	})

	fs.addEmail(t, inbox.EmailAddress(), testEmail{from: "a@example.com", subject: "in flight", text: "x"})

	select {
	case <-arrived:
	case <-time.After(5 * time.Second):
		t.Fatal("email never delivered")
	}

	// Close stops the engine while the delivery goroutine is still
	// busy; it must not hold the client lock across that wait.
	done := make(chan error, 1)
	go func() { done <- client.Close() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return with a delivery in flight")
	}
}
