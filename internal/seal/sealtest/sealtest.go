// Package sealtest builds valid Sealbox envelopes for tests. It implements
// the server side of the envelope format (encapsulate, derive, encrypt,
// sign) so decrypt paths can be exercised without a live server.
package sealtest

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"io"
	"testing"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"golang.org/x/crypto/hkdf"

	"github.com/sealbox/client-go/internal/seal"
)

// Sealer holds a server-side ML-DSA-65 signing keypair and seals payloads
// the way the Sealbox server does.
type Sealer struct {
	// SigningKey is the raw public signing key, to be pinned by inboxes
	// under test.
	SigningKey []byte

	signSecret *mldsa65.PrivateKey
}

// NewSealer creates a Sealer with a fresh signing keypair.
func NewSealer(t *testing.T) *Sealer {
	t.Helper()

	pub, sec, err := mldsa65.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate signing key: %v", err)
	}
	pubBytes, _ := pub.MarshalBinary()
	return &Sealer{SigningKey: pubBytes, signSecret: sec}
}

// Seal encrypts plaintext for the recipient public key and signs the
// envelope transcript with the sealer's signing key.
func (s *Sealer) Seal(t *testing.T, plaintext, recipientPub, aad []byte) *seal.Envelope {
	t.Helper()

	env, err := s.seal(plaintext, recipientPub, aad)
	if err != nil {
		t.Fatalf("seal payload: %v", err)
	}
	return env
}

// SealCorrupted returns an envelope whose signature bytes are flipped, for
// exercising verification failure paths.
func (s *Sealer) SealCorrupted(t *testing.T, plaintext, recipientPub, aad []byte) *seal.Envelope {
	t.Helper()

	env := s.Seal(t, plaintext, recipientPub, aad)
	sig, _ := seal.DecodeKey(env.Sig)
	sig[0] ^= 0xff
	env.Sig = seal.EncodeKey(sig)
	return env
}

func (s *Sealer) seal(plaintext, recipientPub, aad []byte) (*seal.Envelope, error) {
	var pub mlkem768.PublicKey
	if err := pub.Unpack(recipientPub); err != nil {
		return nil, fmt.Errorf("unpack recipient key: %w", err)
	}

	ctKem := make([]byte, mlkem768.CiphertextSize)
	shared := make([]byte, mlkem768.SharedKeySize)
	pub.EncapsulateTo(ctKem, shared, nil)

	salt := sha256.Sum256(ctKem)
	info := make([]byte, 0, len(seal.Context)+4+len(aad))
	info = append(info, seal.Context...)
	info = binary.BigEndian.AppendUint32(info, uint32(len(aad)))
	info = append(info, aad...)

	key := make([]byte, seal.AEADKeySize)
	if _, err := io.ReadFull(hkdf.New(sha512.New, shared, salt[:], info), key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, seal.AEADNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, aad)

	env := &seal.Envelope{
		V: 1,
		Algs: seal.Algs{
			KEM:  "ML-KEM-768",
			Sig:  "ML-DSA-65",
			AEAD: "AES-256-GCM",
			KDF:  "HKDF-SHA-512",
		},
		CtKem:       seal.EncodeKey(ctKem),
		Nonce:       seal.EncodeKey(nonce),
		AAD:         seal.EncodeKey(aad),
		Ciphertext:  seal.EncodeKey(ciphertext),
		ServerSigPk: seal.EncodeKey(s.SigningKey),
	}

	sig := make([]byte, mldsa65.SignatureSize)
	mldsa65.SignTo(s.signSecret, transcript(env, ctKem, nonce, aad, ciphertext, s.SigningKey), nil, false, sig)
	env.Sig = seal.EncodeKey(sig)
	return env, nil
}

// transcript mirrors the signed byte string layout in the seal package.
func transcript(env *seal.Envelope, ctKem, nonce, aad, ciphertext, serverKey []byte) []byte {
	suite := fmt.Sprintf("%s:%s:%s:%s", env.Algs.KEM, env.Algs.Sig, env.Algs.AEAD, env.Algs.KDF)

	t := []byte{byte(env.V)}
	t = append(t, suite...)
	t = append(t, seal.Context...)
	t = append(t, ctKem...)
	t = append(t, nonce...)
	t = append(t, aad...)
	t = append(t, ciphertext...)
	t = append(t, serverKey...)
	return t
}
