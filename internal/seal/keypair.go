package seal

import (
	"bytes"
	"io"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
)

// randSource is the entropy source for key generation. Nil means
// crypto/rand; tests may substitute a deterministic reader.
var randSource io.Reader

// KeyPair holds an ML-KEM-768 keypair in raw byte form.
type KeyPair struct {
	// PublicKey is the raw ML-KEM-768 public key.
	PublicKey []byte
	// SecretKey is the raw ML-KEM-768 secret key. The public key is
	// embedded in its trailing bytes and can always be re-derived.
	SecretKey []byte
}

// GenerateKeyPair produces a fresh ML-KEM-768 keypair. It fails only when
// the entropy source fails.
func GenerateKeyPair() (*KeyPair, error) {
	pub, sec, err := mlkem768.GenerateKeyPair(randSource)
	if err != nil {
		return nil, err
	}

	// MarshalBinary cannot fail for keys produced by GenerateKeyPair.
	pubBytes, _ := pub.MarshalBinary()
	secBytes, _ := sec.MarshalBinary()

	return &KeyPair{PublicKey: pubBytes, SecretKey: secBytes}, nil
}

// KeyPairFromSecret rebuilds a keypair from the secret key alone, deriving
// the public key from the embedded sub-range.
func KeyPairFromSecret(secretKey []byte) (*KeyPair, error) {
	pub, err := DerivePublicKey(secretKey)
	if err != nil {
		return nil, err
	}
	return &KeyPair{PublicKey: pub, SecretKey: secretKey}, nil
}

// DerivePublicKey extracts the public key embedded in an ML-KEM-768 secret
// key. Returns ErrMalformedKey when the secret key has the wrong size.
func DerivePublicKey(secretKey []byte) ([]byte, error) {
	if len(secretKey) != KEMSecretKeySize {
		return nil, ErrMalformedKey
	}
	pub := make([]byte, KEMPublicKeySize)
	copy(pub, secretKey[publicKeyOffset:publicKeyOffset+KEMPublicKeySize])
	return pub, nil
}

// VerifyServerKey checks a received server signing key against the expected
// pinned key. A mismatch is ErrServerKeyMismatch and must be treated as
// fatal by the caller, never retried.
func VerifyServerKey(received, expected []byte) error {
	if len(received) != SigningKeySize || len(expected) != SigningKeySize {
		return ErrMalformedKey
	}
	if !bytes.Equal(received, expected) {
		return ErrServerKeyMismatch
	}
	return nil
}

// Decapsulate recovers the shared secret from a KEM encapsulation.
func (k *KeyPair) Decapsulate(encapsulated []byte) ([]byte, error) {
	if len(encapsulated) != KEMCiphertextSize {
		return nil, ErrMalformedCiphertext
	}

	var sec mlkem768.PrivateKey
	if err := sec.Unpack(k.SecretKey); err != nil {
		return nil, ErrMalformedKey
	}

	shared := make([]byte, KEMSharedSecretSize)
	sec.DecapsulateTo(shared, encapsulated)
	return shared, nil
}
