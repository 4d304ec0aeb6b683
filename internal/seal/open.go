package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Open verifies an envelope against the pinned server key and, only if the
// signature checks out, decrypts it with the inbox keypair:
//
//  1. ML-DSA-65 transcript verification (Verify)
//  2. ML-KEM-768 decapsulation of the shared secret
//  3. HKDF-SHA-512 derivation of the AES key
//  4. AES-256-GCM open of the ciphertext
//
// Verification failures surface as ErrServerKeyMismatch or
// ErrSignatureInvalid; anything after step 1 is ErrDecryptFailed territory.
func Open(e *Envelope, keypair *KeyPair, pinnedServerKey []byte) ([]byte, error) {
	if err := e.Verify(pinnedServerKey); err != nil {
		return nil, err
	}
	return decrypt(e, keypair)
}

// OpenPlain verifies an envelope from a plaintext inbox and returns its
// content. Plain envelopes carry unencrypted content in the ciphertext
// field; the signature still covers the full transcript.
func OpenPlain(e *Envelope, pinnedServerKey []byte) ([]byte, error) {
	if err := e.Verify(pinnedServerKey); err != nil {
		return nil, err
	}
	d, err := e.decode()
	if err != nil {
		return nil, err
	}
	return d.ciphertext, nil
}

// decrypt performs steps 2-4 of Open without re-verifying the signature.
func decrypt(e *Envelope, keypair *KeyPair) ([]byte, error) {
	d, err := e.decode()
	if err != nil {
		return nil, err
	}

	shared, err := keypair.Decapsulate(d.ctKem)
	if err != nil {
		return nil, err
	}

	key, err := deriveContentKey(shared, d.aad, d.ctKem)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	return openAESGCM(key, d.nonce, d.aad, d.ciphertext)
}

// deriveContentKey derives the AES-256 key for one envelope.
//
// IKM is the KEM shared secret, the salt is SHA-256 of the KEM
// encapsulation, and the info block is Context || len(aad) (4 bytes BE)
// || aad. This must match the server's derivation byte for byte.
func deriveContentKey(shared, aad, ctKem []byte) ([]byte, error) {
	salt := sha256.Sum256(ctKem)

	info := make([]byte, 0, len(Context)+4+len(aad))
	info = append(info, Context...)
	info = binary.BigEndian.AppendUint32(info, uint32(len(aad)))
	info = append(info, aad...)

	r := hkdf.New(sha512.New, shared, salt[:], info)
	key := make([]byte, AEADKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

func openAESGCM(key, nonce, aad, ciphertext []byte) ([]byte, error) {
	if len(key) != AEADKeySize {
		return nil, fmt.Errorf("%w: key size %d", ErrMalformedKey, len(key))
	}
	if len(nonce) != AEADNonceSize {
		return nil, fmt.Errorf("%w: nonce size %d", ErrMalformedEnvelope, len(nonce))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
