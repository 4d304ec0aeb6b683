package seal

import "errors"

var (
	// ErrMalformedKey is returned when key material has the wrong length.
	ErrMalformedKey = errors.New("malformed key material")

	// ErrMalformedCiphertext is returned when a KEM encapsulation has the
	// wrong length.
	ErrMalformedCiphertext = errors.New("malformed kem ciphertext")

	// ErrSignatureInvalid is returned when the envelope signature does not
	// verify against the pinned server key.
	ErrSignatureInvalid = errors.New("envelope signature invalid")

	// ErrServerKeyMismatch is returned when an envelope carries a server
	// signing key different from the one pinned at inbox creation.
	ErrServerKeyMismatch = errors.New("server signing key mismatch")

	// ErrDecryptFailed is returned when AEAD decryption fails.
	ErrDecryptFailed = errors.New("decryption failed")

	// ErrMalformedEnvelope is returned when an envelope field does not
	// decode or has the wrong size.
	ErrMalformedEnvelope = errors.New("malformed envelope")
)
