package seal

import (
	"fmt"

	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

// Envelope is the sealed payload structure the server produces for every
// piece of encrypted inbox content. All byte fields are unpadded base64url.
type Envelope struct {
	// V is the envelope format version.
	V int `json:"v"`
	// Algs names the algorithm suite the envelope was sealed with.
	Algs Algs `json:"algs"`
	// CtKem is the ML-KEM-768 encapsulation.
	CtKem string `json:"ct_kem"`
	// Nonce is the AES-GCM nonce.
	Nonce string `json:"nonce"`
	// AAD is the additional authenticated data.
	AAD string `json:"aad"`
	// Ciphertext is the AES-GCM sealed content.
	Ciphertext string `json:"ciphertext"`
	// Sig is the ML-DSA-65 signature over the envelope transcript.
	Sig string `json:"sig"`
	// ServerSigPk is the server's ML-DSA-65 public key.
	ServerSigPk string `json:"server_sig_pk"`
}

// Algs identifies the algorithm suite of an envelope.
type Algs struct {
	KEM  string `json:"kem"`
	Sig  string `json:"sig"`
	AEAD string `json:"aead"`
	KDF  string `json:"kdf"`
}

// decoded holds the raw byte fields of an envelope after base64 decoding.
type decoded struct {
	ctKem      []byte
	nonce      []byte
	aad        []byte
	ciphertext []byte
	sig        []byte
	serverKey  []byte
}

func (e *Envelope) decode() (*decoded, error) {
	d := &decoded{}
	for _, f := range []struct {
		name string
		src  string
		dst  *[]byte
	}{
		{"ct_kem", e.CtKem, &d.ctKem},
		{"nonce", e.Nonce, &d.nonce},
		{"aad", e.AAD, &d.aad},
		{"ciphertext", e.Ciphertext, &d.ciphertext},
		{"sig", e.Sig, &d.sig},
		{"server_sig_pk", e.ServerSigPk, &d.serverKey},
	} {
		b, err := DecodeKey(f.src)
		if err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrMalformedEnvelope, f.name, err)
		}
		*f.dst = b
	}
	return d, nil
}

// Verify checks the envelope signature against pinnedServerKey.
//
// The embedded server key must equal the pinned key (ErrServerKeyMismatch
// otherwise) and the ML-DSA-65 signature must verify over the transcript
// (ErrSignatureInvalid otherwise). Both failures are security errors:
// fatal for the payload, never retried.
func (e *Envelope) Verify(pinnedServerKey []byte) error {
	d, err := e.decode()
	if err != nil {
		return err
	}

	if err := VerifyServerKey(d.serverKey, pinnedServerKey); err != nil {
		return err
	}

	var pub mldsa65.PublicKey
	if err := pub.UnmarshalBinary(d.serverKey); err != nil {
		return fmt.Errorf("%w: unmarshal signing key: %v", ErrMalformedEnvelope, err)
	}

	if !mldsa65.Verify(&pub, e.transcript(d), nil, d.sig) {
		return ErrSignatureInvalid
	}
	return nil
}

// transcript rebuilds the byte string the server signed:
// version byte, ciphersuite, context, then the raw envelope fields.
func (e *Envelope) transcript(d *decoded) []byte {
	suite := fmt.Sprintf("%s:%s:%s:%s", e.Algs.KEM, e.Algs.Sig, e.Algs.AEAD, e.Algs.KDF)

	t := make([]byte, 0, 1+len(suite)+len(Context)+
		len(d.ctKem)+len(d.nonce)+len(d.aad)+len(d.ciphertext)+len(d.serverKey))
	t = append(t, byte(e.V))
	t = append(t, suite...)
	t = append(t, Context...)
	t = append(t, d.ctKem...)
	t = append(t, d.nonce...)
	t = append(t, d.aad...)
	t = append(t, d.ciphertext...)
	t = append(t, d.serverKey...)
	return t
}

// ValidServerKey reports whether a base64url-encoded server signing key
// decodes to the expected ML-DSA-65 size.
func ValidServerKey(encoded string) bool {
	key, err := DecodeKey(encoded)
	return err == nil && len(key) == SigningKeySize
}
