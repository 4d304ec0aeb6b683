package seal

import (
	"bytes"
	"errors"
	"testing"
)

func TestGenerateKeyPair(t *testing.T) {
	t.Parallel()

	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	if len(kp.PublicKey) != KEMPublicKeySize {
		t.Errorf("public key size = %d, want %d", len(kp.PublicKey), KEMPublicKeySize)
	}
	if len(kp.SecretKey) != KEMSecretKeySize {
		t.Errorf("secret key size = %d, want %d", len(kp.SecretKey), KEMSecretKeySize)
	}
}

func TestDerivePublicKey_MatchesGenerated(t *testing.T) {
	t.Parallel()

	for i := 0; i < 5; i++ {
		kp, err := GenerateKeyPair()
		if err != nil {
			t.Fatal(err)
		}

		derived, err := DerivePublicKey(kp.SecretKey)
		if err != nil {
			t.Fatalf("DerivePublicKey() error = %v", err)
		}
		if !bytes.Equal(derived, kp.PublicKey) {
			t.Fatal("derived public key differs from generated public key")
		}
	}
}

func TestDerivePublicKey_WrongSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"short", KEMSecretKeySize - 1},
		{"long", KEMSecretKeySize + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DerivePublicKey(make([]byte, tt.size))
			if !errors.Is(err, ErrMalformedKey) {
				t.Errorf("DerivePublicKey() error = %v, want ErrMalformedKey", err)
			}
		})
	}
}

func TestKeyPairFromSecret_RoundTrip(t *testing.T) {
	t.Parallel()

	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	restored, err := KeyPairFromSecret(kp.SecretKey)
	if err != nil {
		t.Fatalf("KeyPairFromSecret() error = %v", err)
	}
	if !bytes.Equal(restored.PublicKey, kp.PublicKey) {
		t.Error("restored public key differs")
	}
	if !bytes.Equal(restored.SecretKey, kp.SecretKey) {
		t.Error("restored secret key differs")
	}
}

func TestVerifyServerKey(t *testing.T) {
	t.Parallel()

	a := make([]byte, SigningKeySize)
	b := make([]byte, SigningKeySize)
	a[0] = 1

	if err := VerifyServerKey(a, a); err != nil {
		t.Errorf("VerifyServerKey(same) error = %v", err)
	}
	if err := VerifyServerKey(a, b); !errors.Is(err, ErrServerKeyMismatch) {
		t.Errorf("VerifyServerKey(diff) error = %v, want ErrServerKeyMismatch", err)
	}
	if err := VerifyServerKey(a[:10], a); !errors.Is(err, ErrMalformedKey) {
		t.Errorf("VerifyServerKey(short) error = %v, want ErrMalformedKey", err)
	}
}

func TestDecapsulate_WrongCiphertextSize(t *testing.T) {
	t.Parallel()

	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	_, err = kp.Decapsulate(make([]byte, 10))
	if !errors.Is(err, ErrMalformedCiphertext) {
		t.Errorf("Decapsulate() error = %v, want ErrMalformedCiphertext", err)
	}
}
