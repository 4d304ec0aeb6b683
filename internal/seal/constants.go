package seal

const (
	// Context is the domain-separation string used in both the HKDF info
	// block and the signature transcript.
	Context = "sealbox:mail:v1"

	// KEMPublicKeySize is the size of an ML-KEM-768 public key in bytes.
	KEMPublicKeySize = 1184
	// KEMSecretKeySize is the size of an ML-KEM-768 secret key in bytes.
	KEMSecretKeySize = 2400
	// KEMCiphertextSize is the size of an ML-KEM-768 encapsulation in bytes.
	KEMCiphertextSize = 1088
	// KEMSharedSecretSize is the size of the decapsulated shared secret in bytes.
	KEMSharedSecretSize = 32

	// SigningKeySize is the size of an ML-DSA-65 public key in bytes.
	SigningKeySize = 1952
	// SignatureSize is the size of an ML-DSA-65 signature in bytes.
	SignatureSize = 3309

	// AEADKeySize is the AES-256 key size in bytes.
	AEADKeySize = 32
	// AEADNonceSize is the AES-GCM nonce size in bytes.
	AEADNonceSize = 12
	// AEADTagSize is the AES-GCM authentication tag size in bytes.
	AEADTagSize = 16

	// publicKeyOffset is where circl embeds the public key inside an
	// ML-KEM-768 secret key.
	publicKeyOffset = 1152
)

// Ciphersuite is the canonical string form of the algorithm suite, as it
// appears in the signature transcript.
const Ciphersuite = "ML-KEM-768:ML-DSA-65:AES-256-GCM:HKDF-SHA-512"
