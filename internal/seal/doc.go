// Package seal implements the client side of the Sealbox envelope format:
// ML-KEM-768 key management, ML-DSA-65 signature verification over the
// envelope transcript, and HKDF-SHA-512 + AES-256-GCM payload decryption.
//
// The ciphersuite is fixed. A payload is accepted only when its signature
// verifies against the server signing key pinned at inbox creation, and
// verification always precedes decryption.
package seal
