// Package cryptoutils provides the asymmetric sealing helpers used by the
// guardian client to encrypt share payloads for their holders. The recovery
// core itself never touches these: it custodies the resulting blobs
// opaquely.
package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const hkdfInfo = "guardian-share-sealing-v1"

// GenerateKeyPair generates a P-256 key pair for a guardian.
//
// Returns:
//   - Private key in PEM format (kept by the guardian)
//   - Public key in PEM format (given to the owner for share sealing)
//   - Error if key generation fails
func GenerateKeyPair() ([]byte, []byte, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key: %w", err)
	}

	privateKeyBytes, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	privateKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "EC PRIVATE KEY",
		Bytes: privateKeyBytes,
	})

	publicKeyBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	publicKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicKeyBytes,
	})

	return privateKeyPEM, publicKeyPEM, nil
}

// EncryptWithPublicKey seals plaintext for the holder of the given P-256
// public key. An ephemeral key agreement feeds HKDF-SHA256 into AES-GCM;
// the output is ephemeralPubkey || nonce || ciphertext.
func EncryptWithPublicKey(publicKeyPEM, plaintext []byte) ([]byte, error) {
	recipient, err := parsePublicKey(publicKeyPEM)
	if err != nil {
		return nil, err
	}

	ephemeral, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	shared, err := ephemeral.ECDH(recipient)
	if err != nil {
		return nil, fmt.Errorf("key agreement failed: %w", err)
	}

	gcm, err := sealCipher(shared)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ephemeralBytes := ephemeral.PublicKey().Bytes()
	out := make([]byte, 0, len(ephemeralBytes)+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, ephemeralBytes...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// DecryptWithPrivateKey opens a blob sealed by EncryptWithPublicKey using
// the holder's P-256 private key.
func DecryptWithPrivateKey(privateKeyPEM, sealed []byte) ([]byte, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, errors.New("failed to decode private key PEM")
	}
	ecKey, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	privateKey, err := ecKey.ECDH()
	if err != nil {
		return nil, fmt.Errorf("unsupported private key: %w", err)
	}

	// Uncompressed P-256 point: 0x04 || X || Y.
	const ephemeralLen = 65
	if len(sealed) < ephemeralLen {
		return nil, errors.New("sealed blob too short")
	}
	ephemeral, err := ecdh.P256().NewPublicKey(sealed[:ephemeralLen])
	if err != nil {
		return nil, fmt.Errorf("invalid ephemeral key: %w", err)
	}

	shared, err := privateKey.ECDH(ephemeral)
	if err != nil {
		return nil, fmt.Errorf("key agreement failed: %w", err)
	}

	gcm, err := sealCipher(shared)
	if err != nil {
		return nil, err
	}

	rest := sealed[ephemeralLen:]
	if len(rest) < gcm.NonceSize() {
		return nil, errors.New("sealed blob too short")
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open sealed blob: %w", err)
	}
	return plaintext, nil
}

// parsePublicKey parses a PEM PKIX P-256 public key into its ECDH form.
func parsePublicKey(publicKeyPEM []byte) (*ecdh.PublicKey, error) {
	block, _ := pem.Decode(publicKeyPEM)
	if block == nil {
		return nil, errors.New("failed to decode public key PEM")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	ecdsaKey, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not an ECDSA key")
	}
	return ecdsaKey.ECDH()
}

// sealCipher derives the AES-GCM AEAD from a shared secret via HKDF-SHA256.
func sealCipher(shared []byte) (cipher.AEAD, error) {
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, shared, nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}

	blockCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(blockCipher)
}
