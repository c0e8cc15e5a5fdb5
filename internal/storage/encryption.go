package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"outreach_gateway/internal/models"
)

const (
	// AlgorithmAESGCM seals with the master key directly.
	AlgorithmAESGCM = "aes-gcm"
	// AlgorithmAESGCMHKDFv1 seals with a 256-bit key derived from the master key.
	AlgorithmAESGCMHKDFv1 = "aes-gcm+hkdf-sha256-v1"

	hkdfInfoV1 = "outreach-gateway/credential/v1"
)

var (
	// ErrDecrypt matches every *DecryptError
	ErrDecrypt = errors.New("credential decryption failed")

	// ErrEmptyPlaintext is returned when Encrypt is called with ""
	ErrEmptyPlaintext = errors.New("refusing to encrypt empty plaintext")

	// ErrNoCredential is returned by Decrypt for a nil or empty credential
	ErrNoCredential = errors.New("no credential")
)

// DecryptError reports a credential that could not be opened: tampered data,
// a wrong key, or an algorithm this build does not know.
type DecryptError struct {
	Algorithm string
	Reason    string
	Err       error
}

func (e *DecryptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decrypt %s: %s: %v", e.Algorithm, e.Reason, e.Err)
	}
	return fmt.Sprintf("decrypt %s: %s", e.Algorithm, e.Reason)
}

func (e *DecryptError) Unwrap() error { return e.Err }

func (e *DecryptError) Is(target error) bool { return target == ErrDecrypt }

// Encryption provides AES-GCM encryption/decryption for provider credentials
type Encryption struct {
	keys      map[string][]byte // algorithm id -> data key
	algorithm string            // used for new credentials
}

// NewEncryption creates a new encryption service with the given key
// The key should be 16, 24, or 32 bytes for AES-128, AES-192, or AES-256
func NewEncryption(key []byte) (*Encryption, error) {
	if len(key) != 16 && len(key) != 24 && len(key) != 32 {
		return nil, fmt.Errorf("invalid key size: must be 16, 24, or 32 bytes, got %d", len(key))
	}

	derived := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, []byte(hkdfInfoV1)), derived); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	return &Encryption{
		keys: map[string][]byte{
			AlgorithmAESGCM:       key,
			AlgorithmAESGCMHKDFv1: derived,
		},
		algorithm: AlgorithmAESGCM,
	}, nil
}

// NewEncryptionFromBase64 creates a new encryption service from a base64-encoded key
func NewEncryptionFromBase64(encodedKey string) (*Encryption, error) {
	if encodedKey == "" {
		return nil, fmt.Errorf("encryption key cannot be empty")
	}

	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 key: %w", err)
	}

	return NewEncryption(key)
}

// GenerateKey generates a new random encryption key of the specified size
// Returns the key as a base64-encoded string for easy storage in environment variables
func GenerateKey(keySize int) (string, error) {
	if keySize != 16 && keySize != 24 && keySize != 32 {
		return "", fmt.Errorf("invalid key size: must be 16, 24, or 32 bytes")
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate random key: %w", err)
	}

	return base64.StdEncoding.EncodeToString(key), nil
}

// UseAlgorithm switches the algorithm used for new credentials. Existing
// credentials keep decrypting with whatever algorithm they name.
func (e *Encryption) UseAlgorithm(algorithm string) error {
	if _, ok := e.keys[algorithm]; !ok {
		return fmt.Errorf("unsupported algorithm %q", algorithm)
	}
	e.algorithm = algorithm
	return nil
}

// Algorithm returns the algorithm used for new credentials
func (e *Encryption) Algorithm() string {
	return e.algorithm
}

func (e *Encryption) aead(algorithm string) (cipher.AEAD, error) {
	key, ok := e.keys[algorithm]
	if !ok {
		return nil, fmt.Errorf("unsupported algorithm %q", algorithm)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext under a fresh random IV.
func (e *Encryption) Encrypt(plaintext string) (*models.Credential, error) {
	if plaintext == "" {
		return nil, ErrEmptyPlaintext
	}

	gcm, err := e.aead(e.algorithm)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends the tag to the ciphertext; store them separately.
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	split := len(sealed) - gcm.Overhead()

	return &models.Credential{
		Algorithm:  e.algorithm,
		IV:         base64.StdEncoding.EncodeToString(nonce),
		Tag:        base64.StdEncoding.EncodeToString(sealed[split:]),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed[:split]),
	}, nil
}

// Decrypt opens a credential produced by Encrypt.
func (e *Encryption) Decrypt(cred *models.Credential) (string, error) {
	if cred == nil || cred.Ciphertext == "" {
		return "", ErrNoCredential
	}

	gcm, err := e.aead(cred.Algorithm)
	if err != nil {
		return "", &DecryptError{Algorithm: cred.Algorithm, Reason: "unrecognized algorithm"}
	}

	nonce, err := base64.StdEncoding.DecodeString(cred.IV)
	if err != nil || len(nonce) != gcm.NonceSize() {
		return "", &DecryptError{Algorithm: cred.Algorithm, Reason: "malformed iv", Err: err}
	}
	tag, err := base64.StdEncoding.DecodeString(cred.Tag)
	if err != nil || len(tag) != gcm.Overhead() {
		return "", &DecryptError{Algorithm: cred.Algorithm, Reason: "malformed tag", Err: err}
	}
	ciphertext, err := base64.StdEncoding.DecodeString(cred.Ciphertext)
	if err != nil {
		return "", &DecryptError{Algorithm: cred.Algorithm, Reason: "malformed ciphertext", Err: err}
	}

	plaintext, err := gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", &DecryptError{Algorithm: cred.Algorithm, Reason: "authentication failed", Err: err}
	}

	return string(plaintext), nil
}
