package storage

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach_gateway/internal/models"
)

func testEncryption(t *testing.T) *Encryption {
	t.Helper()

	// Generate a 32-byte key (AES-256)
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	enc, err := NewEncryption(key)
	if err != nil {
		t.Fatalf("Failed to create encryption: %v", err)
	}
	return enc
}

func TestEncryption(t *testing.T) {
	enc := testEncryption(t)

	plaintext := "my-secret-api-key-12345"
	cred, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	if cred.Algorithm != AlgorithmAESGCM {
		t.Errorf("Algorithm = %s, want %s", cred.Algorithm, AlgorithmAESGCM)
	}
	if cred.IV == "" || cred.Tag == "" || cred.Ciphertext == "" {
		t.Fatalf("Credential is missing fields: %+v", cred)
	}

	decrypted, err := enc.Decrypt(cred)
	if err != nil {
		t.Fatalf("Failed to decrypt: %v", err)
	}

	if decrypted != plaintext {
		t.Errorf("Decrypted text doesn't match original. Got %s, want %s", decrypted, plaintext)
	}
}

func TestEncryption_RandomizedIV(t *testing.T) {
	enc := testEncryption(t)

	first, err := enc.Encrypt("same-plaintext")
	require.NoError(t, err)
	second, err := enc.Encrypt("same-plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, first.IV, second.IV)
	assert.NotEqual(t, first.Ciphertext+first.Tag, second.Ciphertext+second.Tag)

	for _, c := range []*models.Credential{first, second} {
		got, err := enc.Decrypt(c)
		require.NoError(t, err)
		assert.Equal(t, "same-plaintext", got)
	}
}

func TestEncryption_RoundTripInputs(t *testing.T) {
	enc := testEncryption(t)

	inputs := []string{
		"a",
		"sk-proj-0123456789abcdefghijklmnopqrstuvwxyz",
		"päss wörd with ünïcode 🔑",
		string(make([]byte, 4096)) + "tail",
	}

	for _, in := range inputs {
		cred, err := enc.Encrypt(in)
		require.NoError(t, err)
		out, err := enc.Decrypt(cred)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestEncryption_Tamper(t *testing.T) {
	enc := testEncryption(t)

	cred, err := enc.Encrypt("tamper-me")
	require.NoError(t, err)

	ct, _ := base64.StdEncoding.DecodeString(cred.Ciphertext)
	ct[0] ^= 0xFF
	tampered := *cred
	tampered.Ciphertext = base64.StdEncoding.EncodeToString(ct)

	_, err = enc.Decrypt(&tampered)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecrypt))

	var decErr *DecryptError
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, "authentication failed", decErr.Reason)

	badTag := *cred
	badTag.Tag = base64.StdEncoding.EncodeToString(make([]byte, 16))
	_, err = enc.Decrypt(&badTag)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestEncryption_UnknownAlgorithm(t *testing.T) {
	enc := testEncryption(t)

	cred, err := enc.Encrypt("secret")
	require.NoError(t, err)

	cred.Algorithm = "rot13"
	_, err = enc.Decrypt(cred)
	require.ErrorIs(t, err, ErrDecrypt)
	assert.Contains(t, err.Error(), "unrecognized algorithm")
}

func TestEncryption_WrongKey(t *testing.T) {
	enc := testEncryption(t)
	cred, err := enc.Encrypt("secret")
	require.NoError(t, err)

	other, err := NewEncryption(make([]byte, 32))
	require.NoError(t, err)

	_, err = other.Decrypt(cred)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestEncryption_MissingCredential(t *testing.T) {
	enc := testEncryption(t)

	_, err := enc.Decrypt(nil)
	assert.ErrorIs(t, err, ErrNoCredential)
	assert.False(t, errors.Is(err, ErrDecrypt), "absent credential is not a decrypt error")

	_, err = enc.Decrypt(&models.Credential{Algorithm: AlgorithmAESGCM})
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestEncryption_EmptyPlaintext(t *testing.T) {
	enc := testEncryption(t)

	_, err := enc.Encrypt("")
	assert.ErrorIs(t, err, ErrEmptyPlaintext)
}

func TestEncryption_AlgorithmVersioning(t *testing.T) {
	enc := testEncryption(t)

	legacy, err := enc.Encrypt("rotating")
	require.NoError(t, err)

	require.NoError(t, enc.UseAlgorithm(AlgorithmAESGCMHKDFv1))
	assert.Equal(t, AlgorithmAESGCMHKDFv1, enc.Algorithm())

	current, err := enc.Encrypt("rotating")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmAESGCMHKDFv1, current.Algorithm)

	// Both generations stay readable.
	for _, c := range []*models.Credential{legacy, current} {
		got, err := enc.Decrypt(c)
		require.NoError(t, err)
		assert.Equal(t, "rotating", got)
	}

	// A credential sealed with the derived key does not open under the raw key.
	forged := *current
	forged.Algorithm = AlgorithmAESGCM
	_, err = enc.Decrypt(&forged)
	assert.ErrorIs(t, err, ErrDecrypt)

	assert.Error(t, enc.UseAlgorithm("des"))
}

func TestEncryptionFromBase64(t *testing.T) {
	keyBase64, err := GenerateKey(32)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	enc, err := NewEncryptionFromBase64(keyBase64)
	if err != nil {
		t.Fatalf("Failed to create encryption from base64: %v", err)
	}

	cred, err := enc.Encrypt("test-data")
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	decrypted, err := enc.Decrypt(cred)
	if err != nil {
		t.Fatalf("Failed to decrypt: %v", err)
	}

	if decrypted != "test-data" {
		t.Errorf("Decrypted text doesn't match original")
	}

	if _, err := NewEncryptionFromBase64(""); err == nil {
		t.Error("Expected error for empty key")
	}
	if _, err := NewEncryptionFromBase64("not base64!"); err == nil {
		t.Error("Expected error for invalid base64")
	}
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey(32)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		t.Fatalf("Generated key is not valid base64: %v", err)
	}

	if len(decoded) != 32 {
		t.Errorf("Generated key has wrong length. Got %d, want 32", len(decoded))
	}
}

func TestInvalidKeySize(t *testing.T) {
	_, err := NewEncryption([]byte("too-short"))
	if err == nil {
		t.Error("Expected error for invalid key size")
	}

	_, err = GenerateKey(20)
	if err == nil {
		t.Error("Expected error for invalid key size in GenerateKey")
	}
}
