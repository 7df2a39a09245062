// Package crypto provides cryptographic utilities for Barrett Share.
package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Token lengths.
const (
	// LinkIDLength is the character length of a generated link id.
	// 32 base62 characters carry ~190 bits of entropy, which makes
	// enumeration of other users' links computationally infeasible.
	LinkIDLength = 32

	// StorageKeyBytes is the byte length of a generated storage key.
	StorageKeyBytes = 20
)

// linkIDChars contains the characters used in link ids (base62).
const linkIDChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateLinkID generates a random link id suitable for use as a public
// download capability. Link ids are never derived from record ids.
// Example: "tDq4K9sVxWm2nZrLpBcYhGfJ8aEuQ0Rd"
func GenerateLinkID() (string, error) {
	return generateRandomString(LinkIDLength, linkIDChars)
}

// GenerateStorageKey generates a random hex storage key for blob placement.
// The key is opaque to everything outside the storage layer.
func GenerateStorageKey() (string, error) {
	key := make([]byte, StorageKeyBytes)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate storage key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// generateRandomString generates a random string of the specified length
// using characters from the provided character set.
func generateRandomString(length int, charset string) (string, error) {
	result := make([]byte, length)
	charsetLen := len(charset)

	// Generate random bytes
	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	// Map to charset
	for i := 0; i < length; i++ {
		result[i] = charset[int(randomBytes[i])%charsetLen]
	}

	return string(result), nil
}
