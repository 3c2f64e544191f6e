package crypto

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/shalteor/quassel-tools/internal/models"
)

const (
	// SaltLength is the number of random bytes in a password salt (512 bits)
	SaltLength = 64
)

var (
	ErrMalformedHash = errors.New("password hash and salt are not in the correct format")
)

// HashPassword returns "<sha512(password+salt) hex>:<salt hex>" with a fresh salt
func HashPassword(password string) (string, error) {
	saltBytes, err := GenerateRandomBytes(SaltLength)
	if err != nil {
		return "", err
	}
	salt := hex.EncodeToString(saltBytes)

	return sha512Hex(password+salt) + ":" + salt, nil
}

// ParseHash splits a stored "hash:salt" value. Both parts must be non-empty hex.
func ParseHash(stored string) (digestHex, salt string, err error) {
	digestHex, salt, ok := strings.Cut(stored, ":")
	if !ok || digestHex == "" || salt == "" {
		return "", "", ErrMalformedHash
	}

	for _, part := range []string{digestHex, salt} {
		if _, err := hex.DecodeString(part); err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrMalformedHash, err)
		}
	}

	return digestHex, salt, nil
}

// CheckPassword verifies password against a stored "hash:salt" value. The
// digest is compared as lowercase hex, the way the core compares it.
// Malformed values never verify.
func CheckPassword(password, stored string) bool {
	digestHex, salt, err := ParseHash(stored)
	if err != nil {
		return false
	}

	return constantTimeCompare([]byte(sha512Hex(password+salt)), []byte(digestHex))
}

// CheckPasswordVersion verifies password using the scheme named by version
func CheckPasswordVersion(password, stored string, version models.HashVersion) bool {
	switch version {
	case models.HashSha2_512:
		return CheckPassword(password, stored)
	case models.HashSha1:
		sum := sha1.Sum([]byte(password))
		return constantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(stored))
	default:
		return false
	}
}

// GenerateRandomBytes generates n random bytes
func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}

func sha512Hex(input string) string {
	sum := sha512.Sum512([]byte(input))
	return hex.EncodeToString(sum[:])
}

// constantTimeCompare performs constant-time comparison of two byte slices
func constantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
