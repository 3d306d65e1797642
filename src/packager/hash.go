package packager

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// ErrUnsupportedHash is returned for hash types other than SHA512, SHA256,
// and SHA1.
var ErrUnsupportedHash = errors.New("unsupported hash type")

// FileHash computes the hex digest of the file at path using the named hash
// type (SHA512, SHA256, or SHA1, case-insensitive). SHA1 is only kept because
// some package registries still require it.
func FileHash(path, hashType string) (string, error) {
	var h hash.Hash
	switch strings.ToLower(hashType) {
	case "sha512":
		h = sha512.New()
	case "sha256":
		h = sha256.New()
	case "sha1":
		h = sha1.New()
	default:
		return "", fmt.Errorf("%w: %q, use SHA512, SHA256, or SHA1", ErrUnsupportedHash, hashType)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
