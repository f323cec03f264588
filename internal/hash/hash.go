// Package hash computes content identifiers.
//
// Blobs in the repository and files in the working directory share one
// identifier space: the hex-encoded SHA-256 of the raw bytes. Two files with
// the same content id are byte-identical, which lets the merge engine compare
// working-copy content against repository content without reading blobs.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Hasher provides an abstraction for content hashing.
type Hasher interface {
	// HashFile computes the content id of the file at the given path.
	HashFile(path string) (string, error)

	// HashBytes computes the content id of data.
	HashBytes(data []byte) string
}

// SHA256Hasher implements Hasher using SHA-256.
type SHA256Hasher struct{}

// NewSHA256Hasher creates a new SHA256Hasher.
func NewSHA256Hasher() *SHA256Hasher {
	return &SHA256Hasher{}
}

// HashFile computes the SHA-256 content id of the file at the given path.
func (h *SHA256Hasher) HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// HashBytes computes the SHA-256 content id of data.
func (h *SHA256Hasher) HashBytes(data []byte) string {
	return Sum(data)
}

// Sum is the package-level form of SHA256Hasher.HashBytes.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Short returns the first n characters of a content id, for display.
func Short(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[:n]
}

// FakeHasher implements Hasher with predetermined file hashes for testing.
// HashBytes still returns the real SHA-256 so repository content ids stay
// consistent with what tests write to stores.
type FakeHasher struct {
	hashes map[string]string
}

// NewFakeHasher creates a new FakeHasher.
func NewFakeHasher() *FakeHasher {
	return &FakeHasher{
		hashes: make(map[string]string),
	}
}

// SetHash sets the hash for a specific path (for testing).
func (h *FakeHasher) SetHash(path, hash string) {
	h.hashes[path] = hash
}

// HashFile returns the predetermined hash for the given path.
func (h *FakeHasher) HashFile(path string) (string, error) {
	if hash, ok := h.hashes[path]; ok {
		return hash, nil
	}
	return "", fmt.Errorf("no fake hash for %s: %w", path, os.ErrNotExist)
}

// HashBytes returns the SHA-256 content id of data.
func (h *FakeHasher) HashBytes(data []byte) string {
	return Sum(data)
}
