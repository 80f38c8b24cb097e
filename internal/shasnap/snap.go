// Package shasnap fingerprints content with SHA-512 "snapshots".
//
// A snapshot is the lowercase hex encoding of the SHA-512 digest of some bytes.
// Two snapshots are equal exactly when the content is (for all practical purposes),
// which makes them a cheap change detector for configuration and data files.
package shasnap

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// DigestLen is the length of a snapshot string (hex of 64 bytes).
const DigestLen = sha512.Size * 2

// ShortLen is the prefix length used by Short.
const ShortLen = 12

// Snap returns the snapshot of data.
func Snap(data []byte) string {
	sum := sha512.Sum512(data)
	return hex.EncodeToString(sum[:])
}

// SnapString returns the snapshot of s.
func SnapString(s string) string {
	return Snap([]byte(s))
}

// SnapReader streams r into the hash and returns its snapshot.
func SnapReader(r io.Reader) (string, error) {
	h := sha512.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SnapFile returns the snapshot of the file at path and its size.
func SnapFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha512.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Changed reports whether data no longer matches the snapshot prev.
// An empty prev always counts as changed.
func Changed(prev string, data []byte) bool {
	return prev == "" || prev != Snap(data)
}

// Short returns the first ShortLen characters of a snapshot for display.
func Short(digest string) string {
	if len(digest) <= ShortLen {
		return digest
	}
	return digest[:ShortLen]
}

// Valid reports whether s looks like a snapshot produced by this package.
func Valid(s string) bool {
	if len(s) != DigestLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
