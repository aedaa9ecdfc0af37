// Package hasher computes streaming SHA-256 digests of evidence files.
//
// Digests are 64-character lowercase hex strings and depend only on file
// content — never on path, name, or timestamps. Files are read in bounded
// chunks so memory use is independent of file size.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// chunkSize is the read buffer size used when streaming a file through
// the digest.
const chunkSize = 4096

// SumFile returns the hex-encoded SHA-256 digest of the file at path.
func SumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open evidence file: %w", err)
	}
	defer f.Close()

	digest, err := Sum(f)
	if err != nil {
		return "", fmt.Errorf("read evidence file %s: %w", path, err)
	}
	return digest, nil
}

// Sum returns the hex-encoded SHA-256 digest of everything read from r.
func Sum(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
