package hasher_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/custodia-chain/custodia/internal/hasher"
)

// Digest of the three bytes "abc", straight from FIPS 180-2.
const abcDigest = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

func writeFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "evidence.mp4")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSumFile_knownVector(t *testing.T) {
	path := writeFile(t, []byte("abc"))

	got, err := hasher.SumFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != abcDigest {
		t.Errorf("SumFile(): got %q, want %q", got, abcDigest)
	}
}

func TestSumFile_deterministic(t *testing.T) {
	// Larger than one chunk so the streaming path is exercised.
	data := []byte(strings.Repeat("frame-data-", 4096))
	path := writeFile(t, data)

	first, err := hasher.SumFile(path)
	if err != nil {
		t.Fatal(err)
	}
	second, err := hasher.SumFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("digests differ across runs: %q vs %q", first, second)
	}
	if len(first) != 64 || first != strings.ToLower(first) {
		t.Errorf("digest is not 64-char lowercase hex: %q", first)
	}
}

func TestSumFile_singleBitFlipChangesDigest(t *testing.T) {
	data := []byte(strings.Repeat("frame-data-", 1024))
	original, err := hasher.SumFile(writeFile(t, data))
	if err != nil {
		t.Fatal(err)
	}

	data[len(data)/2] ^= 0x01
	flipped, err := hasher.SumFile(writeFile(t, data))
	if err != nil {
		t.Fatal(err)
	}

	if original == flipped {
		t.Error("single-bit flip produced identical digest")
	}
}

func TestSumFile_contentOnly(t *testing.T) {
	// Same bytes under different names must hash identically.
	dir := t.TempDir()
	a := filepath.Join(dir, "a.mp4")
	b := filepath.Join(dir, "b.avi")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, []byte("identical content"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	ha, err := hasher.SumFile(a)
	if err != nil {
		t.Fatal(err)
	}
	hb, err := hasher.SumFile(b)
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Errorf("same content hashed differently: %q vs %q", ha, hb)
	}
}

func TestSumFile_missingFile(t *testing.T) {
	_, err := hasher.SumFile(filepath.Join(t.TempDir(), "nope.mp4"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected wrapped not-exist error, got %v", err)
	}
}
