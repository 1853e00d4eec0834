// Package checksum writes and verifies md5sum-compatible "<file>.md5" files.
package checksum

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Suffix is appended to a file's path to name its checksum file.
const Suffix = ".md5"

// ErrMismatch is returned by Verify when the file no longer matches.
var ErrMismatch = errors.New("checksum mismatch")

// Path returns the checksum file path for path.
func Path(path string) string {
	return path + Suffix
}

// Sum returns the hex md5 digest of the file at path.
func Sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Write hashes path and writes "<digest>  <basename>\n" to path.md5, the
// format md5sum -c accepts when run from the file's directory.
func Write(path string) (string, error) {
	sum, err := Sum(path)
	if err != nil {
		return "", err
	}
	line := fmt.Sprintf("%s  %s\n", sum, filepath.Base(path))
	if err := os.WriteFile(Path(path), []byte(line), 0o644); err != nil {
		return "", fmt.Errorf("failed to write checksum for %s: %w", path, err)
	}
	return sum, nil
}

// Read returns the digest recorded in path.md5.
func Read(path string) (string, error) {
	f, err := os.Open(Path(path))
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("empty checksum file %s", Path(path))
	}
	fields := strings.Fields(sc.Text())
	if len(fields) == 0 {
		return "", fmt.Errorf("malformed checksum file %s", Path(path))
	}
	return fields[0], nil
}

// Verify re-hashes path and compares it with the recorded digest.
func Verify(path string) error {
	want, err := Read(path)
	if err != nil {
		return err
	}
	got, err := Sum(path)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: %s (recorded %s, actual %s)", ErrMismatch, path, want, got)
	}
	return nil
}
