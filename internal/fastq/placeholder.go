package fastq

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// PlaceholderRead is the single record written when a FASTQ slot has no data:
// a sentinel identifier, one N call and the minimum Phred+33 quality.
var PlaceholderRead = Read{
	ID:   "@DIGESTIFLOW_PLACEHOLDER",
	Seq:  "N",
	Unk:  "+",
	Qual: "!",
}

// WritePlaceholder writes the gzip-compressed placeholder record to w. The
// gzip header carries no name or modification time, so the output bytes are
// identical on every call.
func WritePlaceholder(w io.Writer) error {
	gz, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
	if err != nil {
		return err
	}
	read := PlaceholderRead
	if err := NewWriter(gz).Write(&read); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}

// CreatePlaceholder writes a placeholder FASTQ file at path, creating parent
// directories. The file is written to a temporary name first and renamed, so
// a crash never leaves a truncated file at path.
func CreatePlaceholder(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".placeholder-*")
	if err != nil {
		return fmt.Errorf("failed to create placeholder: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WritePlaceholder(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write placeholder: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write placeholder: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
