package export

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"hapdb/internal/parser"
	"hapdb/internal/storage"

	"github.com/rs/zerolog/log"
)

// Stdout as a FileSink path writes to standard output.
const Stdout = "-"

// FileSink writes a batch as a single .jsonl.gz file.
type FileSink struct {
	Path    string
	Encoder *Encoder

	stdout io.Writer
}

func NewFileSink(path string) *FileSink {
	return &FileSink{Path: path, Encoder: NewEncoder(), stdout: os.Stdout}
}

// SetStdout redirects the "-" destination.
func (s *FileSink) SetStdout(w io.Writer) {
	s.stdout = w
}

func (s *FileSink) Ingest(ctx context.Context, source string, records []parser.Record) (*storage.IngestRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := s.Encoder.EncodeJSONLGZ(records)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", source, err)
	}

	if s.Path == Stdout {
		if _, err := s.stdout.Write(data); err != nil {
			return nil, fmt.Errorf("write stdout: %w", err)
		}
	} else if err := writeFileAtomic(s.Path, data); err != nil {
		return nil, err
	}

	log.Info().Str("source", source).Str("path", s.Path).Int("records", len(records)).Int("bytes", len(data)).Msg("exported records")
	return newRun(source, s.Path, len(records)), nil
}

// writeFileAtomic writes to a temp file next to path and renames it
// into place so readers never see a partial export.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

func newRun(source, location string, n int) *storage.IngestRun {
	return &storage.IngestRun{
		ID:        generateRunID(),
		Source:    source,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
		Records:   n,
		Location:  location,
	}
}

func generateRunID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
