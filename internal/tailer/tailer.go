package tailer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/nxadm/tail"
	"github.com/rs/zerolog/log"
)

// maxLineSize bounds a single line read from a compressed file.
const maxLineSize = 1024 * 1024

// ReadLines returns every line of the file at path. Files ending in .gz
// (logrotate output) are decompressed on the fly.
func ReadLines(ctx context.Context, path string) ([]string, error) {
	if strings.HasSuffix(path, ".gz") {
		return readGzip(ctx, path)
	}
	return readPlain(ctx, path)
}

func readPlain(ctx context.Context, path string) ([]string, error) {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    false,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer t.Cleanup()

	var lines []string
	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return nil, ctx.Err()
		case line, ok := <-t.Lines:
			if !ok {
				if err := t.Wait(); err != nil {
					return nil, fmt.Errorf("read %s: %w", path, err)
				}
				log.Debug().Str("path", path).Int("lines", len(lines)).Msg("read log file")
				return lines, nil
			}
			if line.Err != nil {
				log.Error().Err(line.Err).Str("path", path).Msg("error reading line")
				continue
			}
			lines = append(lines, line.Text)
		}
	}
}

func readGzip(ctx context.Context, path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open gzip %s: %w", path, err)
	}
	defer gz.Close()

	lines, err := scan(ctx, gz)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	log.Debug().Str("path", path).Int("lines", len(lines)).Msg("read compressed log file")
	return lines, nil
}

func scan(ctx context.Context, r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	var lines []string
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}
