package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"hapdb/internal/logger"
	"hapdb/internal/parser"
	"hapdb/internal/tailer"
	"hapdb/internal/worker"

	"github.com/rs/zerolog/log"
)

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// parseFile reads every line of path and batch-parses it on the worker pool.
func parseFile(ctx context.Context, path string) ([]parser.Record, error) {
	lines, err := tailer.ReadLines(ctx, path)
	if err != nil {
		return nil, err
	}

	pool := worker.NewPool(cfg.Workers, cfg.ChunkSize, coll, logger.NewDiagnostics(path))
	records, err := pool.ParseAll(ctx, lines)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	log.Info().
		Str("source", path).
		Int("lines", len(lines)).
		Int("records", len(records)).
		Int("skipped", len(lines)-len(records)).
		Msg("parsed log file")
	return records, nil
}
