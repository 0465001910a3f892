package worker

import (
	"context"
	"sync"

	"hapdb/internal/collector"
	"hapdb/internal/parser"

	"github.com/rs/zerolog/log"
)

// Job is one contiguous slice of the input.
type Job struct {
	Index int
	Lines []string
}

// Pool parses a batch of lines on several goroutines. Output order is the
// input order regardless of which worker finished first.
type Pool struct {
	WorkerCount int
	ChunkSize   int
	Collector   *collector.LogCollector
	Diagnostics parser.Diagnostics
}

func NewPool(workers, chunkSize int, coll *collector.LogCollector, diag parser.Diagnostics) *Pool {
	if workers < 1 {
		workers = 1
	}
	if chunkSize < 1 {
		chunkSize = 1
	}
	return &Pool{
		WorkerCount: workers,
		ChunkSize:   chunkSize,
		Collector:   coll,
		Diagnostics: diag,
	}
}

// ParseAll returns the same records as parser.Parse(lines) would. It stops
// handing out chunks once ctx is done and returns ctx.Err().
func (p *Pool) ParseAll(ctx context.Context, lines []string) ([]parser.Record, error) {
	jobs := split(lines, p.ChunkSize)
	results := make([][]parser.Record, len(jobs))

	workers := p.WorkerCount
	if workers > len(jobs) {
		workers = len(jobs)
	}

	queue := make(chan Job)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(queue, results)
		}()
	}
	log.Debug().Int("workers", workers).Int("chunks", len(jobs)).Int("lines", len(lines)).Msg("parsing batch")

	var err error
submit:
	for _, job := range jobs {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break submit
		case queue <- job:
		}
	}
	close(queue)
	wg.Wait()

	if err != nil {
		return nil, err
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	records := make([]parser.Record, 0, total)
	for _, r := range results {
		records = append(records, r...)
	}
	return records, nil
}

func (p *Pool) worker(queue <-chan Job, results [][]parser.Record) {
	ps := parser.New(p.Diagnostics)
	for job := range queue {
		out := make([]parser.Record, 0, len(job.Lines))
		for _, line := range job.Lines {
			rec, err := ps.ParseLine(line)
			if p.Collector != nil {
				p.Collector.Observe(rec, err)
			}
			if err != nil {
				continue
			}
			out = append(out, *rec)
		}
		results[job.Index] = out
	}
}

func split(lines []string, size int) []Job {
	jobs := make([]Job, 0, (len(lines)+size-1)/size)
	for start := 0; start < len(lines); start += size {
		end := start + size
		if end > len(lines) {
			end = len(lines)
		}
		jobs = append(jobs, Job{Index: len(jobs), Lines: lines[start:end]})
	}
	return jobs
}
