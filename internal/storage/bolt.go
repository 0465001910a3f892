package storage

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"hapdb/internal/parser"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

const schemaVersion = "1"

var (
	bucketRecords = []byte("records")
	bucketIngests = []byte("ingests")
	bucketMeta    = []byte("meta")

	keySchema = []byte("schema_version")
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// BoltStore implements the Store interface using bbolt.
type BoltStore struct {
	db   *bolt.DB
	path string
}

// NewBoltStore opens (or creates) a bbolt database at the given path.
// Buckets are created on first open.
func NewBoltStore(path string) (*BoltStore, error) {
	return openBolt(path, false)
}

// OpenReadOnly opens an existing database without taking the write lock,
// so several readers can share it.
func OpenReadOnly(path string) (*BoltStore, error) {
	return openBolt(path, true)
}

func openBolt(path string, readOnly bool) (*BoltStore, error) {
	if !readOnly {
		dir := filepath.Dir(path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create db directory: %w", err)
			}
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second, ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	if readOnly {
		err = db.View(checkSchema)
	} else {
		err = db.Update(createSchema)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare schema: %w", err)
	}

	log.Info().Str("path", path).Bool("read_only", readOnly).Msg("opened record store")
	return &BoltStore{db: db, path: path}, nil
}

// ── Schema ───────────────────────────────────────────────────────

func createSchema(tx *bolt.Tx) error {
	for _, b := range [][]byte{bucketRecords, bucketIngests, bucketMeta} {
		if _, err := tx.CreateBucketIfNotExists(b); err != nil {
			return err
		}
	}
	meta := tx.Bucket(bucketMeta)
	if v := meta.Get(keySchema); v != nil {
		return checkSchema(tx)
	}
	return meta.Put(keySchema, []byte(schemaVersion))
}

func checkSchema(tx *bolt.Tx) error {
	meta := tx.Bucket(bucketMeta)
	if meta == nil || tx.Bucket(bucketRecords) == nil || tx.Bucket(bucketIngests) == nil {
		return fmt.Errorf("not a hapdb database")
	}
	if v := string(meta.Get(keySchema)); v != schemaVersion {
		return fmt.Errorf("unsupported schema version %q", v)
	}
	return nil
}

// ── Ingest ───────────────────────────────────────────────────────

// Ingest writes all records in one transaction; either the whole batch
// is stored or none of it.
func (s *BoltStore) Ingest(ctx context.Context, source string, records []parser.Record) (*IngestRun, error) {
	run := &IngestRun{
		ID:        generateStoreID(),
		Source:    source,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
		Records:   len(records),
		Location:  s.path,
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		for i := range records {
			if i%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			data, err := json.Marshal(RecordEntry{ID: seq, IngestID: run.ID, Record: records[i]})
			if err != nil {
				return err
			}
			if err := b.Put(itob(seq), data); err != nil {
				return err
			}
		}

		meta, err := json.Marshal(run)
		if err != nil {
			return err
		}
		// started_at+id keeps ingest runs in chronological key order
		return tx.Bucket(bucketIngests).Put([]byte(run.StartedAt+"_"+run.ID), meta)
	})
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", source, err)
	}

	log.Info().Str("source", source).Str("ingest_id", run.ID).Int("records", run.Records).Msg("ingested records")
	return run, nil
}

// ── Records ──────────────────────────────────────────────────────

func (s *BoltStore) GetRecord(id uint64) (*RecordEntry, error) {
	var entry RecordEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRecords).Get(itob(id))
		if v == nil {
			return fmt.Errorf("record %d: %w", id, ErrNotFound)
		}
		return json.Unmarshal(v, &entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *BoltStore) ListRecords(opts ListOpts) (*ListResult[RecordEntry], error) {
	opts = normalizeOpts(opts)

	var all []RecordEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(_, v []byte) error {
			var e RecordEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return nil // skip corrupt entries
			}
			if matches(&e, opts) {
				all = append(all, e)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// Sort newest first
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].AcceptDate.Equal(all[j].AcceptDate) {
			return all[i].AcceptDate.After(all[j].AcceptDate)
		}
		return all[i].ID > all[j].ID
	})

	return paginate(all, opts), nil
}

func matches(e *RecordEntry, opts ListOpts) bool {
	if opts.Frontend != "" && e.FrontendName != opts.Frontend {
		return false
	}
	if opts.Backend != "" && e.BackendName != opts.Backend {
		return false
	}
	if opts.Server != "" && e.ServerName != opts.Server {
		return false
	}
	if opts.Method != "" && !strings.EqualFold(e.HTTPRequestMethod, opts.Method) {
		return false
	}
	if opts.Status != 0 && e.StatusCode != opts.Status {
		return false
	}
	if !opts.Since.IsZero() && e.AcceptDate.Before(opts.Since) {
		return false
	}
	if !opts.Until.IsZero() && e.AcceptDate.After(opts.Until) {
		return false
	}
	return true
}

// ── Ingest runs ──────────────────────────────────────────────────

func (s *BoltStore) ListIngests() ([]IngestRun, error) {
	runs := []IngestRun{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIngests).ForEach(func(_, v []byte) error {
			var run IngestRun
			if err := json.Unmarshal(v, &run); err != nil {
				return nil
			}
			runs = append(runs, run)
			return nil
		})
	})
	return runs, err
}

// ── Stats ────────────────────────────────────────────────────────

func (s *BoltStore) GetStats() (*AggregatedStats, error) {
	stats := &AggregatedStats{StatusClasses: map[string]int{}}
	backendCounts := map[string]int{}
	serverCounts := map[string]int{}
	var totalTime float64
	var timed int

	err := s.db.View(func(tx *bolt.Tx) error {
		stats.TotalIngests = tx.Bucket(bucketIngests).Stats().KeyN

		return tx.Bucket(bucketRecords).ForEach(func(_, v []byte) error {
			var e RecordEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return nil
			}
			stats.TotalRecords++
			if !e.ValidRequest() {
				stats.InvalidRequests++
			}
			stats.StatusClasses[StatusClass(e.StatusCode)]++
			backendCounts[e.BackendName]++
			serverCounts[e.BackendName+"/"+e.ServerName]++

			tt := e.TotalTime
			if strings.HasPrefix(tt, "+") {
				stats.SaturatedTimers++
				tt = tt[1:]
			}
			if ms, err := strconv.ParseFloat(tt, 64); err == nil {
				totalTime += ms
				timed++
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if timed > 0 {
		stats.AvgTotalTimeMs = totalTime / float64(timed)
	}
	stats.TopBackend = top(backendCounts)
	stats.TopServer = top(serverCounts)

	return stats, nil
}

// StatusClass buckets a status code as 1xx..5xx, or "aborted" for -1 and
// anything else outside the HTTP range.
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "aborted"
	}
	return strconv.Itoa(code/100) + "xx"
}

// top returns the most frequent key, lowest key on ties.
func top(counts map[string]int) string {
	best, bestN := "", 0
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}

// ── Lifecycle ────────────────────────────────────────────────────

func (s *BoltStore) Path() string { return s.path }

func (s *BoltStore) Close() error {
	log.Debug().Str("path", s.path).Msg("closing record store")
	return s.db.Close()
}

// ── Helpers ──────────────────────────────────────────────────────

func normalizeOpts(opts ListOpts) ListOpts {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 || opts.PageSize > 100 {
		opts.PageSize = 20
	}
	return opts
}

func paginate[T any](all []T, opts ListOpts) *ListResult[T] {
	total := len(all)
	totalPages := (total + opts.PageSize - 1) / opts.PageSize
	if totalPages < 1 {
		totalPages = 1
	}

	start := (opts.Page - 1) * opts.PageSize
	if start >= total {
		return &ListResult[T]{Items: []T{}, Total: total, Page: opts.Page, PageSize: opts.PageSize, TotalPages: totalPages}
	}
	end := start + opts.PageSize
	if end > total {
		end = total
	}

	return &ListResult[T]{
		Items:      all[start:end],
		Total:      total,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalPages: totalPages,
	}
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func generateStoreID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
