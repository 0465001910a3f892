package export

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"hapdb/internal/parser"
	"hapdb/internal/storage"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// lokiBatchSize caps the number of entries per push request.
const lokiBatchSize = 1000

// LokiSink sends records to Loki's HTTP push API, one log line per record.
type LokiSink struct {
	url    string
	client *http.Client
}

func NewLokiSink(baseURL string) *LokiSink {
	return &LokiSink{
		url:    baseURL + "/loki/api/v1/push",
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// lokiPushRequest is the Loki push API payload
type lokiPushRequest struct {
	Streams []lokiStream `json:"streams"`
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

func (l *LokiSink) Ingest(ctx context.Context, source string, records []parser.Record) (*storage.IngestRun, error) {
	for start := 0; start < len(records); start += lokiBatchSize {
		end := start + lokiBatchSize
		if end > len(records) {
			end = len(records)
		}
		req, err := buildPush(source, records[start:end])
		if err != nil {
			return nil, err
		}
		if err := l.push(ctx, req); err != nil {
			return nil, fmt.Errorf("loki push %s: %w", source, err)
		}
	}

	log.Info().Str("source", source).Str("url", l.url).Int("records", len(records)).Msg("pushed records to loki")
	return newRun(source, l.url, len(records)), nil
}

// buildPush groups records into one stream per backend and status class.
// Entries keep the accept date as their timestamp.
func buildPush(source string, records []parser.Record) (*lokiPushRequest, error) {
	streams := map[string]*lokiStream{}
	var order []string

	for i := range records {
		rec := &records[i]
		class := storage.StatusClass(rec.StatusCode)
		key := rec.BackendName + "\x00" + class

		s, ok := streams[key]
		if !ok {
			s = &lokiStream{Stream: map[string]string{
				"job":          "hapdb",
				"source":       source,
				"backend":      rec.BackendName,
				"status_class": class,
			}}
			streams[key] = s
			order = append(order, key)
		}

		line, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("marshal record: %w", err)
		}
		ts := strconv.FormatInt(rec.AcceptDate.UnixNano(), 10)
		s.Values = append(s.Values, []string{ts, string(line)})
	}

	req := &lokiPushRequest{Streams: make([]lokiStream, 0, len(order))}
	for _, key := range order {
		req.Streams = append(req.Streams, *streams[key])
	}
	return req, nil
}

func (l *LokiSink) push(ctx context.Context, payload *lokiPushRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("loki returned %d", resp.StatusCode)
	}
	return nil
}
