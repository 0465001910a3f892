package export

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hapdb/internal/parser"

	json "github.com/goccy/go-json"
)

func TestLokiSink(t *testing.T) {
	var pushes []lokiPushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req lokiPushRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode push: %v", err)
		}
		pushes = append(pushes, req)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	recs := sampleRecords()
	recs[0].AcceptDate = time.Date(2013, 12, 9, 12, 59, 46, 0, time.UTC)

	run, err := NewLokiSink(srv.URL).Ingest(context.Background(), "haproxy.log", recs)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if run.Records != 2 {
		t.Errorf("records = %d; want 2", run.Records)
	}

	if len(pushes) != 1 || len(pushes[0].Streams) != 2 {
		t.Fatalf("unexpected pushes: %+v", pushes)
	}
	first := pushes[0].Streams[0]
	if first.Stream["backend"] != "default" || first.Stream["status_class"] != "2xx" || first.Stream["job"] != "hapdb" {
		t.Errorf("unexpected labels: %v", first.Stream)
	}
	if first.Values[0][0] != "1386593986000000000" {
		t.Errorf("timestamp = %s", first.Values[0][0])
	}
	if second := pushes[0].Streams[1]; second.Stream["status_class"] != "aborted" {
		t.Errorf("unexpected labels: %v", second.Stream)
	}
}

func TestLokiSinkBatches(t *testing.T) {
	var pushes int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushes++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	recs := make([]parser.Record, lokiBatchSize+1)
	if _, err := NewLokiSink(srv.URL).Ingest(context.Background(), "x", recs); err != nil {
		t.Fatal(err)
	}
	if pushes != 2 {
		t.Errorf("pushes = %d; want 2", pushes)
	}
}

func TestLokiSinkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	if _, err := NewLokiSink(srv.URL).Ingest(context.Background(), "x", sampleRecords()); err == nil {
		t.Error("expected error on 400")
	}
}
