package parser

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	sampleLine = `Dec  9 13:01:26 localhost haproxy[28029]: 127.0.0.1:39759 [09/Dec/2013:12:59:46.633] loadbalancer default/instance8 0/51536/1/48082/99627 200 83285 - - ---- 87/87/87/1/0 0/67 {77.24.148.74} "GET /path/to/image HTTP/1.1"`

	twoHeadersLine = `10.0.0.1:1234 [09/Dec/2013:12:59:46.633] fe be/srv1 10/0/30/69/109 200 2750 - - ---- 1/1/1/1/0 0/0 {host.example|Mozilla} {text/html} "POST /api/v1/items?id=3 HTTP/1.0"`

	noHeadersLine = `Feb  6 12:14:14 lb-01.dc_1.example.com haproxy[14389]: 10.0.1.2:33313 [06/Feb/2009:12:14:14.655] http-in static/srv1 10/0/30/69/+109 503 2750 - - ---- 1/1/1/1/0 2/5 "get  http://x/ HTTP/1.1"`

	badReqLine = `10.0.0.1:1234 [09/Dec/2013:12:59:46.633] fe be/<NOSRV> -1/-1/-1/-1/+8 -1 0 - - CR-- 0/0/0/0/0 0/0 "<BADREQ>"`
)

type recordingDiagnostics struct {
	mu   sync.Mutex
	seen []string
}

func (d *recordingDiagnostics) InvalidRequest(raw string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = append(d.seen, raw)
}

func TestParseSampleLine(t *testing.T) {
	recs := Parse([]string{sampleLine}, nil)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	r := recs[0]

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"client_ip", r.ClientIP, "127.0.0.1"},
		{"client_port", r.ClientPort, uint16(39759)},
		{"raw_accept_date", r.RawAcceptDate, "09/Dec/2013:12:59:46"},
		{"accept_date", r.AcceptDate, time.Date(2013, time.December, 9, 12, 59, 46, 0, time.UTC)},
		{"frontend_name", r.FrontendName, "loadbalancer"},
		{"backend_name", r.BackendName, "default"},
		{"server_name", r.ServerName, "instance8"},
		{"time_wait_request", r.TimeWaitRequest, 0},
		{"time_wait_queues", r.TimeWaitQueues, 51536},
		{"time_connect_server", r.TimeConnectServer, 1},
		{"time_wait_response", r.TimeWaitResponse, 48082},
		{"total_time", r.TotalTime, "99627"},
		{"status_code", r.StatusCode, 200},
		{"bytes_read", r.BytesRead, int64(83285)},
		{"connections_active", r.ConnectionsActive, 87},
		{"connections_frontend", r.ConnectionsFrontend, 87},
		{"connections_backend", r.ConnectionsBackend, 87},
		{"connections_server", r.ConnectionsServer, 1},
		{"retries", r.Retries, 0},
		{"queue_server", r.QueueServer, 0},
		{"queue_backend", r.QueueBackend, 67},
		{"raw_http_request", r.RawHTTPRequest, "GET /path/to/image HTTP/1.1"},
		{"http_request_method", r.HTTPRequestMethod, "GET"},
		{"http_request_path", r.HTTPRequestPath, "/path/to/image"},
		{"http_request_protocol", r.HTTPRequestProtocol, "HTTP/1.1"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v; want %v", c.name, c.got, c.want)
		}
	}

	if r.CapturedRequestHeaders == nil || *r.CapturedRequestHeaders != "{77.24.148.74}" {
		t.Errorf("captured_request_headers = %v; want {77.24.148.74}", r.CapturedRequestHeaders)
	}
	if r.CapturedResponseHeaders != nil {
		t.Errorf("captured_response_headers = %q; want absent", *r.CapturedResponseHeaders)
	}
}

func TestHeaderCaptureGroups(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantReq  string
		wantResp string
	}{
		{"two groups", twoHeadersLine, "{host.example|Mozilla}", "{text/html}"},
		{"one group", sampleLine, "{77.24.148.74}", ""},
		{"no groups", noHeadersLine, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := New(nil).ParseLine(tt.line)
			if err != nil {
				t.Fatalf("ParseLine: %v", err)
			}
			if got := deref(rec.CapturedRequestHeaders); got != tt.wantReq {
				t.Errorf("request headers = %q; want %q", got, tt.wantReq)
			}
			if got := deref(rec.CapturedResponseHeaders); got != tt.wantResp {
				t.Errorf("response headers = %q; want %q", got, tt.wantResp)
			}
			if tt.wantReq == "" && rec.CapturedRequestHeaders != nil {
				t.Error("request headers should be absent, not empty")
			}
			if tt.wantResp == "" && rec.CapturedResponseHeaders != nil {
				t.Error("response headers should be absent, not empty")
			}
		})
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func TestBadRequestMarker(t *testing.T) {
	diag := &recordingDiagnostics{}
	rec, err := New(diag).ParseLine(badReqLine)
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}

	if rec.HTTPRequestMethod != Invalid || rec.HTTPRequestPath != Invalid || rec.HTTPRequestProtocol != Invalid {
		t.Errorf("expected invalid triple, got %q %q %q", rec.HTTPRequestMethod, rec.HTTPRequestPath, rec.HTTPRequestProtocol)
	}
	if len(diag.seen) != 0 {
		t.Errorf("expected no diagnostics for <BADREQ>, got %v", diag.seen)
	}
	if rec.ServerName != "<NOSRV>" {
		t.Errorf("server_name = %q; want <NOSRV>", rec.ServerName)
	}
	if rec.StatusCode != -1 || rec.TimeWaitRequest != -1 || rec.TimeWaitResponse != -1 {
		t.Errorf("expected -1 sentinels, got status=%d tq=%d tr=%d", rec.StatusCode, rec.TimeWaitRequest, rec.TimeWaitResponse)
	}
	if rec.TotalTime != "+8" {
		t.Errorf("total_time = %q; want +8", rec.TotalTime)
	}
}

func TestMalformedRequestReportsDiagnostic(t *testing.T) {
	diag := &recordingDiagnostics{}
	recs := Parse([]string{noHeadersLine}, diag)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].ValidRequest() {
		t.Error("expected request fields to be invalid")
	}
	if len(diag.seen) != 1 || diag.seen[0] != "get  http://x/ HTTP/1.1" {
		t.Errorf("diagnostics = %v; want the raw request once", diag.seen)
	}
}

func TestUnmatchedLinesAreSkipped(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"garbage", "this is not an haproxy line"},
		{"syslog only", "Dec  9 13:01:26 localhost haproxy[28029]: Proxy started."},
		{"one-digit hour", `127.0.0.1:39759 [09/Dec/2013:1:59:46.633] loadbalancer default/instance8 0/51536/1/48082/99627 200 83285 - - ---- 87/87/87/1/0 0/67 "GET / HTTP/1.1"`},
		{"truncated", `127.0.0.1:39759 [09/Dec/2013:12:59:46.633] loadbalancer default/instance8 0/51536/1/48082/99627 200`},
		{"missing request", `127.0.0.1:39759 [09/Dec/2013:12:59:46.633] loadbalancer default/instance8 0/51536/1/48082/99627 200 83285 - - ---- 87/87/87/1/0 0/67`},
		{"non-numeric timer", `127.0.0.1:39759 [09/Dec/2013:12:59:46.633] loadbalancer default/instance8 0/x/1/48082/99627 200 83285 - - ---- 87/87/87/1/0 0/67 "GET / HTTP/1.1"`},
		{"bad accept date", `10.0.0.1:1234 [31/Foo/2013:12:59:46.633] fe be/srv1 10/0/30/69/109 200 2750 - - ---- 1/1/1/1/0 0/0 "GET / HTTP/1.1"`},
		{"saturated bytes_read", `10.0.1.2:33313 [06/Feb/2009:12:14:14.655] http-in static/srv1 10/0/30/69/109 404 +2750 - - ---- 1/1/1/1/0 0/0 "GET /index.html HTTP/1.1"`},
		{"saturated retries", `10.0.1.2:33313 [06/Feb/2009:12:14:14.655] http-in static/srv1 10/0/30/69/109 404 2750 - - ---- 1/1/1/1/+3 0/0 "GET /index.html HTTP/1.1"`},
		{"port out of range", `10.0.1.2:70000 [06/Feb/2009:12:14:14.655] http-in static/srv1 10/0/30/69/109 404 2750 - - ---- 1/1/1/1/0 0/0 "GET /index.html HTTP/1.1"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if recs := Parse([]string{tt.line}, nil); len(recs) != 0 {
				t.Errorf("expected no records, got %+v", recs)
			}
		})
	}
}

func TestParseLineErrors(t *testing.T) {
	p := New(nil)

	_, err := p.ParseLine("nope")
	if !errors.Is(err, ErrNoMatch) {
		t.Errorf("expected ErrNoMatch, got %v", err)
	}

	_, err = p.ParseLine(`10.0.0.1:1234 [31/Foo/2013:12:59:46.633] fe be/srv1 10/0/30/69/109 200 2750 - - ---- 1/1/1/1/0 0/0 "GET / HTTP/1.1"`)
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FormatError, got %v", err)
	}
	if fe.Field != "accept_date" {
		t.Errorf("FormatError.Field = %q; want accept_date", fe.Field)
	}

	_, err = p.ParseLine(`10.0.1.2:33313 [06/Feb/2009:12:14:14.655] http-in static/srv1 10/0/30/69/109 404 +2750 - - ---- 1/1/1/1/0 0/0 "GET / HTTP/1.1"`)
	if !errors.As(err, &fe) || fe.Field != "bytes_read" {
		t.Errorf("expected bytes_read FormatError, got %v", err)
	}
}

func TestParsePreservesOrder(t *testing.T) {
	recs := Parse([]string{sampleLine, "garbage", twoHeadersLine}, nil)
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].ClientIP != "127.0.0.1" || recs[1].ClientIP != "10.0.0.1" {
		t.Errorf("unexpected order: %s, %s", recs[0].ClientIP, recs[1].ClientIP)
	}
}

func TestParseEmptyInput(t *testing.T) {
	if recs := Parse(nil, nil); len(recs) != 0 {
		t.Errorf("expected no records, got %d", len(recs))
	}
}

func TestRequestTripletConsistency(t *testing.T) {
	lines := []string{sampleLine, twoHeadersLine, noHeadersLine, badReqLine}
	for _, r := range Parse(lines, nil) {
		fields := []string{r.HTTPRequestMethod, r.HTTPRequestPath, r.HTTPRequestProtocol}
		invalid := 0
		for _, f := range fields {
			if f == Invalid {
				invalid++
			}
		}
		if invalid != 0 && invalid != 3 {
			t.Errorf("partial request split for %q: %v", r.RawHTTPRequest, fields)
		}
	}
}

func TestRequestUsingInvalidWordIsValid(t *testing.T) {
	line := strings.Replace(sampleLine, `"GET /path/to/image HTTP/1.1"`, `"invalid /x HTTP/1.1"`, 1)
	recs := Parse([]string{line}, nil)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].HTTPRequestMethod != Invalid || recs[0].HTTPRequestPath != "/x" {
		t.Fatalf("unexpected split: %q %q", recs[0].HTTPRequestMethod, recs[0].HTTPRequestPath)
	}
	if !recs[0].ValidRequest() {
		t.Error("a request whose method is the word invalid should still be valid")
	}
}
