package parser

import (
	"regexp"
	"strconv"
	"strings"
)

// HAProxy HTTP log format, after the syslog envelope is removed:
// 127.0.0.1:39759 [09/Dec/2013:12:59:46.633] loadbalancer default/instance8
// 0/51536/1/48082/99627 200 83285 - - ---- 87/87/87/1/0 0/67
// {77.24.148.74} "GET /path/to/image HTTP/1.1"
var haproxyLineRegex = regexp.MustCompile(
	// 127.0.0.1:39759
	`\A(?P<client_ip>(\d+\.){3}\d+):(?P<client_port>\d+)\s+` +
		// [09/Dec/2013:12:59:46.633], sub-seconds dropped
		`\[(?P<accept_date>.*)\..*\]\s+` +
		// loadbalancer default/instance8
		`(?P<frontend_name>.*)\s+(?P<backend_name>.*)/(?P<server_name>.*)\s+` +
		// 0/51536/1/48082/99627
		`(?P<tq>-?\d+)/(?P<tw>-?\d+)/(?P<tc>-?\d+)/` +
		`(?P<tr>-?\d+)/(?P<tt>\+?\d+)\s+` +
		// 200 83285
		`(?P<status_code>-?\d+)\s+(?P<bytes_read>\+?\d+)\s+` +
		// - - ---- (cookies and termination state, not captured)
		`.*\s+` +
		// 87/87/87/1/0
		`(?P<act>\d+)/(?P<fe>\d+)/(?P<be>\d+)/` +
		`(?P<srv>\d+)/(?P<retries>\+?\d+)\s+` +
		// 0/67
		`(?P<queue_server>\d+)/(?P<queue_backend>\d+)\s+` +
		// {77.24.148.74} or {req} {resp} or nothing
		`((?P<request_headers>\{.*\})\s+(?P<response_headers>\{.*\})\s+|` +
		`(?P<headers>\{.*\})\s+|)` +
		// "GET /path/to/image HTTP/1.1"
		`"(?P<http_request>.*)"` +
		`\z`,
)

// fields resolves named groups of one regexp match.
type fields struct {
	line string
	loc  []int
}

func (f fields) get(name string) (string, bool) {
	i := haproxyLineRegex.SubexpIndex(name)
	if i < 0 || f.loc[2*i] < 0 {
		return "", false
	}
	return f.line[f.loc[2*i]:f.loc[2*i+1]], true
}

func (f fields) str(name string) string {
	s, _ := f.get(name)
	return s
}

// MatchLine extracts every record field except the HTTP request split.
// The line must already be stripped of its syslog envelope and trimmed.
// It returns ErrNoMatch when the grammar does not fit and a *FormatError
// when a captured value cannot be converted.
func MatchLine(line string) (*Record, error) {
	loc := haproxyLineRegex.FindStringSubmatchIndex(line)
	if loc == nil {
		return nil, ErrNoMatch
	}
	f := fields{line: line, loc: loc}
	c := converter{f: f}

	rec := &Record{
		ClientIP:   f.str("client_ip"),
		ClientPort: c.port("client_port"),

		RawAcceptDate: f.str("accept_date"),

		FrontendName: f.str("frontend_name"),
		BackendName:  f.str("backend_name"),
		ServerName:   f.str("server_name"),

		TimeWaitRequest:   c.int("tq"),
		TimeWaitQueues:    c.int("tw"),
		TimeConnectServer: c.int("tc"),
		TimeWaitResponse:  c.int("tr"),
		TotalTime:         f.str("tt"),

		StatusCode: c.int("status_code"),
		BytesRead:  c.counter64("bytes_read"),

		ConnectionsActive:   c.int("act"),
		ConnectionsFrontend: c.int("fe"),
		ConnectionsBackend:  c.int("be"),
		ConnectionsServer:   c.int("srv"),
		Retries:             int(c.counter64("retries")),

		QueueServer:  c.int("queue_server"),
		QueueBackend: c.int("queue_backend"),

		RawHTTPRequest: f.str("http_request"),
	}
	if c.err != nil {
		return nil, c.err
	}

	acceptDate, err := ParseAcceptDate(rec.RawAcceptDate)
	if err != nil {
		return nil, err
	}
	rec.AcceptDate = acceptDate

	if h, ok := f.get("request_headers"); ok {
		rec.CapturedRequestHeaders = &h
		if resp, ok := f.get("response_headers"); ok {
			rec.CapturedResponseHeaders = &resp
		}
	} else if h, ok := f.get("headers"); ok {
		rec.CapturedRequestHeaders = &h
	}

	return rec, nil
}

// converter keeps the first conversion error so MatchLine can build the
// record in one literal.
type converter struct {
	f   fields
	err error
}

func (c *converter) fail(field, value string, err error) {
	if c.err == nil {
		c.err = &FormatError{Field: field, Value: value, Err: err}
	}
}

func (c *converter) int(name string) int {
	s := c.f.str(name)
	n, err := strconv.Atoi(s)
	if err != nil {
		c.fail(name, s, err)
	}
	return n
}

func (c *converter) port(name string) uint16 {
	s := c.f.str(name)
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		c.fail(name, s, err)
	}
	return uint16(n)
}

// counter64 converts byte and retry counters. HAProxy prefixes these with
// '+' when they saturate; the value is rejected rather than guessed at.
func (c *converter) counter64(name string) int64 {
	s := c.f.str(name)
	if strings.HasPrefix(s, "+") {
		c.fail(name, s, errOverflowMarker)
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		c.fail(name, s, err)
	}
	return n
}
