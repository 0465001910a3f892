package parser

import (
	"errors"
	"fmt"
	"time"
)

// Invalid is stored in all three HTTP request fields when the captured
// request line cannot be split.
const Invalid = "invalid"

// BadRequestMarker is what HAProxy logs in place of a request it could not parse itself.
const BadRequestMarker = "<BADREQ>"

// Record is one HAProxy log line in structured form.
type Record struct {
	ClientIP   string `json:"client_ip"`
	ClientPort uint16 `json:"client_port"`

	RawAcceptDate string    `json:"raw_accept_date"`
	AcceptDate    time.Time `json:"accept_date"`

	FrontendName string `json:"frontend_name"`
	BackendName  string `json:"backend_name"`
	ServerName   string `json:"server_name"`

	// Timers in milliseconds, -1 when the stage was never reached.
	TimeWaitRequest   int `json:"time_wait_request"`
	TimeWaitQueues    int `json:"time_wait_queues"`
	TimeConnectServer int `json:"time_connect_server"`
	TimeWaitResponse  int `json:"time_wait_response"`
	// TotalTime keeps HAProxy's leading '+' when the timer saturated.
	TotalTime string `json:"total_time"`

	StatusCode int   `json:"status_code"`
	BytesRead  int64 `json:"bytes_read"`

	ConnectionsActive   int `json:"connections_active"`
	ConnectionsFrontend int `json:"connections_frontend"`
	ConnectionsBackend  int `json:"connections_backend"`
	ConnectionsServer   int `json:"connections_server"`
	Retries             int `json:"retries"`

	QueueServer  int `json:"queue_server"`
	QueueBackend int `json:"queue_backend"`

	CapturedRequestHeaders  *string `json:"captured_request_headers,omitempty"`
	CapturedResponseHeaders *string `json:"captured_response_headers,omitempty"`

	RawHTTPRequest      string `json:"raw_http_request"`
	HTTPRequestMethod   string `json:"http_request_method"`
	HTTPRequestPath     string `json:"http_request_path"`
	HTTPRequestProtocol string `json:"http_request_protocol"`
}

// ValidRequest reports whether the HTTP request fields were derived from
// the raw request rather than set to Invalid. A real request may use the
// word "invalid" in one field, so only all three together count.
func (r *Record) ValidRequest() bool {
	return r.HTTPRequestMethod != Invalid ||
		r.HTTPRequestPath != Invalid ||
		r.HTTPRequestProtocol != Invalid
}

var (
	// ErrNoMatch means the line does not fit the HAProxy HTTP log grammar.
	ErrNoMatch = errors.New("line does not match haproxy log format")

	// ErrInvalidRequest means the captured request is not "METHOD /path PROTO/x.y".
	ErrInvalidRequest = errors.New("invalid http request")

	errOverflowMarker = errors.New("counter carries overflow marker")
)

// FormatError is returned when a line matches the grammar but one of the
// captured fields cannot be converted to its record type.
type FormatError struct {
	Field string
	Value string
	Err   error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("field %s: cannot convert %q: %v", e.Field, e.Value, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }
