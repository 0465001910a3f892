package parser

import "strings"

// Diagnostics receives non-fatal notices raised while parsing.
// Implementations must be safe for concurrent use when the Parser is
// shared between goroutines.
type Diagnostics interface {
	// InvalidRequest is called for a captured request that could not be
	// split, except for HAProxy's own <BADREQ> marker.
	InvalidRequest(raw string)
}

// NopDiagnostics drops every notice.
type NopDiagnostics struct{}

func (NopDiagnostics) InvalidRequest(string) {}

// Parser turns HAProxy log lines into Records.
type Parser struct {
	Diagnostics Diagnostics
}

// New returns a Parser reporting to diag. A nil diag drops notices.
func New(diag Diagnostics) *Parser {
	if diag == nil {
		diag = NopDiagnostics{}
	}
	return &Parser{Diagnostics: diag}
}

// ParseLine runs a single line through the whole pipeline. The error is
// ErrNoMatch or a *FormatError; a malformed HTTP request is not an error.
func (p *Parser) ParseLine(line string) (*Record, error) {
	line = strings.TrimSpace(StripSyslog(line))

	rec, err := MatchLine(line)
	if err != nil {
		return nil, err
	}

	method, path, protocol, err := ParseRequest(rec.RawHTTPRequest)
	if err != nil && rec.RawHTTPRequest != BadRequestMarker {
		p.diagnostics().InvalidRequest(rec.RawHTTPRequest)
	}
	rec.HTTPRequestMethod = method
	rec.HTTPRequestPath = path
	rec.HTTPRequestProtocol = protocol

	return rec, nil
}

// Parse returns one Record per line that fits the HAProxy grammar, in
// input order. Lines that do not fit are skipped.
func (p *Parser) Parse(lines []string) []Record {
	records := make([]Record, 0, len(lines))
	for _, line := range lines {
		rec, err := p.ParseLine(line)
		if err != nil {
			continue
		}
		records = append(records, *rec)
	}
	return records
}

func (p *Parser) diagnostics() Diagnostics {
	if p.Diagnostics == nil {
		return NopDiagnostics{}
	}
	return p.Diagnostics
}

// Parse is shorthand for New(diag).Parse(lines).
func Parse(lines []string, diag Diagnostics) []Record {
	return New(diag).Parse(lines)
}
