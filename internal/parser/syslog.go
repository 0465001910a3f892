package parser

import "regexp"

// Envelope added by the system logger in front of the HAProxy payload:
// Dec  9 13:01:26 localhost haproxy[28029]:
// The host may be a bare word, an IPv4 address or a dotted hostname.
var syslogPrefixRegex = regexp.MustCompile(
	`\A\w+\s+\d+\s+` + // Dec  9
		`\d+:\d+:\d+\s+` + // 13:01:26
		`(\w+|(\d+\.){3}\d+|[.a-zA-Z0-9_-]+)\s+` + // localhost
		`\w+\[\d+\]:\s+`, // haproxy[28029]:
)

// StripSyslog removes a leading syslog envelope. Lines without one are
// returned unchanged.
func StripSyslog(line string) string {
	loc := syslogPrefixRegex.FindStringIndex(line)
	if loc == nil {
		return line
	}
	return line[loc[1]:]
}
