package parser

import "regexp"

// GET /path/to/image HTTP/1.1
var httpRequestRegex = regexp.MustCompile(
	`\A(?P<method>\w+)\s+` +
		`(?P<path>(/[` + "`" + `´\\<>/\w:,;.#$!?=&@%_+'*^~|()\[\]{}-]*)+)` +
		`\s+(?P<protocol>\w+/\d\.\d)`,
)

var (
	methodIdx   = httpRequestRegex.SubexpIndex("method")
	pathIdx     = httpRequestRegex.SubexpIndex("path")
	protocolIdx = httpRequestRegex.SubexpIndex("protocol")
)

// ParseRequest splits a captured request line into method, path and
// protocol. When the line does not fit, all three are Invalid and the
// error is ErrInvalidRequest.
func ParseRequest(raw string) (method, path, protocol string, err error) {
	m := httpRequestRegex.FindStringSubmatch(raw)
	if m == nil {
		return Invalid, Invalid, Invalid, ErrInvalidRequest
	}
	return m[methodIdx], m[pathIdx], m[protocolIdx], nil
}
