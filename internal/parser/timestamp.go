package parser

import (
	"errors"
	"regexp"
	"time"
)

// acceptDateLayout is the accept date with sub-seconds already removed:
// 09/Dec/2013:12:59:46
const acceptDateLayout = "02/Jan/2006:15:04:05"

// time.Parse takes a one-digit hour for "15", so the shape is checked first.
var acceptDateShape = regexp.MustCompile(`\A\d{2}/[A-Za-z]{3}/\d{4}:\d{2}:\d{2}:\d{2}\z`)

var errAcceptDateShape = errors.New("want DD/Mon/YYYY:HH:MM:SS")

// ParseAcceptDate converts the raw accept date into a UTC time. Anything
// other than the exact layout is a *FormatError.
func ParseAcceptDate(raw string) (time.Time, error) {
	if !acceptDateShape.MatchString(raw) {
		return time.Time{}, &FormatError{Field: "accept_date", Value: raw, Err: errAcceptDateShape}
	}
	t, err := time.Parse(acceptDateLayout, raw)
	if err != nil {
		return time.Time{}, &FormatError{Field: "accept_date", Value: raw, Err: err}
	}
	return t, nil
}
