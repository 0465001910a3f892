package collector

import (
	"errors"

	"hapdb/internal/parser"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ReasonNoMatch = "no_match"
	ReasonFormat  = "format"

	KindBadReq    = "badreq"
	KindMalformed = "malformed"
)

type LogCollector struct {
	Lines           prometheus.Counter
	Records         prometheus.Counter
	Skipped         *prometheus.CounterVec
	InvalidRequests *prometheus.CounterVec
	Stored          *prometheus.CounterVec
}

func NewLogCollector() *LogCollector {
	return &LogCollector{
		Lines: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hapdb_lines_total",
				Help: "Total number of input lines handed to the parser.",
			},
		),
		Records: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hapdb_records_total",
				Help: "Total number of lines that produced a record.",
			},
		),
		Skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hapdb_lines_skipped_total",
				Help: "Total number of lines dropped, by reason.",
			},
			[]string{"reason"},
		),
		InvalidRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hapdb_invalid_requests_total",
				Help: "Total number of records whose HTTP request could not be split.",
			},
			[]string{"kind"},
		),
		Stored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hapdb_records_stored_total",
				Help: "Total number of records written, by sink.",
			},
			[]string{"sink"},
		),
	}
}

func (c *LogCollector) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		c.Lines,
		c.Records,
		c.Skipped,
		c.InvalidRequests,
		c.Stored,
	)
}

// Observe records the outcome of one parser.ParseLine call.
func (c *LogCollector) Observe(rec *parser.Record, err error) {
	c.Lines.Inc()

	if err != nil {
		reason := ReasonNoMatch
		var fe *parser.FormatError
		if errors.As(err, &fe) {
			reason = ReasonFormat
		}
		c.Skipped.WithLabelValues(reason).Inc()
		return
	}

	c.Records.Inc()
	if rec.ValidRequest() {
		return
	}
	if rec.RawHTTPRequest == parser.BadRequestMarker {
		c.InvalidRequests.WithLabelValues(KindBadReq).Inc()
	} else {
		c.InvalidRequests.WithLabelValues(KindMalformed).Inc()
	}
}

func (c *LogCollector) ObserveStored(sink string, n int) {
	c.Stored.WithLabelValues(sink).Add(float64(n))
}

// WriteTextfile dumps everything gathered by g in the text exposition
// format, for node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
