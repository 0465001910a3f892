package logger

import (
	"io"
	"os"
	"strings"

	stdlog "log"

	"hapdb/internal/config"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

const serviceName = "hapdb"

// Init configures the global zerolog logger from cfg and routes the
// standard library logger through it. Output goes to stderr so stdout
// stays free for command results.
func Init(cfg config.Config) {
	Setup(os.Stderr, cfg.LogLevel, cfg.LogPretty)
}

// Setup is Init with an explicit writer.
func Setup(out io.Writer, levelName string, pretty bool) {
	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(levelName))); err == nil && levelName != "" {
		level = l
	}
	zerolog.SetGlobalLevel(level)

	w := out
	if pretty {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		}
	}

	zlog.Logger = zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	stdlog.SetFlags(0)
	stdlog.SetOutput(zlog.Logger)
}

// Diagnostics reports parser notices as warn-level events.
type Diagnostics struct {
	Log zerolog.Logger
}

// NewDiagnostics returns a Diagnostics tagged with the input source.
func NewDiagnostics(source string) *Diagnostics {
	return &Diagnostics{
		Log: zlog.With().Str("component", "parser").Str("source", source).Logger(),
	}
}

func (d *Diagnostics) InvalidRequest(raw string) {
	d.Log.Warn().Str("request", raw).Msg("could not process HTTP request")
}
