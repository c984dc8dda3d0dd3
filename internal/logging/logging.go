package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lowaak/smart-trainer/training-app/internal/config"
)

// Setup builds the process logger. With a log file configured, output goes
// through a rotating writer so the terminal stays free for the timer UI.
// Extra writers receive every event too. The returned closer flushes the
// rotating writer and must be called on exit.
func Setup(cfg config.LoggingConfig, extra ...io.Writer) (zerolog.Logger, io.Closer, error) {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return zerolog.Nop(), nil, err
		}
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		out, closer = rotating, rotating
	}

	out = formatted(out, cfg.Format)
	if len(extra) > 0 {
		out = zerolog.MultiLevelWriter(append([]io.Writer{out}, extra...)...)
	}
	return zerolog.New(out).With().Timestamp().Logger(), closer, nil
}

// New returns a timestamped logger writing JSON, or console text for "text"
func New(out io.Writer, format string) zerolog.Logger {
	return zerolog.New(formatted(out, format)).With().Timestamp().Logger()
}

// PaneWriter renders events as short plain lines for an on-screen log pane
func PaneWriter(out io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: "15:04:05"}
}

func formatted(out io.Writer, format string) io.Writer {
	if format == "text" {
		return zerolog.ConsoleWriter{Out: out, NoColor: out != os.Stderr}
	}
	return out
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
