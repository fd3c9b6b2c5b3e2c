package logging

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Mode string

const (
	ModeText Mode = "text"
	ModeJSON Mode = "json"
)

var stderr = struct{ io.Writer }{os.Stderr}

type tTesting interface {
	Log(args ...interface{})
	Logf(format string, args ...interface{})
	Helper()
	Cleanup(f func())
}

// Configure sets the global logger from LOG_LEVEL and LOG_TYPE.
func Configure() {
	configure(Mode(strings.ToLower(os.Getenv("LOG_TYPE"))), os.Getenv("LOG_LEVEL"))
}

// ConfigureTestLogging routes logs through t.Log for the duration of a test.
func ConfigureTestLogging(t tTesting) {
	oldLogger := log.Logger
	oldContextLogger := zerolog.DefaultContextLogger
	configure(ModeText, "debug", zerolog.ConsoleTestWriter(t))
	t.Cleanup(func() {
		log.Logger = oldLogger
		zerolog.DefaultContextLogger = oldContextLogger
	})
}

func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func configure(mode Mode, level string, opts ...func(w *zerolog.ConsoleWriter)) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(ParseLevel(level))

	isTerminal := isatty.IsTerminal(os.Stderr.Fd())
	defaults := func(w *zerolog.ConsoleWriter) {
		w.Out = stderr
		w.NoColor = !isTerminal
		w.TimeFormat = "15:04:05.999 |"
		w.PartsOrder = []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			zerolog.CallerFieldName,
			zerolog.MessageFieldName,
		}
	}
	opts = append([]func(w *zerolog.ConsoleWriter){defaults}, opts...)

	zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
		if i := strings.LastIndex(file, "/"); i >= 0 {
			if j := strings.LastIndex(file[:i], "/"); j >= 0 {
				file = file[j+1:]
			}
		}
		return file + ":" + strconv.Itoa(line)
	}

	var out io.Writer = zerolog.NewConsoleWriter(opts...)
	if mode == ModeJSON {
		out = os.Stdout
	}

	log.Logger = zerolog.New(out).With().Timestamp().Caller().Logger()
	zerolog.DefaultContextLogger = &log.Logger
}

// Component returns a child logger tagged the way the rest of the code expects.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// RetryLogger adapts zerolog to retryablehttp.LeveledLogger.
type RetryLogger struct {
	L zerolog.Logger
}

func (r RetryLogger) Error(msg string, kv ...interface{}) { r.emit(r.L.Error(), msg, kv) }
func (r RetryLogger) Warn(msg string, kv ...interface{})  { r.emit(r.L.Warn(), msg, kv) }
func (r RetryLogger) Info(msg string, kv ...interface{})  { r.emit(r.L.Debug(), msg, kv) }
func (r RetryLogger) Debug(msg string, kv ...interface{}) { r.emit(r.L.Trace(), msg, kv) }

func (r RetryLogger) emit(e *zerolog.Event, msg string, kv []interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		e = e.Interface(fmt.Sprint(kv[i]), kv[i+1])
	}
	e.Msg(msg)
}
