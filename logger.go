package gobayeux

import "github.com/sirupsen/logrus"

// Logger is the structured logger the client writes to. The arguments that
// follow a message are alternating keys and values, the way log/slog reads
// them, whichever backend is plugged in.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// WithError returns a Logger that attaches err to every entry
	WithError(err error) Logger

	// WithField returns a Logger that attaches key=value to every entry
	WithField(key string, value any) Logger
}

// badKey labels arguments that are not part of a key/value pair
const badKey = "!BADKEY"

type discardLogger struct{}

func (*discardLogger) Debug(string, ...any) {}

func (*discardLogger) Info(string, ...any) {}

func (*discardLogger) Warn(string, ...any) {}

func (*discardLogger) Error(string, ...any) {}

func (l *discardLogger) WithError(error) Logger {
	return l
}

func (l *discardLogger) WithField(string, any) Logger {
	return l
}

func newDiscardLogger() *discardLogger {
	return &discardLogger{}
}

type logrusLogger struct {
	logger logrus.FieldLogger
}

func (l *logrusLogger) Debug(msg string, args ...any) {
	l.log(logrus.DebugLevel, msg, args)
}

func (l *logrusLogger) Info(msg string, args ...any) {
	l.log(logrus.InfoLevel, msg, args)
}

func (l *logrusLogger) Warn(msg string, args ...any) {
	l.log(logrus.WarnLevel, msg, args)
}

func (l *logrusLogger) Error(msg string, args ...any) {
	l.log(logrus.ErrorLevel, msg, args)
}

func (l *logrusLogger) log(level logrus.Level, msg string, args []any) {
	l.logger.WithFields(pairs(args)).Log(level, msg)
}

func (l *logrusLogger) WithError(err error) Logger {
	return &logrusLogger{l.logger.WithError(err)}
}

func (l *logrusLogger) WithField(key string, value any) Logger {
	return &logrusLogger{l.logger.WithField(key, value)}
}

// pairs turns alternating keys and values into logrus fields. A non-string
// key or a trailing key without a value is kept under badKey.
func pairs(args []any) logrus.Fields {
	fields := make(logrus.Fields, len(args)/2)
	for len(args) > 0 {
		key, ok := args[0].(string)
		if !ok || len(args) == 1 {
			fields[badKey] = args[0]
			args = args[1:]
			continue
		}
		fields[key] = args[1]
		args = args[2:]
	}
	return fields
}

// WithLogger uses a logrus.FieldLogger for the client's logs
func WithLogger(logger logrus.FieldLogger) Option {
	return func(options *Options) {
		options.Logger = &logrusLogger{logger}
	}
}
