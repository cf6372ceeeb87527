package catchup

import "log/slog"

//nolint:gochecknoglobals // The logger is a global component
var logger Logger

//nolint:gochecknoinits // The logger is a global component
func init() {
	logger = DefaultLogger()
}

// A Logger logs messages at various levels.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	WithGroup(name string) Logger
}

//nolint:ireturn // Deliberately an interface
func DefaultLogger() Logger {
	return slogLogger{slog.Default()}
}

//nolint:ireturn // Deliberately an interface
func GetLogger() Logger {
	return logger
}

func SetLogger(l Logger) {
	logger = l
}

type slogLogger struct {
	*slog.Logger
}

//nolint:ireturn // Satisfies the Logger interface
func (l slogLogger) WithGroup(name string) Logger {
	return slogLogger{l.Logger.WithGroup(name)}
}
