package core

import "github.com/hupe1980/agencykit/logging"

// loggerAdapter gives RunContext and ToolContext a shared, always non-nil
// logging surface. Embedding it keeps the Log* helpers off the public
// constructors while still letting both contexts emit structured events.
type loggerAdapter struct {
	logger logging.Logger
}

func newLoggerAdapter(l logging.Logger) *loggerAdapter {
	if l == nil {
		l = logging.NoOpLogger{}
	}

	return &loggerAdapter{logger: l}
}

// Logger returns the underlying logger.
func (l *loggerAdapter) Logger() logging.Logger { return l.logger }

func (l *loggerAdapter) LogDebug(msg string, args ...any) { l.logger.Debug(msg, args...) }

func (l *loggerAdapter) LogInfo(msg string, args ...any) { l.logger.Info(msg, args...) }

func (l *loggerAdapter) LogWarn(msg string, args ...any) { l.logger.Warn(msg, args...) }

func (l *loggerAdapter) LogError(msg string, args ...any) { l.logger.Error(msg, args...) }
