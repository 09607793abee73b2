package ice

import (
	"github.com/ghettovoice/gosip/log"
	"github.com/pion/logging"
)

type loggerFactory struct {
	logger log.Logger
}

func newLoggerFactory(logger log.Logger) logging.LoggerFactory {
	return &loggerFactory{logger: logger}
}

func (f *loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &leveledLogger{f.logger.WithFields(log.Fields{"scope": scope})}
}

// leveledLogger feeds pion log lines into the gosip logger.
type leveledLogger struct {
	log.Logger
}

func (l *leveledLogger) Trace(msg string) { l.Logger.Trace(msg) }
func (l *leveledLogger) Debug(msg string) { l.Logger.Debug(msg) }
func (l *leveledLogger) Info(msg string)  { l.Logger.Info(msg) }
func (l *leveledLogger) Warn(msg string)  { l.Logger.Warn(msg) }
func (l *leveledLogger) Error(msg string) { l.Logger.Error(msg) }
