package whatsapp

import (
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/kilianp07/kurir/core/logger"
)

// waLogger routes whatsmeow logs through the service logger.
type waLogger struct {
	log    logger.Logger
	module string
}

var _ waLog.Logger = waLogger{}

func newWALogger(log logger.Logger, module string) waLogger {
	return waLogger{log: log, module: module}
}

func (l waLogger) Debugf(msg string, args ...interface{}) { l.log.Debugf(l.prefix(msg), args...) }
func (l waLogger) Infof(msg string, args ...interface{})  { l.log.Infof(l.prefix(msg), args...) }
func (l waLogger) Warnf(msg string, args ...interface{})  { l.log.Warnf(l.prefix(msg), args...) }
func (l waLogger) Errorf(msg string, args ...interface{}) { l.log.Errorf(l.prefix(msg), args...) }

func (l waLogger) Sub(module string) waLog.Logger {
	return waLogger{log: l.log, module: l.module + "/" + module}
}

func (l waLogger) prefix(msg string) string {
	return "[" + l.module + "] " + msg
}
