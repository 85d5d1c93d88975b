package csrfclient

import (
	"log"

	"go.uber.org/zap"
)

// Logger receives the Manager's log lines.
// Debugf is only called when Config.Debug is set; Errorf is always called on failures.
type Logger interface {
	Debugf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Printer is satisfied by *log.Logger and most printf-style loggers.
type Printer interface {
	Printf(format string, args ...any)
}

// printfLogger adapts a Printer, prefixing each line with its level.
type printfLogger struct {
	p Printer
}

func (l printfLogger) Debugf(format string, args ...any) {
	l.p.Printf("DEBUG "+format, args...)
}

func (l printfLogger) Errorf(format string, args ...any) {
	l.p.Printf("ERROR "+format, args...)
}

// zapLogger adapts a zap logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l zapLogger) Debugf(format string, args ...any) {
	l.s.Debugf(format, args...)
}

func (l zapLogger) Errorf(format string, args ...any) {
	l.s.Errorf(format, args...)
}

func defaultLogger() Logger {
	return printfLogger{p: log.Default()}
}
