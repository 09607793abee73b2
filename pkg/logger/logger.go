// Package logger is the packet path logger. It stays silent until Init is called.
package logger

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

const (
	timeFormat = "2006-01-02 15:04:05.999"
)

var (
	mu   sync.RWMutex
	base = zerolog.Nop()
)

// Init enables output at the given level: trace, debug, info, warn or error.
func Init(level string) {
	l, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		l = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = timeFormat
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: timeFormat}

	mu.Lock()
	base = zerolog.New(output).Level(l).With().Timestamp().Logger()
	mu.Unlock()
}

// New returns a logger tagged with the component name.
func New(component string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.With().Str("component", component).Logger()
}
