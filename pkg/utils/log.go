package utils

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ghettovoice/gosip/log"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var DefaultLogLevel = log.InfoLevel

var levelNames = map[log.Level]string{
	log.PanicLevel: "panic",
	log.FatalLevel: "fatal",
	log.ErrorLevel: "error",
	log.WarnLevel:  "warn",
	log.InfoLevel:  "info",
	log.DebugLevel: "debug",
	log.TraceLevel: "trace",
}

// LevelName is the lower case name of level.
func LevelName(level log.Level) string {
	if name, ok := levelNames[level]; ok {
		return name
	}
	return "unknown"
}

// ParseLogLevel maps a level name to a log level, defaulting to DefaultLogLevel.
func ParseLogLevel(name string) log.Level {
	name = strings.ToLower(name)
	if name == "warning" {
		return log.WarnLevel
	}
	for level, n := range levelNames {
		if n == name {
			return level
		}
	}
	return DefaultLogLevel
}

// LoggerLevel is one entry of the registry snapshot.
type LoggerLevel struct {
	Prefix string
	Level  log.Level
}

// Each prefix owns its own logrus instance, so one component can be made
// verbose from the console without touching the others.
type loggerRegistry struct {
	mu      sync.Mutex
	entries map[string]*registeredLogger
}

type registeredLogger struct {
	logger *log.LogrusLogger
	level  log.Level
}

var registry = &loggerRegistry{entries: make(map[string]*registeredLogger)}

func newPrefixedLogrus() *logrus.Logger {
	l := logrus.New()
	l.Formatter = &prefixed.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
		ForceColors:     true,
		ForceFormatting: true,
	}
	return l
}

func (r *loggerRegistry) get(prefix string, level log.Level) *registeredLogger {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[prefix]
	if !ok {
		entry = &registeredLogger{
			logger: log.NewLogrusLogger(newPrefixedLogrus(), "main", nil),
			level:  level,
		}
		entry.logger.SetLevel(level)
		r.entries[prefix] = entry
	}
	return entry
}

// NewLogrusLogger returns a logger for prefix. The first call for a prefix
// fixes its initial level, later calls share it.
func NewLogrusLogger(level log.Level, prefix string, fields log.Fields) log.Logger {
	logger := registry.get(prefix, level).logger.WithPrefix(prefix)
	if fields != nil {
		logger = logger.WithFields(fields)
	}
	return logger
}

// SetLogLevel changes the level of every logger created for prefix.
func SetLogLevel(prefix string, level log.Level) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	entry, ok := registry.entries[prefix]
	if !ok {
		return fmt.Errorf("no logger registered for %q", prefix)
	}
	entry.level = level
	entry.logger.SetLevel(level)
	return nil
}

// LoggerLevels lists the registered prefixes in name order.
func LoggerLevels() []LoggerLevel {
	registry.mu.Lock()
	levels := make([]LoggerLevel, 0, len(registry.entries))
	for prefix, entry := range registry.entries {
		levels = append(levels, LoggerLevel{Prefix: prefix, Level: entry.level})
	}
	registry.mu.Unlock()

	sort.Slice(levels, func(i, j int) bool { return levels[i].Prefix < levels[j].Prefix })
	return levels
}
