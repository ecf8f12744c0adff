// Package logging adapts a logrus logger to the es.Logger contract used by
// every orchestrator component.
package logging

import (
	"context"
	"fmt"
	"io"

	"github.com/getpup/pupsourcing/es"
	log "github.com/sirupsen/logrus"
)

// Logrus implements es.Logger on top of a logrus.FieldLogger.
// Key/value arguments become logrus fields.
type Logrus struct {
	logger log.FieldLogger
}

var _ es.Logger = (*Logrus)(nil)

// NewLogrus wraps logger.
func NewLogrus(logger log.FieldLogger) *Logrus {
	return &Logrus{logger: logger}
}

// New builds a logrus logger writing to out at level. Format is "json" or "text".
func New(out io.Writer, level, format string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	logger := log.New()
	logger.SetOutput(out)
	logger.SetLevel(lvl)

	switch format {
	case "", "json":
		logger.SetFormatter(&log.JSONFormatter{})
	case "text":
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}

	return logger, nil
}

// Debug implements es.Logger.
func (l *Logrus) Debug(ctx context.Context, msg string, keyvals ...interface{}) {
	l.entry(keyvals).Debug(msg)
}

// Info implements es.Logger.
func (l *Logrus) Info(ctx context.Context, msg string, keyvals ...interface{}) {
	l.entry(keyvals).Info(msg)
}

// Error implements es.Logger.
func (l *Logrus) Error(ctx context.Context, msg string, keyvals ...interface{}) {
	l.entry(keyvals).Error(msg)
}

// entry turns alternating key/value arguments into fields. A trailing key
// without a value is logged under "extra". Error values go through
// WithError so formatters render them as strings.
func (l *Logrus) entry(keyvals []interface{}) log.FieldLogger {
	fields := make(log.Fields, len(keyvals)/2+1)
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if i+1 == len(keyvals) {
			fields["extra"] = keyvals[i]
			break
		}
		if err, ok := keyvals[i+1].(error); ok {
			fields[key] = err.Error()
			continue
		}
		fields[key] = keyvals[i+1]
	}
	return l.logger.WithFields(fields)
}
