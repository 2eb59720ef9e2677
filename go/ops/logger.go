// Package ops carries structured logging ambient to every combiner
// component, the same Logger/level split the teacher's runtime uses to
// let a single call site log either to an ops collection at runtime or
// to stderr during a one-off CLI invocation.
package ops

import (
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Logger publishes log events gated by a configured level filter. The
// Combiner accepts one through its Config and logs each spill at Debug;
// validation, reduction, and spill I/O failures are returned to the
// caller as errors rather than logged.
type Logger interface {
	Log(level log.Level, fields log.Fields, message string) error
	LogForwarded(ts time.Time, level log.Level, fields map[string]json.RawMessage, message string) error
	Level() log.Level
}

// NewLoggerWithFields wraps delegate, adding fields to every event it
// forwards, so a Combiner can attach e.g. binding/shard context once at
// construction rather than threading it through every log call site.
func NewLoggerWithFields(delegate Logger, add log.Fields) Logger {
	var addJSON = make(map[string]json.RawMessage, len(add))
	for k, v := range add {
		var encoded, err = json.Marshal(v)
		if err != nil {
			panic(fmt.Sprintf("encoding log field failed: %v, value: %v", err, v))
		}
		addJSON[k] = encoded
	}
	return &withFieldsLogger{delegate: delegate, add: add, addJSON: addJSON}
}

type withFieldsLogger struct {
	delegate Logger
	add      log.Fields
	addJSON  map[string]json.RawMessage
}

func (l *withFieldsLogger) Level() log.Level { return l.delegate.Level() }

func (l *withFieldsLogger) Log(level log.Level, fields log.Fields, message string) error {
	var finalFields = l.add
	if len(fields) > 0 && level <= l.delegate.Level() {
		finalFields = log.Fields{}
		for k, v := range l.add {
			finalFields[k] = v
		}
		for k, v := range fields {
			finalFields[k] = v
		}
	}
	return l.delegate.Log(level, finalFields, message)
}

func (l *withFieldsLogger) LogForwarded(ts time.Time, level log.Level, fields map[string]json.RawMessage, message string) error {
	var finalFields = l.addJSON
	if len(fields) > 0 && level <= l.delegate.Level() {
		finalFields = make(map[string]json.RawMessage, len(fields)+len(l.addJSON))
		for k, v := range l.addJSON {
			finalFields[k] = v
		}
		for k, v := range fields {
			finalFields[k] = v
		}
	}
	return l.delegate.LogForwarded(ts, level, finalFields, message)
}

type stdLogger struct{}

func (stdLogger) Level() log.Level { return log.GetLevel() }

func (l stdLogger) Log(level log.Level, fields log.Fields, message string) error {
	if level > l.Level() {
		return nil
	}
	log.WithFields(fields).Log(level, message)
	return nil
}

func (l stdLogger) LogForwarded(ts time.Time, level log.Level, fields map[string]json.RawMessage, message string) error {
	var entry = log.NewEntry(log.StandardLogger())
	entry.Time = ts
	for key, val := range fields {
		var deser interface{}
		if err := json.Unmarshal(val, &deser); err == nil {
			entry.Data[key] = deser
		}
	}
	entry.Log(level, message)
	return nil
}

// StdLogger returns a Logger that forwards directly to the global
// logrus logger, for use outside a runtime that collects ops logs (the
// cmd/combinectl CLI, and tests).
func StdLogger() Logger { return stdLogger{} }
