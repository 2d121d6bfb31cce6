// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package diagnostics

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"go.uber.org/zap"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// Fields is the structured context attached to a report.
type Fields map[string]any

// Sink receives reports. Implementations must not block for long and must
// not panic.
type Sink interface {
	Report(severity Severity, message string, fields Fields)
}

type SinkFunc func(severity Severity, message string, fields Fields)

func (f SinkFunc) Report(severity Severity, message string, fields Fields) {
	f(severity, message, fields)
}

type Nop struct{}

func (Nop) Report(Severity, string, Fields) {}

// SafeReport calls sink and swallows a panic raised by it.
func SafeReport(sink Sink, severity Severity, message string, fields Fields) {
	if sink == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	sink.Report(severity, message, fields)
}

// KeyValues flattens fields into sorted key/value pairs for SugaredLogger.
func (f Fields) KeyValues() []interface{} {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	kv := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		kv = append(kv, k, f[k])
	}
	return kv
}

// LogSink writes reports to a zap logger.
type LogSink struct {
	log *zap.SugaredLogger
}

func NewLogSink(log *zap.SugaredLogger) *LogSink {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Report(severity Severity, message string, fields Fields) {
	kv := fields.KeyValues()
	switch severity {
	case SeverityError:
		s.log.Errorw("API error: "+message, kv...)
	case SeverityWarn:
		s.log.Warnw(message, kv...)
	default:
		s.log.Infow(message, kv...)
	}
}

// Notifier prints the user-facing message of error reports, one per line.
type Notifier struct {
	mu sync.Mutex
	w  io.Writer
}

func NewNotifier(w io.Writer) *Notifier {
	return &Notifier{w: w}
}

func (n *Notifier) Report(severity Severity, message string, _ Fields) {
	if severity != SeverityError || n.w == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	_, _ = fmt.Fprintf(n.w, "error: %s\n", message)
}

// Multi forwards reports to every registered provider in registration
// order. In production mode info reports are dropped.
type Multi struct {
	mu         sync.RWMutex
	providers  []Sink
	production bool
}

func NewMulti(production bool, providers ...Sink) *Multi {
	m := &Multi{production: production}
	for _, p := range providers {
		m.Add(p)
	}
	return m
}

func (m *Multi) Add(provider Sink) {
	if provider == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers = append(m.providers, provider)
}

func (m *Multi) Report(severity Severity, message string, fields Fields) {
	if m.production && severity == SeverityInfo {
		return
	}
	m.mu.RLock()
	providers := append([]Sink(nil), m.providers...)
	m.mu.RUnlock()
	for _, p := range providers {
		SafeReport(p, severity, message, fields)
	}
}
