// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package diagnostics

import "sync"

// Report is one call recorded by a Recorder.
type Report struct {
	Severity Severity
	Message  string
	Fields   Fields
}

// Recorder keeps every report in memory. It is meant for tests.
type Recorder struct {
	mu      sync.Mutex
	reports []Report
}

func (r *Recorder) Report(severity Severity, message string, fields Fields) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, Report{Severity: severity, Message: message, Fields: fields})
}

func (r *Recorder) Reports() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Report(nil), r.reports...)
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}
