package entity

import (
	"fmt"
	"time"
)

// Report statuses.
const (
	ReportSuccess = "SUCCESS"
	ReportWarning = "WARNING"
	ReportFailure = "FAILURE"
	ReportNote    = "NOTE"
)

// Report is a message for the operator channel.
type Report struct {
	ID        int64
	Status    string
	Source    string
	Message   string
	Attached  map[string]any
	CreatedAt time.Time
}

func newReport(status, source, message string, attached map[string]any) *Report {
	return &Report{
		Status:    status,
		Source:    source,
		Message:   message,
		Attached:  attached,
		CreatedAt: time.Now(),
	}
}

// NewSuccessReport builds a SUCCESS report.
func NewSuccessReport(source, message string, attached map[string]any) *Report {
	return newReport(ReportSuccess, source, message, attached)
}

// NewWarningReport builds a WARNING report.
func NewWarningReport(source, message string, attached map[string]any) *Report {
	return newReport(ReportWarning, source, message, attached)
}

// NewFailureReport builds a FAILURE report.
func NewFailureReport(source, message string, attached map[string]any) *Report {
	return newReport(ReportFailure, source, message, attached)
}

// NewNoteReport builds an informational report.
func NewNoteReport(source, message string, attached map[string]any) *Report {
	return newReport(ReportNote, source, message, attached)
}

// NewExceptionReport builds a FAILURE report carrying err and its type.
func NewExceptionReport(source, message string, err error, attached map[string]any) *Report {
	if attached == nil {
		attached = make(map[string]any)
	}
	if err != nil {
		attached["error"] = err.Error()
		attached["error_type"] = fmt.Sprintf("%T", err)
	}
	return newReport(ReportFailure, source, message, attached)
}

// String renders the report as a single line, e.g. "[WARNING] Check: message".
func (r *Report) String() string {
	return fmt.Sprintf("[%s] %s: %s", r.Status, r.Source, r.Message)
}
