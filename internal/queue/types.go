// Package queue is the in-process job queue the nightly run fans out over.
// Messages are delivered to registered handlers by a fixed-size worker pool;
// retryable failures are redelivered up to the per-message retry cap.
package queue

import (
	"context"
	"time"
)

// Kind identifies the work a message carries.
type Kind string

const (
	// KindRawFetch fetches and persists one symbol's raw price history.
	KindRawFetch Kind = "raw_fetch"
	// KindDerivedCompute computes indicators, percentiles, comparatives,
	// and the artifact for one symbol. Only enqueued after the raw barrier.
	KindDerivedCompute Kind = "derived_compute"
	// KindReportRender renders and uploads the PDF report for one symbol.
	KindReportRender Kind = "report_render"
)

// Message is one unit of per-symbol work. The correlation fields (RunID,
// Symbol, BusinessDate) appear on every log line the handler emits.
type Message struct {
	ID           string
	Kind         Kind
	RunID        string
	SymbolID     int64
	Symbol       string
	BusinessDate string

	Attempts    int // delivery attempts so far, starts at 0
	MaxAttempts int

	EnqueuedAt time.Time
}

// Handler processes one message. A nil return acknowledges the message;
// an error routes through the retry policy via domain.IsRetryable.
type Handler func(ctx context.Context, msg *Message) error

// Result is the terminal outcome of a message, reported once per message
// regardless of how many deliveries it took.
type Result struct {
	Message *Message
	Err     error // nil on success
}

// GetKindDescription returns a human-readable description for a message kind
func GetKindDescription(kind Kind) string {
	switch kind {
	case KindRawFetch:
		return "Fetching raw price history"
	case KindDerivedCompute:
		return "Computing derived features"
	case KindReportRender:
		return "Rendering PDF report"
	default:
		return string(kind)
	}
}
