// Package audit records one append-only entry per triaged email.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/daviddao/mailtriage/internal/types"
)

// Record is one audit entry.
type Record = types.AuditRecord

// Sink receives audit records. Records are never read back by the pipeline.
type Sink interface {
	Append(ctx context.Context, rec Record) error
	Close() error
}

// NewRecord builds the audit entry for an email. A nil decision with a
// non-nil err records a failed triage.
func NewRecord(runID, mode, model string, email types.Email, d *types.Decision, err error) Record {
	rec := Record{
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		EmailID:   email.ID,
		ThreadID:  email.ThreadID,
		From:      email.From,
		Subject:   email.Subject,
		Decision:  d,
		Mode:      mode,
		Model:     model,
		Status:    types.StatusOK,
	}
	if err != nil {
		rec.Status = types.StatusFailed
		rec.Error = err.Error()
	}
	return rec
}

// Multi fans records out to several sinks.
type Multi []Sink

// Append writes rec to every sink and joins their errors.
func (m Multi) Append(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every record.
var Discard Sink = discard{}

type discard struct{}

func (discard) Append(context.Context, Record) error { return nil }
func (discard) Close() error                         { return nil }
