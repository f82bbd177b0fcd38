// internal/report/sink.go

// Package report persists finished capacity reports to local disk,
// object storage, or Postgres.
package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/FairForge/rampart/internal/capacity"
)

// Sink stores a finished capacity report.
type Sink interface {
	Store(ctx context.Context, rep *capacity.Report) error
}

// MultiSink fans a report out to every configured sink. Each sink gets
// a chance to store the report even when an earlier one failed.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks into one.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Store delivers the report to every sink and joins their errors.
func (m *MultiSink) Store(ctx context.Context, rep *capacity.Report) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Store(ctx, rep); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", s, err))
		}
	}
	return errors.Join(errs...)
}
