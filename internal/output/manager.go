package output

import (
	"errors"
	"fmt"
)

// Sink receives Events and drift.Outcome values.
type Sink interface {
	Write(v any) error
	Close() error
}

// Discarder is implemented by sinks that can drop what they buffered instead
// of committing it. A fatal run discards; a finished run closes.
type Discarder interface {
	Discard() error
}

// Manager fans every write out to all sinks. One failing sink does not stop
// the others; errors are joined.
type Manager struct {
	sinks []Sink
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) AddSink(s Sink) error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	if s == nil {
		return fmt.Errorf("sink must not be nil")
	}
	m.sinks = append(m.sinks, s)
	return nil
}

func (m *Manager) Write(v any) error {
	return m.each("write", func(s Sink) error { return s.Write(v) })
}

func (m *Manager) Close() error {
	return m.each("close", Sink.Close)
}

// Discard ends every sink without committing buffered output. Sinks that
// cannot discard are closed.
func (m *Manager) Discard() error {
	return m.each("discard", func(s Sink) error {
		if d, ok := s.(Discarder); ok {
			return d.Discard()
		}
		return s.Close()
	})
}

func (m *Manager) each(op string, fn func(Sink) error) error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	var errs []error
	for _, s := range m.sinks {
		if err := fn(s); err != nil {
			errs = append(errs, fmt.Errorf("%s %T: %w", op, s, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors on %s: %w", op, errors.Join(errs...))
	}
	return nil
}
