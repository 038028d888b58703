// Package decision holds requests for values that no automatic source could
// supply. The attribute engine creates decisions and reads their results;
// how they are answered is up to an Answerer.
package decision

import (
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bimattr/internal/units"
)

var (
	// ErrUnsettled is returned by Value while a decision is still open.
	ErrUnsettled = eris.New("decision: not settled")
	// ErrSkipNotAllowed is returned by Skip for decisions that must be answered.
	ErrSkipNotAllowed = eris.New("decision: skip not allowed")
	// ErrSettled is returned when answering a decision twice.
	ErrSettled = eris.New("decision: already settled")
)

// Status of a decision.
type Status int

const (
	StatusOpen Status = iota
	StatusAnswered
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusAnswered:
		return "answered"
	case StatusSkipped:
		return "skipped"
	default:
		return "open"
	}
}

// Decision is a pending request for a human or policy supplied value,
// addressed by a key that stays stable across runs. Safe for concurrent use.
type Decision struct {
	key       string
	question  string
	unit      units.Unit
	allowSkip bool
	persist   bool

	mu     sync.Mutex
	status Status
	value  any
}

// Option configures a Decision.
type Option func(*Decision)

// WithKey sets the global key.
func WithKey(key string) Option {
	return func(d *Decision) { d.key = key }
}

// WithUnit sets the unit the answer is converted to.
func WithUnit(u units.Unit) Option {
	return func(d *Decision) { d.unit = u }
}

// AllowSkip lets the decision be settled without a value.
func AllowSkip(allow bool) Option {
	return func(d *Decision) { d.allowSkip = allow }
}

// Persist marks the answer as worth keeping for later runs.
func Persist(persist bool) Option {
	return func(d *Decision) { d.persist = persist }
}

// New creates an open decision.
func New(question string, opts ...Option) *Decision {
	d := &Decision{question: question}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Decision) Key() string      { return d.key }
func (d *Decision) Question() string { return d.question }
func (d *Decision) Unit() units.Unit { return d.unit }
func (d *Decision) AllowsSkip() bool { return d.allowSkip }
func (d *Decision) Persists() bool   { return d.persist }

// Status returns the current status.
func (d *Decision) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Settled reports whether the decision was answered or skipped.
func (d *Decision) Settled() bool {
	return d.Status() != StatusOpen
}

// Value returns the answer. Skipped decisions yield nil.
func (d *Decision) Value() (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status == StatusOpen {
		return nil, eris.Wrapf(ErrUnsettled, "decision: %s", d.key)
	}
	return d.value, nil
}

// Answer settles the decision with v, converted to the decision's unit.
func (d *Decision) Answer(v any) error {
	converted, err := units.Attach(v, d.unit)
	if err != nil {
		return eris.Wrapf(err, "decision: answer %s", d.key)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != StatusOpen {
		return eris.Wrapf(ErrSettled, "decision: answer %s", d.key)
	}
	d.value = converted
	d.status = StatusAnswered
	return nil
}

// Skip settles the decision without a value.
func (d *Decision) Skip() error {
	if !d.allowSkip {
		return eris.Wrapf(ErrSkipNotAllowed, "decision: skip %s", d.key)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != StatusOpen {
		return eris.Wrapf(ErrSettled, "decision: skip %s", d.key)
	}
	d.status = StatusSkipped
	return nil
}
