package decision

import (
	"context"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Pending is implemented by anything that references open decisions.
type Pending interface {
	PendingDecisions() []*Decision
}

// Answerer settles a batch of decisions. Decisions it cannot settle stay open.
type Answerer interface {
	Answer(ctx context.Context, batch []*Decision) error
}

// AnswererFunc adapts a function to Answerer.
type AnswererFunc func(ctx context.Context, batch []*Decision) error

// Answer calls f.
func (f AnswererFunc) Answer(ctx context.Context, batch []*Decision) error {
	return f(ctx, batch)
}

// Collect gathers the open decisions of all sources, deduplicated and
// ordered by key.
func Collect[P Pending](sources ...P) []*Decision {
	seen := make(map[*Decision]bool)
	var out []*Decision
	for _, src := range sources {
		for _, d := range src.PendingDecisions() {
			if d == nil || seen[d] || d.Settled() {
				continue
			}
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

// Summary counts decision outcomes after Settle.
type Summary struct {
	Answered int `json:"answered"`
	Skipped  int `json:"skipped"`
	Open     int `json:"open"`
}

// Settle hands the batch to a and reports what got settled.
func Settle(ctx context.Context, a Answerer, batch []*Decision) (Summary, error) {
	var sum Summary
	if len(batch) > 0 {
		if err := a.Answer(ctx, batch); err != nil {
			return sum, eris.Wrap(err, "decision: settle")
		}
	}
	for _, d := range batch {
		switch d.Status() {
		case StatusAnswered:
			sum.Answered++
		case StatusSkipped:
			sum.Skipped++
		default:
			sum.Open++
		}
	}
	return sum, nil
}

// StaticAnswerer answers decisions from a fixed key → value table.
type StaticAnswerer struct {
	answers     map[string]any
	skipMissing bool
}

// NewStaticAnswerer returns an answerer backed by answers. With skipMissing,
// skippable decisions without an entry are skipped instead of left open.
func NewStaticAnswerer(answers map[string]any, skipMissing bool) *StaticAnswerer {
	return &StaticAnswerer{answers: answers, skipMissing: skipMissing}
}

// LoadAnswers reads a YAML map of decision key → value.
func LoadAnswers(path string, skipMissing bool) (*StaticAnswerer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "decision: read answers %s", path)
	}
	var answers map[string]any
	if err := yaml.Unmarshal(data, &answers); err != nil {
		return nil, eris.Wrap(err, "decision: parse answers")
	}
	return NewStaticAnswerer(answers, skipMissing), nil
}

// Answer implements Answerer. A nil entry means skip. Entries the decision
// rejects are logged and leave that decision open.
func (s *StaticAnswerer) Answer(ctx context.Context, batch []*Decision) error {
	for _, d := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.Settled() {
			continue
		}
		v, ok := s.answers[d.Key()]
		switch {
		case ok && v != nil:
			if err := d.Answer(v); err != nil {
				zap.L().Warn("decision: answer rejected",
					zap.String("key", d.Key()),
					zap.Any("answer", v),
					zap.Error(err),
				)
			}
		case (ok || s.skipMissing) && d.AllowsSkip():
			if err := d.Skip(); err != nil {
				zap.L().Warn("decision: skip rejected",
					zap.String("key", d.Key()),
					zap.Error(err),
				)
			}
		default:
			zap.L().Debug("decision: no answer", zap.String("key", d.Key()))
		}
	}
	return nil
}
