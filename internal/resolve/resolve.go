// Package resolve drives attribute resolution over a whole model: entities
// are resolved in parallel, unresolved fields are escalated to decisions,
// and decisions are settled in one batch before values are promoted.
package resolve

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/bimattr/internal/attr"
	"github.com/sells-group/bimattr/internal/decision"
	"github.com/sells-group/bimattr/internal/element"
	"github.com/sells-group/bimattr/internal/finder"
)

// Config controls a Resolver.
type Config struct {
	MaxConcurrentEntities int  `yaml:"max_concurrent_entities" mapstructure:"max_concurrent_entities"`
	RequestMissing        bool `yaml:"request_missing" mapstructure:"request_missing"`
	PromptUnknownTools    bool `yaml:"prompt_unknown_tools" mapstructure:"prompt_unknown_tools"`
}

// Report summarizes a run.
type Report struct {
	Entities     int                 `json:"entities"`
	Fields       int                 `json:"fields"`
	ByStatus     map[attr.Status]int `json:"by_status"`
	Requested    int                 `json:"requested"`
	Decisions    decision.Summary    `json:"decisions"`
	UnknownTools []string            `json:"unknown_tools,omitempty"`
}

// Resolver runs the resolution phases.
type Resolver struct {
	cfg      Config
	answerer decision.Answerer
}

// New creates a Resolver. answerer may be nil, in which case decisions stay
// open.
func New(cfg Config, answerer decision.Answerer) *Resolver {
	if cfg.MaxConcurrentEntities <= 0 {
		cfg.MaxConcurrentEntities = 1
	}
	return &Resolver{cfg: cfg, answerer: answerer}
}

// Run resolves every element of reg and settles outstanding decisions.
func (r *Resolver) Run(ctx context.Context, reg *element.Registry) (*Report, error) {
	elements := reg.Elements()
	report := &Report{Entities: len(elements), ByStatus: make(map[attr.Status]int)}

	if r.cfg.PromptUnknownTools && reg.FinderTemplates() != nil {
		unknown, err := r.ClassifyTools(ctx, reg.FinderTemplates(), elements)
		if err != nil {
			return nil, err
		}
		report.UnknownTools = unknown
	}

	requested, err := r.Resolve(ctx, elements)
	if err != nil {
		return nil, err
	}
	report.Requested = requested

	sum, err := r.Settle(ctx, elements)
	if err != nil {
		return nil, err
	}
	report.Decisions = sum

	for _, e := range elements {
		store := e.Attributes()
		for _, f := range store.Fields() {
			st, err := store.Status(f)
			if err != nil {
				return nil, err
			}
			report.Fields++
			report.ByStatus[st]++
		}
	}

	zap.L().Info("resolve: run complete",
		zap.Int("entities", report.Entities),
		zap.Int("fields", report.Fields),
		zap.Int("available", report.ByStatus[attr.StatusAvailable]),
		zap.Int("requested", report.ByStatus[attr.StatusRequested]),
		zap.Int("not_available", report.ByStatus[attr.StatusNotAvailable]),
	)
	return report, nil
}

// Resolve gets every field of every element, in parallel across elements,
// and requests missing fields when configured to. It returns the number of
// requested fields.
func (r *Resolver) Resolve(ctx context.Context, elements []*element.Element) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxConcurrentEntities)

	var requested atomic.Int64
	for _, e := range elements {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			store := e.Attributes()
			if err := store.ResolveAll(); err != nil {
				return eris.Wrapf(err, "resolve: %s %s", e.TypeName(), e.GUID())
			}
			if !r.cfg.RequestMissing {
				return nil
			}
			decs, err := store.RequestMissing()
			if err != nil {
				return eris.Wrapf(err, "resolve: request %s %s", e.TypeName(), e.GUID())
			}
			requested.Add(int64(len(decs)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return int(requested.Load()), nil
}

// Pending collects the open decisions of all elements.
func Pending(elements []*element.Element) []*decision.Decision {
	stores := make([]*attr.Store, len(elements))
	for i, e := range elements {
		stores[i] = e.Attributes()
	}
	return decision.Collect(stores...)
}

// Settle hands all open decisions to the answerer in one batch, then
// promotes the answered fields.
func (r *Resolver) Settle(ctx context.Context, elements []*element.Element) (decision.Summary, error) {
	pending := Pending(elements)
	if r.answerer == nil {
		return decision.Summary{Open: len(pending)}, nil
	}

	sum, err := decision.Settle(ctx, r.answerer, pending)
	if err != nil {
		return sum, err
	}

	for _, e := range elements {
		store := e.Attributes()
		for _, f := range store.Fields() {
			if st, _ := store.Status(f); st != attr.StatusRequested {
				continue
			}
			if _, _, err := store.Get(f); err != nil {
				return sum, eris.Wrapf(err, "resolve: promote %s.%s", e.GUID(), f)
			}
		}
	}
	return sum, nil
}

// ClassifyTools checks every authoring tool against the finder templates.
// Each unrecognized tool is asked about once; an answer naming a template
// set aliases the tool to it. It returns the tools left unrecognized.
func (r *Resolver) ClassifyTools(ctx context.Context, f *finder.Finder, elements []*element.Element) ([]string, error) {
	tools := make(map[string]bool)
	for _, e := range elements {
		if src := e.Source(); src != nil && src.Tool() != "" {
			tools[src.Tool()] = true
		}
	}

	var batch []*decision.Decision
	byKey := make(map[string]string)
	for tool := range tools {
		if _, ok := f.Classify(tool); ok {
			continue
		}
		zap.L().Info("resolve: unknown authoring tool", zap.String("tool", tool))
		if !f.MarkUnknown(tool) {
			continue
		}
		d := decision.New(
			fmt.Sprintf("Which template set matches authoring tool %q? One of: %s", tool, strings.Join(f.Names(), ", ")),
			decision.WithKey(ToolDecisionKey(tool)),
			decision.AllowSkip(true),
			decision.Persist(true),
		)
		batch = append(batch, d)
		byKey[d.Key()] = tool
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Key() < batch[j].Key() })

	if len(batch) > 0 && r.answerer != nil {
		if _, err := decision.Settle(ctx, r.answerer, batch); err != nil {
			return nil, err
		}
	}

	var unknown []string
	for _, d := range batch {
		tool := byKey[d.Key()]
		v, err := d.Value()
		if err != nil || v == nil {
			unknown = append(unknown, tool)
			continue
		}
		if err := f.Alias(tool, fmt.Sprint(v)); err != nil {
			zap.L().Warn("resolve: invalid template set answer",
				zap.String("tool", tool),
				zap.Error(err),
			)
			unknown = append(unknown, tool)
		}
	}
	return unknown, nil
}

// ToolDecisionKey is the decision key for classifying an authoring tool.
func ToolDecisionKey(tool string) string {
	return "tool:" + tool
}
