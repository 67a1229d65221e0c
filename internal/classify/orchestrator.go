// Package classify drives the multi-stage hierarchical classification of
// feedback comments. Each stage decomposes the pending texts into labeled
// spans, and every accepted span re-scopes the next stage to its own
// excerpt, narrowed to the taxonomy children of its label.
package classify

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"facet/internal/extract"
	"facet/internal/hierarchy"
	"facet/internal/schema"
	"facet/internal/template"
)

const (
	DefaultBatchSize   = 25
	DefaultConcurrency = 4
)

// Options configures one run. Constructed once, immutable thereafter.
type Options struct {
	// MaxStage is the deepest taxonomy stage to expand, 1-4.
	MaxStage int
	// BatchSize caps how many pending extraction requests are dispatched
	// together. Batch membership affects throughput only.
	BatchSize int
	// Concurrency bounds in-flight generation calls within a batch.
	Concurrency int
}

// Orchestrator runs stages 1..MaxStage over a set of comments and merges
// the per-stage results into one classification tree per comment.
type Orchestrator struct {
	idx       *hierarchy.Index
	deriver   *schema.Deriver
	extractor *extract.Extractor
	log       *zap.Logger
	opts      Options
}

// New validates the run configuration and assembles an orchestrator.
// An out-of-range MaxStage is rejected here, before any comment is
// touched.
func New(idx *hierarchy.Index, store *template.Store, gen extract.Generator, log *zap.Logger, opts Options) (*Orchestrator, error) {
	if opts.MaxStage < 1 || opts.MaxStage > hierarchy.MaxLevel {
		return nil, fmt.Errorf("max stage must be 1-%d, got %d", hierarchy.MaxLevel, opts.MaxStage)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		idx:       idx,
		deriver:   schema.NewDeriver(idx, store),
		extractor: extract.New(gen, log),
		log:       log,
		opts:      opts,
	}, nil
}

// task is one pending (sourceText, parentSpan) pair awaiting extraction.
type task struct {
	tree   *Tree
	parent *Span // nil at stage 1
	source string
}

// Classify runs the full pipeline over the comments and returns one tree
// per comment, in input order, plus the run's usage/skip report.
//
// Cancellation is honored at stage boundaries: when ctx is done, the
// trees built so far are returned truncated at the last completed stage,
// never containing a half-validated span, alongside ctx's error.
func (o *Orchestrator) Classify(ctx context.Context, comments []string) ([]*Tree, *RunReport, error) {
	report := newRunReport(o.opts.MaxStage, o.opts.BatchSize, len(comments))

	trees := make([]*Tree, len(comments))
	pending := make([]task, 0, len(comments))
	for i, c := range comments {
		trees[i] = NewTree(i, c)
		pending = append(pending, task{tree: trees[i], source: c})
	}

	for stage := 1; stage <= o.opts.MaxStage && len(pending) > 0; stage++ {
		if err := ctx.Err(); err != nil {
			report.finish(true)
			return trees, report, err
		}
		o.log.Info("running stage", zap.Int("stage", stage), zap.Int("pending", len(pending)))
		next, err := o.runStage(ctx, stage, pending, report)
		if err != nil {
			report.finish(true)
			return trees, report, err
		}
		pending = next
	}

	report.finish(false)
	return trees, report, nil
}

// branchGroup collects the pending tasks that share one parent label and
// therefore one legal label schema.
type branchGroup struct {
	parentID string
	taskIdx  []int
	ls       schema.LabelSchema
	tpl      *template.Template
	live     bool
}

// callResult holds one task's outcome until the sequential merge, so
// span materialization order is independent of call completion order.
type callResult struct {
	called   bool
	failed   bool
	accepted []extract.Candidate
	rejected []extract.Rejection
	ls       schema.LabelSchema
}

func (o *Orchestrator) runStage(ctx context.Context, stage int, tasks []task, report *RunReport) ([]task, error) {
	sr := report.stage(stage)
	sr.Tasks += len(tasks)

	var order []string
	groups := make(map[string]*branchGroup)
	for i, tk := range tasks {
		pid := ""
		if tk.parent != nil {
			pid = tk.parent.Label
		}
		g, ok := groups[pid]
		if !ok {
			g = &branchGroup{parentID: pid}
			groups[pid] = g
			order = append(order, pid)
		}
		g.taskIdx = append(g.taskIdx, i)
	}

	results := make([]callResult, len(tasks))

	for _, pid := range order {
		g := groups[pid]
		ls, tpl, err := o.deriver.Derive(stage, g.parentID)
		if err != nil {
			return nil, err
		}
		if ls.Empty() {
			reason := PruneNoLegalChildren
			if tpl == nil {
				reason = PruneNoReadyTemplate
			}
			sr.prune(o.scopeName(stage, g.parentID), reason)
			continue
		}
		g.ls, g.tpl, g.live = ls, tpl, true

		for start := 0; start < len(g.taskIdx); start += o.opts.BatchSize {
			end := min(start+o.opts.BatchSize, len(g.taskIdx))
			eg, ectx := errgroup.WithContext(ctx)
			eg.SetLimit(o.opts.Concurrency)
			for _, ti := range g.taskIdx[start:end] {
				eg.Go(func() error {
					req := extract.Request{
						SourceText:   tasks[ti].source,
						Schema:       g.ls,
						Instructions: g.tpl.Prompt(tasks[ti].source),
					}
					accepted, rejected, err := o.extractor.Extract(ectx, req)
					if err != nil {
						// Contained: this branch degrades to zero
						// candidates, siblings are unaffected.
						results[ti] = callResult{called: true, failed: true}
						return nil
					}
					results[ti] = callResult{called: true, accepted: accepted, rejected: rejected, ls: g.ls}
					return nil
				})
			}
			_ = eg.Wait()
		}
	}

	// A stage interrupted mid-batch is discarded wholesale so every
	// returned tree sits on a completed stage boundary.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var next []task
	for i, tk := range tasks {
		res := results[i]
		if res.called {
			sr.Calls++
		}
		if res.failed {
			sr.GenerationFailures++
		}
		sr.reject(res.rejected)

		parentSpanID := ""
		if tk.parent != nil {
			parentSpanID = tk.parent.ID
		}
		for _, c := range res.accepted {
			node, ok := res.ls.NodeFor(c.Label)
			if !ok {
				continue
			}
			span := tk.tree.add(parentSpanID, stage, node.ID, tk.source, c.Excerpt, c.Sentiment, c.Reasoning)
			sr.Spans++
			if stage < o.opts.MaxStage {
				next = append(next, task{tree: tk.tree, parent: span, source: span.Excerpt})
			}
		}
	}
	return next, nil
}

func (o *Orchestrator) scopeName(stage int, parentID string) string {
	if stage == 1 {
		return "categories"
	}
	if n, ok := o.idx.Node(parentID); ok {
		return n.Name
	}
	return parentID
}
