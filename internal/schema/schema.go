// Package schema derives the legal label set offered to each extraction
// call. The derivation is pure with respect to the generation mechanism:
// it produces an ordered label list that any structured-output backend
// can turn into a constrained contract.
package schema

import (
	"fmt"

	"facet/internal/hierarchy"
	"facet/internal/template"
)

// Sentiments are the four canonical sentiment values every stage shares.
var Sentiments = []string{"positive", "negative", "neutral", "mixed"}

// ValidSentiment reports whether s is one of the canonical values.
func ValidSentiment(s string) bool {
	for _, v := range Sentiments {
		if s == v {
			return true
		}
	}
	return false
}

// LabelSchema is the constrained contract for one extraction call: the
// exact ordered set of labels the generation capability may choose from.
type LabelSchema struct {
	Stage  int
	Field  string // JSON key carrying the label in the structured output
	Labels []*hierarchy.Node
}

// Empty reports whether no label is legal, which makes the branch
// terminal without a generation call.
func (ls LabelSchema) Empty() bool { return len(ls.Labels) == 0 }

// Names returns the legal label names in offer order.
func (ls LabelSchema) Names() []string {
	out := make([]string, 0, len(ls.Labels))
	for _, n := range ls.Labels {
		out = append(out, n.Name)
	}
	return out
}

// NodeFor resolves a returned label name back to its taxonomy node.
// The second return is false when the name is not in the legal set.
func (ls LabelSchema) NodeFor(name string) (*hierarchy.Node, bool) {
	for _, n := range ls.Labels {
		if n.Name == name {
			return n, true
		}
	}
	return nil, false
}

// Deriver computes legal label sets from the taxonomy narrowed by
// template readiness. Both inputs are read-only, so a Deriver is safe
// for concurrent use.
type Deriver struct {
	idx   *hierarchy.Index
	store *template.Store
}

func NewDeriver(idx *hierarchy.Index, store *template.Store) *Deriver {
	return &Deriver{idx: idx, store: store}
}

// Derive returns the legal label schema for an extraction call at the
// given stage scoped under parentID (empty for stage 1), together with
// the template carrying the call's instructions.
//
// A child that exists in the taxonomy but is not covered by a ready
// template is excluded from the offered set entirely, so the generation
// call is structurally unable to select it. An empty schema means the
// branch is terminal; no call may be issued for it. Errors are reserved
// for structural misuse (bad stage, unknown or mis-leveled parent).
func (d *Deriver) Derive(stage int, parentID string) (LabelSchema, *template.Template, error) {
	if stage < 1 || stage > hierarchy.MaxLevel {
		return LabelSchema{}, nil, fmt.Errorf("stage must be 1-%d, got %d", hierarchy.MaxLevel, stage)
	}

	var (
		candidates []*hierarchy.Node
		scopeLabel string
	)
	if stage == 1 {
		candidates = d.idx.Roots()
	} else {
		parent, ok := d.idx.Node(parentID)
		if !ok {
			return LabelSchema{}, nil, fmt.Errorf("unknown parent label %q", parentID)
		}
		if int(parent.Level) != stage-1 {
			return LabelSchema{}, nil, fmt.Errorf(
				"parent %q is a %s, cannot scope a stage-%d call", parent.Name, parent.Level, stage)
		}
		candidates = d.idx.Children(parentID)
		scopeLabel = parent.Name
	}

	tpl, ok := d.store.Resolve(stage, scopeLabel)
	if !ok || !tpl.IsReady() {
		return LabelSchema{Stage: stage, Field: hierarchy.Level(stage).String()}, nil, nil
	}

	ls := LabelSchema{Stage: stage, Field: tpl.Field()}
	for _, c := range candidates {
		if tpl.Covers(c.Name) {
			ls.Labels = append(ls.Labels, c)
		}
	}
	return ls, tpl, nil
}
