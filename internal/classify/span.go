package classify

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Span is one labeled excerpt produced at one taxonomy stage. Spans are
// immutable once materialized; corrections discard and re-extract.
type Span struct {
	ID         string `json:"id"`
	Stage      int    `json:"stage"`
	ParentID   string `json:"parent_id,omitempty"`
	Label      string `json:"label"` // taxonomy node id
	SourceText string `json:"source_text"`
	Excerpt    string `json:"excerpt"`
	Sentiment  string `json:"sentiment"`
	Reasoning  string `json:"reasoning"`
}

// Tree is the full forest of spans for one comment, stored as an arena
// indexed by span id with parent links. Merging a span is O(1).
type Tree struct {
	CommentID string  `json:"comment_id"`
	Comment   string  `json:"comment"`
	Spans     []*Span `json:"spans"`

	byID     map[string]*Span
	children map[string][]string
}

// Span ids are v5 UUIDs over the tree, parent, and sibling ordinal, so a
// run against a generator that returns fixed candidates for fixed inputs
// reproduces byte-identical trees.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("facet"))

// NewTree starts an empty classification tree for the comment at the
// given position of the run's input.
func NewTree(ordinal int, comment string) *Tree {
	return &Tree{
		CommentID: uuid.NewSHA1(idNamespace, fmt.Appendf(nil, "comment|%d|%s", ordinal, comment)).String(),
		Comment:   comment,
		byID:      make(map[string]*Span),
		children:  make(map[string][]string),
	}
}

// add materializes a validated candidate as a span under parentID
// (empty for stage 1, which roots at the comment).
func (t *Tree) add(parentID string, stage int, label, sourceText, excerpt, sentiment, reasoning string) *Span {
	ordinal := len(t.children[parentID])
	s := &Span{
		ID: uuid.NewSHA1(idNamespace,
			fmt.Appendf(nil, "span|%s|%s|%d|%d", t.CommentID, parentID, stage, ordinal)).String(),
		Stage:      stage,
		ParentID:   parentID,
		Label:      label,
		SourceText: sourceText,
		Excerpt:    excerpt,
		Sentiment:  sentiment,
		Reasoning:  reasoning,
	}
	t.Spans = append(t.Spans, s)
	t.byID[s.ID] = s
	t.children[parentID] = append(t.children[parentID], s.ID)
	return s
}

// Span returns the span with the given id.
func (t *Tree) Span(id string) (*Span, bool) {
	s, ok := t.byID[id]
	return s, ok
}

// Roots returns the stage-1 spans in materialization order.
func (t *Tree) Roots() []*Span {
	return t.childSpans("")
}

// Children returns the direct child spans of id in materialization order.
func (t *Tree) Children(id string) []*Span {
	return t.childSpans(id)
}

func (t *Tree) childSpans(parentID string) []*Span {
	ids := t.children[parentID]
	out := make([]*Span, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.byID[id])
	}
	return out
}

// Leaves returns every span without children, the terminals the flat
// export is built from.
func (t *Tree) Leaves() []*Span {
	var out []*Span
	for _, s := range t.Spans {
		if len(t.children[s.ID]) == 0 {
			out = append(out, s)
		}
	}
	return out
}

// UnmarshalJSON rebuilds the arena indexes from the serialized span
// records, so a tree round-trips through its parent links alone.
func (t *Tree) UnmarshalJSON(b []byte) error {
	type alias Tree
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*t = Tree(a)
	t.byID = make(map[string]*Span, len(t.Spans))
	t.children = make(map[string][]string)
	for _, s := range t.Spans {
		if _, dup := t.byID[s.ID]; dup {
			return fmt.Errorf("duplicate span id %s", s.ID)
		}
		t.byID[s.ID] = s
	}
	for _, s := range t.Spans {
		if s.ParentID != "" {
			if _, ok := t.byID[s.ParentID]; !ok {
				return fmt.Errorf("span %s references missing parent %s", s.ID, s.ParentID)
			}
		}
		t.children[s.ParentID] = append(t.children[s.ParentID], s.ID)
	}
	return nil
}
