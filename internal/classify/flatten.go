package classify

import (
	"facet/internal/hierarchy"
)

// Record is one flattened row: a leaf span with the label path and the
// excerpt, sentiment, and reasoning captured at every level above it.
type Record struct {
	Comment string `json:"original_comment"`

	Category        string `json:"category,omitempty"`
	Stage1Excerpt   string `json:"stage1_excerpt,omitempty"`
	Stage1Reasoning string `json:"stage1_reasoning,omitempty"`
	Stage1Sentiment string `json:"stage1_sentiment,omitempty"`

	SubCategory     string `json:"sub_category,omitempty"`
	Stage2Excerpt   string `json:"stage2_excerpt,omitempty"`
	Stage2Reasoning string `json:"stage2_reasoning,omitempty"`
	Stage2Sentiment string `json:"stage2_sentiment,omitempty"`

	Element         string `json:"element,omitempty"`
	Stage3Excerpt   string `json:"stage3_excerpt,omitempty"`
	Stage3Reasoning string `json:"stage3_reasoning,omitempty"`
	Stage3Sentiment string `json:"stage3_sentiment,omitempty"`

	Attribute       string `json:"attribute,omitempty"`
	Stage4Excerpt   string `json:"stage4_excerpt,omitempty"`
	Stage4Reasoning string `json:"stage4_reasoning,omitempty"`
	Stage4Sentiment string `json:"stage4_sentiment,omitempty"`
}

// RecordHeader returns the column order used by the flat exports.
func RecordHeader() []string {
	return []string{
		"original_comment",
		"category", "stage1_excerpt", "stage1_reasoning", "stage1_sentiment",
		"sub_category", "stage2_excerpt", "stage2_reasoning", "stage2_sentiment",
		"element", "stage3_excerpt", "stage3_reasoning", "stage3_sentiment",
		"attribute", "stage4_excerpt", "stage4_reasoning", "stage4_sentiment",
	}
}

// Values returns the record fields in RecordHeader order.
func (r Record) Values() []string {
	return []string{
		r.Comment,
		r.Category, r.Stage1Excerpt, r.Stage1Reasoning, r.Stage1Sentiment,
		r.SubCategory, r.Stage2Excerpt, r.Stage2Reasoning, r.Stage2Sentiment,
		r.Element, r.Stage3Excerpt, r.Stage3Reasoning, r.Stage3Sentiment,
		r.Attribute, r.Stage4Excerpt, r.Stage4Reasoning, r.Stage4Sentiment,
	}
}

// Flatten converts a tree into one record per leaf span. A comment with
// no spans still yields a single record so every input appears in the
// export.
func Flatten(tree *Tree, idx *hierarchy.Index) []Record {
	leaves := tree.Leaves()
	if len(leaves) == 0 {
		return []Record{{Comment: tree.Comment}}
	}

	out := make([]Record, 0, len(leaves))
	for _, leaf := range leaves {
		r := Record{Comment: tree.Comment}
		for id := leaf.ID; id != ""; {
			s, ok := tree.Span(id)
			if !ok {
				break
			}
			name := s.Label
			if node, ok := idx.Node(s.Label); ok {
				name = node.Name
			}
			switch s.Stage {
			case 1:
				r.Category = name
				r.Stage1Excerpt, r.Stage1Reasoning, r.Stage1Sentiment = s.Excerpt, s.Reasoning, s.Sentiment
			case 2:
				r.SubCategory = name
				r.Stage2Excerpt, r.Stage2Reasoning, r.Stage2Sentiment = s.Excerpt, s.Reasoning, s.Sentiment
			case 3:
				r.Element = name
				r.Stage3Excerpt, r.Stage3Reasoning, r.Stage3Sentiment = s.Excerpt, s.Reasoning, s.Sentiment
			case 4:
				r.Attribute = name
				r.Stage4Excerpt, r.Stage4Reasoning, r.Stage4Sentiment = s.Excerpt, s.Reasoning, s.Sentiment
			}
			id = s.ParentID
		}
		out = append(out, r)
	}
	return out
}

// FlattenAll flattens every tree of a run in input order.
func FlattenAll(trees []*Tree, idx *hierarchy.Index) []Record {
	var out []Record
	for _, t := range trees {
		out = append(out, Flatten(t, idx)...)
	}
	return out
}
