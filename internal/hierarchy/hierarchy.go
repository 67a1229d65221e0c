package hierarchy

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Level is one of the four taxonomy depths. Stages are processed strictly
// in level order, Category first.
type Level int

const (
	LevelCategory Level = iota + 1
	LevelSubCategory
	LevelElement
	LevelAttribute
)

// MaxLevel is the deepest taxonomy level.
const MaxLevel = int(LevelAttribute)

func (l Level) String() string {
	switch l {
	case LevelCategory:
		return "category"
	case LevelSubCategory:
		return "sub_category"
	case LevelElement:
		return "element"
	case LevelAttribute:
		return "attribute"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Valid reports whether l is within the four taxonomy levels.
func (l Level) Valid() bool {
	return l >= LevelCategory && l <= LevelAttribute
}

// Node is a single taxonomy entry. Nodes are immutable after the index
// is built.
type Node struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Level     Level    `json:"level"`
	ParentID  string   `json:"parent_id,omitempty"`
	Children  []string `json:"children,omitempty"`
	Shorthand string   `json:"shorthand,omitempty"`
}

// Index is the read-only lookup structure over a 4-level taxonomy forest.
// Child order follows the authored order of the taxonomy document, since
// that order propagates into prompt label ordering.
type Index struct {
	nodes map[string]*Node
	roots []string // Category-level ids in authored order
}

// docNode is the on-disk nested taxonomy format: a root wrapper whose
// children are categories, each child carrying an optional shorthand and
// its own children.
type docNode struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Shorthand string    `json:"shorthand_description"`
	Children  []docNode `json:"children"`
}

// Load reads a nested taxonomy JSON document and builds the index.
func Load(path string) (*Index, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading taxonomy: %w", err)
	}
	var root docNode
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("parsing taxonomy: %w", err)
	}
	return Build(root.Children)
}

// Build constructs an index from the category-level subtrees of a parsed
// taxonomy document. Construction fails with a diagnostic naming the
// offending node when the nesting exceeds four levels or a name collides
// within its siblings.
func Build(categories []docNode) (*Index, error) {
	idx := &Index{nodes: make(map[string]*Node)}
	seen := make(map[string]bool)
	for _, cat := range categories {
		id, err := idx.addSubtree(cat, "", LevelCategory, seen)
		if err != nil {
			return nil, err
		}
		idx.roots = append(idx.roots, id)
	}
	if len(idx.roots) == 0 {
		return nil, fmt.Errorf("taxonomy has no categories")
	}
	return idx, nil
}

func (idx *Index) addSubtree(dn docNode, parentID string, level Level, seen map[string]bool) (string, error) {
	name := strings.TrimSpace(dn.Name)
	if name == "" {
		return "", fmt.Errorf("taxonomy node under %q has an empty name", parentID)
	}
	if !level.Valid() {
		return "", fmt.Errorf("taxonomy node %q nests below the attribute level", name)
	}
	id := dn.ID
	if id == "" {
		id = Slug(name)
		if parentID != "" {
			id = parentID + "/" + Slug(name)
		}
	}
	if seen[id] {
		return "", fmt.Errorf("duplicate taxonomy node %q (id %s)", name, id)
	}
	seen[id] = true

	node := &Node{
		ID:        id,
		Name:      name,
		Level:     level,
		ParentID:  parentID,
		Shorthand: strings.TrimSpace(dn.Shorthand),
	}
	idx.nodes[id] = node

	for _, child := range dn.Children {
		childID, err := idx.addSubtree(child, id, level+1, seen)
		if err != nil {
			return "", err
		}
		node.Children = append(node.Children, childID)
	}
	return id, nil
}

// Node returns the node with the given id.
func (idx *Index) Node(id string) (*Node, bool) {
	n, ok := idx.nodes[id]
	return n, ok
}

// Children returns the child nodes of id in authored order. A missing or
// leaf id yields an empty slice.
func (idx *Index) Children(id string) []*Node {
	n, ok := idx.nodes[id]
	if !ok {
		return nil
	}
	out := make([]*Node, 0, len(n.Children))
	for _, cid := range n.Children {
		out = append(out, idx.nodes[cid])
	}
	return out
}

// Roots returns the category-level nodes in authored order.
func (idx *Index) Roots() []*Node {
	out := make([]*Node, 0, len(idx.roots))
	for _, id := range idx.roots {
		out = append(out, idx.nodes[id])
	}
	return out
}

// NodesAtLevel returns every node at the given level, in a depth-first
// walk of the authored order.
func (idx *Index) NodesAtLevel(level Level) []*Node {
	var out []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		if n.Level == level {
			out = append(out, n)
			return
		}
		for _, c := range idx.Children(n.ID) {
			walk(c)
		}
	}
	for _, r := range idx.Roots() {
		walk(r)
	}
	return out
}

// Path returns the chain of nodes from the category root down to id,
// inclusive.
func (idx *Index) Path(id string) []*Node {
	var rev []*Node
	for id != "" {
		n, ok := idx.nodes[id]
		if !ok {
			return nil
		}
		rev = append(rev, n)
		id = n.ParentID
	}
	out := make([]*Node, len(rev))
	for i, n := range rev {
		out[len(rev)-1-i] = n
	}
	return out
}

// Len returns the total node count.
func (idx *Index) Len() int { return len(idx.nodes) }

var slugReplacer = strings.NewReplacer(
	"/", "_",
	" & ", "_and_",
	"&", "_and_",
	"-", "_",
	" ", "_",
	"(", "",
	")", "",
)

// Slug normalizes a label name into a filesystem- and id-safe token:
// "Venue & Hospitality" -> "venue_and_hospitality",
// "Food/Beverages" -> "food_beverages", "Location (City)" -> "location_city".
func Slug(label string) string {
	return slugReplacer.Replace(strings.ToLower(label))
}
