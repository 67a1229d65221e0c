package template

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"facet/internal/hierarchy"
)

// Skeleton builds an unready template for the given scope node, with the
// label roster pre-filled from the taxonomy so an author only has to
// write descriptions, rules, and examples.
func Skeleton(idx *hierarchy.Index, scope *hierarchy.Node, stage int) *Template {
	notReady := false
	labelField := hierarchy.Level(stage).String()

	labels := make([]Label, 0, len(scope.Children))
	for _, child := range idx.Children(scope.ID) {
		items := make([]string, 0, len(child.Children))
		for _, gc := range idx.Children(child.ID) {
			items = append(items, fmt.Sprintf("%s: [Description needed]", gc.Name))
		}
		desc := child.Shorthand
		if desc == "" {
			desc = fmt.Sprintf("[Add description for %s]", child.Name)
		}
		labels = append(labels, Label{Name: child.Name, Description: desc, ContextItems: items})
	}

	return &Template{
		Ready: &notReady,
		Metadata: Metadata{
			Stage:   stage,
			Focus:   scope.Name,
			Task:    fmt.Sprintf("Extract %s feedback related to %s", labelField, scope.Name),
			Version: "1.0",
		},
		SystemPrompt:    "You are an expert conference feedback analyzer.",
		TaskDescription: fmt.Sprintf("Extract %s feedback related to %s.", labelField, scope.Name),
		LabelsTitle:     "LABELS TO IDENTIFY",
		LabelField:      labelField,
		Labels:          labels,
		Rules: []string{
			"Extract the EXACT excerpt from the comment that relates to each label.",
			"A comment can have MULTIPLE spans if it discusses multiple aspects.",
			"Sentiment: positive (praise), negative (criticism), neutral (observation), mixed (both).",
		},
	}
}

// WriteSkeletons creates skeleton files for every template slot the
// hierarchy requires that does not exist yet. Returns the paths written.
func WriteSkeletons(idx *hierarchy.Index, dir string) ([]string, error) {
	var written []string
	for stage := 2; stage <= hierarchy.MaxLevel; stage++ {
		for _, scope := range idx.NodesAtLevel(hierarchy.Level(stage - 1)) {
			if len(scope.Children) == 0 {
				continue
			}
			path := filepath.Join(dir, StageDir(stage), Filename(scope.Name))
			if _, err := os.Stat(path); err == nil {
				continue
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return written, err
			}
			raw, err := yaml.Marshal(Skeleton(idx, scope, stage))
			if err != nil {
				return written, fmt.Errorf("marshaling skeleton for %s: %w", scope.Name, err)
			}
			if err := os.WriteFile(path, raw, 0o644); err != nil {
				return written, err
			}
			written = append(written, path)
		}
	}
	return written, nil
}
