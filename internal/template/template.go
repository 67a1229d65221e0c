package template

import (
	"fmt"
	"strings"
)

// commentPlaceholder marks where the text under analysis is spliced into
// an assembled prompt.
const commentPlaceholder = "__COMMENT_PLACEHOLDER__"

// Metadata describes the provenance of a template file.
type Metadata struct {
	Stage   int    `yaml:"stage"`
	Focus   string `yaml:"focus,omitempty"`
	Task    string `yaml:"task,omitempty"`
	Version string `yaml:"version,omitempty"`
}

// Label is one entry of a template's label roster: the label offered to
// the generation call plus the descriptive text shown for it.
type Label struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description,omitempty"`
	ContextItems []string `yaml:"context_items,omitempty"`
}

// Example is a few-shot demonstration. Classification entries are free
// maps because the label key varies per stage (category, sub_category,
// element, attribute).
type Example struct {
	Comment         string              `yaml:"comment"`
	Classifications []map[string]string `yaml:"classifications"`
}

// Template holds the per-stage generation instructions for one scope
// label. A nil Ready field means ready, matching files authored before
// the flag existed.
type Template struct {
	Ready              *bool     `yaml:"ready"`
	Metadata           Metadata  `yaml:"prompt_metadata,omitempty"`
	SystemPrompt       string    `yaml:"system_prompt"`
	TaskDescription    string    `yaml:"task_description"`
	CustomInstructions string    `yaml:"custom_instructions,omitempty"`
	LabelsTitle        string    `yaml:"labels_title,omitempty"`
	LabelField         string    `yaml:"label_field,omitempty"`
	Labels             []Label   `yaml:"labels"`
	Rules              []string  `yaml:"rules"`
	Examples           []Example `yaml:"examples,omitempty"`
}

// IsReady reports whether the template is marked ready for use.
func (t *Template) IsReady() bool {
	return t == nil || t.Ready == nil || *t.Ready
}

// Covers reports whether name appears in the template's label roster.
func (t *Template) Covers(name string) bool {
	for _, l := range t.Labels {
		if l.Name == name {
			return true
		}
	}
	return false
}

func (t *Template) validate(origin string) error {
	if len(t.Labels) == 0 {
		return fmt.Errorf("template %s has no labels", origin)
	}
	if len(t.Rules) == 0 {
		return fmt.Errorf("template %s has no rules", origin)
	}
	for i, l := range t.Labels {
		if strings.TrimSpace(l.Name) == "" {
			return fmt.Errorf("template %s: label %d has an empty name", origin, i+1)
		}
	}
	return nil
}

// Field returns the JSON key the generation output uses for the label,
// defaulting to "category" for legacy stage-1 files.
func (t *Template) Field() string {
	if t.LabelField != "" {
		return t.LabelField
	}
	return "category"
}

// Prompt assembles the full instruction text for one extraction call,
// splicing sourceText into the comment slot.
func (t *Template) Prompt(sourceText string) string {
	header := make([]string, 0, 3)
	if t.SystemPrompt != "" {
		header = append(header, t.SystemPrompt)
	}
	if t.TaskDescription != "" {
		header = append(header, t.TaskDescription)
	}
	if t.CustomInstructions != "" {
		header = append(header, t.CustomInstructions)
	}

	title := t.LabelsTitle
	if title == "" {
		title = "LABELS TO IDENTIFY"
	}

	var labels strings.Builder
	for _, l := range t.Labels {
		fmt.Fprintf(&labels, "**%s**\n", l.Name)
		if l.Description != "" {
			labels.WriteString(l.Description + "\n")
		}
		if len(l.ContextItems) > 0 {
			labels.WriteString("Elements include:\n")
			for _, item := range l.ContextItems {
				labels.WriteString("- " + item + "\n")
			}
		}
		labels.WriteString("\n")
	}

	var rules strings.Builder
	for i, r := range t.Rules {
		fmt.Fprintf(&rules, "%d. %s\n", i+1, r)
	}

	examples := make([]string, 0, len(t.Examples))
	for _, ex := range t.Examples {
		examples = append(examples, ex.render(t.Field()))
	}

	prompt := fmt.Sprintf(`%s

COMMENT TO ANALYZE:
%s

---

%s:

%s

---

CLASSIFICATION RULES:

%s

---

EXAMPLES:

%s

---

Extract all relevant spans and return ONLY valid JSON matching the schema.`,
		strings.Join(header, " "),
		commentPlaceholder,
		title,
		strings.TrimSpace(labels.String()),
		strings.TrimSpace(rules.String()),
		strings.Join(examples, "\n\n"),
	)

	return strings.ReplaceAll(prompt, commentPlaceholder, sourceText)
}

func (ex Example) render(field string) string {
	if len(ex.Classifications) == 0 {
		return fmt.Sprintf("Comment: %q\n{\"classifications\": []}", ex.Comment)
	}
	parts := make([]string, 0, len(ex.Classifications))
	for _, cls := range ex.Classifications {
		parts = append(parts, fmt.Sprintf(
			"{\"excerpt\": %q, \"reasoning\": %q, %q: %q, \"sentiment\": %q}",
			cls["excerpt"], cls["reasoning"], field, cls[field], cls["sentiment"],
		))
	}
	return fmt.Sprintf("Comment: %q\n{\"classifications\": [%s]}", ex.Comment, strings.Join(parts, ", "))
}
