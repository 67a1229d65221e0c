package classify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"facet/internal/extract"
)

// PruneReason explains why a branch stopped without a generation call.
type PruneReason string

const (
	PruneNoReadyTemplate PruneReason = "no_ready_template"
	PruneNoLegalChildren PruneReason = "no_legal_children"
)

// PrunedBranch records one (stage, scope label) whose expansion was
// skipped, deduplicated across comments.
type PrunedBranch struct {
	Label  string      `json:"label"`
	Reason PruneReason `json:"reason"`
}

// StageReport aggregates counters for one stage of a run.
type StageReport struct {
	Stage              int            `json:"stage"`
	Tasks              int            `json:"tasks"`
	Calls              int            `json:"calls"`
	Spans              int            `json:"spans"`
	GenerationFailures int            `json:"generation_failures"`
	ContractViolations int            `json:"contract_violations"`
	Rejections         map[string]int `json:"rejections,omitempty"`
	PrunedBranches     []PrunedBranch `json:"pruned_branches,omitempty"`

	pruned map[string]bool
}

// RunReport is the per-run usage and skip report: which labels were
// pruned for lack of a ready template and which candidates were rejected
// and why.
type RunReport struct {
	MaxStage   int            `json:"max_stage"`
	BatchSize  int            `json:"batch_size"`
	Comments   int            `json:"comments"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	DurationMS int64          `json:"duration_ms"`
	Aborted    bool           `json:"aborted,omitempty"`
	Stages     []*StageReport `json:"stages"`
}

func newRunReport(maxStage, batchSize, comments int) *RunReport {
	return &RunReport{
		MaxStage:  maxStage,
		BatchSize: batchSize,
		Comments:  comments,
		StartedAt: time.Now().UTC(),
	}
}

func (r *RunReport) stage(n int) *StageReport {
	for _, s := range r.Stages {
		if s.Stage == n {
			return s
		}
	}
	s := &StageReport{Stage: n, Rejections: make(map[string]int), pruned: make(map[string]bool)}
	r.Stages = append(r.Stages, s)
	return s
}

func (r *RunReport) finish(aborted bool) {
	r.FinishedAt = time.Now().UTC()
	r.DurationMS = r.FinishedAt.Sub(r.StartedAt).Milliseconds()
	r.Aborted = aborted
}

func (s *StageReport) prune(label string, reason PruneReason) {
	key := label + "|" + string(reason)
	if s.pruned[key] {
		return
	}
	s.pruned[key] = true
	s.PrunedBranches = append(s.PrunedBranches, PrunedBranch{Label: label, Reason: reason})
}

func (s *StageReport) reject(rejs []extract.Rejection) {
	for _, rej := range rejs {
		s.Rejections[string(rej.Reason)]++
		if rej.Reason == extract.RejectIllegalLabel {
			s.ContractViolations++
		}
	}
}

// Save writes the report as JSON under dir.
func (r *RunReport) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "run_report.json")
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, raw, 0o644)
}

// Summary renders a short human-readable digest for CLI output.
func (r *RunReport) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d comments, max stage %d, %dms\n", r.Comments, r.MaxStage, r.DurationMS)
	for _, s := range r.Stages {
		fmt.Fprintf(&sb, "stage %d: %d tasks, %d calls, %d spans", s.Stage, s.Tasks, s.Calls, s.Spans)
		if s.GenerationFailures > 0 {
			fmt.Fprintf(&sb, ", %d failed calls", s.GenerationFailures)
		}
		if n := len(s.Rejections); n > 0 {
			total := 0
			for _, c := range s.Rejections {
				total += c
			}
			fmt.Fprintf(&sb, ", %d rejected candidates", total)
		}
		if s.ContractViolations > 0 {
			fmt.Fprintf(&sb, ", %d contract violations", s.ContractViolations)
		}
		for _, p := range s.PrunedBranches {
			fmt.Fprintf(&sb, "\n  pruned %q (%s)", p.Label, p.Reason)
		}
		sb.WriteString("\n")
	}
	if r.Aborted {
		sb.WriteString("run aborted; trees truncated at the last completed stage\n")
	}
	return sb.String()
}
