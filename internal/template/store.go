package template

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"facet/internal/hierarchy"
)

// Stage1File is the single template file driving category extraction.
const Stage1File = "category_prompt.yaml"

// StageDir returns the directory name holding templates for a stage.
func StageDir(stage int) string {
	return fmt.Sprintf("stage_%d", stage)
}

// Filename converts a scope label into its template file name.
func Filename(label string) string {
	return hierarchy.Slug(label) + ".yaml"
}

// Store holds every template resolved at run start. Templates are keyed
// by (stage, scope label): the stage-1 file is scoped to the taxonomy
// root, a stage-s file (s > 1) is scoped to one stage-(s-1) label and
// carries the roster of its children. The store is read-only after Load
// and safe for concurrent use.
type Store struct {
	dir    string
	stage1 *Template
	scoped map[int]map[string]*Template // stage -> slug(scope label) -> template
}

// Load reads every template file under dir. A malformed file is fatal;
// a missing file simply leaves its scope unresolved, which later prunes
// the corresponding branch.
func Load(dir string) (*Store, error) {
	s := &Store{dir: dir, scoped: make(map[int]map[string]*Template)}

	stage1Path := filepath.Join(dir, StageDir(1), Stage1File)
	tpl, err := loadFile(stage1Path)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, fmt.Errorf("stage 1 template missing: %s", stage1Path)
	}
	s.stage1 = tpl

	for stage := 2; stage <= hierarchy.MaxLevel; stage++ {
		stageDir := filepath.Join(dir, StageDir(stage))
		entries, err := os.ReadDir(stageDir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", stageDir, err)
		}
		s.scoped[stage] = make(map[string]*Template)
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
				continue
			}
			tpl, err := loadFile(filepath.Join(stageDir, e.Name()))
			if err != nil {
				return nil, err
			}
			key := strings.TrimSuffix(e.Name(), ".yaml")
			s.scoped[stage][key] = tpl
		}
	}
	return s, nil
}

func loadFile(path string) (*Template, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading template %s: %w", path, err)
	}
	var tpl Template
	if err := yaml.Unmarshal(raw, &tpl); err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", path, err)
	}
	if err := tpl.validate(path); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// Resolve returns the template scoped to scopeLabel at the given stage.
// For stage 1 the scope label is ignored. The second return is false
// when no file exists for that scope.
func (s *Store) Resolve(stage int, scopeLabel string) (*Template, bool) {
	if stage == 1 {
		return s.stage1, s.stage1 != nil
	}
	tpl, ok := s.scoped[stage][hierarchy.Slug(scopeLabel)]
	return tpl, ok
}

// Status describes one template slot the taxonomy requires.
type Status struct {
	Stage  int
	Scope  string // scope label name, empty for stage 1
	File   string
	Exists bool
	Ready  bool
}

// Coverage enumerates every template file the hierarchy calls for and
// whether it exists and is ready. Used by the check command and the run
// report.
func (s *Store) Coverage(idx *hierarchy.Index) []Status {
	out := []Status{{
		Stage:  1,
		File:   filepath.Join(StageDir(1), Stage1File),
		Exists: s.stage1 != nil,
		Ready:  s.stage1.IsReady(),
	}}
	for stage := 2; stage <= hierarchy.MaxLevel; stage++ {
		for _, scope := range idx.NodesAtLevel(hierarchy.Level(stage - 1)) {
			if len(scope.Children) == 0 {
				continue
			}
			tpl, ok := s.Resolve(stage, scope.Name)
			out = append(out, Status{
				Stage:  stage,
				Scope:  scope.Name,
				File:   filepath.Join(StageDir(stage), Filename(scope.Name)),
				Exists: ok,
				Ready:  ok && tpl.IsReady(),
			})
		}
	}
	return out
}
