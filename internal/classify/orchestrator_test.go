package classify

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facet/internal/extract"
	"facet/internal/hierarchy"
	"facet/internal/template"
)

const fixtureTaxonomy = `{
  "name": "Conference Feedback",
  "children": [
    {
      "name": "Event Experience & Technology",
      "shorthand_description": "Experience and technology infrastructure.",
      "children": [
        {"name": "Event Technology", "children": [{"name": "WiFi"}]},
        {"name": "Event Experience"}
      ]
    },
    {
      "name": "Venue & Hospitality",
      "children": [
        {"name": "Conference Venue"},
        {"name": "Food/Beverages"}
      ]
    }
  ]
}`

func fixtureIndex(t *testing.T) *hierarchy.Index {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taxonomy.json")
	require.NoError(t, os.WriteFile(path, []byte(fixtureTaxonomy), 0o644))
	idx, err := hierarchy.Load(path)
	require.NoError(t, err)
	return idx
}

func writeYAML(t *testing.T, dir, stage, name, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, stage), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, stage, name), []byte(body), 0o644))
}

// fixtureStore authors stage-1 and stage-2 templates; the Venue &
// Hospitality stage-2 file is only written when venueReady is set, which
// prunes that branch after stage 1 otherwise.
func fixtureStore(t *testing.T, venueReady bool) *template.Store {
	t.Helper()
	dir := t.TempDir()
	writeYAML(t, dir, "stage_1", template.Stage1File, `
label_field: category
labels:
  - name: Event Experience & Technology
  - name: Venue & Hospitality
rules: [Extract exact excerpts.]
`)
	writeYAML(t, dir, "stage_2", "event_experience_and_technology.yaml", `
label_field: sub_category
labels:
  - name: Event Technology
  - name: Event Experience
rules: [Extract exact excerpts.]
`)
	if venueReady {
		writeYAML(t, dir, "stage_2", "venue_and_hospitality.yaml", `
label_field: sub_category
labels:
  - name: Conference Venue
  - name: Food/Beverages
rules: [Extract exact excerpts.]
`)
	}
	store, err := template.Load(dir)
	require.NoError(t, err)
	return store
}

// stubGenerator returns fixed candidates per (stage, sourceText) pair
// and records every request it receives.
type stubGenerator struct {
	mu       sync.Mutex
	requests []extract.Request
	fail     map[string]error // sourceText -> injected failure
}

func (s *stubGenerator) Generate(_ context.Context, req extract.Request) ([]extract.Candidate, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if err := s.fail[req.SourceText]; err != nil {
		return nil, err
	}

	switch {
	case req.Schema.Stage == 1 && req.SourceText == "WiFi was slow but the venue was beautiful.":
		return []extract.Candidate{
			{Excerpt: "WiFi was slow", Reasoning: "connectivity complaint", Label: "Event Experience & Technology", Sentiment: "negative"},
			{Excerpt: "the venue was beautiful", Reasoning: "facilities praise", Label: "Venue & Hospitality", Sentiment: "positive"},
		}, nil
	case req.Schema.Stage == 2 && req.SourceText == "WiFi was slow":
		return []extract.Candidate{
			{Excerpt: "WiFi was slow", Reasoning: "network infrastructure", Label: "Event Technology", Sentiment: "negative"},
		}, nil
	case req.Schema.Stage == 2 && req.SourceText == "the venue was beautiful":
		return []extract.Candidate{
			{Excerpt: "venue was beautiful", Reasoning: "physical space", Label: "Conference Venue", Sentiment: "positive"},
		}, nil
	}
	return nil, nil
}

func (s *stubGenerator) callsAtStage(stage int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Schema.Stage == stage {
			n++
		}
	}
	return n
}

const exampleComment = "WiFi was slow but the venue was beautiful."

func newOrchestrator(t *testing.T, idx *hierarchy.Index, store *template.Store, gen extract.Generator, maxStage int) *Orchestrator {
	t.Helper()
	o, err := New(idx, store, gen, nil, Options{MaxStage: maxStage})
	require.NoError(t, err)
	return o
}

func TestNew_RejectsInvalidMaxStage(t *testing.T) {
	idx := fixtureIndex(t)
	store := fixtureStore(t, true)

	for _, bad := range []int{0, -1, 5} {
		_, err := New(idx, store, &stubGenerator{}, nil, Options{MaxStage: bad})
		assert.Error(t, err, "max stage %d", bad)
	}
}

func TestClassify_ExampleScenario(t *testing.T) {
	idx := fixtureIndex(t)
	gen := &stubGenerator{}
	o := newOrchestrator(t, idx, fixtureStore(t, true), gen, 2)

	trees, report, err := o.Classify(context.Background(), []string{exampleComment})
	require.NoError(t, err)
	require.Len(t, trees, 1)
	tree := trees[0]

	roots := tree.Roots()
	require.Len(t, roots, 2)
	assert.Equal(t, "WiFi was slow", roots[0].Excerpt)
	assert.Equal(t, "negative", roots[0].Sentiment)
	assert.Equal(t, "the venue was beautiful", roots[1].Excerpt)
	assert.Equal(t, "positive", roots[1].Sentiment)

	// Each stage-1 span seeds a stage-2 extraction scoped to its own
	// excerpt only, never the whole comment.
	for _, r := range gen.requests {
		if r.Schema.Stage == 2 {
			assert.NotEqual(t, exampleComment, r.SourceText)
		}
	}

	techKids := tree.Children(roots[0].ID)
	require.Len(t, techKids, 1)
	assert.Equal(t, 2, techKids[0].Stage)
	assert.Equal(t, roots[0].ID, techKids[0].ParentID)
	assert.Equal(t, roots[0].Excerpt, techKids[0].SourceText)

	venueKids := tree.Children(roots[1].ID)
	require.Len(t, venueKids, 1)
	assert.Equal(t, "venue was beautiful", venueKids[0].Excerpt)

	require.Len(t, report.Stages, 2)
	assert.Equal(t, 1, report.Stages[0].Calls)
	assert.Equal(t, 2, report.Stages[0].Spans)
	assert.Equal(t, 2, report.Stages[1].Calls)
}

func TestClassify_SpanInvariantsHold(t *testing.T) {
	idx := fixtureIndex(t)
	o := newOrchestrator(t, idx, fixtureStore(t, true), &stubGenerator{}, 2)

	trees, _, err := o.Classify(context.Background(), []string{exampleComment})
	require.NoError(t, err)

	for _, tree := range trees {
		for _, s := range tree.Spans {
			assert.NotEmpty(t, s.Excerpt)
			assert.Contains(t, s.SourceText, s.Excerpt)

			node, ok := idx.Node(s.Label)
			require.True(t, ok)
			assert.Equal(t, s.Stage, int(node.Level))

			if s.ParentID == "" {
				assert.Equal(t, 1, s.Stage)
				continue
			}
			parent, ok := tree.Span(s.ParentID)
			require.True(t, ok)
			assert.Equal(t, parent.Label, node.ParentID,
				"child label must be a taxonomy child of the parent span's label")
		}
	}
}

func TestClassify_UnreadyTemplatePrunesBranchWithoutCall(t *testing.T) {
	idx := fixtureIndex(t)
	gen := &stubGenerator{}
	o := newOrchestrator(t, idx, fixtureStore(t, false), gen, 2)

	trees, report, err := o.Classify(context.Background(), []string{exampleComment})
	require.NoError(t, err)
	tree := trees[0]

	roots := tree.Roots()
	require.Len(t, roots, 2)

	// The venue branch is a stage-1-only leaf: no stage-2 call was ever
	// issued for it.
	venue := roots[1]
	assert.Empty(t, tree.Children(venue.ID))
	for _, r := range gen.requests {
		if r.Schema.Stage == 2 {
			assert.NotEqual(t, "the venue was beautiful", r.SourceText)
		}
	}
	assert.Equal(t, 1, gen.callsAtStage(2), "only the technology branch reaches stage 2")

	stage2 := report.Stages[1]
	require.Len(t, stage2.PrunedBranches, 1)
	assert.Equal(t, "Venue & Hospitality", stage2.PrunedBranches[0].Label)
	assert.Equal(t, PruneNoReadyTemplate, stage2.PrunedBranches[0].Reason)
}

func TestClassify_MaxStageOneStopsAfterCategories(t *testing.T) {
	idx := fixtureIndex(t)
	gen := &stubGenerator{}
	o := newOrchestrator(t, idx, fixtureStore(t, true), gen, 1)

	trees, _, err := o.Classify(context.Background(), []string{exampleComment})
	require.NoError(t, err)
	assert.Len(t, trees[0].Spans, 2)
	assert.Zero(t, gen.callsAtStage(2))
}

func TestClassify_GeneratorFailureIsContainedToItsBranch(t *testing.T) {
	idx := fixtureIndex(t)
	gen := &stubGenerator{fail: map[string]error{
		"WiFi was slow": errors.New("engine overloaded"),
	}}
	o := newOrchestrator(t, idx, fixtureStore(t, true), gen, 2)

	trees, report, err := o.Classify(context.Background(), []string{exampleComment})
	require.NoError(t, err)
	tree := trees[0]

	roots := tree.Roots()
	require.Len(t, roots, 2)
	assert.Empty(t, tree.Children(roots[0].ID), "failed branch degrades to a leaf")

	venueKids := tree.Children(roots[1].ID)
	require.Len(t, venueKids, 1, "sibling branch is complete and unaffected")
	assert.Equal(t, "venue was beautiful", venueKids[0].Excerpt)

	assert.Equal(t, 1, report.Stages[1].GenerationFailures)
}

func TestClassify_RejectedCandidatesAreCountedNotFatal(t *testing.T) {
	idx := fixtureIndex(t)
	gen := extract.GeneratorFunc(func(_ context.Context, req extract.Request) ([]extract.Candidate, error) {
		if req.Schema.Stage != 1 {
			return nil, nil
		}
		return []extract.Candidate{
			{Excerpt: "not actually in the comment", Label: "Venue & Hospitality", Sentiment: "positive"},
			{Excerpt: "the venue was beautiful", Label: "Venue & Hospitality", Sentiment: "glorious"},
			{Excerpt: "the venue was beautiful", Reasoning: "facilities", Label: "Venue & Hospitality", Sentiment: "positive"},
		}, nil
	})
	o := newOrchestrator(t, idx, fixtureStore(t, true), gen, 1)

	trees, report, err := o.Classify(context.Background(), []string{exampleComment})
	require.NoError(t, err)
	require.Len(t, trees[0].Spans, 1)
	assert.Equal(t, "the venue was beautiful", trees[0].Spans[0].Excerpt)

	stage1 := report.Stages[0]
	assert.Equal(t, 1, stage1.Rejections[string(extract.RejectExcerptNotFound)])
	assert.Equal(t, 1, stage1.Rejections[string(extract.RejectBadSentiment)])
	assert.Zero(t, stage1.ContractViolations)
}

func TestClassify_IllegalLabelCountsAsContractViolation(t *testing.T) {
	idx := fixtureIndex(t)
	gen := extract.GeneratorFunc(func(_ context.Context, req extract.Request) ([]extract.Candidate, error) {
		if req.Schema.Stage != 2 {
			return []extract.Candidate{
				{Excerpt: "WiFi was slow", Reasoning: "tech", Label: "Event Experience & Technology", Sentiment: "negative"},
			}, nil
		}
		// A label that exists in the taxonomy but is not a child of the
		// offered parent: rejected and surfaced as a contract violation.
		return []extract.Candidate{
			{Excerpt: "WiFi was slow", Reasoning: "wrong branch", Label: "Conference Venue", Sentiment: "negative"},
		}, nil
	})
	o := newOrchestrator(t, idx, fixtureStore(t, true), gen, 2)

	trees, report, err := o.Classify(context.Background(), []string{exampleComment})
	require.NoError(t, err)

	roots := trees[0].Roots()
	require.Len(t, roots, 1)
	assert.Empty(t, trees[0].Children(roots[0].ID))
	assert.Equal(t, 1, report.Stages[1].ContractViolations)
	assert.Equal(t, 1, report.Stages[1].Rejections[string(extract.RejectIllegalLabel)])
}

func TestClassify_RepeatRunsProduceIdenticalTrees(t *testing.T) {
	idx := fixtureIndex(t)
	store := fixtureStore(t, true)
	comments := []string{exampleComment, "Thanks for everything!", exampleComment}

	run := func() []byte {
		o := newOrchestrator(t, idx, store, &stubGenerator{}, 2)
		trees, _, err := o.Classify(context.Background(), comments)
		require.NoError(t, err)
		raw, err := json.Marshal(trees)
		require.NoError(t, err)
		return raw
	}

	assert.Equal(t, string(run()), string(run()))
}

func TestClassify_EmptyExtractionIsATerminalNotAnError(t *testing.T) {
	idx := fixtureIndex(t)
	o := newOrchestrator(t, idx, fixtureStore(t, true), &stubGenerator{}, 4)

	trees, report, err := o.Classify(context.Background(), []string{"Thanks for everything!"})
	require.NoError(t, err)
	assert.Empty(t, trees[0].Spans)
	assert.Equal(t, 1, report.Stages[0].Calls)
}

func TestClassify_CancelledBeforeStartReturnsEmptyTrees(t *testing.T) {
	idx := fixtureIndex(t)
	o := newOrchestrator(t, idx, fixtureStore(t, true), &stubGenerator{}, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	trees, report, err := o.Classify(ctx, []string{exampleComment})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, trees, 1)
	assert.Empty(t, trees[0].Spans)
	assert.True(t, report.Aborted)
}

func TestClassify_CancellationTruncatesAtStageBoundary(t *testing.T) {
	idx := fixtureIndex(t)
	ctx, cancel := context.WithCancel(context.Background())

	inner := &stubGenerator{}
	gen := extract.GeneratorFunc(func(c context.Context, req extract.Request) ([]extract.Candidate, error) {
		if req.Schema.Stage == 2 {
			cancel()
			return nil, c.Err()
		}
		return inner.Generate(c, req)
	})
	o := newOrchestrator(t, idx, fixtureStore(t, true), gen, 2)

	trees, report, err := o.Classify(ctx, []string{exampleComment})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, report.Aborted)

	// Stage 1 completed and survives; the interrupted stage 2 leaves no
	// partial spans behind.
	tree := trees[0]
	require.Len(t, tree.Roots(), 2)
	for _, s := range tree.Spans {
		assert.Equal(t, 1, s.Stage)
	}
}
