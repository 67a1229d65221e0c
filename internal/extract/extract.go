package extract

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"facet/internal/schema"
)

// Candidate is one labeled excerpt proposed by the generation capability,
// before validation.
type Candidate struct {
	Excerpt   string `json:"excerpt"`
	Reasoning string `json:"reasoning"`
	Label     string `json:"label"`
	Sentiment string `json:"sentiment"`
}

// Request is one generation call: a text to decompose, the constrained
// label contract, and the assembled instructions.
type Request struct {
	SourceText   string
	Schema       schema.LabelSchema
	Instructions string
}

// Generator is the opaque text-generation capability. Implementations
// may be slow or nondeterministic; the extractor treats them as a
// synchronous request/response boundary and never retries.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]Candidate, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) ([]Candidate, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) ([]Candidate, error) {
	return f(ctx, req)
}

// RejectReason classifies why a candidate was dropped.
type RejectReason string

const (
	// RejectIllegalLabel means the returned label was not in the offered
	// set. The contract was constrained, so this signals a degraded
	// structured-output guarantee and is surfaced distinctly.
	RejectIllegalLabel RejectReason = "label_not_legal"
	// RejectExcerptNotFound means the excerpt is empty or is not an
	// exact contiguous substring of the source text.
	RejectExcerptNotFound RejectReason = "excerpt_not_found"
	// RejectBadSentiment means the sentiment is not one of the four
	// canonical values.
	RejectBadSentiment RejectReason = "bad_sentiment"
)

// Rejection records a dropped candidate and the rule it violated.
type Rejection struct {
	Candidate Candidate
	Reason    RejectReason
}

// Extractor issues exactly one generation call per request and validates
// every candidate before it can become a span.
type Extractor struct {
	gen Generator
	log *zap.Logger
}

func New(gen Generator, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{gen: gen, log: log}
}

// Extract runs one generation call and validates the candidates.
// A generator failure degrades to zero candidates and is returned as err
// so the caller can account for it; it must not abort sibling branches.
// An empty legal-label set short-circuits without calling the generator.
func (e *Extractor) Extract(ctx context.Context, req Request) ([]Candidate, []Rejection, error) {
	if req.Schema.Empty() {
		return nil, nil, nil
	}

	cands, err := e.gen.Generate(ctx, req)
	if err != nil {
		e.log.Warn("generation call failed, degrading branch to zero candidates",
			zap.Int("stage", req.Schema.Stage),
			zap.Error(err))
		return nil, nil, err
	}

	accepted, rejected := Validate(req.SourceText, req.Schema, cands)
	for _, r := range rejected {
		if r.Reason == RejectIllegalLabel {
			e.log.Warn("constrained contract violated: label outside offered set",
				zap.Int("stage", req.Schema.Stage),
				zap.String("label", r.Candidate.Label))
			continue
		}
		e.log.Debug("candidate rejected",
			zap.Int("stage", req.Schema.Stage),
			zap.String("reason", string(r.Reason)),
			zap.String("label", r.Candidate.Label))
	}
	return accepted, rejected, nil
}

// Validate applies the three candidate rules: the label must be in the
// legal set, the excerpt must be a non-empty exact contiguous substring
// of sourceText (case and whitespace preserved), and the sentiment must
// be canonical. Rejected candidates are dropped, never repaired.
func Validate(sourceText string, ls schema.LabelSchema, cands []Candidate) ([]Candidate, []Rejection) {
	var accepted []Candidate
	var rejected []Rejection
	for _, c := range cands {
		switch {
		case !allows(ls, c.Label):
			rejected = append(rejected, Rejection{Candidate: c, Reason: RejectIllegalLabel})
		case c.Excerpt == "" || !strings.Contains(sourceText, c.Excerpt):
			rejected = append(rejected, Rejection{Candidate: c, Reason: RejectExcerptNotFound})
		case !schema.ValidSentiment(c.Sentiment):
			rejected = append(rejected, Rejection{Candidate: c, Reason: RejectBadSentiment})
		default:
			accepted = append(accepted, c)
		}
	}
	return accepted, rejected
}

func allows(ls schema.LabelSchema, label string) bool {
	_, ok := ls.NodeFor(label)
	return ok
}
