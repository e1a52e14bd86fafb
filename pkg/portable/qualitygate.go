package portable

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	dcontext "github.com/docleaai/doclea/pkg/context"
	"github.com/docleaai/doclea/pkg/memory"
)

// GoldenQuery is one fixture entry: a query plus the ground truth it should
// retrieve.
type GoldenQuery struct {
	Query             string   `yaml:"query"`
	ExpectedMemoryIDs []string `yaml:"expectedMemoryIds"`
	ExpectedEntities  []string `yaml:"expectedEntities"`
	RecallK           int      `yaml:"recallK"`
}

// Fixture is a quality-gate golden-query set with its pass/fail thresholds
// (spec.md §4.M).
type Fixture struct {
	Queries         []GoldenQuery `yaml:"queries"`
	MinMemoryRecall float64       `yaml:"minMemoryRecall"`
	MinEntityRecall float64       `yaml:"minEntityRecall"`
	MinPrecisionAtK float64       `yaml:"minPrecisionAtK"`
	TokenBudget     int           `yaml:"tokenBudget"`
}

// LoadFixture decodes a YAML golden-query fixture from r, rejecting
// unrecognized fields so a typo'd threshold name fails loudly instead of
// silently defaulting to zero.
func LoadFixture(r io.Reader) (*Fixture, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f Fixture
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("portable: decode quality-gate fixture: %w", err)
	}
	return &f, nil
}

// QueryOutcome is one golden query's measured recall/precision against its
// thresholds.
type QueryOutcome struct {
	Query        string
	MemoryRecall float64
	EntityRecall float64
	Precision    float64
	Pass         bool
	Diff         string
}

// Report is the outcome of a full [Evaluate] run.
type Report struct {
	Outcomes []QueryOutcome
	Pass     bool
}

// Evaluate seeds no data itself — the caller is expected to have already
// populated an in-memory instance with deterministic embeddings (spec.md
// §4.M: "token-hash projected to a fixed dimension, L2-normalized", i.e.
// [hashembed.Provider]) — and runs every golden query through builder,
// scoring recall/precision against fixture's thresholds.
func Evaluate(ctx context.Context, builder *dcontext.Builder, fixture *Fixture) (*Report, error) {
	report := &Report{Pass: true}

	tokenBudget := fixture.TokenBudget
	if tokenBudget <= 0 {
		tokenBudget = 4000
	}

	for _, q := range fixture.Queries {
		limit := q.RecallK
		if limit <= 0 {
			limit = 5
		}

		res, err := builder.Build(ctx, dcontext.Request{
			Query:           q.Query,
			TokenBudget:     tokenBudget,
			IncludeGraphRAG: len(q.ExpectedEntities) > 0,
			IncludeEvidence: true,
			Filters:         memory.MemoryFilter{Limit: limit},
		})
		if err != nil {
			return nil, fmt.Errorf("portable: quality gate query %q: %w", q.Query, err)
		}

		memoryRecall := recall(q.ExpectedMemoryIDs, memoryIDSet(res.RAGSections))
		entityRecall := recallBySubstring(q.ExpectedEntities, res.GraphRAGSections)
		precision := precisionAtK(q.ExpectedMemoryIDs, res.RAGSections, limit)

		pass := memoryRecall >= fixture.MinMemoryRecall &&
			entityRecall >= fixture.MinEntityRecall &&
			precision >= fixture.MinPrecisionAtK

		outcome := QueryOutcome{
			Query:        q.Query,
			MemoryRecall: memoryRecall,
			EntityRecall: entityRecall,
			Precision:    precision,
			Pass:         pass,
		}
		if !pass {
			outcome.Diff = diff(q, res, memoryRecall, entityRecall, precision, fixture)
			report.Pass = false
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	return report, nil
}

func memoryIDSet(sections []dcontext.Section) map[string]bool {
	out := make(map[string]bool, len(sections))
	for _, s := range sections {
		out[s.ID] = true
	}
	return out
}

func recall(expected []string, got map[string]bool) float64 {
	if len(expected) == 0 {
		return 1
	}
	hits := 0
	for _, id := range expected {
		if got[id] {
			hits++
		}
	}
	return float64(hits) / float64(len(expected))
}

// recallBySubstring matches expected entity names against GraphRAG section
// titles/content case-insensitively: a [dcontext.Result] carries report and
// evidence text, not a dedicated entity-id field, so substring containment
// is the closest available signal.
func recallBySubstring(expected []string, sections []dcontext.Section) float64 {
	if len(expected) == 0 {
		return 1
	}
	hits := 0
	for _, name := range expected {
		lower := strings.ToLower(name)
		for _, s := range sections {
			if strings.Contains(strings.ToLower(s.Title), lower) || strings.Contains(strings.ToLower(s.Content), lower) {
				hits++
				break
			}
		}
	}
	return float64(hits) / float64(len(expected))
}

func precisionAtK(expected []string, sections []dcontext.Section, k int) float64 {
	if len(sections) == 0 {
		return 0
	}
	limit := k
	if limit > len(sections) {
		limit = len(sections)
	}
	if limit == 0 {
		return 0
	}
	expectedSet := make(map[string]bool, len(expected))
	for _, id := range expected {
		expectedSet[id] = true
	}
	hits := 0
	for i := 0; i < limit; i++ {
		if expectedSet[sections[i].ID] {
			hits++
		}
	}
	return float64(hits) / float64(limit)
}

func diff(q GoldenQuery, res *dcontext.Result, memoryRecall, entityRecall, precision float64, fixture *Fixture) string {
	var b strings.Builder
	fmt.Fprintf(&b, "query %q:", q.Query)
	if memoryRecall < fixture.MinMemoryRecall {
		fmt.Fprintf(&b, " memoryRecall=%.2f<%.2f", memoryRecall, fixture.MinMemoryRecall)
	}
	if entityRecall < fixture.MinEntityRecall {
		fmt.Fprintf(&b, " entityRecall=%.2f<%.2f", entityRecall, fixture.MinEntityRecall)
	}
	if precision < fixture.MinPrecisionAtK {
		fmt.Fprintf(&b, " precisionAtK=%.2f<%.2f", precision, fixture.MinPrecisionAtK)
	}
	got := make([]string, 0, len(res.RAGSections))
	for _, s := range res.RAGSections {
		got = append(got, s.ID)
	}
	fmt.Fprintf(&b, " expectedMemoryIds=%v gotMemoryIds=%v", q.ExpectedMemoryIDs, got)
	return b.String()
}
