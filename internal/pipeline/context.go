package pipeline

import (
	"maps"
	"slices"

	"appideas.app/engine/internal/model"
)

// AnalysisContext is the state threaded through one run. Each run owns its
// own instance; it is never shared across runs.
type AnalysisContext struct {
	RunID       int64
	Subject     model.Subject
	Corpus      string // read only by the sentiment stage
	ReviewCount int

	sections  model.Sections
	order     []model.SectionKey
	statuses  model.Statuses
	fallbacks []string
	cost      *CostAccumulator
}

func NewAnalysisContext(subject model.Subject, corpus string, reviewCount int, rates Rates) *AnalysisContext {
	return &AnalysisContext{
		Subject:     subject,
		Corpus:      corpus,
		ReviewCount: reviewCount,
		sections:    model.Sections{},
		statuses:    model.Statuses{},
		cost:        NewCostAccumulator(rates),
	}
}

func (c *AnalysisContext) Cost() *CostAccumulator {
	return c.cost
}

func (c *AnalysisContext) Section(key model.SectionKey) model.SectionValue {
	return c.sections[key]
}

func (c *AnalysisContext) Items(key model.SectionKey) []string {
	return c.sections[key].Items
}

// Text renders any section shape as prompt text.
func (c *AnalysisContext) Text(key model.SectionKey) string {
	return c.sections[key].String()
}

// Sections returns the populated sections.
func (c *AnalysisContext) Sections() model.Sections {
	return maps.Clone(c.sections)
}

// Keys returns populated section keys in the order they were produced.
func (c *AnalysisContext) Keys() []model.SectionKey {
	return slices.Clone(c.order)
}

func (c *AnalysisContext) Statuses() model.Statuses {
	return maps.Clone(c.statuses)
}

func (c *AnalysisContext) Status(key model.SectionKey) (model.SectionStatus, bool) {
	s, ok := c.statuses[key]
	return s, ok
}

// Fallbacks lists the stages whose output did not follow the requested format.
func (c *AnalysisContext) Fallbacks() []string {
	return slices.Clone(c.fallbacks)
}

// markUnderway reports whether the status changed. DONE is never downgraded.
func (c *AnalysisContext) markUnderway(key model.SectionKey) bool {
	if _, ok := c.statuses[key]; ok {
		return false
	}
	c.statuses[key] = model.SectionStatusUnderway
	return true
}

func (c *AnalysisContext) markDone(key model.SectionKey) bool {
	if c.statuses[key] == model.SectionStatusDone {
		return false
	}
	c.statuses[key] = model.SectionStatusDone
	return true
}

func (c *AnalysisContext) set(key model.SectionKey, value model.SectionValue) {
	if _, ok := c.sections[key]; !ok {
		c.order = append(c.order, key)
	}
	c.sections[key] = value
}

func (c *AnalysisContext) recordFallback(stage string) {
	c.fallbacks = append(c.fallbacks, stage)
}

// Analysis flattens the run into a persistable record. Identity, ownership and
// timing are filled in by the caller.
func (c *AnalysisContext) Analysis() *model.Analysis {
	a := &model.Analysis{
		SubjectKind: c.Subject.Kind,
		SubjectID:   c.Subject.ID(),
		SubjectName: c.Subject.Name(),
		App:         c.Subject.App,
		Sections:    c.Sections(),
		Statuses:    c.Statuses(),
		Fallbacks:   c.Fallbacks(),
		ReviewCount: c.ReviewCount,
		TotalCost:   c.cost.Total(),
		TokenUsage:  c.cost.Records(),
	}
	return a
}
