// Package report renders persisted analyses as shareable documents.
package report

import (
	"fmt"
	"strings"

	"appideas.app/engine/internal/model"
)

var sectionTitles = map[model.SectionKey]string{
	model.SectionLikes:             "What users like",
	model.SectionDislikes:          "What users dislike or want changed",
	model.SectionKeywords:          "Keywords",
	model.SectionDefinitelyInclude: "Must include",
	model.SectionBacklog:           "Feature backlog",
	model.SectionRecommendations:   "Recommendations",
	model.SectionDescription:       "App Store description",
	model.SectionAppNames:          "Name ideas",
	model.SectionPRP:               "Product requirements prompt",
	model.SectionSimilarApps:       "Similar apps",
	model.SectionCompetitors:       "Competitors",
	model.SectionPricingModel:      "Pricing model",
	model.SectionMarketViability:   "Market viability",
}

// Title is the human heading for a section key.
func Title(key model.SectionKey) string {
	if t, ok := sectionTitles[key]; ok {
		return t
	}
	return string(key)
}

// Markdown renders every section of a in display order. Sections that never
// finished are shown with their status instead of content.
func Markdown(a *model.Analysis) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", a.SubjectName)
	if a.App != nil {
		fmt.Fprintf(&sb, "_%s · %.1f★ from %d ratings · %s_\n\n", a.App.Developer, a.App.Rating, a.App.RatingCount, a.App.Genre)
	}
	if a.ReviewCount > 0 {
		fmt.Fprintf(&sb, "Based on %d reviews. ", a.ReviewCount)
	}
	fmt.Fprintf(&sb, "Analysis cost %s", a.TotalCost.String())
	if !a.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, ", generated %s", a.CreatedAt.UTC().Format("2006-01-02"))
	}
	sb.WriteString(".\n")

	for _, key := range model.SectionKeys(a.SubjectKind) {
		fmt.Fprintf(&sb, "\n## %s\n\n", Title(key))

		value, ok := a.Sections[key]
		if !ok || value.IsEmpty() {
			status := a.Statuses[key]
			if status == "" {
				status = model.SectionStatusUnderway
			}
			fmt.Fprintf(&sb, "_%s_\n", status)
			continue
		}
		sb.WriteString(renderValue(value))
	}

	return sb.String()
}

func renderValue(v model.SectionValue) string {
	var sb strings.Builder
	switch {
	case len(v.Backlog) > 0:
		for _, item := range v.Backlog {
			fmt.Fprintf(&sb, "- **%s** %s\n", item.Priority, item.Content)
		}
	case len(v.Items) > 0:
		for _, item := range v.Items {
			fmt.Fprintf(&sb, "- %s\n", item)
		}
	default:
		sb.WriteString(strings.TrimSpace(v.Text))
		sb.WriteString("\n")
	}
	return sb.String()
}
