package pipeline

import (
	"fmt"
	"strings"

	"appideas.app/engine/internal/model"
)

// Upstream sections are clipped to these lengths before they are interpolated.
const (
	clipShort  = 500
	clipMedium = 800
	clipLong   = 1000
	clipFull   = 1500

	// maxCorpusChars bounds the review text sent to the sentiment stage.
	maxCorpusChars = 40000
)

// Corpus joins reviews into the sentiment stage input.
func Corpus(reviews []model.Review) string {
	var sb strings.Builder
	for i, r := range reviews {
		entry := fmt.Sprintf("Review %d (%d/5): %s\n%s\n\n", i+1, r.Rating, strings.TrimSpace(r.Title), strings.TrimSpace(r.Text))
		if sb.Len()+len(entry) > maxCorpusChars {
			break
		}
		sb.WriteString(entry)
	}
	return strings.TrimSpace(sb.String())
}

func clip(s string, limit int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for _, item := range items {
		sb.WriteString("- ")
		sb.WriteString(item)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// subjectLine introduces the app or idea in one sentence.
func subjectLine(ac *AnalysisContext) string {
	s := ac.Subject
	if s.Kind == model.SubjectKindIdea {
		if name := strings.TrimSpace(s.IdeaName); name != "" {
			return fmt.Sprintf("a business idea called %q", name)
		}
		return "a new business idea"
	}
	if s.App == nil {
		return fmt.Sprintf("the App Store app %s", s.AppID)
	}
	line := fmt.Sprintf("the App Store app %q by %s", s.App.Name, s.App.Developer)
	if s.App.Genre != "" {
		line += fmt.Sprintf(" (%s)", s.App.Genre)
	}
	return line
}

// audience names who the sentiment is about.
func audience(ac *AnalysisContext) string {
	if ac.Subject.Kind == model.SubjectKindIdea {
		return "target customers"
	}
	return "users"
}

func buildSentimentPrompt(ac *AnalysisContext) string {
	if ac.Subject.Kind == model.SubjectKindIdea {
		return fmt.Sprintf(`You are a product analyst evaluating %s.

Idea:
%s

Think about the people this idea would serve. Summarize what they would value and what would frustrate them or need to change, in exactly two sections using these headings:

### What users like
### What users dislike or want changed

Under each heading list 5 to 10 concise points, one per line, each starting with "• ". Do not add any other headings, introductions or closing remarks.`,
			subjectLine(ac), clip(ac.Corpus, maxCorpusChars))
	}

	return fmt.Sprintf(`You are a product analyst reviewing App Store feedback for %s.

Read the reviews below and summarize them in exactly two sections using these headings:

### What users like
### What users dislike or want changed

Under each heading list 5 to 10 concise points, one per line, each starting with "• ". Merge duplicate points. Do not add any other headings, introductions or closing remarks.

Reviews:
%s`, subjectLine(ac), ac.Corpus)
}

func buildKeywordsPrompt(ac *AnalysisContext) string {
	return fmt.Sprintf(`Suggest App Store search keywords for a competitor to %s.

What %s like:
%s

What %s dislike:
%s

Return 10 to 15 short keywords or phrases on a single line separated by commas. No numbering, no explanations.`,
		subjectLine(ac),
		audience(ac), clip(bulletList(ac.Items(model.SectionLikes)), clipLong),
		audience(ac), clip(bulletList(ac.Items(model.SectionDislikes)), clipLong))
}

func buildDefinitelyIncludePrompt(ac *AnalysisContext) string {
	return fmt.Sprintf(`A new product is being designed to compete with %s.

What %s like today:
%s

List the 5 to 8 core features the new product must definitely include to keep what %s value. One feature per line, each starting with "- ", at most 12 words each.`,
		subjectLine(ac), audience(ac), clip(bulletList(ac.Items(model.SectionLikes)), clipLong), audience(ac))
}

func buildBacklogPrompt(ac *AnalysisContext) string {
	return fmt.Sprintf(`Build a feature backlog for a product competing with %s.

Pain points to solve:
%s

Core features already planned:
%s

Write 8 to 12 backlog items as a numbered list in the form:
1. [High] Item description
2. [Medium] Item description
3. [Low] Item description

Use only the priorities High, Medium and Low. One item per line, nothing else.`,
		subjectLine(ac),
		clip(bulletList(ac.Items(model.SectionDislikes)), clipLong),
		clip(bulletList(ac.Items(model.SectionDefinitelyInclude)), clipMedium))
}

func buildRecommendationsPrompt(ac *AnalysisContext) string {
	return fmt.Sprintf(`You advise a founder building a competitor to %s.

What %s dislike:
%s

Planned backlog:
%s

Give 5 to 8 strategic recommendations. Each line must start with exactly one tag, [CRITICAL], [HIGH] or [MEDIUM], followed by "Title: one sentence". List every [CRITICAL] line first, then [HIGH], then [MEDIUM]. No bullets, numbering or other text.

Example:
[CRITICAL] Stability first: Fix the crash-on-launch reports before adding features.`,
		subjectLine(ac), audience(ac),
		clip(bulletList(ac.Items(model.SectionDislikes)), clipLong),
		clip(ac.Text(model.SectionBacklog), clipLong))
}

func buildDescriptionPrompt(ac *AnalysisContext) string {
	return fmt.Sprintf(`Write an App Store description for a new product that improves on %s.

Core features:
%s

Backlog highlights:
%s

Write 2 to 3 short paragraphs in plain prose. No headings, no markdown, no placeholder names.`,
		subjectLine(ac),
		clip(bulletList(ac.Items(model.SectionDefinitelyInclude)), clipMedium),
		clip(ac.Text(model.SectionBacklog), clipLong))
}

func buildAppNamesPrompt(ac *AnalysisContext) string {
	return fmt.Sprintf(`Suggest names for this new app.

Description:
%s

Keywords: %s

List 8 to 10 short, brandable name ideas, one per line, each starting with "- ". Names only, no explanations.`,
		clip(ac.Text(model.SectionDescription), clipShort),
		clip(ac.Text(model.SectionKeywords), clipShort))
}

func buildPRPPrompt(ac *AnalysisContext) string {
	return fmt.Sprintf(`Write a product requirements prompt that a developer could hand to an AI coding assistant to build the first version of this app.

Description:
%s

Must-have features:
%s

Backlog:
%s

Cover the target user, core user flows, screens, data model, and acceptance criteria for each must-have feature. Use markdown headings.`,
		clip(ac.Text(model.SectionDescription), clipFull),
		clip(bulletList(ac.Items(model.SectionDefinitelyInclude)), clipMedium),
		clip(ac.Text(model.SectionBacklog), clipLong))
}

func buildSimilarAppsPrompt(ac *AnalysisContext) string {
	return fmt.Sprintf(`List existing App Store apps similar to %s.

Description of the planned competitor:
%s

Keywords: %s

Name 5 to 8 real apps. For each give one line with the name, what it does well, and where it falls short. Only include apps you are confident exist.`,
		subjectLine(ac),
		clip(ac.Text(model.SectionDescription), clipMedium),
		clip(ac.Text(model.SectionKeywords), clipShort))
}

func buildCompetitorsPrompt(ac *AnalysisContext) string {
	return fmt.Sprintf(`Identify the competitive landscape for %s.

Description:
%s

Keywords: %s

Name 5 to 8 existing products or companies that solve the same problem, including indirect alternatives. For each give one line with the name, its positioning, and the gap this idea could exploit. Only include competitors you are confident exist.`,
		subjectLine(ac),
		clip(ac.Text(model.SectionDescription), clipMedium),
		clip(ac.Text(model.SectionKeywords), clipShort))
}

const pricingGuardrails = `Pricing guardrails:
- Consumer subscriptions must stay between $0.99 and $14.99 per month. Only clearly professional or team tools may go up to $49.99 per user per month.
- One-time purchases must stay between $0.99 and $29.99.
- Assume at most 2% to 5% of free users convert to paid.
- Recommend a free tier or trial when comparable products offer one.
- Prefer the lower end of every range when unsure.`

func buildPricingPrompt(ac *AnalysisContext) string {
	var reference string
	if app := ac.Subject.App; app != nil {
		price := "free"
		if app.Price > 0 {
			price = fmt.Sprintf("$%.2f", app.Price)
		}
		reference = fmt.Sprintf("\nReference app: %s, %s, rated %.1f from %d ratings.\n", app.Name, price, app.Rating, app.RatingCount)
	}

	return fmt.Sprintf(`Recommend a pricing model for this product.

Description:
%s

Core features:
%s
%s
%s

Describe the model (free, freemium, subscription, one-time), the tiers with concrete prices, and what each tier includes. Keep it under 250 words.`,
		clip(ac.Text(model.SectionDescription), clipMedium),
		clip(bulletList(ac.Items(model.SectionDefinitelyInclude)), clipShort),
		reference,
		pricingGuardrails)
}

const viabilityGuardrails = `Estimation guardrails:
- A new entrant captures well under 1% of its category in its first year.
- Most new apps earn less than $10,000 in their first year. Never estimate more than $1,000,000 of first-year revenue.
- Give every estimate as a range and state the assumptions behind it.
- Score viability from 1 to 10. Reserve 8 or higher for clear unmet demand with weak competition.`

func buildMarketViabilityPrompt(ac *AnalysisContext) string {
	peers := ac.Text(model.SectionSimilarApps)
	if ac.Subject.Kind == model.SubjectKindIdea {
		peers = ac.Text(model.SectionCompetitors)
	}

	return fmt.Sprintf(`Assess the market viability of this product.

Description:
%s

Existing alternatives:
%s

Pricing model:
%s

%s

Cover target market size, competition, monetization potential, main risks, and a first-year revenue range. End with a line "Viability score: N/10".`,
		clip(ac.Text(model.SectionDescription), clipMedium),
		clip(peers, clipLong),
		clip(ac.Text(model.SectionPricingModel), clipMedium),
		viabilityGuardrails)
}
