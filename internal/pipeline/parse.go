package pipeline

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"appideas.app/engine/internal/model"
)

const (
	// UnableToAnalyze stands in for sentiment when the model returns nothing.
	UnableToAnalyze = "Unable to analyze..."

	NoLikesPlaceholder    = "No specific likes identified"
	NoDislikesPlaceholder = "No specific dislikes identified"
)

// ParseError means the model's output did not follow the requested format.
type ParseError struct {
	Parser string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.Parser, e.Reason)
}

var (
	likesHeading    = regexp.MustCompile(`(?i)^(?:#{1,6}\s*|\*\*)?\s*(?:what\s+(?:users|people|customers)\s+like|likes)\b`)
	dislikesHeading = regexp.MustCompile(`(?i)^(?:#{1,6}\s*|\*\*)?\s*(?:what\s+(?:users|people|customers)\s+dislike|dislikes)\b`)
	numberedLine    = regexp.MustCompile(`^\d+[.)]\s*(.*)$`)
	priorityTag     = regexp.MustCompile(`(?i)^[*_]{0,2}\[(high|medium|low)\]:?[*_]{0,2}:?\s*`)
	listLabel       = regexp.MustCompile(`^[*_]{0,2}\p{L}[\p{L} ]{0,30}:[*_]{0,2}\s*`)
	recommendation  = regexp.MustCompile(`^\[(CRITICAL|HIGH|MEDIUM)\]`)
)

// bulletItem returns the text after a •, - or * marker.
func bulletItem(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "**") {
		return "", false
	}
	for _, marker := range []string{"•", "-", "*"} {
		if rest, ok := strings.CutPrefix(line, marker); ok {
			item := strings.TrimSpace(rest)
			if strings.Trim(item, "-*• ") == "" {
				return "", false
			}
			return item, true
		}
	}
	return "", false
}

// ParseBullets keeps lines starting with a bullet marker, marker stripped.
func ParseBullets(text string) ([]string, error) {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		if item, ok := bulletItem(line); ok {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return nil, &ParseError{Parser: "bullets", Reason: "no bullet items"}
	}
	return items, nil
}

// ParseSentiment reads the likes and dislikes sections. Both headings must be present.
func ParseSentiment(text string) (likes, dislikes []string, err error) {
	var (
		current           *[]string
		sawLikes, sawDisl bool
	)
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case dislikesHeading.MatchString(trimmed):
			current, sawDisl = &dislikes, true
			continue
		case likesHeading.MatchString(trimmed):
			current, sawLikes = &likes, true
			continue
		}
		if current == nil {
			continue
		}
		if item, ok := bulletItem(trimmed); ok {
			*current = append(*current, item)
		}
	}

	if !sawLikes || !sawDisl {
		return nil, nil, &ParseError{Parser: "sentiment", Reason: "missing likes or dislikes heading"}
	}
	return likes, dislikes, nil
}

// SplitSentiment is the degraded reading used when the headings are missing:
// the first half of the lines are likes and the rest dislikes.
func SplitSentiment(text string) (likes, dislikes []string) {
	if strings.TrimSpace(text) == "" {
		return []string{UnableToAnalyze}, []string{UnableToAnalyze}
	}

	lines, err := ParseBullets(text)
	if err != nil {
		lines = nonEmptyLines(text)
	}

	mid := (len(lines) + 1) / 2
	likes, dislikes = lines[:mid], lines[mid:]
	if len(likes) == 0 {
		likes = []string{NoLikesPlaceholder}
	}
	if len(dislikes) == 0 {
		dislikes = []string{NoDislikesPlaceholder}
	}
	return likes, dislikes
}

// ParseCommaList splits a single-line, comma separated answer. A leading
// label such as "Keywords:" is dropped.
func ParseCommaList(text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if strings.Contains(text, "\n") {
		return nil, &ParseError{Parser: "comma list", Reason: "answer spans multiple lines"}
	}
	text = listLabel.ReplaceAllString(text, "")
	items := splitTrim(text, ",")
	if len(items) == 0 {
		return nil, &ParseError{Parser: "comma list", Reason: "no items"}
	}
	return items, nil
}

// SplitLoose accepts commas, newlines, bullets and numbering as separators.
func SplitLoose(text string) []string {
	var items []string
	for _, line := range nonEmptyLines(text) {
		if item, ok := bulletItem(line); ok {
			line = item
		} else if m := numberedLine.FindStringSubmatch(line); m != nil {
			line = m[1]
		}
		items = append(items, splitTrim(line, ",")...)
	}
	return items
}

// ParseBacklog reads "N. [Priority] text" lines. The tag may be wrapped in
// emphasis, as in "**[High]**". Missing tags default to Medium and items
// without content are dropped.
func ParseBacklog(text string) ([]model.BacklogItem, error) {
	var items []model.BacklogItem
	for _, line := range strings.Split(text, "\n") {
		m := numberedLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		if item, ok := backlogItem(m[1]); ok {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return nil, &ParseError{Parser: "backlog", Reason: "no numbered items"}
	}
	return items, nil
}

// BacklogFromBullets is the degraded backlog reading for bullet-style answers.
func BacklogFromBullets(text string) []model.BacklogItem {
	var items []model.BacklogItem
	for _, line := range strings.Split(text, "\n") {
		content, ok := bulletItem(line)
		if !ok {
			continue
		}
		if item, ok := backlogItem(content); ok {
			items = append(items, item)
		}
	}
	return items
}

func backlogItem(s string) (model.BacklogItem, bool) {
	s = strings.TrimSpace(s)
	priority := model.PriorityMedium
	if m := priorityTag.FindStringSubmatch(s); m != nil {
		switch strings.ToLower(m[1]) {
		case "high":
			priority = model.PriorityHigh
		case "low":
			priority = model.PriorityLow
		}
		s = strings.TrimSpace(s[len(m[0]):])
	}
	if s == "" {
		return model.BacklogItem{}, false
	}
	return model.BacklogItem{Priority: priority, Content: s}, true
}

var recommendationTier = map[string]int{"CRITICAL": 0, "HIGH": 1, "MEDIUM": 2}

// ParseRecommendations keeps only lines starting with a [CRITICAL], [HIGH] or
// [MEDIUM] tag and orders them by tier, keeping input order within a tier.
func ParseRecommendations(text string) ([]string, error) {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if recommendation.MatchString(line) {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, &ParseError{Parser: "recommendations", Reason: "no tagged lines"}
	}

	slices.SortStableFunc(lines, func(a, b string) int {
		return recommendationTier[recommendation.FindStringSubmatch(a)[1]] -
			recommendationTier[recommendation.FindStringSubmatch(b)[1]]
	})
	return lines, nil
}

// ParseText returns the trimmed completion.
func ParseText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &ParseError{Parser: "text", Reason: "empty completion"}
	}
	return text, nil
}

func nonEmptyLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func splitTrim(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.Trim(strings.TrimSpace(part), `"'.`)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
