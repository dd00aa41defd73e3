package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type SectionKey string

const (
	SectionLikes             SectionKey = "likes"
	SectionDislikes          SectionKey = "dislikes"
	SectionKeywords          SectionKey = "keywords"
	SectionDefinitelyInclude SectionKey = "definitely_include"
	SectionBacklog           SectionKey = "backlog"
	SectionRecommendations   SectionKey = "recommendations"
	SectionDescription       SectionKey = "description"
	SectionAppNames          SectionKey = "app_names"
	SectionPRP               SectionKey = "prp"
	SectionSimilarApps       SectionKey = "similar_apps"
	SectionCompetitors       SectionKey = "competitors"
	SectionPricingModel      SectionKey = "pricing_model"
	SectionMarketViability   SectionKey = "market_viability"
)

// SectionKeys returns the section keys for a subject kind in dependency order.
func SectionKeys(kind SubjectKind) []SectionKey {
	peers := SectionSimilarApps
	if kind == SubjectKindIdea {
		peers = SectionCompetitors
	}
	return []SectionKey{
		SectionLikes,
		SectionDislikes,
		SectionKeywords,
		SectionDefinitelyInclude,
		SectionBacklog,
		SectionRecommendations,
		SectionDescription,
		SectionAppNames,
		SectionPRP,
		peers,
		SectionPricingModel,
		SectionMarketViability,
	}
}

type SectionStatus string

const (
	SectionStatusUnderway SectionStatus = "RESEARCH UNDERWAY"
	SectionStatusDone     SectionStatus = "DONE"
)

type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

type BacklogItem struct {
	Priority Priority `json:"priority"`
	Content  string   `json:"content"`
}

// SectionValue holds exactly one of free text, a string list, or a backlog.
// It marshals to the bare JSON shape of whichever is set.
type SectionValue struct {
	Text    string
	Items   []string
	Backlog []BacklogItem
}

func TextValue(text string) SectionValue {
	return SectionValue{Text: text}
}

func ListValue(items []string) SectionValue {
	return SectionValue{Items: items}
}

func BacklogValue(items []BacklogItem) SectionValue {
	return SectionValue{Backlog: items}
}

func (v SectionValue) IsEmpty() bool {
	return strings.TrimSpace(v.Text) == "" && len(v.Items) == 0 && len(v.Backlog) == 0
}

// String renders the value as prompt context.
func (v SectionValue) String() string {
	switch {
	case len(v.Backlog) > 0:
		lines := make([]string, 0, len(v.Backlog))
		for _, item := range v.Backlog {
			lines = append(lines, fmt.Sprintf("[%s] %s", item.Priority, item.Content))
		}
		return strings.Join(lines, "\n")
	case len(v.Items) > 0:
		return strings.Join(v.Items, ", ")
	default:
		return v.Text
	}
}

func (v SectionValue) MarshalJSON() ([]byte, error) {
	switch {
	case len(v.Backlog) > 0:
		return json.Marshal(v.Backlog)
	case len(v.Items) > 0:
		return json.Marshal(v.Items)
	default:
		return json.Marshal(v.Text)
	}
}

func (v *SectionValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = SectionValue{}
		return nil
	}

	switch data[0] {
	case '"':
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return fmt.Errorf("decoding text section: %w", err)
		}
		*v = TextValue(text)
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("decoding list section: %w", err)
		}
		if len(raw) > 0 && bytes.HasPrefix(bytes.TrimSpace(raw[0]), []byte("{")) {
			var items []BacklogItem
			if err := json.Unmarshal(data, &items); err != nil {
				return fmt.Errorf("decoding backlog section: %w", err)
			}
			*v = BacklogValue(items)
			return nil
		}
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("decoding list section: %w", err)
		}
		*v = ListValue(items)
	default:
		return fmt.Errorf("unsupported section value: %s", data)
	}
	return nil
}

type Sections map[SectionKey]SectionValue

type Statuses map[SectionKey]SectionStatus
