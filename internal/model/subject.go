package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

type SubjectKind string

const (
	SubjectKindApp  SubjectKind = "app"
	SubjectKindIdea SubjectKind = "idea"
)

type AppMetadata struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Developer   string  `json:"developer"`
	Rating      float64 `json:"rating"`
	RatingCount int     `json:"rating_count"`
	IconURL     string  `json:"icon_url,omitempty"`
	Description string  `json:"description,omitempty"`
	Genre       string  `json:"genre,omitempty"`
	Price       float64 `json:"price"`
	URL         string  `json:"url,omitempty"`
}

type Review struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Rating int    `json:"rating"`
	Date   string `json:"date"`
	Text   string `json:"text"`
}

// Subject is what an analysis is about: an App Store app or a free-text idea.
type Subject struct {
	Kind     SubjectKind
	AppID    string
	Country  string
	App      *AppMetadata // set once the app is resolved
	IdeaText string
	IdeaName string
}

// ID is the cache key for the subject. Apps are keyed per storefront
// because reviews and metadata come from the country's store. Ideas are
// keyed by a digest of their normalized text so resubmitting the same idea
// hits the cache.
func (s Subject) ID() string {
	if s.Kind == SubjectKindApp {
		if country := strings.ToLower(strings.TrimSpace(s.Country)); country != "" {
			return s.AppID + ":" + country
		}
		return s.AppID
	}
	normalized := strings.Join(strings.Fields(strings.ToLower(s.IdeaText)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return "idea-" + hex.EncodeToString(sum[:8])
}

func (s Subject) Name() string {
	switch {
	case s.Kind == SubjectKindApp && s.App != nil:
		return s.App.Name
	case s.Kind == SubjectKindApp:
		return s.AppID
	case strings.TrimSpace(s.IdeaName) != "":
		return strings.TrimSpace(s.IdeaName)
	}
	idea := strings.TrimSpace(s.IdeaText)
	if r := []rune(idea); len(r) > 60 {
		return string(r[:60]) + "..."
	}
	return idea
}
