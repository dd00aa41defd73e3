package common

import (
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// maxSlugBase caps the human-readable part of a share slug.
const maxSlugBase = 48

var (
	ErrEmptySlug = errors.New("slug cannot be empty")
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
)

func Slugify(input, fallback string) (string, error) {
	slug := slugify(input)
	if slug == "" {
		slug = slugify(fallback)
	}
	if slug == "" {
		return "", ErrEmptySlug
	}
	return slug, nil
}

// ShareSlug builds a public, unguessable slug for an analysis, e.g.
// "notion-notes-docs-3f2a9c1b7d4e". The suffix comes from a random UUID.
func ShareSlug(name string) string {
	base, err := Slugify(name, "analysis")
	if err != nil {
		base = "analysis"
	}
	if len(base) > maxSlugBase {
		base = strings.TrimRight(base[:maxSlugBase], "-")
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return base + "-" + suffix
}

func slugify(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	slug := nonSlugChars.ReplaceAllString(lower, "-")
	return strings.Trim(slug, "-")
}
