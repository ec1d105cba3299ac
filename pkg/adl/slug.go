package adl

import (
	"regexp"
	"strings"
)

var (
	slugInvalidRuns = regexp.MustCompile(`[^a-z0-9-]+`)
	slugDashRuns    = regexp.MustCompile(`-{2,}`)
)

// Slugify normalises a name into a URL-safe slug: lowercase, non-[a-z0-9-]
// runs collapsed to a single dash, leading and trailing dashes stripped.
func Slugify(name string) string {
	slug := strings.ToLower(name)
	slug = slugInvalidRuns.ReplaceAllString(slug, "-")
	slug = slugDashRuns.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// SlugFor returns the declared slug, or one derived from the agent name.
func SlugFor(doc *Document) string {
	if doc.Identity.Slug != "" {
		return doc.Identity.Slug
	}
	return Slugify(doc.Identity.Name)
}
