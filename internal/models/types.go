package models

import "strings"

// MediaKind represents the kind of media (movie or series)
type MediaKind string

const (
	MediaKindMovie  MediaKind = "movie"
	MediaKindSeries MediaKind = "series"
)

// ParseMediaKind maps the kinds used by the request manager onto MediaKind.
// Returns false for anything that is neither a movie nor a series.
func ParseMediaKind(s string) (MediaKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie", "movies":
		return MediaKindMovie, true
	case "series", "tv", "show", "shows":
		return MediaKindSeries, true
	default:
		return "", false
	}
}

// Resolution is a minimum-resolution threshold configured by a user
type Resolution string

const (
	ResolutionAny   Resolution = ""
	Resolution480p  Resolution = "480p"
	Resolution720p  Resolution = "720p"
	Resolution1080p Resolution = "1080p"
	Resolution4K    Resolution = "4K"
)

// ParseResolution normalizes a user supplied resolution threshold.
func ParseResolution(s string) (Resolution, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return ResolutionAny, true
	case "480p", "480":
		return Resolution480p, true
	case "720p", "720":
		return Resolution720p, true
	case "1080p", "1080":
		return Resolution1080p, true
	case "4k", "2160p", "2160", "uhd":
		return Resolution4K, true
	default:
		return "", false
	}
}

// MaxLanguageTags is the number of language tags a user may configure
const MaxLanguageTags = 2

// FilterPreferences holds per-user stream filtering settings
type FilterPreferences struct {
	Languages     []string   // Free-text match tokens, e.g. "FRENCH", "MULTI"
	MinResolution Resolution // Empty means no minimum
}

// IsZero reports whether the preferences filter nothing.
func (p FilterPreferences) IsZero() bool {
	return len(p.Languages) == 0 && p.MinResolution == ResolutionAny
}
