package utils

import (
	"regexp"
	"strings"
)

// StreamText is the free text an addon attaches to one stream
type StreamText struct {
	Name        string
	Title       string
	Description string
	Filename    string // behaviorHints.filename
}

// ClassifiedStream is a stream reduced to the signals shown to users
type ClassifiedStream struct {
	DisplayName string
	Title       string
	Quality     string
	Size        string

	matchText string // display name + name + title
}

type qualityPattern struct {
	re  *regexp.Regexp
	tag string
}

// anywherePattern matches expr anywhere in the text, case-insensitively
func anywherePattern(expr string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + expr)
}

// tokenPattern matches expr only as a standalone token, where dots, dashes,
// spaces and underscores all count as separators. Used for short tags that
// are also prefixes of unrelated words (DV in DVDRip, HDR in HDRip).
func tokenPattern(expr string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(?:` + expr + `)(?:[^a-z0-9]|$)`)
}

// qualityTable is checked in order; the first entry that matches wins.
var qualityTable = []qualityPattern{
	{anywherePattern(`4k`), "4K"},
	{anywherePattern(`2160p`), "4K"},
	{anywherePattern(`1080p`), "1080p"},
	{anywherePattern(`720p`), "720p"},
	{anywherePattern(`480p`), "480p"},
	{tokenPattern(`hdr(?:10\+?)?`), "HDR"},
	{anywherePattern(`dolby[ ._-]?vision`), "DV"},
	{tokenPattern(`dv`), "DV"},
}

var (
	sizeRegex   = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(GB|MB)\b`)
	markupRegex = regexp.MustCompile(`<[^>]*>`)
)

// ClassifyStream extracts a display name, quality tag and size from a stream
func ClassifyStream(s StreamText) ClassifiedStream {
	name := ExtractDisplayName(s)

	matchText := strings.Join([]string{name, s.Name, s.Title}, " ")
	sizeText := strings.Join([]string{name, s.Name, s.Title, s.Description}, " ")

	return ClassifiedStream{
		DisplayName: name,
		Title:       s.Title,
		Quality:     ExtractQuality(matchText),
		Size:        ExtractSize(sizeText),
		matchText:   matchText,
	}
}

// ExtractDisplayName picks the best release name an addon provided:
// filename hint, then description, then title, then name.
func ExtractDisplayName(s StreamText) string {
	candidates := []string{
		s.Filename,
		firstLine(s.Description),
		firstLine(s.Title),
		s.Name,
	}
	for _, candidate := range candidates {
		if candidate = StripMarkup(candidate); candidate != "" {
			return candidate
		}
	}
	return "Unknown"
}

// ExtractQuality returns the first quality tag of the table found in text,
// or an empty string
func ExtractQuality(text string) string {
	for _, p := range qualityTable {
		if p.re.MatchString(text) {
			return p.tag
		}
	}
	return ""
}

// ExtractSize returns the first "<number> GB|MB" found in text, or an empty string
func ExtractSize(text string) string {
	matches := sizeRegex.FindStringSubmatch(text)
	if len(matches) < 3 {
		return ""
	}
	number := strings.ReplaceAll(matches[1], ",", ".")
	return number + " " + strings.ToUpper(matches[2])
}

// StripMarkup removes embedded markup tags and surrounding whitespace
func StripMarkup(s string) string {
	return strings.TrimSpace(markupRegex.ReplaceAllString(s, ""))
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// MatchText returns the combined name and title text the filters run against
func (c ClassifiedStream) MatchText() string {
	return c.matchText
}
