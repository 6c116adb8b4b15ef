package utils

import (
	"strings"

	"github.com/amaumene/stremarr/internal/models"
	"golang.org/x/text/cases"
)

// resolutionRank orders the resolution tags; HDR and DV are handled apart.
var resolutionRank = map[string]int{
	string(models.Resolution480p):  1,
	string(models.Resolution720p):  2,
	string(models.Resolution1080p): 3,
	string(models.Resolution4K):    4,
}

// PassesFilters reports whether a classified stream satisfies the user's
// preferences. Nil preferences accept every stream.
func PassesFilters(stream ClassifiedStream, prefs *models.FilterPreferences) bool {
	if prefs == nil {
		return true
	}
	return passesResolution(stream.Quality, prefs.MinResolution) &&
		passesLanguage(stream.matchText, prefs.Languages)
}

func passesResolution(quality string, min models.Resolution) bool {
	if min == models.ResolutionAny {
		return true
	}
	if quality == "" {
		return false
	}
	if quality == "HDR" || quality == "DV" {
		return true
	}

	minRank, ok := resolutionRank[string(min)]
	if !ok {
		return true
	}
	return resolutionRank[quality] >= minRank
}

func passesLanguage(text string, languages []string) bool {
	folded := foldCase(text)
	configured := false
	for _, lang := range languages {
		lang = strings.TrimSpace(lang)
		if lang == "" {
			continue
		}
		configured = true
		if strings.Contains(folded, foldCase(lang)) {
			return true
		}
	}
	return !configured
}

// foldCase applies Unicode case folding. A Caser is not safe for concurrent
// use, so each call gets its own.
func foldCase(s string) string {
	return cases.Fold().String(s)
}
