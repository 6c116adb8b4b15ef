package utils

import (
	"bufio"
	"os"
	"strings"
)

// Blacklist holds release-name terms that never count as a usable stream
type Blacklist struct {
	terms []string
}

// NewBlacklist builds a blacklist from the given terms
func NewBlacklist(terms []string) *Blacklist {
	b := &Blacklist{}
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term != "" {
			b.terms = append(b.terms, term)
		}
	}
	return b
}

// LoadBlacklist loads blacklist terms from a file, one per line.
// A missing file yields an empty blacklist.
func LoadBlacklist(path string) (*Blacklist, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewBlacklist(nil), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var terms []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		term := strings.TrimSpace(scanner.Text())
		if term != "" && !strings.HasPrefix(term, "#") {
			terms = append(terms, term)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return NewBlacklist(terms), nil
}

// Len returns the number of terms
func (b *Blacklist) Len() int {
	if b == nil {
		return 0
	}
	return len(b.terms)
}

// IsBlacklisted checks if a release text matches any blacklist term
// Returns (isBlacklisted, matchedTerm)
func (b *Blacklist) IsBlacklisted(text string) (bool, string) {
	if b.Len() == 0 {
		return false, ""
	}

	folded := foldCase(text)
	for _, term := range b.terms {
		if strings.Contains(folded, foldCase(term)) {
			return true, term
		}
	}

	return false, ""
}
