package moderation

import (
	"conversation-engine/errors"
	"log/slog"
	"unicode"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
	goahocorasick "github.com/anknown/ahocorasick"
	"golang.org/x/text/unicode/norm"
)

// Moderator masks censored words in message texts.
// Matching ignores case, punctuation and common leet speak substitutions.
type Moderator struct {
	matcher      *goahocorasick.Machine
	censoredChar rune
	log          *slog.Logger
}

type TextMapping struct {
	Normalized []rune
	OrigIdx    []int
}

// NewModerator initializes the Aho-Corasick automaton with a normalized version of the provided censored words list.
// Words made only of noise normalize to nothing and are skipped.
func NewModerator(censoredWords []string, censoredChar rune, log *slog.Logger) (*Moderator, error) {
	patterns := make([][]rune, 0, len(censoredWords))
	for _, word := range censoredWords {
		pattern := mapText(word).Normalized
		if len(pattern) == 0 {
			log.Debug("Skipping censored word without letters", "word", word)
			continue
		}
		patterns = append(patterns, pattern)
	}
	if len(patterns) == 0 {
		return nil, errors.ErrEmptyWords
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: m, censoredChar: censoredChar, log: log}, nil
}

// Censor replaces the original characters of every forbidden pattern while preserving spacing.
func (m *Moderator) Censor(original string) string {
	content, words := m.Inspect(original)
	if len(words) > 0 {
		m.log.Debug("Censored message", "words", len(words), "lang", Language(original))
	}
	return content
}

// Language returns the ISO 639-1 code of the detected language, empty when unreliable.
func Language(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}

// Inspect censors the text and also reports the normalized words that matched, in order of appearance.
func (m *Moderator) Inspect(original string) (string, []string) {
	mapping := mapText(original)
	if len(mapping.Normalized) == 0 {
		return original, nil
	}

	origRunes := []rune(original)
	spans := m.matcher.MultiPatternSearch(mapping.Normalized, false)
	if len(spans) == 0 {
		return original, nil
	}

	var words []string
	for _, span := range spans {
		normStart := span.Pos
		normEnd := normStart + len(span.Word)

		if normStart < 0 || normEnd > len(mapping.OrigIdx) {
			continue
		}

		origStart := mapping.OrigIdx[normStart]
		origEnd := mapping.OrigIdx[normEnd-1] + 1

		for i := origStart; i < origEnd; i++ {
			origRunes[i] = m.censoredChar
		}
		words = append(words, string(span.Word))
	}

	return string(origRunes), words
}

// mapText folds the input into its searchable form and remembers, for every
// kept rune, its index in the original text.
func mapText(input string) TextMapping {
	origRunes := []rune(input)
	mapping := TextMapping{
		Normalized: make([]rune, 0, len(origRunes)),
		OrigIdx:    make([]int, 0, len(origRunes)),
	}
	for i, r := range origRunes {
		if folded, ok := fold(r); ok {
			mapping.Normalized = append(mapping.Normalized, folded)
			mapping.OrigIdx = append(mapping.OrigIdx, i)
		}
	}
	return mapping
}

// fold lowers a rune, undoes leet speak and strips accents. Noise is dropped.
func fold(r rune) (rune, bool) {
	switch r {
	case '4', '@':
		r = 'a'
	case '8':
		r = 'b'
	case '3', '€':
		r = 'e'
	case '1', '!', '|':
		r = 'i'
	case '0':
		r = 'o'
	case '5', '$':
		r = 's'
	case '7', '+':
		r = 't'
	}
	if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
		return 0, false
	}
	return unicode.ToLower(stripAccent(r)), true
}

// stripAccent returns the base letter of a precomposed rune, "é" becomes "e".
func stripAccent(r rune) rune {
	if r < utf8.RuneSelf {
		return r
	}
	base, _ := utf8.DecodeRuneInString(norm.NFD.String(string(r)))
	return base
}
