// Package moderation censors forbidden words in message content before it is
// persisted, and tags each message with its detected language.
package moderation

import (
	"unicode"

	"github.com/abadojack/whatlanggo"
	goahocorasick "github.com/anknown/ahocorasick"

	"fitgent/errors"
)

type Moderator struct {
	matcher      *goahocorasick.Machine
	censoredChar rune
}

// Review is the outcome of moderating one message.
type Review struct {
	Content  string // content with forbidden spans replaced
	Lang     string // ISO 639-1 code, empty when detection is unsure
	Censored bool
}

type textMapping struct {
	normalized []rune
	origIdx    []int
}

// NewModerator initializes the Aho-Corasick automaton with a normalized version
// of the provided censored words list.
func NewModerator(censoredWords []string, censoredChar rune) (Moderator, error) {
	if len(censoredWords) == 0 {
		return Moderator{}, errors.ErrEmptyWords
	}
	patterns := make([][]rune, len(censoredWords))
	for i, word := range censoredWords {
		patterns[i] = normalizeRunes([]rune(word))
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return Moderator{}, err
	}
	return Moderator{matcher: m, censoredChar: censoredChar}, nil
}

// Review censors the content and detects its language in one pass over the
// message. Detection runs on the original text, not the censored one.
func (m *Moderator) Review(original string) Review {
	info := whatlanggo.Detect(original)
	lang := ""
	if info.IsReliable() {
		lang = info.Lang.Iso6391()
	}

	censored, found := m.Censor(original)
	return Review{Content: censored, Lang: lang, Censored: found}
}

// Censor identifies forbidden patterns and replaces the original characters
// with the replacement rune while preserving spacing. Matching is resistant to
// casing, punctuation padding, and common leet substitutions.
func (m *Moderator) Censor(original string) (string, bool) {
	mapping := m.normalize(original)
	if len(mapping.normalized) == 0 {
		return original, false
	}

	origRunes := []rune(original)
	spans := m.matcher.MultiPatternSearch(mapping.normalized, false)
	if len(spans) == 0 {
		return original, false
	}

	for _, span := range spans {
		normStart := span.Pos
		normEnd := normStart + len(span.Word)

		if normStart < 0 || normEnd > len(mapping.origIdx) {
			continue
		}

		origStart := mapping.origIdx[normStart]
		lastCharOrigIdx := mapping.origIdx[normEnd-1]
		origEnd := lastCharOrigIdx + 1

		for i := origStart; i < origEnd; i++ {
			origRunes[i] = m.censoredChar
		}
	}

	return string(origRunes), true
}

// normalize transforms the input string into a searchable format and tracks
// original rune positions.
func (m *Moderator) normalize(input string) textMapping {
	origRunes := []rune(input)
	norm := make([]rune, 0, len(origRunes))
	origIdx := make([]int, 0, len(origRunes))

	for i, r := range origRunes {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		norm = append(norm, unicode.ToLower(clean))
		origIdx = append(origIdx, i)
	}
	return textMapping{normalized: norm, origIdx: origIdx}
}

func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

// simplifyRune maps common leet speak characters back to their standard
// alphabet counterparts.
func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

// isNoise identifies characters that should be ignored during the pattern
// matching phase.
func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
