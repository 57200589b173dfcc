// Package moderation masks blacklisted words in message content before it
// is persisted. Matching is accent/leet tolerant: the automaton runs on a
// normalized projection of the text and masking is applied back onto the
// original runes, so spacing and length are preserved.
package moderation

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

type Moderator struct {
	machine *goahocorasick.Machine
	mask    rune
}

// NewModerator builds the Aho-Corasick automaton over the normalized
// wordlist. Building is the expensive part; Censor is cheap afterwards.
func NewModerator(words []string, mask rune) (Moderator, error) {
	patterns := make([][]rune, len(words))
	for i, w := range words {
		patterns[i], _ = normalize([]rune(w))
	}

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return Moderator{}, err
	}
	return Moderator{machine: machine, mask: mask}, nil
}

// Censor replaces every character of a matched word with the mask rune.
// Unmatched input is returned unchanged.
func (m *Moderator) Censor(original string) string {
	origRunes := []rune(original)
	norm, origIdx := normalize(origRunes)
	if len(norm) == 0 {
		return original
	}

	spans := m.machine.MultiPatternSearch(norm, false)
	if len(spans) == 0 {
		return original
	}

	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(origIdx) {
			continue
		}
		// Map the normalized span back to original rune positions.
		for i := origIdx[start]; i <= origIdx[end-1]; i++ {
			origRunes[i] = m.mask
		}
	}
	return string(origRunes)
}

// normalize lowercases, strips punctuation/space/symbol noise, and folds
// common leet substitutions. origIdx maps each kept rune back to its
// position in the input.
func normalize(input []rune) (norm []rune, origIdx []int) {
	norm = make([]rune, 0, len(input))
	origIdx = make([]int, 0, len(input))
	for i, r := range input {
		folded := foldLeet(r)
		if unicode.IsPunct(folded) || unicode.IsSpace(folded) || unicode.IsSymbol(folded) {
			continue
		}
		norm = append(norm, unicode.ToLower(folded))
		origIdx = append(origIdx, i)
	}
	return norm, origIdx
}

func foldLeet(r rune) rune {
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
