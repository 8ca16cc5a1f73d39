package models

import (
	"encoding/json"
	"strings"
)

// WordType is the part of speech reported by the grammar analysis
type WordType string

const (
	WordTypeNoun        WordType = "noun"
	WordTypeAdjective   WordType = "adjective"
	WordTypeVerb        WordType = "verb"
	WordTypeAdverb      WordType = "adverb"
	WordTypePronoun     WordType = "pronoun"
	WordTypeNumber      WordType = "number"
	WordTypePreposition WordType = "preposition"
	WordTypeConjunction WordType = "conjunction"
	WordTypeParticle    WordType = "particle"
	WordTypeUnknown     WordType = "unknown"
)

// WordTypes lists every known word type in display order
var WordTypes = []WordType{
	WordTypeNoun,
	WordTypeAdjective,
	WordTypeVerb,
	WordTypeAdverb,
	WordTypePronoun,
	WordTypeNumber,
	WordTypePreposition,
	WordTypeConjunction,
	WordTypeParticle,
	WordTypeUnknown,
}

// ParseWordType maps free text to a WordType, falling back to WordTypeUnknown
func ParseWordType(s string) WordType {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range WordTypes {
		if string(t) == s {
			return t
		}
	}
	return WordTypeUnknown
}

// GrammarResult is the structured analysis of a single word
type GrammarResult struct {
	Word           string            `json:"word"`
	DictionaryForm string            `json:"dictionary_form"`
	WordType       WordType          `json:"word_type"`
	Translation    string            `json:"english_translation"`
	Forms          map[string]string `json:"forms"`
	Raw            json.RawMessage   `json:"raw,omitempty"`
}
