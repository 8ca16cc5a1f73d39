package bulk

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Список слов: только кириллица, дефисы, пробелы и разделители , ;
var wordListText = regexp.MustCompile(`^[\sа-яёА-ЯЁ,;-]+$`)

// minWordLength is counted in letters, not bytes
const minWordLength = 3

// Русские слова, допускается дефис внутри слова
var russianWord = regexp.MustCompile(`[а-яё]+[а-яё-]*[а-яё]|[а-яё]`)

// ExtractWords returns unique lower-cased Russian words of at least three letters
// in the order of their first occurrence
func ExtractWords(text string) []string {
	matches := russianWord.FindAllString(strings.ToLower(text), -1)

	words := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, w := range matches {
		if utf8.RuneCountInString(w) < minWordLength {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}
	return words
}

// IsWordList reports whether the text is only Russian words separated by spaces,
// commas or semicolons. Questions, other alphabets and digits are not word lists.
func IsWordList(text string) bool {
	return wordListText.MatchString(text) && len(ExtractWords(text)) > 0
}
