package repositorycache

import (
	"strings"
	"unicode"
)

// typeWords splits a Go type name into lowercase words. PlanItem gives
// [plan item], HTTPServer gives [http server] and OAuth2Token gives
// [o auth 2 token]. Runes that are neither letters nor digits only end the
// current word.
func typeWords(name string) []string {
	runes := []rune(name)
	var words []string
	start := -1

	flush := func(end int) {
		if start >= 0 {
			words = append(words, strings.ToLower(string(runes[start:end])))
			start = -1
		}
	}

	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush(i)
			continue
		}
		if start >= 0 && startsWord(runes, i) {
			flush(i)
		}
		if start < 0 {
			start = i
		}
	}
	flush(len(runes))

	return words
}

// startsWord reports whether runes[i] opens a new word, given that
// runes[i-1] belongs to the current one.
func startsWord(runes []rune, i int) bool {
	prev, cur := runes[i-1], runes[i]
	switch {
	case unicode.IsDigit(prev) != unicode.IsDigit(cur):
		return true
	case unicode.IsUpper(cur) && unicode.IsLower(prev):
		return true
	case unicode.IsUpper(cur) && unicode.IsUpper(prev):
		// last capital of an acronym that runs into a word: the S in HTTPServer
		return i+1 < len(runes) && unicode.IsLower(runes[i+1])
	}
	return false
}
