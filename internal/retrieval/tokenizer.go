package retrieval

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "in": {},
	"is": {}, "it": {}, "its": {}, "of": {}, "on": {}, "or": {},
	"that": {}, "the": {}, "to": {}, "was": {}, "were": {}, "will": {},
	"with": {}, "this": {}, "but": {}, "have": {}, "if": {}, "do": {},
	"does": {}, "not": {}, "no": {}, "so": {}, "can": {},
	"и": {}, "в": {}, "во": {}, "не": {}, "на": {}, "с": {}, "со": {},
	"что": {}, "как": {}, "по": {}, "из": {}, "за": {}, "от": {},
	"для": {}, "до": {}, "при": {}, "это": {}, "или": {}, "но": {},
	"ли": {}, "же": {}, "бы": {}, "то": {}, "об": {},
}

// tokenize lower-cases text, splits on non-alphanumeric runes, drops stop
// words and single-rune tokens, and stems ASCII and Cyrillic words.
func tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) < 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		switch {
		case isASCII(w):
			w = stem(w)
		case isCyrillic(w):
			w = stemCyrillic(w)
		}
		tokens = append(tokens, w)
	}
	return tokens
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

var suffixRules = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"ed", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

// stem applies suffix stripping to an ASCII word.
func stem(word string) string {
	for _, rule := range suffixRules {
		if strings.HasSuffix(word, rule.suffix) {
			stemmed := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(stemmed) >= rule.minLen {
				return stemmed
			}
		}
	}
	return word
}

func isCyrillic(s string) bool {
	for _, r := range s {
		if !unicode.Is(unicode.Cyrillic, r) {
			return false
		}
	}
	return true
}

// cyrillicEndings are inflectional endings, longest first.
var cyrillicEndings = []string{
	"иями", "ями", "ами", "ией", "ием", "иях", "иям",
	"ого", "его", "ому", "ему", "ыми", "ими",
	"ых", "их", "ый", "ий", "ой", "ая", "яя", "ое", "ее", "ые", "ие",
	"ом", "ем", "ах", "ях", "ов", "ев", "ей", "ию", "ия", "ью",
	"а", "я", "о", "е", "ы", "и", "у", "ю", "ь", "й",
}

const minCyrillicStem = 3

// stemCyrillic strips the longest matching ending that leaves at least
// minCyrillicStem runes.
func stemCyrillic(word string) string {
	n := utf8.RuneCountInString(word)
	for _, end := range cyrillicEndings {
		if strings.HasSuffix(word, end) && n-utf8.RuneCountInString(end) >= minCyrillicStem {
			return strings.TrimSuffix(word, end)
		}
	}
	return word
}
