package safety

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var apostrophes = strings.NewReplacer("'", "", "’", "", "‘", "", "`", "")

// normalizeText lowercases, drops apostrophes, replaces invalid UTF-8 and
// collapses whitespace so phrases compare on a single canonical form.
func normalizeText(s string) string {
	s = strings.ToValidUTF8(s, " ")
	s = apostrophes.Replace(strings.ToLower(s))
	return strings.Join(strings.Fields(s), " ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// phraseOccurrences returns the byte offsets where phrase occurs in text
// with a non-word character (or the text edge) on both sides.
func phraseOccurrences(text, phrase string) []int {
	if phrase == "" {
		return nil
	}
	var out []int
	for start := 0; start <= len(text)-len(phrase); {
		i := strings.Index(text[start:], phrase)
		if i < 0 {
			break
		}
		pos := start + i
		end := pos + len(phrase)
		before, _ := utf8.DecodeLastRuneInString(text[:pos])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (pos == 0 || !isWordRune(before)) && (end == len(text) || !isWordRune(after)) {
			out = append(out, pos)
		}
		_, size := utf8.DecodeRuneInString(text[pos:])
		start = pos + size
	}
	return out
}

type span struct{ start, end int }

// excludedSpans returns the spans of every exclusion phrase that contains
// phrase; an occurrence of phrase inside one of these spans does not count.
func excludedSpans(text, phrase string, exclusions []string) []span {
	var out []span
	for _, ex := range exclusions {
		if !strings.Contains(ex, phrase) {
			continue
		}
		for _, pos := range phraseOccurrences(text, ex) {
			out = append(out, span{pos, pos + len(ex)})
		}
	}
	return out
}

// matchPhrase reports whether phrase occurs at least once in text outside
// any exclusion. text and phrase must already be normalized.
func matchPhrase(text, phrase string, exclusions []string) bool {
	occ := phraseOccurrences(text, phrase)
	if len(occ) == 0 {
		return false
	}
	spans := excludedSpans(text, phrase, exclusions)
	for _, pos := range occ {
		covered := false
		for _, s := range spans {
			if s.start <= pos && pos+len(phrase) <= s.end {
				covered = true
				break
			}
		}
		if !covered {
			return true
		}
	}
	return false
}

// matchTier returns the distinct tier phrases found in text, in tier order.
func matchTier(text string, tier PatternTier) []string {
	var out []string
	for _, p := range tier.phrases {
		if matchPhrase(text, p, tier.exclusions) {
			out = append(out, p)
		}
	}
	return out
}
