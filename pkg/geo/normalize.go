package geo

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer folds a display name to a comparison key.
type Normalizer func(string) string

// stripAccents builds a fresh chain per call: transformers keep state and
// the query server normalizes from many goroutines.
func stripAccents() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// NormalizeLowercaseASCII case-folds, strips diacritics and collapses
// whitespace (e.g. "  SÃO  Paulo" -> "sao paulo"). Non-Latin scripts are
// kept as folded text.
func NormalizeLowercaseASCII(s string) string {
	folded := cases.Fold().String(s)
	result, _, err := transform.String(stripAccents(), folded)
	if err != nil {
		result = folded
	}
	return collapseSpaces(result)
}

// NormalizeLowercaseUTF8 case-folds but preserves accents.
func NormalizeLowercaseUTF8(s string) string {
	return collapseSpaces(cases.Fold().String(s))
}

// GetNormalizer returns the normalizer for the given mode.
// Default is lowercase_ascii.
func GetNormalizer(mode string) Normalizer {
	switch mode {
	case "lowercase_utf8":
		return NormalizeLowercaseUTF8
	default:
		return NormalizeLowercaseASCII
	}
}

// AliasKey is the case-insensitive uniqueness key of an alias text.
func AliasKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

var specialLetters = map[rune]string{
	'ß': "ss", 'ẞ': "SS",
	'æ': "ae", 'Æ': "AE",
	'œ': "oe", 'Œ': "OE",
	'ø': "o", 'Ø': "O",
	'ł': "l", 'Ł': "L",
	'đ': "d", 'Đ': "D",
	'ð': "d", 'Ð': "D",
	'þ': "th", 'Þ': "Th",
	'ı': "i",
	'‘': "'", '’': "'", 'ʻ': "'", 'ʼ': "'",
	'‐': "-", '–': "-", '—': "-",
}

// Transliterate returns an ASCII approximation of s: letters without a
// decomposition are mapped, diacritics removed and any remaining non-ASCII
// rune dropped. The result is empty when nothing ASCII survives.
func Transliterate(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if rep, ok := specialLetters[r]; ok {
			b.WriteString(rep)
			continue
		}
		b.WriteRune(r)
	}
	stripped, _, err := transform.String(stripAccents(), b.String())
	if err != nil {
		stripped = b.String()
	}

	b.Reset()
	for _, r := range stripped {
		if r < unicode.MaxASCII && (unicode.IsPrint(r) || unicode.IsSpace(r)) {
			b.WriteRune(r)
		}
	}
	return collapseSpaces(b.String())
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// DefaultGenericSuffixes are administrative qualifiers commonly dropped in
// colloquial names ("Los Angeles County" -> "Los Angeles").
var DefaultGenericSuffixes = []string{
	"Region", "District", "County", "Parish", "Province", "Prefecture",
	"Department", "Municipality", "Governorate", "Oblast", "Territory",
	"Borough", "Canton",
}

// SuffixStripper removes one trailing generic qualifier word.
type SuffixStripper struct {
	words map[string]struct{}
}

// NewSuffixStripper builds a stripper for the given words, matched
// case-insensitively as whole trailing words.
func NewSuffixStripper(words []string) *SuffixStripper {
	s := &SuffixStripper{words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		s.words[cases.Fold().String(w)] = struct{}{}
	}
	return s
}

// Strip returns name without its trailing qualifier. ok is false when the
// name has no qualifier or would become empty.
func (s *SuffixStripper) Strip(name string) (string, bool) {
	if s == nil || len(s.words) == 0 {
		return "", false
	}
	fields := strings.Fields(name)
	if len(fields) < 2 {
		return "", false
	}
	last := cases.Fold().String(fields[len(fields)-1])
	if _, ok := s.words[last]; !ok {
		return "", false
	}
	short := strings.TrimRight(strings.Join(fields[:len(fields)-1], " "), " ,-")
	if short == "" {
		return "", false
	}
	return short, true
}
