package media

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSafeNameLen = 100

// translitTable maps Cyrillic letters to Latin sequences so remote video
// titles stay readable after sanitization.
var translitTable = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "e",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "kh", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "shch",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
	'і': "i", 'ї': "yi", 'є': "ye", 'ґ': "g",
}

// SafeFilename transliterates or strips every rune of name that is not
// safe in a filename on common filesystems. Diacritics are folded to
// their base letters, Cyrillic is transliterated, whitespace becomes
// underscores, and anything else is dropped.
func SafeFilename(name string) string {
	// Transliterate before folding: NFD would split letters like й and ї
	// into a base plus a combining mark and the table would miss them.
	var tr strings.Builder
	for _, r := range name {
		lower := unicode.ToLower(r)
		if lat, ok := translitTable[lower]; ok {
			if unicode.IsUpper(r) && lat != "" {
				tr.WriteString(strings.ToUpper(lat[:1]) + lat[1:])
			} else {
				tr.WriteString(lat)
			}
			continue
		}
		tr.WriteRune(r)
	}

	folded, _, err := transform.String(transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	), tr.String())
	if err != nil {
		folded = tr.String()
	}

	var b strings.Builder
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		}
	}

	safe := strings.Trim(b.String(), "._-")
	if len(safe) > maxSafeNameLen {
		safe = safe[:maxSafeNameLen]
	}
	return safe
}
