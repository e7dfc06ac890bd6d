package discovery

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const DefaultMaxGuesses = 10

var (
	corpSuffixRE = regexp.MustCompile(`\b(inc|inc\.|llc|ltd|ltd\.|corp|corporation|co|company|technologies|technology)\b`)
	nonSlugRE    = regexp.MustCompile(`[^a-z0-9]+`)
	dashRunRE    = regexp.MustCompile(`-+`)
	slugCharsRE  = regexp.MustCompile(`^[a-z0-9_-]+$`)
)

var guessStopwords = map[string]bool{"the": true, "and": true, "of": true, "for": true}

// GuessSlugs derives likely ATS board slugs from a company name, most
// likely first. At most max slugs are returned.
func GuessSlugs(company string, max int) []string {
	if max <= 0 {
		max = DefaultMaxGuesses
	}
	base := strings.ToLower(strings.Join(strings.Fields(fold(company)), " "))
	if base == "" {
		return nil
	}
	base = corpSuffixRE.ReplaceAllString(base, "")
	base = strings.Join(strings.Fields(base), " ")

	cleaned := strings.Trim(nonSlugRE.ReplaceAllString(base, "-"), "-")
	variants := []string{
		cleaned,
		nonSlugRE.ReplaceAllString(base, ""),
		strings.ReplaceAll(base, " ", ""),
		strings.ReplaceAll(base, " ", "-"),
		strings.ReplaceAll(base, " ", "_"),
		cleaned + "-careers",
		cleaned + "careers",
		cleaned + "-jobs",
		cleaned + "jobs",
	}

	var parts []string
	for _, p := range strings.Fields(base) {
		if !guessStopwords[p] {
			parts = append(parts, p)
		}
	}
	if len(parts) >= 2 {
		variants = append(variants, strings.Join(parts, ""), strings.Join(parts, "-"))
	}

	seen := map[string]bool{}
	var out []string
	for _, v := range variants {
		v = strings.ToLower(strings.TrimSpace(v))
		v = strings.Trim(dashRunRE.ReplaceAllString(v, "-"), "-")
		// names with punctuation produce variants no board could use
		if v == "" || seen[v] || !slugCharsRE.MatchString(v) {
			continue
		}
		seen[v] = true
		out = append(out, v)
		if len(out) >= max {
			break
		}
	}
	return out
}

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
