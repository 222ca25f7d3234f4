package normalize

import (
	"sort"
	"strconv"
	"strings"
	"unicode"
)

var stopwords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`
		a about above after again against all am an and any are as at be because been
		before being below between both but by can could did do does doing down during
		each few for from further had has have having he her here hers herself him himself
		his how i if in into is it its itself just me more most my myself no nor not now of
		off on once only or other our ours ourselves out over own same she should so some
		such than that the their theirs them themselves then there these they this those
		through to too under until up very was we were what when where which while who whom
		why will with would you your yours yourself yourselves
		via per vs amp http https www com org net html mp4 mkv webm mp3 m4a opus jpg jpeg png
		part video audio episode ep season official`) {
		stopwords[w] = true
	}
}

// IsStopword reports whether w is dropped by ExtractWords
func IsStopword(w string) bool {
	return stopwords[strings.ToLower(w)]
}

// ExtractWords tokenizes s into lowercase words, dropping stopwords,
// integers and single characters
func ExtractWords(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 || stopwords[f] {
			continue
		}
		if _, err := strconv.Atoi(f); err == nil {
			continue
		}
		words = append(words, f)
	}
	return words
}

// LongestWords returns up to n distinct words of s, longest first, ties
// broken alphabetically
func LongestWords(s string, n int) []string {
	seen := make(map[string]bool)
	var uniq []string
	for _, w := range ExtractWords(s) {
		if !seen[w] {
			seen[w] = true
			uniq = append(uniq, w)
		}
	}
	sort.SliceStable(uniq, func(i, j int) bool {
		li, lj := len([]rune(uniq[i])), len([]rune(uniq[j]))
		if li != lj {
			return li > lj
		}
		return uniq[i] < uniq[j]
	})
	if n > 0 && len(uniq) > n {
		uniq = uniq[:n]
	}
	return uniq
}
