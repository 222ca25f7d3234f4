package normalize

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxNameLen is the usual filesystem limit for one path component
const DefaultMaxNameLen = 255

const truncMarker = "…"

var (
	drivePattern     = regexp.MustCompile(`^[A-Za-z]:[\\/]`)
	whitespaceRun    = regexp.MustCompile(`\s+`)
	punctuationRuns  = regexp.MustCompile(`([_\-.,~])[_\-.,~]*`)
	sentenceBreakers = strings.NewReplacer(
		"/", " ", "\\", " ", ".", " ", "_", " ", "-", " ",
		"[", " ", "]", " ", "(", " ", ")", " ", "{", " ", "}", " ",
	)
)

// CleanPath repairs a path for use on disk: invalid UTF-8 is replaced,
// control characters are dropped, whitespace and repeated punctuation are
// collapsed, and over-long components are truncated from the middle. The
// extension and a Windows drive letter survive. CleanPath is idempotent.
func CleanPath(p string, maxNameLen int) string {
	if maxNameLen <= 0 {
		maxNameLen = DefaultMaxNameLen
	}
	p = norm.NFC.String(strings.ToValidUTF8(p, "�"))

	prefix := ""
	sep := "/"
	if loc := drivePattern.FindStringIndex(p); loc != nil {
		prefix = p[:2]
		if p[2] == '\\' {
			sep = "\\"
		}
		p = p[2:]
	}

	parts := strings.Split(p, sep)
	out := make([]string, 0, len(parts))
	for i, part := range parts {
		if i == 0 && part == "" {
			out = append(out, "")
			continue
		}
		part = cleanComponent(part)
		if part == "" {
			continue
		}
		isName := i == len(parts)-1
		out = append(out, truncateComponent(part, maxNameLen, isName))
	}

	cleaned := strings.Join(out, sep)
	if len(out) == 1 && out[0] == "" {
		cleaned = sep
	}
	return prefix + cleaned
}

func cleanComponent(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = punctuationRuns.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}

// truncateComponent keeps the component within limit bytes, splitting off
// the extension of file names first
func truncateComponent(s string, maxNameLen int, isName bool) string {
	ext := ""
	if isName {
		ext = filepath.Ext(s)
		if len(ext) > 12 || strings.ContainsAny(ext, " ") || ext == s {
			ext = ""
		}
	}
	stem := strings.TrimSuffix(s, ext)

	limit := maxNameLen - len(ext) - len(truncMarker)
	if limit <= len(truncMarker) || len(stem) <= limit {
		return s
	}

	keep := limit - len(truncMarker)
	head := cutRunes(stem, keep/2, false)
	tail := cutRunes(stem, keep-len(head), true)
	return head + truncMarker + tail + ext
}

// cutRunes returns at most n bytes from the start (or end) of s without
// splitting a rune
func cutRunes(s string, n int, fromEnd bool) string {
	if n <= 0 {
		return ""
	}
	if !fromEnd {
		i := n
		for i > 0 && !utf8.RuneStart(s[i]) {
			i--
		}
		return s[:i]
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}

// PathToSentence turns a path into space separated words for FTS and clustering
func PathToSentence(p string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(sentenceBreakers.Replace(p), " "))
}

// Separator groups eroded by the ordinal walk. The episode markers only
// count at the start of a word, so deep1 and box1 stay whole.
var trailingGroups = regexp.MustCompile(`(?i)([^\p{L}\p{N}_]+|\bep\d+|\bx\d+|\.\d+)`)

// LastChars returns the smallest trailing group of candidate: the final
// word, or the separator run the string ends with.
func LastChars(candidate string) string {
	locs := trailingGroups.FindAllStringIndex(candidate, -1)
	if len(locs) == 0 {
		return candidate
	}
	last := locs[len(locs)-1]
	if last[1] < len(candidate) {
		return candidate[last[1]:]
	}
	return candidate[last[0]:]
}

// CommonPrefix returns the longest shared prefix of all strings, rune aligned
func CommonPrefix(items []string) string {
	if len(items) == 0 {
		return ""
	}
	prefix := items[0]
	for _, s := range items[1:] {
		n := 0
		for n < len(prefix) && n < len(s) && prefix[n] == s[n] {
			n++
		}
		prefix = prefix[:n]
		if prefix == "" {
			break
		}
	}
	for len(prefix) > 0 && !utf8.ValidString(prefix) {
		prefix = prefix[:len(prefix)-1]
	}
	return prefix
}
