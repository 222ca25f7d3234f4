// Package extractor wraps the external programs that know about media:
// ffprobe for local files, yt-dlp and gallery-dl for online sources.
package extractor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/franz/media-librarian/internal/util"
)

// Class tells the refresh driver what to do with a failure
type Class int

const (
	// Recoverable failures are retried on a later refresh
	Recoverable Class = iota
	// Unrecoverable failures soft-delete the source for good
	Unrecoverable
	// Prefix failures abort the whole run
	Prefix
)

func (c Class) String() string {
	switch c {
	case Recoverable:
		return "recoverable"
	case Unrecoverable:
		return "unrecoverable"
	case Prefix:
		return "prefix"
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// Error is a classified extractor failure
type Error struct {
	Class   Class
	Program string
	URL     string
	Stderr  string
	Err     error
}

func (e *Error) Error() string {
	msg := lastLine(e.Stderr)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s %s (%s): %s", e.Program, e.URL, e.Class, msg)
}

// Unwrap exposes the sentinel matching the class
func (e *Error) Unwrap() []error {
	var sentinel error
	switch e.Class {
	case Recoverable:
		sentinel = util.ErrRecoverable
	case Unrecoverable:
		sentinel = util.ErrUnrecoverable
	default:
		sentinel = util.ErrAbortRun
	}
	if e.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Err}
}

var (
	prefixPatterns = []string{
		"No space left on device",
		"Read-only file system",
		"Permission denied",
		"executable file not found",
	}
	unrecoverablePatterns = []string{
		"HTTP Error 404",
		"HTTP Error 410",
		"Video unavailable",
		"Private video",
		"This video has been removed",
		"This video is not available",
		"account has been terminated",
		"members-only",
		"Unsupported URL",
		"does not exist",
		"copyright claim",
	}
	recoverablePatterns = []string{
		"timed out",
		"Temporary failure in name resolution",
		"Connection reset",
		"Connection refused",
		"rate-limit",
		"Too Many Requests",
		"Sign in to confirm",
		"Unable to download webpage",
		"Remote end closed connection",
		"fragment",
	}
	httpError = regexp.MustCompile(`HTTP Error (\d{3})`)
)

// Classify sorts stderr output of a failed run into a Class. Output that
// matches nothing known is unrecoverable.
func Classify(stderr string) Class {
	for _, p := range prefixPatterns {
		if strings.Contains(stderr, p) {
			return Prefix
		}
	}
	for _, p := range unrecoverablePatterns {
		if strings.Contains(stderr, p) {
			return Unrecoverable
		}
	}
	if m := httpError.FindStringSubmatch(stderr); m != nil && (m[1][0] == '4' || m[1][0] == '5') {
		return Recoverable
	}
	for _, p := range recoverablePatterns {
		if strings.Contains(stderr, p) {
			return Recoverable
		}
	}
	return Unrecoverable
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
