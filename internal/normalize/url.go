package normalize

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/franz/media-librarian/internal/util"
)

// frequencyBuckets maps the update frequency knob to reddit's top-of window
var frequencyBuckets = map[string]string{
	"daily":     "day",
	"weekly":    "week",
	"monthly":   "month",
	"quarterly": "year",
	"yearly":    "year",
}

var subredditPattern = regexp.MustCompile(`^/r/([^/]+)`)

// RedditBucket returns the t= window for a frequency, "monthly" when empty
func RedditBucket(frequency string) (string, error) {
	if frequency == "" {
		frequency = "monthly"
	}
	bucket, ok := frequencyBuckets[strings.ToLower(frequency)]
	if !ok {
		return "", fmt.Errorf("unknown frequency %q: %w", frequency, util.ErrBadPredicate)
	}
	return bucket, nil
}

// SanitizeURL rewrites known hosts to their canonical forms. Subreddit
// links become the old.reddit top listing for the frequency window and
// mobile hosts are rewritten to www. Non-URLs are returned unchanged.
func SanitizeURL(raw, frequency string) (string, error) {
	bucket, err := RedditBucket(frequency)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return raw, nil
	}

	host := strings.ToLower(u.Hostname())
	if strings.HasPrefix(host, "m.") {
		host = "www." + strings.TrimPrefix(host, "m.")
		u.Host = host
		if port := u.Port(); port != "" {
			u.Host = host + ":" + port
		}
	}

	if host == "reddit.com" || strings.HasSuffix(host, ".reddit.com") {
		if m := subredditPattern.FindStringSubmatch(u.Path); m != nil {
			return fmt.Sprintf("https://old.reddit.com/r/%s/top/?sort=top&t=%s", m[1], bucket), nil
		}
	}

	return u.String(), nil
}
