// Package units parses the human quantities accepted on the command line.
package units

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/franz/media-librarian/internal/util"
)

var bareNumber = regexp.MustCompile(`^[0-9]*\.?[0-9]+$`)

// ParseSize parses "6MB", "1.5GiB" or "700" (bare numbers are megabytes)
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size: %w", util.ErrBadPredicate)
	}
	if bareNumber.MatchString(s) {
		s += "MB"
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, util.ErrBadPredicate)
	}
	return int64(n), nil
}

var durationUnits = map[string]float64{
	"s": 1, "sec": 1, "secs": 1, "second": 1, "seconds": 1,
	"m": 60, "min": 60, "mins": 60, "minute": 60, "minutes": 60,
	"h": 3600, "hr": 3600, "hrs": 3600, "hour": 3600, "hours": 3600,
	"d": 86400, "day": 86400, "days": 86400,
	"w": 604800, "week": 604800, "weeks": 604800,
	"mo": 2592000, "month": 2592000, "months": 2592000,
	"y": 31536000, "yr": 31536000, "year": 31536000, "years": 31536000,
}

var durationTerm = regexp.MustCompile(`^([0-9]*\.?[0-9]+)\s*([a-zA-Z]*)$`)

// ParseDuration returns seconds for "90s", "2 hours", "1.5d", "1h30m" or a
// bare number, which is read in bareUnit ("minutes" for media length,
// "days" for time windows).
func ParseDuration(s, bareUnit string) (float64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty duration: %w", util.ErrBadPredicate)
	}

	if m := durationTerm.FindStringSubmatch(s); m != nil {
		value, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, util.ErrBadPredicate)
		}
		unit := m[2]
		if unit == "" {
			unit = bareUnit
		}
		mult, ok := durationUnits[unit]
		if !ok {
			return 0, fmt.Errorf("unknown duration unit %q: %w", unit, util.ErrBadPredicate)
		}
		return value * mult, nil
	}

	if d, err := time.ParseDuration(strings.ReplaceAll(s, " ", "")); err == nil {
		return d.Seconds(), nil
	}
	return 0, fmt.Errorf("invalid duration %q: %w", s, util.ErrBadPredicate)
}

var bitrateTerm = regexp.MustCompile(`^([0-9]*\.?[0-9]+)\s*([kmg]?)(?:b|bit|bits|bps|bit/s)?$`)

// ParseBitrate returns bits per second for "128k", "5Mbps" or a bare
// number of kilobits
func ParseBitrate(s string) (float64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	m := bitrateTerm.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid bitrate %q: %w", s, util.ErrBadPredicate)
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid bitrate %q: %w", s, util.ErrBadPredicate)
	}
	switch m[2] {
	case "", "k":
		return value * 1e3, nil
	case "m":
		return value * 1e6, nil
	default:
		return value * 1e9, nil
	}
}

// Format helpers for reports

// Bytes renders a size the way humans read it
func Bytes(n int64) string {
	if n < 0 {
		return "-"
	}
	return humanize.Bytes(uint64(n))
}

// Seconds renders a duration as "1h2m3s" without fractional noise
func Seconds(secs float64) string {
	if secs <= 0 {
		return "0s"
	}
	return (time.Duration(secs) * time.Second).Round(time.Second).String()
}

// Ago renders a unix timestamp relative to now, "" when unset
func Ago(unix int64) string {
	if unix <= 0 {
		return ""
	}
	return humanize.Time(time.Unix(unix, 0))
}
