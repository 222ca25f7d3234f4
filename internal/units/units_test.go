package units

import (
	"errors"
	"testing"

	"github.com/franz/media-librarian/internal/util"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"6MB", 6_000_000},
		{"6", 6_000_000},
		{"1.5GB", 1_500_000_000},
		{"1MiB", 1 << 20},
		{"500 KB", 500_000},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.input)
		if err != nil {
			t.Fatalf("ParseSize(%q) error: %v", tt.input, err)
		}
		if got != tt.expected {
			t.Errorf("ParseSize(%q) = %d, expected %d", tt.input, got, tt.expected)
		}
	}

	if _, err := ParseSize("lots"); !errors.Is(err, util.ErrBadPredicate) {
		t.Errorf("expected ErrBadPredicate, got %v", err)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		bare     string
		expected float64
	}{
		{"90s", "minutes", 90},
		{"30", "minutes", 1800},
		{"2 hours", "minutes", 7200},
		{"1.5d", "minutes", 129600},
		{"1h30m", "minutes", 5400},
		{"3", "days", 259200},
		{"2 weeks", "days", 1209600},
		{"1y", "days", 31536000},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.input, tt.bare)
		if err != nil {
			t.Fatalf("ParseDuration(%q) error: %v", tt.input, err)
		}
		if got != tt.expected {
			t.Errorf("ParseDuration(%q) = %v, expected %v", tt.input, got, tt.expected)
		}
	}

	for _, bad := range []string{"", "soon", "5 fortnights"} {
		if _, err := ParseDuration(bad, "minutes"); !errors.Is(err, util.ErrBadPredicate) {
			t.Errorf("ParseDuration(%q): expected ErrBadPredicate, got %v", bad, err)
		}
	}
}

func TestParseBitrate(t *testing.T) {
	tests := map[string]float64{
		"128":     128_000,
		"128k":    128_000,
		"128kbps": 128_000,
		"5Mbps":   5_000_000,
		"1.5m":    1_500_000,
	}
	for in, want := range tests {
		got, err := ParseBitrate(in)
		if err != nil {
			t.Fatalf("ParseBitrate(%q) error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseBitrate(%q) = %v, expected %v", in, got, want)
		}
	}
	if _, err := ParseBitrate("fast"); !errors.Is(err, util.ErrBadPredicate) {
		t.Errorf("expected ErrBadPredicate, got %v", err)
	}
}

func TestSeconds(t *testing.T) {
	if got := Seconds(3723); got != "1h2m3s" {
		t.Errorf("Seconds(3723) = %q", got)
	}
	if got := Seconds(0); got != "0s" {
		t.Errorf("Seconds(0) = %q", got)
	}
}
