package util

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestVerbosityGatesOutput(t *testing.T) {
	var buf bytes.Buffer
	SetColors(false)
	SetOutput(&buf)
	defer func() {
		SetOutput(nil)
		SetVerbosity(0)
	}()

	tests := []struct {
		count     int
		wantDebug bool
		wantTrace bool
	}{
		{0, false, false},
		{1, true, false},
		{3, true, true},
	}
	for _, tt := range tests {
		buf.Reset()
		SetVerbosity(tt.count)
		DebugLog("debug line %d", tt.count)
		TraceSQL("SELECT 1", nil, time.Millisecond)

		out := buf.String()
		if got := strings.Contains(out, "debug line"); got != tt.wantDebug {
			t.Errorf("-v x%d: debug shown = %v, want %v", tt.count, got, tt.wantDebug)
		}
		if got := strings.Contains(out, "SELECT 1"); got != tt.wantTrace {
			t.Errorf("-v x%d: trace shown = %v, want %v", tt.count, got, tt.wantTrace)
		}
	}
}

func TestQuietKeepsErrors(t *testing.T) {
	var buf bytes.Buffer
	SetColors(false)
	SetOutput(&buf)
	defer func() {
		SetOutput(nil)
		SetVerbosity(0)
	}()

	SetQuiet(true)
	if !IsQuiet() {
		t.Fatal("IsQuiet() = false after SetQuiet(true)")
	}
	InfoLog("hidden")
	ErrorLog("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info logged in quiet mode: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("error missing in quiet mode: %q", out)
	}
}
