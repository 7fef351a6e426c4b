package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"", false, false},
		{"yes", false, true},
		{"ON", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("SKINPIPE_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("SKINPIPE_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", time.Minute},
		{"30m", 30 * time.Minute},
		{" 2s ", 2 * time.Second},
		{"soon", time.Minute},
		{"-5s", time.Minute},
	}
	for _, tt := range tests {
		t.Setenv("SKINPIPE_TEST_DURATION", tt.value)
		if got := ParseDurationEnv("SKINPIPE_TEST_DURATION", time.Minute); got != tt.want {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("SKINPIPE_TEST_INT", "7")
	if got := ParseIntEnv("SKINPIPE_TEST_INT", 1); got != 7 {
		t.Errorf("got %d, want 7", got)
	}
	t.Setenv("SKINPIPE_TEST_INT", "seven")
	if got := ParseIntEnv("SKINPIPE_TEST_INT", 1); got != 1 {
		t.Errorf("got %d, want default 1", got)
	}
}
