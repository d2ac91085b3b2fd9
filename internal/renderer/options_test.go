package renderer

import (
	"testing"
)

func TestParseStopCondition(t *testing.T) {
	tests := []struct {
		in   string
		want StopCondition
	}{
		{"time:3", StopCondition{Kind: StopFrames, Value: 180}},
		{"time:300", StopCondition{Kind: StopFrames, Value: 18000}},
		{"time:nsfe", StopCondition{Kind: StopNsfeDuration}},
		{"frames:123", StopCondition{Kind: StopFrames, Value: 123}},
		{"loops:2", StopCondition{Kind: StopLoops, Value: 2}},
	}
	for _, tt := range tests {
		got, err := ParseStopCondition(tt.in)
		if err != nil {
			t.Errorf("ParseStopCondition(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStopCondition(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParseStopConditionErrors(t *testing.T) {
	for _, in := range []string{
		"",
		"time",
		"time:3:4",
		"time:abc",
		"frames:nsfe",
		"loops:",
		"bars:4",
	} {
		if _, err := ParseStopCondition(in); err == nil {
			t.Errorf("ParseStopCondition(%q) succeeded", in)
		}
	}
}

func TestStopConditionString(t *testing.T) {
	tests := []struct {
		cond StopCondition
		want string
	}{
		{StopCondition{Kind: StopFrames, Value: 180}, "time:3"},
		{StopCondition{Kind: StopFrames, Value: 123}, "frames:123"},
		{StopCondition{Kind: StopLoops, Value: 2}, "loops:2"},
		{StopCondition{Kind: StopNsfeDuration}, "time:nsfe"},
	}
	for _, tt := range tests {
		if got := tt.cond.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
