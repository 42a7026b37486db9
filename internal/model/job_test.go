package model

import "testing"

func TestJobTypeIsHA(t *testing.T) {
	tests := []struct {
		jt   JobType
		want bool
	}{
		{JobTypeStandalone, false},
		{JobTypeHAPair, true},
		{JobTypeDownloadOnly, false},
		{JobTypeDownloadOnlyHA, true},
	}
	for _, tt := range tests {
		if got := tt.jt.IsHA(); got != tt.want {
			t.Errorf("%s.IsHA() = %v, want %v", tt.jt, got, tt.want)
		}
	}
}

func TestJobTypeIsDownloadOnly(t *testing.T) {
	tests := []struct {
		jt   JobType
		want bool
	}{
		{JobTypeStandalone, false},
		{JobTypeHAPair, false},
		{JobTypeDownloadOnly, true},
		{JobTypeDownloadOnlyHA, true},
	}
	for _, tt := range tests {
		if got := tt.jt.IsDownloadOnly(); got != tt.want {
			t.Errorf("%s.IsDownloadOnly() = %v, want %v", tt.jt, got, tt.want)
		}
	}
}

func TestJobTypeFamily(t *testing.T) {
	tests := []struct {
		jt   JobType
		want string
	}{
		{JobTypeStandalone, "full-upgrade"},
		{JobTypeHAPair, "full-upgrade"},
		{JobTypeDownloadOnly, "download-only"},
		{JobTypeDownloadOnlyHA, "download-only"},
	}
	for _, tt := range tests {
		if got := tt.jt.Family(); got != tt.want {
			t.Errorf("%s.Family() = %q, want %q", tt.jt, got, tt.want)
		}
	}
}

func TestJobTypeExpectedDevices(t *testing.T) {
	tests := []struct {
		jt   JobType
		want int
	}{
		{JobTypeStandalone, 1},
		{JobTypeHAPair, 2},
		{JobTypeDownloadOnly, 1},
		{JobTypeDownloadOnlyHA, 2},
	}
	for _, tt := range tests {
		if got := tt.jt.ExpectedDevices(); got != tt.want {
			t.Errorf("%s.ExpectedDevices() = %d, want %d", tt.jt, got, tt.want)
		}
	}
}
