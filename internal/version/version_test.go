package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1.2.3", "v1.2.3"},
		{"v1.2", "v1.2.0"},
		{" 2 ", "v2.0.0"},
		{"dev", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, Canonical(tt.input), tt.input)
	}
}

func TestSatisfies(t *testing.T) {
	tests := []struct {
		name     string
		current  string
		required string
		expected bool
		wantErr  bool
	}{
		{name: "equal", current: "v1.2.0", required: "1.2.0", expected: true},
		{name: "newer", current: "v1.3.0", required: "1.2", expected: true},
		{name: "older", current: "v1.1.9", required: "1.2.0", expected: false},
		{name: "dev build", current: "dev", required: "9.0.0", expected: true},
		{name: "bad requirement", current: "v1.0.0", required: "latest", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := satisfies(tt.current, tt.required)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
		})
	}
}

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
}
