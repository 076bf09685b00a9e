package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		input    string
		expected Ref
	}{
		{"values.yaml", Ref{Path: "values.yaml"}},
		{"shared:base/values.yaml", Ref{Repo: "shared", Path: "base/values.yaml"}},
		{"optional:values-dev.yaml", Ref{Optional: true, Path: "values-dev.yaml"}},
		{"optional:dekrypt:shared:secrets.yaml", Ref{Optional: true, Dekrypt: true, Repo: "shared", Path: "secrets.yaml"}},
		{"dekrypt:optional:secrets.yaml", Ref{Optional: true, Dekrypt: true, Path: "secrets.yaml"}},
		{":odd", Ref{Path: ":odd"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			ref := ParseRef(tt.input)
			assert.Equal(t, tt.expected, ref)
		})
	}
}

func TestRefString(t *testing.T) {
	for _, s := range []string{
		"values.yaml",
		"shared:a/b.yaml",
		"optional:dekrypt:shared:a.yaml",
	} {
		assert.Equal(t, s, ParseRef(s).String())
	}
}
