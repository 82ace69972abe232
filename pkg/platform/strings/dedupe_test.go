package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{"nil slice", nil, nil},
		{"empty slice", []string{}, []string{}},
		{"keeps first occurrence order", []string{"v2", "v1", "v2"}, []string{"v2", "v1"}},
		{"trims before comparing", []string{" v1", "v1 ", "v2"}, []string{"v1", "v2"}},
		{"drops blanks", []string{"", "  ", "v1"}, []string{"v1"}},
		{"only blanks", []string{" ", ""}, []string{}},
		{"case sensitive", []string{"V1", "v1"}, []string{"V1", "v1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestDedupeAndTrimDoesNotMutateInput(t *testing.T) {
	input := []string{" v1 ", "v1"}
	DedupeAndTrim(input)
	assert.Equal(t, []string{" v1 ", "v1"}, input)
}
