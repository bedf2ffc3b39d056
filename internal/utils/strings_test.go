package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single value",
			input:    "https://research.example.com",
			expected: []string{"https://research.example.com"},
		},
		{
			name:     "two values",
			input:    "http://localhost:5173, https://research.example.com",
			expected: []string{"http://localhost:5173", "https://research.example.com"},
		},
		{
			name:     "varied spacing",
			input:    "XAUUSD,  SPX , WTI",
			expected: []string{"XAUUSD", "SPX", "WTI"},
		},
		{
			name:     "empty entries are dropped",
			input:    "a,,b, ,c",
			expected: []string{"a", "b", "c"},
		},
		{
			name:     "only separators",
			input:    " , , ",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseCSV(tt.input))
		})
	}
}
