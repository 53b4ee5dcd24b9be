package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty", input: "", expected: nil},
		{name: "only separators", input: " , ,\t", expected: nil},
		{name: "single", input: "localhost:9092", expected: []string{"localhost:9092"}},
		{name: "commas", input: "a:1,b:2", expected: []string{"a:1", "b:2"}},
		{name: "mixed separators", input: " a:1 ,\nb:2\tc:3 ", expected: []string{"a:1", "b:2", "c:3"}},
		{name: "duplicates keep first position", input: "b,a,b,a", expected: []string{"b", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitList(tt.input))
		})
	}
}
