// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
	"unicode"
)

// SplitList splits s on commas and whitespace and drops empty and repeated
// entries. Order is preserved.
//
// Example:
//
//	SplitList("kafka-1:9092, kafka-2:9092 kafka-1:9092")
//	// Returns: []string{"kafka-1:9092", "kafka-2:9092"}
func SplitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if len(fields) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(fields))
	result := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		result = append(result, f)
	}
	return result
}
