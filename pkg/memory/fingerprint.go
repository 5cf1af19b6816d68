package memory

import "strings"

// Fingerprint normalizes a final answer for duplicate detection:
// lowercased, with whitespace runs collapsed to single spaces. Two
// entries are duplicates when their fingerprints are equal.
func Fingerprint(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}
