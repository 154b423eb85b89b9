package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// RandomString returns length random bytes encoded as lowercase hex, so the
// result is 2*length characters long. Used for throwaway author and path IDs.
func RandomString(length int) string {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

// CountLines counts occurrences of r in s.
func CountLines(s string, r rune) int {
	return strings.Count(s, string(r))
}
