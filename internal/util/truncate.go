package util

import (
	"fmt"
	"unicode/utf8"
)

// DefaultLogMaxLen is the default maximum length for truncated log output (1KB).
const DefaultLogMaxLen = 1024

// SignatureMaxLen bounds request signatures and extracted replies in dispatch logs.
const SignatureMaxLen = 256

// TruncateLog truncates long strings for log records. The cut never splits a
// UTF-8 sequence.
func TruncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// TruncateBytes is a convenience wrapper for TruncateLog that accepts []byte
// and uses DefaultLogMaxLen.
func TruncateBytes(b []byte) string {
	return TruncateLog(string(b), DefaultLogMaxLen)
}

// MaskSecret keeps only the last four characters of a credential.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
