package utils

import (
	"strings"
	"unicode/utf8"
)

// CleanField drops NUL bytes and invalid UTF-8 sequences from value. A value
// left blank after cleaning is replaced by fallback.
func CleanField(value, fallback string) string {
	if strings.ContainsRune(value, 0) || !utf8.ValidString(value) {
		value = strings.ReplaceAll(strings.ToValidUTF8(value, ""), "\x00", "")
	}
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
