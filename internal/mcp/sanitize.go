package mcp

import "strings"

// maxMessageSize is the default ceiling on a raw request payload's length.
const maxMessageSize = 1024 * 1024 // 1 MiB

// SanitizeString strips control characters (keeping newline/tab) and the
// most common script-injection markers from a string, truncating it to
// maxLength runes.
func SanitizeString(input string, maxLength int) string {
	var b strings.Builder
	count := 0
	for _, r := range input {
		if count >= maxLength {
			break
		}
		if r == '\n' || r == '\t' || (r >= ' ' && r != 0x7f) {
			b.WriteRune(r)
			count++
		}
	}
	cleaned := b.String()
	cleaned = strings.ReplaceAll(cleaned, "<script", "&lt;script")
	cleaned = strings.ReplaceAll(cleaned, "</script", "&lt;/script")
	cleaned = strings.ReplaceAll(cleaned, "javascript:", "")
	cleaned = strings.ReplaceAll(cleaned, "data:text/html", "")
	return cleaned
}

// ValidTaskName reports whether name is safe to use as a task identifier:
// alphanumeric, dash or underscore only, non-empty, at most 100 runes.
func ValidTaskName(name string) bool {
	if name == "" || len(name) > 100 {
		return false
	}
	for _, r := range name {
		if !isAlphanumeric(r) && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// ValidResourceURI rejects the dangerous schemes and path-traversal
// sequences a resources/read URI must never carry.
func ValidResourceURI(uri string) bool {
	if strings.HasPrefix(uri, "javascript:") ||
		strings.HasPrefix(uri, "data:text/html") ||
		strings.HasPrefix(uri, "file://") {
		return false
	}
	return !strings.Contains(uri, "../") && !strings.Contains(uri, "..\\")
}
