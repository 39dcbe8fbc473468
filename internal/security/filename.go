// Package security holds helpers for embedding operator-supplied text in
// places where it could be interpreted, such as download file names.
package security

import (
	"fmt"
	"strings"
)

const maxFilenameLen = 128

// SanitizeFilename makes a safe filename from an arbitrary string. Runs of
// characters other than ASCII letters, digits, dot, underscore or dash become
// a single underscore and the result is capped at 128 bytes. An input with
// nothing usable yields "unknown".
func SanitizeFilename(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || !lastUnderscore:
			if !lastUnderscore {
				b.WriteRune('_')
			}
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}

// AttachmentDisposition returns a Content-Disposition value offering the
// response as a download named prefix-name.ext, with name sanitized.
func AttachmentDisposition(prefix, name, ext string) string {
	return fmt.Sprintf(`attachment; filename="%s-%s.%s"`, prefix, SanitizeFilename(strings.ToLower(name)), ext)
}
