package service

import (
	"path/filepath"
	"strings"
)

var DefaultAllowedExtensions = []string{"mp4", "mov", "avi", "mkv"}

// SanitizeFilename reduces a client supplied name to a safe base name made of
// ASCII letters, digits, '.', '-' and '_'. It returns "" when nothing usable is left.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}

	var b strings.Builder
	prevUnderscore := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			prevUnderscore = false
		default:
			if !prevUnderscore {
				b.WriteByte('_')
				prevUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "._")
}

func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// downloadName is what the client's browser saves the artifact as.
func downloadName(filename string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	if base == "" {
		base = "video"
	}
	return "compressed_" + base + ".mp4"
}
