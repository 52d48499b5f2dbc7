package stitch

import "strings"

const (
	maxTitleLen  = 80
	defaultTitle = "film"
)

// SanitizeTitle reduces a title to ASCII letters, digits, '.', '_' and '-'.
// Other runs of characters collapse to a single underscore. The result is
// capped and never empty.
func SanitizeTitle(title string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range title {
		if isFilenameRune(r) {
			b.WriteRune(r)
			lastUnderscore = r == '_'
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	cleaned := strings.Trim(b.String(), "._-")
	if len(cleaned) > maxTitleLen {
		cleaned = strings.TrimRight(cleaned[:maxTitleLen], "._-")
	}
	if cleaned == "" {
		return defaultTitle
	}
	return cleaned
}

// OutputFilename is the download name for a stitched film.
func OutputFilename(title string) string {
	return SanitizeTitle(title) + "_stitched.mp4"
}

func isFilenameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '_', r == '-':
		return true
	}
	return false
}
