package links

import "strings"

// NormalizeTagText canonicalizes free-text tag input into a slug.
//
// Input containing anything outside [A-Za-z0-9 -] is rejected outright
// (ok=false), not stripped. Accepted input is lowercased, whitespace runs
// become single dashes, dash runs collapse, and leading/trailing dashes are
// trimmed. An input that normalizes to nothing also returns ok=false.
func NormalizeTagText(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}

	for _, c := range raw {
		if !isTagChar(c) {
			return "", false
		}
	}

	text := strings.ToLower(strings.TrimSpace(raw))
	text = strings.Join(strings.Fields(text), " ")
	text = strings.ReplaceAll(text, " ", "-")

	var b strings.Builder
	b.Grow(len(text))
	prevDash := false
	for _, c := range text {
		if c == '-' {
			if prevDash {
				continue
			}
			prevDash = true
			b.WriteRune(c)
			continue
		}
		prevDash = false
		b.WriteRune(c)
	}

	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "", false
	}
	return slug, true
}

// NormalizeTagList normalizes each entry, dropping rejected or duplicate
// tags. Invalid entries are filtered silently; only the resulting count is
// validated by the caller.
func NormalizeTagList(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		slug, ok := NormalizeTagText(r)
		if !ok {
			continue
		}
		if _, dup := seen[slug]; dup {
			continue
		}
		seen[slug] = struct{}{}
		out = append(out, slug)
	}
	return out
}

// ParseTagCSV splits a comma-separated tag field into raw entries.
func ParseTagCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isTagChar(c rune) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == ' ' || c == '-':
		return true
	default:
		return false
	}
}
