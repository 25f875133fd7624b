package links

import (
	"crypto/rand"
	"strings"
)

// DefaultKeyAlphabet is the base62 alphabet keys are drawn from.
const DefaultKeyAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// DefaultKeyLength is used when no length is configured.
const DefaultKeyLength = 6

// RandomKeyGenerator draws fixed-length keys from an alphabet. Collisions
// are handled by the insert-retry loop in the Service, not by entropy size.
type RandomKeyGenerator struct {
	alphabet string
}

func NewRandomKeyGenerator(alphabet string) *RandomKeyGenerator {
	if alphabet == "" {
		alphabet = DefaultKeyAlphabet
	}
	return &RandomKeyGenerator{alphabet: alphabet}
}

func (g *RandomKeyGenerator) Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultKeyLength
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	out := make([]byte, length)
	for i := range buf {
		out[i] = g.alphabet[int(buf[i])%len(g.alphabet)]
	}

	return string(out), nil
}

// NormalizeKey canonicalizes a user-supplied custom key. Only [A-Za-z0-9-]
// is accepted; leading/trailing dashes are stripped and dash runs collapse
// to a single dash.
//
// ErrKeyEmpty means no usable key was supplied (caller falls back to key
// generation); ErrKeyInvalid means the input held disallowed characters and
// is a hard validation failure.
func NormalizeKey(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrKeyEmpty
	}

	for _, c := range raw {
		if !isKeyChar(c) {
			return "", ErrKeyInvalid
		}
	}

	var b strings.Builder
	b.Grow(len(raw))
	prevDash := false
	for _, c := range raw {
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

	key := strings.Trim(b.String(), "-")
	if key == "" {
		return "", ErrKeyEmpty
	}
	return key, nil
}

func isKeyChar(c rune) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '-':
		return true
	default:
		return false
	}
}
