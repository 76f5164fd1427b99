package session

import (
	"fmt"
	"strings"
)

// Recognized dispatch-metadata keys (§6). Unknown keys are preserved by
// Parse/Format but ignored by the typed accessors below.
const (
	KeySession           = "session"
	KeyQuestion          = "question"
	KeyReturnFromEnglish = "return_from_english"
	KeySubject           = "subject"
)

// Metadata is the dispatch-metadata carried on an agent-dispatch request,
// in the bit-exact wire format `k1:v1|k2:v2|...`. Keys and values must not
// contain ':' or '|'.
type Metadata map[string]string

// Get returns the value for key, or "" if absent (missing keys are treated
// as empty per §6).
func (m Metadata) Get(key string) string { return m[key] }

// FormatMetadata serializes m into the dispatch-metadata wire format.
// It returns an error if any key or value contains ':' or '|'.
func FormatMetadata(m Metadata) (string, error) {
	parts := make([]string, 0, len(m))
	for k, v := range m {
		if strings.ContainsAny(k, ":|") || strings.ContainsAny(v, ":|") {
			return "", fmt.Errorf("session: metadata key %q or value %q contains a reserved delimiter", k, v)
		}
		parts = append(parts, k+":"+v)
	}
	return strings.Join(parts, "|"), nil
}

// ParseMetadata parses the dispatch-metadata wire format. The parser is
// tolerant: entries without a ':' are skipped, and an empty input yields an
// empty, non-nil Metadata.
func ParseMetadata(s string) Metadata {
	m := make(Metadata)
	if s == "" {
		return m
	}
	for _, part := range strings.Split(s, "|") {
		if part == "" {
			continue
		}
		idx := strings.Index(part, ":")
		if idx < 0 {
			continue
		}
		m[part[:idx]] = part[idx+1:]
	}
	return m
}
