// Package content handles the card content format used by the remote
// service: front and back text in a single field, separated by a "---"
// delimiter line, plus the transit-encoded timestamps that appear in
// snapshot data.
package content

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Cards in the wild separate front and back with "\n---\n", "\n\n---\n\n"
// or "\n--- \n". The first delimiter wins; later ones belong to the back.
var delimiter = regexp.MustCompile(`\n+---[ ]?\n+`)

// Split divides card content into front and back text. Content without a
// delimiter is all front, with an empty back.
func Split(content string) (front, back string) {
	parts := delimiter.Split(content, 2)
	if len(parts) == 2 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(content), ""
}

// Join composes card content from front and back text using the canonical
// delimiter.
func Join(front, back string) string {
	front = strings.TrimSpace(front)
	back = strings.TrimSpace(back)
	if back == "" {
		return front
	}
	return front + "\n---\n" + back
}

// Reviewable reports whether content is worth presenting in a session.
// Cards with an empty front or the service's placeholder name are not.
func Reviewable(content string) bool {
	front, _ := Split(content)
	return front != "" && front != "Untitled card"
}

// ParseTransitTime decodes a transit-encoded timestamp such as
// "~t1697241600000" (milliseconds since epoch). It returns the zero time
// and false for any other shape.
func ParseTransitTime(s string) (time.Time, bool) {
	if !strings.HasPrefix(s, "~t") {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(s[2:], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

// ParseTime decodes a timestamp that may be transit-encoded or RFC 3339.
func ParseTime(s string) (time.Time, bool) {
	if t, ok := ParseTransitTime(s); ok {
		return t, true
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
