package normalize

import (
	"regexp"
	"strings"
)

var (
	hasScheme = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)
	webScheme = regexp.MustCompile(`(?i)^https?://`)
	baseURL   = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9+.-]*)://`)
)

// ToAbsoluteURL resolves ref against base. A ref that already has a scheme
// (including mailto: and javascript:) is returned unchanged; a
// protocol-relative ref takes base's scheme; anything else is appended to
// base with exactly one slash between them. An empty ref yields "".
func ToAbsoluteURL(ref, base string) string {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return ""
	case strings.HasPrefix(ref, "//"):
		scheme := "https"
		if m := baseURL.FindStringSubmatch(base); m != nil {
			scheme = m[1]
		}
		return scheme + ":" + ref
	case hasScheme.MatchString(ref):
		return ref
	}
	return strings.TrimRight(strings.TrimSpace(base), "/") + "/" + strings.TrimLeft(ref, "/")
}

// IsWebURL reports whether u is an absolute http or https URL.
func IsWebURL(u string) bool {
	return webScheme.MatchString(strings.TrimSpace(u))
}
