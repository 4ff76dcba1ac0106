// Package zmurl normalizes user-supplied server URLs into canonical
// base and API roots.
package zmurl

import (
	"net/url"
	"strings"
)

// Sanitize turns raw user input into a canonical base URL. It is total:
// empty or unparseable input degrades to fallback so downstream code
// always has a usable root.
//
// Rules: a missing scheme defaults to https, runs of slashes in the
// path collapse to one, the fragment is dropped, and any trailing
// slash is stripped.
func Sanitize(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fallback
	}

	clean := url.URL{
		Scheme:   u.Scheme,
		Host:     u.Host,
		Path:     collapseSlashes(u.Path),
		RawQuery: u.RawQuery,
	}

	return strings.TrimSuffix(clean.String(), "/")
}

// APIRoot derives the API root from an already-sanitized base URL.
func APIRoot(base, fallback string) string {
	return Sanitize(base+"/api", fallback+"/api")
}

func collapseSlashes(p string) string {
	if !strings.Contains(p, "//") {
		return p
	}
	var b strings.Builder
	b.Grow(len(p))
	prevSlash := false
	for _, r := range p {
		if r == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
