package models

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Target is one event page to price. It is immutable during a run.
type Target struct {
	Name   string `json:"name" yaml:"name"`
	URL    string `json:"url" yaml:"url"`
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}

// Host returns the lower-cased hostname of the target URL.
func (t Target) Host() string {
	u, err := url.Parse(t.URL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// WithParam sets key=value on rawURL's query, replacing an existing value in
// place and otherwise appending. The order of other parameters is preserved.
func WithParam(rawURL, key, value string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", rawURL)
	}

	pair := url.QueryEscape(key) + "=" + url.QueryEscape(value)
	parts := splitQuery(u.RawQuery)
	replaced := false
	for i, p := range parts {
		if paramKey(p) == key {
			parts[i] = pair
			replaced = true
		}
	}
	if !replaced {
		parts = append(parts, pair)
	}
	u.RawQuery = strings.Join(parts, "&")
	return u.String(), nil
}

// StripParam removes every occurrence of key from rawURL's query. Unparseable
// URLs are returned unchanged.
func StripParam(rawURL, key string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	parts := splitQuery(u.RawQuery)
	kept := parts[:0]
	for _, p := range parts {
		if paramKey(p) != key {
			kept = append(kept, p)
		}
	}
	u.RawQuery = strings.Join(kept, "&")
	return u.String()
}

var eventIDPattern = regexp.MustCompile(`E-\d+`)

// EventID extracts the marketplace event id (E-12345) from a URL, if any.
func EventID(rawURL string) string {
	return eventIDPattern.FindString(rawURL)
}

// SameEvent reports whether two URLs point at the same event. URLs carrying
// an event id are compared by id, others by exact match.
func SameEvent(a, b string) bool {
	ida, idb := EventID(a), EventID(b)
	if ida != "" && idb != "" {
		return ida == idb
	}
	return a == b
}

func splitQuery(raw string) []string {
	if raw == "" {
		return nil
	}
	out := make([]string, 0, strings.Count(raw, "&")+1)
	for _, p := range strings.Split(raw, "&") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func paramKey(pair string) string {
	k, _, _ := strings.Cut(pair, "=")
	if unescaped, err := url.QueryUnescape(k); err == nil {
		return unescaped
	}
	return k
}
