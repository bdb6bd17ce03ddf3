package report

import (
	"net/url"
	"regexp"
	"strings"
)

var duplicateSlashes = regexp.MustCompile(`/{2,}`)

// HumanizeURL normalizes a page identifier and strips its scheme:
// the host is lower-cased, default ports, credentials and utm_* parameters
// are dropped, the remaining query keys are sorted, repeated slashes in the
// path collapse and a trailing slash is removed. Fragments are kept.
//
//	HumanizeURL("https://user@www.Example.com:443/a//b/?utm_source=x&z=1&a=2") == "www.example.com/a/b?a=2&z=1"
func HumanizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if u, err := url.Parse(s); err == nil && u.Host != "" && u.Opaque == "" {
		host := strings.ToLower(u.Host)
		switch {
		case u.Scheme == "http" && strings.HasSuffix(host, ":80"):
			host = strings.TrimSuffix(host, ":80")
		case u.Scheme == "https" && strings.HasSuffix(host, ":443"):
			host = strings.TrimSuffix(host, ":443")
		}
		u.Host = host
		u.User = nil
		u.Scheme = ""
		if u.RawPath == "" {
			u.Path = duplicateSlashes.ReplaceAllString(u.Path, "/")
			if u.Path != "/" {
				u.Path = strings.TrimSuffix(u.Path, "/")
			}
		}
		if u.RawQuery != "" {
			u.RawQuery = normalizeQuery(u.Query())
		}
		s = u.String()
	}
	s = strings.TrimPrefix(s, "https:")
	s = strings.TrimPrefix(s, "http:")
	s = strings.TrimPrefix(s, "//")
	return strings.TrimSuffix(s, "/")
}

// normalizeQuery drops utm_* keys and encodes the rest sorted by key.
func normalizeQuery(q url.Values) string {
	for k := range q {
		if strings.HasPrefix(strings.ToLower(k), "utm_") {
			delete(q, k)
		}
	}
	return q.Encode()
}
