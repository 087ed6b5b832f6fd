package normalize

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// defaultTrackingParams is the built-in denylist of query parameters removed
// before URL comparison. Configurable additions come in through the denylist
// argument of DedupKey and CleanURL.
var defaultTrackingParams = []string{
	"fbclid",
	"gclid",
	"msclkid",
	"mc_cid",
	"mc_eid",
	"igshid",
	"ref_src",
	"spm",
	"yclid",
}

// trackingPrefixes match whole parameter families.
var trackingPrefixes = []string{"utm_"}

func isTrackingParam(name string, denylist []string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range trackingPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	for _, p := range defaultTrackingParams {
		if lower == p {
			return true
		}
	}
	for _, p := range denylist {
		if lower == strings.ToLower(p) {
			return true
		}
	}
	return false
}

// CleanURL removes tracking parameters from a URL while keeping everything
// else intact. Used by the tracker cleaner plugin on finalized results.
func CleanURL(rawURL string, denylist []string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	values := u.Query()
	changed := false
	for name := range values {
		if isTrackingParam(name, denylist) {
			values.Del(name)
			changed = true
		}
	}
	if !changed {
		return rawURL
	}
	u.RawQuery = values.Encode()
	return u.String()
}

// DedupKey normalizes a URL into the identity used for result deduplication:
// scheme and host lowercased, default ports stripped, trailing slash removed,
// tracking parameters dropped, remaining query parameters sorted, fragment
// discarded. Two results with equal keys are the same logical result.
func DedupKey(rawURL string, denylist []string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q has no scheme or host", rawURL)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}

	path := u.EscapedPath()
	for len(path) > 0 && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}

	values := u.Query()
	names := make([]string, 0, len(values))
	for name := range values {
		if isTrackingParam(name, denylist) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var query strings.Builder
	for _, name := range names {
		vals := values[name]
		sort.Strings(vals)
		for _, v := range vals {
			if query.Len() > 0 {
				query.WriteByte('&')
			}
			query.WriteString(url.QueryEscape(name))
			query.WriteByte('=')
			query.WriteString(url.QueryEscape(v))
		}
	}

	key := scheme + "://" + host + path
	if query.Len() > 0 {
		key += "?" + query.String()
	}
	return key, nil
}

// TitleDomainKey is the near-duplicate fallback identity: registrable-ish
// host (www. stripped) plus the case- and space-folded title. Only consulted
// when exact URL keys differ.
func TitleDomainKey(rawURL, title string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || strings.TrimSpace(title) == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	folded := strings.Join(strings.Fields(strings.ToLower(title)), " ")
	return host + "|" + folded
}
