// File: internal/dedup/normalize.go
package dedup

import (
	"net/url"
	"sort"
	"strings"
)

// trackingParams are query parameters that carry no identity: two URLs that
// differ only in these point at the same page.
var trackingParams = map[string]struct{}{
	"gclid":       {},
	"fbclid":      {},
	"msclkid":     {},
	"igshid":      {},
	"mc_cid":      {},
	"mc_eid":      {},
	"ref":         {},
	"ref_src":     {},
	"spm":         {},
	"_hsenc":      {},
	"_hsmi":       {},
	"hsCtaTracking": {},
}

// NormalizeURL produces the deduplication key for a candidate URL: scheme and
// host lowercased, default ports stripped, trailing slash removed, tracking
// query parameters dropped and the remainder sorted. An unparseable URL
// normalizes to its trimmed input so it still participates in dedup.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(strings.ToLower(raw), "/")
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	switch {
	case u.Scheme == "http" && strings.HasSuffix(u.Host, ":80"):
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(u.Host, ":443"):
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Path = strings.TrimSuffix(u.Path, "/")
	u.Fragment = ""

	q := u.Query()
	for key := range q {
		if _, tracking := trackingParams[key]; tracking || strings.HasPrefix(strings.ToLower(key), "utm_") {
			q.Del(key)
		}
	}
	u.RawQuery = encodeSorted(q)

	// The scheme is not part of identity: http://x.com/a and https://x.com/a
	// are the same page for dedup purposes.
	u.Scheme = "https"

	return u.String()
}

// encodeSorted renders query values with deterministic key order.
func encodeSorted(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range q[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
