// Package presign decides whether a presigned download URL is safe to fetch.
//
// Every check runs locally before a request leaves the process: HTTPS only,
// no userinfo, default port, host on the allow-list, a bounded signature
// lifetime and a clean object path.
package presign

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxExpiry is the longest signature lifetime accepted.
const DefaultMaxExpiry = time.Hour

const (
	maxRedirects   = 10
	amzDateLayout  = "20060102T150405Z"
	allowedPathSet = `^/[A-Za-z0-9._~/+-]+$`
)

var pathPattern = regexp.MustCompile(allowedPathSet)

// Validator checks download URLs against an allow-list of hosts.
type Validator struct {
	exact     map[string]bool
	suffixes  []string
	maxExpiry time.Duration
	now       func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithMaxExpiry sets the longest signature lifetime accepted.
func WithMaxExpiry(d time.Duration) Option {
	return func(v *Validator) {
		if d > 0 {
			v.maxExpiry = d
		}
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// NewValidator builds a Validator. Entries in allowed are exact host names,
// or start with "." to match any subdomain (but not the bare domain).
// Matching is case-insensitive.
func NewValidator(allowed []string, opts ...Option) (*Validator, error) {
	v := &Validator{
		exact:     make(map[string]bool),
		maxExpiry: DefaultMaxExpiry,
		now:       time.Now,
	}
	for _, h := range allowed {
		h = strings.ToLower(strings.TrimSpace(h))
		switch {
		case h == "", h == ".":
			continue
		case strings.HasPrefix(h, "."):
			v.suffixes = append(v.suffixes, h)
		default:
			v.exact[h] = true
		}
	}
	if len(v.exact) == 0 && len(v.suffixes) == 0 {
		return nil, errors.New("at least one allowed download host is required")
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate reports whether rawURL may be fetched. It returns a *SecurityError
// describing the first rule the URL breaks.
func (v *Validator) Validate(rawURL string) error {
	u, err := v.checkOrigin(rawURL)
	if err != nil {
		return err
	}
	if err := checkPath(u); err != nil {
		return err
	}
	return v.checkExpiry(u)
}

// ValidateFor is Validate plus a check that the URL addresses the expected
// object: its path has to end with expectedPath.
func (v *Validator) ValidateFor(rawURL, expectedPath string) error {
	if err := v.Validate(rawURL); err != nil {
		return err
	}
	expected := strings.TrimLeft(expectedPath, "/")
	if expected == "" {
		return nil
	}

	u, _ := url.Parse(rawURL)
	if u.Path != "/"+expected && !strings.HasSuffix(u.Path, "/"+expected) {
		return invalid(rawURL, fmt.Sprintf("path does not match release artifact %q", expected))
	}
	return nil
}

// CheckRedirect is an http.Client.CheckRedirect hook. Redirect targets must
// stay on an allowed HTTPS origin; they are not required to carry their own
// signature.
func (v *Validator) CheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if _, err := v.checkOrigin(req.URL.String()); err != nil {
		return err
	}
	return nil
}

// Allowed reports whether host is on the allow-list.
func (v *Validator) Allowed(host string) bool {
	host = strings.ToLower(host)
	if v.exact[host] {
		return true
	}
	for _, s := range v.suffixes {
		if strings.HasSuffix(host, s) && len(host) > len(s) {
			return true
		}
	}
	return false
}

func (v *Validator) checkOrigin(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &SecurityError{Kind: InvalidURL, Reason: "unparsable URL"}
	}
	if u.Scheme != "https" {
		return nil, invalid(rawURL, fmt.Sprintf("scheme %q is not https", u.Scheme))
	}
	if u.Opaque != "" {
		return nil, invalid(rawURL, "opaque URLs are not allowed")
	}
	if u.User != nil {
		return nil, invalid(rawURL, "URL carries user credentials")
	}
	if p := u.Port(); p != "" && p != "443" {
		return nil, invalid(rawURL, fmt.Sprintf("non-default port %s", p))
	}

	host := u.Hostname()
	if host == "" {
		return nil, invalid(rawURL, "missing host")
	}
	if !v.Allowed(host) {
		return nil, &SecurityError{Kind: UntrustedHost, URL: Redact(rawURL), Reason: fmt.Sprintf("host %q is not allowed", host)}
	}
	return u, nil
}

func checkPath(u *url.URL) error {
	raw := u.String()
	escaped := strings.ToLower(u.EscapedPath())
	if strings.Contains(escaped, "%2f") || strings.Contains(escaped, "%5c") {
		return invalid(raw, "path contains encoded separators")
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if seg == ".." || seg == "." {
			return invalid(raw, "path contains dot segments")
		}
	}
	if !pathPattern.MatchString(u.Path) {
		return invalid(raw, "path contains disallowed characters")
	}
	return nil
}

// checkExpiry requires one of the signature lifetime parameters used by S3
// (X-Amz-Expires), GCS (X-Goog-Expires) or CloudFront-style URLs (Expires).
func (v *Validator) checkExpiry(u *url.URL) error {
	raw := u.String()
	q := u.Query()
	now := v.now()

	for _, p := range []struct{ expires, date string }{
		{"X-Amz-Expires", "X-Amz-Date"},
		{"X-Goog-Expires", "X-Goog-Date"},
	} {
		if !q.Has(p.expires) {
			continue
		}
		secs, err := strconv.ParseInt(q.Get(p.expires), 10, 64)
		if err != nil || secs <= 0 {
			return invalid(raw, fmt.Sprintf("%s is not a positive integer", p.expires))
		}
		lifetime := time.Duration(secs) * time.Second
		if lifetime > v.maxExpiry {
			return invalid(raw, fmt.Sprintf("%s of %s exceeds the %s limit", p.expires, lifetime, v.maxExpiry))
		}
		if d := q.Get(p.date); d != "" {
			signed, err := time.Parse(amzDateLayout, d)
			if err != nil {
				return invalid(raw, fmt.Sprintf("%s is malformed", p.date))
			}
			if !now.Before(signed.Add(lifetime)) {
				return invalid(raw, "presigned URL has expired")
			}
		}
		return nil
	}

	if q.Has("Expires") {
		epoch, err := strconv.ParseInt(q.Get("Expires"), 10, 64)
		if err != nil {
			return invalid(raw, "Expires is not a unix timestamp")
		}
		at := time.Unix(epoch, 0)
		if !now.Before(at) {
			return invalid(raw, "presigned URL has expired")
		}
		if at.Sub(now) > v.maxExpiry {
			return invalid(raw, fmt.Sprintf("Expires is more than %s away", v.maxExpiry))
		}
		return nil
	}

	return invalid(raw, "URL carries no signature expiry")
}

func invalid(rawURL, reason string) error {
	return &SecurityError{Kind: InvalidURL, URL: Redact(rawURL), Reason: reason}
}
