package acquire

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Target is an immutable acquisition target.
type Target struct {
	URL  string `json:"url"`
	Host string `json:"host"`
}

// NewTarget normalizes raw into a Target. A missing scheme defaults to https;
// scheme and host are lowercased, default ports and fragments dropped.
func NewTarget(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, errors.New("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + strings.TrimPrefix(raw, "//")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("parse url: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return Target{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	if u.Hostname() == "" {
		return Target{}, fmt.Errorf("url %q has no host", raw)
	}
	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return Target{URL: u.String(), Host: u.Hostname()}, nil
}
