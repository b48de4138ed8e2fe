package websocket

import (
	"fmt"
	"net/url"
	"strings"
)

// AllowList accepts origins served from the dev server itself or listed
// explicitly.
type AllowList struct {
	hosts map[string]bool
}

// NewAllowList allows host:port, its localhost and 127.0.0.1 equivalents,
// and every extra origin (full "scheme://host:port" or bare "host:port").
func NewAllowList(host string, port int, extra ...string) *AllowList {
	a := &AllowList{hosts: map[string]bool{}}
	for _, h := range []string{host, "localhost", "127.0.0.1"} {
		if h == "" {
			continue
		}
		a.hosts[fmt.Sprintf("%s:%d", h, port)] = true
	}
	for _, o := range extra {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			a.hosts[strings.ToLower(u.Host)] = true
			continue
		}
		a.hosts[strings.ToLower(o)] = true
	}
	return a
}

// IsAllowedOrigin implements OriginValidator. Connections without an Origin
// header are rejected.
func (a *AllowList) IsAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return a.hosts[strings.ToLower(u.Host)]
}
