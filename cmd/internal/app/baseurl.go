package app

import (
	"net"
	"strings"
)

// RuntimeBaseURL turns a listen address into a URL a local client can dial.
// Wildcard binds map to loopback.
func RuntimeBaseURL(addr string) string {
	addr = strings.TrimSpace(addr)
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// WSBaseURL converts an http(s) base URL to its ws(s) form.
func WSBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	case strings.Contains(base, "://"):
		return base
	default:
		return "ws://" + base
	}
}
