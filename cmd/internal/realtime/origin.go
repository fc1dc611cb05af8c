package realtime

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

var (
	errMissingOrigin  = errors.New("missing origin")
	errEmptyAllowlist = errors.New("origin not allowed (no allowlist)")
)

func enforceOrigin(r *http.Request, required bool, allowed []string) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if required {
			return errMissingOrigin
		}
		return nil
	}

	if len(allowed) == 0 {
		return errEmptyAllowlist
	}

	originHost := originHostOnly(origin)

	for _, a := range allowed {
		a = strings.TrimSpace(a)
		switch {
		case a == "":
			continue
		case a == "*":
			return nil
		case origin == a:
			return nil
		case originHost != "" && originHost == originHostOnly(a):
			// Scheme and port are ignored on host match.
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = strings.TrimSpace(u.Host)
		if s == "" {
			return ""
		}
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// originPatterns derives websocket.Accept OriginPatterns from the allowlist so both
// checks agree on cross-origin hosts. A "*" entry becomes the match-all pattern.
func originPatterns(allowed []string) []string {
	out := make([]string, 0, len(allowed))
	for _, a := range allowed {
		if strings.TrimSpace(a) == "*" {
			out = append(out, "*")
			continue
		}
		if h := originHostOnly(a); h != "" {
			out = append(out, h)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
