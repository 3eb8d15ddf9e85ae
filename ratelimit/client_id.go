/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// UnknownClient is the identity used when the client network address is absent or malformed.
const UnknownClient = "unknown"

const (
	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"
)

// ClientID returns the rate-limiting identity of the request: the client network address
// (forwarded headers are trusted) joined with the normalized route.
func ClientID(r *http.Request, route string) string {
	return MakeClientID(ClientNetworkID(r, true), NormalizeRoute(route))
}

// MakeClientID joins the client network address and the normalized route into the rate-limiting identity.
func MakeClientID(networkID, route string) string {
	if networkID = strings.TrimSpace(networkID); networkID == "" {
		networkID = UnknownClient
	}
	return networkID + ":" + route
}

// ClientNetworkID returns the client network address of the request.
// If trustForwardedFor is true, the first X-Forwarded-For token or X-Real-IP is preferred
// over the direct peer address. Malformed values are skipped and UnknownClient is returned
// when nothing usable is found.
func ClientNetworkID(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if forwardFor := r.Header.Get(headerForwardedFor); forwardFor != "" {
			first := forwardFor
			if idx := strings.IndexByte(forwardFor, ','); idx != -1 {
				first = forwardFor[:idx]
			}
			if ip := parseIP(first); ip != "" {
				return ip
			}
		}
		if ip := parseIP(r.Header.Get(headerRealIP)); ip != "" {
			return ip
		}
	}
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	if ip := parseIP(host); ip != "" {
		return ip
	}
	return UnknownClient
}

func parseIP(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}

// NormalizeRoute keeps only the first two segments of the path,
// so "/api/stocks/AAPL" and "/api/stocks/BBRI" share the same quota.
func NormalizeRoute(path string) string {
	if idx := strings.IndexAny(path, "?#"); idx != -1 {
		path = path[:idx]
	}
	segments := make([]string, 0, 2)
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		segments = append(segments, seg)
		if len(segments) == 2 {
			break
		}
	}
	return "/" + strings.Join(segments, "/")
}
