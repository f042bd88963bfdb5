package ratelimit

import (
	"net"
	"strings"
)

// Actor key prefixes. Authenticated traffic is keyed per user so one
// user cannot starve another behind the same proxy; anonymous traffic
// falls back to the client address.
const (
	actorUserPrefix = "user:"
	actorIPPrefix   = "ip:"
)

// ActorKey derives the rate limit actor key for a request. The user ID
// wins when present. Otherwise the first entry of the X-Forwarded-For
// chain identifies the client, and the remote address is the last resort.
func ActorKey(userID, forwardedFor, remoteAddr string) string {
	if userID != "" {
		return actorUserPrefix + userID
	}

	if ip := firstForwardedAddr(forwardedFor); ip != "" {
		return actorIPPrefix + ip
	}

	return actorIPPrefix + stripPort(remoteAddr)
}

// firstForwardedAddr returns the first address in an X-Forwarded-For
// header value, which is the original client in a well-behaved chain.
func firstForwardedAddr(forwardedFor string) string {
	if forwardedFor == "" {
		return ""
	}

	first := forwardedFor
	if i := strings.IndexByte(forwardedFor, ','); i >= 0 {
		first = forwardedFor[:i]
	}

	return strings.TrimSpace(first)
}

// stripPort removes the port from a host:port address. Addresses without
// a port are returned unchanged.
func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
