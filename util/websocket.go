package util

import (
	"net"
	"net/netip"
	"strings"
)

// FeedURL turns a host, with or without scheme, into the websocket URL of a
// block feed. http/https map to ws/wss; bare hosts get wss:// unless they are
// loopback. A missing path becomes defaultPath.
func FeedURL(host, defaultPath string) string {
	if host == "" {
		return ""
	}
	var u string
	switch {
	case strings.HasPrefix(host, "wss://"), strings.HasPrefix(host, "ws://"):
		u = host
	case strings.HasPrefix(host, "https://"):
		u = "wss://" + strings.TrimPrefix(host, "https://")
	case strings.HasPrefix(host, "http://"):
		u = "ws://" + strings.TrimPrefix(host, "http://")
	case strings.Contains(host, "://"):
		// unknown schemes are left alone
		return host
	case isLoopback(host):
		u = "ws://" + host
	default:
		u = "wss://" + host
	}
	_, rest, _ := strings.Cut(u, "://")
	if defaultPath != "" && !strings.Contains(rest, "/") {
		u += "/" + strings.TrimPrefix(defaultPath, "/")
	}
	return u
}

func isLoopback(host string) bool {
	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}
	hostname = strings.Trim(hostname, "[]")
	if hostname == "localhost" {
		return true
	}
	addr, err := netip.ParseAddr(hostname)
	return err == nil && addr.IsLoopback()
}
