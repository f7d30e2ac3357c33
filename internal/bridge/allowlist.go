package bridge

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

var ErrEgressBlocked = errors.New("bridge egress blocked")

// CheckURL enforces the relay egress policy. Loopback relays may use plain
// ws; every other relay must use wss and be listed in hosts.
func CheckURL(raw string, hosts []string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u == nil {
		return ErrEgressBlocked
	}
	host := u.Hostname()
	if host == "" {
		return ErrEgressBlocked
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return ErrEgressBlocked
	}
	if isLoopback(host) {
		return nil
	}
	if u.Scheme != "wss" {
		return ErrEgressBlocked
	}
	for _, allowed := range hosts {
		if strings.EqualFold(strings.TrimSpace(allowed), host) {
			return nil
		}
	}
	return ErrEgressBlocked
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
