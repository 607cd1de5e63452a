package auth

import "net"

// IsLoopbackAddr reports whether addr is a loopback "host:port"
// address. Admin access is only granted to loopback peers.
func IsLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}
