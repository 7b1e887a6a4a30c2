package utils

import (
	"context"
	"log/slog"
	"net"
	"strings"
)

type ContextKey string

const (
	SessionIDKey ContextKey = "session"
)

func GetLocalIP() (string, error) {
	// Connect to a dummy address; doesn't have to be reachable
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}

// PeerIP strips the port from a remote address. Addresses that are not
// host:port pairs (pipes, unix sockets) are returned as they are.
func PeerIP(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// PeerHostname resolves the display name of a peer with a reverse lookup.
func PeerHostname(ctx context.Context, addr net.Addr) string {
	ip := PeerIP(addr)
	if net.ParseIP(ip) == nil {
		return ip
	}

	names, err := net.DefaultResolver.LookupAddr(ctx, ip)
	if err != nil || len(names) == 0 {
		slog.Debug("Failed to get peer hostname", "ip", ip, "error", err)
		return ip // fallback to IP if no hostname found
	}

	// names may contain trailing dot
	return strings.TrimSuffix(names[0], ".")
}

// SessionID returns the session id attached to ctx, or "" if there is none.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(SessionIDKey).(string)
	return id
}

// WithSessionID attaches a session id to ctx.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}
