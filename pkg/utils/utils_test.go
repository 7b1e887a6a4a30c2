package utils

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestPeerIP(t *testing.T) {
	tests := []struct {
		name string
		addr net.Addr
		want string
	}{
		{"tcp v4", &net.TCPAddr{IP: net.ParseIP("10.0.0.7"), Port: 4242}, "10.0.0.7"},
		{"tcp v6", &net.TCPAddr{IP: net.ParseIP("::1"), Port: 30021}, "::1"},
		{"no port", &net.UnixAddr{Name: "/tmp/ft.sock", Net: "unix"}, "/tmp/ft.sock"},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PeerIP(tt.addr); got != tt.want {
				t.Errorf("PeerIP(%v) = %q, want %q", tt.addr, got, tt.want)
			}
		})
	}
}

func TestPeerHostname_NotAnIP(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	// net.Pipe addresses are named "pipe" and never hit the resolver
	if got := PeerHostname(context.Background(), c1.RemoteAddr()); got != "pipe" {
		t.Errorf("PeerHostname(pipe) = %q, want %q", got, "pipe")
	}
}

func TestPeerHostname_CancelledFallsBackToIP(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	addr := &net.TCPAddr{IP: net.ParseIP("192.0.2.1"), Port: 9000}
	if got := PeerHostname(ctx, addr); got != "192.0.2.1" {
		t.Errorf("PeerHostname with cancelled lookup = %q, want the IP", got)
	}
}

func TestSessionID(t *testing.T) {
	ctx := context.Background()
	if got := SessionID(ctx); got != "" {
		t.Errorf("SessionID on empty context = %q, want empty", got)
	}
	ctx = WithSessionID(ctx, "a1B2c")
	if got := SessionID(ctx); got != "a1B2c" {
		t.Errorf("SessionID = %q, want %q", got, "a1B2c")
	}
}
