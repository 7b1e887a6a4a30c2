// Package transport opens the server-initiated data channel.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Dialer opens the data connection back to a peer.
type Dialer interface {
	DialData(ctx context.Context, host, port string) (net.Conn, error)
}

// TCPDialer dials the data channel over TCP. A zero Timeout leaves the dial
// bounded only by ctx.
type TCPDialer struct {
	Timeout time.Duration
}

func (d TCPDialer) DialData(ctx context.Context, host, port string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout}
	addr := net.JoinHostPort(host, port)
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial data channel %s: %w", addr, err)
	}
	return conn, nil
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, host, port string) (net.Conn, error)

func (f DialerFunc) DialData(ctx context.Context, host, port string) (net.Conn, error) {
	return f(ctx, host, port)
}

// WriteAll writes b with an optional deadline and reports short writes.
func WriteAll(conn net.Conn, b []byte, timeout time.Duration) error {
	if timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	n, err := conn.Write(b)
	if err != nil {
		return fmt.Errorf("write %d/%d bytes: %w", n, len(b), err)
	}
	return nil
}

// IsTimeout reports whether err is a network timeout.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
