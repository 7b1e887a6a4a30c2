// Package client implements the requesting side of the transfer protocol:
// it listens for the data channel, sends one command on the control channel
// and reads the framed payload the server dials back with.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"go.sakib.dev/ftserve/protocol"
	"go.uber.org/multierr"
)

var (
	ErrInvalidCommand  = errors.New("server: " + protocol.ReplyInvalidCommand)
	ErrFileNotFound    = errors.New("server: " + protocol.ReplyFileNotFound)
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// maxReplySize is enough for any control token.
const maxReplySize = 64

type Client struct {
	// Addr is the server control address, host:port.
	Addr string
	// DataHost is the local address the data listener binds to. Empty means
	// every interface.
	DataHost string
	// Timeout bounds a whole exchange. Zero means no bound.
	Timeout time.Duration
}

func New(addr string) *Client {
	return &Client{Addr: addr, Timeout: 30 * time.Second}
}

// List asks for the directory listing, received on dataPort. A dataPort of
// "0" picks a free port.
func (c *Client) List(ctx context.Context, dataPort string) ([]string, error) {
	body, err := c.exchange(ctx, protocol.TagList, func(port string) protocol.Command {
		return protocol.List{DataPort: port}
	}, dataPort)
	if err != nil {
		return nil, err
	}
	return protocol.SplitListing(body), nil
}

// Get fetches the contents of name, received on dataPort.
func (c *Client) Get(ctx context.Context, name, dataPort string) ([]byte, error) {
	return c.exchange(ctx, protocol.TagGet, func(port string) protocol.Command {
		return protocol.Get{Filename: name, DataPort: port}
	}, dataPort)
}

// exchange runs one session. The data listener is up before the command is
// sent, since the server dials back right after acknowledging.
func (c *Client) exchange(ctx context.Context, wantTag string, build func(port string) protocol.Command, dataPort string) ([]byte, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", net.JoinHostPort(c.DataHost, dataPort))
	if err != nil {
		return nil, fmt.Errorf("error listening for data channel: %w", err)
	}
	defer listener.Close()
	port := strconv.Itoa(listener.Addr().(*net.TCPAddr).Port)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return nil, fmt.Errorf("error connecting to %s: %w", c.Addr, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
		listener.Close()
	})
	defer stop()

	cmd := build(port)
	slog.DebugContext(ctx, "Sending command", "server", c.Addr, "command", cmd.String())
	if _, err := conn.Write([]byte(cmd.String())); err != nil {
		return nil, c.cause(ctx, fmt.Errorf("error sending command: %w", err))
	}

	reply, err := readReply(conn)
	if err != nil {
		return nil, c.cause(ctx, fmt.Errorf("error reading reply: %w", err))
	}
	switch protocol.NormalizeReply(reply) {
	case "OK":
	case protocol.ReplyInvalidCommand:
		return nil, ErrInvalidCommand
	case protocol.ReplyFileNotFound:
		return nil, ErrFileNotFound
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedReply, reply)
	}

	data, err := listener.Accept()
	if err != nil {
		return nil, c.cause(ctx, fmt.Errorf("error accepting data channel: %w", err))
	}
	stopData := context.AfterFunc(ctx, func() { data.Close() })
	defer stopData()

	payload, err := io.ReadAll(data)
	err = multierr.Append(err, data.Close())
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return nil, c.cause(ctx, fmt.Errorf("error reading data channel: %w", err))
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	tag, body, err := protocol.ParseFrame(payload)
	if err != nil {
		return nil, err
	}
	if tag != wantTag {
		return nil, fmt.Errorf("%w: got a %q frame, want %q", ErrUnexpectedReply, tag, wantTag)
	}
	return body, nil
}

// cause prefers the context error when the context is what broke the
// connection.
func (c *Client) cause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w (%w)", ctxErr, err)
	}
	return err
}

// readReply reads the control reply. The server keeps the control
// connection open after OK until the transfer is done, so reading stops at
// a complete OK instead of waiting for EOF.
func readReply(conn net.Conn) ([]byte, error) {
	buf := make([]byte, 0, maxReplySize)
	for len(buf) < maxReplySize {
		n, err := conn.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]
		if string(buf) == protocol.ReplyOK {
			return buf, nil
		}
		if errors.Is(err, io.EOF) {
			return buf, nil
		}
		if err != nil {
			return buf, err
		}
	}
	return buf, nil
}
