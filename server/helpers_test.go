package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"go.sakib.dev/ftserve/storage"
)

// fakeDialer hands out in-memory data connections and collects whatever the
// server writes on them.
type fakeDialer struct {
	mu       sync.Mutex
	dials    []string
	err      error
	payloads chan []byte

	// control holds what the server wrote on the control channel, atDial
	// a snapshot of it taken at each dial.
	control bytes.Buffer
	atDial  []string
}

// controlConn records the server's control channel writes on its dialer.
type controlConn struct {
	net.Conn
	d *fakeDialer
}

func (c *controlConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	c.d.mu.Lock()
	c.d.control.Write(b[:n])
	c.d.mu.Unlock()
	return n, err
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{payloads: make(chan []byte, 16)}
}

func (d *fakeDialer) DialData(_ context.Context, host, port string) (net.Conn, error) {
	d.mu.Lock()
	d.dials = append(d.dials, net.JoinHostPort(host, port))
	d.atDial = append(d.atDial, d.control.String())
	err := d.err
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	local, remote := net.Pipe()
	go func() {
		data, _ := io.ReadAll(remote)
		remote.Close()
		d.payloads <- data
	}()
	return local, nil
}

func (d *fakeDialer) dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.dials...)
}

// writtenAtDial returns, per dial, what had been written on the control
// channel when the dial started.
func (d *fakeDialer) writtenAtDial() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.atDial...)
}

func (d *fakeDialer) payload(t *testing.T) []byte {
	t.Helper()
	select {
	case p := <-d.payloads:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for data channel payload")
		return nil
	}
}

func staticHost(context.Context, net.Addr) string {
	return "flip1"
}

// newMemStore serves files from /srv on a MemMapFs. Names ending in a slash
// become directories.
func newMemStore(t *testing.T, files map[string]string) *storage.Store {
	t.Helper()
	fsys := afero.NewMemMapFs()
	if err := fsys.MkdirAll("/srv", 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	for name, content := range files {
		if strings.HasSuffix(name, "/") {
			if err := fsys.MkdirAll("/srv/"+name, 0o755); err != nil {
				t.Fatalf("MkdirAll(%s): %v", name, err)
			}
			continue
		}
		if err := afero.WriteFile(fsys, "/srv/"+name, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile(%s): %v", name, err)
		}
	}
	store, err := storage.New(fsys, "/srv", false)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	return store
}

func newTestServer(t *testing.T, catalog Catalog, dialer *fakeDialer, options ...Option) *Server {
	t.Helper()
	options = append([]Option{
		WithDialer(dialer),
		WithHostResolver(staticHost),
		WithTimeouts(2*time.Second, time.Second, 2*time.Second),
	}, options...)
	srv, err := NewServer(catalog, options...)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { srv.Shutdown(time.Second) })
	return srv
}

// runSession plays the client side of one session over net.Pipe and returns
// everything the server wrote on the control channel.
func runSession(t *testing.T, srv *Server, command string) (string, Outcome) {
	t.Helper()
	client, end := net.Pipe()
	defer client.Close()
	var conn net.Conn = end
	if d, ok := srv.dialer.(*fakeDialer); ok {
		conn = &controlConn{Conn: end, d: d}
	}

	done := make(chan Outcome, 1)
	go func() {
		done <- srv.HandleSession(context.Background(), conn)
	}()

	client.SetDeadline(time.Now().Add(3 * time.Second))
	if _, err := client.Write([]byte(command)); err != nil {
		t.Fatalf("write command: %v", err)
	}
	reply, err := io.ReadAll(client)
	if err != nil && !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("read reply: %v", err)
	}

	select {
	case outcome := <-done:
		return string(reply), outcome
	case <-time.After(3 * time.Second):
		t.Fatal("session did not finish")
		return "", OutcomeAborted
	}
}

// brokenCatalog reports every file as present and fails to read it, as when
// a file is removed between the check and the read.
type brokenCatalog struct {
	panicOnList bool
}

func (c brokenCatalog) List() ([]string, error) {
	if c.panicOnList {
		panic("directory handle gone")
	}
	return nil, errors.New("readdir: input/output error")
}

func (brokenCatalog) Stat(name string) (storage.FileInfo, error) {
	return storage.FileInfo{Name: name, Size: 42}, nil
}

func (brokenCatalog) ReadFile(name string) ([]byte, error) {
	return nil, errors.New("read " + name + ": input/output error")
}
