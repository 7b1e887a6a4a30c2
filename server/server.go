package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"go.sakib.dev/ftserve/pkg/utils"
	"go.sakib.dev/ftserve/transport"
)

var ErrServerClosed = errors.New("server: closed")

// HostResolver turns a peer address into a display name.
type HostResolver func(ctx context.Context, addr net.Addr) string

type Server struct {
	catalog      Catalog
	dialer       transport.Dialer
	resolveHost  HostResolver
	readTimeout  time.Duration
	writeTimeout time.Duration
	dialTimeout  time.Duration
	maxSessions  int
	ch           chan<- ServerEvent

	ctx       context.Context
	cancel    context.CancelFunc
	acceptors sync.WaitGroup
	sessions  *pool.Pool
	peers     *peerLocks

	mu    sync.Mutex
	addr  string
	conns map[string]*session

	// closed ends when Shutdown stops waiting for sessions. evMu guards
	// the close of ch against sends in flight.
	closed   chan struct{}
	evMu     sync.RWMutex
	evClosed bool
}

type Option func(s *Server) error

func WithDialer(d transport.Dialer) Option {
	return func(s *Server) error {
		if d == nil {
			return errors.New("server.WithDialer: dialer is nil")
		}
		s.dialer = d
		return nil
	}
}

func WithHostResolver(r HostResolver) Option {
	return func(s *Server) error {
		if r == nil {
			return errors.New("server.WithHostResolver: resolver is nil")
		}
		s.resolveHost = r
		return nil
	}
}

// WithTimeouts bounds the command read, the data dial and each write.
// Zero disables a bound.
func WithTimeouts(read, dial, write time.Duration) Option {
	return func(s *Server) error {
		if read < 0 || dial < 0 || write < 0 {
			return fmt.Errorf("server.WithTimeouts: negative timeout (%v, %v, %v)", read, dial, write)
		}
		s.readTimeout, s.dialTimeout, s.writeTimeout = read, dial, write
		return nil
	}
}

// WithMaxSessions sets how many control connections are served at once.
// 1 serves strictly one session at a time.
func WithMaxSessions(n int) Option {
	return func(s *Server) error {
		if n < 1 {
			return fmt.Errorf("server.WithMaxSessions: %d is less than 1", n)
		}
		s.maxSessions = n
		return nil
	}
}

// WithEvents publishes session events on ch. Sends block, so ch must be
// drained. Shutdown closes ch once no session can publish anymore.
func WithEvents(ch chan<- ServerEvent) Option {
	return func(s *Server) error {
		s.ch = ch
		return nil
	}
}

func NewServer(catalog Catalog, options ...Option) (*Server, error) {
	if catalog == nil {
		return nil, errors.New("server.NewServer: catalog is nil")
	}

	s := &Server{
		catalog:      catalog,
		resolveHost:  utils.PeerHostname,
		readTimeout:  30 * time.Second,
		dialTimeout:  10 * time.Second,
		writeTimeout: 60 * time.Second,
		maxSessions:  1,
		peers:        newPeerLocks(),
		conns:        make(map[string]*session),
		closed:       make(chan struct{}),
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(s); err != nil {
			return nil, err
		}
	}
	if s.dialer == nil {
		s.dialer = transport.TCPDialer{Timeout: s.dialTimeout}
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.sessions = pool.New().WithMaxGoroutines(s.maxSessions)
	return s, nil
}

// Serve accepts control connections until the listener fails or the server
// is shut down. Each connection becomes one session.
func (s *Server) Serve(listener net.Listener) error {
	if listener == nil {
		return errors.New("server.Serve: listener is nil")
	}
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		listener.Close()
		return ErrServerClosed
	}
	s.acceptors.Add(1)
	s.addr = listener.Addr().String()
	s.mu.Unlock()
	defer s.acceptors.Done()

	stop := context.AfterFunc(s.ctx, func() {
		listener.Close()
	})
	defer stop()

	slog.Info("Server open", "addr", listener.Addr().String(), "maxSessions", s.maxSessions)

	var delay time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			delay = acceptBackoff(delay)
			slog.Error("Failed to accept connection", "error", err, "retryIn", delay)
			select {
			case <-time.After(delay):
			case <-s.ctx.Done():
				return ErrServerClosed
			}
			continue
		}
		delay = 0

		s.sessions.Go(func() {
			s.serveConn(conn)
		})
	}
}

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// acceptBackoff doubles the wait after a failed Accept, from 5ms up to 1s.
func acceptBackoff(prev time.Duration) time.Duration {
	if prev == 0 {
		return minAcceptDelay
	}
	return min(2*prev, maxAcceptDelay)
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (s *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("error starting server: %w", err)
	}
	return s.Serve(listener)
}

// Shutdown stops accepting, cancels every running session and waits for
// them up to timeout. It returns the time spent.
func (s *Server) Shutdown(timeout time.Duration) time.Duration {
	from := time.Now()

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return 0
	}
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.acceptors.Wait()
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		slog.Warn("Shutdown timed out", "sessions", len(s.GetState().Sessions))
	}
	close(s.closed)
	s.closeEvents()
	return time.Since(from)
}

func (s *Server) closeEvents() {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	s.evClosed = true
	if s.ch != nil {
		close(s.ch)
	}
}

func (s *Server) GetState() ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := ServerState{
		Addr:     s.addr,
		Sessions: make(map[string]SessionInfo, len(s.conns)),
	}
	for id, sess := range s.conns {
		state.Sessions[id] = sess.info()
	}
	return state
}

// serveConn runs one session and keeps a panic inside it from taking the
// server down.
func (s *Server) serveConn(conn net.Conn) {
	var catcher panics.Catcher
	catcher.Try(func() {
		s.HandleSession(s.ctx, conn)
	})
	if r := catcher.Recovered(); r != nil {
		conn.Close()
		slog.Error("Session panicked", "remote", conn.RemoteAddr().String(), "error", r.AsError())
	}
}

func (s *Server) track(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[sess.id] = sess
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, sess.id)
}

// publish delivers ev while the server runs and while Shutdown waits for
// sessions, so the outcome of a cancelled session still reaches ch. Events
// of sessions that outlive Shutdown are dropped.
func (s *Server) publish(ev ServerEvent) {
	if s.ch == nil {
		return
	}
	s.evMu.RLock()
	defer s.evMu.RUnlock()
	if s.evClosed {
		return
	}
	select {
	case s.ch <- ev:
	case <-s.closed:
	}
}
