package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.sakib.dev/ftserve/logger"
	"go.sakib.dev/ftserve/pkg/nanoid"
	"go.sakib.dev/ftserve/pkg/utils"
	"go.sakib.dev/ftserve/protocol"
	"go.sakib.dev/ftserve/storage"
	"go.sakib.dev/ftserve/transport"
	"go.uber.org/multierr"
)

const sessionIDLen = 8

// session owns the control connection and, once a command is accepted, the
// data connection. Neither outlives it.
type session struct {
	srv  *Server
	ctx  context.Context
	id   string
	conn net.Conn
	peer Peer

	start time.Time

	mu   sync.Mutex
	cmd  protocol.Command
	data net.Conn
}

// HandleSession serves one control connection from the first read to the
// close. It always closes conn.
func (s *Server) HandleSession(ctx context.Context, conn net.Conn) Outcome {
	h := s.newSession(ctx, conn)
	s.track(h)
	defer s.untrack(h)

	stop := context.AfterFunc(h.ctx, h.abort)
	defer stop()

	slog.InfoContext(h.ctx, "SESSION OPEN",
		logger.PeerKey, h.peer.IP,
		logger.PeerHostKey, h.peer.Host)
	h.publish(EventSessionOpen{SessionID: h.id, Peer: h.peer, Time: h.start})

	outcome, err := h.run()
	if closeErr := h.close(); closeErr != nil {
		slog.DebugContext(h.ctx, "Error closing session connections", "error", closeErr)
	}

	h.logOutcome(outcome, err)
	h.publish(EventSessionClose{SessionID: h.id, Outcome: outcome, Err: err, Time: time.Now()})
	return outcome
}

func (s *Server) newSession(ctx context.Context, conn net.Conn) *session {
	id := nanoid.NewWithLen(sessionIDLen)
	ctx = utils.WithSessionID(ctx, id)

	ip := utils.PeerIP(conn.RemoteAddr())
	host := ip
	if s.resolveHost != nil {
		lookupCtx := ctx
		if s.dialTimeout > 0 {
			var cancel context.CancelFunc
			lookupCtx, cancel = context.WithTimeout(ctx, s.dialTimeout)
			defer cancel()
		}
		host = s.resolveHost(lookupCtx, conn.RemoteAddr())
	}

	return &session{
		srv:   s,
		ctx:   ctx,
		id:    id,
		conn:  conn,
		peer:  Peer{IP: ip, Host: host},
		start: time.Now(),
	}
}

func (h *session) run() (Outcome, error) {
	raw, err := h.readCommand()
	if err != nil {
		return OutcomeAborted, err
	}
	if len(raw) == 0 {
		return OutcomeDisconnected, nil
	}

	cmd := protocol.Parse(raw)
	h.setCommand(cmd)
	slog.InfoContext(h.ctx, "COMMAND", logger.CommandKey, cmd.String())
	h.publish(EventCommand{SessionID: h.id, Command: cmd, Time: time.Now()})

	switch v := validate(cmd, h.srv.catalog).(type) {
	case RejectedBadCommand:
		return h.reject(OutcomeBadCommand, protocol.ReplyInvalidCommand)
	case RejectedFileNotFound:
		if v.unusual() {
			slog.WarnContext(h.ctx, "Stat failed", "file", v.Filename, "error", v.Err)
		}
		return h.reject(OutcomeNotFound, protocol.ReplyFileNotFound)
	case Accepted:
		return h.transfer(v)
	default:
		return OutcomeAborted, fmt.Errorf("unexpected verdict %T", v)
	}
}

// readCommand does a single read. Zero bytes means the peer left before
// sending anything.
func (h *session) readCommand() ([]byte, error) {
	if t := h.srv.readTimeout; t > 0 {
		if err := h.conn.SetReadDeadline(time.Now().Add(t)); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
	}

	buf := make([]byte, protocol.MaxCommandSize)
	n, err := h.conn.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil, nil
	}
	if transport.IsTimeout(err) {
		return nil, fmt.Errorf("no command within %v: %w", h.srv.readTimeout, err)
	}
	return nil, fmt.Errorf("read command: %w", err)
}

func (h *session) reject(outcome Outcome, token string) (Outcome, error) {
	if err := transport.WriteAll(h.conn, []byte(token), h.srv.writeTimeout); err != nil {
		return OutcomeAborted, fmt.Errorf("send %q: %w", token, err)
	}
	return outcome, nil
}

// transfer acknowledges an accepted command, dials the peer back and writes
// the framed payload. The payload is built before the acknowledgment so a
// failed read never leaves the peer waiting on an OK.
func (h *session) transfer(v Accepted) (Outcome, error) {
	tag, body, err := produce(v, h.srv.catalog)
	if err != nil {
		return OutcomeAborted, err
	}
	port, _ := protocol.DataPortOf(v.Command)

	release, err := h.srv.peers.acquire(h.ctx, h.peer.IP)
	if err != nil {
		return OutcomeAborted, fmt.Errorf("wait for data channel to %s: %w", h.peer.IP, err)
	}
	defer release()

	if err := transport.WriteAll(h.conn, []byte(protocol.ReplyOK), h.srv.writeTimeout); err != nil {
		return OutcomeAborted, fmt.Errorf("send OK: %w", err)
	}

	dialCtx := h.ctx
	if h.srv.dialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(h.ctx, h.srv.dialTimeout)
		defer cancel()
	}
	data, err := h.srv.dialer.DialData(dialCtx, h.peer.IP, port)
	if err != nil {
		return OutcomeAborted, err
	}
	if !h.setData(data) {
		data.Close()
		return OutcomeAborted, h.ctx.Err()
	}

	slog.InfoContext(h.ctx, "SENDING",
		"type", tag,
		"dataPort", port,
		"size", storage.HumanizeSize(int64(len(body))))
	h.publish(EventTransferStart{SessionID: h.id, Tag: tag, Size: len(body), DataAddr: data.RemoteAddr(), Time: time.Now()})

	out := &sender{
		ctx:     h.ctx,
		conn:    data,
		timeout: h.srv.writeTimeout,
		report: func(sent int) {
			h.publish(EventTransferProgress{SessionID: h.id, Sent: sent})
		},
	}
	if sent, err := out.send(protocol.Frame(tag, body)); err != nil {
		return OutcomeAborted, fmt.Errorf("send payload after %d bytes: %w", sent, err)
	}
	if err := h.closeData(); err != nil {
		return OutcomeAborted, fmt.Errorf("close data channel: %w", err)
	}

	if tag == protocol.TagList {
		return OutcomeListed, nil
	}
	return OutcomeSent, nil
}

func (h *session) setCommand(cmd protocol.Command) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cmd = cmd
}

// setData hands the data connection to the session. It refuses once the
// session was cancelled, since abort has already run.
func (h *session) setData(conn net.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx.Err() != nil {
		return false
	}
	h.data = conn
	return true
}

func (h *session) closeData() error {
	h.mu.Lock()
	data := h.data
	h.data = nil
	h.mu.Unlock()
	if data == nil {
		return nil
	}
	return data.Close()
}

// close releases both connections. Errors from connections already closed
// by abort are dropped.
func (h *session) close() error {
	err := multierr.Append(h.closeData(), h.conn.Close())
	var kept error
	for _, e := range multierr.Errors(err) {
		if !errors.Is(e, net.ErrClosed) {
			kept = multierr.Append(kept, e)
		}
	}
	return kept
}

// abort runs when the server context ends and unblocks any pending I/O.
func (h *session) abort() {
	h.mu.Lock()
	data := h.data
	h.mu.Unlock()
	if data != nil {
		data.Close()
	}
	h.conn.Close()
}

func (h *session) info() SessionInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	info := SessionInfo{ID: h.id, Peer: h.peer, StartedAt: h.start}
	if h.cmd != nil {
		info.Command = h.cmd.String()
	}
	return info
}

func (h *session) logOutcome(outcome Outcome, err error) {
	info := h.info()
	attrs := []any{
		logger.PeerKey, h.peer.Host,
		logger.CommandKey, info.Command,
		logger.OutcomeKey, outcome.String(),
		"duration", time.Since(h.start),
	}
	if err != nil {
		slog.ErrorContext(h.ctx, "SESSION ABORTED", append(attrs, "error", err)...)
		return
	}
	slog.InfoContext(h.ctx, "SESSION CLOSED", attrs...)
}

func (h *session) publish(ev ServerEvent) {
	h.srv.publish(ev)
}
