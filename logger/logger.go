package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"go.sakib.dev/ftserve/pkg/utils"
	"golang.org/x/term"
)

const (
	PeerKey     string = "peer"
	PeerHostKey string = "peerHost"
	CommandKey  string = "command"
	OutcomeKey  string = "outcome"
)

// Level is shared by every handler built here so the level can be changed
// while the server runs.
var Level = new(slog.LevelVar)

type Handler struct {
	slog.Handler
}

func NewHandler(w io.Writer) *Handler {
	return &Handler{
		Handler: tint.NewHandler(
			w,
			&tint.Options{
				Level:      Level,
				TimeFormat: time.TimeOnly,
				NoColor:    !isTerminal(w),
			},
		),
	}
}

// Setup installs a handler writing to stdout as the slog default.
func Setup(level string) {
	SetLevel(level)
	slog.SetDefault(slog.New(NewHandler(os.Stdout)))
}

// SetLevel accepts debug, info, warn and error; anything else means info.
func SetLevel(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		l = slog.LevelInfo
	}
	Level.Set(l)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	sessionID := utils.SessionID(ctx)

	if sessionID == "" {
		return h.Handler.Handle(ctx, r)
	}

	r.AddAttrs(slog.String(string(utils.SessionIDKey), sessionID))

	return h.Handler.Handle(ctx, r)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{Handler: h.Handler.WithGroup(name)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
