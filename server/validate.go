package server

import (
	"errors"

	"go.sakib.dev/ftserve/protocol"
	"go.sakib.dev/ftserve/storage"
)

// Catalog is what the server needs from the served directory.
type Catalog interface {
	List() ([]string, error)
	Stat(name string) (storage.FileInfo, error)
	ReadFile(name string) ([]byte, error)
}

// Verdict is one of Accepted, RejectedBadCommand or RejectedFileNotFound.
type Verdict interface {
	isVerdict()
}

// Accepted carries a List or a Get whose file exists. Size is the file size
// seen at validation time, zero for List.
type Accepted struct {
	Command protocol.Command
	Size    int64
}

type RejectedBadCommand struct {
	Raw string
}

// RejectedFileNotFound keeps the stat error so unusual causes (permissions,
// I/O) show up in the log even though the peer only sees the token.
type RejectedFileNotFound struct {
	Filename string
	Err      error
}

func (Accepted) isVerdict()             {}
func (RejectedBadCommand) isVerdict()   {}
func (RejectedFileNotFound) isVerdict() {}

func validate(cmd protocol.Command, catalog Catalog) Verdict {
	switch cmd := cmd.(type) {
	case protocol.List:
		return Accepted{Command: cmd}
	case protocol.Get:
		info, err := catalog.Stat(cmd.Filename)
		if err != nil {
			return RejectedFileNotFound{Filename: cmd.Filename, Err: err}
		}
		return Accepted{Command: cmd, Size: info.Size}
	case protocol.Invalid:
		return RejectedBadCommand{Raw: cmd.Raw}
	}
	return RejectedBadCommand{Raw: cmd.String()}
}

// unusual reports whether a not-found rejection had a cause other than a
// missing file.
func (r RejectedFileNotFound) unusual() bool {
	return r.Err != nil && !errors.Is(r.Err, storage.ErrNotFound)
}
