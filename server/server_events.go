package server

import (
	"net"
	"time"

	"go.sakib.dev/ftserve/protocol"
)

type ServerEventName string

const (
	EvNameSessionOpen   ServerEventName = "session_open"
	EvNameCommand       ServerEventName = "command"
	EvNameTransferStart ServerEventName = "transfer_start"
	EvNameTransferProg  ServerEventName = "transfer_progress"
	EvNameSessionClose  ServerEventName = "session_close"
)

type EventSessionOpen struct {
	SessionID string
	Peer      Peer
	Time      time.Time
}

type EventCommand struct {
	SessionID string
	Command   protocol.Command
	Time      time.Time
}

type EventTransferStart struct {
	SessionID string
	Tag       string
	Size      int
	DataAddr  net.Addr
	Time      time.Time
}

// EventTransferProgress counts frame bytes written so far, tag included.
type EventTransferProgress struct {
	SessionID string
	Sent      int
}

type EventSessionClose struct {
	SessionID string
	Outcome   Outcome
	Err       error
	Time      time.Time
}

type ServerEvent interface {
	EventName() ServerEventName
}

func (e EventSessionOpen) EventName() ServerEventName {
	return EvNameSessionOpen
}
func (e EventCommand) EventName() ServerEventName {
	return EvNameCommand
}
func (e EventTransferStart) EventName() ServerEventName {
	return EvNameTransferStart
}
func (e EventTransferProgress) EventName() ServerEventName {
	return EvNameTransferProg
}
func (e EventSessionClose) EventName() ServerEventName {
	return EvNameSessionClose
}
