// Package protocol holds the wire format of the two-channel transfer
// protocol: the control-channel command grammar, the reply tokens and the
// data-channel frame.
package protocol

import (
	"bytes"
	"strconv"
	"strings"
)

// MaxCommandSize bounds a single command read from the control channel.
// Longer input is truncated by the reader; the grammar has no continuation.
const MaxCommandSize = 1000

const (
	FlagList = "-l"
	FlagGet  = "-g"
)

// Command is one of List, Get or Invalid.
type Command interface {
	isCommand()
	String() string
}

// List requests the directory listing on DataPort.
type List struct {
	DataPort string
}

// Get requests the contents of Filename on DataPort.
type Get struct {
	Filename string
	DataPort string
}

// Invalid is anything that does not match the grammar.
type Invalid struct {
	Raw string
}

func (List) isCommand()    {}
func (Get) isCommand()     {}
func (Invalid) isCommand() {}

func (c List) String() string { return FlagList + " " + c.DataPort }
func (c Get) String() string  { return FlagGet + " " + c.Filename + " " + c.DataPort }
func (c Invalid) String() string {
	return strconv.Quote(c.Raw)
}

// Parse turns a raw request into a Command. It never fails: input that does
// not match the grammar yields Invalid. The command ends at the first NUL,
// as a C string would.
func Parse(raw []byte) Command {
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	line := string(bytes.TrimRight(raw, "\r\n"))
	invalid := Invalid{Raw: line}
	if line == "" {
		return invalid
	}

	tokens := strings.Split(line, " ")
	for _, tok := range tokens {
		if tok == "" {
			return invalid
		}
	}

	switch {
	case len(tokens) == 2 && tokens[0] == FlagList:
		if !ValidPort(tokens[1]) {
			return invalid
		}
		return List{DataPort: tokens[1]}
	case len(tokens) == 3 && tokens[0] == FlagGet:
		if !ValidPort(tokens[2]) {
			return invalid
		}
		return Get{Filename: tokens[1], DataPort: tokens[2]}
	}
	return invalid
}

// ValidPort reports whether s is a decimal TCP port in 1..65535.
func ValidPort(s string) bool {
	if s == "" || s[0] == '+' || s[0] == '-' {
		return false
	}
	n, err := strconv.ParseUint(s, 10, 16)
	return err == nil && n > 0
}

// DataPortOf returns the data port a command asks for, if any.
func DataPortOf(c Command) (string, bool) {
	switch c := c.(type) {
	case List:
		return c.DataPort, true
	case Get:
		return c.DataPort, true
	}
	return "", false
}
