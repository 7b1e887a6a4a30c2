package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// Control channel replies. The acknowledgment carries its C string
// terminator, three bytes on the wire; the error tokens do not.
const (
	ReplyOK             = "OK\x00"
	ReplyInvalidCommand = "INVALID COMMAND"
	ReplyFileNotFound   = "FILE NOT FOUND"
)

// Data channel type tags.
const (
	TagList = "list"
	TagGet  = "get"
)

var ErrMalformedFrame = errors.New("malformed data frame")

// Frame builds the data channel payload: the type tag, a newline, the body.
func Frame(tag string, body []byte) []byte {
	out := make([]byte, 0, len(tag)+1+len(body))
	out = append(out, tag...)
	out = append(out, '\n')
	return append(out, body...)
}

// ParseFrame splits a received data channel payload into tag and body.
func ParseFrame(data []byte) (tag string, body []byte, err error) {
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		return "", nil, fmt.Errorf("%w: no tag line", ErrMalformedFrame)
	}
	tag = string(data[:i])
	if tag != TagList && tag != TagGet {
		return "", nil, fmt.Errorf("%w: unknown tag %q", ErrMalformedFrame, tag)
	}
	return tag, data[i+1:], nil
}

// SplitListing turns a list body back into entry names.
func SplitListing(body []byte) []string {
	if len(body) == 0 {
		return []string{}
	}
	return strings.Split(string(body), "\n")
}

// JoinListing is the inverse of SplitListing.
func JoinListing(names []string) []byte {
	var buf bytes.Buffer
	for i, name := range names {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(name)
	}
	return buf.Bytes()
}

// NormalizeReply trims what a peer may add around a control token.
func NormalizeReply(b []byte) string {
	return string(bytes.TrimRight(bytes.TrimSpace(b), "\x00"))
}
