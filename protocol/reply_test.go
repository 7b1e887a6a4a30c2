package protocol

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestFrame(t *testing.T) {
	tests := []struct {
		tag  string
		body string
		want string
	}{
		{TagList, "a.txt\nb.txt", "list\na.txt\nb.txt"},
		{TagList, "", "list\n"},
		{TagGet, "hello\nworld", "get\nhello\nworld"},
		{TagGet, "", "get\n"},
	}
	for _, tt := range tests {
		got := Frame(tt.tag, []byte(tt.body))
		if string(got) != tt.want {
			t.Errorf("Frame(%q, %q) = %q, want %q", tt.tag, tt.body, got, tt.want)
		}
	}
}

func TestParseFrame(t *testing.T) {
	binary := []byte{0x00, 0xff, '\n', 0x10, '\n'}

	tag, body, err := ParseFrame(Frame(TagGet, binary))
	if err != nil {
		t.Fatalf("ParseFrame returned error: %v", err)
	}
	if tag != TagGet || !bytes.Equal(body, binary) {
		t.Errorf("ParseFrame = %q, %v; want %q, %v", tag, body, TagGet, binary)
	}

	for _, bad := range []string{"", "list", "put\nx"} {
		if _, _, err := ParseFrame([]byte(bad)); !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("ParseFrame(%q) error = %v, want ErrMalformedFrame", bad, err)
		}
	}
}

func TestListing(t *testing.T) {
	names := []string{"a.txt", "b.txt", "notes"}
	body := JoinListing(names)
	if string(body) != "a.txt\nb.txt\nnotes" {
		t.Errorf("JoinListing = %q", body)
	}
	if got := SplitListing(body); !reflect.DeepEqual(got, names) {
		t.Errorf("SplitListing = %q, want %q", got, names)
	}
	if got := JoinListing(nil); len(got) != 0 {
		t.Errorf("JoinListing(nil) = %q, want empty", got)
	}
	if got := SplitListing(nil); len(got) != 0 {
		t.Errorf("SplitListing(nil) = %q, want empty", got)
	}
}

func TestNormalizeReply(t *testing.T) {
	tests := []struct{ in, want string }{
		{ReplyOK, "OK"},
		{ReplyInvalidCommand, ReplyInvalidCommand},
		{ReplyFileNotFound + "\n", ReplyFileNotFound},
		{"  OK\x00\x00", "OK"},
	}
	for _, tt := range tests {
		if got := NormalizeReply([]byte(tt.in)); got != tt.want {
			t.Errorf("NormalizeReply(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if len(ReplyOK) != 3 {
		t.Errorf("ReplyOK is %d bytes on the wire, want 3", len(ReplyOK))
	}
}
