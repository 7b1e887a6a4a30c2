// Package banner prints the startup message of the server, optionally with
// the reachable address as a QR code.
package banner

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/yeqown/go-qrcode/v2"
	"go.sakib.dev/ftserve/pkg/utils"
)

// Print writes "Server open on <port>" and, when qr is set, the address a
// client on the local network would use.
func Print(w io.Writer, port int, qr bool) error {
	if _, err := fmt.Fprintf(w, "Server open on %d\n", port); err != nil {
		return err
	}
	if !qr {
		return nil
	}

	ip, err := utils.GetLocalIP()
	if err != nil {
		ip = "127.0.0.1"
	}
	addr := net.JoinHostPort(ip, strconv.Itoa(port))

	if _, err := fmt.Fprintf(w, "Reachable at %s\n", addr); err != nil {
		return err
	}
	return WriteQR(w, addr)
}

// WriteQR renders text as a QR code with half block characters, two rows
// of modules per line.
func WriteQR(w io.Writer, text string) error {
	qrc, err := qrcode.NewWith(text, qrcode.WithErrorCorrectionLevel(qrcode.ErrorCorrectionLow))
	if err != nil {
		return fmt.Errorf("error encoding %q: %w", text, err)
	}
	return qrc.Save(newBlockWriter(w))
}

// blockWriter is a qrcode.Writer for plain text output.
type blockWriter struct {
	w     *bufio.Writer
	quiet int
}

func newBlockWriter(w io.Writer) *blockWriter {
	return &blockWriter{w: bufio.NewWriter(w), quiet: 2}
}

func (b *blockWriter) Write(mat qrcode.Matrix) error {
	width, height := mat.Width(), mat.Height()
	set := make([][]bool, height)
	for y := range set {
		set[y] = make([]bool, width)
	}
	mat.Iterate(qrcode.IterDirection_ROW, func(x, y int, v qrcode.QRValue) {
		set[y][x] = v.IsSet()
	})

	at := func(x, y int) bool {
		x, y = x-b.quiet, y-b.quiet
		if x < 0 || y < 0 || x >= width || y >= height {
			return false
		}
		return set[y][x]
	}

	// dark modules are drawn as spaces on a light background so the code
	// scans on dark terminals
	for y := 0; y < height+2*b.quiet; y += 2 {
		for x := 0; x < width+2*b.quiet; x++ {
			b.w.WriteString(halfBlock(!at(x, y), !at(x, y+1)))
		}
		b.w.WriteByte('\n')
	}
	return b.w.Flush()
}

func (b *blockWriter) Close() error {
	return b.w.Flush()
}

func halfBlock(top, bottom bool) string {
	switch {
	case top && bottom:
		return "█"
	case top:
		return "▀"
	case bottom:
		return "▄"
	default:
		return " "
	}
}
