package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"go.sakib.dev/ftserve/client"
	"go.sakib.dev/ftserve/logger"
	"go.sakib.dev/ftserve/protocol"
	"go.sakib.dev/ftserve/storage"
)

type request struct {
	host     string
	port     string
	dataPort string
	list     bool
	file     string
}

func main() {
	if err := run(os.Args[1:], afero.NewOsFs()); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
}

func run(args []string, fsys afero.Fs) error {
	flags := pflag.NewFlagSet("ftclient", pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, "Correct usage:\n",
			"list: ftclient <SERVER_HOST> <SERVER_PORT> -l <DATA_PORT>\n",
			"get: ftclient <SERVER_HOST> <SERVER_PORT> -g <FILENAME> <DATA_PORT>\n\n")
		flags.PrintDefaults()
	}
	list := flags.BoolP("list", "l", false, "List the served directory")
	file := flags.StringP("get", "g", "", "Download `FILENAME` into the output directory")
	out := flags.StringP("out", "o", ".", "Directory downloads are saved to")
	timeout := flags.Duration("timeout", 30*time.Second, "Give up on the transfer after this long")
	logLevel := flags.String("log-level", "warn", "debug, info, warn or error")
	if err := flags.Parse(args); err != nil {
		return err
	}
	logger.Setup(*logLevel)

	req, err := parseRequest(flags.Args(), *list, *file)
	if err != nil {
		flags.Usage()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := client.New(net.JoinHostPort(req.host, req.port))
	c.Timeout = *timeout

	if req.list {
		names, err := c.List(ctx, req.dataPort)
		if err != nil {
			return describe(req, err)
		}
		fmt.Printf("Receiving directory structure from %s:%s\n", req.host, req.dataPort)
		for _, name := range sortFold(names) {
			fmt.Println(name)
		}
		return nil
	}

	data, err := c.Get(ctx, req.file, req.dataPort)
	if err != nil {
		return describe(req, err)
	}
	fmt.Printf("Receiving %q from %s:%s\n", req.file, req.host, req.dataPort)
	dest, err := save(fsys, *out, req.file, data)
	if err != nil {
		return err
	}
	fmt.Printf("File transfer complete: %s (%s)\n", dest, storage.HumanizeSize(int64(len(data))))
	return nil
}

func parseRequest(args []string, list bool, file string) (request, error) {
	if list == (file != "") {
		return request{}, errors.New("exactly one of -l and -g is required")
	}
	if len(args) != 3 {
		return request{}, fmt.Errorf("want SERVER_HOST SERVER_PORT DATA_PORT, got %d arguments", len(args))
	}
	req := request{host: args[0], port: args[1], dataPort: args[2], list: list, file: file}
	for _, port := range []string{req.port, req.dataPort} {
		if !protocol.ValidPort(port) {
			return request{}, fmt.Errorf("%s is not a valid port number, must be between 1 and 65535", port)
		}
	}
	return req, nil
}

// describe turns a server rejection into the message the server sent.
func describe(req request, err error) error {
	switch {
	case errors.Is(err, client.ErrInvalidCommand):
		return fmt.Errorf("%s:%s says\n%s", req.host, req.port, protocol.ReplyInvalidCommand)
	case errors.Is(err, client.ErrFileNotFound):
		return fmt.Errorf("%s:%s says\n%s", req.host, req.port, protocol.ReplyFileNotFound)
	}
	return err
}

// sortFold sorts names ignoring case, as a directory listing reads best.
func sortFold(names []string) []string {
	sorted := slices.Clone(names)
	slices.SortStableFunc(sorted, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return sorted
}

// save writes data under dir using the base name of the requested file, so
// a request for ../x never writes outside dir.
func save(fsys afero.Fs, dir, name string, data []byte) (string, error) {
	base := filepath.Base(filepath.Clean(name))
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return "", fmt.Errorf("cannot save %q: no file name", name)
	}
	dest := filepath.Join(dir, base)
	if err := afero.WriteFile(fsys, dest, data, 0o644); err != nil {
		return "", fmt.Errorf("error saving %s: %w", dest, err)
	}
	return dest, nil
}
