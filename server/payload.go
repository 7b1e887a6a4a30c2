package server

import (
	"fmt"

	"go.sakib.dev/ftserve/protocol"
)

// produce builds the body for an accepted command. Reading a file that
// passed validation can still fail; that is an I/O error for the session,
// not a not-found reply.
func produce(v Accepted, catalog Catalog) (tag string, body []byte, err error) {
	switch cmd := v.Command.(type) {
	case protocol.List:
		names, err := catalog.List()
		if err != nil {
			return "", nil, fmt.Errorf("list directory: %w", err)
		}
		return protocol.TagList, protocol.JoinListing(names), nil
	case protocol.Get:
		data, err := catalog.ReadFile(cmd.Filename)
		if err != nil {
			return "", nil, fmt.Errorf("read %s after validation: %w", cmd.Filename, err)
		}
		return protocol.TagGet, data, nil
	}
	return "", nil, fmt.Errorf("no payload for %T", v.Command)
}
