package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"go.sakib.dev/ftserve/storage"
	"go.sakib.dev/ftserve/transport"
)

const (
	sendChunkSize           = 1024 * 1024            // 1MB per write
	sendProgressLogInterval = 500 * time.Millisecond // Log transfer progress every 500 milliseconds
)

// sender writes a framed payload on the data connection in chunks, so the
// write deadline applies per chunk and long transfers report progress.
type sender struct {
	ctx     context.Context
	conn    net.Conn
	timeout time.Duration
	report  func(sent int)
}

func (s *sender) send(frame []byte) (int, error) {
	var (
		total            = len(frame)
		totalSent        = 0
		lastReportedSent = 0
		lastReportedTime = time.Now()
		transferStart    = time.Now()
	)

	for totalSent < total {
		end := min(totalSent+sendChunkSize, total)
		if err := transport.WriteAll(s.conn, frame[totalSent:end], s.timeout); err != nil {
			return totalSent, err
		}
		totalSent = end

		if s.report != nil {
			s.report(totalSent)
		}

		if time.Since(lastReportedTime) > sendProgressLogInterval {
			mbps := float64(totalSent-lastReportedSent) / 1024 / 1024 / time.Since(lastReportedTime).Seconds()
			progress := float64(totalSent) / float64(total) * 100

			msg := fmt.Sprintf("%7.2f / %7.2f MB sent | %2.2f%% | %5.2f MB/s",
				float64(totalSent)/1024/1024, float64(total)/1024/1024, progress, mbps)
			slog.InfoContext(s.ctx, msg)

			lastReportedSent = totalSent
			lastReportedTime = time.Now()
		}
	}

	slog.DebugContext(s.ctx, "TRANSFER COMPLETE",
		"sent", storage.HumanizeSize(int64(totalSent)),
		"duration", time.Since(transferStart))
	return totalSent, nil
}
