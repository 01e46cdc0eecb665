package http

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/melih/aetherhost/internal/core/domain"
	"github.com/melih/aetherhost/internal/logutil"
)

// maxLogLine bounds one streamed log line; longer lines end the stream.
const maxLogLine = 1 << 20

// Stream is the read-only log feed at /terminal/stream/:id. It sends the
// recent log tail and then every new stdout/stderr line as output frames
// until the container stops or the client goes away. RequireUser must run
// before it.
func (h *TerminalHandler) Stream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		user, _ := conn.Locals(localUser).(domain.User)
		h.streamLogs(conn, user, conn.Params("id"))
	})
}

func (h *TerminalHandler) streamLogs(conn frameConn, user domain.User, containerID string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &frameWriter{conn: conn, connID: "stream:" + logutil.SanitizeForLog(containerID)}

	rc, err := h.compute.StreamLogs(ctx, user, containerID)
	if err != nil {
		out.sendError(containerID, streamErrorMessage(err))
		return
	}

	var closeOnce sync.Once
	closeLogs := func() { closeOnce.Do(func() { rc.Close() }) }
	defer closeLogs()

	// The client only ever closes this socket; a failed read means it left.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				closeLogs()
				return
			}
		}
	}()

	log.Printf("[terminal] streaming logs of container %s for user %d", logutil.SanitizeForLog(containerID), user.ID)
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLine)
	for scanner.Scan() {
		out.send(ServerFrame{Type: FrameOutput, Container: containerID, Data: scanner.Text() + "\r\n"})
		if out.broken() {
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil && !errors.Is(err, io.ErrClosedPipe) {
		log.Printf("[terminal] log stream of %s ended: %v", logutil.SanitizeForLog(containerID), err)
		out.sendError(containerID, "Log stream interrupted.")
	}
}

func streamErrorMessage(err error) string {
	if errors.Is(err, domain.ErrContainerNotFound) {
		return "Container not found."
	}
	log.Printf("[terminal] log stream failed: %v", err)
	return "Could not stream logs."
}
