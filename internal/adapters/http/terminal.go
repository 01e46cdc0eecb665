package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/melih/aetherhost/internal/adapters/apiclient"
	"github.com/melih/aetherhost/internal/auth"
	"github.com/melih/aetherhost/internal/core/domain"
	"github.com/melih/aetherhost/internal/core/ports"
	"github.com/melih/aetherhost/internal/logutil"
	"github.com/melih/aetherhost/internal/terminal"
)

// Frame types exchanged on /terminal/ws.
const (
	FrameOpen   = "open"
	FrameInput  = "input"
	FrameClose  = "close"
	FrameOpened = "opened"
	FrameOutput = "output"
	FrameError  = "error"
)

// ClientFrame is sent by the dashboard. Data carries raw terminal input.
type ClientFrame struct {
	Type      string `json:"type"`
	Container string `json:"container"`
	Data      string `json:"data,omitempty"`
}

// ServerFrame carries rendered output, or an error message for one container.
// Output frames are keyed by the resolved container ID; an opened frame
// carries that ID in Container and the name the client asked for in Data.
type ServerFrame struct {
	Type      string `json:"type"`
	Container string `json:"container"`
	Data      string `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
}

// TerminalOptions configures the sessions of every connection.
type TerminalOptions struct {
	Prompt      string
	Greeting    string
	ExecTimeout time.Duration
	// InputRate and InputBurst bound input frames per second per connection.
	InputRate  float64
	InputBurst int
	// Transport builds the exec transport for a connection's token. It
	// defaults to the HTTP exec client against ExecBaseURL.
	Transport   func(token string) ports.ExecTransport
	ExecBaseURL string
}

// TerminalHandler serves the dashboard terminal: one WebSocket is one
// dashboard view and owns one session registry.
type TerminalHandler struct {
	compute ComputeService
	opts    TerminalOptions
}

func NewTerminalHandler(compute ComputeService, opts TerminalOptions) *TerminalHandler {
	if opts.InputRate <= 0 {
		opts.InputRate = 50
	}
	if opts.InputBurst <= 0 {
		opts.InputBurst = 200
	}
	if opts.Transport == nil {
		baseURL := opts.ExecBaseURL
		timeout := opts.ExecTimeout
		opts.Transport = func(token string) ports.ExecTransport {
			// The client bound sits above the session timeout so the session decides.
			client := apiclient.New(baseURL, apiclient.WithTimeout(timeout+5*time.Second))
			return apiclient.NewExecTransport(client, auth.StaticToken(token))
		}
	}
	return &TerminalHandler{compute: compute, opts: opts}
}

// Upgrade rejects plain HTTP requests to the WebSocket route.
func (h *TerminalHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Serve is the WebSocket endpoint; RequireUser must run before it.
func (h *TerminalHandler) Serve() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		user, _ := conn.Locals(localUser).(domain.User)
		token, _ := conn.Locals(localToken).(string)
		h.serveConn(conn, user, token)
	})
}

// frameConn is the part of a WebSocket connection the terminal needs.
type frameConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
}

func (h *TerminalHandler) serveConn(conn frameConn, user domain.User, token string) {
	connID := uuid.NewString()[:8]
	log.Printf("[terminal] connection %s opened by user %d", connID, user.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &frameWriter{conn: conn, connID: connID}
	reg := terminal.NewRegistry(h.opts.Transport(token), out.sinkFor, terminal.Options{
		Prompt:      h.opts.Prompt,
		Greeting:    h.opts.Greeting,
		ExecTimeout: h.opts.ExecTimeout,
		Directory:   h.compute.Directory(user),
	})
	defer reg.CloseAll()

	limiter := &inputLimiter{limiter: rate.NewLimiter(rate.Limit(h.opts.InputRate), h.opts.InputBurst)}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[terminal] connection %s read error: %v", connID, err)
			}
			break
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			out.sendError("", "malformed frame")
			continue
		}
		h.handleFrame(ctx, reg, out, limiter, frame)
	}
	log.Printf("[terminal] connection %s closed, %d sessions torn down", connID, reg.Len())
}

func (h *TerminalHandler) handleFrame(ctx context.Context, reg *terminal.Registry, out *frameWriter, limiter *inputLimiter, frame ClientFrame) {
	switch frame.Type {
	case FrameOpen:
		s, err := reg.Open(ctx, frame.Container)
		if err != nil {
			out.sendError(frame.Container, openErrorMessage(err))
			return
		}
		out.send(ServerFrame{Type: FrameOpened, Container: s.ContainerID(), Data: frame.Container})
	case FrameInput:
		if !limiter.allow() {
			// One notice per run of dropped frames.
			if limiter.notify() {
				out.sendError(frame.Container, "Input rate exceeded, keystrokes were dropped.")
			}
			return
		}
		s := reg.Get(frame.Container)
		if s == nil {
			out.sendError(frame.Container, "No terminal session is open for this container.")
			return
		}
		s.Input(frame.Data)
	case FrameClose:
		reg.Close(frame.Container)
	default:
		out.sendError(frame.Container, "unknown frame type "+logutil.SanitizeForLog(frame.Type))
	}
}

// inputLimiter bounds input frames per connection and remembers whether
// the client was already told about the current run of drops.
type inputLimiter struct {
	limiter  *rate.Limiter
	dropping bool
}

func (l *inputLimiter) allow() bool {
	if l.limiter.Allow() {
		l.dropping = false
		return true
	}
	return false
}

func (l *inputLimiter) notify() bool {
	if l.dropping {
		return false
	}
	l.dropping = true
	return true
}

func openErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrContainerNotRunning):
		return "Container is not running."
	case errors.Is(err, domain.ErrContainerNotFound):
		return "Container not found."
	default:
		log.Printf("[terminal] open failed: %v", err)
		return "Could not open terminal."
	}
}

// frameWriter serialises writes from every session of a connection; the
// WebSocket allows one writer at a time.
type frameWriter struct {
	mu     sync.Mutex
	conn   frameConn
	connID string
	failed bool
}

func (w *frameWriter) sinkFor(containerID string) ports.RenderSink {
	return &wsSink{w: w, containerID: containerID}
}

func (w *frameWriter) send(frame ServerFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failed {
		return
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		w.failed = true
		log.Printf("[terminal] connection %s write error: %v", w.connID, err)
	}
}

func (w *frameWriter) broken() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failed
}

func (w *frameWriter) sendError(containerID, message string) {
	w.send(ServerFrame{Type: FrameError, Container: containerID, Message: message})
}

// wsSink renders one container's terminal into output frames.
type wsSink struct {
	w           *frameWriter
	containerID string
}

func (s *wsSink) WriteRaw(text string) {
	if text == "" {
		return
	}
	s.w.send(ServerFrame{Type: FrameOutput, Container: s.containerID, Data: terminal.CRLF(text)})
}

func (s *wsSink) WriteLine(text string) {
	s.w.send(ServerFrame{Type: FrameOutput, Container: s.containerID, Data: terminal.CRLF(text) + "\r\n"})
}
