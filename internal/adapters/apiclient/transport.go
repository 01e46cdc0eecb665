package apiclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/melih/aetherhost/internal/core/domain"
	"github.com/melih/aetherhost/internal/core/ports"
	"github.com/melih/aetherhost/internal/logutil"
)

var tracer = otel.Tracer("github.com/melih/aetherhost/internal/adapters/apiclient")

// ExecTransport submits terminal commands to the exec endpoint. It enforces
// at most one outstanding call per container and never retries.
type ExecTransport struct {
	client *Client
	tokens ports.TokenProvider

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewExecTransport creates a transport that authenticates with tokens.
func NewExecTransport(client *Client, tokens ports.TokenProvider) *ExecTransport {
	return &ExecTransport{
		client:   client,
		tokens:   tokens,
		inflight: make(map[string]struct{}),
	}
}

// Submit runs command in containerID and returns its combined output.
// Failures are *domain.ExecError values whose kind is ErrTransport, ErrAuth,
// ErrTimeout or ErrInFlight.
func (t *ExecTransport) Submit(ctx context.Context, containerID, command string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", fmt.Errorf("submit to %s: %w", containerID, domain.ErrEmptyCommand)
	}
	if !t.acquire(containerID) {
		return "", domain.NewExecError(domain.ErrInFlight, 0, "a command is already running in "+containerID, nil)
	}
	defer t.release(containerID)

	token, err := t.tokens.Token(ctx)
	if err != nil {
		return "", domain.NewExecError(domain.ErrAuth, 0, "missing bearer token", err)
	}

	ctx, span := tracer.Start(ctx, "exec.submit", trace.WithAttributes(
		attribute.String("container.id", containerID),
		attribute.Int("command.length", len(command)),
	))
	defer span.End()

	res, err := t.client.Exec(ctx, token, containerID, command)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var execErr *domain.ExecError
		if errors.As(err, &execErr) {
			span.SetAttributes(attribute.Int("http.status_code", execErr.Status))
		}
		log.Printf("[exec] container %s: %q failed: %v",
			logutil.SanitizeForLog(containerID), logutil.SanitizeForLog(command), err)
		return "", err
	}
	span.SetAttributes(attribute.Int("exec.exit_code", res.ExitCode))
	return res.Output, nil
}

// InFlight reports whether a call for containerID is outstanding.
func (t *ExecTransport) InFlight(containerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.inflight[containerID]
	return ok
}

func (t *ExecTransport) acquire(containerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, busy := t.inflight[containerID]; busy {
		return false
	}
	t.inflight[containerID] = struct{}{}
	return true
}

func (t *ExecTransport) release(containerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, containerID)
}
