package ports

import "context"

// RenderSink is the output side of a terminal widget. Text is written as-is;
// the engine never reads from it.
type RenderSink interface {
	WriteRaw(text string)
	WriteLine(text string)
}

// ExecTransport runs a single command inside a container and returns its
// combined output. At most one Submit per container may be outstanding.
type ExecTransport interface {
	Submit(ctx context.Context, containerID, command string) (string, error)
}

// TokenProvider supplies the bearer token for authenticated calls.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}
