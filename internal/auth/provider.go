package auth

import (
	"context"
	"fmt"

	"github.com/melih/aetherhost/internal/core/domain"
)

// StaticToken is a TokenProvider holding one token, such as the token a
// WebSocket client connected with or the one saved in a CLI profile.
type StaticToken string

// Token returns the token, or domain.ErrAuth when it is empty.
func (t StaticToken) Token(_ context.Context) (string, error) {
	if t == "" {
		return "", fmt.Errorf("no bearer token: %w", domain.ErrAuth)
	}
	return string(t), nil
}

// TokenFunc adapts a function to a TokenProvider.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}
