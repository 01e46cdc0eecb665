package apiclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/melih/aetherhost/internal/core/domain"
	"github.com/melih/aetherhost/internal/core/ports"
)

// Directory resolves container IDs through GET /compute/list.
type Directory struct {
	client *Client
	tokens ports.TokenProvider
}

// NewDirectory creates a directory backed by the API.
func NewDirectory(client *Client, tokens ports.TokenProvider) *Directory {
	return &Directory{client: client, tokens: tokens}
}

// GetContainer finds the container whose ID or name matches id. Short IDs
// match as prefixes of the full ID.
func (d *Directory) GetContainer(ctx context.Context, id string) (domain.Container, error) {
	token, err := d.tokens.Token(ctx)
	if err != nil {
		return domain.Container{}, err
	}
	containers, err := d.client.ListContainers(ctx, token)
	if err != nil {
		return domain.Container{}, fmt.Errorf("list containers: %w", err)
	}
	for _, c := range containers {
		if c.ID == id || c.Name == id || (len(id) >= 4 && strings.HasPrefix(c.ID, id)) {
			return c, nil
		}
	}
	return domain.Container{}, fmt.Errorf("%s: %w", id, domain.ErrContainerNotFound)
}
