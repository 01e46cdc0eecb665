package ports

import (
	"context"

	"github.com/melih/aetherhost/internal/core/domain"
)

// UserRepository persists accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user domain.User, passwordHash string) (domain.User, error)
	// GetUserByEmail returns the user and its password hash.
	GetUserByEmail(ctx context.Context, email string) (domain.User, string, error)
}

// ContainerRepository persists which user owns which container.
type ContainerRepository interface {
	RecordContainer(ctx context.Context, rec domain.ContainerRecord) error
	ListContainers(ctx context.Context, userID uint) ([]domain.ContainerRecord, error)
	GetOwnedContainer(ctx context.Context, userID uint, id string) (domain.ContainerRecord, error)
	AllContainers(ctx context.Context) ([]domain.ContainerRecord, error)
	UpdateStatus(ctx context.Context, id, status string) error
	DeleteContainer(ctx context.Context, id string) error
}
