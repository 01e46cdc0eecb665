package ports

import (
	"context"
	"io"

	"github.com/melih/aetherhost/internal/core/domain"
)

// ContainerService defines the core operations for managing containers.
// This interface allows us to switch between Docker, Podman, or Kubernetes
// without changing the business logic.
type ContainerService interface {
	ListContainers(ctx context.Context) ([]domain.Container, error)
	InspectContainer(ctx context.Context, id string) (domain.Container, error)
	StartContainer(ctx context.Context, spec domain.ContainerSpec) (string, error)
	StopContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string) error
	GetContainerLogs(ctx context.Context, id string, tail int) (io.ReadCloser, error)
	FollowContainerLogs(ctx context.Context, id string, tail int) (io.ReadCloser, error)
	ExecCommand(ctx context.Context, id string, command string) (domain.ExecResult, error)
}

// ContainerDirectory is the only source of which containers may have
// terminal sessions opened against them.
type ContainerDirectory interface {
	GetContainer(ctx context.Context, id string) (domain.Container, error)
}
