package http

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/melih/aetherhost/internal/core/domain"
	"github.com/melih/aetherhost/internal/core/ports"
	"github.com/melih/aetherhost/internal/core/services"
)

// ComputeService is the per-user container API the handlers expose.
type ComputeService interface {
	List(ctx context.Context, user domain.User) ([]domain.Container, error)
	Create(ctx context.Context, user domain.User, req services.CreateRequest) (domain.Container, error)
	Stop(ctx context.Context, user domain.User, id string) error
	GetLogs(ctx context.Context, user domain.User, id string) (domain.ContainerLogs, error)
	StreamLogs(ctx context.Context, user domain.User, id string) (io.ReadCloser, error)
	Exec(ctx context.Context, user domain.User, id, command string) (domain.ExecResult, error)
	Directory(user domain.User) ports.ContainerDirectory
}

type ContainerHandler struct {
	service ComputeService
}

func NewContainerHandler(service ComputeService) *ContainerHandler {
	return &ContainerHandler{service: service}
}

func (h *ContainerHandler) ListContainers(c *fiber.Ctx) error {
	containers, err := h.service.List(c.UserContext(), currentUser(c))
	if err != nil {
		return sendError(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(containers)
}

type StartContainerRequest struct {
	Image   string `json:"image" query:"image"`
	RepoURL string `json:"repo_url" query:"repo_url"`
}

// StartContainer accepts the image either as ?image= or in a JSON body.
// With repo_url the image is built from the repository first.
func (h *ContainerHandler) StartContainer(c *fiber.Ctx) error {
	var req StartContainerRequest
	if err := c.QueryParser(&req); err != nil {
		return sendError(c, fiber.StatusBadRequest, "Invalid query parameters")
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return sendError(c, fiber.StatusBadRequest, "Invalid request body")
		}
	}

	container, err := h.service.Create(c.UserContext(), currentUser(c), services.CreateRequest{
		Image:   req.Image,
		RepoURL: req.RepoURL,
	})
	if err != nil {
		status := statusFor(err)
		if status == fiber.StatusInternalServerError {
			return sendError(c, status, "Failed to start container: "+err.Error())
		}
		return sendError(c, status, err.Error())
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status":  "success",
		"message": fmt.Sprintf("Container %s launched successfully.", container.Name),
		"id":      container.ID,
		"name":    container.Name,
		"image":   container.Image,
		"state":   container.State,
	})
}

func (h *ContainerHandler) StopContainer(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return sendError(c, fiber.StatusBadRequest, "Container ID is required")
	}

	if err := h.service.Stop(c.UserContext(), currentUser(c), id); err != nil {
		if errors.Is(err, domain.ErrContainerNotFound) {
			return sendError(c, fiber.StatusNotFound, "Container not found")
		}
		return sendError(c, fiber.StatusBadRequest, "Failed to stop container: "+err.Error())
	}

	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("Container %s stopped and removed.", id),
	})
}

func (h *ContainerHandler) GetContainerLogs(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return sendError(c, fiber.StatusBadRequest, "Container ID is required")
	}

	logs, err := h.service.GetLogs(c.UserContext(), currentUser(c), id)
	if err != nil {
		if errors.Is(err, domain.ErrContainerNotFound) {
			return sendError(c, fiber.StatusNotFound, "Container not found")
		}
		return sendError(c, fiber.StatusBadRequest, "Failed to get logs: "+err.Error())
	}
	return c.JSON(logs)
}

type ExecRequest struct {
	Command string `json:"command"`
}

func (h *ContainerHandler) ExecCommand(c *fiber.Ctx) error {
	id := c.Params("id")
	var req ExecRequest
	if err := c.BodyParser(&req); err != nil {
		return sendError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	res, err := h.service.Exec(c.UserContext(), currentUser(c), id, req.Command)
	switch {
	case err == nil:
		return c.JSON(res)
	case errors.Is(err, domain.ErrContainerNotFound):
		return sendError(c, fiber.StatusNotFound, "Container not found")
	case errors.Is(err, domain.ErrContainerNotRunning):
		return sendError(c, fiber.StatusBadRequest, "Container is not running.")
	case errors.Is(err, domain.ErrEmptyCommand):
		return sendError(c, fiber.StatusBadRequest, "Command is required")
	default:
		return sendError(c, fiber.StatusBadRequest, "Execution failed: "+err.Error())
	}
}
