package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/melih/aetherhost/internal/core/domain"
	"github.com/melih/aetherhost/internal/core/ports"
	"github.com/melih/aetherhost/internal/logutil"
)

var tracer = otel.Tracer("github.com/melih/aetherhost/internal/core/services")

const (
	// DefaultLogTail is how many log lines GetLogs returns.
	DefaultLogTail = 50
	// LabelOwner carries the owner's email on every launched container.
	LabelOwner = "aether.owner"
)

// DefaultKeepAlive keeps an image without a long-running entrypoint alive so
// commands can be executed inside it.
var DefaultKeepAlive = []string{"sleep", "infinity"}

// ComputeOptions tunes a ComputeService.
type ComputeOptions struct {
	KeepAlive []string
	LogTail   int
}

// ComputeService is the per-user view of the container runtime: every
// operation is checked against the ownership records first.
type ComputeService struct {
	runtime ports.ContainerService
	builder ports.ImageBuilder
	records ports.ContainerRepository
	opts    ComputeOptions
}

// NewComputeService wires the runtime, the image builder and the ownership store.
func NewComputeService(runtime ports.ContainerService, builder ports.ImageBuilder, records ports.ContainerRepository, opts ComputeOptions) *ComputeService {
	if len(opts.KeepAlive) == 0 {
		opts.KeepAlive = DefaultKeepAlive
	}
	if opts.LogTail <= 0 {
		opts.LogTail = DefaultLogTail
	}
	return &ComputeService{runtime: runtime, builder: builder, records: records, opts: opts}
}

// CreateRequest asks for a container from an image, or from a git repository
// that is built first.
type CreateRequest struct {
	Image   string
	RepoURL string
}

// List returns the user's containers with their live runtime state. Recorded
// containers the runtime no longer knows keep their stored status.
func (s *ComputeService) List(ctx context.Context, user domain.User) ([]domain.Container, error) {
	recs, err := s.records.ListContainers(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	live, err := s.runtime.ListContainers(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Container, len(live))
	for _, c := range live {
		byID[c.ID] = c
	}

	out := make([]domain.Container, 0, len(recs))
	for _, rec := range recs {
		if c, ok := byID[rec.ID]; ok {
			out = append(out, c)
			continue
		}
		out = append(out, domain.Container{
			ID:     rec.ID,
			Name:   rec.Name,
			Image:  rec.Image,
			Status: rec.Status,
			State:  rec.Status,
		})
	}
	return out, nil
}

// Create launches a container for user and records its ownership.
func (s *ComputeService) Create(ctx context.Context, user domain.User, req CreateRequest) (domain.Container, error) {
	image := strings.TrimSpace(req.Image)
	if req.RepoURL != "" {
		built, err := s.builder.BuildImage(ctx, req.RepoURL, image)
		if err != nil {
			return domain.Container{}, fmt.Errorf("build failed: %w", err)
		}
		image = built
	}
	if image == "" {
		return domain.Container{}, domain.ErrImageRequired
	}

	name := ContainerName(user.Email, image, uuid.NewString())
	id, err := s.runtime.StartContainer(ctx, domain.ContainerSpec{
		Image:   image,
		Name:    name,
		Command: s.opts.KeepAlive,
		Labels:  map[string]string{LabelOwner: user.Email},
	})
	if err != nil {
		return domain.Container{}, err
	}

	if err := s.records.RecordContainer(ctx, domain.ContainerRecord{
		ID:     id,
		UserID: user.ID,
		Name:   name,
		Image:  image,
		Status: domain.StateRunning,
	}); err != nil {
		// Nothing would ever clean up an unowned container.
		if rmErr := s.runtime.RemoveContainer(ctx, id); rmErr != nil {
			log.Printf("[compute] failed to remove unrecorded container %s: %v", id, rmErr)
		}
		return domain.Container{}, err
	}

	log.Printf("[compute] user %d launched %s (%s) from %s", user.ID, id, name, logutil.SanitizeForLog(image))
	return domain.Container{
		ID:     id,
		Name:   name,
		Image:  image,
		Status: domain.StateRunning,
		State:  domain.StateRunning,
	}, nil
}

// Stop stops and removes one of the user's containers and forgets it.
func (s *ComputeService) Stop(ctx context.Context, user domain.User, id string) error {
	rec, err := s.records.GetOwnedContainer(ctx, user.ID, id)
	if err != nil {
		return err
	}
	if err := s.runtime.StopContainer(ctx, rec.ID); err != nil && !isNotFound(err) {
		return err
	}
	if err := s.runtime.RemoveContainer(ctx, rec.ID); err != nil {
		return err
	}
	if err := s.records.DeleteContainer(ctx, rec.ID); err != nil {
		return err
	}
	log.Printf("[compute] user %d stopped %s", user.ID, rec.ID)
	return nil
}

// GetLogs returns the last lines of one of the user's containers.
func (s *ComputeService) GetLogs(ctx context.Context, user domain.User, id string) (domain.ContainerLogs, error) {
	rec, err := s.records.GetOwnedContainer(ctx, user.ID, id)
	if err != nil {
		return domain.ContainerLogs{}, err
	}
	rc, err := s.runtime.GetContainerLogs(ctx, rec.ID, s.opts.LogTail)
	if err != nil {
		return domain.ContainerLogs{}, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return domain.ContainerLogs{}, fmt.Errorf("read logs: %w", err)
	}
	return domain.ContainerLogs{ID: rec.ID, Name: rec.Name, Logs: string(data)}, nil
}

// StreamLogs follows the output of one of the user's containers, starting
// with the last LogTail lines. The caller closes the reader.
func (s *ComputeService) StreamLogs(ctx context.Context, user domain.User, id string) (io.ReadCloser, error) {
	rec, err := s.records.GetOwnedContainer(ctx, user.ID, id)
	if err != nil {
		return nil, err
	}
	return s.runtime.FollowContainerLogs(ctx, rec.ID, s.opts.LogTail)
}

// Exec runs command inside one of the user's running containers.
func (s *ComputeService) Exec(ctx context.Context, user domain.User, id, command string) (domain.ExecResult, error) {
	if strings.TrimSpace(command) == "" {
		return domain.ExecResult{}, domain.ErrEmptyCommand
	}
	rec, err := s.records.GetOwnedContainer(ctx, user.ID, id)
	if err != nil {
		return domain.ExecResult{}, err
	}

	ctx, span := tracer.Start(ctx, "compute.exec", trace.WithAttributes(
		attribute.String("container.id", rec.ID),
		attribute.Int("command.length", len(command)),
	))
	defer span.End()

	c, err := s.runtime.InspectContainer(ctx, rec.ID)
	if err != nil {
		span.RecordError(err)
		return domain.ExecResult{}, err
	}
	if !c.IsRunning() {
		span.SetStatus(codes.Error, "not running")
		return domain.ExecResult{}, fmt.Errorf("%s: %w", rec.ID, domain.ErrContainerNotRunning)
	}

	res, err := s.runtime.ExecCommand(ctx, rec.ID, command)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Printf("[compute] exec in %s failed: %v", rec.ID, err)
		return domain.ExecResult{}, err
	}
	span.SetAttributes(attribute.Int("exec.exit_code", res.ExitCode))
	return res, nil
}

// Directory returns the container directory as seen by user, for gating
// terminal sessions.
func (s *ComputeService) Directory(user domain.User) ports.ContainerDirectory {
	return userDirectory{svc: s, user: user}
}

type userDirectory struct {
	svc  *ComputeService
	user domain.User
}

func (d userDirectory) GetContainer(ctx context.Context, id string) (domain.Container, error) {
	rec, err := d.svc.records.GetOwnedContainer(ctx, d.user.ID, id)
	if err != nil {
		return domain.Container{}, err
	}
	c, err := d.svc.runtime.InspectContainer(ctx, rec.ID)
	if err != nil {
		return domain.Container{}, err
	}
	if c.Name == "" {
		c.Name = rec.Name
	}
	return c, nil
}

// ContainerName builds the runtime name for a user's container:
// aether_<email local part>_<image>_<first 8 chars of suffix>.
func ContainerName(email, image, suffix string) string {
	local, _, _ := strings.Cut(email, "@")
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return "aether_" + nameSafe(local) + "_" + nameSafe(image) + "_" + nameSafe(suffix)
}

// nameSafe maps s onto the characters Docker accepts in container names.
func nameSafe(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "x"
	}
	return b.String()
}
