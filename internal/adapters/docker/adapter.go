package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/melih/aetherhost/internal/core/domain"
)

const (
	// LabelManagedBy marks containers launched by this service.
	LabelManagedBy = "managed-by"
	managedByValue = "aetherhost"

	stopTimeoutSeconds = 10
)

// Adapter implements ports.ContainerService using Docker SDK
type Adapter struct {
	cli *client.Client
}

// NewAdapter creates a new Docker adapter instance. An empty host uses the
// environment (DOCKER_HOST or the local socket).
func NewAdapter(host string) (*Adapter, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Adapter{cli: cli}, nil
}

// Ping checks that the daemon is reachable.
func (a *Adapter) Ping(ctx context.Context) error {
	if _, err := a.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker ping: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (a *Adapter) Close() error {
	return a.cli.Close()
}

// ListContainers returns every container this service manages, running or not.
func (a *Adapter) ListContainers(ctx context.Context) ([]domain.Container, error) {
	containers, err := a.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", LabelManagedBy+"="+managedByValue)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	result := make([]domain.Container, 0, len(containers))
	for _, c := range containers {
		result = append(result, summaryToDomain(c))
	}
	return result, nil
}

// InspectContainer returns the current view of one container.
func (a *Adapter) InspectContainer(ctx context.Context, id string) (domain.Container, error) {
	info, err := a.cli.ContainerInspect(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return domain.Container{}, fmt.Errorf("%s: %w", id, domain.ErrContainerNotFound)
		}
		return domain.Container{}, fmt.Errorf("failed to inspect container: %w", err)
	}
	return inspectToDomain(info), nil
}

// StartContainer pulls the image when it is missing, then creates and starts
// a container from spec with every exposed port published.
func (a *Adapter) StartContainer(ctx context.Context, spec domain.ContainerSpec) (string, error) {
	if err := a.ensureImage(ctx, spec.Image); err != nil {
		return "", err
	}

	labels := map[string]string{LabelManagedBy: managedByValue}
	for k, v := range spec.Labels {
		labels[k] = v
	}

	resp, err := a.cli.ContainerCreate(ctx, &container.Config{
		Image:  spec.Image,
		Cmd:    spec.Command,
		Labels: labels,
	}, &container.HostConfig{
		NetworkMode:     "bridge",
		PublishAllPorts: true,
	}, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := a.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}
	log.Printf("[docker] started container %s (%s) from %s", shortID(resp.ID), spec.Name, spec.Image)
	return shortID(resp.ID), nil
}

func (a *Adapter) ensureImage(ctx context.Context, image string) error {
	if _, _, err := a.cli.ImageInspectWithRaw(ctx, image); err == nil {
		return nil
	}
	reader, err := a.cli.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()
	if err := jsonmessage.DisplayJSONMessagesStream(reader, io.Discard, 0, false, nil); err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	return nil
}

// StopContainer stops a running container
func (a *Adapter) StopContainer(ctx context.Context, id string) error {
	timeout := stopTimeoutSeconds
	ctx, cancel := context.WithTimeout(ctx, (stopTimeoutSeconds+5)*time.Second)
	defer cancel()
	if err := a.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		if client.IsErrNotFound(err) {
			return fmt.Errorf("%s: %w", id, domain.ErrContainerNotFound)
		}
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

// RemoveContainer deletes a container and its anonymous volumes.
func (a *Adapter) RemoveContainer(ctx context.Context, id string) error {
	err := a.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// GetContainerLogs returns the last tail lines of stdout and stderr,
// demultiplexed into plain text.
func (a *Adapter) GetContainerLogs(ctx context.Context, id string, tail int) (io.ReadCloser, error) {
	return a.containerLogs(ctx, id, tail, false)
}

// FollowContainerLogs is GetContainerLogs that keeps streaming new output
// until the container stops, ctx is cancelled or the reader is closed.
func (a *Adapter) FollowContainerLogs(ctx context.Context, id string, tail int) (io.ReadCloser, error) {
	return a.containerLogs(ctx, id, tail, true)
}

func (a *Adapter) containerLogs(ctx context.Context, id string, tail int, follow bool) (io.ReadCloser, error) {
	options := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
		Tail:       strconv.Itoa(tail),
	}
	raw, err := a.cli.ContainerLogs(ctx, id, options)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, fmt.Errorf("%s: %w", id, domain.ErrContainerNotFound)
		}
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}

	pr, pw := io.Pipe()
	go func() {
		defer raw.Close()
		_, err := stdcopy.StdCopy(pw, pw, raw)
		pw.CloseWithError(err)
	}()
	return pr, nil
}

// ExecCommand runs command through /bin/sh -c inside the container and
// returns stdout and stderr combined in arrival order.
func (a *Adapter) ExecCommand(ctx context.Context, id string, command string) (domain.ExecResult, error) {
	execID, err := a.cli.ContainerExecCreate(ctx, id, types.ExecConfig{
		Cmd:          []string{"/bin/sh", "-c", command},
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		if client.IsErrNotFound(err) {
			return domain.ExecResult{}, fmt.Errorf("%s: %w", id, domain.ErrContainerNotFound)
		}
		return domain.ExecResult{}, fmt.Errorf("exec create: %w", err)
	}

	resp, err := a.cli.ContainerExecAttach(ctx, execID.ID, types.ExecStartCheck{})
	if err != nil {
		return domain.ExecResult{}, fmt.Errorf("exec attach: %w", err)
	}
	defer resp.Close()

	var output bytes.Buffer
	if _, err := stdcopy.StdCopy(&output, &output, resp.Reader); err != nil {
		return domain.ExecResult{}, fmt.Errorf("read exec output: %w", err)
	}

	inspect, err := a.cli.ContainerExecInspect(ctx, execID.ID)
	if err != nil {
		return domain.ExecResult{}, fmt.Errorf("exec inspect: %w", err)
	}

	return domain.ExecResult{
		Command:  command,
		Output:   output.String(),
		ExitCode: inspect.ExitCode,
	}, nil
}

func summaryToDomain(c types.Container) domain.Container {
	// Use the first name if available, remove slash
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}

	var ip string
	if c.NetworkSettings != nil {
		ip = firstIP(c.NetworkSettings.Networks)
	}

	return domain.Container{
		ID:        shortID(c.ID),
		Name:      name,
		Image:     c.Image,
		Status:    c.Status,
		State:     c.State,
		Port:      publicPort(c.Ports),
		IPAddress: ip,
	}
}

func inspectToDomain(info types.ContainerJSON) domain.Container {
	out := domain.Container{
		ID:   shortID(info.ID),
		Name: strings.TrimPrefix(info.Name, "/"),
	}
	if info.Config != nil {
		out.Image = info.Config.Image
	}
	if info.State != nil {
		out.State = info.State.Status
		out.Status = info.State.Status
	}
	if info.NetworkSettings != nil {
		out.IPAddress = firstIP(info.NetworkSettings.Networks)
	}
	return out
}

func firstIP(networks map[string]*network.EndpointSettings) string {
	names := make([]string, 0, len(networks))
	for name := range networks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if ep := networks[name]; ep != nil && ep.IPAddress != "" {
			return ep.IPAddress
		}
	}
	return ""
}

func publicPort(ports []types.Port) string {
	for _, p := range ports {
		if p.PublicPort != 0 {
			return strconv.Itoa(int(p.PublicPort))
		}
	}
	return ""
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
