package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/melih/aetherhost/internal/core/domain"
)

type fakeRuntime struct {
	mu         sync.Mutex
	containers map[string]domain.Container
	logs       map[string]string
	started    []domain.ContainerSpec
	execs      []string
	removed    []string
	followed   []string
	startErr   error
	nextID     int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{containers: map[string]domain.Container{}, logs: map[string]string{}}
}

func (f *fakeRuntime) ListContainers(ctx context.Context) ([]domain.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Container, 0, len(f.containers))
	for _, c := range f.containers {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeRuntime) InspectContainer(ctx context.Context, id string) (domain.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return domain.Container{}, fmt.Errorf("%s: %w", id, domain.ErrContainerNotFound)
	}
	return c, nil
}

func (f *fakeRuntime) StartContainer(ctx context.Context, spec domain.ContainerSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	f.nextID++
	id := fmt.Sprintf("c%011d", f.nextID)
	f.started = append(f.started, spec)
	f.containers[id] = domain.Container{ID: id, Name: spec.Name, Image: spec.Image, State: domain.StateRunning, Status: "Up 1 second"}
	return id, nil
}

func (f *fakeRuntime) StopContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, domain.ErrContainerNotFound)
	}
	c.State = "exited"
	f.containers[id] = c
	return nil
}

func (f *fakeRuntime) RemoveContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, id)
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeRuntime) GetContainerLogs(ctx context.Context, id string, tail int) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := strings.Split(f.logs[id], "\n")
	if len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	return io.NopCloser(strings.NewReader(strings.Join(lines, "\n"))), nil
}

func (f *fakeRuntime) FollowContainerLogs(ctx context.Context, id string, tail int) (io.ReadCloser, error) {
	f.mu.Lock()
	if _, ok := f.containers[id]; !ok {
		f.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", id, domain.ErrContainerNotFound)
	}
	f.followed = append(f.followed, id)
	f.mu.Unlock()
	return f.GetContainerLogs(ctx, id, tail)
}

func (f *fakeRuntime) ExecCommand(ctx context.Context, id, command string) (domain.ExecResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, command)
	return domain.ExecResult{Command: command, Output: "ran: " + command + "\n"}, nil
}

func (f *fakeRuntime) set(c domain.Container) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[c.ID] = c
}

type fakeBuilder struct {
	repos []string
	err   error
}

func (b *fakeBuilder) BuildImage(ctx context.Context, repoURL, imageName string) (string, error) {
	b.repos = append(b.repos, repoURL)
	if b.err != nil {
		return "", b.err
	}
	if imageName == "" {
		imageName = "aether-built/app:latest"
	}
	return imageName, nil
}

type fakeRecords struct {
	mu        sync.Mutex
	recs      []domain.ContainerRecord
	recordErr error
}

func (r *fakeRecords) RecordContainer(ctx context.Context, rec domain.ContainerRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recordErr != nil {
		return r.recordErr
	}
	r.recs = append(r.recs, rec)
	return nil
}

func (r *fakeRecords) ListContainers(ctx context.Context, userID uint) ([]domain.ContainerRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ContainerRecord
	for _, rec := range r.recs {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *fakeRecords) GetOwnedContainer(ctx context.Context, userID uint, id string) (domain.ContainerRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.recs {
		if rec.UserID == userID && (rec.ID == id || rec.Name == id) {
			return rec, nil
		}
	}
	return domain.ContainerRecord{}, fmt.Errorf("%s: %w", id, domain.ErrContainerNotFound)
}

func (r *fakeRecords) AllContainers(ctx context.Context) ([]domain.ContainerRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ContainerRecord(nil), r.recs...), nil
}

func (r *fakeRecords) UpdateStatus(ctx context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.recs {
		if r.recs[i].ID == id {
			r.recs[i].Status = status
			return nil
		}
	}
	return errors.New("missing")
}

func (r *fakeRecords) DeleteContainer(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.recs {
		if r.recs[i].ID == id {
			r.recs = append(r.recs[:i], r.recs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *fakeRecords) status(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.recs {
		if rec.ID == id {
			return rec.Status
		}
	}
	return ""
}
