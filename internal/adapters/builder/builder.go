package builder

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/go-git/go-git/v5"
)

// Adapter builds images from git repositories using the Docker daemon.
type Adapter struct {
	cli      *client.Client
	progress io.Writer
}

// NewBuilderAdapter connects to host, or to the environment's daemon when
// host is empty. Clone and build progress goes to progress; nil discards it.
func NewBuilderAdapter(host string, progress io.Writer) (*Adapter, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if progress == nil {
		progress = io.Discard
	}
	return &Adapter{cli: cli, progress: progress}, nil
}

// BuildImage clones a repo and builds a Docker image
func (a *Adapter) BuildImage(ctx context.Context, repoURL string, imageName string) (string, error) {
	if imageName == "" {
		imageName = ImageNameFromRepo(repoURL)
	}

	tmpDir, err := os.MkdirTemp("", "aether-build-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	log.Printf("[builder] cloning %s into %s", repoURL, tmpDir)
	_, err = git.PlainCloneContext(ctx, tmpDir, false, &git.CloneOptions{
		URL:      repoURL,
		Progress: a.progress,
		Depth:    1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to clone repo: %w", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "Dockerfile")); err != nil {
		return "", fmt.Errorf("repository has no Dockerfile at its root: %w", err)
	}

	tar, err := archive.TarWithOptions(tmpDir, &archive.TarOptions{ExcludePatterns: []string{".git"}})
	if err != nil {
		return "", fmt.Errorf("failed to create build context: %w", err)
	}
	defer tar.Close()

	log.Printf("[builder] building image %s", imageName)
	resp, err := a.cli.ImageBuild(ctx, tar, types.ImageBuildOptions{
		Tags:       []string{imageName},
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build image: %w", err)
	}
	defer resp.Body.Close()

	// The build only finishes once the stream is drained; step errors arrive in it.
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, a.progress, 0, false, nil); err != nil {
		return "", fmt.Errorf("failed to build image: %w", err)
	}

	return imageName, nil
}

// ImageNameFromRepo derives a local image tag from a git URL, for example
// https://github.com/acme/Web-App.git becomes aether-built/web-app:latest.
func ImageNameFromRepo(repoURL string) string {
	name := repoURL
	if u, err := url.Parse(repoURL); err == nil && u.Path != "" {
		name = u.Path
	} else if i := strings.LastIndex(repoURL, ":"); i >= 0 {
		// scp-style: git@host:org/repo.git
		name = repoURL[i+1:]
	}
	name = strings.TrimSuffix(path.Base(strings.TrimRight(name, "/")), ".git")

	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	clean := strings.Trim(b.String(), "-_.")
	if clean == "" {
		clean = "app"
	}
	return "aether-built/" + clean + ":latest"
}
