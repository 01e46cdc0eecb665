package ports

import "context"

// ImageBuilder turns a git repository into a runnable image for
// compute create requests that carry a repo_url instead of an image.
type ImageBuilder interface {
	// BuildImage shallow-clones repoURL, builds the Dockerfile at its root
	// and tags the result as imageName. It returns the built image ID.
	BuildImage(ctx context.Context, repoURL, imageName string) (string, error)
}
