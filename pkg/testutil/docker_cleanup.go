package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dyluth/dbuilder/pkg/docker"
)

// CleanupTestContainers force-removes every container whose name or image
// starts with prefix, then the images tagged with the removed containers'
// names. A missing daemon is not an error.
func CleanupTestContainers(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("cleanup prefix cannot be empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	dockerService, err := docker.NewService()
	if err != nil {
		return fmt.Errorf("failed to initialize Docker service: %w", err)
	}
	defer func() { _ = dockerService.Close() }()

	if err := dockerService.CheckHealth(ctx); err != nil {
		return nil
	}

	containers, err := dockerService.ListContainers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}

	images := map[string]bool{}
	for _, c := range containers {
		if !strings.HasPrefix(c.Name, prefix) && !strings.HasPrefix(c.Image, prefix) {
			continue
		}
		fmt.Fprintf(os.Stderr, "Cleaning container %s (status: %s)\n", c.Name, c.Status)
		if err := dockerService.RemoveContainer(ctx, c.ID); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to cleanup container %s: %v\n", c.Name, err)
		}
		if strings.HasPrefix(c.Name, prefix) {
			images[c.Name] = true
		}
	}

	for name := range images {
		if err := RemoveTestImage(ctx, dockerService, name); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to cleanup image %s: %v\n", name, err)
		}
	}

	return nil
}

// RemoveTestImage deletes the image tagged name. An image that is already
// gone counts as removed.
func RemoveTestImage(ctx context.Context, dockerService *docker.Service, name string) error {
	if err := dockerService.RemoveImage(ctx, name); err != nil && docker.KindOf(err) != docker.KindNotFound {
		return err
	}
	return nil
}
