package docker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/go-connections/nat"
)

// Service manages Docker daemon interactions
type Service struct {
	client DockerClient
}

// NewService creates a new Docker service with a real Docker client
func NewService() (*Service, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	return &Service{
		client: cli,
	}, nil
}

// NewServiceWithClient creates a new Docker service with the provided client.
// This constructor is primarily used for testing with mock clients.
func NewServiceWithClient(client DockerClient) *Service {
	return &Service{
		client: client,
	}
}

// Close closes the Docker client connection
func (s *Service) Close() error {
	return s.client.Close()
}

// CheckHealth verifies Docker daemon is accessible and running
func (s *Service) CheckHealth(ctx context.Context) error {
	// Set timeout to prevent hanging
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	ping, err := s.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("docker daemon is not accessible. Please ensure Docker is running and you have proper permissions: %w", err)
	}

	if ping.APIVersion == "" {
		return fmt.Errorf("docker daemon responded but API version is unknown. Please check your Docker installation")
	}

	return nil
}

// ContainerInfo holds information about a container
type ContainerInfo struct {
	ID     string
	Name   string
	Status ContainerStatus
	Image  string
}

// ContainerStatus represents the status of a container
type ContainerStatus string

const (
	StatusRunning  ContainerStatus = "running"
	StatusStopped  ContainerStatus = "stopped"
	StatusCreated  ContainerStatus = "created"
	StatusNotFound ContainerStatus = "not_found"
)

// ContainerSpec defines the specification for creating a container
type ContainerSpec struct {
	Name         string
	Image        string
	Environment  []string
	PortBindings nat.PortMap
}

// BuildImage builds source and tags the result. source is either a Dockerfile,
// whose directory becomes the build context, or a directory containing a
// file named Dockerfile. The build runs while the returned handle is read.
func (s *Service) BuildImage(ctx context.Context, source, tag string) (*BuildHandle, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, newRuntimeError("build", tag, fmt.Errorf("image source %s: %w", source, err))
	}

	contextDir, dockerfile := source, "Dockerfile"
	if !info.IsDir() {
		contextDir, dockerfile = filepath.Dir(source), filepath.Base(source)
	}

	buildContext, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return nil, newRuntimeError("build", tag, fmt.Errorf("failed to create build context: %w", err))
	}

	resp, err := s.client.ImageBuild(ctx, buildContext, build.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: dockerfile,
		Remove:     true, // Remove intermediate containers
	})
	if err != nil {
		_ = buildContext.Close()
		return nil, newRuntimeError("build", tag, err)
	}

	return NewBuildHandle(tag, &multiCloser{
		Reader:  resp.Body,
		closers: []io.Closer{resp.Body, buildContext},
	}), nil
}

// RemoveImage deletes an image by tag or id, untagging it first if needed
func (s *Service) RemoveImage(ctx context.Context, ref string) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	if _, err := s.client.ImageRemove(ctx, ref, image.RemoveOptions{
		Force:         true,
		PruneChildren: true,
	}); err != nil {
		return newRuntimeError("remove image", ref, err)
	}

	return nil
}

// ListContainers returns every container known to the daemon, including stopped ones
func (s *Service) ListContainers(ctx context.Context) ([]ContainerInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	containers, err := s.client.ContainerList(ctx, container.ListOptions{
		All: true, // Include stopped containers
	})
	if err != nil {
		return nil, newRuntimeError("list", "containers", err)
	}

	result := make([]ContainerInfo, 0, len(containers))
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			// Container names have leading slash
			name = strings.TrimPrefix(c.Names[0], "/")
		}

		result = append(result, ContainerInfo{
			ID:     c.ID,
			Name:   name,
			Status: statusFromState(string(c.State)),
			Image:  c.Image,
		})
	}

	return result, nil
}

// StopContainer stops a container by id or name. Stopping a stopped
// container yields a RuntimeError of KindAlreadyStopped.
func (s *Service) StopContainer(ctx context.Context, ref string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	timeout := 10 // Give container 10 seconds to stop gracefully
	if err := s.client.ContainerStop(ctx, ref, container.StopOptions{
		Timeout: &timeout,
	}); err != nil {
		return newRuntimeError("stop", ref, err)
	}

	return nil
}

// RemoveContainer removes a container by id or name
func (s *Service) RemoveContainer(ctx context.Context, ref string) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	if err := s.client.ContainerRemove(ctx, ref, container.RemoveOptions{
		Force: true, // Force removal even if running
	}); err != nil {
		return newRuntimeError("remove", ref, err)
	}

	return nil
}

// CreateContainer creates a new container with the given specifications.
// A taken name yields a RuntimeError of KindConflict whose message names the
// blocking container.
func (s *Service) CreateContainer(ctx context.Context, spec *ContainerSpec) (ContainerInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	exposedPorts := nat.PortSet{}
	for port := range spec.PortBindings {
		exposedPorts[port] = struct{}{}
	}

	containerConfig := &container.Config{
		Image:        spec.Image,
		Env:          spec.Environment,
		ExposedPorts: exposedPorts,
	}

	hostConfig := &container.HostConfig{
		PortBindings: spec.PortBindings,
	}

	resp, err := s.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, spec.Name)
	if err != nil {
		return ContainerInfo{}, newRuntimeError("create", spec.Name, err)
	}

	return ContainerInfo{
		ID:     resp.ID,
		Name:   spec.Name,
		Status: StatusCreated,
		Image:  spec.Image,
	}, nil
}

// StartContainer starts a created or stopped container
func (s *Service) StartContainer(ctx context.Context, ref string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.client.ContainerStart(ctx, ref, container.StartOptions{}); err != nil {
		return newRuntimeError("start", ref, err)
	}

	return nil
}

// AttachContainer opens a stream of the container's combined stdout and stderr.
// The stream stays open until the container exits or it is closed.
func (s *Service) AttachContainer(ctx context.Context, ref string) (*AttachStream, error) {
	resp, err := s.client.ContainerAttach(ctx, ref, container.AttachOptions{
		Stream: true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, newRuntimeError("attach", ref, err)
	}

	// Containers are created without a TTY, so the output is multiplexed.
	return NewAttachStream(resp.Reader, closerFunc(resp.Close), true), nil
}

func statusFromState(state string) ContainerStatus {
	switch state {
	case "running":
		return StatusRunning
	case "exited", "stopped":
		return StatusStopped
	case "created":
		return StatusCreated
	default:
		return StatusNotFound
	}
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}

type multiCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiCloser) Close() error {
	var first error
	for _, c := range m.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
