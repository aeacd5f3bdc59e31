package config

import (
	"github.com/docker/go-connections/nat"

	"github.com/dyluth/dbuilder/pkg/docker"
)

// DefaultMaxConflictRetries bounds how many name conflicts a single run
// resolves before giving up
const DefaultMaxConflictRetries = 5

// Options is the user-facing configuration, as read from a config file or flags
type Options struct {
	Name               string            `yaml:"name" json:"name"`                                                 // image tag and container name
	Port               int               `yaml:"port" json:"port"`                                                 // host port
	Exposed            int               `yaml:"exposed" json:"exposed"`                                           // container port, should match EXPOSE
	Image              string            `yaml:"image" json:"image"`                                               // Dockerfile or build context directory
	Envs               map[string]string `yaml:"envs,omitempty" json:"envs,omitempty"`                             // container environment
	MaxConflictRetries int               `yaml:"maxConflictRetries,omitempty" json:"maxConflictRetries,omitempty"` // 0 means DefaultMaxConflictRetries
}

// Config is the resolved, immutable configuration of one orchestrator.
// Build it with New.
type Config struct {
	// Name is used both as the image tag and as the container name
	Name string
	// Port is the host port
	Port string
	// Exposed is the container-internal port
	Exposed string
	// Image is the absolute path of the Dockerfile or build context
	Image string
	// Env holds KEY=VALUE pairs; never nil
	Env []string
	// Ports has exactly one entry, "<Exposed>/tcp", bound to Port
	Ports nat.PortMap
	// MaxConflictRetries bounds conflict resolution during a run
	MaxConflictRetries int
}

// ContainerSpec returns the creation request for this configuration
func (c *Config) ContainerSpec() *docker.ContainerSpec {
	return &docker.ContainerSpec{
		Name:         c.Name,
		Image:        c.Name,
		Environment:  c.Env,
		PortBindings: c.Ports,
	}
}
