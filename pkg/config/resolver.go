package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/docker/go-connections/nat"
)

// New validates opts and resolves them into a Config
func New(opts Options) (*Config, error) {
	if err := ValidateOptions(&opts); err != nil {
		return nil, err
	}

	image, err := filepath.Abs(opts.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve image path %s: %w", opts.Image, err)
	}

	port := strconv.Itoa(opts.Port)
	exposed := strconv.Itoa(opts.Exposed)

	bindings, err := PortBindings(exposed, port)
	if err != nil {
		return nil, err
	}

	retries := opts.MaxConflictRetries
	if retries <= 0 {
		retries = DefaultMaxConflictRetries
	}

	return &Config{
		Name:               opts.Name,
		Port:               port,
		Exposed:            exposed,
		Image:              image,
		Env:                FlattenEnv(opts.Envs),
		Ports:              bindings,
		MaxConflictRetries: retries,
	}, nil
}

// FlattenEnv turns an environment map into KEY=VALUE pairs sorted by key.
// A nil or empty map yields an empty, non-nil list.
func FlattenEnv(envs map[string]string) []string {
	keys := make([]string, 0, len(envs))
	for k := range envs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+envs[k])
	}
	return env
}

// PortBindings maps "<exposed>/tcp" to a single binding on hostPort
func PortBindings(exposed, hostPort string) (nat.PortMap, error) {
	port, err := nat.NewPort("tcp", exposed)
	if err != nil {
		return nil, fmt.Errorf("invalid container port %s: %w", exposed, err)
	}

	return nat.PortMap{
		port: []nat.PortBinding{
			{
				HostIP:   "",
				HostPort: hostPort,
			},
		},
	}, nil
}

// Merge overlays the non-zero fields of override on base. Env maps are merged
// key by key, with override winning.
func Merge(base, override Options) Options {
	merged := base

	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Port != 0 {
		merged.Port = override.Port
	}
	if override.Exposed != 0 {
		merged.Exposed = override.Exposed
	}
	if override.Image != "" {
		merged.Image = override.Image
	}
	if override.MaxConflictRetries != 0 {
		merged.MaxConflictRetries = override.MaxConflictRetries
	}

	if len(override.Envs) > 0 {
		envs := make(map[string]string, len(base.Envs)+len(override.Envs))
		for k, v := range base.Envs {
			envs[k] = v
		}
		for k, v := range override.Envs {
			envs[k] = v
		}
		merged.Envs = envs
	}

	return merged
}
