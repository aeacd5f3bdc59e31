package config

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/docker/go-connections/nat"
)

func TestNew(t *testing.T) {
	config, err := New(Options{
		Name:    "test",
		Port:    3306,
		Exposed: 5432,
		Envs:    map[string]string{"test": "1"},
		Image:   "./test/fixtures/psql.Dockerfile",
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if config.Name != "test" {
		t.Errorf("Expected name 'test', got '%s'", config.Name)
	}
	if config.Port != "3306" {
		t.Errorf("Expected port '3306', got '%s'", config.Port)
	}
	if config.Exposed != "5432" {
		t.Errorf("Expected exposed '5432', got '%s'", config.Exposed)
	}
	if !filepath.IsAbs(config.Image) || !strings.HasSuffix(config.Image, filepath.Join("fixtures", "psql.Dockerfile")) {
		t.Errorf("Expected absolute image path ending in fixtures/psql.Dockerfile, got '%s'", config.Image)
	}
	if !reflect.DeepEqual(config.Env, []string{"test=1"}) {
		t.Errorf("Expected env [test=1], got %v", config.Env)
	}

	expectedPorts := nat.PortMap{"5432/tcp": []nat.PortBinding{{HostPort: "3306"}}}
	if !reflect.DeepEqual(config.Ports, expectedPorts) {
		t.Errorf("Expected ports %v, got %v", expectedPorts, config.Ports)
	}
	if config.MaxConflictRetries != DefaultMaxConflictRetries {
		t.Errorf("Expected default retries %d, got %d", DefaultMaxConflictRetries, config.MaxConflictRetries)
	}
}

func TestNew_PortBindingHasSingleKey(t *testing.T) {
	testCases := []struct {
		port, exposed int
	}{
		{8080, 80},
		{1, 65535},
		{3000, 3000},
	}

	for _, tc := range testCases {
		config, err := New(Options{Name: "svc", Port: tc.port, Exposed: tc.exposed, Image: "Dockerfile"})
		if err != nil {
			t.Fatalf("Expected no error for %d:%d, got: %v", tc.port, tc.exposed, err)
		}

		if len(config.Ports) != 1 {
			t.Fatalf("Expected exactly one binding key, got %d", len(config.Ports))
		}
		key := nat.Port(config.Exposed + "/tcp")
		bindings, ok := config.Ports[key]
		if !ok {
			t.Fatalf("Expected binding key %s, got %v", key, config.Ports)
		}
		if len(bindings) != 1 || bindings[0].HostPort != config.Port {
			t.Errorf("Expected single binding to host port %s, got %v", config.Port, bindings)
		}
	}
}

func TestFlattenEnv(t *testing.T) {
	testCases := []struct {
		name     string
		envs     map[string]string
		expected []string
	}{
		{name: "nil map", envs: nil, expected: []string{}},
		{name: "empty map", envs: map[string]string{}, expected: []string{}},
		{name: "two entries", envs: map[string]string{"b": "2", "a": "1"}, expected: []string{"a=1", "b=2"}},
		{name: "values are not encoded", envs: map[string]string{"URL": "http://x/?a=b c"}, expected: []string{"URL=http://x/?a=b c"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := FlattenEnv(tc.envs)
			if env == nil {
				t.Fatal("Expected non-nil env list")
			}
			if !reflect.DeepEqual(env, tc.expected) {
				t.Errorf("Expected %v, got %v", tc.expected, env)
			}
		})
	}
}

func TestContainerSpec_UsesNameAsImage(t *testing.T) {
	config, err := New(Options{Name: "svc", Port: 8080, Exposed: 80, Image: "./Dockerfile"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	spec := config.ContainerSpec()
	if spec.Name != "svc" || spec.Image != "svc" {
		t.Errorf("Expected name and image 'svc', got name '%s' image '%s'", spec.Name, spec.Image)
	}
	if spec.Environment == nil {
		t.Error("Expected non-nil environment")
	}
	if !reflect.DeepEqual(spec.PortBindings, config.Ports) {
		t.Errorf("Expected port bindings %v, got %v", config.Ports, spec.PortBindings)
	}
}

func TestMerge(t *testing.T) {
	base := Options{
		Name:    "from-file",
		Port:    8080,
		Exposed: 80,
		Image:   "/srv/Dockerfile",
		Envs:    map[string]string{"A": "1", "B": "2"},
	}
	override := Options{
		Port: 9090,
		Envs: map[string]string{"B": "override", "C": "3"},
	}

	merged := Merge(base, override)

	expected := Options{
		Name:    "from-file",
		Port:    9090,
		Exposed: 80,
		Image:   "/srv/Dockerfile",
		Envs:    map[string]string{"A": "1", "B": "override", "C": "3"},
	}
	if !reflect.DeepEqual(merged, expected) {
		t.Errorf("Expected %+v, got %+v", expected, merged)
	}

	if base.Envs["B"] != "2" {
		t.Error("Merge must not modify the base env map")
	}
}
