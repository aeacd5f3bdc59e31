package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/dyluth/dbuilder/pkg/config"
	"github.com/dyluth/dbuilder/pkg/orchestrator"
	"github.com/dyluth/dbuilder/pkg/testutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "dbuilder version dev") {
		t.Errorf("Unexpected version output: %q", out)
	}
}

func TestCompletionCommand(t *testing.T) {
	out, err := execute(t, "completion", "bash")
	if err != nil {
		t.Fatalf("completion failed: %v", err)
	}
	if !strings.Contains(out, "dbuilder") {
		t.Error("Expected the completion script to mention dbuilder")
	}

	if _, err := execute(t, "completion", "powershell"); err == nil {
		t.Error("Expected an error for an unsupported shell")
	}
}

func TestConfigSetAndShow(t *testing.T) {
	dir := testutil.WithWorkspace(t)
	testutil.WriteDockerfile(t, dir)

	for _, kv := range [][2]string{
		{"name", "api"},
		{"port", "8080"},
		{"exposed", "80"},
		{"image", "Dockerfile"},
		{"envs.DEBUG", "1"},
	} {
		out, err := execute(t, "config", "set", kv[0], kv[1])
		if err != nil {
			t.Fatalf("config set %s failed: %v", kv[0], err)
		}
		if out != "Set "+kv[0]+" = "+kv[1]+"\n" {
			t.Errorf("Unexpected output %q", out)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, defaultConfigFile)); err != nil {
		t.Fatalf("Expected %s to be created: %v", defaultConfigFile, err)
	}

	out, err := execute(t, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	for _, want := range []string{
		"name: api",
		`port: "8080"`,
		`exposed: "80"`,
		"image: " + filepath.Join(dir, "Dockerfile"),
		"DEBUG=1",
		"maxConflictRetries: 5",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
}

func TestConfigSet_InvalidValue(t *testing.T) {
	testutil.WithWorkspace(t)

	if _, err := execute(t, "config", "set", "port", "http"); err == nil {
		t.Error("Expected an error for a non-numeric port")
	}
	if _, err := execute(t, "config", "set", "colour", "blue"); err == nil {
		t.Error("Expected an error for an unknown key")
	}
}

func TestConfigSet_ExplicitJSONFile(t *testing.T) {
	dir := testutil.WithWorkspace(t)
	path := testutil.WriteFile(t, dir, "custom.json", "{\n  // service name\n  \"name\": \"old\",\n}\n")

	if _, err := execute(t, "--config", path, "config", "set", "name", "new"); err != nil {
		t.Fatalf("config set failed: %v", err)
	}

	opts, err := config.LoadOptions(path)
	if err != nil {
		t.Fatalf("Failed to reload %s: %v", path, err)
	}
	if opts.Name != "new" {
		t.Errorf("Expected name 'new', got %q", opts.Name)
	}
}

func TestResolveOptions_FlagsOverrideFile(t *testing.T) {
	dir := testutil.WithWorkspace(t)
	testutil.WriteDockerfile(t, dir)
	testutil.WriteFile(t, dir, "dbuilder.yml", `name: api
port: 8080
exposed: 80
image: Dockerfile
envs:
  A: "1"
  B: "1"
`)

	cmd := newUpCmd()
	if err := cmd.Flags().Parse([]string{"--port", "9090", "-e", "B=2", "--env", "C=3"}); err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}

	opts, err := resolveOptions(cmd)
	if err != nil {
		t.Fatalf("resolveOptions failed: %v", err)
	}

	if opts.Name != "api" || opts.Exposed != 80 {
		t.Errorf("Expected file values to be kept, got %+v", opts)
	}
	if opts.Port != 9090 {
		t.Errorf("Expected port 9090 from flags, got %d", opts.Port)
	}
	if opts.Image != filepath.Join(dir, "Dockerfile") {
		t.Errorf("Expected image relative to the config file, got %s", opts.Image)
	}
	expectedEnv := map[string]string{"A": "1", "B": "2", "C": "3"}
	if !reflect.DeepEqual(opts.Envs, expectedEnv) {
		t.Errorf("Expected envs %v, got %v", expectedEnv, opts.Envs)
	}
}

func TestResolveOptions_NoConfigFile(t *testing.T) {
	testutil.WithWorkspace(t)

	cmd := newRunCmd()
	if err := cmd.Flags().Parse([]string{"--name", "api", "--image", "Dockerfile"}); err != nil {
		t.Fatal(err)
	}

	opts, err := resolveOptions(cmd)
	if err != nil {
		t.Fatalf("resolveOptions failed: %v", err)
	}
	if opts.Name != "api" || opts.Image != "Dockerfile" || opts.Port != 0 || opts.Envs != nil {
		t.Errorf("Unexpected options %+v", opts)
	}
}

func TestFlagOptions_IgnoresUnsetFlags(t *testing.T) {
	cmd := newUpCmd()
	if err := cmd.Flags().Parse(nil); err != nil {
		t.Fatal(err)
	}

	if opts := flagOptions(cmd); !reflect.DeepEqual(opts, config.Options{}) {
		t.Errorf("Expected zero options, got %+v", opts)
	}
}

func TestReportError(t *testing.T) {
	var buf bytes.Buffer

	reportError(&buf, &orchestrator.StageError{Stage: orchestrator.StageStart, Err: errors.New("boom")})
	if buf.Len() != 0 {
		t.Errorf("Expected stage errors to be left to the event printer, got %q", buf.String())
	}

	reportError(&buf, errors.New("docker daemon not available"))
	if buf.String() != "Error: docker daemon not available\n" {
		t.Errorf("Unexpected output %q", buf.String())
	}
}

func TestShortID(t *testing.T) {
	tests := map[string]string{
		"abc":                         "abc",
		"0123456789abcdef":            "0123456789ab",
		"sha256:0123456789abcdef0000": "0123456789ab",
	}
	for in, want := range tests {
		if got := shortID(in); got != want {
			t.Errorf("shortID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	quiet, err := newLogger(false)
	if err != nil {
		t.Fatal(err)
	}
	if quiet.Core().Enabled(zap.DebugLevel) {
		t.Error("Expected debug logging to be disabled without --verbose")
	}

	verbose, err := newLogger(true)
	if err != nil {
		t.Fatal(err)
	}
	if !verbose.Core().Enabled(zap.DebugLevel) {
		t.Error("Expected debug logging with --verbose")
	}
}

func TestDownCmd_RemoveImageFlag(t *testing.T) {
	cmd := newDownCmd()
	if err := cmd.Flags().Parse([]string{"--rmi"}); err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}
	if rmi, _ := cmd.Flags().GetBool("rmi"); !rmi {
		t.Error("Expected --rmi to be set")
	}
	if rmi, _ := newDownCmd().Flags().GetBool("rmi"); rmi {
		t.Error("Expected the image to be kept by default")
	}
}
