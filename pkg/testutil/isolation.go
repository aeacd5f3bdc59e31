// Package testutil provides utilities for creating isolated, hermetic test environments
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WithWorkspace creates a temporary directory and makes it the working
// directory for the duration of the test, so relative image paths resolve
// inside it. The original working directory is restored on cleanup.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    dir := testutil.WithWorkspace(t)
//	    testutil.WriteDockerfile(t, dir)
//	}
func WithWorkspace(t *testing.T) string {
	t.Helper()

	originalWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get current working directory: %v", err)
	}

	dir := CanonicalPath(t, t.TempDir())
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change to workspace directory %s: %v", dir, err)
	}

	t.Cleanup(func() {
		if err := os.Chdir(originalWD); err != nil {
			t.Logf("Warning: Failed to restore original working directory: %v", err)
		}
	})

	return dir
}

// WriteFile writes content to dir/name and returns the full path
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

// WriteDockerfile writes a minimal Dockerfile into dir and returns its path
func WriteDockerfile(t *testing.T, dir string) string {
	t.Helper()
	return WriteFile(t, dir, "Dockerfile", "FROM alpine:3.20\nEXPOSE 80\nCMD [\"echo\", \"ready\"]\n")
}

// CanonicalPath resolves symlinks and returns the canonical absolute path.
// This is useful for path comparisons in tests that might encounter symlink
// differences between different operating systems (e.g., /var vs /private/var on macOS).
func CanonicalPath(t *testing.T, path string) string {
	t.Helper()

	canonical, err := filepath.EvalSymlinks(path)
	if err != nil {
		// If we can't resolve symlinks, return the absolute path
		abs, absErr := filepath.Abs(path)
		if absErr != nil {
			t.Fatalf("Failed to get canonical or absolute path for %s: symlink error: %v, abs error: %v", path, err, absErr)
		}
		return abs
	}

	if !filepath.IsAbs(canonical) {
		abs, err := filepath.Abs(canonical)
		if err != nil {
			t.Fatalf("Failed to get absolute path for resolved symlink %s: %v", canonical, err)
		}
		canonical = abs
	}

	return canonical
}
