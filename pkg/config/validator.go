package config

import (
	"fmt"
	"regexp"
	"strings"
)

// The name doubles as image tag and container name, so it has to satisfy
// both: lowercase, starting with an alphanumeric.
var validName = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)

// ValidateName validates that the name is usable as image tag and container name
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	if len(name) > 128 {
		return fmt.Errorf("name too long (maximum 128 characters)")
	}

	if !validName.MatchString(name) {
		return fmt.Errorf("invalid name format: %s (use lowercase letters, digits, '_', '.' and '-')", name)
	}

	return nil
}

// ValidatePort validates that port is within the valid TCP range
func ValidatePort(kind string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s port %d is out of valid range (1-65535)", kind, port)
	}
	return nil
}

// ValidateImageSource validates the image source path
func ValidateImageSource(image string) error {
	if strings.TrimSpace(image) == "" {
		return fmt.Errorf("image cannot be empty")
	}
	return nil
}

// ValidateOptions validates an Options struct
func ValidateOptions(opts *Options) error {
	if opts == nil {
		return fmt.Errorf("options cannot be nil")
	}

	if err := ValidateName(opts.Name); err != nil {
		return fmt.Errorf("invalid name: %w", err)
	}

	if err := ValidatePort("host", opts.Port); err != nil {
		return err
	}

	if err := ValidatePort("exposed", opts.Exposed); err != nil {
		return err
	}

	if err := ValidateImageSource(opts.Image); err != nil {
		return fmt.Errorf("invalid image: %w", err)
	}

	for key := range opts.Envs {
		if key == "" || strings.Contains(key, "=") {
			return fmt.Errorf("invalid environment variable name %q", key)
		}
	}

	if opts.MaxConflictRetries < 0 {
		return fmt.Errorf("maxConflictRetries cannot be negative")
	}

	return nil
}
