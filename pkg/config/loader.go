package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tailscale/hujson"
	"github.com/tidwall/sjson"
	"gopkg.in/yaml.v3"
)

const (
	configFileYML  = "dbuilder.yml"
	configFileYAML = "dbuilder.yaml"
	configFileJSON = "dbuilder.json"
)

// FindConfigFile looks for dbuilder.yml, dbuilder.yaml or dbuilder.json in the specified directory.
// Returns the absolute path to the found file, whether it was found, and any error.
func FindConfigFile(directory string) (string, bool, error) {
	if directory == "" {
		var err error
		directory, err = os.Getwd()
		if err != nil {
			return "", false, fmt.Errorf("failed to get current directory: %w", err)
		}
	}

	absDir, err := filepath.Abs(directory)
	if err != nil {
		return "", false, fmt.Errorf("failed to get absolute path for directory %s: %w", directory, err)
	}

	candidates := []string{
		filepath.Join(absDir, configFileYML),
		filepath.Join(absDir, configFileYAML),
		filepath.Join(absDir, configFileJSON),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}

	return "", false, nil
}

// LoadOptions reads a YAML or JSON (comments and trailing commas allowed) config file.
// A relative image path is resolved against the directory of the file.
func LoadOptions(configPath string) (*Options, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var opts Options
	if isJSON(configPath) {
		std, err := hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse JSON in %s: %w", configPath, err)
		}
		if err := json.Unmarshal(std, &opts); err != nil {
			return nil, fmt.Errorf("failed to parse JSON in %s: %w", configPath, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &opts); err != nil {
			return nil, fmt.Errorf("failed to parse YAML in %s: %w", configPath, err)
		}
	}

	if opts.Image != "" && !filepath.IsAbs(opts.Image) {
		opts.Image = filepath.Join(filepath.Dir(configPath), opts.Image)
	}

	return &opts, nil
}

// SetValue sets a single key in a config file, creating the file if needed.
// Supported keys are name, image, port, exposed, maxConflictRetries and envs.<NAME>.
func SetValue(configPath, key, value string) error {
	typed, err := typedValue(key, value)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var out []byte
	if isJSON(configPath) {
		out, err = setJSON(data, key, typed)
	} else {
		out, err = setYAML(data, key, typed)
	}
	if err != nil {
		return fmt.Errorf("failed to set %s in %s: %w", key, configPath, err)
	}

	if err := os.WriteFile(configPath, out, 0600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configPath, err)
	}

	return nil
}

func setJSON(data []byte, key string, value interface{}) ([]byte, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		data = []byte("{}")
	}

	// sjson works on standard JSON; comments are dropped on write.
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, err
	}

	out, err := sjson.SetBytes(std, sjsonPath(key), value)
	if err != nil {
		return nil, err
	}

	formatted, err := hujson.Format(out)
	if err != nil {
		return out, nil
	}
	return formatted, nil
}

func setYAML(data []byte, key string, value interface{}) ([]byte, error) {
	doc := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}

	if env, ok := strings.CutPrefix(key, "envs."); ok {
		envs, _ := doc["envs"].(map[string]interface{})
		if envs == nil {
			envs = map[string]interface{}{}
		}
		envs[env] = value
		doc["envs"] = envs
	} else {
		doc[key] = value
	}

	return yaml.Marshal(doc)
}

func typedValue(key, value string) (interface{}, error) {
	switch key {
	case "name":
		if err := ValidateName(value); err != nil {
			return nil, err
		}
		return value, nil
	case "image":
		if err := ValidateImageSource(value); err != nil {
			return nil, err
		}
		return value, nil
	case "port", "exposed":
		port, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s '%s': must be a number", key, value)
		}
		kind := "host"
		if key == "exposed" {
			kind = "exposed"
		}
		if err := ValidatePort(kind, port); err != nil {
			return nil, err
		}
		return port, nil
	case "maxConflictRetries":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid maxConflictRetries '%s': must be a non-negative number", value)
		}
		return n, nil
	}

	if env, ok := strings.CutPrefix(key, "envs."); ok && env != "" && !strings.Contains(env, "=") {
		return value, nil
	}

	return nil, fmt.Errorf("unknown configuration key: %s", key)
}

// sjsonPath escapes the env var name so dots inside it are not treated as path separators
func sjsonPath(key string) string {
	if env, ok := strings.CutPrefix(key, "envs."); ok {
		return "envs." + strings.ReplaceAll(env, ".", `\.`)
	}
	return key
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
