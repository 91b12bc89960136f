// Package metadata reads the descriptive file shipped alongside the tool.
package metadata

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gabriel-vasile/mimetype"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"
)

var (
	// ErrNotFound is returned when the metadata file does not exist.
	ErrNotFound = errors.New("tool metadata not found")
	// ErrUnsupportedFormat is returned for files that are not JSON, YAML or TOML.
	ErrUnsupportedFormat = errors.New("unsupported metadata format")
)

// Load reads path and decodes it into a map. The format follows the file
// extension; files with any other extension are accepted only if their
// content is JSON. JSON may carry comments and trailing commas.
func Load(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading tool metadata: %w", err)
	}

	return Decode(filepath.Ext(path), data)
}

// Decode parses data as the format named by ext (".json", ".yaml", ...).
func Decode(ext string, data []byte) (map[string]any, error) {
	out := map[string]any{}

	switch strings.ToLower(ext) {
	case ".json", ".jsonc":
		if err := sonic.Unmarshal(jsonc.ToJSON(data), &out); err != nil {
			return nil, fmt.Errorf("parsing JSON metadata: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("parsing YAML metadata: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("parsing TOML metadata: %w", err)
		}
	default:
		plain := jsonc.ToJSON(data)
		if !mimetype.Detect(plain).Is("application/json") {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
		}
		if err := sonic.Unmarshal(plain, &out); err != nil {
			return nil, fmt.Errorf("parsing JSON metadata: %w", err)
		}
	}

	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
