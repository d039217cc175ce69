package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// ErrDuplicateConfigFiles is returned when both .json and .jsonc config files exist.
var ErrDuplicateConfigFiles = errors.New("duplicate config files")

// Config holds the CLI configuration.
type Config struct {
	// TempDir is the directory trays are created in. Empty means os.TempDir().
	TempDir string `json:"tempDir,omitempty"`
	// Pattern is the os.MkdirTemp pattern for tray names.
	Pattern string `json:"pattern,omitempty"`
	Keep    *bool  `json:"keep,omitempty"`
	// Fixture is a fixture file applied to every tray before the command runs.
	Fixture string `json:"fixture,omitempty"`

	// Resolved (not serialized)
	EffectiveCwd      string            `json:"-"`
	LoadedConfigFiles map[string]string `json:"-"` // "global", "project" or "explicit" -> path

	// Origins maps each key set by a config file to the file kind that set
	// it last, e.g. "keep" -> "project config". Keys left at their default
	// are absent.
	Origins map[string]string `json:"-"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Keep: boolPtr(false),
	}
}

func boolPtr(b bool) *bool {
	return &b
}

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // --config flag value
	Env             map[string]string // Environment variables (for XDG_CONFIG_HOME)
}

// LoadConfig loads configuration with the following precedence (later overrides earlier):
//  1. Built-in defaults
//  2. Global config: $XDG_CONFIG_HOME/littertray/config.json or config.jsonc
//     (defaults to ~/.config/littertray/) - always loaded if exists
//  3. Project config OR --config path (not both):
//     - Without --config: .littertray.json or .littertray.jsonc in workDir
//     - With --config: uses that path instead of project config
//
// Both .json and .jsonc files support comments via tailscale/hujson.
// If both .json and .jsonc exist at the same location, it's an error.
// Relative tempDir and fixture paths are resolved against the directory of
// the file that sets them.
func LoadConfig(input LoadConfigInput) (Config, error) {
	workDir, err := effectiveWorkDir(input.WorkDirOverride)
	if err != nil {
		return Config{}, err
	}

	layers, err := findConfigLayers(workDir, input)
	if err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()
	cfg.LoadedConfigFiles = make(map[string]string, len(layers))
	cfg.Origins = make(map[string]string)

	for _, layer := range layers {
		fileCfg, err := loadConfigFile(layer.path)
		if err != nil {
			return Config{}, err
		}

		cfg = mergeConfigs(&cfg, &fileCfg, layer.kind+" config")
		cfg.LoadedConfigFiles[layer.kind] = layer.path
	}

	cfg.EffectiveCwd = workDir

	return cfg, nil
}

// effectiveWorkDir returns the absolute directory littertray acts in: the
// -C/--cwd value if given, otherwise the process working directory.
func effectiveWorkDir(override string) (string, error) {
	if filepath.IsAbs(override) {
		return override, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("cannot get working directory: %w", err)
	}

	return filepath.Join(cwd, override), nil
}

// configLayer is one config file to merge. kind is "global", "project" or
// "explicit".
type configLayer struct {
	kind string
	path string
}

// findConfigLayers lists the config files that exist, lowest precedence first.
func findConfigLayers(workDir string, input LoadConfigInput) ([]configLayer, error) {
	var layers []configLayer

	globalBase, err := getUserConfigBasePath(input.Env)
	if err != nil {
		return nil, err
	}

	if globalBase != "" {
		path, err := findConfigFile(globalBase)
		if err == nil {
			layers = append(layers, configLayer{kind: "global", path: path})
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	// An explicit --config replaces the project file; a missing explicit file
	// is an error, a missing project file is not.
	if input.ConfigPath != "" {
		return append(layers, configLayer{kind: "explicit", path: resolveAgainst(workDir, input.ConfigPath)}), nil
	}

	path, err := findConfigFile(filepath.Join(workDir, ".littertray"))
	if err == nil {
		layers = append(layers, configLayer{kind: "project", path: path})
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	return layers, nil
}

// findConfigFile finds a config file at basePath (directory + base name
// without extension). It checks for both .json and .jsonc and returns an
// error if both exist.
func findConfigFile(basePath string) (string, error) {
	jsonPath := basePath + ".json"
	jsoncPath := basePath + ".jsonc"

	jsonExists, jsonErr := fileExists(jsonPath)
	jsoncExists, jsoncErr := fileExists(jsoncPath)

	if jsonErr != nil {
		return "", jsonErr
	}

	if jsoncErr != nil {
		return "", jsoncErr
	}

	if jsonExists && jsoncExists {
		return "", fmt.Errorf("%w: both %s and %s exist; remove one", ErrDuplicateConfigFiles, jsonPath, jsoncPath)
	}

	if jsonExists {
		return jsonPath, nil
	}

	if jsoncExists {
		return jsoncPath, nil
	}

	return "", os.ErrNotExist
}

// fileExists checks if a file exists and is not a directory.
// Returns (true, nil) if file exists, (false, nil) if not found,
// or (false, error) for other errors (e.g., permission denied).
func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("checking file %s: %w", path, err)
	}

	if info.IsDir() {
		return false, nil
	}

	return true, nil
}

// loadConfigFile loads and parses a JSON/JSONC config file.
func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	var cfg Config

	err = json.Unmarshal(standardized, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	base := filepath.Dir(path)
	cfg.TempDir = resolveAgainst(base, cfg.TempDir)
	cfg.Fixture = resolveAgainst(base, cfg.Fixture)

	return cfg, nil
}

// resolveAgainst makes a non-empty relative path absolute under base.
func resolveAgainst(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(base, path)
}

// mergeConfigs merges override into base, with override taking precedence.
// Empty/zero values in override do not override base values. Every key that
// override sets is recorded in Origins as coming from source.
func mergeConfigs(base, override *Config, source string) Config {
	result := *base
	result.Origins = maps.Clone(base.Origins)

	if result.Origins == nil {
		result.Origins = make(map[string]string)
	}

	if override.TempDir != "" {
		result.TempDir = override.TempDir
		result.Origins["tempDir"] = source
	}

	if override.Pattern != "" {
		result.Pattern = override.Pattern
		result.Origins["pattern"] = source
	}

	// A pointer, so an explicit false still counts as set.
	if override.Keep != nil {
		result.Keep = override.Keep
		result.Origins["keep"] = source
	}

	if override.Fixture != "" {
		result.Fixture = override.Fixture
		result.Origins["fixture"] = source
	}

	return result
}

// getUserConfigBasePath returns the user config base path (without extension).
// Uses env map for XDG_CONFIG_HOME instead of os.Getenv().
func getUserConfigBasePath(env map[string]string) (string, error) {
	if xdg, ok := env["XDG_CONFIG_HOME"]; ok && xdg != "" {
		return filepath.Join(xdg, "littertray", "config"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, ".config", "littertray", "config"), nil
}
