package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// DefaultProjectFile is the project settings file written by the credentials wizard.
const DefaultProjectFile = "force.json"

// Defaults applied when force.json and the environment leave a field unset.
const (
	DefaultAPIVersion   = "37.0"
	DefaultPollInterval = 1000 * time.Millisecond
	DefaultLoginURL     = "https://login.salesforce.com"
)

// Project is the per-workspace configuration. JSON keys match force.json;
// FORCE_* environment variables override them when set.
type Project struct {
	Username        string `json:"username,omitempty" env:"FORCE_USERNAME,overwrite"`
	Password        string `json:"password,omitempty" env:"FORCE_PASSWORD,overwrite"`
	URL             string `json:"url,omitempty" env:"FORCE_LOGIN_URL,overwrite"`
	AutoCompile     bool   `json:"autoCompile"`
	NamespacePrefix string `json:"prefix,omitempty" env:"FORCE_NAMESPACE_PREFIX,overwrite"`
	APIVersion      string `json:"apiVersion,omitempty" env:"FORCE_API_VERSION,overwrite"`
	PollMillis      int    `json:"poll,omitempty" env:"FORCE_POLL_MS,overwrite"`

	// Session and delivery settings are never persisted.
	InstanceURL     string `json:"-" env:"FORCE_INSTANCE_URL,overwrite"`
	AccessToken     string `json:"-" env:"FORCE_ACCESS_TOKEN,overwrite"`
	AccessTokenFile string `json:"-" env:"FORCE_ACCESS_TOKEN_FILE,overwrite"`
	CallbackURL     string `json:"-" env:"FORCE_CALLBACK_URL,overwrite"`
	CallbackKey     string `json:"-" env:"FORCE_CALLBACK_KEY,overwrite"`
}

// PollInterval is the delay between compile status queries.
func (p Project) PollInterval() time.Duration {
	if p.PollMillis <= 0 {
		return DefaultPollInterval
	}
	return time.Duration(p.PollMillis) * time.Millisecond
}

// Root is the directory that holds the project file.
func Root(projectFile string) string {
	return filepath.Dir(projectFile)
}

// LoadProject reads force.json (a missing file is not an error), applies
// environment overrides and fills defaults.
func LoadProject(ctx context.Context, path string) (Project, error) {
	var p Project

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &p); err != nil {
			return Project{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Project{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := envconfig.Process(ctx, &p); err != nil {
		return Project{}, fmt.Errorf("failed to apply environment: %w", err)
	}

	if p.AccessToken == "" {
		p.AccessToken = GetSecretFile(p.AccessTokenFile)
	}

	return p.withDefaults(), nil
}

// SaveProject writes the persisted subset of the project as indented JSON.
func SaveProject(path string, p Project) error {
	data, err := json.MarshalIndent(p, "", "    ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// withDefaults fills in zero values with defaults.
func (p Project) withDefaults() Project {
	if p.APIVersion == "" {
		p.APIVersion = DefaultAPIVersion
	}
	if p.URL == "" {
		p.URL = DefaultLoginURL
	}
	return p
}
