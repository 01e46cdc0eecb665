package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultAPIURL is used by the CLI until a profile says otherwise.
const DefaultAPIURL = "http://127.0.0.1:8000"

// Profile is the CLI's saved login, stored as YAML.
type Profile struct {
	APIURL string `yaml:"api_url"`
	Email  string `yaml:"email,omitempty"`
	Token  string `yaml:"token,omitempty"`
}

// DefaultProfilePath returns ~/.aether/profile.yaml.
func DefaultProfilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".aether", "profile.yaml"), nil
}

// LoadProfile reads the profile at path. A missing file yields the defaults.
func LoadProfile(path string) (Profile, error) {
	p := Profile{APIURL: DefaultAPIURL}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if p.APIURL == "" {
		p.APIURL = DefaultAPIURL
	}
	return p, nil
}

// SaveProfile writes p to path, readable only by the owner since it holds a token.
func SaveProfile(path string, p Profile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create profile directory: %w", err)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}
