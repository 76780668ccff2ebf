// Package config loads the server's hierarchical configuration: static
// users and access rules, the warehouse root, the listen port, and the
// authorization mode.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dazzleduck/flightsql-server/internal/authz"
	"github.com/dazzleduck/flightsql-server/internal/model"
)

// User is one entry in the static password store. Password is the SHA-256
// hex digest, never the plaintext.
type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Config mirrors the external interface contract's configuration keys.
type Config struct {
	Users         []User                 `yaml:"users"`
	AccessRules   []model.AccessRow      `yaml:"access-rules"`
	UserGroups    map[string][]string    `yaml:"user-groups"`
	LoginURL      string                 `yaml:"login_url"`
	WarehousePath string                 `yaml:"warehouse-path"`
	Port          int                    `yaml:"port"`
	AccessMode    string                 `yaml:"access-mode"`
}

// Load reads and parses a YAML config file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parsing %q: %w", path, err)
	}
	if c.Port == 0 {
		c.Port = 32010
	}
	if c.AccessMode == "" {
		c.AccessMode = "restricted"
	}
	return &c, nil
}

// Validate checks the fields the server cannot safely start without.
func (c *Config) Validate() error {
	if c.WarehousePath == "" {
		return errors.New("config: warehouse-path required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port out of range: %d", c.Port)
	}
	switch c.AccessMode {
	case "complete", "restricted":
	default:
		return fmt.Errorf("config: access-mode must be complete or restricted, got %q", c.AccessMode)
	}
	if c.LoginURL != "" && !strings.HasPrefix(c.LoginURL, "http://") && !strings.HasPrefix(c.LoginURL, "https://") {
		return fmt.Errorf("config: login_url must be a URL, got %q", c.LoginURL)
	}
	return nil
}

// Mode translates the access-mode string into the authz.Mode the
// Authorizer expects.
func (c *Config) Mode() authz.Mode {
	if c.AccessMode == "complete" {
		return authz.Complete
	}
	return authz.Restricted
}

// ResolveURL derives the federated-policy resolve endpoint from the
// configured login URL by replacing a trailing "/login" with "/resolve".
func (c *Config) ResolveURL() string {
	if strings.HasSuffix(c.LoginURL, "/login") {
		return strings.TrimSuffix(c.LoginURL, "/login") + "/resolve"
	}
	return c.LoginURL
}

// GroupsFor returns the configured group membership for user, or nil if
// unlisted.
func (c *Config) GroupsFor(user string) []string {
	return c.UserGroups[user]
}
