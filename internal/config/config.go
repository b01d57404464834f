// internal/config/config.go
//
// This package handles configuration and the .standin directory structure.
// Every directory standin runs from gets a .standin/ folder holding the
// project config and the logs.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// StandinDir is the name of the directory we create in each working directory
	StandinDir = ".standin"

	DefaultUsersURL      = "http://localhost:8081/api/auth"
	DefaultSocialURL     = "http://localhost:8082/api/social"
	DefaultMultimediaURL = "http://localhost:8083/api"

	DefaultHTTPTimeout       = 10 * time.Second
	DefaultRequestsPerSecond = 10.0
	DefaultBurst             = 5
)

const defaultProjectConfigYAML = `# standin configuration
version: 1

# Base URLs of the three backend services. Paths such as /usuario/{id}
# are appended to these.
services:
  users:
    base_url: http://localhost:8081/api/auth
  social:
    base_url: http://localhost:8082/api/social
  multimedia:
    base_url: http://localhost:8083/api

http:
  timeout: 10s
  # Outbound request budget per service client.
  requests_per_second: 10
  burst: 5

# Loopback bridge used by the browser front-end (standin-bridge).
bridge:
  enabled: true
  host: 127.0.0.1
  port: 8790
  allowed_origins:
    - http://localhost:5500

session:
  # Pre-fills the user id prompt. 0 leaves it empty.
  default_user_id: 0
`

// ServiceEndpoint points at one backend service.
type ServiceEndpoint struct {
	BaseURL string `yaml:"base_url"`
}

// ServicesConfig groups the three backend services.
type ServicesConfig struct {
	Users      ServiceEndpoint `yaml:"users"`
	Social     ServiceEndpoint `yaml:"social"`
	Multimedia ServiceEndpoint `yaml:"multimedia"`
}

// HTTPConfig tunes the outbound clients.
type HTTPConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// BridgeConfig captures the loopback bridge preferences.
type BridgeConfig struct {
	Enabled        *bool    `yaml:"enabled,omitempty"`
	Host           string   `yaml:"host,omitempty"`
	Port           int      `yaml:"port,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// SessionConfig holds review-session preferences.
type SessionConfig struct {
	DefaultUserID int64 `yaml:"default_user_id"`
}

// ProjectConfig models .standin/config.yaml.
type ProjectConfig struct {
	Version  int            `yaml:"version"`
	Services ServicesConfig `yaml:"services"`
	HTTP     HTTPConfig     `yaml:"http"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Session  SessionConfig  `yaml:"session"`
}

// envOverrides lists the STANDIN_* variables that win over the YAML file.
type envOverrides struct {
	UsersURL          string        `env:"STANDIN_USERS_URL"`
	SocialURL         string        `env:"STANDIN_SOCIAL_URL"`
	MultimediaURL     string        `env:"STANDIN_MULTIMEDIA_URL"`
	HTTPTimeout       time.Duration `env:"STANDIN_HTTP_TIMEOUT"`
	RequestsPerSecond float64       `env:"STANDIN_HTTP_RPS"`
	Burst             int           `env:"STANDIN_HTTP_BURST"`
	BridgeEnabled     *bool         `env:"STANDIN_BRIDGE_ENABLED"`
	BridgeHost        string        `env:"STANDIN_BRIDGE_HOST"`
	BridgePort        int           `env:"STANDIN_BRIDGE_PORT"`
	BridgeOrigins     []string      `env:"STANDIN_BRIDGE_ORIGINS" envSeparator:","`
	DefaultUserID     int64         `env:"STANDIN_USER_ID"`
}

// Config holds the runtime configuration for standin.
type Config struct {
	// ProjectDir is the directory standin was started from
	ProjectDir string

	// StandinProjectDir is ProjectDir/.standin
	StandinProjectDir string

	Project ProjectConfig
}

// InitStandinDir creates the .standin directory structure in the given directory.
//
// Structure created:
// .standin/
// ├── config.yaml
// └── logs/
func InitStandinDir(projectDir string) error {
	standinDir := filepath.Join(projectDir, StandinDir)
	if err := os.MkdirAll(filepath.Join(standinDir, "logs"), 0o755); err != nil {
		return err
	}
	return ensureProjectConfig(filepath.Join(standinDir, "config.yaml"))
}

// NewConfig loads .standin/config.yaml (if present) and applies env overrides.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:        projectDir,
		StandinProjectDir: filepath.Join(projectDir, StandinDir),
		Project:           defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.StandinProjectDir, "logs")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StandinProjectDir, "config.yaml")
}

// Services returns the configured backend endpoints.
func (c *Config) Services() ServicesConfig {
	return c.Project.Services
}

// HTTP returns the outbound client settings.
func (c *Config) HTTP() HTTPConfig {
	return c.Project.HTTP
}

// DefaultUserID returns the user id used to pre-fill the prompt, or 0.
func (c *Config) DefaultUserID() int64 {
	return c.Project.Session.DefaultUserID
}

// SetDefaultUserID remembers id as the prompt default and persists it.
// Only session.default_user_id changes on disk; environment overrides held
// in c.Project are never written back.
func (c *Config) SetDefaultUserID(id int64) error {
	if id <= 0 {
		return fmt.Errorf("config: default user id must be positive")
	}
	if err := c.patchProjectConfig([]string{"session", "default_user_id"}, strconv.FormatInt(id, 10)); err != nil {
		return err
	}
	c.Project.Session.DefaultUserID = id
	return nil
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func (c *Config) applyEnv() error {
	overrides, err := env.ParseAs[envOverrides]()
	if err != nil {
		return fmt.Errorf("config: parse environment: %w", err)
	}
	pc := &c.Project
	if overrides.UsersURL != "" {
		pc.Services.Users.BaseURL = overrides.UsersURL
	}
	if overrides.SocialURL != "" {
		pc.Services.Social.BaseURL = overrides.SocialURL
	}
	if overrides.MultimediaURL != "" {
		pc.Services.Multimedia.BaseURL = overrides.MultimediaURL
	}
	if overrides.HTTPTimeout > 0 {
		pc.HTTP.Timeout = overrides.HTTPTimeout
	}
	if overrides.RequestsPerSecond > 0 {
		pc.HTTP.RequestsPerSecond = overrides.RequestsPerSecond
	}
	if overrides.Burst > 0 {
		pc.HTTP.Burst = overrides.Burst
	}
	if overrides.BridgeEnabled != nil {
		enabled := *overrides.BridgeEnabled
		pc.Bridge.Enabled = &enabled
	}
	if overrides.BridgeHost != "" {
		pc.Bridge.Host = overrides.BridgeHost
	}
	if overrides.BridgePort != 0 {
		pc.Bridge.Port = overrides.BridgePort
	}
	if len(overrides.BridgeOrigins) > 0 {
		pc.Bridge.AllowedOrigins = overrides.BridgeOrigins
	}
	if overrides.DefaultUserID > 0 {
		pc.Session.DefaultUserID = overrides.DefaultUserID
	}
	pc.normalize()
	if err := pc.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{Version: 1}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.Services.Users.BaseURL) == "" {
		pc.Services.Users.BaseURL = DefaultUsersURL
	}
	if strings.TrimSpace(pc.Services.Social.BaseURL) == "" {
		pc.Services.Social.BaseURL = DefaultSocialURL
	}
	if strings.TrimSpace(pc.Services.Multimedia.BaseURL) == "" {
		pc.Services.Multimedia.BaseURL = DefaultMultimediaURL
	}
	if pc.HTTP.Timeout <= 0 {
		pc.HTTP.Timeout = DefaultHTTPTimeout
	}
	if pc.HTTP.RequestsPerSecond <= 0 {
		pc.HTTP.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if pc.HTTP.Burst <= 0 {
		pc.HTTP.Burst = DefaultBurst
	}
}

func (pc *ProjectConfig) normalize() {
	pc.Services.Users.normalize()
	pc.Services.Social.normalize()
	pc.Services.Multimedia.normalize()
	pc.Bridge.Host = strings.TrimSpace(pc.Bridge.Host)
	origins := pc.Bridge.AllowedOrigins[:0]
	for _, origin := range pc.Bridge.AllowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" && !contains(origins, origin) {
			origins = append(origins, origin)
		}
	}
	pc.Bridge.AllowedOrigins = origins
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	endpoints := map[string]ServiceEndpoint{
		"users":      pc.Services.Users,
		"social":     pc.Services.Social,
		"multimedia": pc.Services.Multimedia,
	}
	for name, ep := range endpoints {
		if err := ep.validate(); err != nil {
			return fmt.Errorf("services.%s: %w", name, err)
		}
	}
	if pc.Bridge.Port < 0 || pc.Bridge.Port > 65535 {
		return fmt.Errorf("bridge.port must be between 0 and 65535")
	}
	if pc.Session.DefaultUserID < 0 {
		return fmt.Errorf("session.default_user_id must not be negative")
	}
	return nil
}

func (ep *ServiceEndpoint) normalize() {
	ep.BaseURL = strings.TrimRight(strings.TrimSpace(ep.BaseURL), "/")
}

func (ep ServiceEndpoint) validate() error {
	if ep.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	parsed, err := url.Parse(ep.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("base_url must be an http(s) URL")
	}
	if parsed.Host == "" {
		return fmt.Errorf("base_url is missing a host")
	}
	return nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return true
		}
	}
	return false
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}

// patchProjectConfig sets the scalar at path in config.yaml, creating the
// file from the template and any missing mappings. Comments and every other
// key are kept as they are on disk.
func (c *Config) patchProjectConfig(path []string, value string) error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	if err := os.MkdirAll(c.StandinProjectDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure standin dir: %w", err)
	}
	file := c.ProjectConfigPath()
	if err := ensureProjectConfig(file); err != nil {
		return fmt.Errorf("config: ensure project config: %w", err)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", file, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("config: parse %s: %w", file, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	node := doc.Content[0]
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("config: %s is not a mapping", file)
	}
	for i, key := range path {
		last := i == len(path)-1
		child := mappingValue(node, key)
		if child == nil {
			child = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			if last {
				child = &yaml.Node{Kind: yaml.ScalarNode}
			}
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, child)
		}
		if last {
			child.Kind = yaml.ScalarNode
			child.Tag = ""
			child.Style = 0
			child.Content = nil
			child.Value = value
			break
		}
		if child.Kind == yaml.ScalarNode && child.Tag == "!!null" {
			child.Kind = yaml.MappingNode
			child.Tag = "!!map"
			child.Value = ""
		}
		if child.Kind != yaml.MappingNode {
			return fmt.Errorf("config: %s is not a mapping", strings.Join(path[:i+1], "."))
		}
		node = child
	}

	var out bytes.Buffer
	enc := yaml.NewEncoder(&out)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(file, out.Bytes(), 0644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}

func mappingValue(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}
