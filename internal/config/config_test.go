package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	projectDir := t.TempDir()
	standinDir := filepath.Join(projectDir, StandinDir)
	if err := os.MkdirAll(standinDir, 0755); err != nil {
		t.Fatal(err)
	}
	return &Config{ProjectDir: projectDir, StandinProjectDir: standinDir, Project: defaultProjectConfig()}
}

func TestLoadProjectConfigDefaultsWhenMissing(t *testing.T) {
	c := newTestConfig(t)
	if err := c.loadProjectConfig(); err != nil {
		t.Fatalf("loadProjectConfig returned error: %v", err)
	}
	if c.Project.Version != 1 {
		t.Fatalf("expected default version == 1, got %d", c.Project.Version)
	}
	services := c.Services()
	if services.Users.BaseURL != DefaultUsersURL || services.Social.BaseURL != DefaultSocialURL || services.Multimedia.BaseURL != DefaultMultimediaURL {
		t.Fatalf("unexpected default services: %+v", services)
	}
	if c.HTTP().Timeout != DefaultHTTPTimeout {
		t.Fatalf("timeout = %s, want %s", c.HTTP().Timeout, DefaultHTTPTimeout)
	}
}

func TestLoadProjectConfigParsesYaml(t *testing.T) {
	c := newTestConfig(t)
	configYAML := strings.TrimSpace(`
version: 1
services:
  users:
    base_url: https://users.example.com/api/auth/
  social:
    base_url: https://social.example.com/api/social
http:
  timeout: 3s
  burst: 2
bridge:
  port: 9100
  allowed_origins:
    - http://localhost:5500/
    - http://localhost:5500
session:
  default_user_id: 12
`)
	if err := os.WriteFile(c.ProjectConfigPath(), []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	if err := c.loadProjectConfig(); err != nil {
		t.Fatalf("loadProjectConfig returned error: %v", err)
	}
	if got := c.Services().Users.BaseURL; got != "https://users.example.com/api/auth" {
		t.Fatalf("users url not normalized: %s", got)
	}
	if got := c.Services().Multimedia.BaseURL; got != DefaultMultimediaURL {
		t.Fatalf("multimedia url should default, got %s", got)
	}
	if c.HTTP().Timeout != 3*time.Second || c.HTTP().Burst != 2 {
		t.Fatalf("http config = %+v", c.HTTP())
	}
	if c.HTTP().RequestsPerSecond != DefaultRequestsPerSecond {
		t.Fatalf("rps should default, got %v", c.HTTP().RequestsPerSecond)
	}
	if len(c.Project.Bridge.AllowedOrigins) != 1 {
		t.Fatalf("expected deduplicated origins, got %v", c.Project.Bridge.AllowedOrigins)
	}
	if c.DefaultUserID() != 12 {
		t.Fatalf("default user id = %d, want 12", c.DefaultUserID())
	}
}

func TestLoadProjectConfigValidation(t *testing.T) {
	c := newTestConfig(t)
	invalid := strings.TrimSpace(`
version: 1
services:
  social:
    base_url: ftp://social.example.com
`)
	if err := os.WriteFile(c.ProjectConfigPath(), []byte(invalid), 0644); err != nil {
		t.Fatal(err)
	}
	err := c.loadProjectConfig()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "services.social") {
		t.Fatalf("error %q does not name the service", err)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	projectDir := t.TempDir()
	if err := InitStandinDir(projectDir); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Setenv("STANDIN_SOCIAL_URL", "http://10.0.0.5:8082/api/social")
	t.Setenv("STANDIN_HTTP_TIMEOUT", "750ms")
	t.Setenv("STANDIN_BRIDGE_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("STANDIN_USER_ID", "5")

	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("new config: %v", err)
	}
	if got := c.Services().Social.BaseURL; got != "http://10.0.0.5:8082/api/social" {
		t.Fatalf("social url = %s", got)
	}
	if c.Services().Users.BaseURL != DefaultUsersURL {
		t.Fatalf("users url should come from the template, got %s", c.Services().Users.BaseURL)
	}
	if c.HTTP().Timeout != 750*time.Millisecond {
		t.Fatalf("timeout = %s", c.HTTP().Timeout)
	}
	if len(c.Project.Bridge.AllowedOrigins) != 2 {
		t.Fatalf("origins = %v", c.Project.Bridge.AllowedOrigins)
	}
	if c.DefaultUserID() != 5 {
		t.Fatalf("default user id = %d", c.DefaultUserID())
	}
}

func TestEnvOverrideValidation(t *testing.T) {
	t.Setenv("STANDIN_USERS_URL", "not a url")
	if _, err := NewConfig(t.TempDir()); err == nil {
		t.Fatalf("expected invalid override to fail")
	}
}

func TestInitStandinDirWritesTemplateOnce(t *testing.T) {
	projectDir := t.TempDir()
	if err := InitStandinDir(projectDir); err != nil {
		t.Fatalf("init: %v", err)
	}
	path := filepath.Join(projectDir, StandinDir, "config.yaml")
	if err := os.WriteFile(path, []byte("version: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := InitStandinDir(projectDir); err != nil {
		t.Fatalf("second init: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "version: 1\n" {
		t.Fatalf("existing config was overwritten: %q", data)
	}
	if _, err := os.Stat(filepath.Join(projectDir, StandinDir, "logs")); err != nil {
		t.Fatalf("logs dir missing: %v", err)
	}
}

func TestSetDefaultUserIDPersists(t *testing.T) {
	c := newTestConfig(t)
	if err := c.SetDefaultUserID(0); err == nil {
		t.Fatalf("expected zero id to be refused")
	}
	if err := c.SetDefaultUserID(31); err != nil {
		t.Fatalf("set default: %v", err)
	}
	reloaded := &Config{ProjectDir: c.ProjectDir, StandinProjectDir: c.StandinProjectDir, Project: defaultProjectConfig()}
	if err := reloaded.loadProjectConfig(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.DefaultUserID() != 31 {
		t.Fatalf("reloaded default = %d, want 31", reloaded.DefaultUserID())
	}
}

func TestSetDefaultUserIDKeepsEnvOverridesOutOfTheFile(t *testing.T) {
	projectDir := t.TempDir()
	if err := InitStandinDir(projectDir); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Setenv("STANDIN_SOCIAL_URL", "http://staging.example:9999/api/social")
	t.Setenv("STANDIN_BRIDGE_PORT", "9911")

	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("new config: %v", err)
	}
	if err := c.SetDefaultUserID(44); err != nil {
		t.Fatalf("set default: %v", err)
	}
	if c.Services().Social.BaseURL != "http://staging.example:9999/api/social" {
		t.Fatalf("in-memory override lost: %s", c.Services().Social.BaseURL)
	}

	data, err := os.ReadFile(c.ProjectConfigPath())
	if err != nil {
		t.Fatal(err)
	}
	written := string(data)
	for _, leaked := range []string{"staging.example", "9911"} {
		if strings.Contains(written, leaked) {
			t.Fatalf("override %q was persisted:\n%s", leaked, written)
		}
	}
	if !strings.Contains(written, "# Base URLs of the three backend services") {
		t.Fatalf("template comments were dropped:\n%s", written)
	}
	if !strings.Contains(written, "default_user_id: 44") {
		t.Fatalf("default user id not written:\n%s", written)
	}

	reloaded := &Config{ProjectDir: projectDir, StandinProjectDir: c.StandinProjectDir, Project: defaultProjectConfig()}
	if err := reloaded.loadProjectConfig(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Services().Social.BaseURL != DefaultSocialURL || reloaded.DefaultUserID() != 44 {
		t.Fatalf("reloaded social = %s default = %d", reloaded.Services().Social.BaseURL, reloaded.DefaultUserID())
	}
}

func TestSetDefaultUserIDAddsMissingSession(t *testing.T) {
	c := newTestConfig(t)
	if err := os.WriteFile(c.ProjectConfigPath(), []byte("version: 1\n# keep me\nhttp:\n  burst: 3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := c.SetDefaultUserID(8); err != nil {
		t.Fatalf("set default: %v", err)
	}
	data, err := os.ReadFile(c.ProjectConfigPath())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "# keep me") || !strings.Contains(string(data), "burst: 3") {
		t.Fatalf("existing content changed:\n%s", data)
	}
	if err := c.loadProjectConfig(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if c.DefaultUserID() != 8 || c.HTTP().Burst != 3 {
		t.Fatalf("reloaded default = %d burst = %d", c.DefaultUserID(), c.HTTP().Burst)
	}
}
