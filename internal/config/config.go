package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Hostname suffixes of known Fabric API domains. Endpoints outside this
// list still work but trigger a security warning, since bearer tokens are
// sent to whatever host is configured.
var allowedFabricDomains = []string{
	".fabric.microsoft.com",
	".pbidedicated.windows.net",
	".analysis.windows.net",
	".microsoftfabric.com",
}

const livyAPIVersion = "2023-12-01"

type Config struct {
	WorkspaceID string `yaml:"workspace_id"`
	LakehouseID string `yaml:"lakehouse_id"`
	Lakehouse   string `yaml:"lakehouse"`
	Schema      string `yaml:"schema"`
	Endpoint    string `yaml:"endpoint"`

	// Authentication selects the token fetch strategy: "cli" uses the
	// Azure CLI login, "int_tests" uses the raw AccessToken below, and
	// anything else falls through to the service-principal flow.
	Authentication string `yaml:"authentication"`
	TenantID       string `yaml:"tenant_id"`
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
	AccessToken    string `yaml:"access_token"`

	// SparkConfig is sent verbatim as the session creation payload.
	// The Livy API requires at least a "name" key.
	SparkConfig map[string]any `yaml:"spark_config"`

	CreateShortcuts bool   `yaml:"create_shortcuts"`
	ShortcutsJSON   string `yaml:"shortcuts_json"`

	LakehouseSchemasEnabled bool `yaml:"lakehouse_schemas_enabled"`

	HTTPTimeoutSeconds         int `yaml:"http_timeout_seconds"`
	SessionStartTimeoutSeconds int `yaml:"session_start_timeout_seconds"`
	StatementTimeoutSeconds    int `yaml:"statement_timeout_seconds"`
	PollWaitSeconds            int `yaml:"poll_wait_seconds"`
	PollStatementWaitSeconds   int `yaml:"poll_statement_wait_seconds"`
}

func Load(yamlPath string) (*Config, error) {
	cfg := &Config{
		Endpoint:                   "https://msitapi.fabric.microsoft.com/v1",
		Authentication:             "az_cli",
		SparkConfig:                make(map[string]any),
		HTTPTimeoutSeconds:         120,
		SessionStartTimeoutSeconds: 600,
		StatementTimeoutSeconds:    3600,
		PollWaitSeconds:            10,
		PollStatementWaitSeconds:   5,
	}

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FABRIC_WORKSPACE_ID"); v != "" {
		cfg.WorkspaceID = v
	}
	if v := os.Getenv("FABRIC_LAKEHOUSE_ID"); v != "" {
		cfg.LakehouseID = v
	}
	if v := os.Getenv("FABRIC_LAKEHOUSE"); v != "" {
		cfg.Lakehouse = v
	}
	if v := os.Getenv("FABRIC_SCHEMA"); v != "" {
		cfg.Schema = v
	}
	if v := os.Getenv("FABRIC_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("FABRIC_AUTHENTICATION"); v != "" {
		cfg.Authentication = v
	}
	if v := os.Getenv("FABRIC_TENANT_ID"); v != "" {
		cfg.TenantID = v
	}
	if v := os.Getenv("FABRIC_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := os.Getenv("FABRIC_CLIENT_SECRET"); v != "" {
		cfg.ClientSecret = v
	}
	if v := os.Getenv("FABRIC_ACCESS_TOKEN"); v != "" {
		cfg.AccessToken = v
	}
	if v := os.Getenv("FABRIC_HTTP_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTPTimeoutSeconds = n
		}
	}
	if v := os.Getenv("FABRIC_SESSION_START_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SessionStartTimeoutSeconds = n
		}
	}
	if v := os.Getenv("FABRIC_STATEMENT_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StatementTimeoutSeconds = n
		}
	}
	if v := os.Getenv("FABRIC_POLL_WAIT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PollWaitSeconds = n
		}
	}
	if v := os.Getenv("FABRIC_POLL_STATEMENT_WAIT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PollStatementWaitSeconds = n
		}
	}
}

// Validate checks identifiers and the endpoint before any network call is
// made. Workspace and lakehouse ids end up in URLs built by concatenation,
// so they must be well-formed UUIDs.
func (c *Config) Validate(logger *slog.Logger) error {
	if c.WorkspaceID == "" {
		return fmt.Errorf("workspace_id is required")
	}
	if c.LakehouseID == "" {
		return fmt.Errorf("lakehouse_id is required")
	}
	if _, err := uuid.Parse(c.WorkspaceID); err != nil {
		return fmt.Errorf("workspace_id must be a valid UUID (got %q)", c.WorkspaceID)
	}
	if _, err := uuid.Parse(c.LakehouseID); err != nil {
		return fmt.Errorf("lakehouse_id must be a valid UUID (got %q)", c.LakehouseID)
	}

	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	parsed, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("endpoint is not a valid URL: %w", err)
	}
	if parsed.Scheme != "https" {
		return fmt.Errorf("endpoint must use HTTPS, got %q", c.Endpoint)
	}
	if !isKnownFabricDomain(parsed.Hostname()) {
		logger.Warn("endpoint does not match any known Microsoft Fabric domain — bearer tokens will be sent to this host",
			"endpoint", c.Endpoint)
	}

	if _, ok := c.SparkConfig["name"]; !ok {
		return fmt.Errorf("spark_config must contain a %q key", "name")
	}

	if !c.LakehouseSchemasEnabled && c.Lakehouse != "" {
		c.Schema = c.Lakehouse
	}
	if c.LakehouseSchemasEnabled && c.Schema == "" {
		return fmt.Errorf("schema is required when lakehouse schemas are enabled")
	}

	return nil
}

func isKnownFabricDomain(hostname string) bool {
	for _, suffix := range allowedFabricDomains {
		if strings.HasSuffix(hostname, suffix) {
			return true
		}
	}
	return false
}

// LivyEndpoint returns the versioned base URL all session and statement
// requests are issued against.
func (c *Config) LivyEndpoint() string {
	return fmt.Sprintf("%s/workspaces/%s/lakehouses/%s/livyapi/versions/%s",
		c.Endpoint, c.WorkspaceID, c.LakehouseID, livyAPIVersion)
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

func (c *Config) SessionStartTimeout() time.Duration {
	return time.Duration(c.SessionStartTimeoutSeconds) * time.Second
}

func (c *Config) StatementTimeout() time.Duration {
	return time.Duration(c.StatementTimeoutSeconds) * time.Second
}

func (c *Config) PollWait() time.Duration {
	return time.Duration(c.PollWaitSeconds) * time.Second
}

func (c *Config) PollStatementWait() time.Duration {
	return time.Duration(c.PollStatementWaitSeconds) * time.Second
}

// LogValue masks credentials so a Config attached to a log line never leaks
// the client secret or a raw token.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("workspace_id", c.WorkspaceID),
		slog.String("lakehouse_id", c.LakehouseID),
		slog.String("endpoint", c.Endpoint),
		slog.String("authentication", c.Authentication),
		slog.String("client_id", c.ClientID),
		slog.String("client_secret", mask(c.ClientSecret)),
		slog.String("access_token", mask(c.AccessToken)),
	)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
