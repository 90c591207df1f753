// Package config loads autopatchd configuration.
//
// Configuration comes from a YAML file overlaid with environment variables
// (see LoadWithFile). Every section has defaults, so an empty file yields a
// daemon that polls a local SQLite store and executes against the current
// directory with the optional integrations disabled.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds the complete autopatchd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Router        RouterConfig        `koanf:"router"`
	Executor      ExecutorConfig      `koanf:"executor"`
	Approval      ApprovalConfig      `koanf:"approval"`
	Remote        RemoteConfig        `koanf:"remote"`
	Supabase      SupabaseConfig      `koanf:"supabase"`
	Telegram      TelegramConfig      `koanf:"telegram"`
	NATS          NATSConfig          `koanf:"nats"`
	Temporal      TemporalConfig      `koanf:"temporal"`
	Knowledge     KnowledgeConfig     `koanf:"knowledge"`
	LLM           LLMConfig           `koanf:"llm"`
	Store         StoreConfig         `koanf:"store"`
	Redis         RedisConfig         `koanf:"redis"`
	Secrets       SecretsConfig       `koanf:"secrets"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`

	// APIToken is the bearer token for /api/v1. Empty disables auth.
	APIToken Secret `koanf:"api_token"`
}

// ObservabilityConfig holds OpenTelemetry and logging configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	Endpoint        string `koanf:"otlp_endpoint"`
	LogLevel        string `koanf:"log_level"`
	LogFormat       string `koanf:"log_format"`
}

// RouterConfig tunes ticket dispatch.
type RouterConfig struct {
	// Root is the target source tree fixes are applied to.
	Root                string   `koanf:"root"`
	PollInterval        Duration `koanf:"poll_interval"`
	PollLimit           int      `koanf:"poll_limit"`
	ClaimTTL            Duration `koanf:"claim_ttl"`
	DuplicateWindow     Duration `koanf:"duplicate_window"`
	CacheSize           int      `koanf:"cache_size"`
	CacheTTL            Duration `koanf:"cache_ttl"`
	EscalationThreshold int      `koanf:"escalation_threshold"`
	PlanDir             string   `koanf:"plan_dir"`
	DisablePolling      bool     `koanf:"disable_polling"`
}

// ExecutorConfig configures instruction execution. Commands are split on
// whitespace.
type ExecutorConfig struct {
	MessagesDir    string   `koanf:"messages_dir"`
	MigrationsDir  string   `koanf:"migrations_dir"`
	FrontendDir    string   `koanf:"frontend_dir"`
	LintCommand    string   `koanf:"lint_command"`
	BuildCommand   string   `koanf:"build_command"`
	RestartCommand string   `koanf:"restart_command"`
	LintTimeout    Duration `koanf:"lint_timeout"`
	BuildTimeout   Duration `koanf:"build_timeout"`
	RestartTimeout Duration `koanf:"restart_timeout"`
	SkipChecks     bool     `koanf:"skip_checks"`
}

// ApprovalConfig configures the human approval gate.
type ApprovalConfig struct {
	Timeout     Duration `koanf:"timeout"`
	ReuseWindow Duration `koanf:"reuse_window"`

	// Backend is "memory" (in-process) or "temporal".
	Backend string `koanf:"backend"`
}

// RemoteConfig configures SSH execution on the application host.
type RemoteConfig struct {
	Host                string   `koanf:"host"`
	Port                int      `koanf:"port"`
	User                string   `koanf:"user"`
	KeyPath             string   `koanf:"key_path"`
	KnownHostsPath      string   `koanf:"known_hosts_path"`
	WhitelistPath       string   `koanf:"whitelist_path"`
	CommandsPerMinute   int      `koanf:"commands_per_minute"`
	DialTimeout         Duration `koanf:"dial_timeout"`
	InsecureSkipHostKey bool     `koanf:"insecure_skip_host_key"`
}

// Enabled reports whether a remote host is configured.
func (c RemoteConfig) Enabled() bool { return c.Host != "" }

// SupabaseConfig configures the privileged SQL RPC.
type SupabaseConfig struct {
	URL            string   `koanf:"url"`
	ServiceRoleKey Secret   `koanf:"service_role_key"`
	Timeout        Duration `koanf:"timeout"`
}

// Enabled reports whether the RPC is configured.
func (c SupabaseConfig) Enabled() bool { return c.URL != "" && c.ServiceRoleKey.IsSet() }

// TelegramConfig configures the Telegram approval channel.
type TelegramConfig struct {
	Token     Secret  `koanf:"token"`
	ChatID    int64   `koanf:"chat_id"`
	AllowFrom []int64 `koanf:"allow_from"`
}

// Enabled reports whether Telegram is configured.
func (c TelegramConfig) Enabled() bool { return c.Token.IsSet() && c.ChatID != 0 }

// NATSConfig configures the NATS connection.
type NATSConfig struct {
	URL  string `koanf:"url"`
	Name string `koanf:"name"`
}

// Enabled reports whether NATS is configured.
func (c NATSConfig) Enabled() bool { return c.URL != "" }

// TemporalConfig configures the Temporal approval backend.
type TemporalConfig struct {
	HostPort  string `koanf:"host_port"`
	Namespace string `koanf:"namespace"`
	TaskQueue string `koanf:"task_queue"`
}

// KnowledgeConfig configures the documentation corpus.
type KnowledgeConfig struct {
	// Dir is the markdown documentation tree. Empty disables the corpus.
	Dir            string   `koanf:"dir"`
	Path           string   `koanf:"path"`
	Collection     string   `koanf:"collection"`
	Compress       bool     `koanf:"compress"`
	Watch          bool     `koanf:"watch"`
	Debounce       Duration `koanf:"debounce"`
	EmbeddingURL   string   `koanf:"embedding_url"`
	EmbeddingModel string   `koanf:"embedding_model"`
	EmbeddingKey   Secret   `koanf:"embedding_key"`
	QueryLimit     int      `koanf:"query_limit"`
	Threshold      float64  `koanf:"threshold"`
}

// Enabled reports whether a corpus is configured.
func (c KnowledgeConfig) Enabled() bool { return c.Dir != "" }

// LLMConfig configures the language model client.
type LLMConfig struct {
	BaseURL     string   `koanf:"base_url"`
	Model       string   `koanf:"model"`
	APIKey      Secret   `koanf:"api_key"`
	Temperature float64  `koanf:"temperature"`
	MaxTokens   int      `koanf:"max_tokens"`
	RateLimit   float64  `koanf:"rate_limit"`
	Timeout     Duration `koanf:"timeout"`
}

// Enabled reports whether an API key is configured.
func (c LLMConfig) Enabled() bool { return c.APIKey.IsSet() }

// StoreConfig configures the ticket store.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// RedisConfig configures shared ticket claims.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password Secret `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

// Enabled reports whether Redis is configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// SecretsConfig tunes redaction of outgoing text.
type SecretsConfig struct {
	// DisableGitleaks drops the gitleaks rule set and keeps only the
	// built-in rules.
	DisableGitleaks bool     `koanf:"disable_gitleaks"`
	AllowList       []string `koanf:"allow_list"`
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Shutdown timeout is not positive
//   - Service name is empty (when telemetry is enabled)
//   - The approval backend is unknown, or temporal without a host
//   - Telegram has a token but no chat
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		errs = append(errs, errors.New("service name required when telemetry is enabled"))
	}
	if c.Router.Root == "" {
		errs = append(errs, errors.New("router root is required"))
	}

	switch c.Approval.Backend {
	case "memory":
	case "temporal":
		if c.Temporal.HostPort == "" {
			errs = append(errs, errors.New("temporal host_port required for the temporal approval backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown approval backend %q (memory, temporal)", c.Approval.Backend))
	}

	if c.Telegram.Token.IsSet() && c.Telegram.ChatID == 0 {
		errs = append(errs, errors.New("telegram chat_id required when a token is set"))
	}
	if c.Knowledge.Threshold < 0 || c.Knowledge.Threshold > 1 {
		errs = append(errs, fmt.Errorf("knowledge threshold %v out of range [0,1]", c.Knowledge.Threshold))
	}
	return errors.Join(errs...)
}

// Fields splits a configured command line. An empty string yields nil so
// callers fall back to their defaults.
func Fields(command string) []string {
	f := strings.Fields(command)
	if len(f) == 0 {
		return nil
	}
	return f
}
