package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()

	if cfg.Server.Port != 9191 {
		t.Errorf("Server.Port = %d, want 9191", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout.Duration() != 10*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 10s", cfg.Server.ShutdownTimeout.Duration())
	}
	if cfg.Observability.EnableTelemetry {
		t.Error("Observability.EnableTelemetry = true, want false (disabled by default)")
	}
	if cfg.Observability.ServiceName != "autopatchd" {
		t.Errorf("Observability.ServiceName = %q, want autopatchd", cfg.Observability.ServiceName)
	}
	if cfg.Router.Root != "." {
		t.Errorf("Router.Root = %q, want .", cfg.Router.Root)
	}
	if cfg.Approval.Backend != "memory" {
		t.Errorf("Approval.Backend = %q, want memory", cfg.Approval.Backend)
	}
	if cfg.Approval.Timeout.Duration() != 30*time.Minute {
		t.Errorf("Approval.Timeout = %v, want 30m", cfg.Approval.Timeout.Duration())
	}
	if cfg.Remote.Port != 22 {
		t.Errorf("Remote.Port = %d, want 22", cfg.Remote.Port)
	}

	for name, enabled := range map[string]bool{
		"remote":    cfg.Remote.Enabled(),
		"supabase":  cfg.Supabase.Enabled(),
		"telegram":  cfg.Telegram.Enabled(),
		"nats":      cfg.NATS.Enabled(),
		"knowledge": cfg.Knowledge.Enabled(),
		"llm":       cfg.LLM.Enabled(),
		"redis":     cfg.Redis.Enabled(),
	} {
		if enabled {
			t.Errorf("%s enabled by default", name)
		}
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "invalid port - too low",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "invalid port - too high",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "invalid shutdown timeout",
			mutate:  func(c *Config) { c.Server.ShutdownTimeout = 0 },
			wantErr: "shutdown timeout",
		},
		{
			name: "empty service name",
			mutate: func(c *Config) {
				c.Observability.EnableTelemetry = true
				c.Observability.ServiceName = ""
			},
			wantErr: "service name",
		},
		{
			name:    "empty root",
			mutate:  func(c *Config) { c.Router.Root = "" },
			wantErr: "router root",
		},
		{
			name:    "unknown approval backend",
			mutate:  func(c *Config) { c.Approval.Backend = "slack" },
			wantErr: "unknown approval backend",
		},
		{
			name:    "temporal without host",
			mutate:  func(c *Config) { c.Approval.Backend = "temporal" },
			wantErr: "temporal host_port",
		},
		{
			name: "temporal with host",
			mutate: func(c *Config) {
				c.Approval.Backend = "temporal"
				c.Temporal.HostPort = "localhost:7233"
			},
		},
		{
			name:    "telegram without chat",
			mutate:  func(c *Config) { c.Telegram.Token = "token" },
			wantErr: "chat_id",
		},
		{
			name:    "threshold out of range",
			mutate:  func(c *Config) { c.Knowledge.Threshold = 1.5 },
			wantErr: "threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateJoinsErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.Approval.Backend = "slack"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil, want joined errors")
	}
	for _, want := range []string{"invalid server port", "unknown approval backend"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error = %v, missing %q", err, want)
		}
	}
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("sk-live-123")

	if got := fmt.Sprintf("%v %s %#v", s, s, s); strings.Contains(got, "sk-live") {
		t.Errorf("formatted secret leaked: %s", got)
	}
	data, err := json.Marshal(struct{ Key Secret }{Key: s})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if strings.Contains(string(data), "sk-live") {
		t.Errorf("marshaled secret leaked: %s", data)
	}
	if s.Value() != "sk-live-123" {
		t.Errorf("Value() = %q", s.Value())
	}

	var decoded Secret
	if err := json.Unmarshal([]byte(`"raw"`), &decoded); err != nil || decoded.Value() != "raw" {
		t.Errorf("UnmarshalJSON() = %q, %v", decoded.Value(), err)
	}
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if d.Duration() != 90*time.Second {
		t.Errorf("Duration() = %v, want 90s", d.Duration())
	}
	if err := d.UnmarshalText([]byte("-1s")); err == nil {
		t.Error("UnmarshalText() accepted a negative duration")
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("UnmarshalText() accepted garbage")
	}
}

func TestFields(t *testing.T) {
	if got := Fields("  "); got != nil {
		t.Errorf("Fields(blank) = %v, want nil", got)
	}
	if got := Fields("systemctl restart app"); len(got) != 3 || got[2] != "app" {
		t.Errorf("Fields() = %v", got)
	}
}

func TestDuration_BareSeconds(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte(" 45 ")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if d.Duration() != 45*time.Second {
		t.Errorf("Duration() = %v, want 45s", d.Duration())
	}
	if got := Duration(0).OrDefault(time.Minute); got != time.Minute {
		t.Errorf("OrDefault() = %v, want 1m", got)
	}
	if got := d.OrDefault(time.Minute); got != 45*time.Second {
		t.Errorf("OrDefault() = %v, want 45s", got)
	}
}

func TestSecret_Hint(t *testing.T) {
	tests := []struct {
		secret Secret
		want   string
	}{
		{"", ""},
		{"short", "****"},
		{"sk_live_abcdef123456f3a9", "****f3a9"},
	}
	for _, tt := range tests {
		if got := tt.secret.Hint(); got != tt.want {
			t.Errorf("Hint(%q) = %q, want %q", tt.secret.Value(), got, tt.want)
		}
	}
	if Secret("   ").IsSet() {
		t.Error("IsSet() = true for blank secret")
	}
}
