package internal

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration. Environment variables in
// the YAML source are expanded before parsing, so secrets can live in the
// environment (`api_token: ${PLANE_API_TOKEN}`).
type Config struct {
	// Server holds HTTP server configuration.
	Server struct {
		Port           int    `yaml:"port"`
		ReadTimeoutMS  int64  `yaml:"read_timeout_ms"`
		WriteTimeoutMS int64  `yaml:"write_timeout_ms"`
		IdleTimeoutMS  int64  `yaml:"idle_timeout_ms"`
		ReadHeaderMS   int64  `yaml:"read_header_timeout_ms"`
		MaxBodyBytes   int64  `yaml:"max_body_bytes"`
		RateLimitRPS   int64  `yaml:"rate_limit_rps"`
		RateLimitBurst int64  `yaml:"rate_limit_burst"`
		MetricsEnabled bool   `yaml:"metrics_enabled"`
		MetricsPath    string `yaml:"metrics_path"`
		WebhookPath    string `yaml:"webhook_path"`
		HealthPath     string `yaml:"health_path"`
	} `yaml:"server"`
	// Discord configures the outbound notification webhook.
	Discord DiscordConfig `yaml:"discord"`
	// Plane configures callbacks to the Plane instance (avatar fetches).
	Plane PlaneConfig `yaml:"plane"`
	// Archive configures best-effort raw payload archiving.
	Archive ArchiveConfig `yaml:"archive"`
	// Rules are operator-defined suppression rules, evaluated before any
	// notification is composed.
	Rules       []Rule `yaml:"rules"`
	RulesStrict bool   `yaml:"rules_strict"`
}

// DiscordConfig holds the outbound webhook settings.
type DiscordConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	TimeoutMS  int64  `yaml:"timeout_ms"`
}

// PlaneConfig holds the Plane instance settings used for avatar retrieval.
type PlaneConfig struct {
	BaseURL         string `yaml:"base_url"`
	APIToken        string `yaml:"api_token"`
	AvatarTimeoutMS int64  `yaml:"avatar_timeout_ms"`
}

// ArchiveConfig selects and configures the archive sinks. The zero value
// (driver "none") disables archiving.
type ArchiveConfig struct {
	Driver    string          `yaml:"driver"`
	Drivers   []string        `yaml:"drivers"`
	Topic     string          `yaml:"topic"`
	File      FileConfig      `yaml:"file"`
	GoChannel GoChannelConfig `yaml:"gochannel"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	NATS      NATSConfig      `yaml:"nats"`
	AMQP      AMQPConfig      `yaml:"amqp"`
	SQL       SQLConfig       `yaml:"sql"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// FileConfig holds configuration for the file archive sink.
type FileConfig struct {
	Dir string `yaml:"dir"`
}

// GoChannelConfig holds configuration for the in-process pub/sub sink.
type GoChannelConfig struct {
	OutputChannelBuffer            int64 `yaml:"output_buffer"`
	Persistent                     bool  `yaml:"persistent"`
	BlockPublishUntilSubscriberAck bool  `yaml:"block_publish_until_subscriber_ack"`
}

// KafkaConfig holds configuration for the Kafka archive sink.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

// NATSConfig holds configuration for the NATS Streaming archive sink.
type NATSConfig struct {
	ClusterID string `yaml:"cluster_id"`
	ClientID  string `yaml:"client_id"`
	URL       string `yaml:"url"`
}

// AMQPConfig holds configuration for the AMQP archive sink.
type AMQPConfig struct {
	URL  string `yaml:"url"`
	Mode string `yaml:"mode"`
}

// SQLConfig holds configuration for the SQL archive sink.
type SQLConfig struct {
	Driver               string `yaml:"driver"`
	DSN                  string `yaml:"dsn"`
	Dialect              string `yaml:"dialect"`
	InitializeSchema     bool   `yaml:"initialize_schema"`
	AutoInitializeSchema bool   `yaml:"auto_initialize_schema"`
}

// HTTPConfig holds configuration for the HTTP archive sink.
type HTTPConfig struct {
	BaseURL string `yaml:"base_url"`
	Mode    string `yaml:"mode"`
}

// LoadConfig loads the application configuration from a YAML file. It
// expands environment variables, applies defaults, and normalizes rules.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, err
	}

	applyDefaults(&cfg)
	normalized, err := normalizeRules(cfg.Rules)
	if err != nil {
		return cfg, err
	}
	cfg.Rules = normalized

	if cfg.Discord.WebhookURL == "" {
		return cfg, fmt.Errorf("discord webhook_url is required")
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeoutMS == 0 {
		cfg.Server.ReadTimeoutMS = 5000
	}
	if cfg.Server.WriteTimeoutMS == 0 {
		// The relay call happens inside the request, so the write timeout
		// must cover the Discord timeout with headroom.
		cfg.Server.WriteTimeoutMS = 45000
	}
	if cfg.Server.IdleTimeoutMS == 0 {
		cfg.Server.IdleTimeoutMS = 60000
	}
	if cfg.Server.ReadHeaderMS == 0 {
		cfg.Server.ReadHeaderMS = 5000
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = "/debug/vars"
	}
	if cfg.Server.WebhookPath == "" {
		cfg.Server.WebhookPath = "/webhooks/plane"
	}
	if cfg.Server.HealthPath == "" {
		cfg.Server.HealthPath = "/healthz"
	}
	if cfg.Discord.TimeoutMS == 0 {
		cfg.Discord.TimeoutMS = 20000
	}
	if cfg.Plane.AvatarTimeoutMS == 0 {
		cfg.Plane.AvatarTimeoutMS = 10000
	}
	cfg.Plane.BaseURL = strings.TrimRight(cfg.Plane.BaseURL, "/")
	if cfg.Archive.Driver == "" && len(cfg.Archive.Drivers) == 0 {
		cfg.Archive.Driver = "none"
	}
	if cfg.Archive.Topic == "" {
		cfg.Archive.Topic = "plane.events"
	}
	if cfg.Archive.File.Dir == "" {
		cfg.Archive.File.Dir = "plane_requests"
	}
	if cfg.Archive.GoChannel.OutputChannelBuffer == 0 {
		cfg.Archive.GoChannel.OutputChannelBuffer = 64
	}
	if cfg.Archive.HTTP.Mode == "" {
		cfg.Archive.HTTP.Mode = "topic_url"
	}
}

func normalizeRules(rules []Rule) ([]Rule, error) {
	out := make([]Rule, 0, len(rules))
	for i := range rules {
		rule := rules[i]
		rule.When = strings.TrimSpace(rule.When)
		if rule.When == "" {
			return nil, fmt.Errorf("rule %d is missing when", i)
		}
		out = append(out, rule)
	}
	return out, nil
}
