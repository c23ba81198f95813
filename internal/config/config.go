// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/prerender-gate/internal/prerender"
)

// EnvPrefix prefixes every environment override, e.g. GATE_PRERENDER_TOKEN
// for prerender.token or GATE_RENDER_PORT for render.port.
const EnvPrefix = "GATE"

// Config captures all configuration knobs for the gate and the render backend.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Prerender PrerenderConfig `mapstructure:"prerender"`
	Render    RenderConfig    `mapstructure:"render"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the gate's HTTP server.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// UpstreamConfig names the wrapped application: a URL to reverse proxy to or
// a directory of static files.
type UpstreamConfig struct {
	URL       string `mapstructure:"url"`
	StaticDir string `mapstructure:"static_dir"`
}

// PrerenderConfig configures the prerender middleware. Empty lists keep the
// built-in defaults; the Extra lists are appended to whatever base is in use.
type PrerenderConfig struct {
	BackendURL             string   `mapstructure:"backend_url"`
	Token                  string   `mapstructure:"token"`
	TimeoutSeconds         int      `mapstructure:"timeout_seconds"`
	IgnoredExtensions      []string `mapstructure:"ignored_extensions"`
	ExtraIgnoredExtensions []string `mapstructure:"extra_ignored_extensions"`
	BotUserAgents          []string `mapstructure:"bot_user_agents"`
	ExtraBotUserAgents     []string `mapstructure:"extra_bot_user_agents"`
	Blacklist              []string `mapstructure:"blacklist"`
	Whitelist              []string `mapstructure:"whitelist"`
}

// RenderConfig configures the headless render backend.
type RenderConfig struct {
	Port          int    `mapstructure:"port"`
	Token         string `mapstructure:"token"`
	MaxParallel   int    `mapstructure:"max_parallel"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	UserAgent     string `mapstructure:"user_agent"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("upstream.url", "")
	v.SetDefault("upstream.static_dir", "")
	v.SetDefault("prerender.backend_url", prerender.DefaultBackendURL)
	v.SetDefault("prerender.token", "")
	v.SetDefault("prerender.timeout_seconds", int(prerender.DefaultTimeout/time.Second))
	v.SetDefault("prerender.ignored_extensions", []string{})
	v.SetDefault("prerender.extra_ignored_extensions", []string{})
	v.SetDefault("prerender.bot_user_agents", []string{})
	v.SetDefault("prerender.extra_bot_user_agents", []string{})
	v.SetDefault("prerender.blacklist", []string{})
	v.SetDefault("prerender.whitelist", []string{})
	v.SetDefault("render.port", 3000)
	v.SetDefault("render.token", "")
	v.SetDefault("render.max_parallel", 2)
	v.SetDefault("render.nav_timeout_seconds", 25)
	v.SetDefault("render.user_agent", "prerender-gate-renderer/1.0")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits shared by both
// binaries. Gate-only requirements live in ValidateGate.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("server.shutdown_timeout_seconds must be > 0")
	}
	if c.Prerender.TimeoutSeconds <= 0 {
		return fmt.Errorf("prerender.timeout_seconds must be > 0")
	}
	if c.Render.Port <= 0 {
		return fmt.Errorf("render.port must be > 0")
	}
	if c.Render.MaxParallel < 0 {
		return fmt.Errorf("render.max_parallel must be >= 0")
	}
	if c.Render.NavTimeoutSec <= 0 {
		return fmt.Errorf("render.nav_timeout_seconds must be > 0")
	}
	if _, err := c.PrerenderConfig(); err != nil {
		return fmt.Errorf("prerender: %w", err)
	}
	return nil
}

// ValidateGate checks that exactly one upstream is configured.
func (c Config) ValidateGate() error {
	hasURL := c.Upstream.URL != ""
	hasDir := c.Upstream.StaticDir != ""
	switch {
	case hasURL && hasDir:
		return fmt.Errorf("upstream.url and upstream.static_dir are mutually exclusive")
	case !hasURL && !hasDir:
		return fmt.Errorf("one of upstream.url or upstream.static_dir must be set")
	case hasURL:
		u, err := url.Parse(c.Upstream.URL)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("upstream.url must be an absolute URL")
		}
	}
	return nil
}

// PrerenderConfig converts the prerender block into a middleware config.
func (c Config) PrerenderConfig() (*prerender.Config, error) {
	p := c.Prerender
	opts := prerender.Options{
		BackendURL:     p.BackendURL,
		PrerenderToken: p.Token,
		Blacklist:      p.Blacklist,
		Whitelist:      p.Whitelist,
	}
	if len(p.IgnoredExtensions) > 0 {
		opts.IgnoredExtensions = p.IgnoredExtensions
	}
	if len(p.BotUserAgents) > 0 {
		opts.BotUserAgents = p.BotUserAgents
	}
	cfg, err := prerender.NewConfig(opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.SkipExtensions(p.ExtraIgnoredExtensions...); err != nil {
		return nil, err
	}
	if err := cfg.PrerenderForUserAgents(p.ExtraBotUserAgents...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PrerenderTimeout is the backend fetch budget.
func (c Config) PrerenderTimeout() time.Duration {
	return time.Duration(c.Prerender.TimeoutSeconds) * time.Second
}

// ShutdownTimeout is the graceful drain budget.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// NavTimeout is the per-page browser navigation budget.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Render.NavTimeoutSec) * time.Second
}
