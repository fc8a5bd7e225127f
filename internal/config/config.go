// Package config loads and validates enricher configuration via Viper.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix scopes environment overrides, e.g. LEADGRAPH_ENRICHMENT_BATCH_SIZE.
const EnvPrefix = "LEADGRAPH"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery"`
	Acquire    AcquireConfig    `mapstructure:"acquire"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	External   ExternalConfig   `mapstructure:"external"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Generation GenerationConfig `mapstructure:"generation"`
	Output     OutputConfig     `mapstructure:"output"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DiscoveryConfig lists the listing files a run may read.
type DiscoveryConfig struct {
	Files []FileSourceConfig `mapstructure:"files"`
}

// FileSourceConfig names one listing file.
type FileSourceConfig struct {
	Name string `mapstructure:"name"`
	Path string `mapstructure:"path"`
}

// AcquireConfig governs the tiered acquisition engine and the direct tier.
type AcquireConfig struct {
	Escalation    []string      `mapstructure:"escalation"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	RenderTimeout time.Duration `mapstructure:"render_timeout"`
	CrawlTimeout  time.Duration `mapstructure:"crawl_timeout"`
	MaxPages      int           `mapstructure:"max_pages"`
	MinBytes      int           `mapstructure:"min_bytes"`
	SuspectBytes  int           `mapstructure:"suspect_bytes"`
	ExtraMarkers  []string      `mapstructure:"extra_markers"`
	SkipDomains   []string      `mapstructure:"skip_domains"`
	UserAgent     string        `mapstructure:"user_agent"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	HostRPS       float64       `mapstructure:"host_rps"`
	HostBurst     int           `mapstructure:"host_burst"`
}

// HeadlessConfig configures the browser rendering tier.
type HeadlessConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxParallel  int           `mapstructure:"max_parallel"`
	UserAgent    string        `mapstructure:"user_agent"`
	WindowWidth  int           `mapstructure:"window_width"`
	WindowHeight int           `mapstructure:"window_height"`
	SettleDelay  time.Duration `mapstructure:"settle_delay"`
	ExecPath     string        `mapstructure:"exec_path"`
}

// ExternalConfig configures the out-of-process crawler tier.
type ExternalConfig struct {
	Command      string        `mapstructure:"command"`
	Args         []string      `mapstructure:"args"`
	ProbeArgs    []string      `mapstructure:"probe_args"`
	ProbeToken   string        `mapstructure:"probe_token"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	Grace        time.Duration `mapstructure:"grace"`
}

// EnrichmentConfig bounds concurrent enrichment units.
type EnrichmentConfig struct {
	BatchSize int           `mapstructure:"batch_size"`
	Pace      time.Duration `mapstructure:"pace"`
}

// ScoringConfig sets the tier thresholds of the default scorer.
type ScoringConfig struct {
	HotThreshold  int `mapstructure:"hot_threshold"`
	WarmThreshold int `mapstructure:"warm_threshold"`
}

// GenerationConfig configures outreach generation. A missing API key disables
// the stage for the run rather than failing validation.
type GenerationConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Temperature float32       `mapstructure:"temperature"`
	Spacing     time.Duration `mapstructure:"spacing"`
	MinScore    int           `mapstructure:"min_score"`
}

// OutputConfig selects where run artifacts land.
type OutputConfig struct {
	Prefix        string `mapstructure:"prefix"`
	LocalDir      string `mapstructure:"local_dir"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
	GCSPrefix     string `mapstructure:"gcs_prefix"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	PostgresTable string `mapstructure:"postgres_table"`
}

// NotifyConfig holds the Pub/Sub run-completed notification target.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig controls the operational HTTP listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds a Config from defaults, an optional file, and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := v.BindEnv("generation.api_key", EnvPrefix+"_GENERATION_API_KEY", "GEMINI_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind generation api key: %w", err)
	}

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
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("acquire.escalation", []string{"browser"})
	v.SetDefault("acquire.fetch_timeout", 15*time.Second)
	v.SetDefault("acquire.render_timeout", 30*time.Second)
	v.SetDefault("acquire.crawl_timeout", 60*time.Second)
	v.SetDefault("acquire.max_pages", 3)
	v.SetDefault("acquire.min_bytes", 1000)
	v.SetDefault("acquire.suspect_bytes", 5000)
	v.SetDefault("acquire.skip_domains", []string{
		"*.facebook.com", "*.instagram.com", "*.yelp.com", "*.linkedin.com",
		"*.nextdoor.com", "*.google.com", "*.business.site",
	})
	v.SetDefault("acquire.respect_robots", false)
	v.SetDefault("acquire.host_rps", 0)
	v.SetDefault("acquire.host_burst", 1)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.window_width", 1366)
	v.SetDefault("headless.window_height", 768)
	v.SetDefault("headless.settle_delay", 2*time.Second)
	v.SetDefault("external.probe_token", "ok")
	v.SetDefault("external.probe_timeout", 30*time.Second)
	v.SetDefault("external.grace", 10*time.Second)
	v.SetDefault("enrichment.batch_size", 2)
	v.SetDefault("enrichment.pace", 500*time.Millisecond)
	v.SetDefault("scoring.hot_threshold", 60)
	v.SetDefault("scoring.warm_threshold", 35)
	v.SetDefault("generation.model", "gemini-2.0-flash")
	v.SetDefault("generation.timeout", 60*time.Second)
	v.SetDefault("generation.temperature", 0.7)
	v.SetDefault("generation.spacing", time.Second)
	v.SetDefault("generation.min_score", 35)
	v.SetDefault("output.prefix", "runs")
	v.SetDefault("output.local_dir", "./out")
	v.SetDefault("output.postgres_table", "run_summaries")
	v.SetDefault("metrics.addr", "")
}

// normalize lowercases and trims list values that arrive from env or files.
func (c *Config) normalize() {
	tiers := make([]string, 0, len(c.Acquire.Escalation))
	for _, raw := range c.Acquire.Escalation {
		for _, part := range strings.Split(raw, ",") {
			if tier := strings.ToLower(strings.TrimSpace(part)); tier != "" {
				tiers = append(tiers, tier)
			}
		}
	}
	c.Acquire.Escalation = tiers
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Enrichment.BatchSize <= 0 {
		return fmt.Errorf("enrichment.batch_size must be > 0")
	}
	if c.Enrichment.Pace < 0 {
		return fmt.Errorf("enrichment.pace must be >= 0")
	}
	if c.Acquire.FetchTimeout <= 0 {
		return fmt.Errorf("acquire.fetch_timeout must be > 0")
	}
	if c.Acquire.RenderTimeout <= 0 {
		return fmt.Errorf("acquire.render_timeout must be > 0")
	}
	if c.Acquire.CrawlTimeout <= 0 {
		return fmt.Errorf("acquire.crawl_timeout must be > 0")
	}
	if c.Acquire.MaxPages <= 0 {
		return fmt.Errorf("acquire.max_pages must be > 0")
	}
	if c.Acquire.MinBytes <= 0 {
		return fmt.Errorf("acquire.min_bytes must be > 0")
	}
	if c.Acquire.SuspectBytes < c.Acquire.MinBytes {
		return fmt.Errorf("acquire.suspect_bytes must be >= acquire.min_bytes")
	}
	for _, tier := range c.Acquire.Escalation {
		switch tier {
		case "browser":
			if !c.Headless.Enabled {
				return fmt.Errorf("acquire.escalation includes browser but headless.enabled is false")
			}
		case "external":
			if strings.TrimSpace(c.External.Command) == "" {
				return fmt.Errorf("external.command must be set when acquire.escalation includes external")
			}
		default:
			return fmt.Errorf("acquire.escalation: unknown tier %q", tier)
		}
	}
	if c.Headless.Enabled && c.Headless.MaxParallel < 0 {
		return fmt.Errorf("headless.max_parallel must be >= 0")
	}
	if c.External.Grace < 0 {
		return fmt.Errorf("external.grace must be >= 0")
	}
	if c.Generation.Spacing <= 0 {
		return fmt.Errorf("generation.spacing must be > 0")
	}
	if c.Generation.APIKey != "" && c.Generation.Model == "" {
		return fmt.Errorf("generation.model must be set when generation.api_key is set")
	}
	if c.Output.LocalDir != "" && c.Output.GCSBucket != "" {
		return fmt.Errorf("output.local_dir and output.gcs_bucket are mutually exclusive")
	}
	if c.Notify.Topic != "" && c.Notify.ProjectID == "" {
		return fmt.Errorf("notify.project_id must be set when notify.topic is set")
	}
	seen := make([]string, 0, len(c.Discovery.Files))
	for i, f := range c.Discovery.Files {
		if strings.TrimSpace(f.Path) == "" {
			return fmt.Errorf("discovery.files[%d].path is required", i)
		}
		name := strings.ToLower(f.Name)
		if slices.Contains(seen, name) {
			return fmt.Errorf("discovery.files[%d].name %q is duplicated", i, f.Name)
		}
		seen = append(seen, name)
	}
	return nil
}

// EscalationIncludes reports whether tier is part of the configured escalation.
func (c Config) EscalationIncludes(tier string) bool {
	return slices.Contains(c.Acquire.Escalation, tier)
}
