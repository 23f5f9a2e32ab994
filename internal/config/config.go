// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/bidharvest/internal/harvest"
	"github.com/JakeFAU/bidharvest/internal/listing/headless"
)

// Store backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendGCS      = "gcs"
)

// Outreach sinks.
const (
	SinkWebhook = "webhook"
	SinkPubSub  = "pubsub"
)

// DefaultRelevanceTerms flag inspection-related tenders.
var DefaultRelevanceTerms = []string{
	"robotic", "robot", "crawler", "rover", "automated", "drone", "uav", "remotely operated", "rov",
	"visual", "rvi", "remote visual", "manual inspection", "camera", "borescope",
	"ndt", "non-destructive", "ut", "ultrasonic", "thickness measurement", "mfl", "magnetic flux",
	"eddy current", "ect", "radiography", "x-ray", "rt", "thermography", "infrared",
	"corrosion", "leakage", "crack", "weld", "coating", "asset integrity",
}

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Listing   ListingConfig   `mapstructure:"listing"`
	Harvest   HarvestConfig   `mapstructure:"harvest"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Store     StoreConfig     `mapstructure:"store"`
	Outreach  OutreachConfig  `mapstructure:"outreach"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	// Level is a zap level name; empty keeps the mode's default.
	Level string `mapstructure:"level"`
}

// ListingConfig drives the browser session against the tender listing.
type ListingConfig struct {
	URL          string             `mapstructure:"url"`
	Category     string             `mapstructure:"category"`
	SearchTerms  []string           `mapstructure:"search_terms"`
	ReadyTimeout time.Duration      `mapstructure:"ready_timeout"`
	Settle       time.Duration      `mapstructure:"settle"`
	UserAgent    string             `mapstructure:"user_agent"`
	Headless     bool               `mapstructure:"headless"`
	MaxPages     int                `mapstructure:"max_pages"`
	Selectors    headless.Selectors `mapstructure:"selectors"`
}

// HarvestConfig governs per-item processing and the completion ledger.
type HarvestConfig struct {
	BatchSize      int      `mapstructure:"batch_size"`
	LinkDepth      int      `mapstructure:"link_depth"`
	LinkExtension  string   `mapstructure:"link_extension"`
	RetentionDays  int      `mapstructure:"retention_days"`
	RelevanceTerms []string `mapstructure:"relevance_terms"`
	SpoolDir       string   `mapstructure:"spool_dir"`
}

// HTTPConfig configures document downloads.
type HTTPConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int     `mapstructure:"max_body_bytes"`
	RatePerHost    float64 `mapstructure:"rate_per_host"`
	Burst          int     `mapstructure:"burst"`
}

// StoreConfig selects where the ledger and contact documents live.
type StoreConfig struct {
	Backend      string         `mapstructure:"backend"`
	LedgerPath   string         `mapstructure:"ledger_path"`
	ContactsPath string         `mapstructure:"contacts_path"`
	Postgres     PostgresConfig `mapstructure:"postgres"`
	GCS          GCSConfig      `mapstructure:"gcs"`
}

// PostgresConfig controls the Postgres document backend.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// GCSConfig controls the Cloud Storage document backend.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// OutreachConfig controls the outreach scheduler and its sink.
type OutreachConfig struct {
	Sink            string            `mapstructure:"sink"`
	WebhookURL      string            `mapstructure:"webhook_url"`
	WebhookHeaders  map[string]string `mapstructure:"webhook_headers"`
	Mode            string            `mapstructure:"mode"`
	MaxBatch        int               `mapstructure:"max_batch"`
	PubSub          PubSubConfig      `mapstructure:"pubsub"`
	Domains         []string          `mapstructure:"domains"`
	DomainThreshold int               `mapstructure:"domain_threshold"`
}

// PubSubConfig names the outreach topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig controls the Prometheus endpoint; an empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	ProjectID   string  `mapstructure:"project_id"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BIDHARVEST")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("listing.url", "https://bidplus.gem.gov.in/advance-search")
	v.SetDefault("listing.category", "MINISTRY OF PETROLEUM AND NATURAL GAS")
	v.SetDefault("listing.search_terms", []string{"*"})
	v.SetDefault("listing.ready_timeout", 60*time.Second)
	v.SetDefault("listing.settle", 2*time.Second)
	v.SetDefault("listing.user_agent", "bidharvest/1.0")
	v.SetDefault("listing.headless", true)
	v.SetDefault("listing.max_pages", 0)
	v.SetDefault("listing.selectors.category_input", headless.DefaultSelectors.CategoryInput)
	v.SetDefault("listing.selectors.category_submit", headless.DefaultSelectors.CategorySubmit)
	v.SetDefault("listing.selectors.search_input", headless.DefaultSelectors.SearchInput)
	v.SetDefault("listing.selectors.search_submit", headless.DefaultSelectors.SearchSubmit)
	v.SetDefault("listing.selectors.row", headless.DefaultSelectors.Row)
	v.SetDefault("listing.selectors.link", headless.DefaultSelectors.Link)
	v.SetDefault("listing.selectors.next", headless.DefaultSelectors.Next)
	v.SetDefault("harvest.batch_size", 5)
	v.SetDefault("harvest.link_depth", 1)
	v.SetDefault("harvest.link_extension", ".pdf")
	v.SetDefault("harvest.retention_days", 60)
	v.SetDefault("harvest.relevance_terms", DefaultRelevanceTerms)
	v.SetDefault("harvest.spool_dir", "data/spool")
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("http.max_body_bytes", 50<<20)
	v.SetDefault("http.rate_per_host", 2)
	v.SetDefault("http.burst", 1)
	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.ledger_path", "bid_history_log.json")
	v.SetDefault("store.contacts_path", "email_master_db.json")
	v.SetDefault("store.postgres.table", "bidharvest_kv")
	v.SetDefault("store.postgres.max_conns", 4)
	v.SetDefault("store.gcs.prefix", "bidharvest")
	v.SetDefault("outreach.sink", SinkWebhook)
	v.SetDefault("outreach.mode", string(harvest.PayloadBatch))
	v.SetDefault("outreach.domain_threshold", 10)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "bidharvest")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Listing.URL == "" {
		return fmt.Errorf("listing.url is required")
	}
	if c.Harvest.BatchSize <= 0 {
		return fmt.Errorf("harvest.batch_size must be > 0")
	}
	if c.Harvest.LinkDepth < 0 {
		return fmt.Errorf("harvest.link_depth must be >= 0")
	}
	if c.Harvest.RetentionDays <= 0 {
		return fmt.Errorf("harvest.retention_days must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	switch c.Store.Backend {
	case BackendFile:
		if c.Store.LedgerPath == "" || c.Store.ContactsPath == "" {
			return fmt.Errorf("store.ledger_path and store.contacts_path are required for the file backend")
		}
	case BackendPostgres:
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn is required for the postgres backend")
		}
	case BackendGCS:
		if c.Store.GCS.Bucket == "" {
			return fmt.Errorf("store.gcs.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not one of file, postgres, gcs", c.Store.Backend)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	switch c.Outreach.Sink {
	case SinkWebhook, SinkPubSub:
	default:
		return fmt.Errorf("outreach.sink %q is not one of webhook, pubsub", c.Outreach.Sink)
	}
	switch harvest.PayloadKind(c.Outreach.Mode) {
	case harvest.PayloadBatch, harvest.PayloadSingle:
	default:
		return fmt.Errorf("outreach.mode %q is not one of batch, single", c.Outreach.Mode)
	}
	return nil
}

// Timeout converts the HTTP timeout to a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// ValidateOutreach checks the settings the chosen sink needs. Crawls do not
// need a sink, so this is separate from Validate.
func (c Config) ValidateOutreach() error {
	switch c.Outreach.Sink {
	case SinkWebhook:
		if c.Outreach.WebhookURL == "" {
			return fmt.Errorf("outreach.webhook_url is required for the webhook sink")
		}
	case SinkPubSub:
		if c.Outreach.PubSub.ProjectID == "" || c.Outreach.PubSub.Topic == "" {
			return fmt.Errorf("outreach.pubsub.project_id and outreach.pubsub.topic are required for the pubsub sink")
		}
	}
	return nil
}
