package config

import (
	"math"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Resolution ResolutionConfig `yaml:"resolution" mapstructure:"resolution"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ResolutionConfig is the full policy surface of the resolution engine. It is
// data, not code: runs with different policy sets are reproducible in
// isolation.
type ResolutionConfig struct {
	Weights    WeightsConfig    `yaml:"weights" mapstructure:"weights"`
	Thresholds ThresholdsConfig `yaml:"thresholds" mapstructure:"thresholds"`
	Blocking   BlockingConfig   `yaml:"blocking" mapstructure:"blocking"`
	Cluster    ClusterConfig    `yaml:"cluster" mapstructure:"cluster"`
	Keywords   KeywordsConfig   `yaml:"keywords" mapstructure:"keywords"`
	Confidence ConfidenceConfig `yaml:"confidence" mapstructure:"confidence"`
	Risk       RiskConfig       `yaml:"risk" mapstructure:"risk"`
	Workers    int              `yaml:"workers" mapstructure:"workers"`
}

// WeightsConfig holds per-field similarity weights. They must sum to 1.0;
// when a field is absent in a pair, its weight is redistributed over the
// remaining present fields.
type WeightsConfig struct {
	Name    float64 `yaml:"name" mapstructure:"name"`
	Email   float64 `yaml:"email" mapstructure:"email"`
	Phone   float64 `yaml:"phone" mapstructure:"phone"`
	Address float64 `yaml:"address" mapstructure:"address"`
}

// ThresholdsConfig holds similarity thresholds, all in [0,1].
type ThresholdsConfig struct {
	Overall float64 `yaml:"overall" mapstructure:"overall"`
}

// BlockingConfig configures the blocking index.
type BlockingConfig struct {
	Strategies     []string `yaml:"strategies" mapstructure:"strategies"`
	NamePrefixLen  int      `yaml:"name_prefix_len" mapstructure:"name_prefix_len"`
	TokenPrefixLen int      `yaml:"token_prefix_len" mapstructure:"token_prefix_len"`
	EmailPrefixLen int      `yaml:"email_prefix_len" mapstructure:"email_prefix_len"`
	PhonePrefixLen int      `yaml:"phone_prefix_len" mapstructure:"phone_prefix_len"`
	MaxBlockSize   int      `yaml:"max_block_size" mapstructure:"max_block_size"`
}

// ClusterConfig bounds cluster growth.
type ClusterConfig struct {
	MaxSize int `yaml:"max_size" mapstructure:"max_size"`
}

// KeywordsConfig holds the classification keyword policies. Injected into the
// aggregator, never process-wide constants.
type KeywordsConfig struct {
	Business   []string `yaml:"business" mapstructure:"business"`
	PEP        []string `yaml:"pep" mapstructure:"pep"`
	Suspicious []string `yaml:"suspicious" mapstructure:"suspicious"`
}

// ConfidenceConfig shapes entity confidence scoring. The size boost is a
// capped linear function of cluster size: boost = min(n*per_record, cap).
type ConfidenceConfig struct {
	SingleRecordBaseline float64 `yaml:"single_record_baseline" mapstructure:"single_record_baseline"`
	SizeBoostPerRecord   float64 `yaml:"size_boost_per_record" mapstructure:"size_boost_per_record"`
	SizeBoostCap         float64 `yaml:"size_boost_cap" mapstructure:"size_boost_cap"`
}

// RiskConfig shapes entity risk scoring.
type RiskConfig struct {
	Baseline             float64 `yaml:"baseline" mapstructure:"baseline"`
	MultiRecordThreshold int     `yaml:"multi_record_threshold" mapstructure:"multi_record_threshold"`
	MultiRecordIncrement float64 `yaml:"multi_record_increment" mapstructure:"multi_record_increment"`
	SuspiciousIncrement  float64 `yaml:"suspicious_increment" mapstructure:"suspicious_increment"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Port      int     `yaml:"port" mapstructure:"port"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // requests/sec, 0 = unlimited
	RateBurst int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RESOLVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "resolver.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 50.0)
	v.SetDefault("server.rate_burst", 100)
	v.SetDefault("resolution.weights.name", 0.4)
	v.SetDefault("resolution.weights.email", 0.3)
	v.SetDefault("resolution.weights.phone", 0.2)
	v.SetDefault("resolution.weights.address", 0.1)
	v.SetDefault("resolution.thresholds.overall", 0.80)
	v.SetDefault("resolution.blocking.strategies", []string{"name_prefix", "name_token", "email_prefix", "phone_prefix"})
	v.SetDefault("resolution.blocking.name_prefix_len", 5)
	v.SetDefault("resolution.blocking.token_prefix_len", 4)
	v.SetDefault("resolution.blocking.email_prefix_len", 6)
	v.SetDefault("resolution.blocking.phone_prefix_len", 4)
	v.SetDefault("resolution.blocking.max_block_size", 1000)
	v.SetDefault("resolution.cluster.max_size", 100)
	v.SetDefault("resolution.keywords.business", []string{"inc", "corp", "ltd", "llc", "company", "corporation", "limited", "gmbh", "sa", "nv", "co"})
	v.SetDefault("resolution.keywords.pep", []string{"senator", "congress", "minister", "president", "governor", "mayor"})
	v.SetDefault("resolution.keywords.suspicious", []string{"test", "fake", "dummy"})
	v.SetDefault("resolution.confidence.single_record_baseline", 0.7)
	v.SetDefault("resolution.confidence.size_boost_per_record", 0.05)
	v.SetDefault("resolution.confidence.size_boost_cap", 0.2)
	v.SetDefault("resolution.risk.baseline", 0.1)
	v.SetDefault("resolution.risk.multi_record_threshold", 3)
	v.SetDefault("resolution.risk.multi_record_increment", 0.2)
	v.SetDefault("resolution.risk.suspicious_increment", 0.3)
	v.SetDefault("resolution.workers", 0) // 0 = GOMAXPROCS

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// ApplyPolicyFile overlays keyword policies from a standalone YAML file onto
// the resolution config. Lists present in the file replace the configured
// ones wholesale.
func (rc *ResolutionConfig) ApplyPolicyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "config: read policy file %s", path)
	}

	var overlay KeywordsConfig
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return eris.Wrapf(err, "config: parse policy file %s", path)
	}

	if len(overlay.Business) > 0 {
		rc.Keywords.Business = overlay.Business
	}
	if len(overlay.PEP) > 0 {
		rc.Keywords.PEP = overlay.PEP
	}
	if len(overlay.Suspicious) > 0 {
		rc.Keywords.Suspicious = overlay.Suspicious
	}
	return nil
}

const weightSumTolerance = 1e-9

// Validate checks the resolution policy and fails fast with a descriptive
// error before any work is attempted.
func (rc *ResolutionConfig) Validate() error {
	w := rc.Weights
	for _, f := range []struct {
		name   string
		weight float64
	}{
		{"name", w.Name},
		{"email", w.Email},
		{"phone", w.Phone},
		{"address", w.Address},
	} {
		if f.weight < 0 || f.weight > 1 {
			return eris.Errorf("config: weight for %s out of [0,1]: %v", f.name, f.weight)
		}
	}
	if sum := w.Name + w.Email + w.Phone + w.Address; math.Abs(sum-1.0) > weightSumTolerance {
		return eris.Errorf("config: field weights must sum to 1.0, got %v", sum)
	}
	if w.Name == 0 {
		return eris.New("config: weight for required field name is missing")
	}

	if t := rc.Thresholds.Overall; t < 0 || t > 1 {
		return eris.Errorf("config: overall threshold out of [0,1]: %v", t)
	}

	if len(rc.Blocking.Strategies) == 0 {
		return eris.New("config: at least one blocking strategy is required")
	}
	for _, s := range rc.Blocking.Strategies {
		switch s {
		case "name_prefix", "name_token", "email_prefix", "phone_prefix":
		default:
			return eris.Errorf("config: unknown blocking strategy %q", s)
		}
	}
	if rc.Blocking.MaxBlockSize <= 0 {
		return eris.Errorf("config: max_block_size must be positive, got %d", rc.Blocking.MaxBlockSize)
	}
	if rc.Cluster.MaxSize <= 1 {
		return eris.Errorf("config: cluster max_size must exceed 1, got %d", rc.Cluster.MaxSize)
	}

	c := rc.Confidence
	if c.SingleRecordBaseline < 0 || c.SingleRecordBaseline > 1 {
		return eris.Errorf("config: single_record_baseline out of [0,1]: %v", c.SingleRecordBaseline)
	}
	if c.SizeBoostPerRecord < 0 || c.SizeBoostCap < 0 {
		return eris.New("config: confidence size boost values must be non-negative")
	}

	r := rc.Risk
	if r.Baseline < 0 || r.MultiRecordIncrement < 0 || r.SuspiciousIncrement < 0 {
		return eris.New("config: risk increments must be non-negative")
	}

	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
