package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/bimattr/internal/resolve"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Resolve    resolve.Config   `yaml:"resolve" mapstructure:"resolve"`
	Finder     FinderConfig     `yaml:"finder" mapstructure:"finder"`
	Enrichment EnrichmentConfig `yaml:"enrichment" mapstructure:"enrichment"`
	Decisions  DecisionsConfig  `yaml:"decisions" mapstructure:"decisions"`
	Report     ReportConfig     `yaml:"report" mapstructure:"report"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures snapshot persistence.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// FinderConfig locates the per-tool template file.
type FinderConfig struct {
	TemplatesPath string `yaml:"templates_path" mapstructure:"templates_path"`
}

// EnrichmentConfig locates the enrichment table.
type EnrichmentConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// DecisionsConfig locates prepared answers. SkipMissing skips every
// skippable decision without an answer.
type DecisionsConfig struct {
	AnswersPath string `yaml:"answers_path" mapstructure:"answers_path"`
	SkipMissing bool   `yaml:"skip_missing" mapstructure:"skip_missing"`
}

// ReportConfig configures the XLSX report.
type ReportConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
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
	v.SetEnvPrefix("BIMATTR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "bimattr.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("resolve.max_concurrent_entities", 8)
	v.SetDefault("resolve.request_missing", true)
	v.SetDefault("resolve.prompt_unknown_tools", true)
	v.SetDefault("finder.templates_path", "")
	v.SetDefault("enrichment.path", "")
	v.SetDefault("decisions.answers_path", "")
	v.SetDefault("decisions.skip_missing", false)
	v.SetDefault("report.path", "")

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

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "resolve":
		if c.Resolve.MaxConcurrentEntities < 1 || c.Resolve.MaxConcurrentEntities > 256 {
			problems = append(problems, "resolve.max_concurrent_entities must be between 1 and 256")
		}
	case "restore", "fields":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode != "fields" {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if c.Store.MinConns > c.Store.MaxConns && c.Store.MaxConns > 0 {
			problems = append(problems, "store.min_conns must not exceed store.max_conns")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
