// Package config loads SDK configuration from file and environment.
// Lookup order: explicit file path, then ./recall.yml, then
// $HOME/.recall/recall.yml, with RECALL_* environment variables
// overriding everything.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full SDK configuration.
type Config struct {
	// Memory engine knobs.
	MemoryEnabled bool   `mapstructure:"memory_enabled"`
	SummaryModel  string `mapstructure:"summary_model"`
	TitleModel    string `mapstructure:"title_model"`
	Interval      int    `mapstructure:"interval"`
	EmbedEntries  bool   `mapstructure:"embed_entries"`

	// Remote tier.
	ServerAddr  string        `mapstructure:"server_addr"`
	StorePath   string        `mapstructure:"store_path"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`

	// Generation provider.
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	MaxTokens       int64  `mapstructure:"max_tokens"`

	// Local store limits.
	MaxRecordsPerTable int `mapstructure:"max_records_per_table"`
}

// Load reads configuration. path may be empty to use the default
// search locations; missing files are fine, defaults and environment
// still apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("memory_enabled", true)
	v.SetDefault("summary_model", "claude-sonnet-4-20250514")
	v.SetDefault("title_model", "claude-sonnet-4-20250514")
	v.SetDefault("interval", 2)
	v.SetDefault("embed_entries", false)
	v.SetDefault("store_path", "recall.db")
	v.SetDefault("dial_timeout", 10*time.Second)
	v.SetDefault("max_tokens", 1024)
	v.SetDefault("max_records_per_table", 100000)

	v.SetEnvPrefix("RECALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("recall")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.recall")
	}
	if err := v.ReadInConfig(); err != nil {
		// An explicitly named file must exist and parse; with default
		// search locations a missing file is fine.
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
