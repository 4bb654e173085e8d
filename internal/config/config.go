package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/jchantrell/nxpkg/internal/cache"
	"github.com/jchantrell/nxpkg/internal/content"
	"github.com/jchantrell/nxpkg/internal/storage"
)

type Config struct {
	Storage        map[string]string `mapstructure:"storage"`
	Catalog        string            `mapstructure:"catalog"`
	CacheRoot      string            `mapstructure:"cache_root"`
	Languages      []string          `mapstructure:"languages"`
	WorkBufferSize int               `mapstructure:"work_buffer_size"`
	LogLevel       string            `mapstructure:"log_level"`
	LogFormat      string            `mapstructure:"log_format"`
}

// Load initializes and loads configuration from file
func Load(cfgFile string) (*Config, error) {
	// Set defaults
	viper.SetDefault("storage", map[string]string{
		storage.PartitionSdCard.Prefix():   "sdmc",
		storage.PartitionNANDUser.Prefix(): "nand/user",
	})
	viper.SetDefault("catalog", "nxpkg.db")
	viper.SetDefault("cache_root", cache.DefaultRoot)
	viper.SetDefault("languages", []string{})
	viper.SetDefault("work_buffer_size", storage.DefaultWorkBufferSize)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")

	// Config file handling
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName("nxpkg")
		viper.SetConfigType("yaml")
	}

	// Read config file (optional)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks every configured value
func (c *Config) Validate() error {
	if err := validateStorage(c.Storage); err != nil {
		return fmt.Errorf("invalid storage configuration: %w", err)
	}

	if err := validateWorkBufferSize(c.WorkBufferSize); err != nil {
		return fmt.Errorf("invalid work buffer configuration: %w", err)
	}

	if err := validateLanguages(c.Languages); err != nil {
		return fmt.Errorf("invalid language configuration: %w", err)
	}

	if c.Catalog == "" {
		return fmt.Errorf("catalog path cannot be empty")
	}

	return nil
}

// StorageRoots returns the configured host directory of each partition
func (c *Config) StorageRoots() map[storage.Partition]string {
	roots := make(map[storage.Partition]string, len(c.Storage))
	for prefix, root := range c.Storage {
		if p, ok := storage.ParsePartition(prefix); ok {
			roots[p] = root
		}
	}
	return roots
}

// PreferredLanguages returns the configured languages in priority order
func (c *Config) PreferredLanguages() []content.Language {
	langs := make([]content.Language, 0, len(c.Languages))
	for _, name := range c.Languages {
		if l, ok := content.LanguageByName(name); ok {
			langs = append(langs, l)
		}
	}
	return langs
}

const (
	minWorkBufferSize = 4 * 1024
	maxWorkBufferSize = 256 * 1024 * 1024
)

// validateWorkBufferSize bounds the copy and extraction chunk size
func validateWorkBufferSize(size int) error {
	if size < minWorkBufferSize || size > maxWorkBufferSize {
		return fmt.Errorf("work buffer size %d out of range [%d, %d]", size, minWorkBufferSize, maxWorkBufferSize)
	}
	return nil
}

// validateStorage ensures every key names a partition and every root is set
func validateStorage(roots map[string]string) error {
	for prefix, root := range roots {
		if _, ok := storage.ParsePartition(prefix); !ok {
			return fmt.Errorf("unknown partition '%s'", prefix)
		}
		if root == "" {
			return fmt.Errorf("root of partition '%s' cannot be empty", prefix)
		}
	}
	return nil
}
