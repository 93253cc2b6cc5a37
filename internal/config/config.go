// Package config loads gnutr-store settings from an optional YAML file and
// GNUTR_ prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"gnutrition/internal/refdata"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, with dots in keys
// replaced by underscores: GNUTR_DATA_S3_BUCKET sets data.s3.bucket.
const EnvPrefix = "GNUTR"

// Config holds the complete application configuration.
type Config struct {
	UserDir string        `mapstructure:"user_dir"`
	DBFile  string        `mapstructure:"db_file"`
	User    string        `mapstructure:"user"`
	Data    DataConfig    `mapstructure:"data"`
	Legacy  LegacyConfig  `mapstructure:"legacy"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// DataConfig locates the reference data release files.
type DataConfig struct {
	Driver string   `mapstructure:"driver"` // fs, s3, memory
	Root   string   `mapstructure:"root"`
	Prefix string   `mapstructure:"prefix"`
	S3     S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	PathStyle       bool   `mapstructure:"path_style"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// LegacyConfig points at the store of an earlier release.
type LegacyConfig struct {
	DSN string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	File string `mapstructure:"file"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	name := os.Getenv("USER")
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	return &Config{
		UserDir: filepath.Join(home, ".gnutrition"),
		DBFile:  "gnutr_db.lt3",
		User:    name,
		Data: DataConfig{
			Driver: string(refdata.DriverFilesystem),
			Root:   "data",
			S3:     S3Config{Region: "us-east-1"},
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configPath when set, otherwise gnutr.yaml from the working
// directory or the user directory, and applies environment overrides. A
// missing default config file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("gnutr")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(v.GetString("user_dir"))
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.UserDir = expandHome(cfg.UserDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would fail later in a less obvious way.
func (c *Config) Validate() error {
	switch refdata.Driver(c.Data.Driver) {
	case refdata.DriverFilesystem, refdata.DriverMemory:
	case refdata.DriverS3:
		if c.Data.S3.Bucket == "" {
			return fmt.Errorf("data.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("invalid data.driver %q (must be fs, s3 or memory)", c.Data.Driver)
	}
	if c.DBFile == "" {
		return fmt.Errorf("db_file is required")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log.format %q (must be text or json)", c.Log.Format)
	}
	return nil
}

// DBPath is the location of the current store.
func (c *Config) DBPath() string {
	if filepath.IsAbs(c.DBFile) {
		return c.DBFile
	}
	return filepath.Join(c.UserDir, c.DBFile)
}

// RefData converts the data section for refdata.Open.
func (c *Config) RefData() refdata.Config {
	return refdata.Config{
		Driver: refdata.Driver(c.Data.Driver),
		Root:   c.Data.Root,
		S3: refdata.S3Config{
			Region:          c.Data.S3.Region,
			Bucket:          c.Data.S3.Bucket,
			Endpoint:        c.Data.S3.Endpoint,
			AccessKeyID:     c.Data.S3.AccessKeyID,
			SecretAccessKey: c.Data.S3.SecretAccessKey,
			PathStyle:       c.Data.S3.PathStyle,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("user_dir", d.UserDir)
	v.SetDefault("db_file", d.DBFile)
	v.SetDefault("user", d.User)
	v.SetDefault("data.driver", d.Data.Driver)
	v.SetDefault("data.root", d.Data.Root)
	v.SetDefault("data.prefix", d.Data.Prefix)
	v.SetDefault("data.s3.bucket", d.Data.S3.Bucket)
	v.SetDefault("data.s3.region", d.Data.S3.Region)
	v.SetDefault("data.s3.endpoint", d.Data.S3.Endpoint)
	v.SetDefault("data.s3.path_style", d.Data.S3.PathStyle)
	v.SetDefault("data.s3.access_key_id", "")
	v.SetDefault("data.s3.secret_access_key", "")
	v.SetDefault("legacy.dsn", "")
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("metrics.file", "")
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
