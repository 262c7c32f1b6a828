package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Build    BuildConfig    `mapstructure:"build"`
	Server   ServerConfig   `mapstructure:"server"`
	Manifest ManifestConfig `mapstructure:"manifest"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	I18n     I18nConfig     `mapstructure:"i18n"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Debug    bool           `mapstructure:"debug"`
}

// BuildConfig contains esbuild pipeline settings
type BuildConfig struct {
	WorkingDir    string            `mapstructure:"working_dir"` // defaults to the current directory
	SourceDir     string            `mapstructure:"source_dir"`
	OutDir        string            `mapstructure:"out_dir"`
	PublicDir     string            `mapstructure:"public_dir"`
	RuntimeModule string            `mapstructure:"runtime_module"`
	Entries       []string          `mapstructure:"entries"` // extra entry points besides discovered ones
	External      []string          `mapstructure:"external"`
	Define        map[string]string `mapstructure:"define"`
	Target        string            `mapstructure:"target"`
	Minify        bool              `mapstructure:"minify"`
	Sourcemap     bool              `mapstructure:"sourcemap"`
	Splitting     bool              `mapstructure:"splitting"`
	Strict        bool              `mapstructure:"strict"` // island files without markers fail the build
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	BodyLimit    int           `mapstructure:"body_limit"`
}

// ManifestConfig controls what is shipped to the browser with each response
type ManifestConfig struct {
	LimitClientManifest bool   `mapstructure:"limit_client_manifest"`
	SlotID              string `mapstructure:"slot_id"`
	StoreKey            string `mapstructure:"store_key"`
	FlashCookie         string `mapstructure:"flash_cookie"`
}

// StorageConfig contains build manifest storage settings
type StorageConfig struct {
	Provider    string `mapstructure:"provider"` // local or s3
	LocalPath   string `mapstructure:"local_path"`
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Region    string `mapstructure:"s3_region"`
	S3UseSSL    bool   `mapstructure:"s3_use_ssl"`
}

// PubSubConfig selects how build events reach running servers
type PubSubConfig struct {
	Backend  string `mapstructure:"backend"` // local or redis
	RedisURL string `mapstructure:"redis_url"`
	Channel  string `mapstructure:"channel"`
}

// I18nConfig points at the message catalog
type I18nConfig struct {
	CatalogPath string `mapstructure:"catalog_path"`
	Locale      string `mapstructure:"locale"`
}

// TracingConfig contains OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration from an explicit file, falling back to the
// default search paths when path is empty
func LoadFile(path string) (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("islet")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/islet")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("ISLET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads environment variables from .env file
func loadEnvFile() error {
	locations := []string{
		".env",
		".env.local",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Debug().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Build defaults
	v.SetDefault("build.working_dir", "")
	v.SetDefault("build.source_dir", "src")
	v.SetDefault("build.out_dir", "public/build")
	v.SetDefault("build.public_dir", "public")
	v.SetDefault("build.runtime_module", "@islet/runtime")
	v.SetDefault("build.target", "es2020")
	v.SetDefault("build.minify", false)
	v.SetDefault("build.sourcemap", false)
	v.SetDefault("build.splitting", true)
	v.SetDefault("build.strict", false)

	// Server defaults
	v.SetDefault("server.address", ":3000")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.body_limit", 4*1024*1024) // 4MB

	// Manifest defaults
	v.SetDefault("manifest.limit_client_manifest", true)
	v.SetDefault("manifest.slot_id", "__isletManifest")
	v.SetDefault("manifest.store_key", "manifests/latest.json")
	v.SetDefault("manifest.flash_cookie", "islet_flash")

	// Storage defaults
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.local_path", "./.islet")
	v.SetDefault("storage.s3_region", "us-east-1")
	v.SetDefault("storage.s3_use_ssl", true)

	// Pub/sub defaults
	v.SetDefault("pubsub.backend", "local")
	v.SetDefault("pubsub.channel", "islet:assets")

	// I18n defaults
	v.SetDefault("i18n.locale", "en")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.service_name", "islet")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.insecure", true)

	v.SetDefault("debug", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Build.Validate(); err != nil {
		return fmt.Errorf("build configuration error: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration error: %w", err)
	}
	if err := c.Manifest.Validate(); err != nil {
		return fmt.Errorf("manifest configuration error: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage configuration error: %w", err)
	}
	if err := c.PubSub.Validate(); err != nil {
		return fmt.Errorf("pubsub configuration error: %w", err)
	}
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing configuration error: %w", err)
	}
	return nil
}

// Validate validates build configuration
func (bc *BuildConfig) Validate() error {
	if bc.SourceDir == "" {
		return fmt.Errorf("source_dir is required")
	}
	if bc.OutDir == "" {
		return fmt.Errorf("out_dir is required")
	}
	if bc.PublicDir == "" {
		return fmt.Errorf("public_dir is required")
	}
	if bc.RuntimeModule == "" {
		return fmt.Errorf("runtime_module is required")
	}
	return nil
}

// Validate validates server configuration
func (sc *ServerConfig) Validate() error {
	if sc.Address == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if sc.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive, got: %v", sc.ReadTimeout)
	}
	if sc.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive, got: %v", sc.WriteTimeout)
	}
	if sc.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive, got: %v", sc.IdleTimeout)
	}
	if sc.BodyLimit <= 0 {
		return fmt.Errorf("body_limit must be positive, got: %d", sc.BodyLimit)
	}
	return nil
}

// Validate validates manifest configuration
func (mc *ManifestConfig) Validate() error {
	if mc.SlotID == "" {
		return fmt.Errorf("slot_id is required")
	}
	if mc.StoreKey == "" {
		return fmt.Errorf("store_key is required")
	}
	return nil
}

// Validate validates storage configuration
func (sc *StorageConfig) Validate() error {
	switch sc.Provider {
	case "local":
		if sc.LocalPath == "" {
			return fmt.Errorf("local_path is required when using local storage provider")
		}
	case "s3":
		if sc.S3Endpoint == "" || sc.S3AccessKey == "" || sc.S3SecretKey == "" || sc.S3Bucket == "" {
			return fmt.Errorf("S3 configuration is incomplete")
		}
	default:
		return fmt.Errorf("storage provider must be 'local' or 's3'")
	}
	return nil
}

// Validate validates pub/sub configuration
func (pc *PubSubConfig) Validate() error {
	switch pc.Backend {
	case "local", "":
	case "redis":
		if pc.RedisURL == "" {
			return fmt.Errorf("redis_url is required for redis pub/sub backend")
		}
	default:
		return fmt.Errorf("invalid pub/sub backend: %s (must be one of: local, redis)", pc.Backend)
	}
	if pc.Channel == "" {
		return fmt.Errorf("channel is required")
	}
	return nil
}

// Validate validates tracing configuration
func (tc *TracingConfig) Validate() error {
	if !tc.Enabled {
		return nil
	}
	if tc.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}
	if tc.SampleRate < 0 || tc.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be between 0.0 and 1.0, got: %f", tc.SampleRate)
	}
	return nil
}
