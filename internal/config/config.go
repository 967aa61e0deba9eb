// Package config は veogen コマンドの設定を .env、環境変数、フラグから読み込みます。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "VEO"

// Config は veogen の全設定を保持します。
type Config struct {
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	MaxPollAttempts   int           `mapstructure:"max_poll_attempts"`
	GenerationTimeout time.Duration `mapstructure:"generation_timeout"`
	DownloadTimeout   time.Duration `mapstructure:"download_timeout"`
	Image             ImageConfig   `mapstructure:"image"`
	Server            ServerConfig  `mapstructure:"server"`
	Log               LogConfig     `mapstructure:"log"`
}

// ImageConfig は参照画像の前処理設定です。
type ImageConfig struct {
	Compress bool `mapstructure:"compress"`
	Quality  int  `mapstructure:"quality"`
}

// ServerConfig は HTTP サーバーの設定です。
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxImageSize int64         `mapstructure:"max_image_size"`
}

// LogConfig はログ出力の設定です。
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// flagBindings はフラグ名と設定キーの対応です。
var flagBindings = map[string]string{
	"model":              "model",
	"poll-interval":      "poll_interval",
	"max-poll-attempts":  "max_poll_attempts",
	"generation-timeout": "generation_timeout",
	"compress-image":     "image.compress",
	"addr":               "server.address",
	"log-level":          "log.level",
	"log-format":         "log.format",
}

// Load は設定を読み込みます。優先順位はフラグ、環境変数、.env、デフォルト値の順です。
// flags が nil の場合はフラグを参照しません。
func Load(envFile string, flags *pflag.FlagSet) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", envFile, err)
			}
			slog.Debug(".env ファイルが見つからないため環境変数のみを使用します", "path", envFile)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// API キーは元の環境変数名も受け付ける
	if err := v.BindEnv("api_key", envPrefix+"_API_KEY", "GEMINI_API_KEY", "API_KEY"); err != nil {
		return nil, fmt.Errorf("bind api key env: %w", err)
	}

	if flags != nil {
		for name, key := range flagBindings {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive: %s", c.PollInterval)
	}
	if c.MaxPollAttempts < 0 {
		return fmt.Errorf("max_poll_attempts must not be negative: %d", c.MaxPollAttempts)
	}
	if c.Image.Quality < 1 || c.Image.Quality > 100 {
		return fmt.Errorf("image.quality must be between 1 and 100: %d", c.Image.Quality)
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("api_key", "")
	v.SetDefault("model", "veo-3.0-generate-preview")
	v.SetDefault("poll_interval", 10*time.Second)
	v.SetDefault("max_poll_attempts", 0)
	v.SetDefault("generation_timeout", time.Duration(0))
	v.SetDefault("download_timeout", 5*time.Minute)

	v.SetDefault("image.compress", false)
	v.SetDefault("image.quality", 75)

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.max_image_size", int64(20<<20))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}
