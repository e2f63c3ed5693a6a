// Package config loads mystvault's runtime configuration, generalized
// from the teacher's pkg/config/config.go: YAML file plus MYST_-prefixed
// environment overrides plus hard defaults, unmarshaled via Viper into
// a typed struct.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is mystvault's full runtime configuration surface.
type Config struct {
	Directory struct {
		URL     string        `mapstructure:"url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"directory"`

	Upload struct {
		Partitions  int  `mapstructure:"partitions"`
		Redundancy  int  `mapstructure:"redundancy"`
		Compression bool `mapstructure:"compression"`
		ReedSolomon bool `mapstructure:"reed_solomon"`
	} `mapstructure:"upload"`

	Storage struct {
		DataDir    string `mapstructure:"datadir"`
		DB         string `mapstructure:"db"`
		TotalSpace int64  `mapstructure:"total_space"`
	} `mapstructure:"storage"`

	Server struct {
		HTTPPort    int `mapstructure:"http_port"`
		MetricsPort int `mapstructure:"metrics_port"`
	} `mapstructure:"server"`
}

// Load reads an optional YAML config file at path, applies
// MYST_-prefixed environment overrides (e.g. MYST_UPLOAD_PARTITIONS=8),
// then hard defaults, and unmarshals into a Config.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix("MYST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("directory.url", "http://localhost:9100")
	v.SetDefault("directory.timeout", "10s")
	v.SetDefault("upload.partitions", 10)
	v.SetDefault("upload.redundancy", 3)
	v.SetDefault("upload.compression", true)
	v.SetDefault("upload.reed_solomon", true)
	v.SetDefault("storage.datadir", "data")
	v.SetDefault("storage.db", "node.db")
	v.SetDefault("storage.total_space", int64(10<<30))
	v.SetDefault("server.http_port", 9000)
	v.SetDefault("server.metrics_port", 9001)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
