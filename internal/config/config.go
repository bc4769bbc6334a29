package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all the settings for the scheduler process.
type Config struct {
	WorkerID string `mapstructure:"worker_id"`
	LogLevel string `mapstructure:"log_level"`

	ExecBinary  string `mapstructure:"exec_binary"`
	ProbeBinary string `mapstructure:"probe_binary"`

	MinWorkers         int `mapstructure:"min_workers"`
	MaxWorkers         int `mapstructure:"max_workers"`
	ScaleUpThreshold   int `mapstructure:"scale_up_threshold"`
	ScaleDownThreshold int `mapstructure:"scale_down_threshold"`
	ScaleStep          int `mapstructure:"scale_step"`

	ScaleIntervalSec int `mapstructure:"scale_interval_seconds"`
	PollIntervalMS   int `mapstructure:"poll_interval_ms"`

	// OrchestratorURL enables the telemetry heartbeat when set.
	OrchestratorURL string `mapstructure:"orchestrator_url"`
	HeartbeatSec    int    `mapstructure:"heartbeat_seconds"`
}

// LoadConfig initializes Viper and merges all config sources.
func LoadConfig(path string) (*Config, error) {
	// 1. Set Defaults
	viper.SetDefault("worker_id", "transcode-scheduler")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("exec_binary", "ffmpeg")
	viper.SetDefault("probe_binary", "ffprobe")
	viper.SetDefault("min_workers", 2)
	viper.SetDefault("max_workers", 8)
	viper.SetDefault("scale_up_threshold", 4)
	viper.SetDefault("scale_down_threshold", 1)
	viper.SetDefault("scale_step", 1)
	viper.SetDefault("scale_interval_seconds", 2)
	viper.SetDefault("poll_interval_ms", 50)
	viper.SetDefault("heartbeat_seconds", 15)

	// 2. Read from File
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		// It's okay if the config file is missing; we might use Env vars.
	}

	viper.SetEnvPrefix("TSCHED")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	err := viper.Unmarshal(&cfg)
	return &cfg, err
}

// ScaleInterval returns the autoscaler tick period as a duration.
func (c *Config) ScaleInterval() time.Duration {
	return time.Duration(c.ScaleIntervalSec) * time.Second
}

// PollInterval returns the idle-worker poll period as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}
