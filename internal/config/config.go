// Package config holds the download engine's tunables.
//
// Loading is deliberately thin: it's a YAML file plus environment overrides,
// the same shape the rest of the app's settings loader would use. Anything
// richer (remote config, hot reload) belongs to the wrapping service, not
// this engine.
package config

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"kingo/internal/constants"
)

// Config holds every tunable the download engine reads at runtime.
type Config struct {
	DownloadRoot string `mapstructure:"download_root"`
	DBPath       string `mapstructure:"db_path"`
	UseProxy     bool   `mapstructure:"use_proxy"`
	ProxyURL     string `mapstructure:"proxy_url"`

	ChunkRead        int64         `mapstructure:"chunk_read"`
	WriteBuffer      int64         `mapstructure:"write_buffer"`
	MaxSegments      int           `mapstructure:"max_segments"`
	MinSegmentSize   int64         `mapstructure:"min_segment_size"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
	WSThrottle       time.Duration `mapstructure:"ws_throttle"`
	PoolPerHost      int           `mapstructure:"pool_per_host"`
	Keepalive        time.Duration `mapstructure:"keepalive"`

	mu       sync.RWMutex
	filePath string
}

// Default returns the tunables spec §4.4 names as defaults.
func Default() *Config {
	return &Config{
		DownloadRoot:     "",
		DBPath:           "",
		UseProxy:         false,
		ProxyURL:         "",
		ChunkRead:        constants.DefaultChunkRead,
		WriteBuffer:      constants.DefaultWriteBuffer,
		MaxSegments:      constants.DefaultMaxSegments,
		MinSegmentSize:   constants.DefaultMinSegmentSize,
		MaxRetries:       constants.DefaultMaxRetries,
		RequestTimeout:   constants.DefaultRequestTimeout,
		ProgressInterval: constants.DefaultProgressInterval,
		WSThrottle:       constants.DefaultWSThrottle,
		PoolPerHost:      constants.DefaultPoolPerHost,
		Keepalive:        constants.DefaultKeepalive,
	}
}

// Load reads kingo.yaml from configDir, using Default() values when the file
// is missing. Environment variables prefixed KINGO_ override any field
// (e.g. KINGO_MAX_SEGMENTS=4). A file that cannot be parsed makes Load
// return Default() as is, without environment overrides.
func Load(configDir string) (*Config, error) {
	filePath := configDir + string(os.PathSeparator) + constants.ConfigFile

	v := viper.New()
	v.SetConfigFile(filePath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("KINGO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !os.IsNotExist(err) && !notFound {
			// Corrupted file: fall back to defaults rather than fail startup.
			cfg = Default()
			cfg.filePath = filePath
			return cfg, nil
		}
		// Missing file: defaults plus any KINGO_ environment overrides.
	}

	loaded := Default()
	if err := v.Unmarshal(loaded); err != nil {
		cfg = Default()
		cfg.filePath = filePath
		return cfg, nil
	}
	loaded.filePath = filePath
	return loaded, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("download_root", cfg.DownloadRoot)
	v.SetDefault("db_path", cfg.DBPath)
	v.SetDefault("use_proxy", cfg.UseProxy)
	v.SetDefault("proxy_url", cfg.ProxyURL)
	v.SetDefault("chunk_read", cfg.ChunkRead)
	v.SetDefault("write_buffer", cfg.WriteBuffer)
	v.SetDefault("max_segments", cfg.MaxSegments)
	v.SetDefault("min_segment_size", cfg.MinSegmentSize)
	v.SetDefault("max_retries", cfg.MaxRetries)
	v.SetDefault("request_timeout", cfg.RequestTimeout)
	v.SetDefault("progress_interval", cfg.ProgressInterval)
	v.SetDefault("ws_throttle", cfg.WSThrottle)
	v.SetDefault("pool_per_host", cfg.PoolPerHost)
	v.SetDefault("keepalive", cfg.Keepalive)
}

// Update executes fn with the mutex held, for callers that mutate tunables
// at runtime (e.g. a settings UI backed by this same engine).
func (c *Config) Update(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

// Get returns a copy of the current tunables.
func (c *Config) Get() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := *c
	cp.mu = sync.RWMutex{}
	return cp
}
