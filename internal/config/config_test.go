package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"kingo/internal/constants"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.MaxSegments != constants.DefaultMaxSegments {
		t.Errorf("MaxSegments = %d, want %d", cfg.MaxSegments, constants.DefaultMaxSegments)
	}
	if cfg.ChunkRead != constants.DefaultChunkRead {
		t.Errorf("ChunkRead = %d, want %d", cfg.ChunkRead, constants.DefaultChunkRead)
	}
	if cfg.RequestTimeout != constants.DefaultRequestTimeout {
		t.Errorf("RequestTimeout = %v, want %v", cfg.RequestTimeout, constants.DefaultRequestTimeout)
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() should not error for missing file: %v", err)
	}
	if cfg.MaxSegments != constants.DefaultMaxSegments {
		t.Errorf("should return defaults, got MaxSegments = %d", cfg.MaxSegments)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, constants.ConfigFile)

	data := "download_root: /data/downloads\nmax_segments: 4\nmax_retries: 3\nuse_proxy: true\nproxy_url: http://proxy.local:8080\n"
	if err := os.WriteFile(filePath, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DownloadRoot != "/data/downloads" {
		t.Errorf("DownloadRoot = %q, want %q", cfg.DownloadRoot, "/data/downloads")
	}
	if cfg.MaxSegments != 4 {
		t.Errorf("MaxSegments = %d, want 4", cfg.MaxSegments)
	}
	if !cfg.UseProxy {
		t.Error("UseProxy should be true")
	}
	if cfg.ProxyURL != "http://proxy.local:8080" {
		t.Errorf("ProxyURL = %q, want %q", cfg.ProxyURL, "http://proxy.local:8080")
	}
	// Untouched fields still fall back to defaults.
	if cfg.ChunkRead != constants.DefaultChunkRead {
		t.Errorf("ChunkRead = %d, want default %d", cfg.ChunkRead, constants.DefaultChunkRead)
	}
}

func TestLoad_CorruptedFile(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, constants.ConfigFile)

	if err := os.WriteFile(filePath, []byte("not: valid: yaml: {{{"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() should not error for corrupted file: %v", err)
	}
	if cfg.MaxSegments != constants.DefaultMaxSegments {
		t.Errorf("corrupted file should return defaults, got MaxSegments = %d", cfg.MaxSegments)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, constants.ConfigFile)

	if err := os.WriteFile(filePath, []byte("max_segments: 4\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("KINGO_MAX_SEGMENTS", "2")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MaxSegments != 2 {
		t.Errorf("MaxSegments = %d, want 2 (env override)", cfg.MaxSegments)
	}
}

func TestConfig_ThreadSafety(t *testing.T) {
	cfg := Default()

	done := make(chan struct{})

	go func() {
		for i := 0; i < 100; i++ {
			cfg.Get()
		}
		close(done)
	}()

	for i := 0; i < 100; i++ {
		cfg.Update(func(c *Config) {
			c.MaxRetries = 3
		})
	}

	<-done
}

func TestConfig_Update(t *testing.T) {
	cfg := Default()
	cfg.Update(func(c *Config) {
		c.RequestTimeout = 30 * time.Second
	})

	got := cfg.Get()
	if got.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want 30s", got.RequestTimeout)
	}
}
