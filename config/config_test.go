package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("server:\n  port: \":9000\"\nrender:\n  preview_format: webp\nlock:\n  wait: 3s\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != ":9000" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Render.PreviewFormat != "webp" {
		t.Errorf("preview format = %q", cfg.Render.PreviewFormat)
	}
	if cfg.Lock.Wait != 3*time.Second {
		t.Errorf("lock wait = %v", cfg.Lock.Wait)
	}

	d := Default()
	if cfg.Redis.TTL != d.Redis.TTL || cfg.Storage.RootDir != d.Storage.RootDir {
		t.Error("unset values should come from Default()")
	}
	if len(cfg.Upload.AllowedSuffixes) != 3 {
		t.Errorf("allowed suffixes = %v", cfg.Upload.AllowedSuffixes)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
