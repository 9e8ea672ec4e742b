package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"fps zero", func(c *Config) { c.FPS = 0 }, true},
		{"fps negative", func(c *Config) { c.FPS = -5 }, true},
		{"fps over max", func(c *Config) { c.FPS = 61 }, true},
		{"fps at max", func(c *Config) { c.FPS = 60 }, false},
		{"unknown source", func(c *Config) { c.Source = "webcam" }, true},
		{"pattern source", func(c *Config) { c.Source = SourcePattern }, false},
		{"file source with path", func(c *Config) { c.Source = SourceFile }, false},
		{"file source without path", func(c *Config) {
			c.Source = SourceFile
			c.FramePath = ""
		}, true},
		{"idle interval negative", func(c *Config) { c.IdleIntervalMS = -1 }, true},
		{"idle interval over keep-alive", func(c *Config) { c.IdleIntervalMS = 2001 }, true},
		{"idle interval at limit", func(c *Config) { c.IdleIntervalMS = 2000 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewManagerCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config file not created: %v", err)
	}

	got := m.Get()
	want := *Defaults()
	if got != want {
		t.Fatalf("config = %+v, want defaults %+v", got, want)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	cfg := m.Get()
	cfg.FPS = 24
	cfg.Source = SourcePattern
	cfg.Eco = true
	cfg.IdleIntervalMS = 250
	cfg.APIPort = 8424
	if err := m.Set(cfg); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := m.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	m2, err := NewManager(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := m2.Get(); got != cfg {
		t.Fatalf("reloaded config = %+v, want %+v", got, cfg)
	}
}

func TestSetRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	bad := m.Get()
	bad.FPS = 0
	if err := m.Set(bad); err == nil {
		t.Fatal("invalid config accepted")
	}
	if got := m.Get(); got.FPS != Defaults().FPS {
		t.Fatalf("rejected set still altered config: fps = %v", got.FPS)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("fps: 24\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	got := m.Get()
	if got.FPS != 24 {
		t.Fatalf("fps = %v, want 24", got.FPS)
	}
	// Unset keys fall back to defaults.
	if got.Source != SourceX11 || got.LogLevel != "info" {
		t.Fatalf("partial file lost defaults: %+v", got)
	}
}

func TestMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("fps: [not a number\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewManager(path); err == nil {
		t.Fatal("malformed config accepted")
	}
}
