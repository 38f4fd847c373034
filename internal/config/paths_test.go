package config

import (
	"path/filepath"
	"testing"
)

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		in, want string
	}{
		{"~", home},
		{"~/dictation/data", filepath.Join(home, "dictation", "data")},
		{"/var/lib/dictation", "/var/lib/dictation"},
		{"./data", "./data"},
		{"~other/data", "~other/data"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExpandHome(tt.in); got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoad_ExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load(writeConfig(t, "data_dir: ~/dict\nmedia:\n  cookies_file: ~/cookies.txt\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if want := filepath.Join(home, "dict"); cfg.DataDir != want {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, want)
	}
	if want := filepath.Join(home, "dict", "cues.db"); cfg.Cache.Path != want {
		t.Errorf("Cache.Path = %q, want %q", cfg.Cache.Path, want)
	}
	if want := filepath.Join(home, "cookies.txt"); cfg.Media.CookiesFile != want {
		t.Errorf("CookiesFile = %q, want %q", cfg.Media.CookiesFile, want)
	}
}
