package platform

import (
	"path/filepath"
	"testing"
)

func TestPathsFor(t *testing.T) {
	cases := []struct {
		name       string
		goos       string
		env        map[string]string
		configBase string
		dataBase   string
		wantConfig string
		wantData   string
	}{
		{
			name:       "linux xdg",
			goos:       "linux",
			env:        map[string]string{"XDG_CONFIG_HOME": "/xdg/config", "XDG_DATA_HOME": "/xdg/data"},
			configBase: "/fallback/config",
			dataBase:   "/fallback/data",
			wantConfig: filepath.Join("/xdg/config", "deskboard", "config.toml"),
			wantData:   filepath.Join("/xdg/data", "deskboard"),
		},
		{
			name:       "linux without xdg",
			goos:       "linux",
			env:        map[string]string{},
			configBase: "/home/me/.config",
			dataBase:   "/home/me/.local/share",
			wantConfig: filepath.Join("/home/me/.config", "deskboard", "config.toml"),
			wantData:   filepath.Join("/home/me/.local/share", "deskboard"),
		},
		{
			name:       "windows appdata",
			goos:       "windows",
			env:        map[string]string{"APPDATA": `C:\Roaming`, "LOCALAPPDATA": `C:\Local`},
			configBase: `C:\fallback\config`,
			dataBase:   `C:\fallback\data`,
			wantConfig: filepath.Join(`C:\Roaming`, "deskboard", "config.toml"),
			wantData:   filepath.Join(`C:\Local`, "deskboard"),
		},
		{
			name:       "darwin ignores xdg",
			goos:       "darwin",
			env:        map[string]string{"XDG_CONFIG_HOME": "/ignored", "XDG_DATA_HOME": "/ignored"},
			configBase: "/Users/me/Library/Application Support",
			dataBase:   "/Users/me/Library/Application Support",
			wantConfig: filepath.Join("/Users/me/Library/Application Support", "deskboard", "config.toml"),
			wantData:   filepath.Join("/Users/me/Library/Application Support", "deskboard"),
		},
		{
			name:       "unknown os",
			goos:       "freebsd",
			env:        nil,
			configBase: "/cfg",
			dataBase:   "/data",
			wantConfig: filepath.Join("/cfg", "deskboard", "config.toml"),
			wantData:   filepath.Join("/data", "deskboard"),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := PathsFor(tc.goos, tc.env, tc.configBase, tc.dataBase, "deskboard")
			if err != nil {
				t.Fatalf("PathsFor() error = %v", err)
			}
			if p.ConfigPath != tc.wantConfig {
				t.Fatalf("config path = %q, want %q", p.ConfigPath, tc.wantConfig)
			}
			if p.DataDir != tc.wantData {
				t.Fatalf("data dir = %q, want %q", p.DataDir, tc.wantData)
			}
			if p.DBPath != filepath.Join(tc.wantData, "deskboard.db") {
				t.Fatalf("unexpected db path %q", p.DBPath)
			}
			if p.LogDir != filepath.Join(tc.wantData, "log") {
				t.Fatalf("unexpected log dir %q", p.LogDir)
			}
		})
	}
}

func TestPathsForRejectsEmptyInputs(t *testing.T) {
	if _, err := PathsFor("darwin", nil, "", "/tmp/data", "deskboard"); err == nil {
		t.Fatal("expected error for empty dirs")
	}
	if _, err := PathsFor("linux", nil, "/cfg", "/data", "  "); err == nil {
		t.Fatal("expected error for empty app name")
	}
}

func TestResolvedAppName(t *testing.T) {
	if got := (Options{}).ResolvedAppName(); got != DefaultAppName {
		t.Fatalf("empty app name = %q", got)
	}
	if got := (Options{AppName: " board ", DevMode: true}).ResolvedAppName(); got != "board-dev" {
		t.Fatalf("dev app name = %q", got)
	}
}

func TestDefaultPathsWithOptionsDevMode(t *testing.T) {
	p, err := DefaultPathsWithOptions(Options{DevMode: true})
	if err != nil {
		t.Fatalf("DefaultPathsWithOptions() error = %v", err)
	}
	if filepath.Base(filepath.Dir(p.ConfigPath)) != "deskboard-dev" {
		t.Fatalf("expected dev config dir suffix, got %q", p.ConfigPath)
	}
	if filepath.Base(p.DBPath) != "deskboard-dev.db" {
		t.Fatalf("expected dev db name, got %q", p.DBPath)
	}
}
