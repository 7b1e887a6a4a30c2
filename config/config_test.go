package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("ftserve", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Config{
		Port:         30021,
		Dir:          ".",
		MaxSessions:  1,
		ReadTimeout:  30 * time.Second,
		DialTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		LogLevel:     "info",
	}
	if *cfg != want {
		t.Errorf("Load = %+v, want %+v", *cfg, want)
	}
	if got := cfg.Addr(); got != ":30021" {
		t.Errorf("Addr() = %q, want %q", got, ":30021")
	}
}

func TestLoad_Flags(t *testing.T) {
	cfg, err := Load("ftserve", []string{
		"--host", "127.0.0.1",
		"-d", "/srv/files",
		"--sandbox",
		"--max-sessions=4",
		"--dial-timeout", "2s",
		"--log-level", "debug",
		"--qr",
		"40000",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:40000" {
		t.Errorf("Addr() = %q", cfg.Addr())
	}
	if cfg.Dir != "/srv/files" || !cfg.Sandbox || cfg.MaxSessions != 4 || !cfg.QR {
		t.Errorf("Load = %+v", *cfg)
	}
	if cfg.DialTimeout != 2*time.Second || cfg.LogLevel != "debug" {
		t.Errorf("Load = %+v", *cfg)
	}
}

func TestLoad_Precedence(t *testing.T) {
	file := filepath.Join(t.TempDir(), "ftserve.yaml")
	writeFile(t, file, "port: 40001\nmax-sessions: 2\ndir: /from/file\nlog-level: warn\n")
	t.Setenv("FTSERVE_MAX_SESSIONS", "3")
	t.Setenv("FTSERVE_DIR", "/from/env")

	cfg, err := Load("ftserve", []string{"--config", file, "--dir", "/from/flag"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"file", cfg.Port, 40001},
		{"file", cfg.LogLevel, "warn"},
		{"env over file", cfg.MaxSessions, 3},
		{"flag over env", cfg.Dir, "/from/flag"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoad_EnvFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "test.env")
	writeFile(t, file, "FTSERVE_WRITE_TIMEOUT=5s\n")
	t.Cleanup(func() { os.Unsetenv("FTSERVE_WRITE_TIMEOUT") })

	cfg, err := Load("ftserve", []string{"--env-file", file})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WriteTimeout != 5*time.Second {
		t.Errorf("WriteTimeout = %v, want 5s", cfg.WriteTimeout)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"reserved port", []string{"80"}, "port 80 out of range"},
		{"port too large", []string{"-p", "70000"}, "port 70000 out of range"},
		{"port not a number", []string{"ftp"}, `invalid port "ftp"`},
		{"two ports", []string{"30021", "30022"}, "too many arguments"},
		{"zero sessions", []string{"--max-sessions", "0"}, "max-sessions 0"},
		{"negative timeout", []string{"--read-timeout=-1s"}, "timeouts must not be negative"},
		{"log level", []string{"--log-level", "loud"}, "log-level"},
		{"empty dir", []string{"--dir", ""}, "dir is empty"},
		{"missing config file", []string{"--config", "/nonexistent/ftserve.yaml"}, "error reading config file"},
		{"unknown flag", []string{"--verbose"}, "unknown flag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("ftserve", tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load(%q) error = %v, want it to contain %q", tt.args, err, tt.wantErr)
			}
		})
	}
}

func TestLoad_Help(t *testing.T) {
	_, err := Load("ftserve", []string{"--help"})
	if !errors.Is(err, pflag.ErrHelp) {
		t.Errorf("Load(--help) = %v, want %v", err, pflag.ErrHelp)
	}
}

func TestSource_Watch(t *testing.T) {
	file := filepath.Join(t.TempDir(), "ftserve.yaml")
	writeFile(t, file, "log-level: info\n")

	src, err := NewSource("ftserve", []string{"--config", file})
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	if src.ConfigFile() != file {
		t.Errorf("ConfigFile() = %q, want %q", src.ConfigFile(), file)
	}

	changed := make(chan *Config, 4)
	src.Watch(func(cfg *Config, err error) {
		if err != nil {
			return
		}
		select {
		case changed <- cfg:
		default:
		}
	})

	writeFile(t, file, "log-level: debug\n")

	// a write can show up as several events, the first one may see a
	// truncated file
	timeout := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changed:
			if cfg.LogLevel == "debug" {
				return
			}
		case <-timeout:
			t.Fatal("no reload with log-level debug after the config file changed")
		}
	}
}

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}
