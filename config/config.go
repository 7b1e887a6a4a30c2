package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// EnvPrefix prefixes every environment variable, e.g. FTSERVE_MAX_SESSIONS.
const EnvPrefix = "FTSERVE"

const (
	minPort = 1025
	maxPort = 65535
)

type Config struct {
	Host         string
	Port         int
	Dir          string
	Sandbox      bool
	MaxSessions  int
	ReadTimeout  time.Duration
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	LogLevel     string
	QR           bool
}

// Addr is the control channel listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) Validate() error {
	var err error
	if c.Port < minPort || c.Port > maxPort {
		err = multierr.Append(err, fmt.Errorf("port %d out of range %d-%d", c.Port, minPort, maxPort))
	}
	if c.Dir == "" {
		err = multierr.Append(err, errors.New("dir is empty"))
	}
	if c.MaxSessions < 1 {
		err = multierr.Append(err, fmt.Errorf("max-sessions %d is less than 1", c.MaxSessions))
	}
	if c.ReadTimeout < 0 || c.DialTimeout < 0 || c.WriteTimeout < 0 {
		err = multierr.Append(err, errors.New("timeouts must not be negative"))
	}
	var level slog.Level
	if e := level.UnmarshalText([]byte(c.LogLevel)); e != nil {
		err = multierr.Append(err, fmt.Errorf("log-level: %w", e))
	}
	return err
}

// Source layers flags over FTSERVE_* environment variables over an optional
// config file over defaults. A .env file, when present, feeds the
// environment.
type Source struct {
	v *viper.Viper
}

func NewSource(name string, args []string) (*Source, error) {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Serve a directory over the list/get file transfer protocol\n\n\t%s [options] [port]\n\nOptions:\n", name)
		flags.PrintDefaults()
	}

	flags.String("host", "", "Listen address")
	flags.IntP("port", "p", 30021, "Control channel port (1025-65535)")
	flags.StringP("dir", "d", ".", "Directory to serve files from")
	flags.Bool("sandbox", false, "Refuse file names that resolve outside dir")
	flags.Int("max-sessions", 1, "Sessions served at once")
	flags.Duration("read-timeout", 30*time.Second, "Wait for the command this long (0 = forever)")
	flags.Duration("dial-timeout", 10*time.Second, "Data channel connect timeout (0 = none)")
	flags.Duration("write-timeout", 60*time.Second, "Timeout for each write (0 = none)")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.Bool("qr", false, "Print the listen address as a QR code")
	flags.StringP("config", "c", "", "Config file (yaml, toml or json), reloaded on change")
	flags.String("env-file", ".env", "Environment file loaded before reading FTSERVE_* variables")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if envFile, _ := flags.GetString("env-file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error loading %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	switch flags.NArg() {
	case 0:
	case 1:
		port, err := strconv.Atoi(flags.Arg(0))
		if err != nil {
			return nil, fmt.Errorf("invalid port %q", flags.Arg(0))
		}
		v.Set("port", port)
	default:
		return nil, fmt.Errorf("too many arguments: %s", strings.Join(flags.Args(), " "))
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return &Source{v: v}, nil
}

// Config decodes and validates the current values.
func (s *Source) Config() (*Config, error) {
	cfg := &Config{
		Host:         s.v.GetString("host"),
		Port:         s.v.GetInt("port"),
		Dir:          s.v.GetString("dir"),
		Sandbox:      s.v.GetBool("sandbox"),
		MaxSessions:  s.v.GetInt("max-sessions"),
		ReadTimeout:  s.v.GetDuration("read-timeout"),
		DialTimeout:  s.v.GetDuration("dial-timeout"),
		WriteTimeout: s.v.GetDuration("write-timeout"),
		LogLevel:     s.v.GetString("log-level"),
		QR:           s.v.GetBool("qr"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ConfigFile returns the config file in use, or "".
func (s *Source) ConfigFile() string {
	return s.v.ConfigFileUsed()
}

// Watch calls onChange with the reloaded config each time the config file
// changes. It does nothing without a config file. Only settings read per
// session (log level) take effect without a restart.
func (s *Source) Watch(onChange func(*Config, error)) {
	if s.ConfigFile() == "" {
		return
	}
	s.v.OnConfigChange(func(e fsnotify.Event) {
		slog.Info("Config file changed", "file", e.Name, "op", e.Op.String())
		onChange(s.Config())
	})
	s.v.WatchConfig()
}

// Load parses args and returns the resulting config.
func Load(name string, args []string) (*Config, error) {
	src, err := NewSource(name, args)
	if err != nil {
		return nil, err
	}
	return src.Config()
}
