package main

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

type config struct {
	ServerURL        string
	Channels         []string
	PublishChannel   string
	PublishData      string
	LogLevel         string
	LogFormat        string
	AccessToken      string
	TokenDomains     []string
	Replay           bool
	MetricsAddr      string
	HandshakeTimeout time.Duration
	BackoffIncrement time.Duration
	MaxBackoff       time.Duration
	MaxNetworkDelay  time.Duration
}

func defaultConfig() config {
	return config{
		LogLevel:         "info",
		LogFormat:        "text",
		HandshakeTimeout: 30 * time.Second,
		BackoffIncrement: time.Second,
		MaxBackoff:       30 * time.Second,
		MaxNetworkDelay:  10 * time.Second,
	}
}

// bayeuxcli config.toml keys, mirroring the flag names
type fileConfig struct {
	ServerURL        string   `toml:"server_url"`
	Channels         []string `toml:"channels"`
	PublishChannel   string   `toml:"publish_channel"`
	PublishData      string   `toml:"publish_data"`
	LogLevel         string   `toml:"log_level"`
	LogFormat        string   `toml:"log_format"`
	AccessToken      string   `toml:"access_token"`
	TokenDomains     []string `toml:"token_domains"`
	Replay           bool     `toml:"replay"`
	MetricsAddr      string   `toml:"metrics_addr"`
	HandshakeTimeout string   `toml:"handshake_timeout"`
	BackoffIncrement string   `toml:"backoff_increment"`
	MaxBackoff       string   `toml:"max_backoff"`
	MaxNetworkDelay  string   `toml:"max_network_delay"`
}

func loadConfig(path string, cfg config) (config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config{}, fmt.Errorf("load bayeuxcli config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config{}, fmt.Errorf("load bayeuxcli config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("server_url") {
		cfg.ServerURL = strings.TrimSpace(raw.ServerURL)
	}
	if meta.IsDefined("channels") {
		cfg.Channels = raw.Channels
	}
	if meta.IsDefined("publish_channel") {
		cfg.PublishChannel = strings.TrimSpace(raw.PublishChannel)
	}
	if meta.IsDefined("publish_data") {
		cfg.PublishData = raw.PublishData
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_format") {
		cfg.LogFormat = strings.TrimSpace(raw.LogFormat)
	}
	if meta.IsDefined("access_token") {
		cfg.AccessToken = strings.TrimSpace(raw.AccessToken)
	}
	if meta.IsDefined("token_domains") {
		cfg.TokenDomains = raw.TokenDomains
	}
	if meta.IsDefined("replay") {
		cfg.Replay = raw.Replay
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.HandshakeTimeout},
		{"backoff_increment", raw.BackoffIncrement, &cfg.BackoffIncrement},
		{"max_backoff", raw.MaxBackoff, &cfg.MaxBackoff},
		{"max_network_delay", raw.MaxNetworkDelay, &cfg.MaxNetworkDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.value))
		if err != nil {
			return config{}, fmt.Errorf("load bayeuxcli config: %s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	return cfg, nil
}

// parseConfig reads the optional -config file and lets every flag set on the
// command line override it. Remaining arguments are channels to subscribe to.
func parseConfig(args []string) (config, error) {
	defaults := defaultConfig()
	var flagCfg config
	var configPath string

	flags := flag.NewFlagSet("bayeuxcli", flag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "path to a TOML config file")
	flags.StringVar(&flagCfg.ServerURL, "server", "", "the URL of the Bayeux server")
	flags.StringVar(&flagCfg.PublishChannel, "publish-channel", "", "channel to publish -publish-data to once connected")
	flags.StringVar(&flagCfg.PublishData, "publish-data", "", "JSON (or plain text) published to -publish-channel")
	flags.StringVar(&flagCfg.LogLevel, "loglevel", defaults.LogLevel, "the level to log at")
	flags.StringVar(&flagCfg.LogFormat, "logformat", defaults.LogFormat, "log format (text or json)")
	flags.StringVar(&flagCfg.AccessToken, "token", "", "Salesforce access token sent as a bearer token")
	flags.BoolVar(&flagCfg.Replay, "replay", false, "enable the replay extension")
	flags.StringVar(&flagCfg.MetricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on")
	flags.DurationVar(&flagCfg.HandshakeTimeout, "handshake-timeout", defaults.HandshakeTimeout, "how long to wait for the session")
	flags.DurationVar(&flagCfg.BackoffIncrement, "backoff-increment", defaults.BackoffIncrement, "delay added per consecutive failure")
	flags.DurationVar(&flagCfg.MaxBackoff, "max-backoff", defaults.MaxBackoff, "maximum delay between retries")
	flags.DurationVar(&flagCfg.MaxNetworkDelay, "max-network-delay", defaults.MaxNetworkDelay, "time allowed for a response")
	if err := flags.Parse(args); err != nil {
		return config{}, err
	}

	cfg := defaults
	if configPath != "" {
		var err error
		if cfg, err = loadConfig(configPath, cfg); err != nil {
			return config{}, err
		}
	}

	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "server":
			cfg.ServerURL = flagCfg.ServerURL
		case "publish-channel":
			cfg.PublishChannel = flagCfg.PublishChannel
		case "publish-data":
			cfg.PublishData = flagCfg.PublishData
		case "loglevel":
			cfg.LogLevel = flagCfg.LogLevel
		case "logformat":
			cfg.LogFormat = flagCfg.LogFormat
		case "token":
			cfg.AccessToken = flagCfg.AccessToken
		case "replay":
			cfg.Replay = flagCfg.Replay
		case "metrics-addr":
			cfg.MetricsAddr = flagCfg.MetricsAddr
		case "handshake-timeout":
			cfg.HandshakeTimeout = flagCfg.HandshakeTimeout
		case "backoff-increment":
			cfg.BackoffIncrement = flagCfg.BackoffIncrement
		case "max-backoff":
			cfg.MaxBackoff = flagCfg.MaxBackoff
		case "max-network-delay":
			cfg.MaxNetworkDelay = flagCfg.MaxNetworkDelay
		}
	})
	if channels := flags.Args(); len(channels) > 0 {
		cfg.Channels = channels
	}

	return cfg, cfg.validate()
}

func (cfg config) validate() error {
	if cfg.ServerURL == "" {
		return fmt.Errorf("no server URL provided")
	}
	if len(cfg.Channels) == 0 && cfg.PublishChannel == "" {
		return fmt.Errorf("nothing to do: provide channels to subscribe to or a channel to publish to")
	}
	if cfg.PublishChannel != "" && cfg.PublishData == "" {
		return fmt.Errorf("-publish-channel requires -publish-data")
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
	return nil
}

func (cfg config) logger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}
