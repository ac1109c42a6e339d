package main

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gordian-engine/lanterm/lcert"
	"github.com/gordian-engine/lanterm/lcodec"
	"github.com/gordian-engine/lanterm/lengine"
	"github.com/spf13/cobra"
)

// Listen addresses used when neither the file nor a flag sets one.
const (
	defaultHostListen = ":7420"
	defaultJoinListen = ":0"
)

// lanterm config.toml keys.
type fileConfig struct {
	Listen         string `toml:"listen"`
	App            string `toml:"app"`
	Peer           string `toml:"peer"`
	PeerID         string `toml:"peer_id"`
	LogLevel       string `toml:"log_level"`
	Cadence        string `toml:"cadence"`
	ResyncInterval string `toml:"resync_interval"`
	MaxFrameSize   int64  `toml:"max_frame_size"`
	Codec          string `toml:"codec"`
}

// cliConfig is the resolved configuration for one command.
type cliConfig struct {
	Listen string
	App    string

	// Host address to join, and the peer ID it must present.
	// A zero PeerID accepts any host.
	Peer   string
	PeerID lcert.PeerID

	LogLevel slog.Level

	Cadence        time.Duration
	ResyncInterval time.Duration

	// Zero keeps the channel default.
	MaxFrameSize uint32

	Codec string
}

func defaultCLIConfig() cliConfig {
	return cliConfig{
		LogLevel:       slog.LevelInfo,
		Cadence:        lengine.DefaultCadence,
		ResyncInterval: lengine.DefaultResyncInterval,
		Codec:          "json",
	}
}

// loadConfig overlays the TOML file at path onto the defaults.
// An empty path returns the defaults.
func loadConfig(path string) (cliConfig, error) {
	cfg := defaultCLIConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return cliConfig{}, fmt.Errorf("load config: %w", err)
	}
	if und := meta.Undecoded(); len(und) > 0 {
		keys := make([]string, len(und))
		for i, k := range und {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return cliConfig{}, fmt.Errorf("load config: unknown keys %s", strings.Join(keys, ", "))
	}

	var errs error
	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("app") {
		cfg.App = strings.TrimSpace(raw.App)
	}
	if meta.IsDefined("peer") {
		cfg.Peer = strings.TrimSpace(raw.Peer)
	}
	if meta.IsDefined("peer_id") {
		errs = errors.Join(errs, cfg.setPeerID(raw.PeerID))
	}
	if meta.IsDefined("log_level") {
		errs = errors.Join(errs, cfg.setLogLevel(raw.LogLevel))
	}
	if meta.IsDefined("cadence") {
		errs = errors.Join(errs, setDuration(&cfg.Cadence, "cadence", raw.Cadence))
	}
	if meta.IsDefined("resync_interval") {
		errs = errors.Join(errs, setDuration(&cfg.ResyncInterval, "resync_interval", raw.ResyncInterval))
	}
	if meta.IsDefined("max_frame_size") {
		if raw.MaxFrameSize <= 0 || raw.MaxFrameSize > 1<<32-1 {
			errs = errors.Join(errs, fmt.Errorf("max_frame_size %d out of range", raw.MaxFrameSize))
		} else {
			cfg.MaxFrameSize = uint32(raw.MaxFrameSize)
		}
	}
	if meta.IsDefined("codec") {
		cfg.Codec = strings.TrimSpace(raw.Codec)
	}

	if err := errors.Join(errs, cfg.validate()); err != nil {
		return cliConfig{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// applyFlags overrides cfg with every flag explicitly set on cmd.
func applyFlags(cmd *cobra.Command, cfg *cliConfig) error {
	fs := cmd.Flags()

	var errs error
	if fs.Changed("listen") {
		cfg.Listen, _ = fs.GetString("listen")
	}
	if fs.Changed("app") {
		cfg.App, _ = fs.GetString("app")
	}
	if fs.Changed("peer") {
		cfg.Peer, _ = fs.GetString("peer")
	}
	if fs.Changed("peer-id") {
		s, _ := fs.GetString("peer-id")
		errs = errors.Join(errs, cfg.setPeerID(s))
	}
	if fs.Changed("log-level") {
		s, _ := fs.GetString("log-level")
		errs = errors.Join(errs, cfg.setLogLevel(s))
	}
	if fs.Changed("cadence") {
		cfg.Cadence, _ = fs.GetDuration("cadence")
	}
	if fs.Changed("resync-interval") {
		cfg.ResyncInterval, _ = fs.GetDuration("resync-interval")
	}
	if fs.Changed("max-frame-size") {
		cfg.MaxFrameSize, _ = fs.GetUint32("max-frame-size")
	}
	if fs.Changed("codec") {
		cfg.Codec, _ = fs.GetString("codec")
	}

	return errors.Join(errs, cfg.validate())
}

func (c *cliConfig) setPeerID(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		c.PeerID = lcert.PeerID{}
		return nil
	}
	id, err := lcert.ParsePeerID(s)
	if err != nil {
		return fmt.Errorf("peer_id: %w", err)
	}
	c.PeerID = id
	return nil
}

func (c *cliConfig) setLogLevel(s string) error {
	if err := c.LogLevel.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

func setDuration(dst *time.Duration, key, s string) error {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func (c cliConfig) validate() error {
	var err error
	if c.Cadence <= 0 {
		err = errors.Join(err, fmt.Errorf("cadence must be positive (got %s)", c.Cadence))
	}
	if c.ResyncInterval <= 0 {
		err = errors.Join(err, fmt.Errorf("resync_interval must be positive (got %s)", c.ResyncInterval))
	}
	if _, cErr := lcodec.ByName(c.Codec); cErr != nil {
		err = errors.Join(err, cErr)
	}
	return err
}

func (c cliConfig) listenAddr(fallback string) string {
	if c.Listen == "" {
		return fallback
	}
	return c.Listen
}
