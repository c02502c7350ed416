package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries every path and tunable the replica needs. All paths live
// under DataDir so one directory is one replica.
type Config struct {
	DataDir      string
	DBPath       string
	LogPath      string
	ActivityPath string
	PeerIDPath   string

	// Transport selects the connector: pipe, libp2p, or ws.
	Transport string

	// DiscoveryTimeout bounds how long offer and answer creation wait for
	// the transport to finish gathering its local description.
	DiscoveryTimeout time.Duration

	// ChannelOpenWait bounds how long a freshly established session waits
	// for its data channel before sending the state snapshot anyway.
	ChannelOpenWait time.Duration
}

type fileConfig struct {
	Transport         string `yaml:"transport"`
	DiscoveryTimeout  int    `yaml:"discovery_timeout_ms"`
	ChannelOpenWaitMS int    `yaml:"channel_open_wait_ms"`
}

func New(dataDir string) (Config, error) {
	if dataDir == "" {
		return Config{}, fmt.Errorf("data directory is required")
	}
	cfg := Config{
		DataDir:          dataDir,
		DBPath:           filepath.Join(dataDir, "tasks.db"),
		LogPath:          filepath.Join(dataDir, "oplog.json"),
		ActivityPath:     filepath.Join(dataDir, "activity.jsonl"),
		PeerIDPath:       filepath.Join(dataDir, "peer-id"),
		Transport:        "pipe",
		DiscoveryTimeout: 3 * time.Second,
		ChannelOpenWait:  10 * time.Second,
	}
	if err := cfg.applyFile(filepath.Join(dataDir, "config.yaml")); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyFile overlays config.yaml if one exists; a missing file is not an
// error because a bare data directory is the common case.
func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var file fileConfig
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if file.Transport != "" {
		c.Transport = file.Transport
	}
	if file.DiscoveryTimeout > 0 {
		c.DiscoveryTimeout = time.Duration(file.DiscoveryTimeout) * time.Millisecond
	}
	if file.ChannelOpenWaitMS > 0 {
		c.ChannelOpenWait = time.Duration(file.ChannelOpenWaitMS) * time.Millisecond
	}
	return nil
}
