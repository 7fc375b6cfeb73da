package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram Telegram `yaml:"telegram"`
	Storage  Storage  `yaml:"storage"`
	Tmux     Tmux     `yaml:"tmux"`
	Headless Headless `yaml:"headless"`
	Projects Projects `yaml:"projects"`
	Sessions Sessions `yaml:"sessions"`
	Console  Console  `yaml:"console"`
	Metrics  Metrics  `yaml:"metrics"`
}

type Telegram struct {
	Token         string `yaml:"token"`
	ChatID        int64  `yaml:"chat_id"`
	PollTimeoutMs int    `yaml:"poll_timeout_ms"`
}

type Storage struct {
	StateDir   string `yaml:"state_dir"`
	MailboxDir string `yaml:"mailbox_dir"`
}

type Tmux struct {
	Bin           string `yaml:"bin"`
	Socket        string `yaml:"socket"`
	SessionPrefix string `yaml:"session_prefix"`
}

type Headless struct {
	Enabled         bool     `yaml:"enabled"`
	Command         string   `yaml:"command"`
	Args            []string `yaml:"args"`
	ScrollbackLines int      `yaml:"scrollback_lines"`
}

type Projects struct {
	Roots  []string `yaml:"roots"`
	Pinned []string `yaml:"pinned"`
}

type Sessions struct {
	TTLHours int `yaml:"ttl_hours"`
}

type Console struct {
	Listen string `yaml:"listen"`
}

type Metrics struct {
	Listen string `yaml:"listen"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	// Optional environment overrides for secrets.
	if envToken := os.Getenv("RELAYD_TELEGRAM_TOKEN"); envToken != "" {
		cfg.Telegram.Token = envToken
	}

	if cfg.Telegram.Token == "" {
		return nil, fmt.Errorf("telegram.token is required (or set RELAYD_TELEGRAM_TOKEN)")
	}
	if cfg.Telegram.ChatID == 0 {
		return nil, fmt.Errorf("telegram.chat_id is required")
	}

	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	home, _ := os.UserHomeDir()

	if cfg.Telegram.PollTimeoutMs == 0 {
		cfg.Telegram.PollTimeoutMs = 30000
	}
	if cfg.Storage.StateDir == "" {
		cfg.Storage.StateDir = filepath.Join(home, ".relayd")
	}
	if cfg.Storage.MailboxDir == "" {
		cfg.Storage.MailboxDir = filepath.Join(cfg.Storage.StateDir, "mailbox")
	}
	if cfg.Tmux.Bin == "" {
		cfg.Tmux.Bin = "tmux"
	}
	if cfg.Tmux.SessionPrefix == "" {
		cfg.Tmux.SessionPrefix = "relayd-"
	}
	if cfg.Headless.Command == "" {
		cfg.Headless.Command = "claude"
	}
	if cfg.Headless.ScrollbackLines == 0 {
		cfg.Headless.ScrollbackLines = 100
	}
	if len(cfg.Projects.Roots) == 0 && home != "" {
		cfg.Projects.Roots = []string{home}
	}
	if cfg.Sessions.TTLHours == 0 {
		cfg.Sessions.TTLHours = 24
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = "127.0.0.1:9389"
	}
}
