package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfirmationText = "Got it, I've added this message to your to-do list."
	DefaultSummaryCron      = "0 9 * * *"
	DefaultOwnerName        = "boss"
)

type Config struct {
	Account    AccountConfig    `yaml:"account"`
	Bot        BotConfig        `yaml:"bot"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Filter     FilterConfig     `yaml:"filter"`
	Reply      ReplyConfig      `yaml:"reply"`
	Summary    SummaryConfig    `yaml:"summary"`
	Store      StoreConfig      `yaml:"store"`
	Runtime    RuntimeConfig    `yaml:"runtime"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// AccountConfig configures the owner's personal account session.
type AccountConfig struct {
	AppID       int    `yaml:"app_id"`
	AppHash     string `yaml:"app_hash"`
	Phone       string `yaml:"phone"`
	Password    string `yaml:"password"`
	SessionPath string `yaml:"session_path"`
	// OwnerName is how message templates address the owner.
	OwnerName string `yaml:"owner_name"`
}

// BotConfig configures the command/notification bot. An empty token disables it.
type BotConfig struct {
	Token            string `yaml:"token"`
	AuthorizedChatID int64  `yaml:"authorized_chat_id"`
	PollIntervalSec  int    `yaml:"poll_interval_sec"`
	PollTimeoutSec   int    `yaml:"poll_timeout_sec"`
	APIRoot          string `yaml:"api_root"`
}

type ClassifierConfig struct {
	Gemini     ProviderConfig `yaml:"gemini"`
	OpenAI     ProviderConfig `yaml:"openai"`
	TimeoutSec int            `yaml:"timeout_sec"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type FilterConfig struct {
	IgnoreGroups IgnoreList `yaml:"ignore_groups"`
	// PrivateKeywords gates private messages before classification when non-empty.
	PrivateKeywords []string `yaml:"private_keywords"`
}

type ReplyConfig struct {
	ConfirmationText string `yaml:"confirmation_text"`
	Private          bool   `yaml:"private"`
	Group            bool   `yaml:"group"`
}

type SummaryConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Cron       string `yaml:"cron"`
	TimeoutSec int    `yaml:"timeout_sec"`
	RunOnStart bool   `yaml:"run_on_start"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type RuntimeConfig struct {
	Workers            int `yaml:"workers"`
	QueueBuffer        int `yaml:"queue_buffer"`
	MessageTimeoutSec  int `yaml:"message_timeout_sec"`
	ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec"`
}

type LoggingConfig struct {
	Dir     string `yaml:"dir"`
	Verbose bool   `yaml:"verbose"`
	// TraceDecisions appends every filter decision to <dir>/decisions as JSON lines.
	TraceDecisions bool `yaml:"trace_decisions"`
	// StatusIntervalMin logs a runtime status line this often; 0 disables it.
	StatusIntervalMin int `yaml:"status_interval_min"`
}

func DefaultPath() string {
	return filepath.Join("config", "config.yaml")
}

// Load reads the config at path and checks everything the daemon needs.
func Load(path string) (Config, error) {
	return readValidated(path, Config.Validate)
}

// LoadStore is Load for commands that only open the task store, so the
// account credentials may be absent.
func LoadStore(path string) (Config, error) {
	return readValidated(path, Config.ValidateStore)
}

func readValidated(path string, validate func(Config) error) (Config, error) {
	cfg, err := read(path)
	if err != nil {
		return Config{}, err
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// read loads the YAML file at path (a missing file is not an error), applies
// .env and environment overrides and fills defaults.
func read(path string) (Config, error) {
	cfg := defaultConfig()
	if err := loadFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	loadDotEnv()
	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	if strings.TrimSpace(path) == "" {
		return os.ErrNotExist
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func defaultConfig() Config {
	return Config{
		Account: AccountConfig{
			SessionPath: filepath.Join("data", "session.json"),
			OwnerName:   DefaultOwnerName,
		},
		Bot: BotConfig{
			PollIntervalSec: 2,
			PollTimeoutSec:  20,
		},
		Classifier: ClassifierConfig{
			Gemini:     ProviderConfig{Model: "gemini-2.0-flash"},
			OpenAI:     ProviderConfig{Model: "gpt-4o-mini"},
			TimeoutSec: 15,
		},
		Reply: ReplyConfig{
			ConfirmationText: DefaultConfirmationText,
			Private:          true,
			Group:            true,
		},
		Summary: SummaryConfig{
			Enabled:    true,
			Cron:       DefaultSummaryCron,
			TimeoutSec: 60,
		},
		Store: StoreConfig{
			Path: filepath.Join("data", "tasks.db"),
		},
		Runtime: RuntimeConfig{
			Workers:            4,
			QueueBuffer:        128,
			MessageTimeoutSec:  30,
			ShutdownTimeoutSec: 5,
		},
		Logging: LoggingConfig{
			Dir:               filepath.Join("output", "logs"),
			StatusIntervalMin: 15,
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := defaultConfig()
	if strings.TrimSpace(cfg.Account.SessionPath) == "" {
		cfg.Account.SessionPath = defaults.Account.SessionPath
	}
	if strings.TrimSpace(cfg.Account.OwnerName) == "" {
		cfg.Account.OwnerName = defaults.Account.OwnerName
	}
	if cfg.Bot.PollIntervalSec <= 0 {
		cfg.Bot.PollIntervalSec = defaults.Bot.PollIntervalSec
	}
	if cfg.Bot.PollTimeoutSec <= 0 {
		cfg.Bot.PollTimeoutSec = defaults.Bot.PollTimeoutSec
	}
	if strings.TrimSpace(cfg.Classifier.Gemini.Model) == "" {
		cfg.Classifier.Gemini.Model = defaults.Classifier.Gemini.Model
	}
	if strings.TrimSpace(cfg.Classifier.OpenAI.Model) == "" {
		cfg.Classifier.OpenAI.Model = defaults.Classifier.OpenAI.Model
	}
	if cfg.Classifier.TimeoutSec <= 0 {
		cfg.Classifier.TimeoutSec = defaults.Classifier.TimeoutSec
	}
	if strings.TrimSpace(cfg.Reply.ConfirmationText) == "" {
		cfg.Reply.ConfirmationText = defaults.Reply.ConfirmationText
	}
	if strings.TrimSpace(cfg.Summary.Cron) == "" {
		cfg.Summary.Cron = defaults.Summary.Cron
	}
	if cfg.Summary.TimeoutSec <= 0 {
		cfg.Summary.TimeoutSec = defaults.Summary.TimeoutSec
	}
	if strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = defaults.Store.Path
	}
	if cfg.Runtime.Workers <= 0 {
		cfg.Runtime.Workers = defaults.Runtime.Workers
	}
	if cfg.Runtime.QueueBuffer <= 0 {
		cfg.Runtime.QueueBuffer = defaults.Runtime.QueueBuffer
	}
	if cfg.Runtime.MessageTimeoutSec <= 0 {
		cfg.Runtime.MessageTimeoutSec = defaults.Runtime.MessageTimeoutSec
	}
	if cfg.Runtime.ShutdownTimeoutSec <= 0 {
		cfg.Runtime.ShutdownTimeoutSec = defaults.Runtime.ShutdownTimeoutSec
	}
	cfg.Filter.PrivateKeywords = normalizeKeywords(cfg.Filter.PrivateKeywords)
}

func normalizeKeywords(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}

// Validate checks the fields the process cannot run without.
func (c Config) Validate() error {
	if c.Account.AppID <= 0 {
		return fmt.Errorf("account.app_id is required")
	}
	if strings.TrimSpace(c.Account.AppHash) == "" {
		return fmt.Errorf("account.app_hash is required")
	}
	if err := c.ValidateStore(); err != nil {
		return err
	}
	if c.BotEnabled() && c.Bot.AuthorizedChatID == 0 {
		return fmt.Errorf("bot.authorized_chat_id is required when bot.token is set")
	}
	if c.Summary.Enabled && strings.TrimSpace(c.Summary.Cron) == "" {
		return fmt.Errorf("summary.cron is required when summary is enabled")
	}
	if c.Runtime.Workers <= 0 {
		return fmt.Errorf("runtime.workers must be > 0")
	}
	return nil
}

// ValidateStore checks only what local store access needs.
func (c Config) ValidateStore() error {
	if strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("store.path is required")
	}
	return nil
}

func (c Config) BotEnabled() bool {
	return strings.TrimSpace(c.Bot.Token) != ""
}

func (c Config) ClassifierEnabled() bool {
	return strings.TrimSpace(c.Classifier.Gemini.APIKey) != "" || strings.TrimSpace(c.Classifier.OpenAI.APIKey) != ""
}

func (c Config) ClassifierTimeout() time.Duration {
	return time.Duration(c.Classifier.TimeoutSec) * time.Second
}

func (c Config) MessageTimeout() time.Duration {
	return time.Duration(c.Runtime.MessageTimeoutSec) * time.Second
}

func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Runtime.ShutdownTimeoutSec) * time.Second
}

func (c Config) SummaryTimeout() time.Duration {
	return time.Duration(c.Summary.TimeoutSec) * time.Second
}

func (c Config) StatusInterval() time.Duration {
	return time.Duration(c.Logging.StatusIntervalMin) * time.Minute
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Bot.PollIntervalSec) * time.Second
}
