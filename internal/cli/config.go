package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ChuLiYu/wfh-check/internal/controller"
	"github.com/ChuLiYu/wfh-check/internal/messenger"
	"github.com/ChuLiYu/wfh-check/internal/schedule"
	"github.com/ChuLiYu/wfh-check/pkg/types"
	"gopkg.in/yaml.v3"
)

// Config represents the complete system configuration structure
// Maps config file fields through YAML tags
type Config struct {
	Telegram struct {
		Token       string `yaml:"token"`        // BOT_TOKEN
		ChatID      string `yaml:"chat_id"`      // GROUP_CHAT_ID
		APIURL      string `yaml:"api_url"`      // Bot API base URL
		WebhookURL  string `yaml:"webhook_url"`  // RENDER_EXTERNAL_URL, empty = no setWebhook
		WebhookPath string `yaml:"webhook_path"` // route served by gin
	} `yaml:"telegram"`

	Roster struct {
		File string `yaml:"file"`
	} `yaml:"roster"`

	Timezone string `yaml:"timezone"` // WFH_TIMEZONE

	Probes struct {
		PerDay          int            `yaml:"per_day"`
		ResponseTimeout time.Duration  `yaml:"response_timeout"`
		Windows         []types.Window `yaml:"windows"`
	} `yaml:"probes"`

	Attendance struct {
		LateBoundary  *types.TimeOfDay `yaml:"late_boundary"`
		CheckOutStart *types.TimeOfDay `yaml:"checkout_start"`
		CheckOutEnd   *types.TimeOfDay `yaml:"checkout_end"`
	} `yaml:"attendance"`

	Report struct {
		Cutoff *types.TimeOfDay `yaml:"cutoff"`
	} `yaml:"report"`

	Archive struct {
		Dir string `yaml:"dir"` // empty = do not archive
	} `yaml:"archive"`

	Dispatch struct {
		Workers     int           `yaml:"workers"`
		QueueSize   int           `yaml:"queue_size"`
		SendTimeout time.Duration `yaml:"send_timeout"`
	} `yaml:"dispatch"`

	HTTP struct {
		Port int `yaml:"port"` // PORT
	} `yaml:"http"`

	Admin struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"admin"`

	Log struct {
		Level  string `yaml:"level"`  // debug|info|warn|error
		Format string `yaml:"format"` // text|json
	} `yaml:"log"`
}

func tod(hour, minute int) *types.TimeOfDay {
	t := types.NewTimeOfDay(hour, minute)
	return &t
}

// applyDefaults fills every omitted field
func (cfg *Config) applyDefaults() {
	d := controller.DefaultConfig()

	if cfg.Telegram.APIURL == "" {
		cfg.Telegram.APIURL = messenger.DefaultTelegramAPI
	}
	if cfg.Telegram.WebhookPath == "" {
		cfg.Telegram.WebhookPath = messenger.DefaultWebhookPath
	}
	if cfg.Roster.File == "" {
		cfg.Roster.File = "configs/employees.json"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Asia/Bangkok"
	}
	if cfg.Probes.PerDay == 0 {
		cfg.Probes.PerDay = d.ProbesPerDay
	}
	if cfg.Probes.ResponseTimeout == 0 {
		cfg.Probes.ResponseTimeout = d.ResponseTimeout
	}
	if len(cfg.Probes.Windows) == 0 {
		cfg.Probes.Windows = d.Windows
	}
	if cfg.Attendance.LateBoundary == nil {
		cfg.Attendance.LateBoundary = tod(10, 0)
	}
	if cfg.Attendance.CheckOutStart == nil {
		cfg.Attendance.CheckOutStart = tod(20, 0)
	}
	if cfg.Attendance.CheckOutEnd == nil {
		cfg.Attendance.CheckOutEnd = tod(21, 0)
	}
	if cfg.Report.Cutoff == nil {
		cfg.Report.Cutoff = tod(21, 0)
	}
	if cfg.Dispatch.Workers == 0 {
		cfg.Dispatch.Workers = 1
	}
	if cfg.Dispatch.QueueSize == 0 {
		cfg.Dispatch.QueueSize = 64
	}
	if cfg.Dispatch.SendTimeout == 0 {
		cfg.Dispatch.SendTimeout = d.SendTimeout
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 3000
	}
	if cfg.Admin.Addr == "" {
		cfg.Admin.Addr = "127.0.0.1:50051"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// applyEnv overrides file values with the deployment environment
func (cfg *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := getenv("GROUP_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := getenv("RENDER_EXTERNAL_URL"); v != "" {
		cfg.Telegram.WebhookURL = v
	}
	if v := getenv("WFH_TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return schedule.Invalid("http.port", "PORT=%q is not a number", v)
		}
		cfg.HTTP.Port = port
	}
	return nil
}

// Validate checks the fields the controller does not own
func (cfg *Config) Validate() error {
	if cfg.HTTP.Port < 1 || cfg.HTTP.Port > 65535 {
		return schedule.Invalid("http.port", "%d is out of range", cfg.HTTP.Port)
	}
	if cfg.Dispatch.Workers < 1 {
		return schedule.Invalid("dispatch.workers", "must be at least 1, got %d", cfg.Dispatch.Workers)
	}
	if cfg.Dispatch.QueueSize < 1 {
		return schedule.Invalid("dispatch.queue_size", "must be at least 1, got %d", cfg.Dispatch.QueueSize)
	}
	if !strings.HasPrefix(cfg.Telegram.WebhookPath, "/") {
		return schedule.Invalid("telegram.webhook_path", "%q must start with /", cfg.Telegram.WebhookPath)
	}
	if _, err := parseLevel(cfg.Log.Level); err != nil {
		return schedule.Invalid("log.level", "%v", err)
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return schedule.Invalid("log.format", "%q is neither text nor json", cfg.Log.Format)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return schedule.Invalid("timezone", "%v", err)
	}
	return cfg.controllerConfig().Validate()
}

// controllerConfig maps the file layout onto controller.Config
func (cfg *Config) controllerConfig() controller.Config {
	c := controller.DefaultConfig()
	c.ChatID = cfg.Telegram.ChatID
	c.ProbesPerDay = cfg.Probes.PerDay
	c.ResponseTimeout = cfg.Probes.ResponseTimeout
	c.Windows = cfg.Probes.Windows
	c.LateBoundary = *cfg.Attendance.LateBoundary
	c.CheckOutStart = *cfg.Attendance.CheckOutStart
	c.CheckOutEnd = *cfg.Attendance.CheckOutEnd
	c.ReportCutoff = *cfg.Report.Cutoff
	c.SendTimeout = cfg.Dispatch.SendTimeout
	return c
}

// webhookURL is the public address registered with setWebhook
func (cfg *Config) webhookURL() string {
	if cfg.Telegram.WebhookURL == "" {
		return ""
	}
	return strings.TrimRight(cfg.Telegram.WebhookURL, "/") + cfg.Telegram.WebhookPath
}

// loadConfig reads the YAML file, then applies defaults and env overrides.
func loadConfig(path string) (*Config, error) {
	return loadConfigWithEnv(path, os.Getenv)
}

func loadConfigWithEnv(path string, getenv func(string) string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(s))
	return level, err
}

// newLogger builds the process logger from the log section
func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	level, err := parseLevel(cfg.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
