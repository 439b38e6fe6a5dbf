package cli

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ChuLiYu/wfh-check/internal/controller"
	"github.com/ChuLiYu/wfh-check/internal/schedule"
	"github.com/ChuLiYu/wfh-check/internal/server"
	"github.com/ChuLiYu/wfh-check/internal/snapshot"
	"github.com/ChuLiYu/wfh-check/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

func noEnv(string) string { return "" }

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "wfhcheck", cmd.Use, "Root command should be 'wfhcheck'")
	assert.Equal(t, "1.0.0", cmd.Version, "Version should be 1.0.0")

	// 檢查子命令
	commandNames := make(map[string]bool)
	for _, c := range cmd.Commands() {
		commandNames[c.Use] = true
	}
	for _, name := range []string{"run", "schedule", "status", "report", "roster"} {
		assert.True(t, commandNames[name], "Should have '%s' command", name)
	}

	// 檢查持久化標誌
	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag, "Should have --config flag")
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "configs/default.yaml", configFlag.DefValue, "Default config path should be configs/default.yaml")
	assert.NotNil(t, cmd.PersistentFlags().Lookup("env-file"), "Should have --env-file flag")
}

func TestBuildRunCommand(t *testing.T) {
	cmd := buildRunCommand()

	assert.Equal(t, "run", cmd.Use)
	assert.Contains(t, cmd.Short, "Start")
	assert.NotNil(t, cmd.Flags().Lookup("dry-run"), "Should have --dry-run flag")
	assert.NotNil(t, cmd.RunE)
}

func TestBuildScheduleCommand(t *testing.T) {
	cmd := buildScheduleCommand()

	daysFlag := cmd.Flags().Lookup("days")
	require.NotNil(t, daysFlag)
	assert.Equal(t, "n", daysFlag.Shorthand)
	assert.Equal(t, "1", daysFlag.DefValue)
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
telegram:
  token: file-token
  chat_id: "-1001"
  webhook_url: https://bot.example.com/
timezone: Asia/Tokyo
probes:
  per_day: 3
  response_timeout: 5m
  windows:
    - {start: 9, end: 12}
    - {start: 13, end: 18}
attendance:
  late_boundary: "09:30"
  checkout_start: "18:00"
  checkout_end: "19:00"
report:
  cutoff: "19:00"
archive:
  dir: /tmp/reports
dispatch:
  workers: 2
  queue_size: 16
http:
  port: 8080
log:
  level: debug
  format: json
`)

	cfg, err := loadConfigWithEnv(path, noEnv)
	require.NoError(t, err)

	assert.Equal(t, "file-token", cfg.Telegram.Token)
	assert.Equal(t, "-1001", cfg.Telegram.ChatID)
	assert.Equal(t, "Asia/Tokyo", cfg.Timezone)
	assert.Equal(t, 3, cfg.Probes.PerDay)
	assert.Equal(t, 5*time.Minute, cfg.Probes.ResponseTimeout)
	assert.Equal(t, []types.Window{{Start: 9, End: 12}, {Start: 13, End: 18}}, cfg.Probes.Windows)
	assert.Equal(t, types.NewTimeOfDay(9, 30), *cfg.Attendance.LateBoundary)
	assert.Equal(t, types.NewTimeOfDay(19, 0), *cfg.Report.Cutoff)
	assert.Equal(t, 2, cfg.Dispatch.Workers)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "json", cfg.Log.Format)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "https://bot.example.com/telegram/webhook", cfg.webhookURL())
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeFile(t, "config.yaml", "telegram:\n  chat_id: \"-100\"\n")

	cfg, err := loadConfigWithEnv(path, noEnv)
	require.NoError(t, err)

	d := controller.DefaultConfig()
	assert.Equal(t, d.ProbesPerDay, cfg.Probes.PerDay)
	assert.Equal(t, d.ResponseTimeout, cfg.Probes.ResponseTimeout)
	assert.Equal(t, d.Windows, cfg.Probes.Windows)
	assert.Equal(t, "Asia/Bangkok", cfg.Timezone)
	assert.Equal(t, "configs/employees.json", cfg.Roster.File)
	assert.Equal(t, 3000, cfg.HTTP.Port)
	assert.Equal(t, 1, cfg.Dispatch.Workers)
	assert.Equal(t, "127.0.0.1:50051", cfg.Admin.Addr)
	assert.False(t, cfg.Admin.Enabled)
	assert.Empty(t, cfg.webhookURL(), "no public URL means no webhook registration")

	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeFile(t, "config.yaml", "telegram:\n  token: file-token\n  chat_id: \"-1\"\n")

	env := map[string]string{
		"BOT_TOKEN":           "env-token",
		"GROUP_CHAT_ID":       "-200",
		"RENDER_EXTERNAL_URL": "https://wfh.onrender.com",
		"WFH_TIMEZONE":        "Europe/Berlin",
		"PORT":                "10000",
	}
	cfg, err := loadConfigWithEnv(path, func(k string) string { return env[k] })
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Telegram.Token)
	assert.Equal(t, "-200", cfg.Telegram.ChatID)
	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
	assert.Equal(t, 10000, cfg.HTTP.Port)
	assert.Equal(t, "https://wfh.onrender.com/telegram/webhook", cfg.webhookURL())
}

func TestLoadConfig_BadPort(t *testing.T) {
	path := writeFile(t, "config.yaml", "telegram:\n  chat_id: \"-1\"\n")

	_, err := loadConfigWithEnv(path, func(k string) string {
		if k == "PORT" {
			return "eighty"
		}
		return ""
	})

	var cfgErr *schedule.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "http.port", cfgErr.Field)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := loadConfigWithEnv("/nonexistent/config.yaml", noEnv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "probes:\n  per_day: [unclosed\n")

	_, err := loadConfigWithEnv(path, noEnv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config YAML")
}

func TestLoadConfig_BadTimeOfDay(t *testing.T) {
	path := writeFile(t, "bad.yaml", "report:\n  cutoff: \"25:99\"\n")

	_, err := loadConfigWithEnv(path, noEnv)
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	base := func(t *testing.T) *Config {
		path := writeFile(t, "config.yaml", "telegram:\n  chat_id: \"-100\"\n")
		cfg, err := loadConfigWithEnv(path, noEnv)
		require.NoError(t, err)
		return cfg
	}

	testCases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing chat", func(c *Config) { c.Telegram.ChatID = "" }, "chat_id"},
		{"port", func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
		{"workers", func(c *Config) { c.Dispatch.Workers = -1 }, "dispatch.workers"},
		{"webhook path", func(c *Config) { c.Telegram.WebhookPath = "hook" }, "telegram.webhook_path"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
		{"cutoff before window end", func(c *Config) { c.Report.Cutoff = tod(19, 0) }, "report_cutoff"},
		{"reversed checkout", func(c *Config) { c.Attendance.CheckOutEnd = tod(19, 0) }, "checkout"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base(t)
			tc.mutate(cfg)

			var cfgErr *schedule.ConfigurationError
			require.ErrorAs(t, cfg.Validate(), &cfgErr)
			assert.Equal(t, tc.field, cfgErr.Field)
		})
	}
}

func TestControllerConfigMapping(t *testing.T) {
	path := writeFile(t, "config.yaml", `
telegram:
  chat_id: "-42"
probes:
  per_day: 2
  response_timeout: 90s
attendance:
  late_boundary: "09:15"
dispatch:
  send_timeout: 3s
`)
	cfg, err := loadConfigWithEnv(path, noEnv)
	require.NoError(t, err)

	cc := cfg.controllerConfig()
	assert.Equal(t, "-42", cc.ChatID)
	assert.Equal(t, 2, cc.ProbesPerDay)
	assert.Equal(t, 90*time.Second, cc.ResponseTimeout)
	assert.Equal(t, types.NewTimeOfDay(9, 15), cc.LateBoundary)
	assert.Equal(t, types.NewTimeOfDay(21, 0), cc.ReportCutoff)
	assert.Equal(t, 3*time.Second, cc.SendTimeout)
	assert.Equal(t, time.Second, cc.TickInterval, "tick interval is not configurable")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{}
	cfg.Log.Level = "warn"
	cfg.Log.Format = "json"

	logger := newLogger(cfg, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"k":"v"`)
}

func TestShowSchedule(t *testing.T) {
	path := writeFile(t, "config.yaml", "telegram:\n  chat_id: \"-1\"\nprobes:\n  per_day: 2\n")
	cfg, err := loadConfigWithEnv(path, noEnv)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, showSchedule(&buf, cfg, 3))

	out := buf.String()
	assert.Contains(t, out, "2 checks per day")
	assert.Contains(t, out, "window 10:00-12:00")
	assert.Contains(t, out, "Day 1:")
	assert.Contains(t, out, "Day 3:")

	assert.Error(t, showSchedule(&buf, cfg, 0))

	cfg.Probes.PerDay = 1000
	assert.ErrorIs(t, showSchedule(&buf, cfg, 1), schedule.ErrTooManyProbes)
}

func TestShowRoster(t *testing.T) {
	rosterPath := writeFile(t, "employees.json", `[
  {"telegramId": 111, "name": "Alice", "username": "alice"},
  {"telegramId": 222, "name": "Bob"}
]`)
	cfg := &Config{}
	cfg.Roster.File = rosterPath

	var buf bytes.Buffer
	require.NoError(t, showRoster(&buf, cfg))

	out := buf.String()
	assert.Contains(t, out, "2 employees")
	assert.Contains(t, out, "@alice")
	assert.Contains(t, out, "Bob")

	cfg.Roster.File = filepath.Join(t.TempDir(), "missing.json")
	assert.Error(t, showRoster(&buf, cfg))
}

func TestShowReport(t *testing.T) {
	dir := t.TempDir()
	archive := snapshot.NewManager(dir)

	checkIn := types.NewTimeOfDay(9, 55)
	for _, date := range []string{"2026-03-01", "2026-03-02"} {
		require.NoError(t, archive.Write(types.DayReport{
			Date:     date,
			Rounds:   2,
			Schedule: []types.TimeOfDay{types.NewTimeOfDay(10, 30), types.NewTimeOfDay(14, 0)},
			Employees: []types.EmployeeReport{
				{EmployeeID: "1", Mention: "@alice", CheckIn: &checkIn, MissedRounds: []int{2}},
			},
		}))
	}

	cfg := &Config{}
	cfg.Archive.Dir = dir

	var buf bytes.Buffer
	require.NoError(t, showReport(&buf, cfg, "", true))
	assert.Equal(t, "2026-03-01\n2026-03-02\n", buf.String())

	buf.Reset()
	require.NoError(t, showReport(&buf, cfg, "", false))
	assert.Contains(t, buf.String(), "📊 WFH report for 2026-03-02")
	assert.Contains(t, buf.String(), "✅ on time 09:55")
	assert.Contains(t, buf.String(), "❌ missed rounds 2")

	buf.Reset()
	require.NoError(t, showReport(&buf, cfg, "2026-03-01", false))
	assert.Contains(t, buf.String(), "2026-03-01")

	assert.ErrorIs(t, showReport(&buf, cfg, "2026-01-01", false), snapshot.ErrSnapshotNotFound)

	cfg.Archive.Dir = ""
	assert.Error(t, showReport(&buf, cfg, "", false))
}

func TestShowReport_EmptyArchive(t *testing.T) {
	cfg := &Config{}
	cfg.Archive.Dir = t.TempDir()

	var buf bytes.Buffer
	assert.ErrorIs(t, showReport(&buf, cfg, "", false), snapshot.ErrSnapshotNotFound)
}

type statusBackend struct{}

func (statusBackend) GetStatus() controller.Status {
	return controller.Status{SessionID: "abc", Date: "2026-03-02", Round: 2, Employees: 4, CheckedIn: 3}
}

func (statusBackend) Schedule() schedule.DailySchedule { return nil }

func (statusBackend) Deliver(types.InboundMessage) error { return errors.New("read only") }

func TestShowStatus(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Telegram.ChatID = "-100"

	var buf bytes.Buffer
	require.NoError(t, showStatus(context.Background(), &buf, cfg, ""))
	assert.Contains(t, buf.String(), "Group Chat:       -100")
	assert.Contains(t, buf.String(), "Not queried")
}

func TestShowStatus_Admin(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	gs := grpc.NewServer()
	server.RegisterAdminServer(gs, server.NewServer(statusBackend{}))
	go func() { _ = gs.Serve(lis) }()
	defer gs.Stop()

	cfg := &Config{}
	cfg.applyDefaults()

	var buf bytes.Buffer
	require.NoError(t, showStatus(context.Background(), &buf, cfg, lis.Addr().String()))

	out := buf.String()
	assert.Contains(t, out, "session_id:")
	assert.Contains(t, out, "abc")
	assert.Contains(t, out, "checked_in:")
}

func TestRunSystem_InvalidConfig(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	var cfgErr *schedule.ConfigurationError
	err := runSystem(context.Background(), cfg, true, &bytes.Buffer{})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "chat_id", cfgErr.Field)
}

func TestRunSystem_DryRun(t *testing.T) {
	rosterPath := writeFile(t, "employees.json", `[{"telegramId": 1, "name": "Alice"}]`)

	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Telegram.ChatID = "-100"
	cfg.Roster.File = rosterPath
	cfg.HTTP.Port = freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var logs bytes.Buffer
	go func() { done <- runSystem(ctx, cfg, true, &logs) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runSystem did not stop after cancel")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()
	return lis.Addr().(*net.TCPAddr).Port
}
