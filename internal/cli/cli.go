// ============================================================================
// wfh-check CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Provides user-friendly command line interface based on Cobra framework
//
// Command Structure:
//   wfhcheck                       # Root command
//   ├── run                        # Start the bot (webhook + scheduler)
//   │   └── --dry-run             # Log outbound messages instead of sending
//   ├── schedule                   # Preview random probe draws
//   │   └── --days, -n
//   ├── status                     # Show configuration or live status
//   │   └── --admin               # Query a running instance over gRPC
//   ├── report                     # Render an archived daily report
//   │   └── --date, --list
//   ├── roster                     # Validate and list the employee file
//   ├── --config, -c               # Config file (default configs/default.yaml)
//   └── --env-file                 # .env file loaded before the config
//
// Configuration Management:
//   YAML config file, then environment overrides:
//   BOT_TOKEN, GROUP_CHAT_ID, PORT, RENDER_EXTERNAL_URL, WFH_TIMEZONE
//
// run Command:
//   1. Load config + roster, validate (ConfigurationError exits non-zero)
//   2. Start worker pool and Controller
//   3. Start gin HTTP server (webhook, /healthz, /metrics)
//   4. Register the webhook with Telegram when a public URL is set
//   5. Start gRPC admin server (if enabled)
//   6. Wait for SIGINT / SIGTERM, then shut everything down in reverse order
//
// ============================================================================

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/ChuLiYu/wfh-check/internal/clock"
	"github.com/ChuLiYu/wfh-check/internal/controller"
	"github.com/ChuLiYu/wfh-check/internal/messenger"
	"github.com/ChuLiYu/wfh-check/internal/metrics"
	"github.com/ChuLiYu/wfh-check/internal/report"
	"github.com/ChuLiYu/wfh-check/internal/roster"
	"github.com/ChuLiYu/wfh-check/internal/schedule"
	"github.com/ChuLiYu/wfh-check/internal/server"
	"github.com/ChuLiYu/wfh-check/internal/snapshot"
	"github.com/ChuLiYu/wfh-check/internal/worker"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	configFile string
	envFile    string
)

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wfhcheck",
		Short: "wfhcheck: random work-from-home attendance checks for a group chat",
		Long: `wfhcheck watches one Telegram group and:
- posts a few "are you working" checks at random times each day
- records check-in, check-out and replies per employee
- posts a daily report at the cutoff and starts a fresh day`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// a missing .env is normal in production
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to load env file: %w", err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildScheduleCommand())
	rootCmd.AddCommand(buildStatusCommand())
	rootCmd.AddCommand(buildReportCommand())
	rootCmd.AddCommand(buildRosterCommand())

	return rootCmd
}

// ============================================================================
// run
// ============================================================================

func buildRunCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the attendance bot",
		Long:  "Serve the Telegram webhook, run the probe scheduler and post the daily report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runSystem(ctx, cfg, dryRun, os.Stderr)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log outbound messages instead of calling Telegram")
	return cmd
}

// runSystem wires every component and blocks until ctx is cancelled
func runSystem(ctx context.Context, cfg *Config, dryRun bool, logOut io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg, logOut)
	slog.SetDefault(logger)

	clk, err := clock.Load(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone: %w", err)
	}

	dir, err := roster.Load(cfg.Roster.File)
	if err != nil {
		return fmt.Errorf("failed to load roster: %w", err)
	}

	// 1. Outbound transport
	var (
		sender   messenger.Messenger
		telegram *messenger.TelegramClient
	)
	switch {
	case dryRun:
		sender = messenger.LogMessenger{Logger: logger}
	case cfg.Telegram.Token == "":
		return schedule.Invalid("telegram.token", "BOT_TOKEN is required unless --dry-run is set")
	default:
		telegram = messenger.NewTelegramClient(cfg.Telegram.APIURL, cfg.Telegram.Token, nil)
		sender = telegram
	}

	// 2. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	// 3. Worker Pool + Controller
	pool := worker.NewPool(cfg.Dispatch.QueueSize)
	if err := pool.Start(cfg.Dispatch.Workers, sender); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	var archive *snapshot.Manager
	if cfg.Archive.Dir != "" {
		archive = snapshot.NewManager(cfg.Archive.Dir)
	}

	ctrl, err := controller.NewController(cfg.controllerConfig(), controller.Deps{
		Roster:  dir,
		Clock:   clk,
		Outbox:  pool,
		Metrics: collector,
		Archive: archive,
		Logger:  logger,
	})
	if err != nil {
		pool.Stop()
		return err
	}
	if err := ctrl.Start(); err != nil {
		pool.Stop()
		return fmt.Errorf("failed to start controller: %w", err)
	}
	defer ctrl.Stop()

	// 4. HTTP: webhook, health, metrics
	webhook := messenger.NewWebhookHandler(ctrl, clk.Now)
	router := messenger.NewRouter(webhook, cfg.Telegram.WebhookPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr, "webhook", cfg.Telegram.WebhookPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	if url := cfg.webhookURL(); url != "" && telegram != nil {
		hookCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := telegram.SetWebhook(hookCtx, url); err != nil {
			logger.Error("Failed to register webhook", "url", url, "error", err)
		} else {
			logger.Info("Webhook registered", "url", url)
		}
		cancel()
	}

	// 5. gRPC admin
	var grpcServer *grpc.Server
	if cfg.Admin.Enabled {
		lis, err := net.Listen("tcp", cfg.Admin.Addr)
		if err != nil {
			httpServer.Close()
			return fmt.Errorf("failed to listen on %s: %w", cfg.Admin.Addr, err)
		}
		grpcServer = grpc.NewServer()
		server.RegisterAdminServer(grpcServer, server.NewServer(ctrl))
		go func() {
			logger.Info("Admin gRPC server listening", "addr", lis.Addr().String())
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("Admin gRPC server stopped", "error", err)
			}
		}()
	}

	logger.Info("System started successfully", "roster", dir.Len(), "timezone", cfg.Timezone, "dry_run", dryRun)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal, stopping gracefully...")
	case runErr = <-httpErr:
		logger.Error("HTTP server failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", "error", err)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	logger.Info("System stopped. Goodbye!")
	return runErr
}

// ============================================================================
// schedule
// ============================================================================

func buildScheduleCommand() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Preview random probe schedules",
		Long:  "Draw probe schedules with the configured windows and count without starting the bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return showSchedule(cmd.OutOrStdout(), cfg, days)
		},
	}

	cmd.Flags().IntVarP(&days, "days", "n", 1, "number of days to draw")
	return cmd
}

func showSchedule(w io.Writer, cfg *Config, days int) error {
	if days < 1 {
		return fmt.Errorf("days must be at least 1, got %d", days)
	}

	gen, err := schedule.NewGenerator(cfg.Probes.Windows, cfg.Probes.PerDay, nil)
	if err != nil {
		return err
	}

	slots := schedule.Slots(cfg.Probes.Windows)
	fmt.Fprintf(w, "🎲 %d checks per day from %d slots (%d-minute grid)\n", gen.Count(), len(slots), schedule.SlotMinutes)
	for _, win := range cfg.Probes.Windows {
		fmt.Fprintf(w, "  └─ window %s\n", win)
	}
	fmt.Fprintln(w)

	for day := 1; day <= days; day++ {
		sched, err := gen.Generate()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Day %d: %s\n", day, sched)
	}
	return nil
}

// ============================================================================
// status
// ============================================================================

func buildStatusCommand() *cobra.Command {
	var adminAddr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show system status",
		Long:  "Display configuration and, with --admin, the live state of a running instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return showStatus(cmd.Context(), cmd.OutOrStdout(), cfg, adminAddr)
		},
	}

	cmd.Flags().StringVar(&adminAddr, "admin", "", "admin gRPC address of a running instance (e.g. 127.0.0.1:50051)")
	return cmd
}

func showStatus(ctx context.Context, w io.Writer, cfg *Config, adminAddr string) error {
	fmt.Fprintln(w, "\n╔═══════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║           wfhcheck System Status                          ║")
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "📋 Configuration:")
	fmt.Fprintf(w, "  ├─ Config File:      %s\n", configFile)
	fmt.Fprintf(w, "  ├─ Group Chat:       %s\n", orDash(cfg.Telegram.ChatID))
	fmt.Fprintf(w, "  ├─ Timezone:         %s\n", cfg.Timezone)
	fmt.Fprintf(w, "  ├─ Checks Per Day:   %d (reply within %s)\n", cfg.Probes.PerDay, cfg.Probes.ResponseTimeout)
	fmt.Fprintf(w, "  ├─ Late After:       %s\n", cfg.Attendance.LateBoundary)
	fmt.Fprintf(w, "  ├─ Check-out Window: %s-%s\n", cfg.Attendance.CheckOutStart, cfg.Attendance.CheckOutEnd)
	fmt.Fprintf(w, "  └─ Report Cutoff:    %s\n", cfg.Report.Cutoff)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "📊 Today:")
	if adminAddr == "" {
		fmt.Fprintln(w, "  └─ Not queried (pass --admin to read a running instance)")
		fmt.Fprintln(w)
		return nil
	}

	conn, err := grpc.NewClient(adminAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to admin server: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	st, err := server.NewAdminClient(conn).GetStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to query status: %w", err)
	}
	printStatus(w, st)
	return nil
}

func printStatus(w io.Writer, st *structpb.Struct) {
	m := st.AsMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i, k := range keys {
		branch := "├─"
		if i == len(keys)-1 {
			branch = "└─"
		}
		fmt.Fprintf(w, "  %s %-17s %v\n", branch, k+":", m[k])
	}
	fmt.Fprintln(w)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// ============================================================================
// report
// ============================================================================

func buildReportCommand() *cobra.Command {
	var (
		date string
		list bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render an archived daily report",
		Long:  "Print an archived daily report (latest by default) exactly as it was posted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return showReport(cmd.OutOrStdout(), cfg, date, list)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "report date (YYYY-MM-DD), default latest")
	cmd.Flags().BoolVar(&list, "list", false, "list archived dates")
	return cmd
}

func showReport(w io.Writer, cfg *Config, date string, list bool) error {
	if cfg.Archive.Dir == "" {
		return errors.New("archive.dir is not configured")
	}
	archive := snapshot.NewManager(cfg.Archive.Dir)

	dates, err := archive.List()
	if err != nil {
		return err
	}
	if list {
		for _, d := range dates {
			fmt.Fprintln(w, d)
		}
		return nil
	}

	if date == "" {
		if len(dates) == 0 {
			return fmt.Errorf("%w in %s", snapshot.ErrSnapshotNotFound, archive.GetDir())
		}
		date = dates[len(dates)-1]
	}

	r, err := archive.Load(date)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, report.Render(r))
	return nil
}

// ============================================================================
// roster
// ============================================================================

func buildRosterCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "roster",
		Short: "Validate and list the employee roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return showRoster(cmd.OutOrStdout(), cfg)
		},
	}
}

func showRoster(w io.Writer, cfg *Config) error {
	dir, err := roster.Load(cfg.Roster.File)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "👥 %d employees in %s\n", dir.Len(), cfg.Roster.File)
	for _, emp := range dir.All() {
		fmt.Fprintf(w, "  └─ %-12s %-20s %s\n", emp.ID, emp.Name, emp.Mention())
	}
	return nil
}
