// Package main is the entry point for the Claude usage monitor.
// It initializes configuration, services, and runs the Bubble Tea program
// or one of the headless subcommands.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/j-veylop/claude-usage-monitor/internal/app"
	"github.com/j-veylop/claude-usage-monitor/internal/config"
	"github.com/j-veylop/claude-usage-monitor/internal/logger"
	"github.com/j-veylop/claude-usage-monitor/internal/models"
	"github.com/j-veylop/claude-usage-monitor/internal/server"
	"github.com/j-veylop/claude-usage-monitor/internal/services"
	"github.com/j-veylop/claude-usage-monitor/internal/services/quota"
	"github.com/j-veylop/claude-usage-monitor/internal/ui/tabs/dashboard"
	"github.com/j-veylop/claude-usage-monitor/internal/ui/tabs/settings"
	"github.com/j-veylop/claude-usage-monitor/internal/version"
)

const shutdownTimeout = 5 * time.Second

func main() {
	args := os.Args[1:]

	if len(args) > 0 && (args[0] == "-v" || args[0] == "--version") {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	if len(args) > 0 && (args[0] == "-h" || args[0] == "--help" || args[0] == "help") {
		printUsage()
		os.Exit(0)
	}

	if err := run(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run loads configuration and logging, then dispatches to the subcommand.
func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logCloser, err := logger.Setup(cfg.LogLevel, cfg.LogPath)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr, err := services.NewManager(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer func() {
		if closeErr := mgr.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: error closing services: %v\n", closeErr)
		}
	}()

	cmd := ""
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	switch cmd {
	case "", "tui":
		return runTUI(ctx, cfg, mgr)
	case "daemon":
		return runDaemon(ctx, cfg, mgr)
	case "status":
		return runStatus(ctx, mgr, os.Stdout)
	case "ingest":
		return runIngest(ctx, mgr, args, os.Stdout)
	case "test-notify":
		return runTestNotify(ctx, mgr, os.Stdout)
	case "remote":
		return runRemote(ctx, mgr, args, os.Stdout)
	case "forget":
		return runForget(ctx, mgr, args, os.Stdout)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// runTUI starts the background services and blocks in the Bubble Tea program.
func runTUI(ctx context.Context, cfg *config.Config, mgr *services.Manager) error {
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start services: %w", err)
	}

	api := startAPI(cfg, mgr)
	defer stopAPI(api)

	model := app.NewModel(mgr)

	// Each tab receives the shared application state for consistent data access
	state := model.GetState()
	model.SetTabs([]app.Tab{
		dashboard.New(state),     // Tab 0: Dashboard - usage and resets
		settings.New(state, cfg), // Tab 1: Settings - alerts, refresh and app info
	})

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	go func() {
		<-ctx.Done()
		p.Send(tea.Quit())
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

// runDaemon runs the watcher, scheduler and ingest API until a signal arrives.
func runDaemon(ctx context.Context, cfg *config.Config, mgr *services.Manager) error {
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start services: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.IngestEnabled() {
		api := server.New(cfg.IngestAddr, mgr)
		g.Go(api.ListenAndServe)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return api.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	logger.Info("daemon running", "ingest", cfg.IngestAddr, "page", cfg.UsagePagePath)
	err := g.Wait()
	logger.Info("daemon stopped")
	return err
}

// startAPI serves the ingest API in the background. It returns nil when the
// API is disabled.
func startAPI(cfg *config.Config, mgr *services.Manager) *server.Server {
	if !cfg.IngestEnabled() {
		return nil
	}
	api := server.New(cfg.IngestAddr, mgr)
	go func() {
		if err := api.ListenAndServe(); err != nil {
			logger.Error("ingest API stopped", "error", err)
		}
	}()
	return api
}

func stopAPI(api *server.Server) {
	if api == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := api.Shutdown(ctx); err != nil {
		logger.Warn("failed to shut down ingest API", "error", err)
	}
}

// runStatus prints every stored account and the alert settings.
func runStatus(ctx context.Context, mgr *services.Manager, w io.Writer) error {
	accounts, err := mgr.Accounts(ctx)
	if err != nil {
		return err
	}
	s, err := mgr.Settings(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	if len(accounts) == 0 {
		fmt.Fprintln(w, "No usage captured yet.")
	}
	for i := range accounts {
		printAccount(w, &accounts[i], now)
	}
	printSettings(w, s)
	return nil
}

func printAccount(w io.Writer, acc *models.AccountUsage, now time.Time) {
	marker := " "
	if acc.IsCurrent {
		marker = "*"
	}
	fmt.Fprintf(w, "%s %s\n", marker, acc.DisplayName())
	if acc.Snapshot == nil {
		fmt.Fprintln(w, "    no snapshot")
		return
	}
	for _, win := range acc.Snapshot.Windows() {
		reset := "reset unknown"
		if win.HasReset() {
			reset = fmt.Sprintf("resets in %s (%s)",
				quota.FormatWindowRemaining(win, now),
				win.ResetAt().Local().Format("Mon 15:04"))
		}
		fmt.Fprintf(w, "    %-22s %3d%%  %s\n", win.Label, win.Percentage, reset)
	}
	fmt.Fprintf(w, "    updated %s\n", quota.FormatAge(acc.Snapshot.CapturedAt(), now))
	for _, warning := range acc.Snapshot.ParseWarnings {
		fmt.Fprintf(w, "    ! %s\n", warning)
	}
}

func printSettings(w io.Writer, s models.Settings) {
	key := "not set"
	if s.ServerChanKey != "" {
		key = s.Masked().ServerChanKey
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Notifications: %s (key %s, %d minutes before reset)\n",
		onOff(s.EnableNotifications), key, s.NotifyThreshold)
	fmt.Fprintf(w, "Auto refresh:  %s (after %d minutes)\n", onOff(s.EnableAutoRefresh), s.AutoRefreshInterval)
	if url := s.FirebaseURL(); url != "" {
		fmt.Fprintf(w, "Firebase:      %s\n", url)
	}
}

// runIngest parses a saved usage page from a file, or stdin for "-".
func runIngest(ctx context.Context, mgr *services.Manager, args []string, w io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: usagemon ingest <file|->")
	}

	var (
		data []byte
		err  error
	)
	if args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read usage page: %w", err)
	}

	snap, err := mgr.IngestText(ctx, string(data), "cli", time.Now())
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Stored snapshot for %s\n", snap.AccountID)
	for _, warning := range snap.ParseWarnings {
		fmt.Fprintf(w, "  ! %s\n", warning)
	}
	return nil
}

func runTestNotify(ctx context.Context, mgr *services.Manager, w io.Writer) error {
	res := mgr.SendTestNotification(ctx)
	if res.Err != nil {
		return fmt.Errorf("test notification failed: %w", res.Err)
	}
	fmt.Fprintf(w, "Test notification %s\n", res.Type)
	return nil
}

// runForget removes an account and compacts the store.
func runForget(ctx context.Context, mgr *services.Manager, args []string, w io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: usagemon forget <accountId>")
	}
	if err := mgr.ForgetAccount(ctx, args[0]); err != nil {
		return err
	}
	if err := mgr.Database().Vacuum(ctx); err != nil {
		logger.Warn("failed to compact database", "error", err)
	}
	fmt.Fprintf(w, "Forgot %s\n", args[0])
	return nil
}

// runRemote prints what the realtime database holds for one or all accounts.
func runRemote(ctx context.Context, mgr *services.Manager, args []string, w io.Writer) error {
	if len(args) > 0 {
		rec, err := mgr.FetchRemote(ctx, args[0])
		if err != nil {
			return err
		}
		if rec == nil {
			fmt.Fprintf(w, "No remote record for %s\n", args[0])
			return nil
		}
		fmt.Fprintf(w, "%s synced %s\n", rec.AccountID, rec.SyncTime.Local().Format(time.DateTime))
		printRemoteSnapshot(w, rec.Snapshot)
		return nil
	}

	records, err := mgr.FetchAllRemote(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "No remote records.")
	}
	for _, rec := range records {
		fmt.Fprintf(w, "%s synced %s\n", rec.AccountID, rec.SyncTime.Local().Format(time.DateTime))
		printRemoteSnapshot(w, rec.Snapshot)
	}
	return nil
}

func printRemoteSnapshot(w io.Writer, snap *models.UsageSnapshot) {
	if snap == nil {
		return
	}
	for _, win := range snap.Windows() {
		fmt.Fprintf(w, "    %-22s %3d%%\n", win.Label, win.Percentage)
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// printUsage prints the command-line usage information.
func printUsage() {
	fmt.Println(`Claude Usage Monitor - reset alerts for claude.ai usage limits

Usage:
  usagemon [command] [flags]

Commands:
  (none), tui         Run the dashboard with the watcher, scheduler and ingest API
  daemon              Run the watcher, scheduler and ingest API without a UI
  status              Print stored usage and settings
  ingest <file|->     Parse a saved usage page and store the snapshot
  test-notify         Send a test ServerChan notification
  remote [accountId]  Show what the Firebase database holds
  forget <accountId>  Remove an account and its stored usage

Flags:
  -h, --help      Show this help message
  -v, --version   Show version information

Keyboard Shortcuts:
  1-2             Switch between tabs (Dashboard, Settings)
  Tab/Shift+Tab   Navigate between tabs
  j/k, Up/Down    Select account
  Enter           Follow the selected account
  c               Toggle the trend chart
  n / a           Toggle notifications / auto refresh (Settings)
  +/-             Change the alert threshold (Settings)
  t               Send a test notification (Settings)
  r               Refresh the usage page
  ?               Toggle help
  q, Ctrl+C       Quit

Environment Variables:
  DATABASE_PATH           SQLite database path
  USAGE_PAGE_PATH         Saved usage page text, watched for changes
  REFRESH_COMMAND         Command that re-saves the usage page
  REFRESH_TIMEOUT         Timeout for REFRESH_COMMAND (default: 60s)
  INGEST_ADDR             Ingest API address, empty to disable (default: 127.0.0.1:8765)
  SERVERCHAN_KEY          ServerChan send key
  SERVERCHAN_BASE_URL     ServerChan API base URL
  FIREBASE_DATABASE_URL   Firebase Realtime Database URL for sync
  NOTIFY_THRESHOLD        Minutes before a reset to alert (default: 60)
  CHECK_INTERVAL          Reset check interval (default: 15m)
  ENABLE_NOTIFICATIONS    Send reset alerts (default: true)
  ENABLE_AUTO_REFRESH     Refresh stale snapshots (default: true)
  AUTO_REFRESH_INTERVAL   Minutes before a snapshot is stale (default: 30)
  DESKTOP_NOTIFICATIONS   Also show desktop notifications (default: true)
  LOG_LEVEL               debug, info, warn or error (default: info)
  LOG_PATH                Log file, empty for stderr

Configuration:
  The application looks for .env files in the following locations:
  - Current directory
  - ~/.config/claude-usage-monitor/.env
  - ~/.claude-usage-monitor/.env

For more information, visit: https://github.com/j-veylop/claude-usage-monitor`)
}
