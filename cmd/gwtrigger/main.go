package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/gwtrigger/internal/config"
	"github.com/mattjoyce/gwtrigger/internal/doctor"
	"github.com/mattjoyce/gwtrigger/internal/events"
	"github.com/mattjoyce/gwtrigger/internal/jobs"
	"github.com/mattjoyce/gwtrigger/internal/lock"
	"github.com/mattjoyce/gwtrigger/internal/log"
	"github.com/mattjoyce/gwtrigger/internal/queue"
	"github.com/mattjoyce/gwtrigger/internal/scheduler"
	"github.com/mattjoyce/gwtrigger/internal/storage"
	"github.com/mattjoyce/gwtrigger/internal/tui"
	"github.com/mattjoyce/gwtrigger/internal/webhook"
)

const version = "0.1.0"

// configEnv overrides the default config path.
const configEnv = "GWTRIGGER_CONFIG"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		printUsage(os.Stderr)
		return 1
	}

	cmd := args[0]
	rest := args[1:]

	switch cmd {
	case "system":
		return runSystemNoun(rest)
	case "config":
		return runConfigNoun(rest)
	case "queue":
		return runQueueNoun(rest)

	case "start":
		return runStart(rest)
	case "version":
		fmt.Printf("gwtrigger version %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `gwtrigger - generic webhook trigger for parameterised builds

Usage:
  gwtrigger <noun> <action> [flags]

System Commands:
  system start      Start the webhook listener and build scheduler in foreground

Config Commands:
  config check      Validate configuration and integrity
  config lock       Authorize current configuration (write .checksums)

Queue Commands:
  queue list        Show pending builds
  queue watch       Live dashboard of a running gwtrigger

General:
  version           Show version information
  help              Show this help message

The config path defaults to $GWTRIGGER_CONFIG, then ./config.yaml.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		fmt.Println("Usage: gwtrigger system start [--config PATH]")
		if len(args) < 1 {
			return 1
		}
		return 0
	}
	switch args[0] {
	case "start":
		return runStart(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", args[0])
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		fmt.Println("Usage: gwtrigger config <check|lock> [--config PATH]")
		if len(args) < 1 {
			return 1
		}
		return 0
	}
	switch args[0] {
	case "check":
		return runConfigCheck(args[1:])
	case "lock":
		return runConfigLock(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", args[0])
		return 1
	}
}

func runQueueNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		fmt.Println("Usage: gwtrigger queue <list|watch> [--config PATH]")
		if len(args) < 1 {
			return 1
		}
		return 0
	}
	switch args[0] {
	case "list":
		return runQueueList(args[1:])
	case "watch":
		return runQueueWatch(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown queue action: %s\n", args[0])
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func defaultConfigPath() string {
	if p := os.Getenv(configEnv); p != "" {
		return p
	}
	return "config.yaml"
}

// --- ACTION IMPLEMENTATIONS ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath(), "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	absPath, err := config.ResolvePath(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve config: %v\n", err)
		return 1
	}
	cfg, err := config.Load(absPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("gwtrigger starting", "version", version, "config", absPath)

	if !config.HasChecksums(filepath.Dir(absPath)) {
		log.Warn("config is not locked, skipping integrity check", "dir", filepath.Dir(absPath))
	} else if err := verifyIntegrity(absPath); err != nil {
		logger.Error("config integrity check failed", "error", err)
		return 1
	}
	for _, w := range doctor.New(cfg).Validate().Warnings {
		logger.Warn("config warning", "field", w.Field, "message", w.Message)
	}

	pidLockPath := lock.PathFor(cfg.State.Path)
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	q := queue.New(db)
	hub := events.NewHub(256)

	registry, err := jobs.NewRegistry(cfg.Jobs)
	if err != nil {
		logger.Error("failed to load jobs", "error", err)
		return 1
	}
	logger.Info("jobs loaded", "count", len(registry.All()))

	webhookConfig, err := webhook.FromGlobalConfig(cfg)
	if err != nil {
		logger.Error("failed to configure webhook", "error", err)
		return 1
	}
	webhookServer := webhook.New(webhookConfig, registry, q, hub, log.Get())

	sched := scheduler.New(cfg.Service.TickInterval, q, hub, log.Get())
	sched.Start(ctx)
	defer sched.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 2)

	go func() {
		if err := webhookServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("webhook: %w", err)
		}
	}()

	reload := func() {
		if err := reloadJobs(absPath, registry, hub); err != nil {
			logger.Error("config reload failed, keeping current jobs", "error", err)
			return
		}
		logger.Info("jobs reloaded", "count", len(registry.All()))
	}
	go func() {
		if err := jobs.Watch(ctx, absPath, logger, reload); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("config watch: %w", err)
		}
	}()

	logger.Info("gwtrigger running (press Ctrl+C to stop)",
		"listen", webhookConfig.Listen,
		"path", webhookConfig.Path+"/invoke",
	)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("gwtrigger stopped")
	return 0
}

// reloadJobs swaps in the jobs from absPath. A locked config must still
// match its manifest; on any failure the registry is left untouched.
func reloadJobs(absPath string, registry *jobs.Registry, hub *events.Hub) error {
	if err := verifyIntegrity(absPath); err != nil {
		return fmt.Errorf("integrity: %w", err)
	}
	next, err := config.Load(absPath)
	if err != nil {
		return err
	}
	if err := registry.Load(next.Jobs); err != nil {
		return err
	}
	hub.Publish(events.JobsReloaded{Jobs: len(registry.All())})
	return nil
}

// verifyIntegrity checks locked files when the config directory has a manifest.
func verifyIntegrity(absPath string) error {
	dir := filepath.Dir(absPath)
	if !config.HasChecksums(dir) {
		return nil
	}
	manifest, err := config.LoadChecksums(dir)
	if err != nil {
		return err
	}
	files, err := config.LockedFiles(absPath)
	if err != nil {
		return err
	}
	return config.VerifyFiles(dir, manifest, files)
}

func runConfigCheck(args []string) int {
	var strict, jsonOut bool
	var format string

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath(), "Path to configuration")
	fs.BoolVar(&strict, "strict", false, "Treat warnings and an unlocked config as errors")
	fs.StringVar(&format, "format", "human", "Output format (human, json)")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if jsonOut {
		format = "json"
	}

	absPath, err := config.ResolvePath(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}
	cfg, err := config.Load(absPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	dir := filepath.Dir(absPath)
	locked := config.HasChecksums(dir)
	if locked {
		if err := verifyIntegrity(absPath); err != nil {
			fmt.Fprintf(os.Stderr, "Integrity error: %v\n", err)
			return 1
		}
	}

	result := doctor.New(cfg).Validate()
	switch format {
	case "json":
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	default:
		if locked {
			fmt.Println("Integrity: OK")
		} else {
			fmt.Println("Integrity: not locked")
		}
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && (len(result.Warnings) > 0 || !locked) {
		if !locked {
			fmt.Fprintln(os.Stderr, "config is not locked (run 'gwtrigger config lock')")
		}
		return 2
	}
	return 0
}

func runConfigLock(args []string) int {
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath(), "Path to configuration")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Compute hashes without writing .checksums")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	isVerbose := verbose || verboseShort

	absPath, err := config.ResolvePath(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}
	files, err := config.LockedFiles(absPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list config files: %v\n", err)
		return 1
	}

	dir := filepath.Dir(absPath)
	report, err := config.GenerateChecksumsWithReport(dir, files, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config in %s: %v\n", dir, err)
		return 1
	}

	if isVerbose {
		fmt.Printf("Processing directory: %s\n", dir)
		for _, file := range report.Files {
			if file.Exists {
				fmt.Printf("  HASH %s: %s\n", file.Filename, file.Hash)
				continue
			}
			fmt.Printf("  SKIP %s: not found (optional)\n", file.Filename)
		}
	}

	if dryRun {
		fmt.Printf("Dry run completed, .checksums not written: %s\n", report.ChecksumPath)
	} else {
		fmt.Printf("Successfully locked configuration: %s\n", report.ChecksumPath)
	}
	return 0
}

func runQueueList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath(), "Path to configuration")
	job := fs.String("job", "", "Only show builds of this job")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	builds, err := queue.New(db).Pending(ctx, *job)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list builds: %v\n", err)
		return 1
	}

	if *jsonOut {
		if builds == nil {
			builds = []*queue.Build{}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(webhook.PendingResponse{Builds: builds}); err != nil {
			fmt.Fprintf(os.Stderr, "JSON encode error: %v\n", err)
			return 1
		}
		return 0
	}

	if len(builds) == 0 {
		fmt.Println("No pending builds.")
		return 0
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tJOB\tTRIGGERS\tNOT BEFORE\tCAUSE")
	for _, b := range builds {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", b.ID, b.Job, b.Triggers, b.NotBefore.Format(time.RFC3339), b.Cause)
	}
	_ = tw.Flush()
	return 0
}

func runQueueWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath(), "Path to configuration")
	baseURL := fs.String("url", "", "Base URL of the running gwtrigger (default from webhook.listen)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}
	wc, err := webhook.FromGlobalConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}
	if *baseURL == "" {
		*baseURL = "http://" + wc.Listen
	}

	p := tea.NewProgram(tui.NewMonitor(*baseURL, wc.Path), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Monitor error: %v\n", err)
		return 1
	}
	return 0
}
