// ABOUTME: Entry point for drover remote support sessions over a NATS command bus
// ABOUTME: The server subcommand runs the operator console; client runs a remote agent

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/droverlabs/drover/internal/agent"
	"github.com/droverlabs/drover/internal/bus"
	"github.com/droverlabs/drover/internal/config"
	"github.com/droverlabs/drover/internal/history"
	"github.com/droverlabs/drover/internal/server"
	"github.com/droverlabs/drover/internal/sysinfo"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _
  __| |_ __ _____   _____ _ __
 / _' | '__/ _ \ \ / / _ \ '__|
| (_| | | | (_) \ V /  __/ |
 \__,_|_|  \___/ \_/ \___|_|
`

// getConfigPath returns the path to the drover config file.
// Priority: DROVER_CONFIG env var > ./drover.yaml > XDG_CONFIG_HOME/drover/config.yaml > ~/.config/drover/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("DROVER_CONFIG"); envPath != "" {
		return envPath
	}

	if _, err := os.Stat("drover.yaml"); err == nil {
		return "drover.yaml"
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "drover.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "drover", "config.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: drover <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  server    Start the operator console")
		fmt.Println("  client    Run the remote agent on this machine")
		fmt.Println("  version   Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "server":
		err = runServer(ctx)
	case "client":
		err = runClient(ctx)
	case "version":
		fmt.Printf("drover %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file when it exists. A missing file at a
// default location just means defaults; an explicitly requested file must
// exist.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, err
}

func configWasExplicit(fs *flag.FlagSet) bool {
	explicit := os.Getenv("DROVER_CONFIG") != ""
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})
	return explicit
}

func runServer(ctx context.Context) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", getConfigPath(), "path to the config file")
	natsURL := fs.String("nats-url", "", "NATS server URL (overrides config)")
	subjectPrefix := fs.String("subject-prefix", "", "bus subject prefix (overrides config)")
	historyPath := fs.String("history-db", "", "history database path, empty disables (overrides config)")
	clientTTL := fs.Duration("client-ttl", 0, "evict clients silent for this long, 0 disables (overrides config)")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	logFormat := fs.String("log-format", "", "log format: text or json (overrides config)")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, configWasExplicit(fs))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "nats-url":
			cfg.NATS.URL = *natsURL
		case "subject-prefix":
			cfg.NATS.SubjectPrefix = *subjectPrefix
		case "history-db":
			cfg.History.Path = *historyPath
		case "client-ttl":
			cfg.Clients.TTL = *clientTTL
		case "log-level":
			cfg.Logging.Level = *logLevel
		case "log-format":
			cfg.Logging.Format = *logFormat
		}
	})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("NATS:     %s\n", cfg.NATS.URL)
	green.Print("    ▶ ")
	fmt.Printf("Subjects: %s.>\n", cfg.NATS.SubjectPrefix)
	green.Print("    ▶ ")
	if cfg.History.Path != "" {
		fmt.Printf("History:  %s\n", cfg.History.Path)
	} else {
		fmt.Printf("History:  disabled\n")
	}
	green.Print("    ▶ ")
	if cfg.Clients.TTL > 0 {
		fmt.Printf("Eviction: after %s of silence\n", cfg.Clients.TTL)
	} else {
		fmt.Printf("Eviction: disabled\n")
	}

	fmt.Println()

	logger.Info("starting drover server",
		"nats_url", cfg.NATS.URL,
		"subject_prefix", cfg.NATS.SubjectPrefix,
		"client_ttl", cfg.Clients.TTL,
	)

	conn, err := bus.Connect(cfg.NATS.URL, "drover-server")
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer conn.Close()

	var store *history.Store
	if cfg.History.Path != "" {
		store, err = history.Open(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("opening history database: %w", err)
		}
		defer store.Close()
	}

	srv, err := server.New(server.Config{
		Conn:          conn,
		SubjectPrefix: cfg.NATS.SubjectPrefix,
		History:       store,
		ClientTTL:     cfg.Clients.TTL,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

func runClient(ctx context.Context) error {
	fs := flag.NewFlagSet("client", flag.ExitOnError)
	configPath := fs.String("config", getConfigPath(), "path to the config file")
	natsURL := fs.String("nats-url", "", "NATS server URL (overrides config)")
	subjectPrefix := fs.String("subject-prefix", "", "bus subject prefix (overrides config)")
	clientID := fs.String("client-id", "", "client identity, default username-hostname (overrides config)")
	heartbeat := fs.Duration("heartbeat-interval", 0, "liveness beacon period (overrides config)")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	logFormat := fs.String("log-format", "", "log format: text or json (overrides config)")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, configWasExplicit(fs))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "nats-url":
			cfg.NATS.URL = *natsURL
		case "subject-prefix":
			cfg.NATS.SubjectPrefix = *subjectPrefix
		case "client-id":
			cfg.Agent.ClientID = *clientID
		case "heartbeat-interval":
			cfg.Agent.HeartbeatInterval = *heartbeat
		case "log-level":
			cfg.Logging.Level = *logLevel
		case "log-format":
			cfg.Logging.Format = *logFormat
		}
	})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	id := cfg.Agent.ClientID
	if id == "" {
		id = sysinfo.ClientID()
	}

	logger.Info("starting drover client",
		"client_id", id,
		"nats_url", cfg.NATS.URL,
		"heartbeat_interval", cfg.Agent.HeartbeatInterval,
	)

	conn, err := bus.Connect(cfg.NATS.URL, "drover-client-"+id)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer conn.Close()

	ag, err := agent.New(agent.Config{
		Conn:              conn,
		SubjectPrefix:     cfg.NATS.SubjectPrefix,
		ClientID:          id,
		HeartbeatInterval: cfg.Agent.HeartbeatInterval,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}

	return ag.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = &colorHandler{
			out:   os.Stderr,
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes. Logs
// go to stderr so the operator console keeps stdout to itself.
type colorHandler struct {
	mu    sync.Mutex
	out   io.Writer
	level slog.Level
	attrs []slog.Attr
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	_, err := io.WriteString(h.out, buf.String())
	return err
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		out:   h.out,
		level: h.level,
		attrs: newAttrs,
	}
}

// WithGroup returns the handler unchanged; attribute keys stay flat.
func (h *colorHandler) WithGroup(_ string) slog.Handler {
	return h
}
