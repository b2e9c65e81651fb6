package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/entro314-labs/drivepurge/internal/demo"
	"github.com/entro314-labs/drivepurge/internal/drive"
	"github.com/entro314-labs/drivepurge/internal/logging"
	"github.com/entro314-labs/drivepurge/internal/metrics"
	"github.com/entro314-labs/drivepurge/internal/provider"
	"github.com/entro314-labs/drivepurge/internal/scan"
	"github.com/entro314-labs/drivepurge/internal/session"
	"github.com/entro314-labs/drivepurge/internal/store"
	"github.com/entro314-labs/drivepurge/internal/trash"
)

type stringFlag struct {
	value string
	set   bool
}

func (s *stringFlag) String() string { return s.value }
func (s *stringFlag) Set(val string) error {
	s.value = val
	s.set = true
	return nil
}

type intFlag struct {
	value int
	set   bool
}

func (i *intFlag) String() string { return fmt.Sprintf("%d", i.value) }
func (i *intFlag) Set(val string) error {
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return err
	}
	i.value = parsed
	i.set = true
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var configPath stringFlag
	var clientID stringFlag
	var credentials stringFlag
	var logFile stringFlag
	var logLevel stringFlag
	var metricsAddr stringFlag
	var maxPages intFlag
	var batchSize intFlag
	var noConfirm bool

	flag.Var(&configPath, "config", "Path to a JSON config file")
	flag.Var(&clientID, "client-id", "OAuth client ID used for interactive sign-in")
	flag.Var(&credentials, "credentials", "Path of the file holding the client ID and access token")
	flag.Var(&logFile, "log-file", "Write structured logs to this file")
	flag.Var(&logLevel, "log-level", "Log level (debug, info, warn, error)")
	flag.Var(&metricsAddr, "metrics-addr", "Serve Prometheus metrics on this address, e.g. :9090")
	flag.Var(&maxPages, "max-pages", "Maximum listing pages per scan (0 = default)")
	flag.Var(&batchSize, "batch-size", "Concurrent trash requests per wave (0 = default)")
	flag.BoolVar(&noConfirm, "no-confirm", false, "Move files to trash without a confirmation prompt")
	flag.Parse()

	config := Config{}
	if path, ok, err := resolveConfigPath(configPath.value); err != nil {
		fmt.Fprintln(os.Stderr, "Error resolving config:", err)
		os.Exit(1)
	} else if ok {
		cfg, err := loadConfig(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error loading config:", err)
			os.Exit(1)
		}
		config = cfg
	}

	if credentials.set {
		config.Credentials = credentials.value
	}
	if logFile.set {
		config.LogFile = logFile.value
	}
	if logLevel.set {
		config.LogLevel = logLevel.value
	}
	if metricsAddr.set {
		config.MetricsAddr = metricsAddr.value
	}
	if maxPages.set {
		config.MaxPages = maxPages.value
	}
	if batchSize.set {
		config.BatchSize = batchSize.value
	}
	if noConfirm {
		no := false
		config.Confirm = &no
	}

	config, err := normalizeConfig(config)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error in config:", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{Level: config.LogLevel, Format: config.LogFormat, File: config.LogFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error opening log:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	reg := metrics.New()
	if config.MetricsAddr != "" {
		go serveMetrics(ctx, config.MetricsAddr, reg, logger)
	}

	creds, err := store.Open(config.Credentials)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error opening credentials:", err)
		os.Exit(1)
	}

	var program *tea.Program
	mgr := session.New(session.Options{
		NewAuthorizer: func(id string) provider.Authorizer {
			return drive.NewLoopbackAuthorizer(id, drive.AuthOptions{
				ClientSecret: config.ClientSecret,
				Notify: func(p drive.Prompt) {
					program.Send(authPromptMsg{Prompt: p})
				},
				Logger: logger,
			})
		},
		Resolver: drive.NewIdentityClient(drive.Options{Logger: logger}),
		Store:    creds,
		Logger:   logger,
		Metrics:  reg,
	})
	restored := mgr.Restore()

	// A client ID from flags replaces the stored one; one from the config
	// file only fills a gap.
	seed := config.ClientID
	if clientID.set {
		seed = clientID.value
	}
	if seed != "" && (clientID.set || mgr.ClientID() == "") {
		if err := mgr.SetClientID(seed); err != nil {
			fmt.Fprintln(os.Stderr, "Error saving client ID:", err)
			os.Exit(1)
		}
	}
	logger.Info("starting",
		zap.Bool("session_restored", restored),
		zap.Bool("interactive_available", mgr.CanAcquireInteractive()),
		zap.Int("max_pages", config.MaxPages),
		zap.Int("batch_size", config.BatchSize),
	)

	client := drive.NewClient(drive.Options{Logger: logger})
	svc := services{
		session: mgr,
		scanner: scan.NewEngine(client, scan.Options{
			PageSize: config.PageSize,
			MaxPages: config.MaxPages,
			Logger:   logger,
			Metrics:  reg,
		}),
		trasher: trash.NewExecutor(client, trash.Options{
			BatchSize: config.BatchSize,
			Logger:    logger,
			Metrics:   reg,
		}),
		demo: func() scan.Runner {
			sim := demo.NewSimulator(nil)
			sim.Metrics = reg
			return sim
		},
		demoTrash: trash.Simulated{Latency: trash.DemoLatency},
		log:       logger,
	}

	m := NewModel(ctx, svc, config.confirmDeletes())
	program = tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		logger.Error("program exited", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error running program:", err)
		os.Exit(1)
	}
}

func serveMetrics(ctx context.Context, addr string, reg *metrics.Metrics, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server stopped", zap.Error(err))
	}
}
