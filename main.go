// ezlist is a minimal mailing list relay operating against a single
// mailbox: it polls an IMAP inbox, classifies each message as a
// subscription command or a list post, and either mutates the subscriber
// registry or fans the message out over SMTP.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/migadu/ezlist/archive"
	"github.com/migadu/ezlist/config"
	"github.com/migadu/ezlist/inbox"
	"github.com/migadu/ezlist/list"
	"github.com/migadu/ezlist/localizer"
	"github.com/migadu/ezlist/logger"
	"github.com/migadu/ezlist/pkg/metrics"
	"github.com/migadu/ezlist/registry"
	"github.com/migadu/ezlist/sender"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Version information, injected at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfg := config.NewDefault()

	// Command-line flags override values from the config file. Their
	// defaults come from the initial cfg for consistent -help messages.
	configPath := flag.String("config", "config.toml", "Path to TOML configuration file")
	fOnce := flag.Bool("once", false, "Process the inbox once and exit (for cron-style deployment)")
	fLogOutput := flag.String("logoutput", cfg.Logging.Output, "Log output: 'stderr', 'stdout', 'syslog' or a file path (overrides config)")
	fLogLevel := flag.String("loglevel", cfg.Logging.Level, "Log level: 'debug', 'info', 'warn', 'error' (overrides config)")
	fListAddr := flag.String("listaddr", cfg.List.Address, "Mailing list address (overrides config)")
	fIMAPAddr := flag.String("imapaddr", cfg.IMAP.Addr, "IMAP server address (overrides config)")
	fSMTPAddr := flag.String("smtpaddr", cfg.SMTP.Addr, "SMTP server address (overrides config)")
	flag.Parse()

	loaded, err := config.Load(*configPath)
	if err != nil {
		if os.IsNotExist(err) {
			if isFlagSet("config") {
				logger.Fatalf("Specified configuration file '%s' not found: %v", *configPath, err)
			}
			logger.Warnf("Default configuration file '%s' not found. Using application defaults and command-line flags.", *configPath)
		} else {
			logger.Fatalf("Error parsing configuration file '%s': %v", *configPath, err)
		}
	} else {
		cfg = loaded
	}

	if isFlagSet("logoutput") {
		cfg.Logging.Output = *fLogOutput
	}
	if isFlagSet("loglevel") {
		cfg.Logging.Level = *fLogLevel
	}
	if isFlagSet("listaddr") {
		cfg.List.Address = *fListAddr
	}
	if isFlagSet("imapaddr") {
		cfg.IMAP.Addr = *fIMAPAddr
	}
	if isFlagSet("smtpaddr") {
		cfg.SMTP.Addr = *fSMTPAddr
	}

	logFile, err := logger.Initialize(cfg.Logging)
	if err != nil {
		logger.Fatalf("Failed to initialize logging: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	logger.Info("ezlist starting", "version", version, "commit", commit, "list", cfg.List.Address)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", "error", err)
	}

	pollInterval, err := cfg.List.PollIntervalDuration()
	if err != nil {
		logger.Fatal("Invalid configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := registry.Open(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to open subscriber registry", "error", err)
	}
	defer store.Close()

	if count, err := store.Count(ctx); err == nil {
		metrics.SubscribersTotal.Set(float64(count))
		logger.Info("Subscriber registry opened", "backend", cfg.Storage.Backend, "subscribers", count)
	}

	loc := localizer.New(cfg.Templates.Path, cfg.List.DefaultLanguage)
	if err := loc.Validate(localizer.TemplateSubscribeConfirmation, localizer.TemplateUnsubscribeConfirmation); err != nil {
		logger.Fatal("Template validation failed", "language", cfg.List.DefaultLanguage, "error", err)
	}

	classifier := list.NewClassifier(cfg.List.Address, cfg.List.ManageSubscriptions, &list.TokenMatcher{
		Subscribe:   cfg.List.SubscribeTokens,
		Unsubscribe: cfg.List.UnsubscribeTokens,
	})

	manager := list.NewManager(list.Config{
		Address:         cfg.List.Address,
		SubjectPrefix:   cfg.List.SubjectPrefix,
		SkipSender:      cfg.List.SkipSender,
		DefaultLanguage: cfg.List.DefaultLanguage,
	}, classifier, store, loc, sender.New(cfg.SMTP, cfg.List.Address))

	if cfg.Archive.Enable {
		arc, err := archive.New(cfg.Archive)
		if err != nil {
			logger.Fatal("Failed to initialize post archive", "error", err)
		}
		manager.SetArchiver(arc)
		logger.Info("Post archive enabled", "endpoint", cfg.Archive.Endpoint, "bucket", cfg.Archive.Bucket)
	}

	if cfg.Metrics.Enable {
		startMetricsServer(cfg.Metrics.Addr)
	}

	errCh := make(chan error, 1)
	worker := list.NewWorker(inbox.New(cfg.IMAP), manager, pollInterval, errCh)

	if *fOnce {
		if err := worker.RunOnce(ctx); err != nil {
			logger.Fatal("Processing failed", "error", err)
		}
		logger.Info("Single pass complete")
		return
	}

	worker.Start(ctx)

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
		worker.Stop()
	case err := <-errCh:
		worker.Stop()
		logger.Fatal("Poll loop terminated", "error", err)
	}

	logger.Info("ezlist stopped")
}

func startMetricsServer(addr string) {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Metrics endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics endpoint failed", "error", err)
		}
	}()
}

// isFlagSet checks if a flag was explicitly set on the command line
func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
