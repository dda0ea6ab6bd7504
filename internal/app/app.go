// Package app wires configuration, storage, the mailbox and the three polling
// loops into a running service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"rulemate/internal/config"
	"rulemate/internal/credential"
	"rulemate/internal/db"
	"rulemate/internal/engine"
	"rulemate/internal/executor"
	"rulemate/internal/fetcher"
	"rulemate/internal/handlers"
	"rulemate/internal/mailbox"
	"rulemate/internal/metrics"
	"rulemate/internal/repository"
	"rulemate/internal/rules"
	"rulemate/internal/scheduler"
	"rulemate/internal/server"
)

// App is the assembled service.
type App struct {
	cfg      *config.Config
	log      *logrus.Logger
	repo     *repository.Repository
	rules    *rules.Loader
	registry *prometheus.Registry
	loops    *scheduler.Group
	server   *http.Server
	closers  []func() error
}

// Run initializes and starts the application
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	log, err := NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	log.Info("Starting rulemate")

	dbConn, err := db.Init(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	mb, closeMailbox, err := OpenMailbox(context.Background(), cfg, log)
	if err != nil {
		return err
	}

	a, err := New(cfg, log, dbConn, mb)
	if err != nil {
		_ = closeMailbox()
		return err
	}
	a.closers = append(a.closers, closeMailbox)

	if err := a.Start(); err != nil {
		a.Shutdown(context.Background())
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a.Shutdown(shutdownCtx)

	log.Info("Stopped gracefully")
	return nil
}

// NewLogger builds the JSON logger every component logs through.
func NewLogger(cfg config.LogConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetLevel(level)
	return log, nil
}

// OpenMailbox connects to the configured provider. The returned func
// releases the connection.
func OpenMailbox(ctx context.Context, cfg *config.Config, log *logrus.Logger) (mailbox.Mailbox, func() error, error) {
	mlog := log.WithField("component", "mailbox")

	switch cfg.Mailbox.Provider {
	case config.ProviderIMAP:
		mb, err := mailbox.NewIMAP(mailbox.IMAPConfig{
			Host:     cfg.Mailbox.IMAPHost,
			Port:     cfg.Mailbox.IMAPPort,
			User:     cfg.Mailbox.IMAPUser,
			Password: cfg.Mailbox.IMAPPassword,
			Mailbox:  cfg.Mailbox.IMAPMailbox,
			PageSize: int(cfg.Mailbox.PageSize),
		}, mlog)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to IMAP: %w", err)
		}
		mlog.Info("Using IMAP mailbox")
		return mb, mb.Close, nil

	case config.ProviderGmail:
		ring, err := credential.OpenKeyring(cfg.Credential)
		if err != nil {
			return nil, nil, err
		}
		provider := credential.NewProvider(&oauth2.Config{
			ClientID:     cfg.Mailbox.ClientID,
			ClientSecret: cfg.Mailbox.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       credential.GmailScopes,
		}, credential.NewKeyringStore(ring, ""), cfg.Mailbox.RefreshToken, log.WithField("component", "credential"))

		ts, err := provider.TokenSource(ctx, credential.GmailScopes...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to obtain Gmail credential: %w", err)
		}
		mb, err := mailbox.NewGmail(ctx, ts, cfg.Mailbox.UserEmail, cfg.Mailbox.PageSize, mlog)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Gmail client: %w", err)
		}
		mlog.Info("Using Gmail API mailbox")
		return mb, func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unsupported mailbox provider %q", cfg.Mailbox.Provider)
}

// New assembles the loops and the admin API on an open database and mailbox.
func New(cfg *config.Config, log *logrus.Logger, dbConn *gorm.DB, mb mailbox.Mailbox) (*App, error) {
	loader, err := rules.NewLoader(cfg.Rules.Path, log.WithField("component", "rules"))
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	repo := repository.New(dbConn)

	f := fetcher.New(repo, mb, m, log.WithField("component", "fetcher"), nil)
	e := engine.New(repo, loader,
		rules.NewEvaluator(log.WithField("component", "evaluator"), nil),
		m, log.WithField("component", "engine"))
	x := executor.New(repo, mb, cfg.Scheduler.MaxRetries, m, log.WithField("component", "executor"))

	loops := scheduler.NewGroup(
		scheduler.NewScheduler(scheduler.Job{Name: scheduler.LoopFetcher, Run: func(ctx context.Context) error {
			_, err := f.FetchNew(ctx)
			return err
		}}, cfg.Scheduler.FetchInterval, m, log),
		scheduler.NewScheduler(scheduler.Job{Name: scheduler.LoopRules, Run: func(ctx context.Context) error {
			_, err := e.ProcessNew(ctx)
			return err
		}}, cfg.Scheduler.RulesInterval, m, log),
		scheduler.NewScheduler(scheduler.Job{Name: scheduler.LoopActions, Run: func(ctx context.Context) error {
			_, err := x.RunPending(ctx)
			return err
		}}, cfg.Scheduler.ActionsInterval, m, log),
	)

	a := &App{
		cfg:      cfg,
		log:      log,
		repo:     repo,
		rules:    loader,
		registry: reg,
		loops:    loops,
	}

	if cfg.Server.Enabled {
		h := handlers.NewHandlers(repo, loader, loops, reg, log.WithField("component", "api"))
		a.server = server.New(cfg.Server, server.SetupRouter(h, log.WriterLevel(logrus.InfoLevel)))
	}
	return a, nil
}

// Loops returns the polling loops.
func (a *App) Loops() *scheduler.Group {
	return a.loops
}

// Start starts the loops, the rules watcher and the admin server.
func (a *App) Start() error {
	if a.cfg.Rules.Watch {
		a.rules.Watch()
	}

	if err := a.loops.StartAll(); err != nil {
		return err
	}

	if a.server != nil {
		go func() {
			a.log.WithField("port", a.cfg.Server.Port).Info("Starting HTTP server")
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.WithError(err).Error("HTTP server error")
			}
		}()
	}
	return nil
}

// Shutdown stops the admin server and the loops, waiting for in-flight
// cycles, then releases the mailbox.
func (a *App) Shutdown(ctx context.Context) {
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.log.WithError(err).Error("HTTP server shutdown error")
		}
	}

	a.loops.StopAll()

	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.log.WithError(err).Error("Failed to close mailbox")
		}
	}
}
