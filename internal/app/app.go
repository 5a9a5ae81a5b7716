package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"smart-card-relay-go/internal/board"
	"smart-card-relay-go/internal/classifier"
	"smart-card-relay-go/internal/config"
	"smart-card-relay-go/internal/db"
	"smart-card-relay-go/internal/handler"
	"smart-card-relay-go/internal/mailbox"
	"smart-card-relay-go/internal/metrics"
	"smart-card-relay-go/internal/model"
	"smart-card-relay-go/internal/pipeline"
	"smart-card-relay-go/internal/repository"
	"smart-card-relay-go/internal/resolver"
	"smart-card-relay-go/internal/router"
	"smart-card-relay-go/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

// App holds the wired service
type App struct {
	cfg       *config.Config
	state     *pipeline.State
	pipeline  *pipeline.Pipeline
	scheduler *scheduler.Scheduler
	reader    mailbox.Reader
	dbConn    *gorm.DB
	audit     *repository.Repository
}

// LoadConfig reads and validates the configuration and applies the log level
func LoadConfig() (*config.Config, error) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	if level, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		logrus.Warnf("Unknown log level %q, keeping info", cfg.Log.Level)
	} else {
		logrus.SetLevel(level)
	}
	return cfg, nil
}

// New wires every component from cfg
func New(cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}

	a.state = pipeline.NewState(pipeline.Settings{
		DelaySeconds:    cfg.Pipeline.DelaySeconds,
		IntervalMinutes: cfg.Scheduler.IntervalMinutes,
		MaxMessages:     cfg.Pipeline.MaxMessages,
	})
	logrus.AddHook(pipeline.NewLogHook(a.state))

	if cfg.Database.Enabled {
		dbConn, err := db.Init(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.dbConn = dbConn
		a.audit = repository.New(dbConn)
	} else {
		logrus.Info("Audit database disabled")
	}

	query, err := mailbox.NewQuery(cfg.Mailbox)
	if err != nil {
		return nil, fmt.Errorf("failed to build mailbox query: %w", err)
	}

	if cfg.Gmail.UseIMAP {
		a.reader = mailbox.NewIMAPReader(&cfg.Gmail, query)
		logrus.Info("Using IMAP for mailbox access")
	} else {
		a.reader, err = mailbox.NewGmailReader(context.Background(), &cfg.Gmail, query)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gmail reader: %w", err)
		}
		logrus.Info("Using Gmail API for mailbox access")
	}

	cls, err := classifier.New(classifier.NewClient(&cfg.LLM), cfg.LLM.Mode, cfg.LLM.PromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}
	logrus.Infof("Classifier mode: %s (model %s)", cls.Mode(), cfg.LLM.Model)

	deps := pipeline.Deps{
		Mailbox:    a.reader,
		Classifier: cls,
		Resolver:   resolver.New(a.reader, nil),
		Board:      board.NewTrelloClient(&cfg.Trello, nil),
		Metrics:    metrics.NewMetrics(prometheus.DefaultRegisterer),
		State:      a.state,
		StagingDir: cfg.Pipeline.StagingDir,
	}
	if a.audit != nil {
		deps.Audit = a.audit
	}
	a.pipeline = pipeline.New(deps)
	a.scheduler = scheduler.NewScheduler(&cfg.Scheduler, a.pipeline)

	return a, nil
}

// RunOnce executes a single manual pass
func (a *App) RunOnce(ctx context.Context) (model.RunSummary, error) {
	return a.scheduler.RunOnce(ctx)
}

// Serve starts the HTTP control surface and, when configured, repeating
// mode. It blocks until SIGINT or SIGTERM.
func (a *App) Serve() error {
	var (
		audit handler.AuditStore
		ping  func(ctx context.Context) error
	)
	if a.audit != nil {
		audit = a.audit
		ping = func(ctx context.Context) error { return db.Ping(ctx, a.dbConn) }
	}

	h := handler.NewHandlers(a.state, a.scheduler, audit, ping)
	srv := &http.Server{
		Addr:         ":" + a.cfg.Server.Port,
		Handler:      router.SetupRouter(h),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	if a.cfg.Scheduler.AutoStart {
		if err := a.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", a.cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.scheduler.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return nil
}

// Close releases the mailbox connection and the database pool
func (a *App) Close() {
	if err := a.reader.Close(); err != nil {
		logrus.Errorf("Failed to close mailbox: %v", err)
	}
	if a.dbConn != nil {
		if err := db.Close(a.dbConn); err != nil {
			logrus.Errorf("Failed to close database: %v", err)
		}
	}
}
