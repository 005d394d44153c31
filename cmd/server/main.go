package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/everkeep/internal/api"
	"github.com/charlesng35/everkeep/internal/app"
	"github.com/charlesng35/everkeep/internal/app/maintenance"
	iauth "github.com/charlesng35/everkeep/internal/auth"
	"github.com/charlesng35/everkeep/internal/database"
	"github.com/charlesng35/everkeep/internal/services"
	"github.com/charlesng35/everkeep/internal/storage"
	"github.com/charlesng35/everkeep/pkg/logger"
	"github.com/charlesng35/everkeep/pkg/mail"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("everkeep-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	cfg.Auth.JWT.Secret = strings.TrimSpace(cfg.Auth.JWT.Secret)
	if cfg.Auth.JWT.Secret == "" {
		return errors.New("auth.jwt.secret must be configured")
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	deps, err := buildServices(cfg, db)
	if err != nil {
		return err
	}

	sessions := deps.Sessions
	audit := deps.Audit

	cleaner := maintenance.NewCleaner(db, sessions, audit,
		maintenance.WithAuditRetentionDays(cfg.Audit.RetentionDays))
	if err := cleaner.Start(); err != nil {
		return fmt.Errorf("start maintenance jobs: %w", err)
	}
	defer func() {
		stopCtx := cleaner.Stop()
		if err := cleaner.RunOnce(stopCtx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}()

	router, err := api.NewRouter(deps)
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func buildServices(cfg *app.Config, db *gorm.DB) (api.Dependencies, error) {
	var deps api.Dependencies

	jwtService, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         cfg.Auth.JWT.Secret,
		Issuer:         cfg.Auth.JWT.Issuer,
		AccessTokenTTL: cfg.Auth.JWT.TTL,
	})
	if err != nil {
		return deps, fmt.Errorf("initialise jwt service: %w", err)
	}

	sessions, err := iauth.NewSessionService(db, jwtService, iauth.SessionConfig{
		RefreshTokenTTL: cfg.Auth.Session.RefreshTTL,
		RefreshLength:   cfg.Auth.Session.RefreshLength,
	})
	if err != nil {
		return deps, fmt.Errorf("initialise session service: %w", err)
	}

	credentials, err := iauth.NewCredentialsService(db, iauth.CredentialsConfig{
		LockoutThreshold: cfg.Auth.Local.LockoutThreshold,
		LockoutDuration:  cfg.Auth.Local.LockoutDuration,
	})
	if err != nil {
		return deps, fmt.Errorf("initialise credentials service: %w", err)
	}

	users, err := services.NewUserService(db)
	if err != nil {
		return deps, fmt.Errorf("initialise user service: %w", err)
	}

	audit, err := services.NewAuditService(db)
	if err != nil {
		return deps, fmt.Errorf("initialise audit service: %w", err)
	}

	mailer, err := buildMailer(cfg)
	if err != nil {
		return deps, err
	}

	inviteBase := strings.TrimSpace(cfg.Invitations.BaseURL)
	if inviteBase == "" {
		inviteBase = strings.TrimSpace(cfg.Server.BaseURL)
	}

	invitations, err := services.NewInvitationService(db, users, audit, mailer,
		services.WithInvitationBaseURL(inviteBase),
		services.WithInvitationExpiry(cfg.Invitations.Expiry))
	if err != nil {
		return deps, fmt.Errorf("initialise invitation service: %w", err)
	}

	continuation, err := services.NewContinuationSigner(cfg.Auth.JWT.Secret)
	if err != nil {
		return deps, fmt.Errorf("initialise continuation signer: %w", err)
	}

	executors, err := services.NewExecutorService(db, audit)
	if err != nil {
		return deps, fmt.Errorf("initialise executor service: %w", err)
	}

	triggers, err := services.NewTriggerService(db)
	if err != nil {
		return deps, fmt.Errorf("initialise trigger service: %w", err)
	}

	gate, err := services.NewAccessGate(db)
	if err != nil {
		return deps, fmt.Errorf("initialise access gate: %w", err)
	}

	blobs, err := storage.NewFilesystemStore(cfg.Storage.Root)
	if err != nil {
		return deps, fmt.Errorf("initialise blob store: %w", err)
	}

	verification, err := services.NewVerificationService(db, executors, triggers, audit, blobs,
		services.WithMaxCertificateBytes(cfg.Storage.MaxUploadBytes))
	if err != nil {
		return deps, fmt.Errorf("initialise verification service: %w", err)
	}

	estate, err := services.NewEstateService(db, gate)
	if err != nil {
		return deps, fmt.Errorf("initialise estate service: %w", err)
	}

	return api.Dependencies{
		DB:             db,
		JWT:            jwtService,
		Sessions:       sessions,
		Credentials:    credentials,
		Users:          users,
		Invitations:    invitations,
		Continuation:   continuation,
		Executors:      executors,
		Verification:   verification,
		Estate:         estate,
		Gate:           gate,
		Audit:          audit,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		MetricsEnabled: cfg.Monitoring.Prometheus.Enabled,
	}, nil
}

func buildMailer(cfg *app.Config) (mail.Mailer, error) {
	if !cfg.Email.SMTP.Enabled {
		return nil, nil
	}

	mailer, err := mail.NewSMTPMailer(mail.SMTPSettings{
		Enabled:  true,
		Host:     cfg.Email.SMTP.Host,
		Port:     cfg.Email.SMTP.Port,
		Username: cfg.Email.SMTP.Username,
		Password: cfg.Email.SMTP.Password,
		From:     cfg.Email.SMTP.From,
		UseTLS:   cfg.Email.SMTP.UseTLS,
		Timeout:  cfg.Email.SMTP.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}
	return mailer, nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected",
		zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = cfg.Database.Postgres.Password
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = cfg.Database.MySQL.Password
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("obtain database handle", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("close database", zap.Error(err))
	}
}
