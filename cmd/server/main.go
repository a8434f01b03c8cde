package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	httpctx "github.com/dtroode/membership-server/internal/api/http/context"
	"github.com/dtroode/membership-server/internal/api/http/handler"
	"github.com/dtroode/membership-server/internal/api/http/middleware"
	"github.com/dtroode/membership-server/internal/api/http/router"
	"github.com/dtroode/membership-server/internal/config"
	"github.com/dtroode/membership-server/internal/export"
	"github.com/dtroode/membership-server/internal/logger"
	"github.com/dtroode/membership-server/internal/metrics"
	"github.com/dtroode/membership-server/internal/model"
	"github.com/dtroode/membership-server/internal/repository/memory"
	"github.com/dtroode/membership-server/internal/repository/postgres"
	"github.com/dtroode/membership-server/internal/repository/redis"
	"github.com/dtroode/membership-server/internal/server"
	"github.com/dtroode/membership-server/internal/service"
	"github.com/dtroode/membership-server/internal/session"
	storage "github.com/dtroode/membership-server/internal/storage/minio"
	"github.com/dtroode/membership-server/internal/token"
	"github.com/dtroode/membership-server/internal/validation"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

const shutdownTimeout = 10 * time.Second

// stores are the persistence backends picked from configuration.
type stores struct {
	accounts      model.AccountStore
	registrations model.RegistrationStore
	sessions      model.SessionStore
	revocations   model.RevocationList
	probes        map[string]router.Probe
	closers       []func() error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel, cfg.LogFormat).With("project", cfg.Project.ID)
	m := metrics.New()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}
	defer st.close(logger)

	tokenManager := token.NewJWT(cfg.JWT.Secret, cfg.JWT.TTL)
	authService := service.NewAuth(st.accounts, tokenManager, st.revocations, logger, m)
	if cfg.Admin.Bootstrap() {
		if err := bootstrapAdmin(ctx, authService, cfg.Admin); err != nil {
			logger.Fatal("failed to provision admin account", "error", err)
		}
	}

	validator, err := validation.New()
	if err != nil {
		logger.Fatal("failed to initialize validator", "error", err)
	}
	registrationService := service.NewRegistration(st.registrations, validator, logger, m)

	ctrl := session.NewController(st.sessions, authService, registrationService, st.registrations, logger, m, session.Options{
		IdleTTL:       cfg.Session.IdleTTL,
		RetryAfter:    cfg.Session.RetryAfter,
		SubmitTimeout: cfg.Session.SubmitTimeout,
		Query:         model.Query{Limit: cfg.Session.RecordLimit},
	})

	documents, err := export.NewDocuments(cfg.Project.Name)
	if err != nil {
		logger.Fatal("failed to parse export templates", "error", err)
	}
	renderer := export.NewRenderer(export.BrowserConfig{
		ControlURL: cfg.Browser.ControlURL,
		Bin:        cfg.Browser.Bin,
	}, logger)

	var archive model.Storage
	if cfg.Storage.Endpoint != "" {
		client, err := storage.New(ctx, storage.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			logger.Fatal("failed to initialize storage client", "error", err)
		}
		archive = client
	}
	exporter := export.NewExporter(documents, renderer, archive, logger, m)

	ctxMgr := httpctx.NewManager()
	cookies := middleware.Cookies{Secure: cfg.HTTP.SecureCookies, TokenTTL: cfg.JWT.TTL}
	pages, err := handler.New(ctrl, exporter, ctxMgr, cookies, cfg.Project.Name, logger)
	if err != nil {
		logger.Fatal("failed to parse views", "error", err)
	}
	authenticate := middleware.NewAuthenticate(authService, ctrl, ctxMgr, cookies, logger)

	r := router.New(pages, authenticate, m.Handler(), st.probes, logger)
	httpServer := server.NewHTTPServer(r.Register(), fmt.Sprintf(":%s", cfg.HTTP.Port), server.Timeouts{
		ReadHeader: cfg.HTTP.ReadHeaderTimeout,
		Read:       cfg.HTTP.ReadTimeout,
		Write:      cfg.HTTP.WriteTimeout,
		Idle:       cfg.HTTP.IdleTimeout,
	})
	httpServer.RegisterOnShutdown(pages.Close)
	sl := server.NewSecurityLayer(cfg.HTTP.EnableHTTPS, cfg.HTTP.CertFileName, cfg.HTTP.PrivateKeyFileName)

	logAppVersion()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server on", "address", httpServer.Address())
		if err := httpServer.Start(sl); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return ctrl.Run(gctx, cfg.Session.ReaperInterval)
	})
	if !cfg.Browser.Disabled {
		// PDF exports answer "still loading" until the browser is up.
		g.Go(func() error {
			if err := renderer.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("failed to start pdf renderer", "error", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("received interruption signal, shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("error during server shutdown", "error", err, "address", httpServer.Address())
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
	}

	if err := ctrl.Close(); err != nil {
		logger.Error("failed to release dashboard scopes", "error", err)
	}
	exporter.Wait()
	if err := renderer.Close(); err != nil {
		logger.Error("failed to close pdf renderer", "error", err)
	}
	logger.Info("shutdown complete")
}

// openStores picks postgres and redis when configured and in-memory stores otherwise.
func openStores(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*stores, error) {
	st := &stores{probes: make(map[string]router.Probe)}

	if cfg.Database.DSN != "" {
		db, err := postgres.NewConnection(ctx, cfg.Database.DSN, postgres.PoolOptions{
			MaxConns:        cfg.Database.MaxConns,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return nil, err
		}
		accounts := postgres.NewAccountRepository(db)
		st.accounts = accounts
		st.registrations = postgres.NewRegistrationRepository(db, accounts)
		st.probes["postgres"] = db.Ping
		st.closers = append(st.closers, db.Close)
	} else {
		logger.Warn("DATABASE_DSN is empty, registrations are kept in memory")
		accounts := memory.NewAccountStore()
		st.accounts = accounts
		st.registrations = memory.NewRegistrationStore(accounts)
	}

	rdb, err := redis.New(ctx, cfg.Redis.URL)
	if err != nil {
		st.close(logger)
		return nil, err
	}
	if rdb != nil {
		st.sessions = redis.NewSessionStore(rdb)
		st.revocations = redis.NewRevocationList(rdb)
		st.probes["redis"] = rdb.Health
		st.closers = append(st.closers, rdb.Close)
	} else {
		st.sessions = memory.NewSessionStore()
		st.revocations = memory.NewRevocationList()
	}

	return st, nil
}

func (s *stores) close(logger *logger.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}
}

// bootstrapAdmin makes sure the configured account exists with the admin role.
func bootstrapAdmin(ctx context.Context, auth *service.Auth, admin config.Admin) error {
	_, err := auth.CreateAccount(ctx, admin.Email, admin.Password, model.RoleAdmin)
	if errors.Is(err, model.ErrAlreadyExists) {
		_, err = auth.Grant(ctx, admin.Email, model.RoleAdmin)
	}
	return err
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
