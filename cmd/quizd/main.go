package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/mind-engage/mindengage-quiz/internal/accesscode"
	api "github.com/mind-engage/mindengage-quiz/internal/api/http"
	"github.com/mind-engage/mindengage-quiz/internal/attempt"
	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/config"
	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/lib/slogcustom"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/users"
)

func main() {
	envFile := pflag.StringP("env", "e", ".env", "path to a .env file")
	addr := pflag.StringP("addr", "a", "", "listen address, overrides HTTP_ADDR")
	pflag.Parse()

	cfg := config.Load(*envFile)
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}

	log := slog.New(slogcustom.NewHandler(os.Stdout, cfg.LogLevel))
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		return err
	}
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbh, err := db.Open(openCtx, driver, cfg.DBDSN)
	cancel()
	if err != nil {
		return err
	}
	defer dbh.Close()

	// --- Services ---
	quizStore := quiz.NewSQLStore(dbh, quiz.WithDriver(driver))
	userSvc := users.NewService(users.NewSQLStore(dbh),
		users.WithBcryptCost(cfg.BcryptCost),
		users.WithOpenAuthorSignup(cfg.OpenAuthorSignup),
	)
	if u, created, err := userSvc.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return err
	} else if created {
		log.Info("admin account ready", "email", u.Email)
	}

	quizSvc := quiz.NewService(quizStore, accesscode.NewAllocator(quizStore),
		quiz.WithDefaultPassingScore(cfg.DefaultPassingScore))
	engine := attempt.NewEngine(quizStore, attempt.WithRequireStarted(cfg.RequireStarted))

	handler := api.NewRouter(api.Deps{
		DB:                     dbh,
		Auth:                   auth.NewAuthService(cfg.AuthSecret, cfg.AuthTokenTTL),
		Users:                  userSvc,
		Quizzes:                quizSvc,
		Attempts:               engine,
		Logger:                 log,
		CORSOrigins:            cfg.CORSOrigins,
		AllowClaimRoleFallback: cfg.AllowClaimRoleFallback,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr, "db", driver)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
