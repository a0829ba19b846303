package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"assetflow/internal/api"
	"assetflow/internal/clock"
	"assetflow/internal/config"
	"assetflow/internal/domain"
	"assetflow/internal/handlers/lowstock"
	"assetflow/internal/handlers/maintenance"
	"assetflow/internal/handlers/overdue"
	"assetflow/internal/notify"
	"assetflow/internal/scheduler"
	"assetflow/internal/store"
	"assetflow/internal/tasks"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "YAML config file")
		addr    = flag.String("addr", ":8080", "HTTP bind address")
		dbPath  = flag.String("db", "assetflow.db", "SQLite DB path")
		debug   = flag.Bool("debug", false, "enable pprof routes")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	// explicitly set flags win over the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Server.Addr = *addr
		case "db":
			cfg.Database.Path = *dbPath
		case "debug":
			cfg.Server.Debug = *debug
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	setupLogging(cfg.Log)

	loc, _ := cfg.Location()
	timeout, _ := cfg.ExecutionTimeout()
	shutdownTimeout, _ := cfg.ShutdownTimeout()

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()
	st := store.NewSQLite(db)

	gw := notify.NewLimited(newGateway(cfg.Notify), cfg.Notify.RatePerSec)
	clk := clock.Real{}

	// Handlers registry
	od := overdue.New(st, gw, clk)
	ls := lowstock.New(st, gw)
	handlers := map[domain.TaskType]scheduler.Handler{
		domain.TaskOverdueAssetDetection: od,
		domain.TaskMaintenanceReminder:   maintenance.New(st, gw, clk, loc),
		domain.TaskLowStockDetection:     ls,
	}

	rec := tasks.NewRecorder(st)
	reg := scheduler.NewRegistry(rec, handlers,
		scheduler.WithClock(clk),
		scheduler.WithLocation(loc),
		scheduler.WithExecutionTimeout(timeout),
	)
	rec.TrackNextRun(reg.NextRun)

	svc := tasks.NewService(st, reg, tasks.WithHistoryLimit(cfg.Scheduler.HistoryLimit))
	if err := svc.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("start scheduler")
	}

	// HTTP server
	handler := api.NewServerWithDebug(api.Deps{
		Tasks:      svc,
		Records:    st,
		Overdue:    od,
		LowStock:   ls,
		Handlers:   handlers,
		Registered: reg.Registered,
		Clock:      clk,
	}, cfg.Server.Debug)
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("timezone", loc.String()).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
	if err := reg.Stop(ctxTimeout); err != nil {
		log.Warn().Err(err).Msg("in-flight runs did not finish before shutdown")
	}
}

func setupLogging(c config.LogConfig) {
	if lvl, err := zerolog.ParseLevel(c.Level); err == nil && c.Level != "" {
		zerolog.SetGlobalLevel(lvl)
	}
	if c.Format == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}

func newGateway(c config.NotifyConfig) notify.Gateway {
	if c.Driver == "sendgrid" {
		log.Info().Str("from", c.SendGrid.FromEmail).Msg("notifications via sendgrid")
		return notify.NewSendGridGateway(notify.SendGridConfig{
			APIKey:    c.SendGrid.APIKey,
			FromEmail: c.SendGrid.FromEmail,
			FromName:  c.SendGrid.FromName,
			Aliases:   c.Aliases,
		})
	}
	return notify.LogGateway{}
}
