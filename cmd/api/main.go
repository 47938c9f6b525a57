package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"slotbook/internal/api"
	"slotbook/internal/auth"
	"slotbook/internal/booking"
	"slotbook/internal/buildinfo"
	"slotbook/internal/config"
	"slotbook/internal/events"
	"slotbook/internal/integrations"
	_ "slotbook/internal/integrations/csvfile"
	_ "slotbook/internal/integrations/yamlfile"
	"slotbook/internal/logging"
	"slotbook/internal/metrics"
	"slotbook/internal/notify"
	"slotbook/internal/schedule"
	"slotbook/internal/store"
	"slotbook/internal/traveltime"
)

func main() {
	// .env is a local convenience; a missing file is fine
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	optional := path == ""
	if optional {
		path = "config.yaml"
	}
	cfg, err := config.Load(path, optional)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("slotbook stopped")
	}
}

func run(cfg config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.WithField("build", buildinfo.String()).Info("starting slotbook")

	ready := map[string]api.Pinger{}
	settings := map[string]any{
		"port":         cfg.Server.Port,
		"authMode":     cfg.Auth.Mode,
		"rateRps":      cfg.Rate.RPS,
		"rateBurst":    cfg.Rate.Burst,
		"location":     cfg.Booking.Location,
		"maxDaysAhead": cfg.Booking.MaxDaysAhead,
	}

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	if pg, ok := st.(*store.Postgres); ok {
		ready["postgres"] = pg
		settings["store"] = "postgres"
	} else {
		settings["store"] = "memory"
	}

	if err := seed(ctx, cfg, st, log); err != nil {
		return err
	}
	rows, err := st.LoadTravelTimes(ctx)
	if err != nil {
		return fmt.Errorf("load travel times: %w", err)
	}
	tbl, err := traveltime.New(rows)
	if err != nil {
		return fmt.Errorf("load travel times: %w", err)
	}
	metrics.TravelTimeRows.Set(float64(tbl.Len()))
	if tbl.Len() == 0 {
		log.Warn("no travel times loaded; set seed.travelTimes or run ttimport")
	}

	cal, err := schedule.NewCalendar(cfg.Booking.Location, cfg.Booking.MaxDaysAhead)
	if err != nil {
		return err
	}

	var broker events.Broker = events.NewMemory()
	settings["broker"] = "memory"
	if cfg.Redis.URL != "" {
		rb, err := events.NewRedis(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		broker = rb
		ready["redis"] = rb
		settings["broker"] = "redis"
	}
	defer func() { _ = broker.Close() }()

	var pub notify.Publisher = notify.LogPublisher{Log: log}
	settings["notifier"] = "log"
	if cfg.AMQP.URL != "" {
		ap, err := notify.NewAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return err
		}
		pub = ap
		ready["amqp"] = ap
		settings["notifier"] = "amqp"
	}
	defer func() { _ = pub.Close() }()
	dispatcher := notify.NewDispatcher(pub, log, cfg.Notify.MaxAttempts, 0)
	dispatcher.Observe = func(m notify.Message, err error) {
		status := "delivered"
		if err != nil {
			status = "failed"
		}
		metrics.Notifications.WithLabelValues(m.Type, status).Inc()
	}
	dispatcher.Start(context.WithoutCancel(ctx))
	// queued notifications drain before the publisher closes
	defer dispatcher.Stop()

	svc := booking.New(st, traveltime.NewHolder(tbl), cal, log)
	svc.MaxAttempts = cfg.Booking.MaxAttempts
	svc.Events = broker
	svc.Notifier = dispatcher
	svc.NotifySecret = cfg.Notify.Secret

	verifier, err := auth.NewVerifier(cfg.Auth.Mode, cfg.Auth.HMACSecret)
	if err != nil {
		return err
	}
	server := api.NewServer(svc, api.Options{
		Auth:     verifier,
		Broker:   broker,
		Log:      log,
		RPS:      cfg.Rate.RPS,
		Burst:    cfg.Rate.Burst,
		Proxies:  cfg.Rate.TrustedProxies,
		Dev:      cfg.Server.Dev,
		Ready:    ready,
		Settings: settings,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (store.Store, func(), error) {
	if cfg.Database.URL == "" {
		log.Info("DATABASE_URL not set, using in-memory store")
		return store.NewMemory(), func() {}, nil
	}
	pg, err := store.NewPostgres(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, err
		}
		log.Info("migrations applied")
	}
	return pg, func() { _ = pg.Close() }, nil
}

// seed loads reference data into an empty store.
func seed(ctx context.Context, cfg config.Config, st store.Store, log logrus.FieldLogger) error {
	if cfg.Seed.TravelTimes != "" {
		rows, err := st.LoadTravelTimes(ctx)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		if len(rows) == 0 {
			src, err := integrations.Open(cfg.Seed.TravelTimes)
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			tbl, err := integrations.Import(ctx, src, st)
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			log.WithFields(logrus.Fields{"source": src.Name(), "rows": tbl.Len()}).Info("travel times seeded")
		}
	}
	if len(cfg.Seed.Products) > 0 {
		existing, err := st.ListProducts(ctx, false)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		if len(existing) == 0 {
			for _, p := range cfg.Seed.Products {
				if _, err := st.UpsertProduct(ctx, p); err != nil {
					return fmt.Errorf("seed product %s: %w", p.ID, err)
				}
			}
			log.WithField("products", len(cfg.Seed.Products)).Info("products seeded")
		}
	}
	return nil
}
