// Command ttimport loads travel-time reference data from a CSV or YAML file
// into the store. Reverse pairs and zero self rows are added before the
// table is validated; an invalid file leaves the store untouched.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"slotbook/internal/integrations"
	_ "slotbook/internal/integrations/csvfile"
	_ "slotbook/internal/integrations/yamlfile"
	"slotbook/internal/logging"
	"slotbook/internal/model"
	"slotbook/internal/store"
	"slotbook/internal/traveltime"
)

// dryRun validates without writing.
type dryRun struct{}

func (dryRun) ReplaceTravelTimes(ctx context.Context, rows []model.TravelTime) (int, error) {
	return len(rows), nil
}

func main() {
	_ = godotenv.Load()
	source := flag.String("source", "", "travel time file (.csv, .yaml or .yml)")
	dsn := flag.String("dsn", os.Getenv("DATABASE_URL"), "Postgres DSN (default $DATABASE_URL)")
	migrate := flag.Bool("migrate", false, "apply schema migrations first")
	check := flag.Bool("dry-run", false, "validate the file without writing")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	log, err := logging.New(*level, "text")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *source == "" {
		fmt.Fprintln(os.Stderr, "--source is required")
		os.Exit(2)
	}
	if *dsn == "" && !*check {
		fmt.Fprintln(os.Stderr, "--dsn or DATABASE_URL is required unless --dry-run is set")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	tbl, err := run(ctx, *source, *dsn, *migrate, *check)
	if err != nil {
		log.WithError(err).Error("import failed")
		os.Exit(1)
	}
	log.WithFields(logrus.Fields{"source": *source, "rows": tbl.Len(), "zones": tbl.Zones(), "dry_run": *check}).Info("travel times imported")
}

func run(ctx context.Context, source, dsn string, migrate, check bool) (*traveltime.Table, error) {
	src, err := integrations.Open(source)
	if err != nil {
		return nil, err
	}
	if check {
		return integrations.Import(ctx, src, dryRun{})
	}
	pg, err := store.NewPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pg.Close() }()
	if migrate {
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	return integrations.Import(ctx, src, pg)
}
