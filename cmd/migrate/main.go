// Command migrate applies the embedded upload_history schema migrations.
//
// The connection string comes from -dsn, then RECONIFY_DB_DSN, then the
// database section of the regular reconify configuration.
package main

import (
	"embed"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"

	"github.com/JaimeStill/reconify/internal/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

const envDSN = "RECONIFY_DB_DSN"

type options struct {
	dsn      string
	up       bool
	down     bool
	steps    int
	version  bool
	force    int
	forceSet bool
}

func main() {
	if err := run(parseFlags()); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.dsn, "dsn", "", "Database connection string")
	flag.BoolVar(&o.up, "up", false, "Run all up migrations")
	flag.BoolVar(&o.down, "down", false, "Run all down migrations")
	flag.IntVar(&o.steps, "steps", 0, "Number of migrations (positive=up, negative=down)")
	flag.BoolVar(&o.version, "version", false, "Print current migration version")
	flag.IntVar(&o.force, "force", -1, "Force set version (use with caution)")
	flag.Parse()

	flag.Visit(func(f *flag.Flag) {
		if f.Name == "force" {
			o.forceSet = true
		}
	})
	return o
}

func resolveDSN(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v := os.Getenv(envDSN); v != "" {
		return v, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	return cfg.Database.Dsn(), nil
}

func run(o options) error {
	if !o.up && !o.down && !o.version && !o.forceSet && o.steps == 0 {
		fmt.Println("usage: migrate [-dsn <connection-string>] [-up|-down|-steps N|-version|-force N]")
		flag.PrintDefaults()
		return nil
	}

	dsn, err := resolveDSN(o.dsn)
	if err != nil {
		return err
	}

	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	switch {
	case o.version:
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("no migrations applied")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read version: %w", err)
		}
		fmt.Printf("version: %d, dirty: %v\n", v, dirty)
	case o.forceSet:
		if err := m.Force(o.force); err != nil {
			return fmt.Errorf("force version: %w", err)
		}
		fmt.Printf("forced to version %d\n", o.force)
	case o.up:
		if err := ignoreNoChange(m.Up()); err != nil {
			return fmt.Errorf("apply up migrations: %w", err)
		}
		fmt.Println("migrations applied")
	case o.down:
		if err := ignoreNoChange(m.Down()); err != nil {
			return fmt.Errorf("revert migrations: %w", err)
		}
		fmt.Println("migrations reverted")
	default:
		if err := ignoreNoChange(m.Steps(o.steps)); err != nil {
			return fmt.Errorf("apply %d steps: %w", o.steps, err)
		}
		fmt.Printf("applied %d migration steps\n", o.steps)
	}
	return nil
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
