package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/rental/backend/internal/infrastructure/config"
	"github.com/rental/backend/internal/infrastructure/logger"
	"github.com/rental/backend/internal/infrastructure/migration"
	"github.com/rental/backend/migrations"
	"go.uber.org/zap"
)

const usage = `Rental Billing migration tool

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  step <n>              Apply n migrations, negative n rolls back
  version               Show the current schema version
  force <version>       Record a version without running SQL (repairs a dirty schema)
  create <name> [desc]  Write the next migration file pair into -path
  list                  List the migrations in -path

Flags:
`

var errUsage = errors.New("invalid arguments")

func main() {
	dir := flag.String("path", "", "Migrations directory (default: embedded set, or ./migrations for create/list)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	log, err := logger.New(&logger.Config{Level: *logLevel, Format: "console", Output: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	err = run(flag.Arg(0), flag.Args()[1:], *dir, log)
	_ = logger.Sync(log)
	if errors.Is(err, errUsage) {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error("Migration command failed", zap.String("command", flag.Arg(0)), zap.Error(err))
		os.Exit(1)
	}
}

func run(command string, args []string, dir string, log *zap.Logger) error {
	switch command {
	case "create":
		if len(args) == 0 {
			return fmt.Errorf("%w: create needs a name", errUsage)
		}
		description := ""
		if len(args) > 1 {
			description = args[1]
		}
		created, err := migration.Create(localDir(dir), args[0], description)
		if err != nil {
			return err
		}
		log.Info("Migration created", zap.String("up", created.UpPath), zap.String("down", created.DownPath))
		return nil

	case "list":
		entries, err := migration.List(localDir(dir))
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Println(e.Base())
		}
		return nil
	}

	return withMigrator(dir, log, func(m *migration.Migrator) error {
		switch command {
		case "up":
			return m.Up()
		case "down":
			return m.Down()
		case "step":
			n, err := intArg(args, "step count")
			if err != nil {
				return err
			}
			return m.Steps(n)
		case "force":
			version, err := intArg(args, "version")
			if err != nil {
				return err
			}
			return m.Force(version)
		case "version":
			status, err := m.Status()
			if err != nil {
				return err
			}
			if !status.Applied() {
				log.Info("No migrations applied")
				return nil
			}
			log.Info("Current schema version", zap.Uint("version", status.Version), zap.Bool("dirty", status.Dirty))
			return nil
		default:
			return fmt.Errorf("%w: unknown command %q", errUsage, command)
		}
	})
}

// withMigrator connects with the RENTAL_DATABASE_* settings and runs fn over
// the embedded migrations, or over dir when one was given
func withMigrator(dir string, log *zap.Logger, fn func(*migration.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	var source fs.FS = migrations.FS
	if dir != "" {
		log.Info("Using migrations directory", zap.String("path", dir))
		source = os.DirFS(dir)
	}

	m, err := migration.New(db, source, log)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Error closing migrator", zap.Error(err))
		}
	}()
	return fn(m)
}

func localDir(dir string) string {
	if dir == "" {
		return "migrations"
	}
	return dir
}

func intArg(args []string, what string) (int, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("%w: %s required", errUsage, what)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", errUsage, what, args[0])
	}
	return n, nil
}
