package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	appconfig "github.com/wolfman30/school-whatsapp-hub/internal/config"
	appmigrations "github.com/wolfman30/school-whatsapp-hub/migrations"
	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

// migrator is the subset of *migrate.Migrate the commands drive.
type migrator interface {
	Up() error
	Force(version int) error
	Version() (version uint, dirty bool, err error)
}

type command struct {
	name    string
	version int
}

// parseCommand reads the CLI arguments: no argument or "up" applies pending
// migrations, "version" reports the schema version and "force <n>" clears a
// dirty state.
func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{name: "up"}, nil
	}
	switch args[0] {
	case "up", "version":
		return command{name: args[0]}, nil
	case "force":
		if len(args) < 2 {
			return command{}, errors.New("force requires a version")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return command{}, fmt.Errorf("invalid version: %w", err)
		}
		return command{name: "force", version: version}, nil
	default:
		return command{}, fmt.Errorf("unknown command %q", args[0])
	}
}

// latestVersion walks the embedded source and returns the highest migration
// version shipped with this binary.
func latestVersion(src source.Driver) (uint, error) {
	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("first migration: %w", err)
	}
	for {
		next, err := src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		if err != nil {
			return 0, fmt.Errorf("next migration after %d: %w", v, err)
		}
		v = next
	}
}

func run(m migrator, cmd command, latest uint, logger *logging.Logger) error {
	switch cmd.name {
	case "force":
		if err := m.Force(cmd.version); err != nil {
			return fmt.Errorf("force version: %w", err)
		}
		logger.Info("forced schema version", "version", cmd.version)
		return nil
	case "version":
		return reportVersion(m, latest, logger)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return reportVersion(m, latest, logger)
}

func reportVersion(m migrator, latest uint, logger *logging.Logger) error {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		logger.Info("schema has no migrations applied", "latest", latest)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema version %d is dirty; fix it and run force %d", version, version)
	}
	if version != latest {
		logger.Warn("schema version differs from embedded migrations", "version", version, "latest", latest)
		return nil
	}
	logger.Info("schema up to date", "version", version)
	return nil
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).WithComponent("migrate")

	cmd, err := parseCommand(os.Args[1:])
	if err != nil {
		logger.Error("usage: migrate [up|version|force <version>]", "error", err)
		os.Exit(2)
	}

	databaseURL := strings.TrimSpace(cfg.DatabaseURL)
	if databaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		logger.Error("failed to build database driver", "error", err)
		os.Exit(1)
	}

	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		logger.Error("failed to load embedded migrations", "error", err)
		os.Exit(1)
	}
	latest, err := latestVersion(srcDriver)
	if err != nil {
		logger.Error("failed to read embedded migrations", "error", err)
		os.Exit(1)
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		logger.Error("failed to create migrator", "error", err)
		os.Exit(1)
	}

	err = run(m, cmd, latest, logger)
	_, _ = m.Close()
	if err != nil {
		logger.Error("migration failed", "command", cmd.name, "error", err)
		os.Exit(1)
	}
}
