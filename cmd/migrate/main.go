// Command migrate applies the Postgres schema in MIGRATIONS_PATH.
//
//	migrate up             apply every pending migration
//	migrate down [N]       roll back N migrations (default 1)
//	migrate goto V         move to version V
//	migrate force V        mark version V clean after a failed run
//	migrate version        print the current version
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"coinfolio/internal/config"
	"coinfolio/internal/logger"
)

// command is one parsed invocation. arg is the step count or target version.
type command struct {
	name string
	arg  int
}

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(os.Args[1:]); err != nil {
		logger.Get().Fatalw("migrate failed", "error", err)
	}
}

func run(args []string) error {
	cmd, err := parseCommand(args)
	if err != nil {
		return err
	}

	cfg, err := config.LoadServer()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DBDriver != "postgres" {
		return fmt.Errorf("migrate only manages postgres; %s schemas are created at startup", cfg.DBDriver)
	}

	m, err := migrate.New("file://"+cfg.MigrationsPath, cfg.PostgresURL())
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Get().Warnw("closing migrate", "source_error", srcErr, "db_error", dbErr)
		}
	}()

	return apply(m, cmd, logger.Get())
}

func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{}, errors.New("usage: migrate <up|down [N]|goto V|force V|version>")
	}
	cmd := command{name: args[0]}

	switch cmd.name {
	case "up", "version":
		return cmd, nil
	case "down":
		cmd.arg = 1
		if len(args) < 2 {
			return cmd, nil
		}
	case "goto", "force":
		if len(args) < 2 {
			return command{}, fmt.Errorf("%s needs a version", cmd.name)
		}
	default:
		return command{}, fmt.Errorf("unknown command %q", cmd.name)
	}

	n, err := strconv.Atoi(args[1])
	if err != nil || n < 0 || (cmd.name == "down" && n == 0) {
		return command{}, fmt.Errorf("%s: invalid number %q", cmd.name, args[1])
	}
	cmd.arg = n
	return cmd, nil
}

func apply(m *migrate.Migrate, cmd command, log *zap.SugaredLogger) error {
	var err error
	switch cmd.name {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-cmd.arg)
	case "goto":
		err = m.Migrate(uint(cmd.arg))
	case "force":
		err = m.Force(cmd.arg)
	case "version":
		version, dirty, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			log.Info("no migrations applied")
			return nil
		}
		if verr != nil {
			return fmt.Errorf("read version: %w", verr)
		}
		log.Infow("schema version", "version", version, "dirty", dirty)
		return nil
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Infow("schema already current", "command", cmd.name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.name, err)
	}
	log.Infow("migration complete", "command", cmd.name, "arg", cmd.arg)
	return nil
}
