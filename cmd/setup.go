package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file from the embedded template when it is missing, then
// initializes the database and runs migrations.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := r.configPath
	if configPath == "" {
		configPath = cmd.String("config")
	}

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			return err
		}
		config, err := r.loadConfig(configPath)
		if err != nil {
			return err
		}
		r.config = config
		r.writePlain("%s\n", r.palette.OK("Config written to "+configPath))
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)
	if err := r.open(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	r.writePlain("%s\n", r.palette.OK("Database ready at "+r.config.Database.Path))
	r.writePlainln("Next steps:")
	r.writePlain("1. Add provider credentials to %s\n", configPath)
	r.writePlain("2. tunesync user create --email you@example.com\n")
	r.writePlain("3. tunesync --user you@example.com connect spotify\n")
	return nil
}

// Migrate applies pending migrations.
func (r *Runner) Migrate(ctx context.Context, cmd *cli.Command) error {
	db, err := r.database()
	if err != nil {
		return err
	}
	if err := shared.RunMigrations(db); err != nil {
		return err
	}
	r.writePlain("%s\n", r.palette.OK("Migrations applied"))
	return nil
}

// Rollback reverts the most recent migration.
func (r *Runner) Rollback(ctx context.Context, cmd *cli.Command) error {
	db, err := r.database()
	if err != nil {
		return err
	}
	if err := shared.RollbackMigration(db); err != nil {
		return err
	}
	r.writePlain("%s\n", r.palette.OK("Rolled back the latest migration"))
	return nil
}

// MigrationStatus lists each known migration and whether it is applied.
func (r *Runner) MigrationStatus(ctx context.Context, cmd *cli.Command) error {
	db, err := r.database()
	if err != nil {
		return err
	}
	statuses, err := shared.Migrations(db)
	if err != nil {
		return err
	}

	type row struct {
		Version int    `json:"version"`
		Name    string `json:"name"`
		Applied bool   `json:"applied"`
	}
	out := make([]row, 0, len(statuses))
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, row{Version: s.Version, Name: s.Name, Applied: s.Applied})
		applied := "no"
		if s.Applied {
			applied = "yes"
		}
		rows = append(rows, []string{fmt.Sprintf("%04d", s.Version), s.Name, applied})
	}

	return r.emit(cmd, out, func() {
		r.writeTable([]string{"Version", "Name", "Applied"}, rows)
	})
}

// database opens the configured database without migrating it.
func (r *Runner) database() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}
	if r.config == nil {
		r.config = shared.DefaultConfig()
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, err
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
	r.db = db
	r.closers = append(r.closers, db.Close)
	return db, nil
}
